// Package file implements sandbox file access tools.
//
// Paths are always resolved by the provider against the sandbox root, so
// traversal and symlink escapes are rejected before any I/O occurs.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"unicode/utf8"

	"github.com/kz364/ralphinabox/internal/sandbox"
	"github.com/kz364/ralphinabox/internal/tools"
)

// Config configures file tool limits.
type Config struct {
	MaxFileSizeBytes int64 // Maximum file size for read/write. 0 = 10 MB default.
}

const defaultMaxFileSize = 10 << 20 // 10 MB

func maxSize(cfg Config) int64 {
	if cfg.MaxFileSizeBytes > 0 {
		return cfg.MaxFileSizeBytes
	}
	return defaultMaxFileSize
}

// Register adds the file tools to reg.
func Register(reg *tools.Registry, provider sandbox.Provider, cfg Config, logger *slog.Logger) {
	reg.Register(&ReadTool{provider: provider, cfg: cfg})
	reg.Register(&WriteTool{provider: provider, cfg: cfg, logger: logger})
	reg.Register(&ListTool{provider: provider})
	reg.Register(&MkdirsTool{provider: provider})
}

func pathSchema(extra map[string]any, required ...string) map[string]any {
	props := map[string]any{
		"sandbox_id": map[string]any{"type": "string", "description": "Sandbox identifier"},
		"path":       map[string]any{"type": "string", "description": "Path relative to the sandbox root"},
	}
	for k, v := range extra {
		props[k] = v
	}
	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   append([]string{"sandbox_id"}, required...),
	}
}

func validatePath(params map[string]any, pathRequired bool) error {
	if _, err := tools.RequireString(params, "sandbox_id"); err != nil {
		return err
	}
	if pathRequired {
		_, err := tools.RequireString(params, "path")
		return err
	}
	_, err := tools.OptionalString(params, "path")
	return err
}

// --- file_read ---

// ReadTool reads a file from a sandbox.
type ReadTool struct {
	provider sandbox.Provider
	cfg      Config
}

func (t *ReadTool) Name() string        { return "file_read" }
func (t *ReadTool) Description() string { return "Read a file from a sandbox" }
func (t *ReadTool) InputSchema() map[string]any {
	return pathSchema(nil, "path")
}
func (t *ReadTool) Validate(params map[string]any) error { return validatePath(params, true) }

func (t *ReadTool) Execute(ctx context.Context, params map[string]any) (*tools.Result, error) {
	id, _ := tools.RequireString(params, "sandbox_id")
	path, _ := tools.RequireString(params, "path")

	data, err := t.provider.ReadFile(ctx, id, path)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	if int64(len(data)) > maxSize(t.cfg) {
		return nil, fmt.Errorf("file %s is %d bytes, exceeds limit of %d", path, len(data), maxSize(t.cfg))
	}

	meta := map[string]any{"path": path, "size": len(data)}
	if !utf8.Valid(data) {
		meta["binary"] = true
	}
	return &tools.Result{
		Output:   tools.TruncateOutput(string(data), tools.MaxOutputBytes),
		Success:  true,
		Metadata: meta,
	}, nil
}

// --- file_write ---

// WriteTool writes or appends to a file in a sandbox.
type WriteTool struct {
	provider sandbox.Provider
	cfg      Config
	logger   *slog.Logger
}

func (t *WriteTool) Name() string { return "file_write" }
func (t *WriteTool) Description() string {
	return "Write content to a file in a sandbox, creating parent directories"
}
func (t *WriteTool) InputSchema() map[string]any {
	return pathSchema(map[string]any{
		"content": map[string]any{"type": "string", "description": "File content"},
		"append":  map[string]any{"type": "boolean", "description": "Append instead of overwrite"},
		"mode":    map[string]any{"type": "integer", "description": "Permission bits to apply, e.g. 493 for 0755"},
	}, "path", "content")
}

func (t *WriteTool) Validate(params map[string]any) error {
	if err := validatePath(params, true); err != nil {
		return err
	}
	content, err := tools.OptionalString(params, "content")
	if err != nil {
		return err
	}
	if _, ok := params["content"]; !ok {
		return fmt.Errorf("missing required parameter: content")
	}
	if int64(len(content)) > maxSize(t.cfg) {
		return fmt.Errorf("content is %d bytes, exceeds limit of %d", len(content), maxSize(t.cfg))
	}
	if _, err := tools.OptionalBool(params, "append"); err != nil {
		return err
	}
	mode, err := tools.OptionalInt(params, "mode")
	if err != nil {
		return err
	}
	if mode < 0 || mode > 0o7777 {
		return fmt.Errorf("parameter mode %o is out of range", mode)
	}
	return nil
}

func (t *WriteTool) Execute(ctx context.Context, params map[string]any) (*tools.Result, error) {
	id, _ := tools.RequireString(params, "sandbox_id")
	path, _ := tools.RequireString(params, "path")
	content, _ := tools.OptionalString(params, "content")
	appendMode, _ := tools.OptionalBool(params, "append")
	mode, _ := tools.OptionalInt(params, "mode")

	opts := sandbox.WriteOptions{Append: appendMode, Mode: uint32(mode)}
	if err := t.provider.WriteFile(ctx, id, path, []byte(content), opts); err != nil {
		return nil, fmt.Errorf("writing file: %w", err)
	}

	t.logger.InfoContext(ctx, "file_write completed",
		slog.String("sandbox_id", id),
		slog.String("path", path),
		slog.Int("bytes", len(content)),
	)

	return &tools.Result{
		Output:   fmt.Sprintf("wrote %d bytes to %s", len(content), path),
		Success:  true,
		Metadata: map[string]any{"path": path, "bytes": len(content), "append": appendMode},
	}, nil
}

// --- file_list ---

// ListTool lists the immediate children of a sandbox directory.
type ListTool struct {
	provider sandbox.Provider
}

func (t *ListTool) Name() string { return "file_list" }
func (t *ListTool) Description() string {
	return "List the immediate children of a directory in a sandbox; a missing directory lists as empty"
}
func (t *ListTool) InputSchema() map[string]any         { return pathSchema(nil) }
func (t *ListTool) Validate(params map[string]any) error { return validatePath(params, false) }

func (t *ListTool) Execute(ctx context.Context, params map[string]any) (*tools.Result, error) {
	id, _ := tools.RequireString(params, "sandbox_id")
	path, _ := tools.OptionalString(params, "path")

	entries, err := t.provider.ListFiles(ctx, id, path)
	if err != nil {
		return nil, fmt.Errorf("listing files: %w", err)
	}
	out, err := json.Marshal(entries)
	if err != nil {
		return nil, fmt.Errorf("encoding entries: %w", err)
	}
	return &tools.Result{
		Output:   string(out),
		Success:  true,
		Metadata: map[string]any{"count": len(entries)},
	}, nil
}

// --- file_mkdirs ---

// MkdirsTool creates a directory chain in a sandbox.
type MkdirsTool struct {
	provider sandbox.Provider
}

func (t *MkdirsTool) Name() string        { return "file_mkdirs" }
func (t *MkdirsTool) Description() string { return "Create a directory and any missing parents in a sandbox" }
func (t *MkdirsTool) InputSchema() map[string]any {
	return pathSchema(nil, "path")
}
func (t *MkdirsTool) Validate(params map[string]any) error { return validatePath(params, true) }

func (t *MkdirsTool) Execute(ctx context.Context, params map[string]any) (*tools.Result, error) {
	id, _ := tools.RequireString(params, "sandbox_id")
	path, _ := tools.RequireString(params, "path")
	if err := t.provider.Mkdirs(ctx, id, path); err != nil {
		return nil, fmt.Errorf("creating directories: %w", err)
	}
	return &tools.Result{Output: "created " + path, Success: true}, nil
}
