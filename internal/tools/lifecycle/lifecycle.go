// Package lifecycle implements the tools that create, list and delete
// sandboxes.
package lifecycle

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/kz364/ralphinabox/internal/sandbox"
	"github.com/kz364/ralphinabox/internal/tools"
)

// Register adds the lifecycle tools to reg.
func Register(reg *tools.Registry, provider sandbox.Provider, logger *slog.Logger) {
	reg.Register(&CreateTool{provider: provider, logger: logger})
	reg.Register(&DeleteTool{provider: provider, logger: logger})
	reg.Register(&ListTool{provider: provider})
}

// CreateTool creates a sandbox.
type CreateTool struct {
	provider sandbox.Provider
	logger   *slog.Logger
}

func (t *CreateTool) Name() string        { return "sandbox_create" }
func (t *CreateTool) Description() string { return "Create a new sandbox and return its identifier" }
func (t *CreateTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"name":       map[string]any{"type": "string", "description": "Human-readable name used as the identifier prefix"},
			"image":      map[string]any{"type": "string", "description": "Base image reference (ignored by the local backend)"},
			"env":        map[string]any{"type": "object", "additionalProperties": map[string]any{"type": "string"}, "description": "Default environment for every command"},
			"labels":     map[string]any{"type": "object", "additionalProperties": map[string]any{"type": "string"}},
			"vcpu":       map[string]any{"type": "integer"},
			"memory_gib": map[string]any{"type": "integer"},
			"disk_gib":   map[string]any{"type": "integer"},
		},
	}
}

func (t *CreateTool) Validate(params map[string]any) error {
	for _, key := range []string{"name", "image"} {
		if _, err := tools.OptionalString(params, key); err != nil {
			return err
		}
	}
	for _, key := range []string{"env", "labels"} {
		if _, err := tools.StringMap(params, key); err != nil {
			return err
		}
	}
	for _, key := range []string{"vcpu", "memory_gib", "disk_gib"} {
		n, err := tools.OptionalInt(params, key)
		if err != nil {
			return err
		}
		if n < 0 {
			return fmt.Errorf("parameter %s must not be negative", key)
		}
	}
	return nil
}

func (t *CreateTool) Execute(ctx context.Context, params map[string]any) (*tools.Result, error) {
	name, _ := tools.OptionalString(params, "name")
	image, _ := tools.OptionalString(params, "image")
	env, _ := tools.StringMap(params, "env")
	labels, _ := tools.StringMap(params, "labels")
	vcpu, _ := tools.OptionalInt(params, "vcpu")
	mem, _ := tools.OptionalInt(params, "memory_gib")
	disk, _ := tools.OptionalInt(params, "disk_gib")

	sb, err := t.provider.Create(ctx, sandbox.CreateRequest{
		Name:      name,
		Image:     image,
		Env:       env,
		Labels:    labels,
		Resources: sandbox.Resources{VCPU: vcpu, MemoryGiB: mem, DiskGiB: disk},
	})
	if err != nil {
		return nil, fmt.Errorf("creating sandbox: %w", err)
	}

	t.logger.InfoContext(ctx, "sandbox_create completed", slog.String("sandbox_id", sb.ID))

	return &tools.Result{
		Output:  sb.ID,
		Success: true,
		Metadata: map[string]any{
			"sandbox_id": sb.ID,
			"root":       sb.Root,
		},
	}, nil
}

// DeleteTool destroys a sandbox and its files.
type DeleteTool struct {
	provider sandbox.Provider
	logger   *slog.Logger
}

func (t *DeleteTool) Name() string        { return "sandbox_delete" }
func (t *DeleteTool) Description() string { return "Delete a sandbox and remove all of its files" }
func (t *DeleteTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"sandbox_id": map[string]any{"type": "string", "description": "Sandbox identifier"},
		},
		"required": []string{"sandbox_id"},
	}
}

func (t *DeleteTool) Validate(params map[string]any) error {
	_, err := tools.RequireString(params, "sandbox_id")
	return err
}

func (t *DeleteTool) Execute(ctx context.Context, params map[string]any) (*tools.Result, error) {
	id, err := tools.RequireString(params, "sandbox_id")
	if err != nil {
		return nil, err
	}
	if err := t.provider.Delete(ctx, id); err != nil {
		return nil, fmt.Errorf("deleting sandbox: %w", err)
	}
	t.logger.InfoContext(ctx, "sandbox_delete completed", slog.String("sandbox_id", id))
	return &tools.Result{Output: "deleted " + id, Success: true}, nil
}

// ListTool lists live sandboxes.
type ListTool struct {
	provider sandbox.Provider
}

func (t *ListTool) Name() string        { return "sandbox_list" }
func (t *ListTool) Description() string { return "List live sandboxes" }
func (t *ListTool) InputSchema() map[string]any {
	return map[string]any{"type": "object", "properties": map[string]any{}}
}
func (t *ListTool) Validate(map[string]any) error { return nil }

func (t *ListTool) Execute(ctx context.Context, _ map[string]any) (*tools.Result, error) {
	list, err := t.provider.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing sandboxes: %w", err)
	}
	out, err := json.Marshal(list)
	if err != nil {
		return nil, fmt.Errorf("encoding sandbox list: %w", err)
	}
	return &tools.Result{
		Output:   string(out),
		Success:  true,
		Metadata: map[string]any{"count": len(list)},
	}, nil
}
