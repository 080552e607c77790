// Package git implements the git tools. Every tool goes through the
// provider's git layer, so repository paths are contained in the sandbox
// and each invocation is bounded by the git timeout.
//
// Credentials are never accepted as tool parameters. They come from the
// server configuration and are only injected into https remotes on the
// credential's host.
package git

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kz364/ralphinabox/internal/sandbox"
	"github.com/kz364/ralphinabox/internal/tools"
)

// Register adds the read and write git tools to reg. auth may be nil.
func Register(reg *tools.Registry, provider sandbox.Provider, auth *sandbox.Credential, logger *slog.Logger) {
	reg.Register(&StatusTool{provider: provider})
	reg.Register(&DiffTool{provider: provider})
	reg.Register(&CloneTool{provider: provider, auth: auth, logger: logger})
	reg.Register(&BranchTool{provider: provider})
	reg.Register(&CommitTool{provider: provider, logger: logger})
	reg.Register(&PushTool{provider: provider, auth: auth, logger: logger})
}

func repoSchema(extra map[string]any, required ...string) map[string]any {
	props := map[string]any{
		"sandbox_id": map[string]any{"type": "string", "description": "Sandbox identifier"},
		"repo_path":  map[string]any{"type": "string", "description": "Repository path relative to the sandbox root"},
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

func validateRepo(params map[string]any, required ...string) error {
	if _, err := tools.RequireString(params, "sandbox_id"); err != nil {
		return err
	}
	if _, err := tools.OptionalString(params, "repo_path"); err != nil {
		return err
	}
	for _, key := range required {
		if _, err := tools.RequireString(params, key); err != nil {
			return err
		}
	}
	return nil
}

// gitResult turns a git failure into an unsuccessful result carrying the
// stderr text, so the caller sees the diagnostic instead of a bare error.
func gitResult(output string, err error, meta map[string]any) (*tools.Result, error) {
	if err != nil {
		var gitErr *sandbox.GitCommandError
		if !errors.As(err, &gitErr) {
			return nil, err
		}
		if meta == nil {
			meta = map[string]any{}
		}
		meta["exit_code"] = gitErr.ExitCode
		meta["timed_out"] = gitErr.TimedOut
		return &tools.Result{
			Output:   tools.TruncateOutput(gitErr.Error(), tools.MaxOutputBytes),
			Success:  false,
			Metadata: meta,
		}, nil
	}
	return &tools.Result{
		Output:   tools.TruncateOutput(output, tools.MaxOutputBytes),
		Success:  true,
		Metadata: meta,
	}, nil
}

// StatusTool returns git status --porcelain.
type StatusTool struct {
	provider sandbox.Provider
}

func (t *StatusTool) Name() string { return "git_status" }
func (t *StatusTool) Description() string {
	return "Show working tree status in porcelain format; empty output means clean"
}
func (t *StatusTool) InputSchema() map[string]any         { return repoSchema(nil) }
func (t *StatusTool) Validate(params map[string]any) error { return validateRepo(params) }

func (t *StatusTool) Execute(ctx context.Context, params map[string]any) (*tools.Result, error) {
	id, _ := tools.RequireString(params, "sandbox_id")
	path, _ := tools.OptionalString(params, "repo_path")
	out, err := t.provider.GitStatus(ctx, id, path)
	return gitResult(out, err, map[string]any{"clean": err == nil && out == ""})
}

// DiffTool returns the unstaged diff.
type DiffTool struct {
	provider sandbox.Provider
}

func (t *DiffTool) Name() string                         { return "git_diff" }
func (t *DiffTool) Description() string                  { return "Show unstaged changes as a unified diff" }
func (t *DiffTool) InputSchema() map[string]any          { return repoSchema(nil) }
func (t *DiffTool) Validate(params map[string]any) error { return validateRepo(params) }

func (t *DiffTool) Execute(ctx context.Context, params map[string]any) (*tools.Result, error) {
	id, _ := tools.RequireString(params, "sandbox_id")
	path, _ := tools.OptionalString(params, "repo_path")
	out, err := t.provider.GitDiff(ctx, id, path)
	return gitResult(out, err, nil)
}

func requireNoLeadingDash(params map[string]any, key string) error {
	v, _ := tools.OptionalString(params, key)
	if len(v) > 0 && v[0] == '-' {
		return fmt.Errorf("parameter %s must not start with '-'", key)
	}
	return nil
}
