// Package shell implements the sandbox command execution tool.
// Commands are passed as an argument vector and are never handed to a shell
// by the tool itself; callers that want pipes must invoke sh -c explicitly.
package shell

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kz364/ralphinabox/internal/sandbox"
	"github.com/kz364/ralphinabox/internal/tools"
)

// Tool executes commands inside a sandbox.
type Tool struct {
	provider sandbox.Provider
	logger   *slog.Logger
}

// NewTool creates an exec tool that delegates all execution to provider.
func NewTool(provider sandbox.Provider, logger *slog.Logger) *Tool {
	return &Tool{
		provider: provider,
		logger:   logger,
	}
}

func (t *Tool) Name() string { return "sandbox_exec" }
func (t *Tool) Description() string {
	return "Run a command inside a sandbox and return its exit code and output. Exit code 124 means the command timed out."
}
func (t *Tool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"sandbox_id":      map[string]any{"type": "string", "description": "Sandbox identifier"},
			"args":            map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": "Program and arguments, e.g. [\"go\", \"test\", \"./...\"]"},
			"working_dir":     map[string]any{"type": "string", "description": "Working directory relative to the sandbox root"},
			"env":             map[string]any{"type": "object", "additionalProperties": map[string]any{"type": "string"}, "description": "Extra environment variables"},
			"timeout_seconds": map[string]any{"type": "number", "description": "Timeout in seconds; 0 uses the default"},
		},
		"required": []string{"sandbox_id", "args"},
	}
}

// Validate checks that required params are present and well-formed.
func (t *Tool) Validate(params map[string]any) error {
	if _, err := tools.RequireString(params, "sandbox_id"); err != nil {
		return err
	}
	args, err := tools.StringSlice(params, "args")
	if err != nil {
		return err
	}
	if len(args) == 0 {
		return fmt.Errorf("parameter args must not be empty")
	}
	if _, err := tools.OptionalString(params, "working_dir"); err != nil {
		return err
	}
	if _, err := tools.StringMap(params, "env"); err != nil {
		return err
	}
	_, err = tools.OptionalSeconds(params, "timeout_seconds")
	return err
}

// Execute runs the command through the provider.
//
// Required params:
//
//	"sandbox_id" (string): target sandbox
//	"args" ([]string): program and arguments
//
// Optional params:
//
//	"working_dir" (string): directory relative to the sandbox root
//	"env" (object): extra environment variables
//	"timeout_seconds" (number): overrides the default timeout
func (t *Tool) Execute(ctx context.Context, params map[string]any) (*tools.Result, error) {
	id, err := tools.RequireString(params, "sandbox_id")
	if err != nil {
		return nil, err
	}
	args, err := tools.StringSlice(params, "args")
	if err != nil {
		return nil, err
	}
	dir, _ := tools.OptionalString(params, "working_dir")
	env, _ := tools.StringMap(params, "env")
	timeout, _ := tools.OptionalSeconds(params, "timeout_seconds")

	t.logger.InfoContext(ctx, "sandbox_exec executing",
		slog.String("sandbox_id", id),
		slog.String("program", args[0]),
	)

	result, err := t.provider.Exec(ctx, id, sandbox.ExecRequest{
		Args:    args,
		Dir:     dir,
		Env:     env,
		Timeout: timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("sandbox exec: %w", err)
	}

	output := result.Stdout
	if result.Stderr != "" {
		if output != "" {
			output += "\n"
		}
		output += result.Stderr
	}

	return &tools.Result{
		Output:  tools.TruncateOutput(output, tools.MaxOutputBytes),
		Success: result.ExitCode == 0,
		Metadata: map[string]any{
			"exit_code":   result.ExitCode,
			"timed_out":   result.TimedOut,
			"duration_ms": result.DurationMS(),
		},
	}, nil
}
