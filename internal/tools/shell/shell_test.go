package shell

import (
	"context"
	"log/slog"
	"testing"

	"github.com/kz364/ralphinabox/internal/sandbox"
)

func TestTool_Execute(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)
	p, err := sandbox.NewLocalProvider(sandbox.LocalConfig{BaseDir: t.TempDir()}, logger)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	sb, err := p.Create(ctx, sandbox.CreateRequest{Name: "shell"})
	if err != nil {
		t.Fatal(err)
	}

	tool := NewTool(p, logger)
	params := map[string]any{
		"sandbox_id": sb.ID,
		"args":       []any{"sh", "-c", "echo $GREETING; exit 2"},
		"env":        map[string]any{"GREETING": "hello"},
	}
	if err := tool.Validate(params); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	res, err := tool.Execute(ctx, params)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Success {
		t.Error("non-zero exit must not be reported as success")
	}
	if res.Output != "hello\n" {
		t.Errorf("output = %q", res.Output)
	}
	if res.Metadata["exit_code"] != 2 {
		t.Errorf("exit_code = %v, want 2", res.Metadata["exit_code"])
	}

	timeout := map[string]any{"sandbox_id": sb.ID, "args": []any{"sleep", "5"}, "timeout_seconds": 0.1}
	res, err = tool.Execute(ctx, timeout)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Metadata["exit_code"] != sandbox.TimeoutExitCode || res.Metadata["timed_out"] != true {
		t.Errorf("metadata = %v, want timeout", res.Metadata)
	}
}

func TestTool_Validate(t *testing.T) {
	tool := NewTool(nil, slog.New(slog.DiscardHandler))
	bad := []map[string]any{
		{"args": []any{"ls"}},
		{"sandbox_id": "x"},
		{"sandbox_id": "x", "args": []any{}},
		{"sandbox_id": "x", "args": "ls -la"},
		{"sandbox_id": "x", "args": []any{"ls"}, "timeout_seconds": -1.0},
	}
	for i, params := range bad {
		if err := tool.Validate(params); err == nil {
			t.Errorf("case %d: expected validation error for %v", i, params)
		}
	}
}
