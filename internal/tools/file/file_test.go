package file

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/kz364/ralphinabox/internal/sandbox"
	"github.com/kz364/ralphinabox/internal/tools"
)

func setup(t *testing.T) (*tools.Registry, string) {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	p, err := sandbox.NewLocalProvider(sandbox.LocalConfig{BaseDir: t.TempDir()}, logger)
	if err != nil {
		t.Fatal(err)
	}
	sb, err := p.Create(context.Background(), sandbox.CreateRequest{Name: "files"})
	if err != nil {
		t.Fatal(err)
	}
	reg := tools.NewRegistry()
	Register(reg, p, Config{MaxFileSizeBytes: 64}, logger)
	return reg, sb.ID
}

func TestFileTools_WriteReadList(t *testing.T) {
	reg, id := setup(t)
	ctx := context.Background()

	if _, err := reg.Call(ctx, "file_write", map[string]any{"sandbox_id": id, "path": "src/main.go", "content": "package main\n"}); err != nil {
		t.Fatalf("file_write: %v", err)
	}
	if _, err := reg.Call(ctx, "file_write", map[string]any{"sandbox_id": id, "path": "src/main.go", "content": "// end\n", "append": true}); err != nil {
		t.Fatalf("file_write append: %v", err)
	}

	res, err := reg.Call(ctx, "file_read", map[string]any{"sandbox_id": id, "path": "src/main.go"})
	if err != nil {
		t.Fatalf("file_read: %v", err)
	}
	if res.Output != "package main\n// end\n" {
		t.Errorf("file_read output = %q", res.Output)
	}

	res, err = reg.Call(ctx, "file_list", map[string]any{"sandbox_id": id, "path": "src"})
	if err != nil {
		t.Fatalf("file_list: %v", err)
	}
	var entries []sandbox.FileEntry
	if err := json.Unmarshal([]byte(res.Output), &entries); err != nil {
		t.Fatalf("decoding file_list output: %v", err)
	}
	if len(entries) != 1 || entries[0].Name != "main.go" {
		t.Errorf("entries = %+v", entries)
	}

	if _, err := reg.Call(ctx, "file_mkdirs", map[string]any{"sandbox_id": id, "path": "a/b/c"}); err != nil {
		t.Fatalf("file_mkdirs: %v", err)
	}
}

func TestFileTools_Rejections(t *testing.T) {
	reg, id := setup(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		tool   string
		params map[string]any
		want   string
	}{
		{"escape", "file_read", map[string]any{"sandbox_id": id, "path": "../../etc/passwd"}, "outside sandbox root"},
		{"too large", "file_write", map[string]any{"sandbox_id": id, "path": "big", "content": strings.Repeat("x", 65)}, "exceeds limit"},
		{"missing content", "file_write", map[string]any{"sandbox_id": id, "path": "f"}, "content"},
		{"bad mode", "file_write", map[string]any{"sandbox_id": id, "path": "f", "content": "", "mode": float64(99999)}, "out of range"},
		{"unknown sandbox", "file_mkdirs", map[string]any{"sandbox_id": "ghost", "path": "x"}, "unknown sandbox"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := reg.Call(ctx, tt.tool, tt.params)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want containing %q", err, tt.want)
			}
		})
	}
}
