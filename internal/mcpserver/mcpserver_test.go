package mcpserver

import (
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kz364/ralphinabox/internal/sandbox"
	"github.com/kz364/ralphinabox/internal/tools"
	"github.com/kz364/ralphinabox/internal/tools/file"
	"github.com/kz364/ralphinabox/internal/tools/lifecycle"
	"github.com/kz364/ralphinabox/internal/tools/shell"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func newTestClient(t *testing.T) (*client.Client, sandbox.Provider) {
	t.Helper()
	logger := discardLogger()
	provider, err := sandbox.NewLocalProvider(sandbox.LocalConfig{
		BaseDir:        t.TempDir(),
		DefaultTimeout: 10 * time.Second,
	}, logger)
	if err != nil {
		t.Fatal(err)
	}

	reg := tools.NewRegistry()
	lifecycle.Register(reg, provider, logger)
	file.Register(reg, provider, file.Config{}, logger)
	reg.Register(shell.NewTool(provider, logger))

	srv, err := New(reg, "test", logger)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	c, err := client.NewInProcessClient(srv.MCPServer())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = c.Close() })

	ctx := context.Background()
	if err := c.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{Name: "test", Version: "0"}
	if _, err := c.Initialize(ctx, initReq); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return c, provider
}

func call(t *testing.T, c *client.Client, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	res, err := c.CallTool(context.Background(), req)
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	return res
}

func text(res *mcp.CallToolResult) string {
	var sb strings.Builder
	for _, c := range res.Content {
		if tc, ok := mcp.AsTextContent(c); ok {
			sb.WriteString(tc.Text)
		}
	}
	return sb.String()
}

func TestListTools(t *testing.T) {
	c, _ := newTestClient(t)

	res, err := c.ListTools(context.Background(), mcp.ListToolsRequest{})
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}
	names := make(map[string]bool)
	for _, tool := range res.Tools {
		names[tool.Name] = true
	}
	for _, want := range []string{"sandbox_create", "sandbox_delete", "sandbox_exec", "file_read", "file_write"} {
		if !names[want] {
			t.Errorf("tool %s not listed; got %v", want, names)
		}
	}
}

func TestCallTool_ExecInSandbox(t *testing.T) {
	c, provider := newTestClient(t)

	sandboxes, _ := provider.List(context.Background())
	if len(sandboxes) != 0 {
		t.Fatalf("expected no sandboxes, got %d", len(sandboxes))
	}

	res := call(t, c, "sandbox_create", map[string]any{"name": "mcp"})
	if res.IsError {
		t.Fatalf("sandbox_create failed: %s", text(res))
	}
	sandboxes, _ = provider.List(context.Background())
	if len(sandboxes) != 1 {
		t.Fatalf("sandboxes = %d, want 1", len(sandboxes))
	}
	id := sandboxes[0].ID

	res = call(t, c, "sandbox_exec", map[string]any{
		"sandbox_id": id,
		"args":       []any{"echo", "hello from mcp"},
	})
	if res.IsError {
		t.Fatalf("sandbox_exec failed: %s", text(res))
	}
	if !strings.Contains(text(res), "hello from mcp") {
		t.Errorf("exec output = %q", text(res))
	}
}

func TestCallTool_InvalidParamsIsToolError(t *testing.T) {
	c, _ := newTestClient(t)

	res := call(t, c, "sandbox_exec", map[string]any{})
	if !res.IsError {
		t.Fatalf("expected tool error, got %q", text(res))
	}
	if !strings.Contains(text(res), "invalid parameters") {
		t.Errorf("error text = %q", text(res))
	}
}

func TestCallTool_UnknownSandbox(t *testing.T) {
	c, _ := newTestClient(t)

	res := call(t, c, "file_read", map[string]any{"sandbox_id": "ghost-00000000", "path": "a.txt"})
	if !res.IsError {
		t.Fatalf("expected tool error, got %q", text(res))
	}
}
