// Package mcpserver exposes the sandbox tool registry over the Model Context
// Protocol so external agents can drive sandboxes through stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kz364/ralphinabox/internal/tools"
)

// ServerName is reported to MCP clients during initialization.
const ServerName = "ralph-sandbox"

// Server adapts a tools.Registry into an MCP server.
type Server struct {
	mcp      *server.MCPServer
	registry *tools.Registry
	logger   *slog.Logger
}

// New creates a Server with one MCP tool per registered tool.
func New(reg *tools.Registry, version string, logger *slog.Logger) (*Server, error) {
	s := &Server{
		mcp:      server.NewMCPServer(ServerName, version, server.WithToolCapabilities(false), server.WithRecovery()),
		registry: reg,
		logger:   logger,
	}

	for _, t := range reg.All() {
		schema, err := json.Marshal(t.InputSchema())
		if err != nil {
			return nil, fmt.Errorf("encoding input schema for %s: %w", t.Name(), err)
		}
		s.mcp.AddTool(mcp.NewToolWithRawSchema(t.Name(), t.Description(), schema), s.handler(t.Name()))
	}

	logger.Info("MCP tools registered", slog.Int("count", len(reg.List())))
	return s, nil
}

// MCPServer returns the underlying mcp-go server.
func (s *Server) MCPServer() *server.MCPServer { return s.mcp }

// Serve speaks MCP over the given streams until ctx is cancelled or in is closed.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	return server.NewStdioServer(s.mcp).Listen(ctx, in, out)
}

// handler maps registry failures to MCP tool errors. Protocol errors are
// reserved for transport problems, so a failed tool call is still a result.
func (s *Server) handler(name string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()
		res, err := s.registry.Call(ctx, name, req.GetArguments())
		if err != nil {
			s.logger.WarnContext(ctx, "mcp tool call failed",
				slog.String("tool", name),
				slog.String("error", err.Error()),
			)
			return mcp.NewToolResultError(err.Error()), nil
		}

		s.logger.DebugContext(ctx, "mcp tool call completed",
			slog.String("tool", name),
			slog.Bool("success", res.Success),
			slog.Duration("duration", time.Since(start)),
		)
		if !res.Success {
			return mcp.NewToolResultError(res.Output), nil
		}
		return mcp.NewToolResultText(res.Output), nil
	}
}
