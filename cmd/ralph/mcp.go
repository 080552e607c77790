package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kz364/ralphinabox/internal/mcpserver"
)

var mcpDebug bool

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve sandbox tools over MCP on stdin/stdout",
	Long: `Serve the sandbox tool set (sandbox_create, sandbox_exec, file_*, git_*)
to an MCP client over stdio. Sandboxes still live when the client disconnects
are deleted on exit.`,
	RunE: runMCP,
}

func init() {
	mcpCmd.Flags().BoolVar(&mcpDebug, "debug", false, "enable debug logging on stderr")
}

func runMCP(_ *cobra.Command, _ []string) error {
	level := slog.LevelInfo
	if mcpDebug {
		level = slog.LevelDebug
	}
	// stdout carries the protocol; logs go to stderr.
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	sc, err := initShared(cfg, logger, false)
	if err != nil {
		return err
	}
	defer sc.Cleanup()

	srv, err := mcpserver.New(sc.Tools, version, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("serving MCP on stdio", slog.Int("tools", len(sc.Tools.List())))
	if err := srv.Serve(ctx, os.Stdin, os.Stdout); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
