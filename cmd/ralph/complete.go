package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kz364/ralphinabox/internal/llm"
	"github.com/kz364/ralphinabox/internal/observability"
	"github.com/kz364/ralphinabox/internal/tools"
)

var (
	completeProfile   string
	completeMessage   string
	completeSystem    string
	completeWithTools bool
	completeTimeout   int
)

var completeCmd = &cobra.Command{
	Use:   "complete",
	Short: "Send a one-shot completion using a named model profile",
	Long: `Send a single user message to the backend selected by a model profile
and print the reply. The message is read from stdin when -m is not given.

Examples:
  ralph complete --profile planner -m "summarize the failing test output"
  git diff | ralph complete --profile coder --system "review this diff"`,
	RunE: runComplete,
}

func init() {
	completeCmd.Flags().StringVar(&completeProfile, "profile", "", "model profile name (required)")
	completeCmd.Flags().StringVarP(&completeMessage, "message", "m", "", "user message (default: read stdin)")
	completeCmd.Flags().StringVar(&completeSystem, "system", "", "system prompt")
	completeCmd.Flags().BoolVar(&completeWithTools, "with-tools", false, "offer the sandbox tool definitions and print requested tool calls")
	completeCmd.Flags().IntVar(&completeTimeout, "timeout", 300, "timeout in seconds")
	_ = completeCmd.MarkFlagRequired("profile")
}

func runComplete(_ *cobra.Command, _ []string) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ws, err := initWorkspace(cfg)
	if err != nil {
		return fmt.Errorf("initializing workspace: %w", err)
	}
	obs, err := observability.New(cfg.Observability, logger)
	if err != nil {
		return err
	}
	defer obs.Shutdown(context.Background())

	client, err := newLLMClient(cfg, ws, obs, logger)
	if err != nil {
		return err
	}

	message := completeMessage
	if message == "" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("reading stdin: %w", err)
		}
		message = strings.TrimSpace(string(data))
	}
	if message == "" {
		return fmt.Errorf("empty message: pass -m or pipe text on stdin")
	}

	var opts []llm.CompleteOption
	if completeSystem != "" {
		opts = append(opts, llm.WithSystemPrompt(completeSystem))
	}
	if completeWithTools {
		// Definitions only; nothing is executed, so no provider is needed.
		opts = append(opts, llm.WithTools(tools.ToLLMDefinitions(newToolRegistry(cfg, nil, logger))))
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(completeTimeout)*time.Second)
	defer cancel()

	resp, err := client.Complete(ctx, completeProfile, []llm.Message{{Role: llm.RoleUser, Content: message}}, opts...)
	if err != nil {
		return err
	}

	if resp.Content != "" {
		fmt.Println(resp.Content)
	}
	if resp.HasToolUse() {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(resp.ToolCalls); err != nil {
			return err
		}
	}
	return nil
}
