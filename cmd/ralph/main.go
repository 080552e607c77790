// Ralph runs coding-agent sandboxes on the local machine.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/kz364/ralphinabox/internal/config"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "ralph",
	Short: "Ralph: sandbox execution provider for coding agents.",
	Long: `Ralph creates isolated working directories for coding agents, runs commands
and git operations inside them, and exposes those operations as tools over
MCP. It also talks to GitHub and to completion backends on the agent's behalf.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultConfigPath(), "path to config file")
	rootCmd.AddCommand(serveCmd, mcpCmd, scmCmd, completeCmd, versionCmd)
	_ = godotenv.Load()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}
