package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/kz364/ralphinabox/internal/scm"
)

var scmTimeout int

var scmCmd = &cobra.Command{
	Use:   "scm",
	Short: "Query and update pull requests on the source forge",
}

var scmChecksCmd = &cobra.Command{
	Use:   "checks <owner/repo> <pr-number>",
	Short: "Print the aggregate check state of a pull request",
	Long: `Print success, failure, pending or unknown for the pull request's head
commit. Exits 2 when checks failed and 3 while they are still pending.`,
	Args: cobra.ExactArgs(2),
	RunE: runSCMChecks,
}

var scmDefaultBranchCmd = &cobra.Command{
	Use:   "default-branch <owner/repo>",
	Short: "Print the repository's default branch",
	Args:  cobra.ExactArgs(1),
	RunE:  runSCMDefaultBranch,
}

var scmCommentCmd = &cobra.Command{
	Use:   "comment <owner/repo> <pr-number> <body>",
	Short: "Comment on a pull request",
	Args:  cobra.ExactArgs(3),
	RunE:  runSCMComment,
}

func init() {
	scmCmd.PersistentFlags().IntVar(&scmTimeout, "timeout", 30, "timeout in seconds")
	scmCmd.AddCommand(scmChecksCmd, scmDefaultBranchCmd, scmCommentCmd)
}

// newSCMProvider returns the forge client and a context bounded by --timeout.
func newSCMProvider() (scm.Provider, context.Context, context.CancelFunc, error) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(scmTimeout)*time.Second)
	return newGitHubClient(cfg, logger), ctx, cancel, nil
}

func parsePRNumber(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid pull request number %q", s)
	}
	return n, nil
}

func runSCMChecks(_ *cobra.Command, args []string) error {
	number, err := parsePRNumber(args[1])
	if err != nil {
		return err
	}
	p, ctx, cancel, err := newSCMProvider()
	if err != nil {
		return err
	}
	state, err := p.PullRequestChecks(ctx, args[0], number)
	cancel()
	if err != nil {
		return err
	}
	fmt.Println(state)

	switch state {
	case scm.CheckFailure:
		os.Exit(2)
	case scm.CheckPending:
		os.Exit(3)
	}
	return nil
}

func runSCMDefaultBranch(_ *cobra.Command, args []string) error {
	p, ctx, cancel, err := newSCMProvider()
	if err != nil {
		return err
	}
	defer cancel()

	branch, err := p.DefaultBranch(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Println(branch)
	return nil
}

func runSCMComment(_ *cobra.Command, args []string) error {
	number, err := parsePRNumber(args[1])
	if err != nil {
		return err
	}
	p, ctx, cancel, err := newSCMProvider()
	if err != nil {
		return err
	}
	defer cancel()

	return p.CommentPullRequest(ctx, args[0], number, args[2])
}
