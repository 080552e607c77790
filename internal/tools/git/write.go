package git

import (
	"context"
	"log/slog"

	"github.com/kz364/ralphinabox/internal/sandbox"
	"github.com/kz364/ralphinabox/internal/tools"
)

// CloneTool clones a repository into a sandbox.
type CloneTool struct {
	provider sandbox.Provider
	auth     *sandbox.Credential
	logger   *slog.Logger
}

func (t *CloneTool) Name() string { return "git_clone" }
func (t *CloneTool) Description() string {
	return "Clone a repository into a sandbox directory, optionally at a branch"
}
func (t *CloneTool) InputSchema() map[string]any {
	return repoSchema(map[string]any{
		"url":    map[string]any{"type": "string", "description": "Repository URL"},
		"branch": map[string]any{"type": "string", "description": "Branch to check out"},
	}, "url", "repo_path")
}

func (t *CloneTool) Validate(params map[string]any) error {
	if err := validateRepo(params, "url", "repo_path"); err != nil {
		return err
	}
	if _, err := tools.OptionalString(params, "branch"); err != nil {
		return err
	}
	return requireNoLeadingDash(params, "branch")
}

func (t *CloneTool) Execute(ctx context.Context, params map[string]any) (*tools.Result, error) {
	id, _ := tools.RequireString(params, "sandbox_id")
	url, _ := tools.RequireString(params, "url")
	path, _ := tools.RequireString(params, "repo_path")
	branch, _ := tools.OptionalString(params, "branch")

	var auth *sandbox.Credential
	if t.auth.AppliesTo(url) {
		auth = t.auth
	}
	t.logger.InfoContext(ctx, "git_clone executing",
		slog.String("sandbox_id", id),
		slog.String("repo_path", path),
		slog.Bool("authenticated", auth != nil),
	)

	err := t.provider.GitClone(ctx, id, sandbox.CloneOptions{URL: url, Path: path, Branch: branch, Auth: auth})
	return gitResult("cloned into "+path, err, map[string]any{"repo_path": path})
}

// BranchTool creates and checks out a new branch.
type BranchTool struct {
	provider sandbox.Provider
}

func (t *BranchTool) Name() string        { return "git_checkout_new_branch" }
func (t *BranchTool) Description() string { return "Create a new branch and switch to it" }
func (t *BranchTool) InputSchema() map[string]any {
	return repoSchema(map[string]any{
		"branch": map[string]any{"type": "string", "description": "New branch name"},
	}, "branch")
}

func (t *BranchTool) Validate(params map[string]any) error {
	if err := validateRepo(params, "branch"); err != nil {
		return err
	}
	return requireNoLeadingDash(params, "branch")
}

func (t *BranchTool) Execute(ctx context.Context, params map[string]any) (*tools.Result, error) {
	id, _ := tools.RequireString(params, "sandbox_id")
	path, _ := tools.OptionalString(params, "repo_path")
	branch, _ := tools.RequireString(params, "branch")
	err := t.provider.GitCheckoutNewBranch(ctx, id, path, branch)
	return gitResult("switched to new branch "+branch, err, map[string]any{"branch": branch})
}

// CommitTool stages everything and commits.
type CommitTool struct {
	provider sandbox.Provider
	logger   *slog.Logger
}

func (t *CommitTool) Name() string { return "git_commit" }
func (t *CommitTool) Description() string {
	return "Stage all changes and commit them; returns the new commit hash"
}
func (t *CommitTool) InputSchema() map[string]any {
	return repoSchema(map[string]any{
		"message": map[string]any{"type": "string", "description": "Commit message"},
	}, "message")
}
func (t *CommitTool) Validate(params map[string]any) error { return validateRepo(params, "message") }

func (t *CommitTool) Execute(ctx context.Context, params map[string]any) (*tools.Result, error) {
	id, _ := tools.RequireString(params, "sandbox_id")
	path, _ := tools.OptionalString(params, "repo_path")
	message, _ := tools.RequireString(params, "message")

	hash, err := t.provider.GitCommit(ctx, id, path, message)
	if err == nil {
		t.logger.InfoContext(ctx, "git_commit completed",
			slog.String("sandbox_id", id),
			slog.String("commit", hash),
		)
	}
	return gitResult(hash, err, map[string]any{"commit": hash})
}

// PushTool pushes a branch to a remote name or URL.
type PushTool struct {
	provider sandbox.Provider
	auth     *sandbox.Credential
	logger   *slog.Logger
}

func (t *PushTool) Name() string { return "git_push" }
func (t *PushTool) Description() string {
	return "Push a branch to a remote name (e.g. origin) or an https URL"
}
func (t *PushTool) InputSchema() map[string]any {
	return repoSchema(map[string]any{
		"remote": map[string]any{"type": "string", "description": "Remote name or URL; defaults to origin"},
		"branch": map[string]any{"type": "string", "description": "Branch to push"},
	}, "branch")
}

func (t *PushTool) Validate(params map[string]any) error {
	if err := validateRepo(params, "branch"); err != nil {
		return err
	}
	if _, err := tools.OptionalString(params, "remote"); err != nil {
		return err
	}
	if err := requireNoLeadingDash(params, "remote"); err != nil {
		return err
	}
	return requireNoLeadingDash(params, "branch")
}

func (t *PushTool) Execute(ctx context.Context, params map[string]any) (*tools.Result, error) {
	id, _ := tools.RequireString(params, "sandbox_id")
	path, _ := tools.OptionalString(params, "repo_path")
	branch, _ := tools.RequireString(params, "branch")
	remote, _ := tools.OptionalString(params, "remote")
	if remote == "" {
		remote = "origin"
	}

	t.logger.InfoContext(ctx, "git_push executing",
		slog.String("sandbox_id", id),
		slog.String("branch", branch),
	)

	err := t.provider.GitPush(ctx, id, sandbox.PushOptions{Path: path, Remote: remote, Branch: branch, Auth: t.auth})
	return gitResult("pushed "+branch, err, map[string]any{"branch": branch})
}
