package sandbox

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// GitBackend is the part of a provider the git layer runs on. Every git
// invocation goes through Exec, so it shares the containment and timeout
// handling of ordinary commands.
type GitBackend interface {
	Exec(ctx context.Context, id string, req ExecRequest) (*ExecResult, error)
	Mkdirs(ctx context.Context, id, path string) error
	ResolvePath(ctx context.Context, id, path string) (string, error)
}

// GitIdentity is the author and committer recorded on commits.
type GitIdentity struct {
	Name  string `json:"name" yaml:"name"`
	Email string `json:"email" yaml:"email"`
}

// DefaultGitIdentity is used when no identity is configured.
var DefaultGitIdentity = GitIdentity{Name: "Ralph Sandbox", Email: "ralph@localhost"}

// Git implements clone, status, diff, branch, commit and push as sequences
// of git commands. Any non-zero exit is returned as a *GitCommandError.
type Git struct {
	backend  GitBackend
	identity GitIdentity
	timeout  time.Duration
}

// NewGit creates a git layer over backend. A zero timeout uses the
// backend's default.
func NewGit(backend GitBackend, identity GitIdentity, timeout time.Duration) *Git {
	if identity.Name == "" {
		identity.Name = DefaultGitIdentity.Name
	}
	if identity.Email == "" {
		identity.Email = DefaultGitIdentity.Email
	}
	return &Git{backend: backend, identity: identity, timeout: timeout}
}

// Clone runs git clone [--branch B] -- <url> <dest>, creating the parent of
// dest first. Credentials are only injected into https URLs, and origin is
// reset to the plain URL afterwards so they never stay in .git/config.
func (g *Git) Clone(ctx context.Context, id string, opts CloneOptions) error {
	if opts.URL == "" {
		return fmt.Errorf("%w: clone url is required", ErrInvalidArgument)
	}
	if err := checkRef("branch", opts.Branch, true); err != nil {
		return err
	}

	dest, err := g.backend.ResolvePath(ctx, id, opts.Path)
	if err != nil {
		return err
	}
	root, err := g.backend.ResolvePath(ctx, id, "")
	if err != nil {
		return err
	}
	if dest != root {
		if err := g.backend.Mkdirs(ctx, id, filepath.Dir(dest)); err != nil {
			return err
		}
	}

	args := []string{"clone"}
	if opts.Branch != "" {
		args = append(args, "--branch", opts.Branch)
	}
	cloneURL := InjectCredentials(opts.URL, opts.Auth)
	args = append(args, "--", cloneURL, dest)

	secrets := opts.Auth.secrets()
	if _, err := g.run(ctx, id, "", secrets, args...); err != nil {
		return err
	}
	if cloneURL == opts.URL {
		return nil
	}
	_, err = g.run(ctx, id, opts.Path, secrets, "remote", "set-url", "origin", opts.URL)
	return err
}

// Status returns the raw output of git status --porcelain.
func (g *Git) Status(ctx context.Context, id, path string) (string, error) {
	return g.run(ctx, id, path, nil, "status", "--porcelain")
}

// Diff returns the raw output of git diff for unstaged changes.
func (g *Git) Diff(ctx context.Context, id, path string) (string, error) {
	return g.run(ctx, id, path, nil, "diff", "--no-color")
}

// CheckoutNewBranch creates and switches to a new branch.
func (g *Git) CheckoutNewBranch(ctx context.Context, id, path, branch string) error {
	if err := checkRef("branch", branch, false); err != nil {
		return err
	}
	_, err := g.run(ctx, id, path, nil, "checkout", "-b", branch)
	return err
}

// Commit stages everything, commits with message and returns the new HEAD.
// The identity is passed on the command line so commits work without any
// global git configuration.
func (g *Git) Commit(ctx context.Context, id, path, message string) (string, error) {
	if message == "" {
		return "", fmt.Errorf("%w: commit message is required", ErrInvalidArgument)
	}
	if _, err := g.run(ctx, id, path, nil, "add", "-A"); err != nil {
		return "", err
	}
	if _, err := g.run(ctx, id, path, nil,
		"-c", "user.name="+g.identity.Name,
		"-c", "user.email="+g.identity.Email,
		"-c", "commit.gpgsign=false",
		"commit", "-m", message,
	); err != nil {
		return "", err
	}
	out, err := g.run(ctx, id, path, nil, "rev-parse", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// Push pushes branch to remote. A URL remote gets https credentials
// injected. With credentials, a remote name is first resolved to its URL
// and the injected URL is pushed to; otherwise the name is pushed as-is.
func (g *Git) Push(ctx context.Context, id string, opts PushOptions) error {
	if err := checkRef("remote", opts.Remote, false); err != nil {
		return err
	}
	if err := checkRef("branch", opts.Branch, false); err != nil {
		return err
	}

	target := opts.Remote
	if opts.Auth != nil && !strings.Contains(opts.Remote, "://") {
		if out, err := g.run(ctx, id, opts.Path, nil, "config", "--get", "remote."+opts.Remote+".url"); err == nil {
			target = strings.TrimSpace(out)
		}
	}
	remote := InjectCredentials(target, opts.Auth)
	if remote == target {
		remote = opts.Remote
	}
	_, err := g.run(ctx, id, opts.Path, opts.Auth.secrets(), "push", remote, opts.Branch)
	return err
}

// run executes git with args in dir and returns stdout. secrets are
// scrubbed from the arguments and stderr carried by a GitCommandError.
func (g *Git) run(ctx context.Context, id, dir string, secrets []string, args ...string) (string, error) {
	res, err := g.backend.Exec(ctx, id, ExecRequest{
		Args:    append([]string{"git"}, args...),
		Dir:     dir,
		Env:     map[string]string{"GIT_TERMINAL_PROMPT": "0"},
		Timeout: g.timeout,
	})
	if err != nil {
		return "", err
	}
	if res.ExitCode != 0 || res.TimedOut {
		scrubbed := make([]string, len(args))
		for i, a := range args {
			scrubbed[i] = redact(a, secrets)
		}
		return res.Stdout, &GitCommandError{
			Args:     scrubbed,
			ExitCode: res.ExitCode,
			Stderr:   redact(res.Stderr, secrets),
			TimedOut: res.TimedOut,
		}
	}
	return res.Stdout, nil
}

// checkRef rejects values git would parse as options.
func checkRef(kind, value string, optional bool) error {
	if value == "" {
		if optional {
			return nil
		}
		return fmt.Errorf("%w: %s is required", ErrInvalidArgument, kind)
	}
	if strings.HasPrefix(value, "-") {
		return fmt.Errorf("%w: %s %q must not start with '-'", ErrInvalidArgument, kind, value)
	}
	return nil
}
