package sandbox

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"
)

const defaultExecTimeout = 10 * time.Minute

// LocalConfig configures the local backend.
type LocalConfig struct {
	// BaseDir holds every sandbox root. Empty = a fresh temp directory.
	BaseDir string

	// BaseEnv is the lowest-precedence exec environment. Nil = the
	// environment of the current process.
	BaseEnv []string

	// DefaultTimeout applies to Exec calls without a timeout.
	DefaultTimeout time.Duration

	// GitTimeout applies to each git invocation. Zero = DefaultTimeout.
	GitTimeout time.Duration

	// MaxOutputBytes caps each captured stream. Zero = unlimited.
	MaxOutputBytes int

	GitIdentity GitIdentity
}

// LocalProvider runs sandboxes as directories on the host with commands
// executed as ordinary child processes. See the package caveats: nothing
// here isolates a command from the rest of the machine.
type LocalProvider struct {
	registry       *Registry
	runner         *Runner
	git            *Git
	defaultTimeout time.Duration
	logger         *slog.Logger
}

var _ Provider = (*LocalProvider)(nil)

// NewLocalProvider creates the local backend.
func NewLocalProvider(cfg LocalConfig, logger *slog.Logger) (*LocalProvider, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	baseDir := cfg.BaseDir
	if baseDir == "" {
		tmp, err := os.MkdirTemp("", "ralph-local-")
		if err != nil {
			return nil, fmt.Errorf("creating sandbox base dir: %w", err)
		}
		baseDir = tmp
	}
	registry, err := NewRegistry(baseDir)
	if err != nil {
		return nil, err
	}

	timeout := cfg.DefaultTimeout
	if timeout == 0 {
		timeout = defaultExecTimeout
	}

	p := &LocalProvider{
		registry: registry,
		runner: &Runner{
			BaseEnv:        cfg.BaseEnv,
			MaxOutputBytes: cfg.MaxOutputBytes,
			Logger:         logger,
		},
		defaultTimeout: timeout,
		logger:         logger,
	}
	p.git = NewGit(p, cfg.GitIdentity, cfg.GitTimeout)
	return p, nil
}

// Registry exposes the identifier registry backing the provider.
func (p *LocalProvider) Registry() *Registry { return p.registry }

// Close releases the provider's owner directory in the base dir. Sandboxes
// not deleted before Close are left for the janitor.
func (p *LocalProvider) Close() error { return p.registry.Close() }

// Create allocates a sandbox and its root directory.
func (p *LocalProvider) Create(_ context.Context, req CreateRequest) (*Sandbox, error) {
	sb, err := p.registry.Create(req)
	if err != nil {
		return nil, err
	}
	p.logger.Info("sandbox created",
		slog.String("sandbox_id", sb.ID),
		slog.String("root", sb.Root),
	)
	return sb, nil
}

func (p *LocalProvider) Get(_ context.Context, id string) (*Sandbox, error) {
	return p.registry.Get(id)
}

func (p *LocalProvider) List(_ context.Context) ([]*Sandbox, error) {
	return p.registry.List(), nil
}

// Start only validates id; local sandboxes have no compute to start.
func (p *LocalProvider) Start(_ context.Context, id string) error {
	_, err := p.registry.Get(id)
	return err
}

// Stop only validates id.
func (p *LocalProvider) Stop(_ context.Context, id string) error {
	_, err := p.registry.Get(id)
	return err
}

func (p *LocalProvider) Delete(_ context.Context, id string) error {
	if err := p.registry.Delete(id); err != nil {
		return err
	}
	p.logger.Info("sandbox deleted", slog.String("sandbox_id", id))
	return nil
}

// ResolvePath maps path to an absolute path inside the sandbox root.
func (p *LocalProvider) ResolvePath(_ context.Context, id, path string) (string, error) {
	sb, err := p.registry.Get(id)
	if err != nil {
		return "", err
	}
	return ResolvePath(sb.Root, path)
}

// Exec runs req.Args with the working directory contained in the sandbox.
// The environment is the provider base, then the sandbox defaults, then
// req.Env.
func (p *LocalProvider) Exec(ctx context.Context, id string, req ExecRequest) (*ExecResult, error) {
	sb, err := p.registry.Get(id)
	if err != nil {
		return nil, err
	}
	dir, err := ResolvePath(sb.Root, req.Dir)
	if err != nil {
		return nil, err
	}

	timeout := req.Timeout
	if timeout == 0 {
		timeout = p.defaultTimeout
	}

	return p.runner.Run(ctx, RunSpec{
		Args:    req.Args,
		Dir:     dir,
		Env:     []map[string]string{sb.Env, req.Env},
		Timeout: timeout,
	})
}

func (p *LocalProvider) GitClone(ctx context.Context, id string, opts CloneOptions) error {
	return p.git.Clone(ctx, id, opts)
}

func (p *LocalProvider) GitStatus(ctx context.Context, id, path string) (string, error) {
	return p.git.Status(ctx, id, path)
}

func (p *LocalProvider) GitDiff(ctx context.Context, id, path string) (string, error) {
	return p.git.Diff(ctx, id, path)
}

func (p *LocalProvider) GitCheckoutNewBranch(ctx context.Context, id, path, branch string) error {
	return p.git.CheckoutNewBranch(ctx, id, path, branch)
}

func (p *LocalProvider) GitCommit(ctx context.Context, id, path, message string) (string, error) {
	return p.git.Commit(ctx, id, path, message)
}

func (p *LocalProvider) GitPush(ctx context.Context, id string, opts PushOptions) error {
	return p.git.Push(ctx, id, opts)
}

// PreviewLink is never available locally; it returns "" for a live id.
func (p *LocalProvider) PreviewLink(_ context.Context, id string, _ int) (string, error) {
	if _, err := p.registry.Get(id); err != nil {
		return "", err
	}
	return "", nil
}
