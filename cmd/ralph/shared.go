package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	goutils "github.com/jkaninda/go-utils"

	"github.com/kz364/ralphinabox/internal/config"
	"github.com/kz364/ralphinabox/internal/janitor"
	"github.com/kz364/ralphinabox/internal/llm"
	"github.com/kz364/ralphinabox/internal/llm/anthropic"
	"github.com/kz364/ralphinabox/internal/llm/openai"
	"github.com/kz364/ralphinabox/internal/observability"
	"github.com/kz364/ralphinabox/internal/sandbox"
	"github.com/kz364/ralphinabox/internal/scm/github"
	"github.com/kz364/ralphinabox/internal/secrets"
	"github.com/kz364/ralphinabox/internal/tools"
	"github.com/kz364/ralphinabox/internal/tools/file"
	"github.com/kz364/ralphinabox/internal/tools/git"
	"github.com/kz364/ralphinabox/internal/tools/lifecycle"
	"github.com/kz364/ralphinabox/internal/tools/shell"
	"github.com/kz364/ralphinabox/internal/workspace"
)

const defaultOllamaURL = "http://localhost:11434"

// SharedComponents holds the subsystems every long-running command needs.
// Built once by initShared, torn down by Cleanup.
type SharedComponents struct {
	Config    *config.Config
	Logger    *slog.Logger
	Workspace *workspace.Workspace
	Obs       *observability.Observability

	// Provider is the instrumented provider handed to tools and servers.
	Provider sandbox.Provider
	// Registry is non-nil for the local backend.
	Registry *sandbox.Registry
	Tools    *tools.Registry

	cleanups []func()
}

// Cleanup runs all deferred cleanup functions in reverse order.
func (sc *SharedComponents) Cleanup() {
	for i := len(sc.cleanups) - 1; i >= 0; i-- {
		sc.cleanups[i]()
	}
}

func (sc *SharedComponents) addCleanup(fn func()) {
	sc.cleanups = append(sc.cleanups, fn)
}

// loadConfig reads the config named by RALPH_CONFIG or --config and
// resolves credential references in it.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(goutils.Env("RALPH_CONFIG", configPath))
	if err != nil {
		return nil, err
	}
	if err := resolveCredentials(context.Background(), cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// resolveCredentials replaces env:// and vault:// references in the
// credential fields with the secrets they name.
func resolveCredentials(ctx context.Context, cfg *config.Config) error {
	providers := []secrets.Provider{secrets.NewEnvProvider()}
	if cfg.Secrets != nil && cfg.Secrets.Vault != nil {
		vp, err := secrets.NewVaultProvider(*cfg.Secrets.Vault)
		if err != nil {
			return fmt.Errorf("initializing vault: %w", err)
		}
		providers = append(providers, vp)
	}

	fields := map[string]*string{
		"scm.github.token":      &cfg.SCM.GitHub.Token,
		"llm.openai.api_key":    &cfg.LLM.OpenAI.APIKey,
		"llm.anthropic.api_key": &cfg.LLM.Anthropic.APIKey,
	}
	if cfg.Sandbox.Remote != nil {
		fields["sandbox.remote.api_key"] = &cfg.Sandbox.Remote.APIKey
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	return secrets.NewResolver(providers...).ResolveFields(ctx, fields)
}

func initWorkspace(cfg *config.Config) (*workspace.Workspace, error) {
	if cfg.Workspace != "" {
		return workspace.New(cfg.Workspace)
	}
	return workspace.Default()
}

// initShared builds workspace, observability, provider and tools.
// Callers must call sc.Cleanup() when done.
func initShared(cfg *config.Config, logger *slog.Logger, cleanSandbox bool) (*SharedComponents, error) {
	sc := &SharedComponents{
		Config: cfg,
		Logger: logger,
	}

	ws, err := initWorkspace(cfg)
	if err != nil {
		return nil, fmt.Errorf("initializing workspace: %w", err)
	}
	sc.Workspace = ws
	logger.Debug("workspace initialized", slog.String("root", ws.Root))

	obs, err := observability.New(cfg.Observability, logger)
	if err != nil {
		return nil, fmt.Errorf("initializing observability: %w", err)
	}
	sc.Obs = obs
	sc.addCleanup(func() {
		if obs != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			obs.Shutdown(shutdownCtx)
		}
	})

	provider, err := newSandboxProvider(cfg, ws, logger)
	if err != nil {
		sc.Cleanup()
		return nil, fmt.Errorf("initializing sandbox provider: %w", err)
	}
	if local, ok := provider.(*sandbox.LocalProvider); ok {
		sc.Registry = local.Registry()
		sc.addCleanup(func() {
			if err := local.Close(); err != nil {
				logger.Warn("releasing sandbox owner dir", slog.String("error", err.Error()))
			}
		})
		logger.Info("sandbox provider ready",
			slog.String("backend", cfg.Sandbox.Backend),
			slog.String("base_dir", local.Registry().BaseDir()),
			slog.String("owner_dir", local.Registry().OwnerDir()),
		)
		if cleanSandbox {
			j, err := janitor.New(sc.Registry, "", nil, logger)
			if err != nil {
				sc.Cleanup()
				return nil, err
			}
			if n := j.Sweep(context.Background()); n > 0 {
				logger.Info("removed leftover sandbox roots", slog.Int("count", n))
			}
		}
	}
	sc.Provider = obs.WrapSandbox(provider)
	sc.addCleanup(func() { deleteAll(sc.Provider, logger) })

	sc.Tools = observability.InstrumentTools(newToolRegistry(cfg, sc.Provider, logger), obs.MetricsOrNil())
	logger.Debug("tools registered", slog.Any("tools", sc.Tools.List()))

	return sc, nil
}

func newSandboxProvider(cfg *config.Config, ws *workspace.Workspace, logger *slog.Logger) (sandbox.Provider, error) {
	baseDir := cfg.Sandbox.BaseDir
	if baseDir == "" {
		baseDir = ws.SandboxDir()
	}
	opts := sandbox.Options{
		Backend: cfg.Sandbox.Backend,
		Local: sandbox.LocalConfig{
			BaseDir:        baseDir,
			DefaultTimeout: cfg.Sandbox.DefaultTimeout(),
			GitTimeout:     cfg.Sandbox.GitTimeout(),
			MaxOutputBytes: cfg.Sandbox.MaxOutputBytes,
			GitIdentity: sandbox.GitIdentity{
				Name:  cfg.Sandbox.GitAuthor.Name,
				Email: cfg.Sandbox.GitAuthor.Email,
			},
		},
	}
	if r := cfg.Sandbox.Remote; r != nil {
		opts.Remote = sandbox.RemoteConfig{APIURL: r.APIURL, APIKey: r.APIKey, Target: r.Target}
	}
	return sandbox.New(opts, logger)
}

func newToolRegistry(cfg *config.Config, provider sandbox.Provider, logger *slog.Logger) *tools.Registry {
	reg := tools.NewRegistry()
	lifecycle.Register(reg, provider, logger)
	reg.Register(shell.NewTool(provider, logger))
	file.Register(reg, provider, file.Config{MaxFileSizeBytes: cfg.Sandbox.MaxFileSizeBytes}, logger)

	var auth *sandbox.Credential
	if cfg.SCM.GitHub.Token != "" {
		auth = &sandbox.Credential{Token: cfg.SCM.GitHub.Token, Host: gitHost(cfg.SCM.GitHub.BaseURL)}
	}
	git.Register(reg, provider, auth, logger)
	return reg
}

// gitHost returns the git host served by a GitHub API base URL.
// api.github.com and an empty URL map to github.com; an Enterprise API
// URL maps to its own host.
func gitHost(apiBaseURL string) string {
	if apiBaseURL == "" {
		return "github.com"
	}
	u, err := url.Parse(apiBaseURL)
	if err != nil || u.Hostname() == "" {
		return "github.com"
	}
	host := strings.ToLower(u.Hostname())
	if host == "api.github.com" {
		return "github.com"
	}
	return host
}

// deleteAll removes every sandbox the process still holds. The registry is
// in-memory, so anything left behind becomes an orphan.
func deleteAll(p sandbox.Provider, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	sandboxes, err := p.List(ctx)
	if err != nil {
		return
	}
	for _, sb := range sandboxes {
		if err := p.Delete(ctx, sb.ID); err != nil {
			logger.Warn("deleting sandbox on shutdown failed",
				slog.String("sandbox_id", sb.ID),
				slog.String("error", err.Error()),
			)
		}
	}
}

// newLLMClient builds the completion client from config and the profile file.
// Backends without credentials are left out so routing to them fails fast.
func newLLMClient(cfg *config.Config, ws *workspace.Workspace, obs *observability.Observability, logger *slog.Logger) (*llm.Client, error) {
	path := cfg.LLM.ProfilesPath
	if path == "" {
		path = ws.ProfilesPath()
	}
	profiles, err := llm.LoadProfiles(path)
	if err != nil {
		return nil, err
	}

	backends := make(map[string]llm.Provider)
	if cfg.LLM.OpenAI.APIKey != "" {
		backends["openai"] = openai.NewClient(cfg.LLM.OpenAI.APIKey, logger, openai.WithBaseURL(cfg.LLM.OpenAI.BaseURL))
	}
	if cfg.LLM.Anthropic.APIKey != "" {
		backends["anthropic"] = anthropic.NewClient(cfg.LLM.Anthropic.APIKey, logger, anthropic.WithBaseURL(cfg.LLM.Anthropic.BaseURL))
	}
	if cfg.LLM.Ollama != nil {
		backends["ollama"] = openai.NewClient("", logger,
			openai.WithBaseURL(goutils.Env("OLLAMA_BASE_URL", orDefault(cfg.LLM.Ollama.BaseURL, defaultOllamaURL))),
			openai.WithName("ollama"),
		)
	}
	if m, ts := obs.MetricsOrNil(), obs.TracerOrNil(); m != nil || ts != nil {
		for name, b := range backends {
			backends[name] = observability.NewInstrumentedLLM(b, m, ts)
		}
	}

	logger.Debug("llm client initialized",
		slog.Any("profiles", profiles.Names()),
		slog.Int("backends", len(backends)),
	)
	return llm.NewClient(profiles, backends, cfg.LLM.DefaultBackend, logger), nil
}

func newGitHubClient(cfg *config.Config, logger *slog.Logger) *github.Client {
	return github.NewClient(cfg.SCM.GitHub.Token, logger, github.WithBaseURL(cfg.SCM.GitHub.BaseURL))
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
