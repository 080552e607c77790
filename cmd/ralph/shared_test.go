package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/kz364/ralphinabox/internal/config"
	"github.com/kz364/ralphinabox/internal/sandbox"
	"github.com/kz364/ralphinabox/internal/workspace"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func newTestWorkspace(t *testing.T) *workspace.Workspace {
	t.Helper()
	ws, err := workspace.New(filepath.Join(t.TempDir(), "ws"))
	if err != nil {
		t.Fatal(err)
	}
	return ws
}

func TestNewSandboxProvider_DefaultsToWorkspace(t *testing.T) {
	ws := newTestWorkspace(t)
	cfg := &config.Config{Sandbox: config.SandboxConfig{Backend: config.BackendLocal}}

	p, err := newSandboxProvider(cfg, ws, discardLogger())
	if err != nil {
		t.Fatalf("newSandboxProvider: %v", err)
	}
	local, ok := p.(*sandbox.LocalProvider)
	if !ok {
		t.Fatalf("provider = %T, want *sandbox.LocalProvider", p)
	}
	want, _ := filepath.EvalSymlinks(ws.SandboxDir())
	if got := local.Registry().BaseDir(); got != want {
		t.Errorf("base dir = %q, want %q", got, want)
	}
}

func TestNewSandboxProvider_RemoteFails(t *testing.T) {
	cfg := &config.Config{Sandbox: config.SandboxConfig{
		Backend: config.BackendRemote,
		Remote:  &config.RemoteConfig{APIURL: "https://sandbox.example.com"},
	}}
	if _, err := newSandboxProvider(cfg, newTestWorkspace(t), discardLogger()); err == nil {
		t.Fatal("remote backend must not fall back to local")
	}
}

func TestNewToolRegistry(t *testing.T) {
	reg := newToolRegistry(&config.Config{}, nil, discardLogger())
	want := []string{
		"file_list", "file_mkdirs", "file_read", "file_write",
		"git_status", "git_diff",
		"sandbox_create", "sandbox_delete", "sandbox_exec", "sandbox_list",
	}
	for _, name := range want {
		if reg.Get(name) == nil {
			t.Errorf("tool %s not registered; have %v", name, reg.List())
		}
	}
}

func TestInitShared_CleanKeepsOtherProcessesSandboxes(t *testing.T) {
	base := t.TempDir()
	other, err := sandbox.NewRegistry(base)
	if err != nil {
		t.Fatal(err)
	}
	defer other.Close()
	live, err := other.Create(sandbox.CreateRequest{Name: "busy"})
	if err != nil {
		t.Fatal(err)
	}
	stale := filepath.Join(base, "stale-12345678")
	if err := os.Mkdir(stale, 0o755); err != nil {
		t.Fatal(err)
	}

	cfg := &config.Config{
		Workspace: filepath.Join(t.TempDir(), "ws"),
		Sandbox:   config.SandboxConfig{Backend: config.BackendLocal, BaseDir: base},
	}
	sc, err := initShared(cfg, discardLogger(), true)
	if err != nil {
		t.Fatalf("initShared: %v", err)
	}
	defer sc.Cleanup()

	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Errorf("stale root survived --clean: %v", err)
	}
	if _, err := os.Stat(live.Root); err != nil {
		t.Errorf("live root of another registry removed: %v", err)
	}
}

type cloneRecorder struct {
	sandbox.Provider
	auth *sandbox.Credential
}

func (r *cloneRecorder) GitClone(_ context.Context, _ string, opts sandbox.CloneOptions) error {
	r.auth = opts.Auth
	return nil
}

func TestNewToolRegistry_TokenBoundToGitHost(t *testing.T) {
	cfg := &config.Config{}
	cfg.SCM.GitHub.Token = "ghp-secret"
	rec := &cloneRecorder{}
	reg := newToolRegistry(cfg, rec, discardLogger())

	clone := func(url string) *sandbox.Credential {
		t.Helper()
		rec.auth = nil
		res, err := reg.Call(context.Background(), "git_clone", map[string]any{
			"sandbox_id": "x", "url": url, "repo_path": "repo",
		})
		if err != nil || !res.Success {
			t.Fatalf("git_clone(%s) = %+v, %v", url, res, err)
		}
		return rec.auth
	}
	if auth := clone("https://github.com/org/repo.git"); auth == nil || auth.Token != "ghp-secret" {
		t.Errorf("github.com clone got credential %v, want the token", auth)
	}
	if auth := clone("https://attacker.example/x.git"); auth != nil {
		t.Errorf("foreign host clone got credential %v, want none", auth)
	}
}

func TestGitHost(t *testing.T) {
	tests := map[string]string{
		"":                                 "github.com",
		"https://api.github.com":           "github.com",
		"https://ghe.example.com/api/v3":   "ghe.example.com",
		"https://GHE.Example.com:8443/api": "ghe.example.com",
	}
	for in, want := range tests {
		if got := gitHost(in); got != want {
			t.Errorf("gitHost(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNewLLMClient_SkipsBackendsWithoutKeys(t *testing.T) {
	ws := newTestWorkspace(t)
	profiles := "profiles:\n  coder:\n    litellm_model: openai/gpt-4o\n"
	if err := os.WriteFile(ws.ProfilesPath(), []byte(profiles), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg := &config.Config{LLM: config.LLMConfig{DefaultBackend: "openai"}}

	client, err := newLLMClient(cfg, ws, nil, discardLogger())
	if err != nil {
		t.Fatalf("newLLMClient: %v", err)
	}
	if _, err := client.Resolve("coder"); err != nil {
		t.Errorf("Resolve(coder): %v", err)
	}
}

func TestParsePRNumber(t *testing.T) {
	if n, err := parsePRNumber("42"); err != nil || n != 42 {
		t.Errorf("parsePRNumber(42) = %d, %v", n, err)
	}
	for _, bad := range []string{"", "0", "-1", "abc"} {
		if _, err := parsePRNumber(bad); err == nil {
			t.Errorf("parsePRNumber(%q) should fail", bad)
		}
	}
}

func TestResolveCredentials(t *testing.T) {
	t.Setenv("RALPH_TEST_GITHUB_PAT", "ghp_from_env")
	cfg := &config.Config{
		SCM: config.SCMConfig{GitHub: config.GitHubConfig{Token: "env://RALPH_TEST_GITHUB_PAT"}},
		LLM: config.LLMConfig{OpenAI: config.OpenAIConfig{APIKey: "sk-literal"}},
	}
	if err := resolveCredentials(context.Background(), cfg); err != nil {
		t.Fatalf("resolveCredentials: %v", err)
	}
	if cfg.SCM.GitHub.Token != "ghp_from_env" {
		t.Errorf("github token = %q", cfg.SCM.GitHub.Token)
	}
	if cfg.LLM.OpenAI.APIKey != "sk-literal" {
		t.Errorf("openai key = %q", cfg.LLM.OpenAI.APIKey)
	}

	cfg.LLM.Anthropic.APIKey = "vault://secret/data/ralph#anthropic"
	if err := resolveCredentials(context.Background(), cfg); err == nil {
		t.Error("vault reference without vault config should fail")
	}
}
