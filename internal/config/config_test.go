package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"RALPH_WORKSPACE", "RALPH_SANDBOX_BACKEND", "GITHUB_PAT", "GITHUB_TOKEN", "OPENAI_API_KEY", "ANTHROPIC_API_KEY"} {
		t.Setenv(k, "")
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_MissingFileYieldsDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Sandbox.Backend != BackendLocal {
		t.Errorf("backend = %q, want local", cfg.Sandbox.Backend)
	}
	if cfg.Sandbox.DefaultTimeout() != 10*time.Minute {
		t.Errorf("default timeout = %v", cfg.Sandbox.DefaultTimeout())
	}
	if cfg.Sandbox.GitTimeout() != cfg.Sandbox.DefaultTimeout() {
		t.Errorf("git timeout = %v, want default timeout", cfg.Sandbox.GitTimeout())
	}
	if cfg.ListenAddr() != ":8080" {
		t.Errorf("listen addr = %q", cfg.ListenAddr())
	}
	if cfg.LLM.DefaultBackend != "openai" {
		t.Errorf("default backend = %q", cfg.LLM.DefaultBackend)
	}
	if cfg.MetricsEnabled() {
		t.Error("metrics should be off by default")
	}
	if cfg.JanitorSchedule() != "*/30 * * * *" {
		t.Errorf("janitor schedule = %q", cfg.JanitorSchedule())
	}
}

func TestLoad_YAML(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "ralph.yaml", `
workspace: /srv/ralph
sandbox:
  base_dir: /srv/ralph/boxes
  default_timeout_seconds: 30
  git_timeout_seconds: 120
  max_output_bytes: 1048576
  git_author:
    name: Bot
    email: bot@example.com
server:
  listen_addr: 127.0.0.1:9000
llm:
  default_backend: ollama
  ollama:
    base_url: http://gpu:11434
janitor:
  enabled: true
  schedule: "0 * * * *"
observability:
  metrics:
    enabled: true
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Workspace != "/srv/ralph" || cfg.Sandbox.BaseDir != "/srv/ralph/boxes" {
		t.Errorf("paths = %q, %q", cfg.Workspace, cfg.Sandbox.BaseDir)
	}
	if cfg.Sandbox.DefaultTimeout() != 30*time.Second || cfg.Sandbox.GitTimeout() != 2*time.Minute {
		t.Errorf("timeouts = %v, %v", cfg.Sandbox.DefaultTimeout(), cfg.Sandbox.GitTimeout())
	}
	if cfg.Sandbox.GitAuthor.Name != "Bot" {
		t.Errorf("git author = %+v", cfg.Sandbox.GitAuthor)
	}
	if cfg.ListenAddr() != "127.0.0.1:9000" {
		t.Errorf("listen addr = %q", cfg.ListenAddr())
	}
	if cfg.LLM.Ollama == nil || cfg.LLM.Ollama.BaseURL != "http://gpu:11434" {
		t.Errorf("ollama = %+v", cfg.LLM.Ollama)
	}
	if !cfg.MetricsEnabled() || cfg.JanitorSchedule() != "0 * * * *" {
		t.Errorf("metrics = %v, schedule = %q", cfg.MetricsEnabled(), cfg.JanitorSchedule())
	}
}

func TestLoad_JSON(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "ralph.json", `{"sandbox":{"max_output_bytes":64},"scm":{"github":{"token":"file-token"}}}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Sandbox.MaxOutputBytes != 64 || cfg.SCM.GitHub.Token != "file-token" {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("RALPH_WORKSPACE", "/env/ws")
	t.Setenv("GITHUB_TOKEN", "from-token")
	t.Setenv("GITHUB_PAT", "from-pat")
	t.Setenv("OPENAI_API_KEY", "sk-env")
	t.Setenv("ANTHROPIC_API_KEY", "ant-env")

	path := writeFile(t, "ralph.yaml", "workspace: /file/ws\nscm:\n  github:\n    token: file\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Workspace != "/env/ws" {
		t.Errorf("workspace = %q", cfg.Workspace)
	}
	if cfg.SCM.GitHub.Token != "from-pat" {
		t.Errorf("token = %q, want GITHUB_PAT to win", cfg.SCM.GitHub.Token)
	}
	if cfg.LLM.OpenAI.APIKey != "sk-env" || cfg.LLM.Anthropic.APIKey != "ant-env" {
		t.Errorf("llm keys = %q, %q", cfg.LLM.OpenAI.APIKey, cfg.LLM.Anthropic.APIKey)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := map[string]struct {
		content string
		env     string
		want    string
	}{
		"unknown backend":     {content: "sandbox:\n  backend: docker\n", want: "sandbox.backend"},
		"remote without url":  {content: "", env: "remote", want: "sandbox.remote.api_url"},
		"negative timeout":    {content: "sandbox:\n  default_timeout_seconds: -1\n", want: "default_timeout_seconds"},
		"unknown llm backend": {content: "llm:\n  default_backend: gemini\n", want: "llm.default_backend"},
		"tracing endpoint":    {content: "observability:\n  tracing:\n    enabled: true\n", want: "tracing.endpoint"},
		"malformed yaml":      {content: "sandbox: [", want: "parsing YAML"},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			clearEnv(t)
			if tt.env != "" {
				t.Setenv("RALPH_SANDBOX_BACKEND", tt.env)
			}
			_, err := Load(writeFile(t, "ralph.yaml", tt.content))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Load error = %v, want mention of %q", err, tt.want)
			}
		})
	}
}
