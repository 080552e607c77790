// Package config handles loading and validating Ralph configuration.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

func init() {
	// Load .env file if it exists
	_ = godotenv.Load()
}

// Sandbox backends.
const (
	BackendLocal  = "local"
	BackendRemote = "remote"
)

// Config is the root configuration for Ralph.
type Config struct {
	Workspace     string               `json:"workspace,omitempty" yaml:"workspace,omitempty"` // Default: ~/.ralph/workspace. Override: RALPH_WORKSPACE env var.
	Sandbox       SandboxConfig        `json:"sandbox" yaml:"sandbox"`
	Server        ServerConfig         `json:"server" yaml:"server"`
	SCM           SCMConfig            `json:"scm" yaml:"scm"`
	LLM           LLMConfig            `json:"llm" yaml:"llm"`
	Janitor       *JanitorConfig       `json:"janitor,omitempty" yaml:"janitor,omitempty"`             // nil = janitor disabled
	Secrets       *SecretsConfig       `json:"secrets,omitempty" yaml:"secrets,omitempty"`             // nil = only env:// references resolve
	Observability *ObservabilityConfig `json:"observability,omitempty" yaml:"observability,omitempty"` // nil = observability disabled
}

// SandboxConfig selects and tunes the sandbox backend.
type SandboxConfig struct {
	Backend               string          `json:"backend" yaml:"backend"`                                 // "local" (default) or "remote". Override: RALPH_SANDBOX_BACKEND.
	BaseDir               string          `json:"base_dir,omitempty" yaml:"base_dir,omitempty"`           // Default: <workspace>/sandbox.
	DefaultTimeoutSeconds int             `json:"default_timeout_seconds" yaml:"default_timeout_seconds"` // Default: 600
	GitTimeoutSeconds     int             `json:"git_timeout_seconds" yaml:"git_timeout_seconds"`         // Default: same as default_timeout_seconds
	MaxOutputBytes        int             `json:"max_output_bytes" yaml:"max_output_bytes"`               // 0 = unlimited
	MaxFileSizeBytes      int64           `json:"max_file_size_bytes" yaml:"max_file_size_bytes"`         // Limit for the file_read tool. 0 = unlimited
	GitAuthor             GitAuthorConfig `json:"git_author" yaml:"git_author"`
	Remote                *RemoteConfig   `json:"remote,omitempty" yaml:"remote,omitempty"`
}

// DefaultTimeout returns the per-command timeout.
func (s SandboxConfig) DefaultTimeout() time.Duration {
	if s.DefaultTimeoutSeconds <= 0 {
		return 10 * time.Minute
	}
	return time.Duration(s.DefaultTimeoutSeconds) * time.Second
}

// GitTimeout returns the timeout applied to each git invocation.
func (s SandboxConfig) GitTimeout() time.Duration {
	if s.GitTimeoutSeconds <= 0 {
		return s.DefaultTimeout()
	}
	return time.Duration(s.GitTimeoutSeconds) * time.Second
}

// GitAuthorConfig is the identity recorded on sandbox commits.
type GitAuthorConfig struct {
	Name  string `json:"name" yaml:"name"`   // Default: "Ralph Sandbox"
	Email string `json:"email" yaml:"email"` // Default: "ralph@localhost"
}

// RemoteConfig configures a hosted sandbox service.
type RemoteConfig struct {
	APIURL string `json:"api_url" yaml:"api_url"`
	APIKey string `json:"api_key" yaml:"api_key"`
	Target string `json:"target" yaml:"target"`
}

// ServerConfig configures the health and metrics HTTP server.
type ServerConfig struct {
	ListenAddr string `json:"listen_addr" yaml:"listen_addr"` // Default: ":8080"
}

// SCMConfig configures source-forge access.
type SCMConfig struct {
	GitHub GitHubConfig `json:"github" yaml:"github"`
}

// GitHubConfig holds GitHub credentials.
type GitHubConfig struct {
	Token   string `json:"token,omitempty" yaml:"token,omitempty"`       // Override: GITHUB_PAT, then GITHUB_TOKEN.
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"` // Default: https://api.github.com
}

// LLMConfig configures completion backends and model profiles.
type LLMConfig struct {
	ProfilesPath   string          `json:"profiles_path,omitempty" yaml:"profiles_path,omitempty"` // Default: <workspace>/models.yaml
	DefaultBackend string          `json:"default_backend" yaml:"default_backend"`                 // Backend for unprefixed models. Default: "openai"
	OpenAI         OpenAIConfig    `json:"openai" yaml:"openai"`
	Anthropic      AnthropicConfig `json:"anthropic" yaml:"anthropic"`
	Ollama         *OllamaConfig   `json:"ollama,omitempty" yaml:"ollama,omitempty"`
}

type OpenAIConfig struct {
	APIKey  string `json:"api_key" yaml:"api_key"`                       // Override: OPENAI_API_KEY env var.
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"` // Optional. For Azure or compatible APIs.
}

type AnthropicConfig struct {
	APIKey  string `json:"api_key" yaml:"api_key"` // Override: ANTHROPIC_API_KEY env var.
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
}

type OllamaConfig struct {
	BaseURL string `json:"base_url" yaml:"base_url"` // Optional. Defaults to http://localhost:11434.
}

// JanitorConfig configures the orphaned sandbox root sweeper.
type JanitorConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	Schedule string `json:"schedule" yaml:"schedule"` // 5-field cron expression. Default: "*/30 * * * *"
}

// SecretsConfig configures resolution of credential references. Any token
// or API key may be written as "env://NAME" or "vault://path#field".
type SecretsConfig struct {
	Vault *VaultConfig `json:"vault,omitempty" yaml:"vault,omitempty"`
}

// VaultConfig configures the HashiCorp Vault KV v2 backend.
type VaultConfig struct {
	Address        string `json:"address" yaml:"address"` // Override: VAULT_ADDR
	Token          string `json:"token" yaml:"token"`     // Override: VAULT_TOKEN
	Namespace      string `json:"namespace,omitempty" yaml:"namespace,omitempty"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty" yaml:"timeout_seconds,omitempty"` // Default: 5
	TLSSkipVerify  bool   `json:"tls_skip_verify,omitempty" yaml:"tls_skip_verify,omitempty"`
}

// ObservabilityConfig configures metrics, tracing, and anomaly detection.
// When nil, all observability features are disabled with zero overhead.
type ObservabilityConfig struct {
	Metrics *MetricsConfig `json:"metrics,omitempty" yaml:"metrics,omitempty"`
	Tracing *TracingConfig `json:"tracing,omitempty" yaml:"tracing,omitempty"`
	Anomaly *AnomalyConfig `json:"anomaly,omitempty" yaml:"anomaly,omitempty"`
}

// MetricsConfig configures Prometheus metrics exposition.
type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Path    string `json:"path" yaml:"path"` // Default: "/metrics"
}

// TracingConfig configures OpenTelemetry distributed tracing.
type TracingConfig struct {
	Enabled     bool    `json:"enabled" yaml:"enabled"`
	Endpoint    string  `json:"endpoint" yaml:"endpoint"`         // OTLP endpoint, e.g. "localhost:4317"
	Protocol    string  `json:"protocol" yaml:"protocol"`         // "grpc" or "http". Default: "grpc"
	ServiceName string  `json:"service_name" yaml:"service_name"` // Default: "ralph"
	SampleRate  float64 `json:"sample_rate" yaml:"sample_rate"`   // 0.0 to 1.0. Default: 1.0
	Insecure    bool    `json:"insecure" yaml:"insecure"`         // Skip TLS for dev
}

// AnomalyConfig configures error-rate warnings for sandbox operations.
type AnomalyConfig struct {
	Enabled            bool    `json:"enabled" yaml:"enabled"`
	ErrorRateThreshold float64 `json:"error_rate_threshold" yaml:"error_rate_threshold"` // e.g. 0.5 = 50% errors
	WindowSeconds      int     `json:"window_seconds" yaml:"window_seconds"`             // Sliding window. Default: 300
}

// DefaultConfigPath returns the default config file path (~/.ralph/config.yaml).
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "ralph.yaml"
	}
	return filepath.Join(home, ".ralph", "config.yaml")
}

// Load reads a JSON or YAML config file and returns a validated Config.
// The format is detected by file extension: .yml/.yaml for YAML, everything else for JSON.
// A missing file is not an error; the local backend runs on defaults.
// Environment variables take precedence over file values.
func Load(path string) (*Config, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return nil, fmt.Errorf("resolving config path %s: %w", path, err)
	}

	var cfg Config
	data, err := os.ReadFile(resolved)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("reading config %s: %w", resolved, err)
	default:
		switch ext := strings.ToLower(filepath.Ext(resolved)); ext {
		case ".yml", ".yaml":
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parsing YAML config %s: %w", resolved, err)
			}
		default:
			if err := json.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parsing JSON config %s: %w", resolved, err)
			}
		}
	}

	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// applyEnv applies environment variable overrides.
func (c *Config) applyEnv() {
	if v := os.Getenv("RALPH_WORKSPACE"); v != "" {
		c.Workspace = v
	}
	if v := os.Getenv("RALPH_SANDBOX_BACKEND"); v != "" {
		c.Sandbox.Backend = v
	}
	// GITHUB_PAT wins over GITHUB_TOKEN.
	if v := os.Getenv("GITHUB_PAT"); v != "" {
		c.SCM.GitHub.Token = v
	} else if v := os.Getenv("GITHUB_TOKEN"); v != "" {
		c.SCM.GitHub.Token = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.LLM.OpenAI.APIKey = v
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		c.LLM.Anthropic.APIKey = v
	}
}

// resolvePath expands ~ to the user home directory and returns an absolute path.
func resolvePath(path string) (string, error) {
	if strings.HasPrefix(path, "~/") || path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		path = filepath.Join(home, path[1:])
	}
	return filepath.Abs(path)
}

// ListenAddr returns the server address.
func (c *Config) ListenAddr() string {
	if c.Server.ListenAddr == "" {
		return ":8080"
	}
	return c.Server.ListenAddr
}

// MetricsEnabled reports whether Prometheus metrics are on.
func (c *Config) MetricsEnabled() bool {
	return c.Observability != nil && c.Observability.Metrics != nil && c.Observability.Metrics.Enabled
}

// JanitorSchedule returns the sweep schedule.
func (c *Config) JanitorSchedule() string {
	if c.Janitor == nil || c.Janitor.Schedule == "" {
		return "*/30 * * * *"
	}
	return c.Janitor.Schedule
}

func (c *Config) validate() error {
	if c.Sandbox.Backend == "" {
		c.Sandbox.Backend = BackendLocal
	}
	switch c.Sandbox.Backend {
	case BackendLocal:
	case BackendRemote:
		if c.Sandbox.Remote == nil || c.Sandbox.Remote.APIURL == "" {
			return fmt.Errorf("sandbox.remote.api_url is required for the remote backend")
		}
	default:
		return fmt.Errorf("sandbox.backend %q is not supported (use local or remote)", c.Sandbox.Backend)
	}
	if c.Sandbox.DefaultTimeoutSeconds < 0 {
		return fmt.Errorf("sandbox.default_timeout_seconds must not be negative")
	}
	if c.Sandbox.GitTimeoutSeconds < 0 {
		return fmt.Errorf("sandbox.git_timeout_seconds must not be negative")
	}
	if c.Sandbox.MaxOutputBytes < 0 {
		return fmt.Errorf("sandbox.max_output_bytes must not be negative")
	}
	if c.Sandbox.MaxFileSizeBytes < 0 {
		return fmt.Errorf("sandbox.max_file_size_bytes must not be negative")
	}

	if c.LLM.DefaultBackend == "" {
		c.LLM.DefaultBackend = "openai"
	}
	switch c.LLM.DefaultBackend {
	case "openai", "anthropic", "ollama":
	default:
		return fmt.Errorf("llm.default_backend %q is not supported (use openai, anthropic, or ollama)", c.LLM.DefaultBackend)
	}

	if o := c.Observability; o != nil && o.Tracing != nil && o.Tracing.Enabled {
		if o.Tracing.Endpoint == "" {
			return fmt.Errorf("observability.tracing.endpoint is required when tracing is enabled")
		}
		switch o.Tracing.Protocol {
		case "", "grpc", "http":
		default:
			return fmt.Errorf("observability.tracing.protocol %q is not supported (use grpc or http)", o.Tracing.Protocol)
		}
	}
	return nil
}
