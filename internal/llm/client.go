package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

var (
	ErrUnknownProfile     = errors.New("unknown model profile")
	ErrBackendUnavailable = errors.New("completion backend unavailable")
)

// Client resolves profiles to backends and issues completions.
type Client struct {
	profiles       Profiles
	backends       map[string]Provider
	defaultBackend string
	logger         *slog.Logger
}

// NewClient creates a completion client. backends are keyed by the routing
// prefix used in profile models (e.g. "openai").
func NewClient(profiles Profiles, backends map[string]Provider, defaultBackend string, logger *slog.Logger) *Client {
	if profiles == nil {
		profiles = Profiles{}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Client{
		profiles:       profiles,
		backends:       backends,
		defaultBackend: defaultBackend,
		logger:         logger,
	}
}

// Profiles returns the loaded profiles.
func (c *Client) Profiles() Profiles { return c.profiles }

// Resolve returns the named profile.
func (c *Client) Resolve(name string) (Profile, error) {
	return c.profiles.Get(name)
}

// CompleteOption overrides profile defaults for one call.
type CompleteOption func(*Request)

// WithTemperature overrides the profile temperature.
func WithTemperature(t float64) CompleteOption {
	return func(r *Request) { r.Temperature = &t }
}

// WithMaxTokens overrides the profile output token limit.
func WithMaxTokens(n int) CompleteOption {
	return func(r *Request) { r.MaxTokens = n }
}

// WithSystemPrompt sets the system prompt.
func WithSystemPrompt(s string) CompleteOption {
	return func(r *Request) { r.SystemPrompt = s }
}

// WithTools offers tools to the model.
func WithTools(defs []ToolDefinition) CompleteOption {
	return func(r *Request) { r.Tools = defs }
}

// Complete sends messages using the named profile. It fails with
// ErrUnknownProfile when the profile is absent and ErrBackendUnavailable
// when no backend serves its model.
func (c *Client) Complete(ctx context.Context, profile string, messages []Message, opts ...CompleteOption) (*Response, error) {
	p, err := c.profiles.Get(profile)
	if err != nil {
		return nil, err
	}

	temp := p.EffectiveTemperature()
	req := Request{
		Messages:    messages,
		MaxTokens:   p.EffectiveMaxOutputTokens(),
		Temperature: &temp,
	}
	for _, opt := range opts {
		opt(&req)
	}

	return c.completeWithFallback(ctx, append([]string{p.Model}, p.Fallbacks...), req)
}

// route splits "backend/model" and finds the backend.
func (c *Client) route(model string) (Provider, string, error) {
	backend, name := c.defaultBackend, model
	if prefix, rest, ok := strings.Cut(model, "/"); ok {
		if _, known := c.backends[prefix]; known || isKnownBackend(prefix) {
			backend, name = prefix, rest
		}
	}
	p, ok := c.backends[backend]
	if !ok || p == nil {
		return nil, "", fmt.Errorf("%w: %q for model %q", ErrBackendUnavailable, backend, model)
	}
	return p, name, nil
}

func isKnownBackend(name string) bool {
	switch name {
	case "openai", "anthropic", "ollama":
		return true
	}
	return false
}
