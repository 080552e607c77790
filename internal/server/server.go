// Package server exposes liveness, readiness, metrics and a read-only
// sandbox listing over HTTP.
package server

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/jkaninda/okapi"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/trace"

	"github.com/kz364/ralphinabox/internal/observability"
	"github.com/kz364/ralphinabox/internal/sandbox"
)

// Config configures the HTTP server.
type Config struct {
	ListenAddr      string // e.g., ":8080"
	HealthChecker   *observability.HealthChecker
	Metrics         *observability.MetricsCollector
	MetricsRegistry *prometheus.Registry // nil = /metrics not mounted
	MetricsPath     string               // Default: "/metrics"
	Tracer          trace.Tracer
}

// Server is the okapi-backed HTTP surface.
type Server struct {
	config   Config
	provider sandbox.Provider
	logger   *slog.Logger
	okapi    *okapi.Okapi
	server   *http.Server
}

// ErrorBody is the JSON error response.
type ErrorBody struct {
	Error string `json:"error"`
}

// HealthResponse is the liveness payload.
type HealthResponse struct {
	Status string `json:"status"`
}

// SandboxResponse describes a live sandbox.
type SandboxResponse struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Root      string            `json:"root"`
	Resources sandbox.Resources `json:"resources"`
	Labels    map[string]string `json:"labels,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// New creates a server. provider may be nil, in which case the sandbox
// listing is not mounted.
func New(cfg Config, provider sandbox.Provider, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Server{
		config:   cfg,
		provider: provider,
		logger:   logger,
		okapi:    okapi.New(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	if s.config.Metrics != nil || s.config.Tracer != nil {
		s.okapi.UseMiddleware(func(next http.Handler) http.Handler {
			return observability.HTTPMetricsMiddleware(s.config.Metrics, s.config.Tracer, next)
		})
	}

	s.okapi.Get("/health", s.handleHealth,
		okapi.DocSummary("Liveness check"),
		okapi.DocTags("Health"),
		okapi.DocResponse(HealthResponse{}),
	)
	s.okapi.Get("/healthz", s.handleHealth)
	s.okapi.Get("/readyz", s.handleReadiness,
		okapi.DocSummary("Readiness check"),
		okapi.DocTags("Health"),
		okapi.DocResponse(observability.HealthStatus{}),
		okapi.DocResponse(http.StatusServiceUnavailable, observability.HealthStatus{}),
	)

	if s.provider != nil {
		s.okapi.Get("/v1/sandboxes", s.handleSandboxList,
			okapi.DocSummary("List live sandboxes owned by this process"),
			okapi.DocTags("Sandboxes"),
			okapi.DocResponse([]SandboxResponse{}),
		)
	}

	if s.config.MetricsRegistry != nil {
		path := s.config.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		s.okapi.HandleStd("GET", path, promhttp.HandlerFor(s.config.MetricsRegistry, promhttp.HandlerOpts{}).ServeHTTP)
	}
}

// Handler returns the root handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.okapi
}

// Start launches the HTTP server and blocks until it exits.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              s.config.ListenAddr,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	s.logger.Info("http server starting", slog.String("addr", s.config.ListenAddr))
	return s.okapi.StartServer(s.server)
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(_ context.Context) error {
	if s.server == nil {
		return nil
	}
	s.logger.Info("http server stopping")
	return s.okapi.Shutdown(s.server)
}

// --- Handlers ---

func (s *Server) handleHealth(c *okapi.Context) error {
	return c.OK(&HealthResponse{Status: "ok"})
}

// handleReadiness checks all registered dependencies and returns 200 or 503.
func (s *Server) handleReadiness(c *okapi.Context) error {
	if s.config.HealthChecker == nil {
		return c.OK(&HealthResponse{Status: "ok"})
	}

	status := s.config.HealthChecker.CheckReady(c.Context())
	code := http.StatusOK
	if status.Status != "ok" {
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, status)
}

func (s *Server) handleSandboxList(c *okapi.Context) error {
	list, err := s.provider.List(c.Context())
	if err != nil {
		s.logger.Error("listing sandboxes", slog.String("error", err.Error()))
		return c.JSON(http.StatusInternalServerError, &ErrorBody{Error: "failed to list sandboxes"})
	}
	out := make([]SandboxResponse, 0, len(list))
	for _, sb := range list {
		out = append(out, SandboxResponse{
			ID:        sb.ID,
			Name:      sb.Name,
			Root:      sb.Root,
			Resources: sb.Resources,
			Labels:    sb.Labels,
			CreatedAt: sb.CreatedAt,
		})
	}
	return c.OK(out)
}
