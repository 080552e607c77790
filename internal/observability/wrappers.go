package observability

import (
	"context"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/kz364/ralphinabox/internal/llm"
	"github.com/kz364/ralphinabox/internal/sandbox"
	"github.com/kz364/ralphinabox/internal/tools"
)

// --- InstrumentedSandbox ---

// InstrumentedSandbox wraps a sandbox.Provider with metrics, tracing, and
// anomaly detection. Span attributes carry the sandbox id and operation,
// never command arguments or file contents.
type InstrumentedSandbox struct {
	inner   sandbox.Provider
	metrics *MetricsCollector
	tracer  trace.Tracer
	anomaly *AnomalyDetector
}

// NewInstrumentedSandbox wraps a sandbox provider with observability.
func NewInstrumentedSandbox(inner sandbox.Provider, metrics *MetricsCollector, ts *TracerSetup, anomaly *AnomalyDetector) *InstrumentedSandbox {
	var tracer trace.Tracer
	if ts != nil {
		tracer = ts.Tracer()
	}
	return &InstrumentedSandbox{
		inner:   inner,
		metrics: metrics,
		tracer:  tracer,
		anomaly: anomaly,
	}
}

// observe runs fn inside a span and records its outcome.
func (s *InstrumentedSandbox) observe(ctx context.Context, op, id string, fn func(ctx context.Context) error) error {
	ctx, span := startSpan(ctx, s.tracer, "sandbox", op, attribute.String("sandbox.id", id))

	start := time.Now()
	err := fn(ctx)
	duration := time.Since(start).Seconds()
	finishSpan(span, err)

	status := "success"
	if err != nil {
		status = "error"
	}

	if s.metrics != nil {
		s.metrics.SandboxOperationsTotal.WithLabelValues(op, status).Inc()
		s.metrics.SandboxOperationDuration.WithLabelValues(op).Observe(duration)
	}
	if s.anomaly != nil {
		if err != nil {
			s.anomaly.RecordError("sandbox_" + op)
		} else {
			s.anomaly.RecordSuccess("sandbox_" + op)
		}
	}
	return err
}

func (s *InstrumentedSandbox) Create(ctx context.Context, req sandbox.CreateRequest) (*sandbox.Sandbox, error) {
	var sb *sandbox.Sandbox
	err := s.observe(ctx, "create", "", func(ctx context.Context) error {
		var err error
		sb, err = s.inner.Create(ctx, req)
		return err
	})
	if err == nil && s.metrics != nil {
		s.metrics.SandboxesActive.Inc()
	}
	return sb, err
}

func (s *InstrumentedSandbox) Get(ctx context.Context, id string) (*sandbox.Sandbox, error) {
	var sb *sandbox.Sandbox
	err := s.observe(ctx, "get", id, func(ctx context.Context) error {
		var err error
		sb, err = s.inner.Get(ctx, id)
		return err
	})
	return sb, err
}

func (s *InstrumentedSandbox) List(ctx context.Context) ([]*sandbox.Sandbox, error) {
	var out []*sandbox.Sandbox
	err := s.observe(ctx, "list", "", func(ctx context.Context) error {
		var err error
		out, err = s.inner.List(ctx)
		return err
	})
	return out, err
}

func (s *InstrumentedSandbox) Start(ctx context.Context, id string) error {
	return s.observe(ctx, "start", id, func(ctx context.Context) error {
		return s.inner.Start(ctx, id)
	})
}

func (s *InstrumentedSandbox) Stop(ctx context.Context, id string) error {
	return s.observe(ctx, "stop", id, func(ctx context.Context) error {
		return s.inner.Stop(ctx, id)
	})
}

func (s *InstrumentedSandbox) Delete(ctx context.Context, id string) error {
	// A repeated delete succeeds without removing anything, so the gauge
	// only moves for sandboxes that were live.
	_, getErr := s.inner.Get(ctx, id)
	err := s.observe(ctx, "delete", id, func(ctx context.Context) error {
		return s.inner.Delete(ctx, id)
	})
	if err == nil && getErr == nil && s.metrics != nil {
		s.metrics.SandboxesActive.Dec()
	}
	return err
}

func (s *InstrumentedSandbox) Exec(ctx context.Context, id string, req sandbox.ExecRequest) (*sandbox.ExecResult, error) {
	var res *sandbox.ExecResult
	err := s.observe(ctx, "exec", id, func(ctx context.Context) error {
		var err error
		res, err = s.inner.Exec(ctx, id, req)
		if res != nil {
			span := trace.SpanFromContext(ctx)
			span.SetAttributes(
				attribute.Int("sandbox.exit_code", res.ExitCode),
				attribute.Bool("sandbox.timed_out", res.TimedOut),
			)
		}
		return err
	})
	if res != nil && res.TimedOut && s.metrics != nil {
		s.metrics.SandboxExecTimeoutsTotal.Inc()
	}
	return res, err
}

func (s *InstrumentedSandbox) ReadFile(ctx context.Context, id, path string) ([]byte, error) {
	var data []byte
	err := s.observe(ctx, "read_file", id, func(ctx context.Context) error {
		var err error
		data, err = s.inner.ReadFile(ctx, id, path)
		return err
	})
	return data, err
}

func (s *InstrumentedSandbox) WriteFile(ctx context.Context, id, path string, data []byte, opts sandbox.WriteOptions) error {
	return s.observe(ctx, "write_file", id, func(ctx context.Context) error {
		return s.inner.WriteFile(ctx, id, path, data, opts)
	})
}

func (s *InstrumentedSandbox) ListFiles(ctx context.Context, id, path string) ([]sandbox.FileEntry, error) {
	var out []sandbox.FileEntry
	err := s.observe(ctx, "list_files", id, func(ctx context.Context) error {
		var err error
		out, err = s.inner.ListFiles(ctx, id, path)
		return err
	})
	return out, err
}

func (s *InstrumentedSandbox) Mkdirs(ctx context.Context, id, path string) error {
	return s.observe(ctx, "mkdirs", id, func(ctx context.Context) error {
		return s.inner.Mkdirs(ctx, id, path)
	})
}

func (s *InstrumentedSandbox) GitClone(ctx context.Context, id string, opts sandbox.CloneOptions) error {
	return s.observe(ctx, "git_clone", id, func(ctx context.Context) error {
		return s.inner.GitClone(ctx, id, opts)
	})
}

func (s *InstrumentedSandbox) GitStatus(ctx context.Context, id, path string) (string, error) {
	var out string
	err := s.observe(ctx, "git_status", id, func(ctx context.Context) error {
		var err error
		out, err = s.inner.GitStatus(ctx, id, path)
		return err
	})
	return out, err
}

func (s *InstrumentedSandbox) GitDiff(ctx context.Context, id, path string) (string, error) {
	var out string
	err := s.observe(ctx, "git_diff", id, func(ctx context.Context) error {
		var err error
		out, err = s.inner.GitDiff(ctx, id, path)
		return err
	})
	return out, err
}

func (s *InstrumentedSandbox) GitCheckoutNewBranch(ctx context.Context, id, path, branch string) error {
	return s.observe(ctx, "git_checkout_new_branch", id, func(ctx context.Context) error {
		return s.inner.GitCheckoutNewBranch(ctx, id, path, branch)
	})
}

func (s *InstrumentedSandbox) GitCommit(ctx context.Context, id, path, message string) (string, error) {
	var hash string
	err := s.observe(ctx, "git_commit", id, func(ctx context.Context) error {
		var err error
		hash, err = s.inner.GitCommit(ctx, id, path, message)
		return err
	})
	return hash, err
}

func (s *InstrumentedSandbox) GitPush(ctx context.Context, id string, opts sandbox.PushOptions) error {
	return s.observe(ctx, "git_push", id, func(ctx context.Context) error {
		return s.inner.GitPush(ctx, id, opts)
	})
}

func (s *InstrumentedSandbox) PreviewLink(ctx context.Context, id string, port int) (string, error) {
	var link string
	err := s.observe(ctx, "preview_link", id, func(ctx context.Context) error {
		var err error
		link, err = s.inner.PreviewLink(ctx, id, port)
		return err
	})
	return link, err
}

// --- InstrumentedLLM ---

// InstrumentedLLM wraps an llm.Provider with metrics and tracing.
type InstrumentedLLM struct {
	inner   llm.Provider
	metrics *MetricsCollector
	tracer  trace.Tracer
}

// NewInstrumentedLLM wraps a completion backend with observability.
func NewInstrumentedLLM(inner llm.Provider, metrics *MetricsCollector, ts *TracerSetup) *InstrumentedLLM {
	var tracer trace.Tracer
	if ts != nil {
		tracer = ts.Tracer()
	}
	return &InstrumentedLLM{inner: inner, metrics: metrics, tracer: tracer}
}

func (p *InstrumentedLLM) Name() string { return p.inner.Name() }

func (p *InstrumentedLLM) SendMessage(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	provider := p.inner.Name()

	ctx, span := startSpan(ctx, p.tracer, "llm", "send_message",
		attribute.String("llm.provider", provider),
		attribute.String("llm.model", req.Model),
	)

	start := time.Now()
	resp, err := p.inner.SendMessage(ctx, req)
	duration := time.Since(start).Seconds()
	finishSpan(span, err)

	status := "success"
	if err != nil {
		status = "error"
	}

	if p.metrics != nil {
		p.metrics.LLMRequestsTotal.WithLabelValues(provider, req.Model, status).Inc()
		p.metrics.LLMRequestDuration.WithLabelValues(provider, req.Model).Observe(duration)
		if resp != nil {
			p.metrics.LLMTokensUsed.WithLabelValues(provider, req.Model, "input").Add(float64(resp.Usage.InputTokens))
			p.metrics.LLMTokensUsed.WithLabelValues(provider, req.Model, "output").Add(float64(resp.Usage.OutputTokens))
		}
	}

	return resp, err
}

// --- InstrumentedTool ---

// InstrumentedTool records executions of an agent tool.
type InstrumentedTool struct {
	tools.Tool
	metrics *MetricsCollector
}

// InstrumentTools returns a registry whose tools record metrics. With nil
// metrics the registry is returned unchanged.
func InstrumentTools(reg *tools.Registry, metrics *MetricsCollector) *tools.Registry {
	if metrics == nil {
		return reg
	}
	out := tools.NewRegistry()
	for _, t := range reg.All() {
		out.Register(&InstrumentedTool{Tool: t, metrics: metrics})
	}
	return out
}

func (t *InstrumentedTool) Execute(ctx context.Context, params map[string]any) (*tools.Result, error) {
	start := time.Now()
	res, err := t.Tool.Execute(ctx, params)

	status := "success"
	switch {
	case err != nil:
		status = "error"
	case res != nil && !res.Success:
		status = "failure"
	}
	t.metrics.ToolExecutionsTotal.WithLabelValues(t.Name(), status).Inc()
	t.metrics.ToolExecutionDuration.WithLabelValues(t.Name()).Observe(time.Since(start).Seconds())
	return res, err
}

// --- Compile-time interface checks ---

var (
	_ sandbox.Provider = (*InstrumentedSandbox)(nil)
	_ llm.Provider     = (*InstrumentedLLM)(nil)
	_ tools.Tool       = (*InstrumentedTool)(nil)
)

// statusCode returns the HTTP status code as a string for metric labels.
func statusCode(code int) string {
	return strconv.Itoa(code)
}
