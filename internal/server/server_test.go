package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kz364/ralphinabox/internal/observability"
	"github.com/kz364/ralphinabox/internal/sandbox"
)

func do(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealth(t *testing.T) {
	s := New(Config{}, nil, nil)
	for _, path := range []string{"/health", "/healthz"} {
		rec := do(t, s.Handler(), path)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s status = %d, want 200", path, rec.Code)
		}
		var body HealthResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("%s body %q: %v", path, rec.Body.String(), err)
		}
		if body.Status != "ok" {
			t.Errorf("%s status = %q, want ok", path, body.Status)
		}
	}
}

func TestReadiness(t *testing.T) {
	hc := observability.NewHealthChecker(nil)
	healthy := true
	hc.AddCheck("base_dir", func(ctx context.Context) error {
		if healthy {
			return nil
		}
		return errors.New("read-only file system")
	})
	s := New(Config{HealthChecker: hc}, nil, nil)

	if rec := do(t, s.Handler(), "/readyz"); rec.Code != http.StatusOK {
		t.Errorf("ready status = %d, want 200", rec.Code)
	}

	healthy = false
	rec := do(t, s.Handler(), "/readyz")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("degraded status = %d, want 503", rec.Code)
	}
	var status observability.HealthStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatal(err)
	}
	if status.Status != "degraded" || status.Checks["base_dir"].Status != "fail" {
		t.Errorf("status = %+v", status)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	metrics := observability.NewMetricsCollector()
	s := New(Config{Metrics: metrics, MetricsRegistry: metrics.Registry}, nil, nil)

	do(t, s.Handler(), "/health")
	rec := do(t, s.Handler(), "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "ralph_http_requests_total") {
		t.Errorf("metrics output missing http counter:\n%s", rec.Body.String())
	}
}

func TestMetricsNotMountedWhenDisabled(t *testing.T) {
	s := New(Config{}, nil, nil)
	if rec := do(t, s.Handler(), "/metrics"); rec.Code == http.StatusOK {
		t.Errorf("metrics status = %d, want not found", rec.Code)
	}
}

func TestSandboxList(t *testing.T) {
	p, err := sandbox.NewLocalProvider(sandbox.LocalConfig{BaseDir: t.TempDir()}, nil)
	if err != nil {
		t.Fatal(err)
	}
	sb, err := p.Create(context.Background(), sandbox.CreateRequest{Name: "listed", Labels: map[string]string{"run": "1"}})
	if err != nil {
		t.Fatal(err)
	}

	s := New(Config{}, p, nil)
	rec := do(t, s.Handler(), "/v1/sandboxes")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var list []SandboxResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].ID != sb.ID || list[0].Labels["run"] != "1" {
		t.Errorf("list = %+v", list)
	}
}
