package janitor

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/kz364/ralphinabox/internal/sandbox"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

type staticSource struct {
	dirs []string
	err  error
}

func (s staticSource) Orphans() ([]string, error) { return s.dirs, s.err }

func TestSweep_RemovesOrphansOnly(t *testing.T) {
	reg, err := sandbox.NewRegistry(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	live, err := reg.Create(sandbox.CreateRequest{Name: "live"})
	if err != nil {
		t.Fatal(err)
	}
	stale := filepath.Join(reg.BaseDir(), "stale-12345678")
	if err := os.MkdirAll(filepath.Join(stale, "nested"), 0o755); err != nil {
		t.Fatal(err)
	}

	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "removed_total"})
	j, err := New(reg, "", counter, discardLogger())
	if err != nil {
		t.Fatal(err)
	}

	if n := j.Sweep(context.Background()); n != 1 {
		t.Errorf("Sweep removed %d, want 1", n)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Errorf("orphan still present: %v", err)
	}
	if _, err := os.Stat(live.Root); err != nil {
		t.Errorf("live root removed: %v", err)
	}
	if got := testutil.ToFloat64(counter); got != 1 {
		t.Errorf("removed counter = %v, want 1", got)
	}

	if n := j.Sweep(context.Background()); n != 0 {
		t.Errorf("second Sweep removed %d, want 0", n)
	}
}

func TestSweep_ListingError(t *testing.T) {
	j, err := New(staticSource{err: errors.New("boom")}, "", nil, discardLogger())
	if err != nil {
		t.Fatal(err)
	}
	if n := j.Sweep(context.Background()); n != 0 {
		t.Errorf("Sweep = %d, want 0", n)
	}
}

func TestSweep_CancelledContext(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "orphan")
	if err := os.Mkdir(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	j, err := New(staticSource{dirs: []string{dir}}, "", nil, discardLogger())
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if n := j.Sweep(ctx); n != 0 {
		t.Errorf("Sweep with cancelled context = %d, want 0", n)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Errorf("orphan removed despite cancellation: %v", err)
	}
}

func TestNew_Schedule(t *testing.T) {
	j, err := New(staticSource{}, "0 * * * *", nil, discardLogger())
	if err != nil {
		t.Fatal(err)
	}
	from := time.Date(2026, 1, 1, 10, 15, 0, 0, time.UTC)
	if got, want := j.Next(from), time.Date(2026, 1, 1, 11, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Errorf("Next = %v, want %v", got, want)
	}

	if _, err := New(staticSource{}, "not a schedule", nil, discardLogger()); err == nil {
		t.Error("expected error for invalid schedule")
	}
}

func TestStart_SweepsImmediately(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "orphan")
	if err := os.Mkdir(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	j, err := New(staticSource{dirs: []string{dir}}, "", nil, discardLogger())
	if err != nil {
		t.Fatal(err)
	}
	stop := j.Start(context.Background())
	defer stop()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("orphan not removed by the startup sweep")
}
