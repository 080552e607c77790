// Package janitor removes sandbox roots that no live sandbox owns.
// Roots leak when a delete fails to remove its tree or when a previous
// process exited without deleting its sandboxes.
package janitor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
)

// DefaultSchedule sweeps every 30 minutes.
const DefaultSchedule = "*/30 * * * *"

// OrphanSource lists directories that are safe to remove.
// *sandbox.Registry satisfies it.
type OrphanSource interface {
	Orphans() ([]string, error)
}

// Janitor sweeps orphaned sandbox roots on a cron schedule.
type Janitor struct {
	source   OrphanSource
	schedule cron.Schedule
	removed  prometheus.Counter
	logger   *slog.Logger

	cron *cron.Cron
}

// New creates a Janitor. removed may be nil when metrics are disabled.
func New(source OrphanSource, schedule string, removed prometheus.Counter, logger *slog.Logger) (*Janitor, error) {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	sched, err := parser.Parse(schedule)
	if err != nil {
		return nil, fmt.Errorf("invalid janitor schedule %q: %w", schedule, err)
	}
	return &Janitor{
		source:   source,
		schedule: sched,
		removed:  removed,
		logger:   logger,
	}, nil
}

// Next returns the first sweep time after from.
func (j *Janitor) Next(from time.Time) time.Time {
	return j.schedule.Next(from)
}

// Start runs a sweep immediately and then on the schedule until ctx is
// cancelled. Returns a stop function that waits for a running sweep.
func (j *Janitor) Start(ctx context.Context) func() {
	ctx, cancel := context.WithCancel(ctx)

	j.cron = cron.New()
	j.cron.Schedule(j.schedule, cron.FuncJob(func() { j.Sweep(ctx) }))
	j.cron.Start()

	go j.Sweep(ctx)

	j.logger.InfoContext(ctx, "sandbox janitor started",
		slog.Time("next_sweep", j.Next(time.Now())),
	)

	return func() {
		cancel()
		<-j.cron.Stop().Done()
		j.logger.Info("sandbox janitor stopped")
	}
}

// Sweep removes every current orphan and returns how many were removed.
// Failures are logged and skipped so one stuck root does not block the rest.
func (j *Janitor) Sweep(ctx context.Context) int {
	orphans, err := j.source.Orphans()
	if err != nil {
		j.logger.ErrorContext(ctx, "listing orphaned sandbox roots failed",
			slog.String("error", err.Error()),
		)
		return 0
	}

	removed := 0
	for _, dir := range orphans {
		if ctx.Err() != nil {
			break
		}
		if err := os.RemoveAll(dir); err != nil {
			j.logger.WarnContext(ctx, "removing orphaned sandbox root failed",
				slog.String("path", dir),
				slog.String("error", err.Error()),
			)
			continue
		}
		removed++
		if j.removed != nil {
			j.removed.Inc()
		}
	}

	if removed > 0 {
		j.logger.InfoContext(ctx, "removed orphaned sandbox roots",
			slog.Int("count", removed),
		)
	}
	return removed
}
