package observability

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/kz364/ralphinabox/internal/config"
)

// AnomalyDetector warns when an operation's error rate over a sliding
// window exceeds the configured threshold.
type AnomalyDetector struct {
	mu            sync.Mutex
	errorCounts   map[string]*slidingWindow
	successCounts map[string]*slidingWindow
	cfg           *config.AnomalyConfig
	logger        *slog.Logger
}

type slidingWindow struct {
	entries []windowEntry
	window  time.Duration
}

type windowEntry struct {
	timestamp time.Time
	value     float64
}

// NewAnomalyDetector creates an anomaly detector from config.
func NewAnomalyDetector(cfg *config.AnomalyConfig, logger *slog.Logger) *AnomalyDetector {
	return &AnomalyDetector{
		errorCounts:   make(map[string]*slidingWindow),
		successCounts: make(map[string]*slidingWindow),
		cfg:           cfg,
		logger:        logger,
	}
}

func (a *AnomalyDetector) windowDuration() time.Duration {
	secs := a.cfg.WindowSeconds
	if secs <= 0 {
		secs = 300
	}
	return time.Duration(secs) * time.Second
}

// RecordError records a failed operation for anomaly tracking.
func (a *AnomalyDetector) RecordError(operation string) {
	if a == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	w := a.getOrCreateWindow(a.errorCounts, operation)
	w.add(1)
	a.checkErrorRate(operation)
}

// RecordSuccess records a successful operation.
func (a *AnomalyDetector) RecordSuccess(operation string) {
	if a == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	w := a.getOrCreateWindow(a.successCounts, operation)
	w.add(1)
}

// ErrorRate returns the error rate of operation within the window and the
// number of samples it is based on.
func (a *AnomalyDetector) ErrorRate(operation string) (rate float64, samples int) {
	if a == nil {
		return 0, 0
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.errorRate(operation)
}

// Elevated lists the operations whose error rate is above the threshold.
// Used as a readiness signal.
func (a *AnomalyDetector) Elevated() []string {
	if a == nil || a.cfg.ErrorRateThreshold <= 0 {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	var ops []string
	for op := range a.errorCounts {
		if rate, n := a.errorRate(op); n >= minSamples && rate > a.cfg.ErrorRateThreshold {
			ops = append(ops, op)
		}
	}
	sort.Strings(ops)
	return ops
}

// minSamples is the smallest window that yields a meaningful rate.
const minSamples = 5

// errorRate must be called with a.mu held.
func (a *AnomalyDetector) errorRate(operation string) (float64, int) {
	errs := a.getOrCreateWindow(a.errorCounts, operation).sum()
	total := errs + a.getOrCreateWindow(a.successCounts, operation).sum()
	if total == 0 {
		return 0, 0
	}
	return errs / total, int(total)
}

// checkErrorRate must be called with a.mu held.
func (a *AnomalyDetector) checkErrorRate(operation string) {
	threshold := a.cfg.ErrorRateThreshold
	if threshold <= 0 || a.logger == nil {
		return
	}
	rate, total := a.errorRate(operation)
	if total < minSamples || rate <= threshold {
		return
	}
	a.logger.Warn("sandbox operation error rate above threshold",
		slog.String("operation", operation),
		slog.Float64("error_rate", rate),
		slog.Float64("threshold", threshold),
		slog.Int("samples", total),
	)
}

func (a *AnomalyDetector) getOrCreateWindow(m map[string]*slidingWindow, key string) *slidingWindow {
	w, ok := m[key]
	if !ok {
		w = &slidingWindow{window: a.windowDuration()}
		m[key] = w
	}
	return w
}

// add appends a value and prunes expired entries.
func (w *slidingWindow) add(value float64) {
	now := time.Now()
	w.entries = append(w.entries, windowEntry{timestamp: now, value: value})
	w.prune(now)
}

// sum returns the total value within the window.
func (w *slidingWindow) sum() float64 {
	w.prune(time.Now())
	var total float64
	for _, e := range w.entries {
		total += e.value
	}
	return total
}

// prune removes entries older than the window duration.
func (w *slidingWindow) prune(now time.Time) {
	cutoff := now.Add(-w.window)
	i := 0
	for i < len(w.entries) && w.entries[i].timestamp.Before(cutoff) {
		i++
	}
	if i > 0 {
		w.entries = w.entries[i:]
	}
}
