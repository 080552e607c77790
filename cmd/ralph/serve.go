package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/trace"

	"github.com/kz364/ralphinabox/internal/janitor"
	"github.com/kz364/ralphinabox/internal/observability"
	"github.com/kz364/ralphinabox/internal/server"
)

var (
	serveAddr  string
	serveClean bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the health, metrics and sandbox listing HTTP server",
	Long: `Run the HTTP server exposing /health, /healthz, /readyz, /metrics and
/v1/sandboxes. The registry is per process, so /v1/sandboxes lists only
sandboxes this process created. When the janitor is enabled, orphaned
sandbox roots are swept on its cron schedule; roots owned by other running
ralph processes sharing the base dir are left alone.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "port", "", "override HTTP listen address (e.g. :8080)")
	serveCmd.Flags().BoolVar(&serveClean, "clean", false, "sweep orphaned sandbox roots in the base dir before starting")
}

func runServe(_ *cobra.Command, _ []string) error {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serveAddr != "" {
		cfg.Server.ListenAddr = serveAddr
	}

	sc, err := initShared(cfg, logger, serveClean)
	if err != nil {
		return err
	}
	defer sc.Cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	health := sc.Obs.HealthOrNew(logger)
	if sc.Registry != nil {
		health.AddCheck("sandbox_base_dir", observability.DirWritable(sc.Registry.BaseDir()))
	}
	health.AddCheck("git", observability.BinaryOnPath("git"))
	if a := sc.Obs.AnomalyOrNil(); a != nil {
		health.AddCheck("error_rate", observability.ErrorRateNormal(a))
	}

	if cfg.Janitor != nil && cfg.Janitor.Enabled && sc.Registry != nil {
		var removed prometheus.Counter
		if m := sc.Obs.MetricsOrNil(); m != nil {
			removed = m.JanitorRemovedTotal
		}
		j, err := janitor.New(sc.Registry, cfg.JanitorSchedule(), removed, logger)
		if err != nil {
			return err
		}
		stopJanitor := j.Start(ctx)
		defer stopJanitor()
	}

	srvCfg := server.Config{
		ListenAddr:    cfg.ListenAddr(),
		HealthChecker: health,
		Metrics:       sc.Obs.MetricsOrNil(),
	}
	if m := sc.Obs.MetricsOrNil(); m != nil {
		srvCfg.MetricsRegistry = m.Registry
		srvCfg.MetricsPath = cfg.Observability.Metrics.Path
	}
	var tracer trace.Tracer
	if ts := sc.Obs.TracerOrNil(); ts != nil {
		tracer = ts.Tracer()
	}
	srvCfg.Tracer = tracer

	srv := server.New(srvCfg, sc.Provider, logger)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(ctx) }()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		logger.Error("http server shutdown", slog.String("error", err.Error()))
	}
	return nil
}
