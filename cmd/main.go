package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/okian/matchbench/internal/adapters/http/api"
	"github.com/okian/matchbench/internal/adapters/repository"
	app "github.com/okian/matchbench/internal/app"
	"github.com/okian/matchbench/internal/config"
	"github.com/okian/matchbench/internal/report"
	"github.com/okian/matchbench/pkg/logger"
	"github.com/okian/matchbench/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// HTTP server timeout constants.
const (
	readTimeout            = 10 * time.Second
	writeTimeout           = 10 * time.Second
	idleTimeout            = 60 * time.Second
	readHeaderTimeout      = 5 * time.Second
	shutdownTimeout        = 5 * time.Second
	systemMetricsInterval  = 10 * time.Second
	serviceMetricsInterval = 5 * time.Second
)

func main() {
	// We collect our own system metrics on a custom registry.
	prometheus.Unregister(collectors.NewGoCollector())
	prometheus.Unregister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	log := logger.Get()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	if err := run(ctx, cfg, os.Stdout); err != nil {
		log.Error(ctx, "benchmark failed", logger.Error(err))
		stop()
		os.Exit(1)
	}
}

// run executes one batch and writes the report to out. A cancelled batch
// still prints what it gathered.
func run(ctx context.Context, cfg *config.Config, out io.Writer) error {
	log := logger.Get()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Warn(ctx, "failed to close result store", logger.Error(err))
		}
	}()

	svc := app.New(cfg, app.WithStore(store), app.WithLogger(log.Named("service")))

	updaterCtx, cancelUpdaters := context.WithCancel(ctx)
	defer cancelUpdaters()
	go startSystemMetricsUpdater(updaterCtx)
	go startServiceMetricsUpdater(updaterCtx, svc)

	if cfg.Addr != "" {
		srv := newHTTPServer(cfg.Addr, svc, store)
		go func() {
			log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error(ctx, "HTTP server failed", logger.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Error(ctx, "server shutdown failed", logger.Error(err))
			}
		}()
	}

	outcome, err := svc.Run(ctx)
	if outcome == nil {
		return err
	}
	if err != nil && !errors.Is(err, app.ErrCancelled) {
		return err
	}
	if err != nil {
		log.Warn(ctx, "printing partial results", logger.Error(err))
	}

	fmt.Fprintf(out, "batch %s (%s)\n\n", outcome.BatchID, outcome.Plan.Mode)
	if perr := report.New().Print(out, outcome.Table); perr != nil {
		return fmt.Errorf("print report: %w", perr)
	}
	return nil
}

// openStore opens the sqlite result store, or an in-memory one when no file is configured.
func openStore(ctx context.Context, cfg *config.Config) (repository.Store, error) {
	if cfg.ResultsDB == "" {
		return repository.NewMemoryStore(), nil
	}
	store, err := repository.OpenSQLite(ctx, cfg.ResultsDB, repository.WithLogger(logger.Get().Named("repository")))
	if err != nil {
		return nil, fmt.Errorf("open results db %s: %w", cfg.ResultsDB, err)
	}
	return store, nil
}

func newHTTPServer(addr string, svc *app.Service, store repository.Store) *http.Server {
	mux := http.NewServeMux()
	api.NewServer(svc, store).Register(mux)
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}
}

// startSystemMetricsUpdater starts a background goroutine that updates system metrics.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// startServiceMetricsUpdater starts a background goroutine that updates batch metrics.
func startServiceMetricsUpdater(ctx context.Context, svc *app.Service) {
	ticker := time.NewTicker(serviceMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateServiceMetrics(svc)
		}
	}
}

func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())
}

func updateServiceMetrics(svc *app.Service) {
	stats := svc.GetStats()
	if pending, ok := stats["pending"].(int); ok {
		metrics.UpdateQueueSize(pending)
	}
}
