package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "github.com/lib/pq" // Keep for postgres driver
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/V4T54L/txn-watch/internal/adapter/api"
	"github.com/V4T54L/txn-watch/internal/adapter/api/handler"
	"github.com/V4T54L/txn-watch/internal/adapter/metrics"
	"github.com/V4T54L/txn-watch/internal/adapter/notifier"
	"github.com/V4T54L/txn-watch/internal/adapter/repository/postgres"
	"github.com/V4T54L/txn-watch/internal/adapter/stream"
	"github.com/V4T54L/txn-watch/internal/domain"
	"github.com/V4T54L/txn-watch/internal/pkg/config"
	"github.com/V4T54L/txn-watch/internal/pkg/logger"
	"github.com/V4T54L/txn-watch/internal/usecase"
)

func main() {
	cfg, err := config.LoadMonitor()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	streamURL := flag.String("stream-url", cfg.StreamURL, "WebSocket URL of the event stream (overrides STREAM_URL)")
	flag.Parse()
	cfg.StreamURL = *streamURL

	logger := logger.New(cfg.LogLevel)
	slog.SetDefault(logger)

	m := metrics.NewMonitorMetrics(prometheus.DefaultRegisterer)

	// --- Start Metrics Server ---
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{
		Addr:    cfg.MetricsAddr,
		Handler: metricsMux,
	}
	go func() {
		logger.Info("starting metrics server", "addr", metricsServer.Addr)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server failed", "error", err)
		}
	}()

	// --- Graceful Shutdown Context ---
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup

	// --- Optional Archive ---
	var archiver usecase.Archiver
	if cfg.PostgresURL != "" {
		db, err := sql.Open("postgres", cfg.PostgresURL)
		if err != nil {
			logger.Error("failed to open postgres connection", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		repo := postgres.NewArchiveRepository(db, logger)
		if err := repo.EnsureSchema(ctx); err != nil {
			logger.Warn("archive schema check failed, writes will be retried per batch", "error", err)
		}
		archive := usecase.NewArchiveTransactionsUseCase(repo, logger, m, cfg.ArchiveBatchSize, cfg.ArchiveFlushInterval, 3, time.Second)
		archiver = archive

		wg.Add(1)
		go func() {
			defer wg.Done()
			archive.Run(ctx)
		}()
		logger.Info("transaction archive enabled")
	}

	var alerts domain.Notifier
	if cfg.AlertThreshold > 0 {
		alerts = notifier.NewLogNotifier(logger)
	}

	// --- Monitor ---
	monitor := usecase.NewMonitorUseCase(usecase.MonitorOptions{
		HistoryLimit:          cfg.HistoryLimit,
		RateWindow:            cfg.RateWindow,
		AutoRemove:            cfg.AutoRemove,
		LingerSeconds:         cfg.LingerSeconds,
		AlertThresholdSeconds: cfg.AlertThreshold,
	}, logger, m, archiver, alerts)

	supervisor := stream.NewSupervisor(stream.WebSocketDialer{Timeout: cfg.DialTimeout}, cfg.StreamURL, monitor.HandlePayload, logger, m)
	monitor.SetConnectionReporter(supervisor)
	supervisor.Connect(ctx)

	sweeper := monitor.Sweeper(cfg.SweepInterval)
	wg.Add(1)
	go func() {
		defer wg.Done()
		sweeper.Run(ctx)
	}()

	// --- HTTP API ---
	sseBroker := handler.NewSSEBroker(ctx, monitor, logger, time.Second, 0)
	router := api.NewRouter(logger, handler.NewMonitorHandler(monitor, supervisor, logger), sseBroker)
	httpServer := &http.Server{
		Addr:        cfg.HTTPAddr,
		Handler:     router,
		ReadTimeout: 5 * time.Second,
		// No WriteTimeout: /events responses stay open.
		IdleTimeout: 60 * time.Second,
		// Open /events streams end when the shutdown signal arrives.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	go func() {
		logger.Info("starting http server", "addr", httpServer.Addr, "stream_url", cfg.StreamURL)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", "error", err)
			stop() // Trigger shutdown on server error
		}
	}()

	// --- Wait for shutdown signal ---
	<-ctx.Done()
	logger.Info("shutting down...")

	supervisor.Teardown()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", "error", err)
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown failed", "error", err)
	}

	wg.Wait()
	logger.Info("monitor shut down gracefully")
}
