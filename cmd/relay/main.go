package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/V4T54L/txn-watch/internal/adapter/metrics"
	"github.com/V4T54L/txn-watch/internal/adapter/pii"
	"github.com/V4T54L/txn-watch/internal/adapter/relay"
	redisrepo "github.com/V4T54L/txn-watch/internal/adapter/repository/redis"
	"github.com/V4T54L/txn-watch/internal/domain"
	"github.com/V4T54L/txn-watch/internal/pkg/config"
	"github.com/V4T54L/txn-watch/internal/pkg/logger"
)

func main() {
	cfg, err := config.LoadRelay()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logger.New(cfg.LogLevel)
	slog.SetDefault(logger)

	m := metrics.NewRelayMetrics(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup

	// --- Optional Redis Mirror ---
	var mirror domain.StreamMirror
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer redisClient.Close()

		repo := redisrepo.NewMirrorRepository(ctx, redisClient, logger, cfg.RedisStream, cfg.RedisStreamMaxLen)
		mirror = repo

		wg.Add(1)
		go func() {
			defer wg.Done()
			repo.StartHealthCheck(ctx, 5*time.Second)
		}()
	}

	redactor := pii.NewRedactor(cfg.RedactFieldList(), logger)
	r := relay.New(relay.Options{
		QueueSize:         cfg.ClientQueueSize,
		HeartbeatInterval: cfg.HeartbeatInterval,
		StatsInterval:     cfg.StatsInterval,
	}, redactor, mirror, m, logger)

	udpConn, err := net.ListenPacket("udp", cfg.UDPAddr)
	if err != nil {
		logger.Error("failed to listen on UDP", "addr", cfg.UDPAddr, "error", err)
		os.Exit(1)
	}

	wg.Add(3)
	go func() {
		defer wg.Done()
		if err := r.ServeUDP(ctx, udpConn); err != nil {
			logger.Error("UDP listener failed", "error", err)
			stop()
		}
	}()
	go func() {
		defer wg.Done()
		r.RunMirror(ctx)
	}()
	go func() {
		defer wg.Done()
		r.RunStats(ctx)
	}()

	mux := http.NewServeMux()
	mux.Handle("/", r.Handler())
	wsServer := &http.Server{
		Addr:              cfg.WSAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{
		Addr:    cfg.MetricsAddr,
		Handler: metricsMux,
	}

	go func() {
		logger.Info("starting websocket server", "addr", wsServer.Addr, "udp_addr", cfg.UDPAddr)
		if err := wsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("websocket server failed", "error", err)
			stop()
		}
	}()
	go func() {
		logger.Info("starting metrics server", "addr", metricsServer.Addr)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down relay...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	// Hijacked WebSocket connections are not tracked by Shutdown; they end
	// when the process exits.
	if err := wsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("websocket server shutdown failed", "error", err)
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown failed", "error", err)
	}

	wg.Wait()
	logger.Info("relay shut down gracefully")
}
