package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultStreamKey is the stream relayed datagrams are mirrored to.
const DefaultStreamKey = "txn_events"

// ErrUnavailable is returned by Publish while Redis is marked down.
var ErrUnavailable = errors.New("redis is unavailable")

// MirrorRepository appends relayed datagrams to a capped Redis stream.
// Connectivity is tracked so the relay can skip Redis while it is down
// instead of paying a timeout per datagram.
type MirrorRepository struct {
	client      *redis.Client
	logger      *slog.Logger
	streamKey   string
	maxLen      int64
	isAvailable atomic.Bool
}

// NewMirrorRepository creates a Redis-backed mirror. maxLen caps the stream
// approximately; non-positive means uncapped.
func NewMirrorRepository(ctx context.Context, client *redis.Client, logger *slog.Logger, streamKey string, maxLen int64) *MirrorRepository {
	if streamKey == "" {
		streamKey = DefaultStreamKey
	}
	repo := &MirrorRepository{
		client:    client,
		logger:    logger.With("component", "redis_mirror", "stream", streamKey),
		streamKey: streamKey,
		maxLen:    maxLen,
	}
	if err := client.Ping(ctx).Err(); err != nil {
		repo.logger.Warn("Redis unavailable on startup, mirroring paused", "error", err)
	} else {
		repo.isAvailable.Store(true)
	}
	return repo
}

// Available reports whether Redis was reachable at the last check.
func (r *MirrorRepository) Available() bool {
	return r.isAvailable.Load()
}

// StartHealthCheck pings Redis every interval and flips availability.
func (r *MirrorRepository) StartHealthCheck(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.logger.Info("Starting Redis health check")
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Stopping Redis health check")
			return
		case <-ticker.C:
			r.CheckHealth(ctx)
		}
	}
}

// CheckHealth pings Redis once and updates availability.
func (r *MirrorRepository) CheckHealth(ctx context.Context) {
	if err := r.client.Ping(ctx).Err(); err != nil {
		if r.isAvailable.CompareAndSwap(true, false) {
			r.logger.Error("Redis connection lost", "error", err)
		}
		return
	}
	if r.isAvailable.CompareAndSwap(false, true) {
		r.logger.Info("Redis connection recovered")
	}
}

// Publish appends payload to the stream.
func (r *MirrorRepository) Publish(ctx context.Context, payload []byte) error {
	if !r.isAvailable.Load() {
		return ErrUnavailable
	}

	args := &redis.XAddArgs{
		Stream: r.streamKey,
		Values: map[string]interface{}{"payload": payload},
	}
	if r.maxLen > 0 {
		args.MaxLen = r.maxLen
		args.Approx = true
	}

	if err := r.client.XAdd(ctx, args).Err(); err != nil {
		if isNetworkError(err) && r.isAvailable.CompareAndSwap(true, false) {
			r.logger.Error("Redis connection lost during write", "error", err)
		}
		return fmt.Errorf("failed to XADD to redis stream: %w", err)
	}
	return nil
}

// Length returns the current number of entries in the stream.
func (r *MirrorRepository) Length(ctx context.Context) (int64, error) {
	n, err := r.client.XLen(ctx, r.streamKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to XLEN redis stream: %w", err)
	}
	return n, nil
}

func isNetworkError(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) || errors.Is(err, redis.ErrClosed) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
