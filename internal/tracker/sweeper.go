package tracker

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/V4T54L/txn-watch/internal/domain"
)

// DefaultSweepInterval is how often the sweeper runs.
const DefaultSweepInterval = 200 * time.Millisecond

// Retention holds the auto-remove settings read by the sweeper on each tick.
// It is safe for concurrent use.
type Retention struct {
	autoRemove atomic.Bool
	linger     atomic.Int64
}

// NewRetention creates retention settings.
func NewRetention(autoRemove bool, lingerSeconds int) *Retention {
	r := &Retention{}
	r.autoRemove.Store(autoRemove)
	r.linger.Store(int64(lingerSeconds))
	return r
}

func (r *Retention) SetAutoRemove(enabled bool) { r.autoRemove.Store(enabled) }
func (r *Retention) AutoRemove() bool           { return r.autoRemove.Load() }
func (r *Retention) SetLingerSeconds(n int)     { r.linger.Store(int64(n)) }
func (r *Retention) LingerSeconds() int         { return int(r.linger.Load()) }

// TickFunc observes each sweep with the transactions it evicted.
type TickFunc func(now time.Time, evicted []domain.Transaction)

// Sweeper periodically evicts expired completed transactions.
type Sweeper struct {
	store     *Store
	retention *Retention
	interval  time.Duration
	onTick    TickFunc
	logger    *slog.Logger
}

// NewSweeper creates a sweeper. onTick may be nil.
func NewSweeper(store *Store, retention *Retention, interval time.Duration, onTick TickFunc, logger *slog.Logger) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Sweeper{
		store:     store,
		retention: retention,
		interval:  interval,
		onTick:    onTick,
		logger:    logger.With("component", "sweeper"),
	}
}

// Run sweeps every interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("retention sweeper started", "interval", s.interval)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("retention sweeper stopped")
			return
		case now := <-ticker.C:
			s.Tick(now)
		}
	}
}

// Tick performs one sweep as of now and returns the evicted transactions.
func (s *Sweeper) Tick(now time.Time) []domain.Transaction {
	evicted := s.store.Sweep(now, s.retention.LingerSeconds(), s.retention.AutoRemove())
	if len(evicted) > 0 {
		s.logger.Debug("evicted completed transactions", "count", len(evicted))
	}
	if s.onTick != nil {
		s.onTick(now, evicted)
	}
	return evicted
}
