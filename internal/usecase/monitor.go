package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/V4T54L/txn-watch/internal/adapter/metrics"
	"github.com/V4T54L/txn-watch/internal/domain"
	"github.com/V4T54L/txn-watch/internal/tracker"
)

// ConnectionReporter exposes the inbound connection state for stats.
type ConnectionReporter interface {
	ConnectionState() string
}

// Archiver accepts completed transactions for the archive.
type Archiver interface {
	Enqueue(row domain.ArchivedTransaction)
}

// MonitorOptions tunes the transaction monitor.
type MonitorOptions struct {
	HistoryLimit          int
	RateWindow            time.Duration
	AutoRemove            bool
	LingerSeconds         int
	AlertThresholdSeconds int
}

// MonitorUseCase tracks in-flight transactions from the inbound event stream
// and answers the presentation layer's queries.
type MonitorUseCase struct {
	store     *tracker.Store
	rate      *tracker.RateTracker
	retention *tracker.Retention
	logger    *slog.Logger
	metrics   *metrics.MonitorMetrics
	archiver  Archiver
	notifier  domain.Notifier
	conn      atomic.Pointer[ConnectionReporter]
	paused    atomic.Bool
	now       func() time.Time

	alertThreshold time.Duration
	// alerted is only touched from the sweeper goroutine.
	alerted map[string]struct{}
}

// NewMonitorUseCase creates a monitor. m, archiver and notifier may be nil.
func NewMonitorUseCase(opts MonitorOptions, logger *slog.Logger, m *metrics.MonitorMetrics, archiver Archiver, notifier domain.Notifier) *MonitorUseCase {
	return &MonitorUseCase{
		store:          tracker.NewStore(opts.HistoryLimit),
		rate:           tracker.NewRateTracker(opts.RateWindow),
		retention:      tracker.NewRetention(opts.AutoRemove, opts.LingerSeconds),
		logger:         logger.With("component", "monitor"),
		metrics:        m,
		archiver:       archiver,
		notifier:       notifier,
		now:            time.Now,
		alertThreshold: time.Duration(opts.AlertThresholdSeconds) * time.Second,
		alerted:        make(map[string]struct{}),
	}
}

// SetConnectionReporter attaches the source of the connection state.
func (uc *MonitorUseCase) SetConnectionReporter(r ConnectionReporter) {
	uc.conn.Store(&r)
}

// HandlePayload decodes one raw inbound payload and applies it. Payloads
// received while paused, and payloads that fail to decode, are dropped.
func (uc *MonitorUseCase) HandlePayload(raw []byte) {
	if uc.paused.Load() {
		uc.count(metrics.StatusPaused)
		return
	}

	event, err := DecodeEvent(raw)
	if err != nil {
		uc.logger.Debug("discarding inbound payload", "error", err, "size", len(raw))
		uc.count(metrics.StatusDecodeError)
		return
	}

	now := uc.now()
	res := uc.store.Apply(event, now)
	uc.rate.Record(now)
	uc.count(metrics.StatusAccepted)

	if uc.metrics != nil {
		if res.Created {
			uc.metrics.TransactionsCreated.Inc()
		}
		if res.Completed {
			uc.metrics.TransactionsCompleted.WithLabelValues(res.Transaction.FinalStatus).Inc()
		}
	}
	if res.Completed {
		uc.archive(res.Transaction)
	}
}

// Sweeper returns a retention sweeper bound to this monitor's store.
func (uc *MonitorUseCase) Sweeper(interval time.Duration) *tracker.Sweeper {
	return tracker.NewSweeper(uc.store, uc.retention, interval, uc.onTick, uc.logger)
}

func (uc *MonitorUseCase) onTick(now time.Time, evicted []domain.Transaction) {
	for _, t := range evicted {
		uc.archive(t)
	}
	uc.rate.Count(now)

	snapshot := uc.store.Snapshot()
	active := 0
	for _, t := range snapshot {
		if !t.Completed() {
			active++
		}
	}
	if uc.metrics != nil {
		uc.metrics.TransactionsEvicted.Add(float64(len(evicted)))
		uc.metrics.ActiveTransactions.Set(float64(active))
		uc.metrics.TrackedTransactions.Set(float64(len(snapshot)))
	}
	uc.evaluateAlerts(now, snapshot)
}

// evaluateAlerts notifies once per transaction whose active duration reaches
// the alert threshold.
func (uc *MonitorUseCase) evaluateAlerts(now time.Time, snapshot []domain.Transaction) {
	if uc.alertThreshold <= 0 || uc.notifier == nil {
		return
	}
	seen := make(map[string]struct{}, len(snapshot))
	for _, t := range snapshot {
		seen[t.ID] = struct{}{}
		if t.Completed() || t.Duration(now) < uc.alertThreshold {
			continue
		}
		if _, done := uc.alerted[t.ID]; done {
			continue
		}
		uc.alerted[t.ID] = struct{}{}
		if err := uc.notifier.Notify(context.Background(), domain.NewTxnView(t, now), int(uc.alertThreshold/time.Second)); err != nil {
			uc.logger.Warn("failed to send long-running alert", "error", err, "tid", t.ID)
		}
		if uc.metrics != nil {
			uc.metrics.AlertsTotal.Inc()
		}
	}
	for id := range uc.alerted {
		if _, ok := seen[id]; !ok {
			delete(uc.alerted, id)
		}
	}
}

// GetActiveList returns tracked transactions at least thresholdSeconds long
// that match filter, longest first.
func (uc *MonitorUseCase) GetActiveList(thresholdSeconds float64, filter string) []domain.TxnView {
	if thresholdSeconds < 0 {
		thresholdSeconds = 0
	}
	return tracker.Project(uc.store.Snapshot(), thresholdSeconds, filter, uc.now())
}

// GetTransaction returns one transaction with its retained history.
func (uc *MonitorUseCase) GetTransaction(id string) (domain.TxnDetail, error) {
	t, ok := uc.store.Get(id)
	if !ok {
		return domain.TxnDetail{}, fmt.Errorf("%w: %s", domain.ErrTransactionNotFound, id)
	}
	return domain.TxnDetail{TxnView: domain.NewTxnView(t, uc.now()), History: t.History}, nil
}

// GetStats summarizes the tracker.
func (uc *MonitorUseCase) GetStats() domain.Stats {
	now := uc.now()
	snapshot := uc.store.Snapshot()
	stats := domain.Stats{
		TrackedCount:        len(snapshot),
		ThroughputPerSecond: uc.rate.Rate(now),
		Paused:              uc.paused.Load(),
		ConnectionState:     "closed",
	}
	for _, t := range snapshot {
		if t.Completed() {
			continue
		}
		stats.ActiveCount++
		if d := t.Duration(now).Milliseconds(); d > stats.LongestDurationMs {
			stats.LongestDurationMs = d
		}
	}
	if r := uc.conn.Load(); r != nil {
		stats.ConnectionState = (*r).ConnectionState()
	}
	return stats
}

// RemoveTransaction drops a transaction; unknown ids are a no-op.
func (uc *MonitorUseCase) RemoveTransaction(id string) bool {
	t, ok := uc.store.Get(id)
	if !ok || !uc.store.Remove(id) {
		return false
	}
	if t.Completed() {
		uc.archive(t)
	}
	if uc.metrics != nil {
		uc.metrics.TransactionsRemoved.Inc()
	}
	uc.logger.Info("transaction removed", "tid", id)
	return true
}

// ClearAll drops every tracked transaction and returns how many were removed.
func (uc *MonitorUseCase) ClearAll() int {
	n := uc.store.Clear()
	if uc.metrics != nil {
		uc.metrics.TransactionsRemoved.Add(float64(n))
	}
	uc.logger.Info("all transactions cleared", "count", n)
	return n
}

func (uc *MonitorUseCase) SetAutoRemove(enabled bool) {
	uc.retention.SetAutoRemove(enabled)
	uc.logger.Info("auto-remove changed", "enabled", enabled)
}

func (uc *MonitorUseCase) SetLingerSeconds(n int) {
	uc.retention.SetLingerSeconds(n)
	uc.logger.Info("linger changed", "seconds", n)
}

// SetPaused stops (or resumes) applying inbound payloads.
func (uc *MonitorUseCase) SetPaused(paused bool) {
	uc.paused.Store(paused)
	uc.logger.Info("ingest pause changed", "paused", paused)
}

// Settings returns the current operator settings.
func (uc *MonitorUseCase) Settings() domain.Settings {
	return domain.Settings{
		AutoRemove:    uc.retention.AutoRemove(),
		LingerSeconds: uc.retention.LingerSeconds(),
		Paused:        uc.paused.Load(),
	}
}

func (uc *MonitorUseCase) archive(t domain.Transaction) {
	if uc.archiver == nil || !t.Completed() {
		return
	}
	uc.archiver.Enqueue(domain.NewArchivedTransaction(t))
}

func (uc *MonitorUseCase) count(status string) {
	if uc.metrics != nil {
		uc.metrics.EventsTotal.WithLabelValues(status).Inc()
	}
}
