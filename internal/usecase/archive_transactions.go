package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/V4T54L/txn-watch/internal/adapter/metrics"
	"github.com/V4T54L/txn-watch/internal/domain"
)

const (
	defaultArchiveBatchSize    = 500
	defaultArchiveQueueSize    = 10000
	defaultArchiveFlushEvery   = 2 * time.Second
	defaultArchiveRetryCount   = 3
	defaultArchiveRetryBackoff = 1 * time.Second
)

// ArchiveTransactionsUseCase buffers completed transaction summaries and
// writes them to the archive in batches. It never blocks the ingest path:
// when the queue is full, rows are dropped.
type ArchiveTransactionsUseCase struct {
	repo          domain.ArchiveRepository
	logger        *slog.Logger
	metrics       *metrics.MonitorMetrics
	queue         chan domain.ArchivedTransaction
	batchSize     int
	flushInterval time.Duration
	retryCount    int
	retryBackoff  time.Duration
}

// NewArchiveTransactionsUseCase creates the archive writer. Non-positive
// sizes and durations fall back to defaults; m may be nil.
func NewArchiveTransactionsUseCase(repo domain.ArchiveRepository, logger *slog.Logger, m *metrics.MonitorMetrics, batchSize int, flushInterval time.Duration, retryCount int, retryBackoff time.Duration) *ArchiveTransactionsUseCase {
	if batchSize <= 0 {
		batchSize = defaultArchiveBatchSize
	}
	if flushInterval <= 0 {
		flushInterval = defaultArchiveFlushEvery
	}
	if retryCount <= 0 {
		retryCount = defaultArchiveRetryCount
	}
	if retryBackoff <= 0 {
		retryBackoff = defaultArchiveRetryBackoff
	}
	return &ArchiveTransactionsUseCase{
		repo:          repo,
		logger:        logger.With("component", "archive"),
		metrics:       m,
		queue:         make(chan domain.ArchivedTransaction, defaultArchiveQueueSize),
		batchSize:     batchSize,
		flushInterval: flushInterval,
		retryCount:    retryCount,
		retryBackoff:  retryBackoff,
	}
}

// Enqueue hands a row to the writer without blocking.
func (uc *ArchiveTransactionsUseCase) Enqueue(row domain.ArchivedTransaction) {
	select {
	case uc.queue <- row:
	default:
		uc.logger.Warn("archive queue is full, dropping row", "tid", row.ID)
		uc.record("dropped", 1)
	}
}

// Run drains the queue until ctx is cancelled, flushing whenever a batch is
// full or the flush interval elapses. Pending rows are flushed on shutdown.
func (uc *ArchiveTransactionsUseCase) Run(ctx context.Context) {
	ticker := time.NewTicker(uc.flushInterval)
	defer ticker.Stop()

	batch := make([]domain.ArchivedTransaction, 0, uc.batchSize)
	flush := func(ctx context.Context) {
		if len(batch) == 0 {
			return
		}
		_ = uc.ProcessBatch(ctx, batch)
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
		drain:
			for {
				select {
				case row := <-uc.queue:
					batch = append(batch, row)
				default:
					break drain
				}
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			flush(shutdownCtx)
			cancel()
			uc.logger.Info("archive writer stopped")
			return
		case row := <-uc.queue:
			batch = append(batch, row)
			if len(batch) >= uc.batchSize {
				flush(ctx)
			}
		case <-ticker.C:
			flush(ctx)
		}
	}
}

// ProcessBatch writes rows with retries. Rows for the same transaction are
// collapsed to the latest one first.
func (uc *ArchiveTransactionsUseCase) ProcessBatch(ctx context.Context, rows []domain.ArchivedTransaction) error {
	rows = latestPerTransaction(rows)
	if len(rows) == 0 {
		return nil
	}

	if err := uc.writeWithRetry(ctx, rows); err != nil {
		uc.logger.Error("failed to write archive batch after retries, dropping", "error", err, "count", len(rows))
		uc.record("dropped", len(rows))
		return err
	}

	uc.logger.Debug("archived completed transactions", "count", len(rows))
	uc.record("written", len(rows))
	return nil
}

func (uc *ArchiveTransactionsUseCase) writeWithRetry(ctx context.Context, rows []domain.ArchivedTransaction) error {
	var lastErr error
	for i := 0; i < uc.retryCount; i++ {
		err := uc.repo.WriteBatch(ctx, rows)
		if err == nil {
			return nil
		}
		lastErr = err
		uc.logger.Warn("failed to write archive batch, retrying...", "attempt", i+1, "error", err)
		if i == uc.retryCount-1 {
			break
		}
		select {
		case <-time.After(uc.retryBackoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}

func (uc *ArchiveTransactionsUseCase) record(status string, n int) {
	if uc.metrics != nil {
		uc.metrics.ArchivedRowsTotal.WithLabelValues(status).Add(float64(n))
	}
}

// latestPerTransaction keeps the last row per id, preserving first-seen order.
func latestPerTransaction(rows []domain.ArchivedTransaction) []domain.ArchivedTransaction {
	index := make(map[string]int, len(rows))
	out := make([]domain.ArchivedTransaction, 0, len(rows))
	for _, r := range rows {
		if i, ok := index[r.ID]; ok {
			out[i] = r
			continue
		}
		index[r.ID] = len(out)
		out = append(out, r)
	}
	return out
}
