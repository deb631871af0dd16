package domain

import "context"

// ArchiveRepository defines the sink for completed transaction summaries.
// The archive is write-only; nothing reads it back into the tracker.
type ArchiveRepository interface {
	// WriteBatch stores a batch of summaries. Writing the same transaction id
	// twice replaces the earlier row.
	WriteBatch(ctx context.Context, rows []ArchivedTransaction) error
}

// StreamMirror defines a secondary destination for raw relay payloads
// (e.g., a capped Redis stream read by other tools).
type StreamMirror interface {
	// Publish appends a single raw JSON payload.
	Publish(ctx context.Context, payload []byte) error

	// Available reports whether the mirror is currently reachable.
	Available() bool

	// Length returns the number of entries currently held by the mirror.
	Length(ctx context.Context) (int64, error)
}

// Notifier delivers long-running transaction alerts.
type Notifier interface {
	Notify(ctx context.Context, view TxnView, threshold int) error
}
