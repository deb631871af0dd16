package notifier

import (
	"context"
	"log/slog"

	"github.com/V4T54L/txn-watch/internal/domain"
)

var _ Notifier = (*LogNotifier)(nil)

// LogNotifier is an implementation of Notifier that writes alerts to the log.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a new LogNotifier.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With("component", "alerts")}
}

// Notify logs the alert details at warn level.
func (n *LogNotifier) Notify(ctx context.Context, view domain.TxnView, threshold int) error {
	n.logger.WarnContext(ctx, "long-running transaction",
		"tid", view.ID,
		"duration_ms", view.DurationMs,
		"threshold_s", threshold,
		"status", view.LastEvent.Status,
		"host", string(view.LastEvent.Hnm),
		"function_id", string(view.LastEvent.Fid),
		"first_seen", view.FirstSeen,
	)
	return nil
}
