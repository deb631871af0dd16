package notifier

import (
	"context"

	"github.com/V4T54L/txn-watch/internal/domain"
)

// Notifier defines the interface for sending long-running transaction alerts.
type Notifier interface {
	Notify(ctx context.Context, view domain.TxnView, threshold int) error
}
