package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/lib/pq"

	"github.com/V4T54L/txn-watch/internal/domain"
)

const (
	archiveTableName = "txn_archive"
	archiveTempTable = "txn_archive_import"
)

const createArchiveTable = `
CREATE TABLE IF NOT EXISTS ` + archiveTableName + ` (
	tid          TEXT PRIMARY KEY,
	first_seen   TIMESTAMPTZ NOT NULL,
	completed_at TIMESTAMPTZ NOT NULL,
	duration_ms  BIGINT NOT NULL,
	final_status TEXT NOT NULL,
	event_count  INTEGER NOT NULL,
	host         TEXT NOT NULL DEFAULT '',
	function_id  TEXT NOT NULL DEFAULT '',
	last_message TEXT NOT NULL DEFAULT '',
	archived_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);`

var archiveColumns = []string{
	"tid", "first_seen", "completed_at", "duration_ms", "final_status",
	"event_count", "host", "function_id", "last_message",
}

// ArchiveRepository writes completed transaction summaries to PostgreSQL.
type ArchiveRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewArchiveRepository creates a new PostgreSQL archive repository.
func NewArchiveRepository(db *sql.DB, logger *slog.Logger) *ArchiveRepository {
	return &ArchiveRepository{db: db, logger: logger.With("component", "archive_repository")}
}

// EnsureSchema creates the archive table if it does not exist.
func (r *ArchiveRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createArchiveTable); err != nil {
		return fmt.Errorf("create %s: %w", archiveTableName, err)
	}
	return nil
}

// WriteBatch writes rows using the COPY protocol into a temp table and then
// upserts by tid, so a transaction archived twice keeps its latest summary.
// Rows must not repeat a tid within one batch.
func (r *ArchiveRepository) WriteBatch(ctx context.Context, rows []domain.ArchivedTransaction) error {
	if len(rows) == 0 {
		return nil
	}

	txn, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin archive batch: %w", err)
	}
	defer txn.Rollback() // Rollback is a no-op if Commit() is called

	_, err = txn.ExecContext(ctx, `CREATE TEMP TABLE `+archiveTempTable+` (LIKE `+archiveTableName+` INCLUDING DEFAULTS) ON COMMIT DROP;`)
	if err != nil {
		return fmt.Errorf("create temp table: %w", err)
	}

	stmt, err := txn.PrepareContext(ctx, pq.CopyIn(archiveTempTable, archiveColumns...))
	if err != nil {
		return fmt.Errorf("prepare copy: %w", err)
	}

	for _, row := range rows {
		_, err = stmt.ExecContext(ctx, row.ID, row.FirstSeen, row.CompletedAt, row.DurationMs, row.FinalStatus,
			row.EventCount, row.Host, row.FunctionID, row.LastMessage)
		if err != nil {
			_ = stmt.Close()
			return fmt.Errorf("copy row %s: %w", row.ID, err)
		}
	}

	// Flush the buffered COPY data.
	if _, err := stmt.ExecContext(ctx); err != nil {
		_ = stmt.Close()
		return fmt.Errorf("flush copy: %w", err)
	}
	if err := stmt.Close(); err != nil {
		return fmt.Errorf("close copy: %w", err)
	}

	_, err = txn.ExecContext(ctx, upsertArchiveQuery)
	if err != nil {
		return fmt.Errorf("upsert archive rows: %w", err)
	}

	if err := txn.Commit(); err != nil {
		return fmt.Errorf("commit archive batch: %w", err)
	}
	r.logger.Debug("archive batch committed", "count", len(rows))
	return nil
}

var upsertArchiveQuery = `
	INSERT INTO ` + archiveTableName + ` (tid, first_seen, completed_at, duration_ms, final_status, event_count, host, function_id, last_message)
	SELECT tid, first_seen, completed_at, duration_ms, final_status, event_count, host, function_id, last_message FROM ` + archiveTempTable + `
	ON CONFLICT (tid) DO UPDATE SET
		first_seen = EXCLUDED.first_seen,
		completed_at = EXCLUDED.completed_at,
		duration_ms = EXCLUDED.duration_ms,
		final_status = EXCLUDED.final_status,
		event_count = EXCLUDED.event_count,
		host = EXCLUDED.host,
		function_id = EXCLUDED.function_id,
		last_message = EXCLUDED.last_message,
		archived_at = now();
`
