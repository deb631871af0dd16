package usecase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/V4T54L/txn-watch/internal/adapter/metrics"
	"github.com/V4T54L/txn-watch/internal/domain"
	"github.com/V4T54L/txn-watch/internal/domain/mocks"
)

func newTestArchiver(repo domain.ArchiveRepository, batchSize int) (*ArchiveTransactionsUseCase, *metrics.MonitorMetrics) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.NewMonitorMetrics(prometheus.NewRegistry())
	return NewArchiveTransactionsUseCase(repo, logger, m, batchSize, time.Hour, 3, time.Millisecond), m
}

func row(id, status string) domain.ArchivedTransaction {
	return domain.ArchivedTransaction{ID: id, FinalStatus: status, CompletedAt: base}
}

func TestArchiveTransactionsUseCase_ProcessBatch(t *testing.T) {
	tests := []struct {
		name        string
		repo        *mocks.MockArchiveRepository
		rows        []domain.ArchivedTransaction
		wantErr     bool
		wantCalls   int
		wantWritten []string
	}{
		{
			name:        "writes rows",
			repo:        &mocks.MockArchiveRepository{},
			rows:        []domain.ArchivedTransaction{row("A", "success"), row("B", "failed")},
			wantCalls:   1,
			wantWritten: []string{"A:success", "B:failed"},
		},
		{
			name:        "keeps the latest row per transaction",
			repo:        &mocks.MockArchiveRepository{},
			rows:        []domain.ArchivedTransaction{row("A", "success"), row("B", "failed"), row("A", "error")},
			wantCalls:   1,
			wantWritten: []string{"A:error", "B:failed"},
		},
		{
			name:        "retries transient failures",
			repo:        &mocks.MockArchiveRepository{WriteErr: errors.New("db down"), FailTimes: 2},
			rows:        []domain.ArchivedTransaction{row("A", "success")},
			wantCalls:   3,
			wantWritten: []string{"A:success"},
		},
		{
			name:      "gives up after retries",
			repo:      &mocks.MockArchiveRepository{WriteErr: errors.New("db down")},
			rows:      []domain.ArchivedTransaction{row("A", "success")},
			wantErr:   true,
			wantCalls: 3,
		},
		{
			name: "empty batch is a no-op",
			repo: &mocks.MockArchiveRepository{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			uc, _ := newTestArchiver(tt.repo, 10)
			err := uc.ProcessBatch(context.Background(), tt.rows)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ProcessBatch() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.repo.Calls != tt.wantCalls {
				t.Errorf("WriteBatch calls = %d, want %d", tt.repo.Calls, tt.wantCalls)
			}
			var got []string
			for _, r := range tt.repo.Rows() {
				got = append(got, r.ID+":"+r.FinalStatus)
			}
			if len(got) != len(tt.wantWritten) {
				t.Fatalf("written = %v, want %v", got, tt.wantWritten)
			}
			for i := range got {
				if got[i] != tt.wantWritten[i] {
					t.Errorf("written[%d] = %s, want %s", i, got[i], tt.wantWritten[i])
				}
			}
		})
	}
}

func TestArchiveTransactionsUseCase_Metrics(t *testing.T) {
	repo := &mocks.MockArchiveRepository{WriteErr: errors.New("db down")}
	uc, m := newTestArchiver(repo, 10)

	_ = uc.ProcessBatch(context.Background(), []domain.ArchivedTransaction{row("A", "success"), row("B", "success")})
	if got := testutil.ToFloat64(m.ArchivedRowsTotal.WithLabelValues("dropped")); got != 2 {
		t.Errorf("dropped rows = %v, want 2", got)
	}

	repo.WriteErr = nil
	_ = uc.ProcessBatch(context.Background(), []domain.ArchivedTransaction{row("C", "success")})
	if got := testutil.ToFloat64(m.ArchivedRowsTotal.WithLabelValues("written")); got != 1 {
		t.Errorf("written rows = %v, want 1", got)
	}
}

func TestArchiveTransactionsUseCase_Run(t *testing.T) {
	repo := &mocks.MockArchiveRepository{}
	uc, _ := newTestArchiver(repo, 2)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		uc.Run(ctx)
		close(done)
	}()

	uc.Enqueue(row("A", "success"))
	uc.Enqueue(row("B", "success"))
	uc.Enqueue(row("C", "failed"))

	// A full batch is written without waiting for the flush interval.
	deadline := time.Now().Add(2 * time.Second)
	for len(repo.Rows()) < 2 && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}
	if n := len(repo.Rows()); n != 2 {
		t.Fatalf("expected the first full batch to be written, got %d rows", n)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}

	rows := repo.Rows()
	if len(rows) != 3 || rows[2].ID != "C" {
		t.Errorf("pending rows must be flushed on shutdown, got %+v", rows)
	}
}
