package mocks

import (
	"context"
	"errors"
	"sync"

	"github.com/V4T54L/txn-watch/internal/domain"
)

// MockArchiveRepository is a mock implementation of domain.ArchiveRepository for testing.
type MockArchiveRepository struct {
	mu       sync.Mutex
	Batches  [][]domain.ArchivedTransaction
	Calls    int
	WriteErr error
	// FailTimes makes the first N calls return WriteErr; zero means always.
	FailTimes int
}

func (m *MockArchiveRepository) WriteBatch(ctx context.Context, rows []domain.ArchivedTransaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++
	if m.WriteErr != nil && (m.FailTimes == 0 || m.Calls <= m.FailTimes) {
		return m.WriteErr
	}
	batch := make([]domain.ArchivedTransaction, len(rows))
	copy(batch, rows)
	m.Batches = append(m.Batches, batch)
	return nil
}

// Rows returns every row written so far.
func (m *MockArchiveRepository) Rows() []domain.ArchivedTransaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.ArchivedTransaction
	for _, b := range m.Batches {
		out = append(out, b...)
	}
	return out
}

// MockStreamMirror is a mock implementation of domain.StreamMirror for testing.
type MockStreamMirror struct {
	mu         sync.Mutex
	Published  [][]byte
	PublishErr error
	Down       bool
}

func (m *MockStreamMirror) Publish(ctx context.Context, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.PublishErr != nil {
		return m.PublishErr
	}
	m.Published = append(m.Published, append([]byte(nil), payload...))
	return nil
}

func (m *MockStreamMirror) Available() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.Down
}

func (m *MockStreamMirror) Length(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Down {
		return 0, errors.New("mirror unavailable")
	}
	return int64(len(m.Published)), nil
}

// Count returns the number of payloads published.
func (m *MockStreamMirror) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Published)
}

// MockNotifier records alerts.
type MockNotifier struct {
	mu     sync.Mutex
	Alerts []domain.TxnView
}

func (m *MockNotifier) Notify(ctx context.Context, view domain.TxnView, threshold int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Alerts = append(m.Alerts, view)
	return nil
}

// IDs returns the transaction ids alerted so far, in order.
func (m *MockNotifier) IDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, len(m.Alerts))
	for i, a := range m.Alerts {
		ids[i] = a.ID
	}
	return ids
}
