package tracker

import (
	"sync"
	"time"

	"github.com/V4T54L/txn-watch/internal/domain"
)

// ApplyResult describes the effect of applying one event.
type ApplyResult struct {
	Transaction domain.Transaction
	// Created is true when the event introduced a new transaction id.
	Created bool
	// Completed is true when the event was the first terminal event for the id.
	Completed bool
}

// Store is the in-memory map of tracked transactions.
//
// Each transaction is stored as an immutable value that is replaced on every
// update, so a reader holding a snapshot sees either the state before an
// Apply or the state after it, never a mix. The store expects a single writer
// for Apply and Sweep; Remove and Clear may be called from any goroutine.
type Store struct {
	mu           sync.RWMutex
	txns         map[string]*domain.Transaction
	historyLimit int
}

// NewStore creates an empty store keeping at most historyLimit events per
// transaction. A non-positive limit falls back to domain.DefaultHistoryLimit.
func NewStore(historyLimit int) *Store {
	if historyLimit <= 0 {
		historyLimit = domain.DefaultHistoryLimit
	}
	return &Store{
		txns:         make(map[string]*domain.Transaction),
		historyLimit: historyLimit,
	}
}

// Apply records ev as received at now.
func (s *Store) Apply(ev domain.TxnEvent, now time.Time) ApplyResult {
	terminal := ev.Terminal()

	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.txns[ev.Tid]
	if !ok {
		t := &domain.Transaction{
			ID:         ev.Tid,
			FirstSeen:  now,
			LastUpdate: now,
			LastEvent:  ev,
			History:    []domain.TxnEvent{ev},
		}
		if terminal {
			t.CompletedAt = now
			t.FinalStatus = domain.NormalizeStatus(ev.Status)
		}
		s.txns[ev.Tid] = t
		return ApplyResult{Transaction: readOnly(t), Created: true, Completed: terminal}
	}

	next := *cur
	next.LastUpdate = now
	next.LastEvent = ev
	next.History = appendBounded(cur.History, ev, s.historyLimit)

	completed := false
	if terminal {
		next.FinalStatus = domain.NormalizeStatus(ev.Status)
		if next.CompletedAt.IsZero() {
			next.CompletedAt = now
			completed = true
		}
	}
	s.txns[ev.Tid] = &next
	return ApplyResult{Transaction: readOnly(&next), Completed: completed}
}

// Get returns the transaction tracked under id.
func (s *Store) Get(id string) (domain.Transaction, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.txns[id]
	if !ok {
		return domain.Transaction{}, false
	}
	return readOnly(t), true
}

// Remove deletes the transaction if present and reports whether it was.
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.txns[id]; !ok {
		return false
	}
	delete(s.txns, id)
	return true
}

// Clear removes every transaction and returns how many were removed.
func (s *Store) Clear() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.txns)
	s.txns = make(map[string]*domain.Transaction)
	return n
}

// Sweep evicts completed transactions whose linger period has passed and
// returns them. It does nothing when enabled is false or lingerSeconds is
// negative. A transaction is evicted only once now-completion exceeds the
// linger period.
func (s *Store) Sweep(now time.Time, lingerSeconds int, enabled bool) []domain.Transaction {
	if !enabled || lingerSeconds < 0 {
		return nil
	}
	linger := time.Duration(lingerSeconds) * time.Second

	s.mu.Lock()
	defer s.mu.Unlock()

	var evicted []domain.Transaction
	for id, t := range s.txns {
		if t.CompletedAt.IsZero() {
			continue
		}
		if now.Sub(t.CompletedAt) > linger {
			evicted = append(evicted, readOnly(t))
			delete(s.txns, id)
		}
	}
	return evicted
}

// Snapshot returns the current transactions in no particular order.
func (s *Store) Snapshot() []domain.Transaction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Transaction, 0, len(s.txns))
	for _, t := range s.txns {
		out = append(out, readOnly(t))
	}
	return out
}

// Len returns the number of tracked transactions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.txns)
}

// readOnly copies t with its history clipped so that appends by a caller
// cannot write into the store's backing array.
func readOnly(t *domain.Transaction) domain.Transaction {
	c := *t
	c.History = c.History[:len(c.History):len(c.History)]
	return c
}

func appendBounded(history []domain.TxnEvent, ev domain.TxnEvent, limit int) []domain.TxnEvent {
	if len(history) < limit {
		return append(history, ev)
	}
	out := make([]domain.TxnEvent, 0, limit)
	out = append(out, history[len(history)-limit+1:]...)
	return append(out, ev)
}
