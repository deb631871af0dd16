package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/V4T54L/txn-watch/internal/domain"
)

const (
	defaultPushInterval = 1 * time.Second
	defaultTopRows      = 50
)

// SnapshotSource supplies the data pushed to SSE clients.
type SnapshotSource interface {
	GetStats() domain.Stats
	GetActiveList(thresholdSeconds float64, filter string) []domain.TxnView
}

// SSEMessage defines the structure of the message sent to the frontend.
type SSEMessage struct {
	Stats        domain.Stats     `json:"stats"`
	Transactions []domain.TxnView `json:"transactions"`
}

// SSEBroker manages SSE client connections and pushes a snapshot of the
// tracker to all of them at a fixed cadence.
type SSEBroker struct {
	logger   *slog.Logger
	source   SnapshotSource
	interval time.Duration
	topRows  int
	clients  map[chan []byte]string
	mu       sync.RWMutex
}

// NewSSEBroker creates a new SSEBroker and starts its processing loop.
// Non-positive interval or topRows fall back to 1s and 50 rows.
func NewSSEBroker(ctx context.Context, source SnapshotSource, logger *slog.Logger, interval time.Duration, topRows int) *SSEBroker {
	if interval <= 0 {
		interval = defaultPushInterval
	}
	if topRows <= 0 {
		topRows = defaultTopRows
	}
	broker := &SSEBroker{
		logger:   logger.With("component", "sse"),
		source:   source,
		interval: interval,
		topRows:  topRows,
		clients:  make(map[chan []byte]string),
	}
	go broker.run(ctx)
	return broker
}

// ServeHTTP handles new client connections for the SSE stream.
func (b *SSEBroker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported!", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	messageChan := make(chan []byte, 1)
	b.addClient(messageChan)
	defer b.removeClient(messageChan)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messageChan:
			if !ok {
				return // Channel was closed
			}
			fmt.Fprintf(w, "data: %s\n\n", msg)
			flusher.Flush()
		}
	}
}

// ClientCount returns the number of connected clients.
func (b *SSEBroker) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

func (b *SSEBroker) addClient(client chan []byte) {
	id := uuid.NewString()
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clients[client] = id
	b.logger.Info("SSE client connected", "client_id", id)
}

func (b *SSEBroker) removeClient(client chan []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if id, ok := b.clients[client]; ok {
		delete(b.clients, client)
		close(client)
		b.logger.Info("SSE client disconnected", "client_id", id)
	}
}

func (b *SSEBroker) broadcast(msg []byte) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for client := range b.clients {
		select {
		case client <- msg:
		default:
			// Slow client; it gets the next snapshot instead.
		}
	}
}

// Snapshot builds the message pushed on each tick.
func (b *SSEBroker) Snapshot() SSEMessage {
	rows := b.source.GetActiveList(0, "")
	if len(rows) > b.topRows {
		rows = rows[:b.topRows]
	}
	return SSEMessage{Stats: b.source.GetStats(), Transactions: rows}
}

// run is the main processing loop for the broker.
func (b *SSEBroker) run(ctx context.Context) {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if b.ClientCount() == 0 {
				continue
			}
			jsonData, err := json.Marshal(b.Snapshot())
			if err != nil {
				b.logger.Error("Failed to marshal SSE message", "error", err)
				continue
			}
			b.broadcast(jsonData)
		}
	}
}
