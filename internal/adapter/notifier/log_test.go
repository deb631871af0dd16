package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/V4T54L/txn-watch/internal/domain"
)

func TestLogNotifier_Notify(t *testing.T) {
	var buf bytes.Buffer
	n := NewLogNotifier(slog.New(slog.NewJSONHandler(&buf, nil)))

	view := domain.TxnView{ID: "T-1", DurationMs: 45000, Active: true, LastEvent: domain.TxnEvent{Tid: "T-1", Status: "INFO", Hnm: "host-1"}}
	if err := n.Notify(context.Background(), view, 30); err != nil {
		t.Fatalf("Notify() error = %v", err)
	}

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if entry["level"] != "WARN" || entry["tid"] != "T-1" || entry["host"] != "host-1" {
		t.Errorf("unexpected log entry: %v", entry)
	}
	if entry["duration_ms"] != float64(45000) || entry["threshold_s"] != float64(30) {
		t.Errorf("unexpected alert values: %v", entry)
	}
}
