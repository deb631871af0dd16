package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"
)

// DefaultHistoryLimit bounds the number of events kept per transaction.
const DefaultHistoryLimit = 200

// ErrTransactionNotFound is returned when a transaction id is not tracked.
var ErrTransactionNotFound = errors.New("transaction not found")

// terminalStatuses are the lower-cased status values that end a transaction.
var terminalStatuses = map[string]struct{}{
	"success": {},
	"failed":  {},
	"error":   {},
	"failure": {},
}

// NormalizeStatus lower-cases and trims a wire status.
func NormalizeStatus(status string) string {
	return strings.ToLower(strings.TrimSpace(status))
}

// IsTerminalStatus reports whether status ends a transaction.
func IsTerminalStatus(status string) bool {
	_, ok := terminalStatuses[NormalizeStatus(status)]
	return ok
}

// Number is an optional numeric wire field. Producers send it either as a JSON
// number or as a numeric string; anything else decodes to zero.
type Number float64

func (n *Number) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	raw := string(data)
	if data[0] == '"' {
		unquoted, err := strconv.Unquote(raw)
		if err != nil {
			return nil
		}
		raw = strings.TrimSpace(unquoted)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		*n = 0
		return nil
	}
	*n = Number(v)
	return nil
}

// Text is an optional descriptive wire field. Strings are kept as sent;
// numbers and booleans keep their JSON text; null, arrays and objects decode
// to "".
type Text string

func (t *Text) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = Text(s)
	case 't', 'f', '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		*t = Text(data)
	default:
		*t = ""
	}
	return nil
}

// TxnEvent is one transaction lifecycle message as received from the stream.
type TxnEvent struct {
	Status   string `json:"Status"`
	Tid      string `json:"Tid"`
	Uxd      Text   `json:"Uxd,omitempty"`
	Uxt      Text   `json:"Uxt,omitempty"`
	Eid      Text   `json:"Eid,omitempty"`
	Hnm      Text   `json:"Hnm,omitempty"`
	Fid      Text   `json:"Fid,omitempty"`
	Cid      Text   `json:"Cid,omitempty"`
	Uid      Text   `json:"Uid,omitempty"`
	Mtp      Text   `json:"Mtp,omitempty"`
	Severity Text   `json:"Severity,omitempty"`
	Msg      Text   `json:"Msg,omitempty"`
	Pid      Number `json:"Pid,omitempty"`
	Ret      Number `json:"Ret,omitempty"`
	Elapsed  Number `json:"Elapsed,omitempty"`

	// Extra holds fields outside the known schema so the history view can
	// show them as received.
	Extra map[string]json.RawMessage `json:"-"`
}

// MarshalJSON writes the known fields followed by Extra.
func (e TxnEvent) MarshalJSON() ([]byte, error) {
	type plain TxnEvent
	known, err := json.Marshal(plain(e))
	if err != nil {
		return nil, err
	}
	if len(e.Extra) == 0 {
		return known, nil
	}
	merged := make(map[string]json.RawMessage, len(e.Extra)+16)
	for k, v := range e.Extra {
		merged[k] = v
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(known, &fields); err != nil {
		return nil, err
	}
	for k, v := range fields {
		merged[k] = v
	}
	return json.Marshal(merged)
}

// Terminal reports whether the event carries a terminal status.
func (e TxnEvent) Terminal() bool {
	return IsTerminalStatus(e.Status)
}

// SearchFields returns the descriptive fields matched by the text filter.
func (e TxnEvent) SearchFields() []string {
	return []string{
		string(e.Eid), string(e.Fid), string(e.Cid), string(e.Uid), string(e.Hnm),
		e.Status, string(e.Mtp), string(e.Msg), string(e.Severity),
	}
}

// Transaction is the tracked state of one transaction id.
// Values are replaced wholesale on every update; a Transaction obtained from
// the store never changes afterwards.
type Transaction struct {
	ID          string
	FirstSeen   time.Time
	LastUpdate  time.Time
	LastEvent   TxnEvent
	History     []TxnEvent
	CompletedAt time.Time
	FinalStatus string
}

// Completed reports whether a terminal event has been seen.
func (t Transaction) Completed() bool {
	return !t.CompletedAt.IsZero()
}

// Duration is the elapsed time of the transaction, fixed once completed.
func (t Transaction) Duration(now time.Time) time.Duration {
	end := now
	if t.Completed() {
		end = t.CompletedAt
	}
	d := end.Sub(t.FirstSeen)
	if d < 0 {
		return 0
	}
	return d
}

// TxnView is one row of the projected transaction list.
type TxnView struct {
	ID          string     `json:"tid"`
	FirstSeen   time.Time  `json:"first_seen"`
	LastUpdate  time.Time  `json:"last_update"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	FinalStatus string     `json:"final_status,omitempty"`
	Active      bool       `json:"active"`
	DurationMs  int64      `json:"duration_ms"`
	EventCount  int        `json:"event_count"`
	LastEvent   TxnEvent   `json:"last_event"`
}

// NewTxnView builds a view row for t as of now.
func NewTxnView(t Transaction, now time.Time) TxnView {
	v := TxnView{
		ID:          t.ID,
		FirstSeen:   t.FirstSeen,
		LastUpdate:  t.LastUpdate,
		FinalStatus: t.FinalStatus,
		Active:      !t.Completed(),
		DurationMs:  t.Duration(now).Milliseconds(),
		EventCount:  len(t.History),
		LastEvent:   t.LastEvent,
	}
	if t.Completed() {
		completed := t.CompletedAt
		v.CompletedAt = &completed
	}
	return v
}

// TxnDetail is a view row plus the retained event history.
type TxnDetail struct {
	TxnView
	History []TxnEvent `json:"history"`
}

// Stats summarizes the tracker for the presentation layer.
type Stats struct {
	ActiveCount         int     `json:"active_count"`
	TrackedCount        int     `json:"tracked_count"`
	ThroughputPerSecond float64 `json:"throughput_per_second"`
	LongestDurationMs   int64   `json:"longest_duration_ms"`
	ConnectionState     string  `json:"connection_state"`
	Paused              bool    `json:"paused"`
}

// Settings are the operator-tunable tracker options.
type Settings struct {
	AutoRemove    bool `json:"auto_remove"`
	LingerSeconds int  `json:"linger_seconds"`
	Paused        bool `json:"paused"`
}
