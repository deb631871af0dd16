package domain

import "time"

// ArchivedTransaction is the summary row written for a completed transaction.
type ArchivedTransaction struct {
	ID          string    `json:"tid"`
	FirstSeen   time.Time `json:"first_seen"`
	CompletedAt time.Time `json:"completed_at"`
	DurationMs  int64     `json:"duration_ms"`
	FinalStatus string    `json:"final_status"`
	EventCount  int       `json:"event_count"`
	Host        string    `json:"host,omitempty"`
	FunctionID  string    `json:"function_id,omitempty"`
	LastMessage string    `json:"last_message,omitempty"`
}

// NewArchivedTransaction summarizes a completed transaction.
func NewArchivedTransaction(t Transaction) ArchivedTransaction {
	return ArchivedTransaction{
		ID:          t.ID,
		FirstSeen:   t.FirstSeen,
		CompletedAt: t.CompletedAt,
		DurationMs:  t.Duration(t.CompletedAt).Milliseconds(),
		FinalStatus: t.FinalStatus,
		EventCount:  len(t.History),
		Host:        string(t.LastEvent.Hnm),
		FunctionID:  string(t.LastEvent.Fid),
		LastMessage: string(t.LastEvent.Msg),
	}
}
