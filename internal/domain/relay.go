package domain

// RelayStats is a point-in-time report of the UDP to WebSocket relay.
type RelayStats struct {
	ReceivedTotal   int64   `json:"received_total"`
	ReceivedRate    float64 `json:"received_rate"`
	DecodeDrops     int64   `json:"decode_drops"`
	QueueDropsTotal int64   `json:"queue_drops_total"`
	QueueDrops      int64   `json:"queue_drops"`
	Clients         int     `json:"clients"`
	MaxQueueDepth   int     `json:"max_queue_depth"`
	MirrorLength    int64   `json:"mirror_length"`
}
