package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "txnwatch"

// Ingest outcome labels for MonitorMetrics.EventsTotal.
const (
	StatusAccepted    = "accepted"
	StatusDecodeError = "error_decode"
	StatusPaused      = "dropped_paused"
)

// MonitorMetrics holds all Prometheus metrics for the transaction monitor.
type MonitorMetrics struct {
	EventsTotal           *prometheus.CounterVec
	TransactionsCreated   prometheus.Counter
	TransactionsCompleted *prometheus.CounterVec
	TransactionsEvicted   prometheus.Counter
	TransactionsRemoved   prometheus.Counter
	ActiveTransactions    prometheus.Gauge
	TrackedTransactions   prometheus.Gauge
	ConnectionState       *prometheus.GaugeVec
	ReconnectsTotal       prometheus.Counter
	AlertsTotal           prometheus.Counter
	ArchivedRowsTotal     *prometheus.CounterVec
}

// NewMonitorMetrics initializes and registers the monitor metrics on reg.
// Pass prometheus.DefaultRegisterer in production and a fresh registry in tests.
func NewMonitorMetrics(reg prometheus.Registerer) *MonitorMetrics {
	f := promauto.With(reg)
	m := &MonitorMetrics{
		EventsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "events_total",
			Help:      "Total number of inbound payloads by outcome.",
		}, []string{"status"}), // status: accepted, error_decode, dropped_paused
		TransactionsCreated: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tracker",
			Name:      "transactions_created_total",
			Help:      "Total number of transactions first seen.",
		}),
		TransactionsCompleted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tracker",
			Name:      "transactions_completed_total",
			Help:      "Total number of transactions completed, by final status.",
		}, []string{"status"}),
		TransactionsEvicted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tracker",
			Name:      "transactions_evicted_total",
			Help:      "Total number of completed transactions evicted by the retention sweeper.",
		}),
		TransactionsRemoved: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tracker",
			Name:      "transactions_removed_total",
			Help:      "Total number of transactions removed by an operator.",
		}),
		ActiveTransactions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "tracker",
			Name:      "active_transactions",
			Help:      "Number of tracked transactions without a terminal event.",
		}),
		TrackedTransactions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "tracker",
			Name:      "tracked_transactions",
			Help:      "Number of transactions currently held in memory.",
		}),
		ConnectionState: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "connection_state",
			Help:      "Current stream connection state (1 for the active state, 0 otherwise).",
		}, []string{"state"}),
		ReconnectsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "reconnects_total",
			Help:      "Total number of scheduled reconnect attempts.",
		}),
		AlertsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tracker",
			Name:      "long_running_alerts_total",
			Help:      "Total number of long-running transaction alerts raised.",
		}),
		ArchivedRowsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "archive",
			Name:      "rows_total",
			Help:      "Total number of completed transactions handed to the archive, by outcome.",
		}, []string{"status"}), // status: written, dropped
	}
	for _, s := range []string{StatusAccepted, StatusDecodeError, StatusPaused} {
		m.EventsTotal.WithLabelValues(s)
	}
	return m
}

// SetConnectionState marks state as the current one.
func (m *MonitorMetrics) SetConnectionState(state string, all []string) {
	for _, s := range all {
		v := 0.0
		if s == state {
			v = 1
		}
		m.ConnectionState.WithLabelValues(s).Set(v)
	}
}

// RelayMetrics holds all Prometheus metrics for the UDP to WebSocket relay.
type RelayMetrics struct {
	DatagramsTotal   prometheus.Counter
	DecodeDropsTotal prometheus.Counter
	QueueDropsTotal  prometheus.Counter
	Clients          prometheus.Gauge
	MaxQueueDepth    prometheus.Gauge
	MirrorErrors     prometheus.Counter
	MirrorAvailable  prometheus.Gauge
	MirrorLength     prometheus.Gauge
}

// NewRelayMetrics initializes and registers the relay metrics on reg.
func NewRelayMetrics(reg prometheus.Registerer) *RelayMetrics {
	f := promauto.With(reg)
	return &RelayMetrics{
		DatagramsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "datagrams_total",
			Help:      "Total number of UDP datagrams received.",
		}),
		DecodeDropsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "decode_drops_total",
			Help:      "Total number of datagrams dropped because they were not JSON objects.",
		}),
		QueueDropsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "queue_drops_total",
			Help:      "Total number of payloads dropped because a client queue was full.",
		}),
		Clients: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "clients",
			Help:      "Number of connected WebSocket clients.",
		}),
		MaxQueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "max_queue_depth",
			Help:      "Highest client queue depth seen in the last report interval.",
		}),
		MirrorErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "mirror_errors_total",
			Help:      "Total number of failed writes to the stream mirror.",
		}),
		MirrorAvailable: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "mirror_available",
			Help:      "Indicates if the stream mirror is reachable (1 for available, 0 for unavailable).",
		}),
		MirrorLength: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "mirror_stream_length",
			Help:      "Number of entries in the mirror stream at the last report.",
		}),
	}
}
