package relay

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"golang.org/x/net/websocket"

	"github.com/V4T54L/txn-watch/internal/adapter/metrics"
	"github.com/V4T54L/txn-watch/internal/adapter/pii"
	"github.com/V4T54L/txn-watch/internal/domain"
)

const (
	DefaultQueueSize         = 4000
	DefaultHeartbeatInterval = 20 * time.Second
	DefaultStatsInterval     = 5 * time.Second
	defaultMirrorQueueSize   = 10000
	mirrorWriteTimeout       = 2 * time.Second

	udpReadBuffer = 4 << 20
	maxDatagram   = 64 * 1024
)

// Options tunes the relay. Zero values fall back to defaults.
type Options struct {
	QueueSize         int
	HeartbeatInterval time.Duration
	StatsInterval     time.Duration
	MirrorQueueSize   int
}

// Relay receives JSON datagrams over UDP and fans them out to WebSocket
// clients, optionally mirroring them to a stream.
type Relay struct {
	opts     Options
	hub      *Hub
	redactor *pii.Redactor
	mirror   domain.StreamMirror
	metrics  *metrics.RelayMetrics
	logger   *slog.Logger
	now      func() time.Time

	received    atomic.Int64
	decodeDrops atomic.Int64
	mirrorQueue chan []byte

	// Report state, owned by the stats goroutine.
	lastReport   time.Time
	lastReceived int64
	lastDrops    int64
}

// New creates a relay. redactor, mirror and m may be nil.
func New(opts Options, redactor *pii.Redactor, mirror domain.StreamMirror, m *metrics.RelayMetrics, logger *slog.Logger) *Relay {
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if opts.StatsInterval <= 0 {
		opts.StatsInterval = DefaultStatsInterval
	}
	if opts.MirrorQueueSize <= 0 {
		opts.MirrorQueueSize = defaultMirrorQueueSize
	}
	r := &Relay{
		opts:       opts,
		hub:        NewHub(opts.QueueSize),
		redactor:   redactor,
		mirror:     mirror,
		metrics:    m,
		logger:     logger.With("component", "relay"),
		now:        time.Now,
		lastReport: time.Now(),
	}
	if mirror != nil {
		r.mirrorQueue = make(chan []byte, opts.MirrorQueueSize)
	}
	return r
}

// Hub returns the client hub.
func (r *Relay) Hub() *Hub {
	return r.hub
}

// HandleDatagram annotates one datagram and enqueues it for every client.
// Datagrams that are not JSON objects are counted and dropped.
func (r *Relay) HandleDatagram(data []byte, srcIP string) {
	r.received.Add(1)
	if r.metrics != nil {
		r.metrics.DatagramsTotal.Inc()
	}

	payload, err := Annotate(data, srcIP, r.now(), r.redactor)
	if err != nil {
		r.decodeDrops.Add(1)
		if r.metrics != nil {
			r.metrics.DecodeDropsTotal.Inc()
		}
		return
	}

	if dropped := r.hub.Broadcast(payload); dropped > 0 && r.metrics != nil {
		r.metrics.QueueDropsTotal.Add(float64(dropped))
	}

	if r.mirrorQueue != nil && r.mirror.Available() {
		select {
		case r.mirrorQueue <- payload:
		default:
			r.mirrorFailed()
		}
	}
}

// ServeUDP reads datagrams from conn until ctx is cancelled.
func (r *Relay) ServeUDP(ctx context.Context, conn net.PacketConn) error {
	if uc, ok := conn.(*net.UDPConn); ok {
		if err := uc.SetReadBuffer(udpReadBuffer); err != nil {
			r.logger.Warn("failed to enlarge UDP receive buffer", "error", err)
		}
	}
	stop := context.AfterFunc(ctx, func() {
		_ = conn.Close()
	})
	defer stop()

	r.logger.Info("UDP listener started", "addr", conn.LocalAddr().String())
	buf := make([]byte, maxDatagram)
	for {
		n, addr, err := conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				r.logger.Info("UDP listener stopped")
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			r.logger.Warn("UDP read failed", "error", err)
			continue
		}
		r.HandleDatagram(buf[:n], hostOf(addr))
	}
}

// Handler returns the WebSocket endpoint clients subscribe on.
func (r *Relay) Handler() http.Handler {
	return websocket.Server{
		// Consumers are not browsers; accept any or no Origin.
		Handshake: func(*websocket.Config, *http.Request) error { return nil },
		Handler:   r.serveClient,
	}
}

func (r *Relay) serveClient(conn *websocket.Conn) {
	c := newClient(hostOf(remoteAddr(conn)), conn, r.opts.QueueSize)
	logger := r.logger.With("client_id", c.id, "client_ip", c.ip)

	if old := r.hub.register(c); old != nil {
		logger.Info("replacing existing connection from same IP", "replaced_id", old.id)
		old.close()
	}
	logger.Info("websocket client connected", "clients", r.hub.ClientCount())

	// Connections are long-lived; drop any deadline left from the handshake.
	_ = conn.SetReadDeadline(time.Time{})
	go c.writeLoop(logger)
	go c.heartbeat(r.opts.HeartbeatInterval, logger)

	// Inbound messages are ignored; reading keeps control frames flowing
	// and detects the close.
	var discard []byte
	for !c.closed() {
		if err := websocket.Message.Receive(conn, &discard); err != nil {
			break
		}
	}

	c.close()
	r.hub.unregister(c)
	logger.Info("websocket client disconnected", "clients", r.hub.ClientCount(), "pending", len(c.queue))
}

// RunMirror forwards queued payloads to the stream mirror until ctx is
// cancelled. It returns immediately when no mirror is configured.
func (r *Relay) RunMirror(ctx context.Context) {
	if r.mirrorQueue == nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case payload := <-r.mirrorQueue:
			writeCtx, cancel := context.WithTimeout(ctx, mirrorWriteTimeout)
			err := r.mirror.Publish(writeCtx, payload)
			cancel()
			if err != nil {
				r.logger.Debug("failed to mirror payload", "error", err)
				r.mirrorFailed()
			}
		}
	}
}

func (r *Relay) mirrorFailed() {
	if r.metrics != nil {
		r.metrics.MirrorErrors.Inc()
	}
}

// RunStats logs a relay report every stats interval until ctx is cancelled.
func (r *Relay) RunStats(ctx context.Context) {
	ticker := time.NewTicker(r.opts.StatsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s := r.Report(ctx, now)
			r.logger.Info("relay stats",
				"pkts_per_sec", s.ReceivedRate,
				"rx_total", s.ReceivedTotal,
				"decode_drops", s.DecodeDrops,
				"ws_drops", s.QueueDrops,
				"ws_drops_total", s.QueueDropsTotal,
				"clients", s.Clients,
				"queue_max", s.MaxQueueDepth,
				"mirror_len", s.MirrorLength,
			)
		}
	}
}

// Report computes the relay stats since the previous report and refreshes
// the gauges. It must not be called concurrently.
func (r *Relay) Report(ctx context.Context, now time.Time) domain.RelayStats {
	received := r.received.Load()
	drops := r.hub.QueueDrops()

	s := domain.RelayStats{
		ReceivedTotal:   received,
		DecodeDrops:     r.decodeDrops.Load(),
		QueueDropsTotal: drops,
		QueueDrops:      drops - r.lastDrops,
		Clients:         r.hub.ClientCount(),
		MaxQueueDepth:   r.hub.MaxQueueDepth(),
	}
	if dt := now.Sub(r.lastReport).Seconds(); dt > 0 {
		s.ReceivedRate = float64(received-r.lastReceived) / dt
	}
	r.lastReport, r.lastReceived, r.lastDrops = now, received, drops

	mirrorUp := r.mirror != nil && r.mirror.Available()
	if mirrorUp {
		lenCtx, cancel := context.WithTimeout(ctx, mirrorWriteTimeout)
		n, err := r.mirror.Length(lenCtx)
		cancel()
		if err != nil {
			r.logger.Debug("failed to read mirror length", "error", err)
		} else {
			s.MirrorLength = n
		}
	}

	if r.metrics != nil {
		r.metrics.Clients.Set(float64(s.Clients))
		r.metrics.MaxQueueDepth.Set(float64(s.MaxQueueDepth))
		if r.mirror != nil {
			available := 0.0
			if mirrorUp {
				available = 1
			}
			r.metrics.MirrorAvailable.Set(available)
			r.metrics.MirrorLength.Set(float64(s.MirrorLength))
		}
	}
	return s
}

func remoteAddr(conn *websocket.Conn) string {
	if req := conn.Request(); req != nil {
		return req.RemoteAddr
	}
	return ""
}

// hostOf strips the port from a network address.
func hostOf(addr interface{}) string {
	var s string
	switch a := addr.(type) {
	case *net.UDPAddr:
		return a.IP.String()
	case net.Addr:
		s = a.String()
	case string:
		s = a
	}
	if host, _, err := net.SplitHostPort(s); err == nil {
		return host
	}
	if s == "" {
		return "unknown"
	}
	return s
}
