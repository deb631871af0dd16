package relay

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/websocket"
)

const writeTimeout = 10 * time.Second

// client is one connected WebSocket consumer with its bounded outbound queue.
type client struct {
	id    string
	ip    string
	conn  *websocket.Conn
	queue chan []byte
	done  chan struct{}
	once  sync.Once
	// wmu serializes data frames and pings on conn.
	wmu sync.Mutex
}

func newClient(ip string, conn *websocket.Conn, queueSize int) *client {
	return &client{
		id:    uuid.NewString(),
		ip:    ip,
		conn:  conn,
		queue: make(chan []byte, queueSize),
		done:  make(chan struct{}),
	}
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.done)
		if c.conn != nil {
			_ = c.conn.Close()
		}
	})
}

func (c *client) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// writeLoop sends queued payloads as text frames until the client closes.
// Nothing is written while the queue is empty.
func (c *client) writeLoop(logger *slog.Logger) {
	for {
		select {
		case <-c.done:
			return
		case payload := <-c.queue:
			if err := c.send(payload); err != nil {
				logger.Debug("websocket write failed", "client_id", c.id, "error", err)
				c.close()
				return
			}
		}
	}
}

func (c *client) send(payload []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return websocket.Message.Send(c.conn, string(payload))
}

// heartbeat pings the client every interval.
func (c *client) heartbeat(interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.ping(); err != nil {
				logger.Debug("websocket ping failed", "client_id", c.id, "error", err)
				c.close()
				return
			}
		}
	}
}

func (c *client) ping() error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	c.conn.PayloadType = websocket.PingFrame
	_, err := c.conn.Write(nil)
	c.conn.PayloadType = websocket.TextFrame
	return err
}

// Hub fans payloads out to connected clients, one client per source IP.
type Hub struct {
	mu        sync.RWMutex
	clients   map[*client]struct{}
	byIP      map[string]*client
	queueSize int
	drops     atomic.Int64
}

// NewHub creates a hub whose clients buffer up to queueSize payloads.
func NewHub(queueSize int) *Hub {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Hub{
		clients:   make(map[*client]struct{}),
		byIP:      make(map[string]*client),
		queueSize: queueSize,
	}
}

// register adds c and returns the client it replaced for the same IP, if any.
// The caller closes the replaced client.
func (h *Hub) register(c *client) *client {
	h.mu.Lock()
	defer h.mu.Unlock()
	old := h.byIP[c.ip]
	if old != nil {
		delete(h.clients, old)
	}
	h.clients[c] = struct{}{}
	h.byIP[c.ip] = c
	return old
}

// unregister removes c. The IP slot is only released if c still owns it.
func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, c)
	if h.byIP[c.ip] == c {
		delete(h.byIP, c.ip)
	}
}

// Broadcast enqueues payload for every client without blocking and returns
// how many clients had a full queue.
func (h *Hub) Broadcast(payload []byte) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	dropped := 0
	for c := range h.clients {
		select {
		case c.queue <- payload:
		default:
			dropped++
		}
	}
	if dropped > 0 {
		h.drops.Add(int64(dropped))
	}
	return dropped
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// MaxQueueDepth returns the fullest client queue length.
func (h *Hub) MaxQueueDepth() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	deepest := 0
	for c := range h.clients {
		if n := len(c.queue); n > deepest {
			deepest = n
		}
	}
	return deepest
}

// QueueDrops returns the total number of payloads dropped on full queues.
func (h *Hub) QueueDrops() int64 {
	return h.drops.Load()
}
