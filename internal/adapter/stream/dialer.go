package stream

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"time"

	"golang.org/x/net/websocket"
)

// Conn is an established inbound event connection.
type Conn interface {
	// Receive blocks for the next payload.
	Receive() ([]byte, error)
	Close() error
}

// Dialer opens connections to a stream target.
type Dialer interface {
	Dial(ctx context.Context, target string) (Conn, error)
}

// WebSocketDialer dials WebSocket targets; each text frame is one payload.
type WebSocketDialer struct {
	Timeout time.Duration
}

// Dial connects to a ws:// or wss:// URL.
func (d WebSocketDialer) Dial(ctx context.Context, target string) (Conn, error) {
	origin, err := originFor(target)
	if err != nil {
		return nil, err
	}
	cfg, err := websocket.NewConfig(target, origin)
	if err != nil {
		return nil, fmt.Errorf("invalid stream target %q: %w", target, err)
	}
	if d.Timeout > 0 {
		cfg.Dialer = &net.Dialer{Timeout: d.Timeout}
	}
	ws, err := cfg.DialContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", target, err)
	}
	return &wsConn{ws: ws}, nil
}

type wsConn struct {
	ws *websocket.Conn
}

func (c *wsConn) Receive() ([]byte, error) {
	var payload []byte
	if err := websocket.Message.Receive(c.ws, &payload); err != nil {
		return nil, err
	}
	return payload, nil
}

func (c *wsConn) Close() error {
	return c.ws.Close()
}

// originFor derives an http(s) origin from a ws(s) target.
func originFor(target string) (string, error) {
	u, err := url.Parse(target)
	if err != nil {
		return "", fmt.Errorf("invalid stream target %q: %w", target, err)
	}
	scheme := "http"
	switch u.Scheme {
	case "wss":
		scheme = "https"
	case "ws":
	default:
		return "", fmt.Errorf("unsupported stream scheme %q", u.Scheme)
	}
	return scheme + "://" + u.Host + "/", nil
}
