package relay

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"golang.org/x/net/websocket"

	"github.com/V4T54L/txn-watch/internal/adapter/metrics"
	"github.com/V4T54L/txn-watch/internal/domain/mocks"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition not met: %s", msg)
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/"
	conn, err := websocket.Dial(url, "", srv.URL)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func receive(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg string
	if err := websocket.Message.Receive(conn, &msg); err != nil {
		t.Fatalf("receive: %v", err)
	}
	var obj map[string]interface{}
	if err := json.Unmarshal([]byte(msg), &obj); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	return obj
}

func TestRelay_FansOutToWebSocketClients(t *testing.T) {
	m := metrics.NewRelayMetrics(prometheus.NewRegistry())
	r := New(Options{}, nil, nil, m, discardLogger())
	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	conn := dial(t, srv)
	defer conn.Close()
	eventually(t, func() bool { return r.Hub().ClientCount() == 1 }, "client registered")

	r.HandleDatagram([]byte(`{"Tid":"A","Status":"INFO"}`), "10.9.8.7")
	r.HandleDatagram([]byte(`garbage`), "10.9.8.7")
	r.HandleDatagram([]byte(`{"Tid":"A","Status":"SUCCESS"}`), "10.9.8.7")

	first := receive(t, conn)
	if first["Tid"] != "A" || first["Status"] != "INFO" || first[SourceIPKey] != "10.9.8.7" {
		t.Errorf("unexpected first payload: %v", first)
	}
	if _, ok := first[ReceivedAtKey]; !ok {
		t.Error("missing receive timestamp")
	}
	if second := receive(t, conn); second["Status"] != "SUCCESS" {
		t.Errorf("payloads out of order: %v", second)
	}

	if got := testutil.ToFloat64(m.DatagramsTotal); got != 3 {
		t.Errorf("datagrams = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.DecodeDropsTotal); got != 1 {
		t.Errorf("decode drops = %v, want 1", got)
	}
}

func TestRelay_ReplacesConnectionFromSameIP(t *testing.T) {
	r := New(Options{}, nil, nil, nil, discardLogger())
	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	first := dial(t, srv)
	defer first.Close()
	eventually(t, func() bool { return r.Hub().ClientCount() == 1 }, "first client registered")

	second := dial(t, srv)
	defer second.Close()

	// The first connection is closed by the server.
	_ = first.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg string
	if err := websocket.Message.Receive(first, &msg); err == nil {
		t.Fatalf("expected the replaced connection to be closed, got message %q", msg)
	}

	eventually(t, func() bool { return r.Hub().ClientCount() == 1 }, "one client after replacement")
	r.HandleDatagram([]byte(`{"Tid":"B"}`), "10.0.0.1")
	if got := receive(t, second); got["Tid"] != "B" {
		t.Errorf("unexpected payload on the new connection: %v", got)
	}
}

func TestRelay_Heartbeat(t *testing.T) {
	r := New(Options{HeartbeatInterval: 10 * time.Millisecond}, nil, nil, nil, discardLogger())
	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	conn := dial(t, srv)
	defer conn.Close()
	eventually(t, func() bool { return r.Hub().ClientCount() == 1 }, "client registered")

	// Pings are answered by the client library while it reads; data still
	// arrives intact between them.
	time.Sleep(50 * time.Millisecond)
	r.HandleDatagram([]byte(`{"Tid":"C"}`), "10.0.0.1")
	if got := receive(t, conn); got["Tid"] != "C" {
		t.Errorf("unexpected payload: %v", got)
	}
	if r.Hub().ClientCount() != 1 {
		t.Error("heartbeat must not drop a healthy client")
	}
}

func TestRelay_ServeUDP(t *testing.T) {
	r := New(Options{}, nil, nil, nil, discardLogger())
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.ServeUDP(ctx, pc) }()

	sender, err := net.Dial("udp", pc.LocalAddr().String())
	if err != nil {
		t.Fatalf("dial udp: %v", err)
	}
	defer sender.Close()

	eventually(t, func() bool {
		_, _ = sender.Write([]byte(`{"Tid":"U"}`))
		return r.received.Load() > 0
	}, "datagram received")

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("ServeUDP() = %v, want nil on cancel", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("ServeUDP did not stop")
	}
}

func TestRelay_Mirror(t *testing.T) {
	mirror := &mocks.MockStreamMirror{}
	m := metrics.NewRelayMetrics(prometheus.NewRegistry())
	r := New(Options{}, nil, mirror, m, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.RunMirror(ctx)

	r.HandleDatagram([]byte(`{"Tid":"M"}`), "10.0.0.1")
	eventually(t, func() bool { return mirror.Count() == 1 }, "payload mirrored")

	var obj map[string]interface{}
	if err := json.Unmarshal(mirror.Published[0], &obj); err != nil || obj[SourceIPKey] != "10.0.0.1" {
		t.Errorf("mirrored payload must be annotated: %s", mirror.Published[0])
	}

	s := r.Report(context.Background(), time.Now())
	if s.MirrorLength != 1 || testutil.ToFloat64(m.MirrorLength) != 1 {
		t.Errorf("mirror length = %d (gauge %v), want 1", s.MirrorLength, testutil.ToFloat64(m.MirrorLength))
	}
	if got := testutil.ToFloat64(m.MirrorAvailable); got != 1 {
		t.Errorf("mirror available gauge = %v, want 1", got)
	}

	mirror.Down = true
	r.HandleDatagram([]byte(`{"Tid":"N"}`), "10.0.0.1")
	time.Sleep(20 * time.Millisecond)
	if mirror.Count() != 1 {
		t.Error("payloads must not be queued while the mirror is down")
	}

	r.Report(context.Background(), time.Now())
	if got := testutil.ToFloat64(m.MirrorAvailable); got != 0 {
		t.Errorf("mirror available gauge = %v, want 0", got)
	}
}

func TestRelay_Report(t *testing.T) {
	r := New(Options{QueueSize: 1}, nil, nil, nil, discardLogger())
	start := time.Unix(1000, 0)
	r.lastReport = start

	slow := newClient("10.0.0.1", nil, 1)
	r.hub.register(slow)
	for i := 0; i < 10; i++ {
		r.HandleDatagram([]byte(`{"Tid":"R"}`), "10.0.0.2")
	}

	s := r.Report(context.Background(), start.Add(5*time.Second))
	if s.ReceivedTotal != 10 || s.ReceivedRate != 2 {
		t.Errorf("received = %d at %v/s, want 10 at 2/s", s.ReceivedTotal, s.ReceivedRate)
	}
	if s.QueueDrops != 9 || s.QueueDropsTotal != 9 {
		t.Errorf("queue drops = %d/%d, want 9/9", s.QueueDrops, s.QueueDropsTotal)
	}
	if s.Clients != 1 || s.MaxQueueDepth != 1 {
		t.Errorf("clients=%d qmax=%d", s.Clients, s.MaxQueueDepth)
	}

	s = r.Report(context.Background(), start.Add(10*time.Second))
	if s.ReceivedRate != 0 || s.QueueDrops != 0 || s.QueueDropsTotal != 9 {
		t.Errorf("second interval must only count new activity: %+v", s)
	}
}
