package stream

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/V4T54L/txn-watch/internal/adapter/metrics"
)

// State is the connection lifecycle state.
type State int32

const (
	StateClosed State = iota
	StateConnecting
	StateOpen
)

var allStates = []string{StateClosed.String(), StateConnecting.String(), StateOpen.String()}

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	default:
		return "closed"
	}
}

const (
	baseDelay = 250 * time.Millisecond
	maxDelay  = 5 * time.Second
)

// ErrNotConnected is returned by Retarget when the supervisor was never started.
var ErrNotConnected = errors.New("stream supervisor is not connected")

// BackoffDelay returns the reconnect delay after the given number of
// consecutive failures: 250ms * 2^attempts, capped at five seconds.
func BackoffDelay(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	if attempts >= 5 {
		return maxDelay
	}
	d := baseDelay << attempts
	if d > maxDelay {
		return maxDelay
	}
	return d
}

// PayloadHandler receives every inbound payload, in arrival order, from the
// supervisor's goroutine.
type PayloadHandler func(payload []byte)

// Supervisor owns the inbound event connection: it dials, forwards payloads,
// and reconnects with exponential backoff until torn down.
type Supervisor struct {
	dialer  Dialer
	handler PayloadHandler
	logger  *slog.Logger
	metrics *metrics.MonitorMetrics

	// wait blocks for d or until ctx is done; replaced in tests.
	wait func(ctx context.Context, d time.Duration) error

	mu       sync.Mutex
	target   string
	state    State
	attempts int
	cancel   context.CancelFunc
	done     chan struct{}
	parent   context.Context
}

// NewSupervisor creates a supervisor for target. m may be nil.
func NewSupervisor(dialer Dialer, target string, handler PayloadHandler, logger *slog.Logger, m *metrics.MonitorMetrics) *Supervisor {
	s := &Supervisor{
		dialer:  dialer,
		handler: handler,
		logger:  logger.With("component", "stream_supervisor"),
		metrics: m,
		wait:    sleepContext,
		target:  target,
	}
	if m != nil {
		m.SetConnectionState(StateClosed.String(), allStates)
	}
	return s
}

// Connect starts the connection loop. It is a no-op while already running.
// The loop stops when ctx is cancelled or Teardown is called.
func (s *Supervisor) Connect(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.parent = ctx
	s.cancel = cancel
	s.done = make(chan struct{})
	s.attempts = 0
	go s.run(runCtx, s.target, s.done)
}

// Teardown cancels any pending reconnect, closes the active connection and
// waits for the loop to exit. No reconnects happen until Connect is called again.
func (s *Supervisor) Teardown() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.setState(StateClosed)
	s.logger.Info("stream connection torn down")
}

// Retarget tears down the current connection and connects to target.
func (s *Supervisor) Retarget(target string) error {
	s.mu.Lock()
	parent := s.parent
	s.mu.Unlock()
	if parent == nil {
		return ErrNotConnected
	}

	s.Teardown()
	s.mu.Lock()
	s.target = target
	s.mu.Unlock()
	s.logger.Info("stream target changed", "target", target)
	s.Connect(parent)
	return nil
}

// State returns the current connection state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ConnectionState returns the current state name.
func (s *Supervisor) ConnectionState() string {
	return s.State().String()
}

// Target returns the configured connection target.
func (s *Supervisor) Target() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.target
}

// Attempts returns the number of consecutive failed connection attempts.
func (s *Supervisor) Attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

func (s *Supervisor) run(ctx context.Context, target string, done chan struct{}) {
	defer func() {
		// When the parent context ended rather than Teardown, release the
		// loop so a later Connect starts a fresh one.
		s.mu.Lock()
		if s.done == done {
			s.cancel()
			s.cancel, s.done, s.parent = nil, nil, nil
		}
		s.mu.Unlock()
		s.setState(StateClosed)
		close(done)
	}()
	logger := s.logger.With("target", target)

	for {
		s.setState(StateConnecting)
		conn, err := s.dialer.Dial(ctx, target)
		if err == nil {
			if ctx.Err() != nil {
				_ = conn.Close()
				return
			}
			s.opened()
			logger.Info("stream connection open")
			err = s.readLoop(ctx, conn)
		}
		if ctx.Err() != nil {
			return
		}

		s.setState(StateClosed)
		delay := s.failed()
		logger.Warn("stream connection closed, reconnecting", "error", err, "delay", delay, "attempt", s.Attempts())
		if s.metrics != nil {
			s.metrics.ReconnectsTotal.Inc()
		}
		if err := s.wait(ctx, delay); err != nil {
			return
		}
	}
}

func (s *Supervisor) readLoop(ctx context.Context, conn Conn) error {
	stop := context.AfterFunc(ctx, func() {
		_ = conn.Close()
	})
	defer func() {
		if stop() {
			_ = conn.Close()
		}
	}()

	for {
		payload, err := conn.Receive()
		if err != nil {
			return err
		}
		s.handler(payload)
	}
}

func (s *Supervisor) opened() {
	s.mu.Lock()
	s.attempts = 0
	s.mu.Unlock()
	s.setState(StateOpen)
}

// failed records a failure and returns the delay before the next attempt.
func (s *Supervisor) failed() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts++
	return BackoffDelay(s.attempts)
}

func (s *Supervisor) setState(state State) {
	s.mu.Lock()
	changed := s.state != state
	s.state = state
	s.mu.Unlock()
	if changed && s.metrics != nil {
		s.metrics.SetConnectionState(state.String(), allStates)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
