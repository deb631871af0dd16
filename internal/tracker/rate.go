package tracker

import (
	"sync"
	"time"
)

// DefaultRateWindow is the sliding window used for throughput.
const DefaultRateWindow = 10 * time.Second

// RateTracker counts arrivals over a sliding window. Old arrivals are dropped
// lazily when the rate is queried.
type RateTracker struct {
	mu       sync.Mutex
	window   time.Duration
	arrivals []time.Time
}

// NewRateTracker creates a tracker over window; non-positive means DefaultRateWindow.
func NewRateTracker(window time.Duration) *RateTracker {
	if window <= 0 {
		window = DefaultRateWindow
	}
	return &RateTracker{window: window}
}

// Record notes one arrival at now.
func (r *RateTracker) Record(now time.Time) {
	r.mu.Lock()
	r.arrivals = append(r.arrivals, now)
	r.mu.Unlock()
}

// Rate returns arrivals per second over the window ending at now.
func (r *RateTracker) Rate(now time.Time) float64 {
	n := r.Count(now)
	return float64(n) / r.window.Seconds()
}

// Count evicts arrivals older than the window and returns how many remain.
func (r *RateTracker) Count(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := now.Add(-r.window)
	i := 0
	for i < len(r.arrivals) && r.arrivals[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		// Compact once the dead prefix dominates so the backing array does not grow forever.
		if i > len(r.arrivals)/2 {
			r.arrivals = append(r.arrivals[:0:0], r.arrivals[i:]...)
		} else {
			r.arrivals = r.arrivals[i:]
		}
	}
	return len(r.arrivals)
}

// Window returns the configured window.
func (r *RateTracker) Window() time.Duration {
	return r.window
}
