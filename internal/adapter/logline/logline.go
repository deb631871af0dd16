// Package logline converts pipe-delimited transaction log lines into wire
// events and paces their replay.
//
// A line looks like
//
//	INFO|Uxd:03/12/2025|Uxt:12:14:22.946|Tid:abc|Msg:started
//
// The first segment is the status; every other segment is Key:Value, split on
// the first colon. A segment without a colon becomes a key with an empty value.
package logline

import (
	"strings"
	"time"
)

const (
	uxtLayout = "15:04:05"

	// DefaultGap is the pause between lines when not pacing by timestamps.
	DefaultGap = 10 * time.Millisecond
	// longGap is the delta at or above which realtime replay waits only MaxIdle.
	longGap = 10 * time.Second
	// MaxIdle is the pause used in place of long gaps.
	MaxIdle = 1 * time.Second
)

// Parse converts one line into event fields. Blank lines return ok=false.
func Parse(line string) (fields map[string]string, ok bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, false
	}

	parts := strings.Split(line, "|")
	fields = make(map[string]string, len(parts))
	fields["Status"] = parts[0]
	for _, p := range parts[1:] {
		key, value, _ := strings.Cut(p, ":")
		fields[key] = value
	}
	return fields, true
}

// ParseUxt parses an HH:MM:SS.mmm time of day.
func ParseUxt(s string) (time.Time, bool) {
	t, err := time.Parse(uxtLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Pacer decides how long to wait before sending each line.
type Pacer struct {
	realtime bool
	prev     time.Time
	havePrev bool
}

// NewPacer creates a pacer. In realtime mode lines are spaced by the delta
// between their Uxt timestamps; otherwise by DefaultGap.
func NewPacer(realtime bool) *Pacer {
	return &Pacer{realtime: realtime}
}

// Next returns the wait before sending the line with the given fields.
func (p *Pacer) Next(fields map[string]string) time.Duration {
	if !p.realtime {
		return DefaultGap
	}

	cur, ok := ParseUxt(fields["Uxt"])
	if !ok {
		return 0
	}
	var wait time.Duration
	if p.havePrev {
		switch delta := cur.Sub(p.prev); {
		case delta >= longGap:
			wait = MaxIdle
		case delta > 0:
			wait = delta
		}
	}
	p.prev, p.havePrev = cur, true
	return wait
}
