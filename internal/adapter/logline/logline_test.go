package logline

import (
	"testing"
	"time"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name   string
		line   string
		wantOK bool
		want   map[string]string
	}{
		{
			name:   "status and fields",
			line:   "INFO|Tid:abc|Uxt:12:14:22.946|Msg:a:b",
			wantOK: true,
			want:   map[string]string{"Status": "INFO", "Tid": "abc", "Uxt": "12:14:22.946", "Msg": "a:b"},
		},
		{
			name:   "segment without colon",
			line:   "SUCCESS|Tid:x|Dbd",
			wantOK: true,
			want:   map[string]string{"Status": "SUCCESS", "Tid": "x", "Dbd": ""},
		},
		{
			name:   "surrounding whitespace",
			line:   "  START|Tid:t1 \n",
			wantOK: true,
			want:   map[string]string{"Status": "START", "Tid": "t1"},
		},
		{name: "blank line", line: "   ", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Parse(tt.line)
			if ok != tt.wantOK {
				t.Fatalf("Parse() ok = %v, want %v", ok, tt.wantOK)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("Parse() = %v, want %v", got, tt.want)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("%s = %q, want %q", k, got[k], v)
				}
			}
		})
	}
}

func TestParseUxt(t *testing.T) {
	a, ok := ParseUxt("12:14:22.946")
	if !ok {
		t.Fatal("expected a valid time")
	}
	b, _ := ParseUxt("12:14:23.046")
	if d := b.Sub(a); d != 100*time.Millisecond {
		t.Errorf("delta = %v, want 100ms", d)
	}
	if _, ok := ParseUxt("not a time"); ok {
		t.Error("expected invalid time to fail")
	}
}

func TestPacer_Realtime(t *testing.T) {
	p := NewPacer(true)
	steps := []struct {
		uxt  string
		want time.Duration
	}{
		{"12:00:00.000", 0},                      // first line
		{"12:00:00.250", 250 * time.Millisecond}, // normal gap
		{"12:00:00.250", 0},                      // same timestamp
		{"", 0},                                  // missing Uxt keeps previous
		{"12:00:05.250", 5 * time.Second},        // just under the cap
		{"12:00:15.250", MaxIdle},                // exactly ten seconds
		{"12:00:14.000", 0},                      // clock went backwards
		{"12:01:00.000", MaxIdle},                // long gap
	}
	for i, s := range steps {
		fields := map[string]string{}
		if s.uxt != "" {
			fields["Uxt"] = s.uxt
		}
		if got := p.Next(fields); got != s.want {
			t.Errorf("step %d (%q): wait = %v, want %v", i, s.uxt, got, s.want)
		}
	}
}

func TestPacer_Fixed(t *testing.T) {
	p := NewPacer(false)
	for _, uxt := range []string{"12:00:00.000", "13:00:00.000"} {
		if got := p.Next(map[string]string{"Uxt": uxt}); got != DefaultGap {
			t.Errorf("wait = %v, want %v", got, DefaultGap)
		}
	}
}
