package config

import (
	"testing"
	"time"
)

func TestLoadMonitor_Defaults(t *testing.T) {
	cfg, err := LoadMonitor()
	if err != nil {
		t.Fatalf("LoadMonitor() error = %v", err)
	}
	if cfg.StreamURL != "ws://localhost:8765" {
		t.Errorf("StreamURL = %q", cfg.StreamURL)
	}
	if cfg.SweepInterval != 200*time.Millisecond || cfg.RateWindow != 10*time.Second {
		t.Errorf("unexpected intervals: sweep=%v window=%v", cfg.SweepInterval, cfg.RateWindow)
	}
	if !cfg.AutoRemove || cfg.LingerSeconds != 10 || cfg.HistoryLimit != 200 {
		t.Errorf("unexpected retention defaults: %+v", cfg)
	}
	if cfg.PostgresURL != "" || cfg.AlertThreshold != 0 {
		t.Errorf("archive and alerts must be off by default: %+v", cfg)
	}
}

func TestLoadMonitor_Overrides(t *testing.T) {
	t.Setenv("STREAM_URL", "ws://relay:9000")
	t.Setenv("AUTO_REMOVE", "false")
	t.Setenv("LINGER_SECONDS", "3")
	t.Setenv("SWEEP_INTERVAL", "1s")

	cfg, err := LoadMonitor()
	if err != nil {
		t.Fatalf("LoadMonitor() error = %v", err)
	}
	if cfg.StreamURL != "ws://relay:9000" || cfg.AutoRemove || cfg.LingerSeconds != 3 || cfg.SweepInterval != time.Second {
		t.Errorf("overrides not applied: %+v", cfg)
	}
}

func TestLoadMonitor_InvalidValue(t *testing.T) {
	t.Setenv("LINGER_SECONDS", "ten")
	if _, err := LoadMonitor(); err == nil {
		t.Fatal("expected an error for a non-numeric LINGER_SECONDS")
	}
}

func TestLoadRelay(t *testing.T) {
	t.Setenv("REDACT_FIELDS", " Uid, ,Cid ")
	t.Setenv("CLIENT_QUEUE_SIZE", "16")

	cfg, err := LoadRelay()
	if err != nil {
		t.Fatalf("LoadRelay() error = %v", err)
	}
	if cfg.UDPAddr != ":20000" || cfg.WSAddr != ":8765" || cfg.ClientQueueSize != 16 {
		t.Errorf("unexpected relay config: %+v", cfg)
	}
	fields := cfg.RedactFieldList()
	if len(fields) != 2 || fields[0] != "Uid" || fields[1] != "Cid" {
		t.Errorf("RedactFieldList() = %v", fields)
	}
	if cfg.HeartbeatInterval != 20*time.Second || cfg.StatsInterval != 5*time.Second {
		t.Errorf("unexpected relay intervals: %+v", cfg)
	}
}
