package config

import (
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// MonitorConfig holds the transaction monitor configuration.
type MonitorConfig struct {
	LogLevel             string        `env:"LOG_LEVEL" envDefault:"info"`
	StreamURL            string        `env:"STREAM_URL" envDefault:"ws://localhost:8765"`
	HTTPAddr             string        `env:"HTTP_ADDR" envDefault:":8080"`
	MetricsAddr          string        `env:"METRICS_ADDR" envDefault:":9091"`
	SweepInterval        time.Duration `env:"SWEEP_INTERVAL" envDefault:"200ms"`
	RateWindow           time.Duration `env:"RATE_WINDOW" envDefault:"10s"`
	LingerSeconds        int           `env:"LINGER_SECONDS" envDefault:"10"`
	AutoRemove           bool          `env:"AUTO_REMOVE" envDefault:"true"`
	HistoryLimit         int           `env:"HISTORY_LIMIT" envDefault:"200"`
	DialTimeout          time.Duration `env:"DIAL_TIMEOUT" envDefault:"5s"`
	AlertThreshold       int           `env:"ALERT_THRESHOLD" envDefault:"0"` // seconds, 0 disables
	PostgresURL          string        `env:"POSTGRES_URL"`
	ArchiveBatchSize     int           `env:"ARCHIVE_BATCH_SIZE" envDefault:"500"`
	ArchiveFlushInterval time.Duration `env:"ARCHIVE_FLUSH_INTERVAL" envDefault:"2s"`
}

// RelayConfig holds the UDP to WebSocket relay configuration.
type RelayConfig struct {
	LogLevel          string        `env:"LOG_LEVEL" envDefault:"info"`
	UDPAddr           string        `env:"UDP_ADDR" envDefault:":20000"`
	WSAddr            string        `env:"WS_ADDR" envDefault:":8765"`
	MetricsAddr       string        `env:"METRICS_ADDR" envDefault:":9092"`
	ClientQueueSize   int           `env:"CLIENT_QUEUE_SIZE" envDefault:"4000"`
	HeartbeatInterval time.Duration `env:"HEARTBEAT_INTERVAL" envDefault:"20s"`
	StatsInterval     time.Duration `env:"STATS_INTERVAL" envDefault:"5s"`
	RedisAddr         string        `env:"REDIS_ADDR"`
	RedisStream       string        `env:"REDIS_STREAM" envDefault:"txn_events"`
	RedisStreamMaxLen int64         `env:"REDIS_STREAM_MAXLEN" envDefault:"100000"`
	RedactFields      string        `env:"REDACT_FIELDS" envDefault:""`
}

// RedactFieldList splits RedactFields on commas, dropping blanks.
func (c *RelayConfig) RedactFieldList() []string {
	var out []string
	for _, f := range strings.Split(c.RedactFields, ",") {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

// LoadMonitor reads the monitor configuration from environment variables.
func LoadMonitor() (*MonitorConfig, error) {
	cfg := &MonitorConfig{}
	if err := load(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadRelay reads the relay configuration from environment variables.
func LoadRelay() (*RelayConfig, error) {
	cfg := &RelayConfig{}
	if err := load(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func load(cfg any) error {
	// Attempt to load .env file for local development.
	_ = godotenv.Load()
	return env.Parse(cfg)
}
