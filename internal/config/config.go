// Package config defines the marketd configuration and validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by MARKETD_* environment
// variables.
type Config struct {
	Postgres   PostgresConfig   `toml:"postgres"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	Pipeline   PipelineConfig   `toml:"pipeline"`
	Aggregator AggregatorConfig `toml:"aggregator"`
	Alerts     AlertsConfig     `toml:"alerts"`
	Channels   []ChannelConfig  `toml:"channels"`
	Exchanges  []ExchangeConfig `toml:"exchanges"`
	Retention  RetentionConfig  `toml:"retention"`
	LogLevel   string           `toml:"log_level"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters for the deduplicator.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for the tick
// archive. Leaving Bucket empty disables archival.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// PipelineConfig holds tick-pipeline parameters.
type PipelineConfig struct {
	// QueueCapacity is the bounded queue depth. The production default is
	// 10000; it is configurable so tests can exercise backpressure cheaply.
	QueueCapacity int `toml:"queue_capacity"`
}

// AggregatorConfig holds candle aggregation parameters.
type AggregatorConfig struct {
	TickBufferSize  int      `toml:"tick_buffer_size"`
	FlushInterval   duration `toml:"flush_interval"`
	CandleIntervals []string `toml:"candle_intervals"`
	// CandleRetention bounds how long an open candle may stay in memory
	// before it is evicted to storage even if its window has not closed.
	CandleRetention duration `toml:"in_memory_candle_retention"`
}

// AlertsConfig holds alert engine parameters.
type AlertsConfig struct {
	Cooldown                   duration `toml:"cooldown"`
	MaxConcurrentNotifications int      `toml:"max_concurrent_notifications"`
	RuleCacheTTL               duration `toml:"rule_cache_ttl"`
}

// ChannelConfig describes one notification channel.
type ChannelConfig struct {
	Name     string            `toml:"name"`
	Type     string            `toml:"type"` // console, file, email
	Enabled  bool              `toml:"enabled"`
	Settings map[string]string `toml:"settings"`
}

// ExchangeConfig describes one exchange feed: which symbols to ingest and
// which source types to run.
type ExchangeConfig struct {
	Name         string   `toml:"name"`
	Symbols      []string `toml:"symbols"`
	WSURL        string   `toml:"ws_url"`
	PollURL      string   `toml:"poll_url"`
	PollInterval duration `toml:"poll_interval"`
	// Source selects the adapters to start: "stream", "poll" or "both".
	Source string `toml:"source"`
}

// RetentionConfig controls the archive-then-delete cycle for old ticks.
type RetentionConfig struct {
	Days int    `toml:"days"`
	Cron string `toml:"cron"`
	// DeleteWithoutArchive permits the retention delete to run when no S3
	// bucket is configured. Off by default: data is never dropped
	// unarchived unless explicitly requested.
	DeleteWithoutArchive bool `toml:"delete_without_archive"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "marketd",
			User:          "marketd",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
		},
		Pipeline: PipelineConfig{
			QueueCapacity: 10_000,
		},
		Aggregator: AggregatorConfig{
			TickBufferSize:  500,
			FlushInterval:   duration{10 * time.Second},
			CandleIntervals: []string{"1m", "5m", "1h"},
			CandleRetention: duration{120 * time.Minute},
		},
		Alerts: AlertsConfig{
			Cooldown:                   duration{300 * time.Second},
			MaxConcurrentNotifications: 10,
			RuleCacheTTL:               duration{5 * time.Second},
		},
		Channels: []ChannelConfig{
			{Name: "console", Type: "console", Enabled: true},
		},
		Retention: RetentionConfig{
			Days: 90,
			Cron: "0 4 * * *",
		},
		LogLevel: "info",
	}
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// validChannelTypes enumerates the shipped notification channel types.
var validChannelTypes = map[string]bool{
	"console": true,
	"file":    true,
	"email":   true,
}

// Validate checks Config for obviously invalid or missing values and
// returns a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3 — optional, but when a bucket is set the region must be too.
	if c.S3.Bucket != "" && c.S3.Region == "" {
		errs = append(errs, "s3: region must be set when a bucket is configured")
	}

	// Pipeline
	if c.Pipeline.QueueCapacity < 1 {
		errs = append(errs, "pipeline: queue_capacity must be >= 1")
	}

	// Aggregator
	if c.Aggregator.TickBufferSize < 1 {
		errs = append(errs, "aggregator: tick_buffer_size must be >= 1")
	}
	if c.Aggregator.FlushInterval.Duration <= 0 {
		errs = append(errs, "aggregator: flush_interval must be positive")
	}
	if len(c.Aggregator.CandleIntervals) == 0 {
		errs = append(errs, "aggregator: candle_intervals must not be empty")
	}
	for _, iv := range c.Aggregator.CandleIntervals {
		switch iv {
		case "1m", "5m", "1h":
		default:
			errs = append(errs, fmt.Sprintf("aggregator: unknown candle interval %q (valid: 1m, 5m, 1h)", iv))
		}
	}
	if c.Aggregator.CandleRetention.Duration <= 0 {
		errs = append(errs, "aggregator: in_memory_candle_retention must be positive")
	}

	// Alerts
	if c.Alerts.Cooldown.Duration <= 0 {
		errs = append(errs, "alerts: cooldown must be positive")
	}
	if c.Alerts.MaxConcurrentNotifications < 1 {
		errs = append(errs, "alerts: max_concurrent_notifications must be >= 1")
	}

	// Channels
	for i, ch := range c.Channels {
		if ch.Name == "" {
			errs = append(errs, fmt.Sprintf("channels[%d]: name must not be empty", i))
		}
		if !validChannelTypes[ch.Type] {
			errs = append(errs, fmt.Sprintf("channels[%d]: unknown type %q (valid: console, file, email)", i, ch.Type))
		}
		if ch.Type == "file" && ch.Settings["path"] == "" {
			errs = append(errs, fmt.Sprintf("channels[%d]: file channel requires settings.path", i))
		}
	}

	// Exchanges
	if len(c.Exchanges) == 0 {
		errs = append(errs, "exchanges: at least one exchange must be configured")
	}
	for i, ex := range c.Exchanges {
		if ex.Name == "" {
			errs = append(errs, fmt.Sprintf("exchanges[%d]: name must not be empty", i))
		}
		if len(ex.Symbols) == 0 {
			errs = append(errs, fmt.Sprintf("exchanges[%d]: symbols must not be empty", i))
		}
		switch ex.Source {
		case "stream", "poll", "both":
		default:
			errs = append(errs, fmt.Sprintf("exchanges[%d]: source must be stream, poll or both, got %q", i, ex.Source))
		}
		if (ex.Source == "stream" || ex.Source == "both") && ex.WSURL == "" {
			errs = append(errs, fmt.Sprintf("exchanges[%d]: ws_url is required for streaming", i))
		}
		if (ex.Source == "poll" || ex.Source == "both") && ex.PollURL == "" {
			errs = append(errs, fmt.Sprintf("exchanges[%d]: poll_url is required for polling", i))
		}
	}

	// Retention
	if c.Retention.Days < 1 {
		errs = append(errs, "retention: days must be >= 1")
	}
	if c.Retention.Cron == "" {
		errs = append(errs, "retention: cron must not be empty")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
