package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	cfg := Defaults()
	cfg.Exchanges = []ExchangeConfig{
		{
			Name:    "binance",
			Symbols: []string{"BTCUSDT", "ETHUSDT"},
			WSURL:   "wss://stream.binance.com:9443",
			Source:  "stream",
		},
	}
	return cfg
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	assert.Equal(t, 10_000, cfg.Pipeline.QueueCapacity)
	assert.Equal(t, 500, cfg.Aggregator.TickBufferSize)
	assert.Equal(t, 10*time.Second, cfg.Aggregator.FlushInterval.Duration)
	assert.Equal(t, []string{"1m", "5m", "1h"}, cfg.Aggregator.CandleIntervals)
	assert.Equal(t, 120*time.Minute, cfg.Aggregator.CandleRetention.Duration)
	assert.Equal(t, 300*time.Second, cfg.Alerts.Cooldown.Duration)
	assert.Equal(t, 10, cfg.Alerts.MaxConcurrentNotifications)
}

func TestValidateAcceptsCompleteConfig(t *testing.T) {
	cfg := validConfig()
	assert.NoError(t, cfg.Validate())
}

func TestValidateCollectsAllProblems(t *testing.T) {
	cfg := validConfig()
	cfg.LogLevel = "verbose"
	cfg.Redis.Addr = ""
	cfg.Aggregator.TickBufferSize = 0
	cfg.Exchanges = nil

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "log_level")
	assert.Contains(t, msg, "redis: addr")
	assert.Contains(t, msg, "tick_buffer_size")
	assert.Contains(t, msg, "exchanges")
}

func TestValidateRejectsUnknownChannelType(t *testing.T) {
	cfg := validConfig()
	cfg.Channels = append(cfg.Channels, ChannelConfig{Name: "pager", Type: "pagerduty", Enabled: true})
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pagerduty")
}

func TestValidateRejectsUnknownInterval(t *testing.T) {
	cfg := validConfig()
	cfg.Aggregator.CandleIntervals = []string{"1m", "2h"}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2h")
}

func TestValidateStreamingRequiresWSURL(t *testing.T) {
	cfg := validConfig()
	cfg.Exchanges[0].WSURL = ""
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ws_url")
}

func TestLoadMergesTOMLOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
log_level = "debug"

[aggregator]
tick_buffer_size = 250
flush_interval = "5s"

[[exchanges]]
name = "binance"
symbols = ["btcusdt"]
ws_url = "wss://stream.binance.com:9443"
source = "stream"
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 250, cfg.Aggregator.TickBufferSize)
	assert.Equal(t, 5*time.Second, cfg.Aggregator.FlushInterval.Duration)
	// Untouched defaults survive the merge.
	assert.Equal(t, 10_000, cfg.Pipeline.QueueCapacity)
	require.Len(t, cfg.Exchanges, 1)
	assert.NoError(t, cfg.Validate())
}

func TestEnvOverridesWin(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[redis]
addr = "redis-from-file:6379"
`), 0o644))

	t.Setenv("MARKETD_REDIS_ADDR", "redis-from-env:6379")
	t.Setenv("MARKETD_AGGREGATOR_FLUSH_INTERVAL", "30s")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "redis-from-env:6379", cfg.Redis.Addr)
	assert.Equal(t, 30*time.Second, cfg.Aggregator.FlushInterval.Duration)
}
