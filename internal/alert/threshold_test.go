package alert

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/quantpulse/marketd/internal/domain"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func tickAt(symbol, price, volume string, ts time.Time) domain.NormalizedTick {
	return domain.NormalizedTick{
		Exchange:  "binance",
		Source:    domain.SourceStreaming,
		Symbol:    symbol,
		Price:     d(price),
		Volume:    d(volume),
		Timestamp: ts,
	}
}

func TestPriceThresholdAbove(t *testing.T) {
	e := NewPriceThreshold()
	rule := domain.AlertRule{ID: 1, Kind: domain.RulePriceAbove, Threshold: d("50000")}
	ts := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	assert.True(t, e.CanEvaluate(rule))

	res := e.Evaluate(rule, tickAt("BTCUSDT", "50001", "1", ts))
	assert.True(t, res.Triggered)
	assert.Contains(t, res.Message, "BTCUSDT")

	// Equality never triggers.
	assert.False(t, e.Evaluate(rule, tickAt("BTCUSDT", "50000", "1", ts)).Triggered)
	assert.False(t, e.Evaluate(rule, tickAt("BTCUSDT", "49999", "1", ts)).Triggered)
}

func TestPriceThresholdBelow(t *testing.T) {
	e := NewPriceThreshold()
	rule := domain.AlertRule{ID: 2, Kind: domain.RulePriceBelow, Threshold: d("50000")}
	ts := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	assert.True(t, e.Evaluate(rule, tickAt("BTCUSDT", "49999", "1", ts)).Triggered)
	assert.False(t, e.Evaluate(rule, tickAt("BTCUSDT", "50000", "1", ts)).Triggered)
	assert.False(t, e.Evaluate(rule, tickAt("BTCUSDT", "50001", "1", ts)).Triggered)
}

func TestPriceThresholdIgnoresOtherKinds(t *testing.T) {
	e := NewPriceThreshold()
	assert.False(t, e.CanEvaluate(domain.AlertRule{Kind: domain.RuleVolumeSpike}))
	assert.False(t, e.CanEvaluate(domain.AlertRule{Kind: domain.RuleVolatility}))
}
