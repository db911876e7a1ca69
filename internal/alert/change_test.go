package alert

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/quantpulse/marketd/internal/domain"
)

func TestPriceChangeTriggersAboveThreshold(t *testing.T) {
	e := NewPriceChangePercent()
	rule := domain.AlertRule{ID: 1, Kind: domain.RulePriceChangePercent, Threshold: d("5"), PeriodMinutes: 5}
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	// Baseline tick anchors the window and never triggers.
	assert.False(t, e.Evaluate(rule, tickAt("BTCUSDT", "100", "1", base)).Triggered)

	// +6% inside the window.
	res := e.Evaluate(rule, tickAt("BTCUSDT", "106", "1", base.Add(2*time.Minute)))
	assert.True(t, res.Triggered)
	assert.Contains(t, res.Message, "BTCUSDT")
}

func TestPriceChangeBelowThresholdDoesNotTrigger(t *testing.T) {
	e := NewPriceChangePercent()
	rule := domain.AlertRule{ID: 1, Kind: domain.RulePriceChangePercent, Threshold: d("5"), PeriodMinutes: 5}
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	e.Evaluate(rule, tickAt("BTCUSDT", "100", "1", base))
	assert.False(t, e.Evaluate(rule, tickAt("BTCUSDT", "103", "1", base.Add(2*time.Minute))).Triggered)
}

func TestPriceChangeNegativeMoveTriggersOnAbs(t *testing.T) {
	e := NewPriceChangePercent()
	rule := domain.AlertRule{ID: 1, Kind: domain.RulePriceChangePercent, Threshold: d("5"), PeriodMinutes: 5}
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	e.Evaluate(rule, tickAt("BTCUSDT", "100", "1", base))
	assert.True(t, e.Evaluate(rule, tickAt("BTCUSDT", "94", "1", base.Add(time.Minute))).Triggered)
}

func TestPriceChangeResetsOnPeriodExpiry(t *testing.T) {
	e := NewPriceChangePercent()
	rule := domain.AlertRule{ID: 1, Kind: domain.RulePriceChangePercent, Threshold: d("5"), PeriodMinutes: 5}
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	e.Evaluate(rule, tickAt("BTCUSDT", "100", "1", base))

	// After the period expires the baseline resets and the tick does not
	// trigger even though the move from the old baseline is 10%.
	res := e.Evaluate(rule, tickAt("BTCUSDT", "110", "1", base.Add(6*time.Minute)))
	assert.False(t, res.Triggered)

	// The new baseline is (110, T+6m): +6% from 110 triggers again.
	res = e.Evaluate(rule, tickAt("BTCUSDT", "117", "1", base.Add(8*time.Minute)))
	assert.True(t, res.Triggered)
}

func TestPriceChangeZeroBaselineNeverTriggers(t *testing.T) {
	e := NewPriceChangePercent()
	rule := domain.AlertRule{ID: 1, Kind: domain.RulePriceChangePercent, Threshold: d("5"), PeriodMinutes: 5}
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	e.Evaluate(rule, tickAt("BTCUSDT", "0", "1", base))
	assert.False(t, e.Evaluate(rule, tickAt("BTCUSDT", "100", "1", base.Add(time.Minute))).Triggered)
}

func TestPriceChangeWindowIsPerSymbol(t *testing.T) {
	e := NewPriceChangePercent()
	rule := domain.AlertRule{ID: 1, Kind: domain.RulePriceChangePercent, Threshold: d("5"), PeriodMinutes: 5}
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	e.Evaluate(rule, tickAt("BTCUSDT", "100", "1", base))
	// First ETH tick is its own baseline, independent of BTC.
	assert.False(t, e.Evaluate(rule, tickAt("ETHUSDT", "200", "1", base.Add(time.Minute))).Triggered)
	assert.True(t, e.Evaluate(rule, tickAt("BTCUSDT", "106", "1", base.Add(time.Minute))).Triggered)
}
