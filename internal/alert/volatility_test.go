package alert

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/quantpulse/marketd/internal/domain"
)

func TestVolatilityRequiresThreeEntries(t *testing.T) {
	e := NewVolatility()
	rule := domain.AlertRule{ID: 1, Kind: domain.RuleVolatility, Threshold: d("0"), PeriodMinutes: 5}
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	assert.False(t, e.Evaluate(rule, tickAt("BTCUSDT", "100", "1", base)).Triggered)
	assert.False(t, e.Evaluate(rule, tickAt("BTCUSDT", "150", "1", base.Add(time.Minute))).Triggered)
	// Third entry: returns {+50%, -33.3%}, std dev > 0.
	assert.True(t, e.Evaluate(rule, tickAt("BTCUSDT", "100", "1", base.Add(2*time.Minute))).Triggered)
}

func TestVolatilityFlatPricesDoNotTrigger(t *testing.T) {
	e := NewVolatility()
	rule := domain.AlertRule{ID: 1, Kind: domain.RuleVolatility, Threshold: d("1"), PeriodMinutes: 5}
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		res := e.Evaluate(rule, tickAt("BTCUSDT", "100", "1", base.Add(time.Duration(i)*time.Minute)))
		assert.False(t, res.Triggered)
	}
}

func TestVolatilitySkipsZeroPriceReturns(t *testing.T) {
	e := NewVolatility()
	rule := domain.AlertRule{ID: 1, Kind: domain.RuleVolatility, Threshold: d("5"), PeriodMinutes: 5}
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	// Prices 100, 0, 105, 110: the return after the zero price is skipped
	// and evaluation must not panic.
	assert.NotPanics(t, func() {
		e.Evaluate(rule, tickAt("BTCUSDT", "100", "1", base))
		e.Evaluate(rule, tickAt("BTCUSDT", "0", "1", base.Add(time.Minute)))
		e.Evaluate(rule, tickAt("BTCUSDT", "105", "1", base.Add(2*time.Minute)))
		e.Evaluate(rule, tickAt("BTCUSDT", "110", "1", base.Add(3*time.Minute)))
	})
}

func TestVolatilityEvictsOutsidePeriod(t *testing.T) {
	e := NewVolatility()
	rule := domain.AlertRule{ID: 1, Kind: domain.RuleVolatility, Threshold: d("0"), PeriodMinutes: 5}
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	// Two volatile early points fall out of the window.
	e.Evaluate(rule, tickAt("BTCUSDT", "100", "1", base))
	e.Evaluate(rule, tickAt("BTCUSDT", "200", "1", base.Add(time.Minute)))

	// Ten minutes later only this point is in the window: fewer than three
	// entries, not triggered.
	res := e.Evaluate(rule, tickAt("BTCUSDT", "100", "1", base.Add(10*time.Minute)))
	assert.False(t, res.Triggered)
}

func TestPopulationStdDev(t *testing.T) {
	assert.InDelta(t, 2.0, populationStdDev([]float64{2, 4, 4, 4, 5, 5, 7, 9}), 1e-9)
	assert.Zero(t, populationStdDev([]float64{3, 3, 3}))
}
