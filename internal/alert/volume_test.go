package alert

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/quantpulse/marketd/internal/domain"
)

func TestVolumeSpikeStrictThreshold(t *testing.T) {
	rule := domain.AlertRule{ID: 1, Kind: domain.RuleVolumeSpike, Threshold: d("3"), PeriodMinutes: 5}
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	// Ratio exactly 3 does not trigger.
	e := NewVolumeSpike()
	e.Evaluate(rule, tickAt("BTCUSDT", "100", "1", base))
	e.Evaluate(rule, tickAt("BTCUSDT", "100", "1", base.Add(time.Minute)))
	assert.False(t, e.Evaluate(rule, tickAt("BTCUSDT", "100", "3", base.Add(2*time.Minute))).Triggered)

	// Ratio 3.01 does.
	e = NewVolumeSpike()
	e.Evaluate(rule, tickAt("BTCUSDT", "100", "1", base))
	e.Evaluate(rule, tickAt("BTCUSDT", "100", "1", base.Add(time.Minute)))
	res := e.Evaluate(rule, tickAt("BTCUSDT", "100", "3.01", base.Add(2*time.Minute)))
	assert.True(t, res.Triggered)
	assert.Contains(t, res.Message, "BTCUSDT")
}

func TestVolumeSpikeRequiresTwoEntries(t *testing.T) {
	e := NewVolumeSpike()
	rule := domain.AlertRule{ID: 1, Kind: domain.RuleVolumeSpike, Threshold: d("1"), PeriodMinutes: 5}
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	assert.False(t, e.Evaluate(rule, tickAt("BTCUSDT", "100", "1000", base)).Triggered)
}

func TestVolumeSpikeZeroAverageDoesNotTrigger(t *testing.T) {
	e := NewVolumeSpike()
	rule := domain.AlertRule{ID: 1, Kind: domain.RuleVolumeSpike, Threshold: d("2"), PeriodMinutes: 5}
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	e.Evaluate(rule, tickAt("BTCUSDT", "100", "0", base))
	assert.False(t, e.Evaluate(rule, tickAt("BTCUSDT", "100", "5", base.Add(time.Minute))).Triggered)
}

func TestVolumeSpikeEvictsOldEntries(t *testing.T) {
	e := NewVolumeSpike()
	rule := domain.AlertRule{ID: 1, Kind: domain.RuleVolumeSpike, Threshold: d("2"), PeriodMinutes: 5}
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	// This huge early volume falls out of the window before the spike.
	e.Evaluate(rule, tickAt("BTCUSDT", "100", "1000", base))
	e.Evaluate(rule, tickAt("BTCUSDT", "100", "1", base.Add(10*time.Minute)))

	// Only the v=1 entry remains as baseline: ratio 5 > 2 triggers.
	assert.True(t, e.Evaluate(rule, tickAt("BTCUSDT", "100", "5", base.Add(11*time.Minute))).Triggered)
}

func TestVolumeSpikeAverageExcludesCurrentTick(t *testing.T) {
	e := NewVolumeSpike()
	rule := domain.AlertRule{ID: 1, Kind: domain.RuleVolumeSpike, Threshold: d("4"), PeriodMinutes: 5}
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	e.Evaluate(rule, tickAt("BTCUSDT", "100", "2", base))
	e.Evaluate(rule, tickAt("BTCUSDT", "100", "2", base.Add(time.Minute)))

	// avg of {2,2} = 2; ratio 10/2 = 5 > 4. Were the current tick part of
	// its own baseline the ratio would be 10/(14/3) ≈ 2.14 and not fire.
	assert.True(t, e.Evaluate(rule, tickAt("BTCUSDT", "100", "10", base.Add(2*time.Minute))).Triggered)
}
