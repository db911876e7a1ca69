package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// RuleKind selects which evaluator handles an alert rule.
type RuleKind string

const (
	RulePriceAbove         RuleKind = "price_above"
	RulePriceBelow         RuleKind = "price_below"
	RulePriceChangePercent RuleKind = "price_change_percent"
	RuleVolumeSpike        RuleKind = "volume_spike"
	RuleVolatility         RuleKind = "volatility"
)

// defaultRulePeriod applies to rolling rule kinds when no period is set.
const defaultRulePeriod = 5 * time.Minute

// AlertRule is a user-defined condition evaluated against every admitted
// tick of its target instrument.
type AlertRule struct {
	ID            int64
	Name          string
	InstrumentID  int64
	Kind          RuleKind
	Threshold     decimal.Decimal
	PeriodMinutes int // rolling window for the rolling kinds; 0 means default
	Active        bool
	CreatedAt     time.Time
}

// Period returns the rolling window, falling back to the 5-minute default.
func (r AlertRule) Period() time.Duration {
	if r.PeriodMinutes > 0 {
		return time.Duration(r.PeriodMinutes) * time.Minute
	}
	return defaultRulePeriod
}

// AlertHistory is one immutable record of a fired rule.
type AlertHistory struct {
	ID           string // uuid
	RuleID       int64
	InstrumentID int64
	Message      string
	TriggeredAt  time.Time
}
