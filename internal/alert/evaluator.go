// Package alert implements the rule engine that watches the tick stream:
// stateful evaluators per rule kind, a cooldown gate per rule, immutable
// history and fan-out to the notification channels.
package alert

import (
	"github.com/quantpulse/marketd/internal/domain"
)

// Result is one evaluation outcome. Message is only meaningful when
// Triggered is set; it is what gets stored as history and sent to channels.
type Result struct {
	Triggered bool
	Message   string
}

// Evaluator decides whether a rule fires for a tick. Implementations own
// whatever per-symbol state their rule kind needs and must be safe for
// concurrent use.
type Evaluator interface {
	// CanEvaluate reports whether this evaluator handles the rule's kind.
	CanEvaluate(rule domain.AlertRule) bool
	// Evaluate applies one tick to the rule.
	Evaluate(rule domain.AlertRule, tick domain.NormalizedTick) Result
}

// DefaultEvaluators returns the shipped evaluator set, in dispatch order.
func DefaultEvaluators() []Evaluator {
	return []Evaluator{
		NewPriceThreshold(),
		NewPriceChangePercent(),
		NewVolumeSpike(),
		NewVolatility(),
	}
}
