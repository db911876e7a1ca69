package alert

import (
	"fmt"

	"github.com/quantpulse/marketd/internal/domain"
)

// PriceThreshold handles the price_above and price_below kinds. It is
// stateless: equality never triggers, only strict crossings.
type PriceThreshold struct{}

// NewPriceThreshold creates the threshold evaluator.
func NewPriceThreshold() *PriceThreshold { return &PriceThreshold{} }

// CanEvaluate implements Evaluator.
func (e *PriceThreshold) CanEvaluate(rule domain.AlertRule) bool {
	return rule.Kind == domain.RulePriceAbove || rule.Kind == domain.RulePriceBelow
}

// Evaluate implements Evaluator.
func (e *PriceThreshold) Evaluate(rule domain.AlertRule, tick domain.NormalizedTick) Result {
	switch rule.Kind {
	case domain.RulePriceAbove:
		if tick.Price.GreaterThan(rule.Threshold) {
			return Result{
				Triggered: true,
				Message: fmt.Sprintf("%s price %s is above %s",
					tick.Symbol, tick.Price, rule.Threshold),
			}
		}
	case domain.RulePriceBelow:
		if tick.Price.LessThan(rule.Threshold) {
			return Result{
				Triggered: true,
				Message: fmt.Sprintf("%s price %s is below %s",
					tick.Symbol, tick.Price, rule.Threshold),
			}
		}
	}
	return Result{}
}

// Compile-time interface check.
var _ Evaluator = (*PriceThreshold)(nil)
