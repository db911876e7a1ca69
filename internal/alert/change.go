package alert

import (
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quantpulse/marketd/internal/domain"
)

// changeBaseline is the anchor of one symbol's rolling window.
type changeBaseline struct {
	mu          sync.Mutex
	firstPrice  decimal.Decimal
	periodStart time.Time
}

// PriceChangePercent handles the price_change_percent kind. Per symbol it
// anchors a baseline (first price, period start); once the period expires
// the baseline resets to the current tick and that tick never triggers.
// The baseline is NOT reset on trigger — the engine's cooldown is the only
// rate limit.
type PriceChangePercent struct {
	baselines sync.Map // symbol -> *changeBaseline
}

// NewPriceChangePercent creates the percent-change evaluator.
func NewPriceChangePercent() *PriceChangePercent { return &PriceChangePercent{} }

// CanEvaluate implements Evaluator.
func (e *PriceChangePercent) CanEvaluate(rule domain.AlertRule) bool {
	return rule.Kind == domain.RulePriceChangePercent
}

func (e *PriceChangePercent) baseline(symbol string) *changeBaseline {
	if v, ok := e.baselines.Load(symbol); ok {
		return v.(*changeBaseline)
	}
	v, _ := e.baselines.LoadOrStore(symbol, &changeBaseline{})
	return v.(*changeBaseline)
}

// Evaluate implements Evaluator.
func (e *PriceChangePercent) Evaluate(rule domain.AlertRule, tick domain.NormalizedTick) Result {
	b := e.baseline(tick.Symbol)
	b.mu.Lock()
	defer b.mu.Unlock()

	// First sight: anchor the window, nothing to compare yet.
	if b.periodStart.IsZero() {
		b.firstPrice = tick.Price
		b.periodStart = tick.Timestamp
		return Result{}
	}

	// Period expired: re-anchor on this tick and do not trigger.
	if tick.Timestamp.Sub(b.periodStart) > rule.Period() {
		b.firstPrice = tick.Price
		b.periodStart = tick.Timestamp
		return Result{}
	}

	if !b.firstPrice.IsPositive() {
		return Result{}
	}

	hundred := decimal.NewFromInt(100)
	change := tick.Price.Sub(b.firstPrice).Div(b.firstPrice).Mul(hundred)
	if change.Abs().GreaterThan(rule.Threshold) {
		return Result{
			Triggered: true,
			Message: fmt.Sprintf("%s moved %s%% in %s (from %s to %s), threshold %s%%",
				tick.Symbol, change.Round(4), rule.Period(), b.firstPrice, tick.Price, rule.Threshold),
		}
	}
	return Result{}
}

// Compile-time interface check.
var _ Evaluator = (*PriceChangePercent)(nil)
