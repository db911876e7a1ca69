package alert

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quantpulse/marketd/internal/domain"
)

// pricePoint is one observation in a symbol's price window.
type pricePoint struct {
	ts    time.Time
	price decimal.Decimal
}

// priceWindow is the per-symbol FIFO; entries evict by event-time age.
type priceWindow struct {
	mu     sync.Mutex
	points []pricePoint
}

// Volatility handles the volatility kind: the population standard deviation
// of percentage returns over the rolling window. Returns whose previous
// price is zero are skipped so a bad feed value cannot blow up the math.
type Volatility struct {
	windows sync.Map // symbol -> *priceWindow
}

// NewVolatility creates the volatility evaluator.
func NewVolatility() *Volatility { return &Volatility{} }

// CanEvaluate implements Evaluator.
func (e *Volatility) CanEvaluate(rule domain.AlertRule) bool {
	return rule.Kind == domain.RuleVolatility
}

func (e *Volatility) window(symbol string) *priceWindow {
	if v, ok := e.windows.Load(symbol); ok {
		return v.(*priceWindow)
	}
	v, _ := e.windows.LoadOrStore(symbol, &priceWindow{})
	return v.(*priceWindow)
}

// Evaluate implements Evaluator.
func (e *Volatility) Evaluate(rule domain.AlertRule, tick domain.NormalizedTick) Result {
	w := e.window(tick.Symbol)
	w.mu.Lock()
	defer w.mu.Unlock()

	w.points = append(w.points, pricePoint{ts: tick.Timestamp, price: tick.Price})
	i := 0
	for i < len(w.points) && w.points[i].ts.Before(tick.Timestamp.Add(-rule.Period())) {
		i++
	}
	w.points = w.points[i:]

	if len(w.points) < 3 {
		return Result{}
	}

	// Percentage returns between consecutive points; the std-dev math runs
	// in float64, precision of the returns is not money.
	var returns []float64
	for i := 1; i < len(w.points); i++ {
		prev := w.points[i-1].price
		if prev.IsZero() {
			continue
		}
		r := w.points[i].price.Sub(prev).Div(prev).Mul(decimal.NewFromInt(100))
		returns = append(returns, r.InexactFloat64())
	}
	if len(returns) == 0 {
		return Result{}
	}

	vol := populationStdDev(returns)
	if vol > rule.Threshold.InexactFloat64() {
		return Result{
			Triggered: true,
			Message: fmt.Sprintf("%s volatility %.4f%% over %s exceeds threshold %s%%",
				tick.Symbol, vol, rule.Period(), rule.Threshold),
		}
	}
	return Result{}
}

// populationStdDev is the population (not sample) standard deviation.
func populationStdDev(xs []float64) float64 {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean := sum / float64(len(xs))

	var variance float64
	for _, x := range xs {
		d := x - mean
		variance += d * d
	}
	variance /= float64(len(xs))
	return math.Sqrt(variance)
}

// Compile-time interface check.
var _ Evaluator = (*Volatility)(nil)
