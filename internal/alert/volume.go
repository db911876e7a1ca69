package alert

import (
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quantpulse/marketd/internal/domain"
)

// volumePoint is one observation in a symbol's volume window.
type volumePoint struct {
	ts     time.Time
	volume decimal.Decimal
}

// volumeWindow is the per-symbol FIFO; entries evict by event-time age.
type volumeWindow struct {
	mu     sync.Mutex
	points []volumePoint
}

// VolumeSpike handles the volume_spike kind: the current tick's volume
// compared to the average of the preceding entries in the rolling window.
// Strict inequality: a ratio exactly at the threshold does not trigger.
type VolumeSpike struct {
	windows sync.Map // symbol -> *volumeWindow
}

// NewVolumeSpike creates the volume-spike evaluator.
func NewVolumeSpike() *VolumeSpike { return &VolumeSpike{} }

// CanEvaluate implements Evaluator.
func (e *VolumeSpike) CanEvaluate(rule domain.AlertRule) bool {
	return rule.Kind == domain.RuleVolumeSpike
}

func (e *VolumeSpike) window(symbol string) *volumeWindow {
	if v, ok := e.windows.Load(symbol); ok {
		return v.(*volumeWindow)
	}
	v, _ := e.windows.LoadOrStore(symbol, &volumeWindow{})
	return v.(*volumeWindow)
}

// Evaluate implements Evaluator.
func (e *VolumeSpike) Evaluate(rule domain.AlertRule, tick domain.NormalizedTick) Result {
	w := e.window(tick.Symbol)
	w.mu.Lock()
	defer w.mu.Unlock()

	w.points = append(w.points, volumePoint{ts: tick.Timestamp, volume: tick.Volume})
	w.points = evictVolume(w.points, tick.Timestamp.Add(-rule.Period()))

	if len(w.points) < 2 {
		return Result{}
	}

	// Average over everything except the current tick, so the spike itself
	// does not inflate its own baseline.
	sum := decimal.Zero
	n := len(w.points) - 1
	for i := 0; i < n; i++ {
		sum = sum.Add(w.points[i].volume)
	}
	avg := sum.Div(decimal.NewFromInt(int64(n)))
	if avg.IsZero() {
		return Result{}
	}

	ratio := tick.Volume.Div(avg)
	if ratio.GreaterThan(rule.Threshold) {
		return Result{
			Triggered: true,
			Message: fmt.Sprintf("%s volume %s is %sx the %s average %s, threshold %sx",
				tick.Symbol, tick.Volume, ratio.Round(4), rule.Period(), avg.Round(8), rule.Threshold),
		}
	}
	return Result{}
}

// evictVolume drops points strictly older than the cutoff, keeping order.
func evictVolume(points []volumePoint, cutoff time.Time) []volumePoint {
	i := 0
	for i < len(points) && points[i].ts.Before(cutoff) {
		i++
	}
	return points[i:]
}

// Compile-time interface check.
var _ Evaluator = (*VolumeSpike)(nil)
