// Package aggregator folds the tick stream into OHLCV candles and buffers
// raw ticks for bulk insertion. It registers as a pipeline handler.
//
// Candles accumulate in memory per (instrument, interval, open time) and
// are evicted to storage by the periodic flush once their window has closed
// or they have outstayed the in-memory retention. Raw ticks go through a
// buffer drained in bulk; when the database is unreachable a drained batch
// is lost (at-most-once — accepted and logged).
package aggregator

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/quantpulse/marketd/internal/domain"
	"github.com/quantpulse/marketd/internal/metrics"
)

// Config holds aggregation parameters.
type Config struct {
	Intervals       []domain.Interval
	TickBufferSize  int           // inline-flush threshold, default 500
	CandleRetention time.Duration // eviction bound for still-open candles
}

// candleKey identifies one in-memory candle.
type candleKey struct {
	instrumentID int64
	interval     domain.Interval
	openTime     int64 // unix seconds
}

// candleEntry guards one candle; applies must hold mu so per-key updates
// are serializable.
type candleEntry struct {
	mu sync.Mutex
	c  *domain.Candle
}

// Aggregator is the candle-building tick handler.
type Aggregator struct {
	cfg         Config
	instruments domain.InstrumentStore
	ticks       domain.TickStore
	candleStore domain.CandleStore
	metrics     *metrics.Registry
	logger      *slog.Logger

	instCache sync.Map // symbol|exchange -> domain.Instrument
	candles   sync.Map // candleKey -> *candleEntry
	buffer    tickBuffer
	flushing  atomic.Bool

	now func() time.Time // injectable clock for eviction tests
}

// New creates an Aggregator. Zero config fields fall back to defaults
// (500-tick buffer, 120 minute retention, 1m/5m/1h intervals).
func New(cfg Config, instruments domain.InstrumentStore, ticks domain.TickStore, candles domain.CandleStore, reg *metrics.Registry, logger *slog.Logger) *Aggregator {
	if cfg.TickBufferSize <= 0 {
		cfg.TickBufferSize = 500
	}
	if cfg.CandleRetention <= 0 {
		cfg.CandleRetention = 120 * time.Minute
	}
	if len(cfg.Intervals) == 0 {
		cfg.Intervals = []domain.Interval{domain.IntervalOneMinute, domain.IntervalFiveMinutes, domain.IntervalOneHour}
	}
	return &Aggregator{
		cfg:         cfg,
		instruments: instruments,
		ticks:       ticks,
		candleStore: candles,
		metrics:     reg,
		logger:      logger.With(slog.String("component", "aggregator")),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Name implements pipeline.Handler.
func (a *Aggregator) Name() string { return "aggregator" }

// HandleTick resolves the instrument, buffers the tick for persistence and
// applies it to every configured interval's candle.
func (a *Aggregator) HandleTick(ctx context.Context, tick domain.NormalizedTick) error {
	inst, err := a.resolveInstrument(ctx, tick.Symbol, tick.Exchange)
	if err != nil {
		return fmt.Errorf("aggregator: resolve instrument %s/%s: %w", tick.Symbol, tick.Exchange, err)
	}

	size := a.buffer.append(domain.StoredTick{
		InstrumentID: inst.ID,
		Source:       tick.Source,
		Price:        tick.Price,
		Volume:       tick.Volume,
		Timestamp:    tick.Timestamp,
		ReceivedAt:   tick.ReceivedAt,
	})

	for _, interval := range a.cfg.Intervals {
		a.applyToCandle(inst.ID, interval, tick)
	}

	if size >= a.cfg.TickBufferSize {
		a.flushTicks(ctx)
	}
	return nil
}

// resolveInstrument serves from the in-process cache, falling back to the
// store only on the first sighting of a (symbol, exchange) pair. The cache
// has no TTL: instrument identity is stable.
func (a *Aggregator) resolveInstrument(ctx context.Context, symbol, exchange string) (domain.Instrument, error) {
	key := symbol + "|" + exchange
	if v, ok := a.instCache.Load(key); ok {
		return v.(domain.Instrument), nil
	}
	inst, err := a.instruments.GetOrCreate(ctx, symbol, exchange)
	if err != nil {
		return domain.Instrument{}, err
	}
	actual, _ := a.instCache.LoadOrStore(key, inst)
	return actual.(domain.Instrument), nil
}

// applyToCandle updates the candle for one interval under its entry lock.
func (a *Aggregator) applyToCandle(instrumentID int64, interval domain.Interval, tick domain.NormalizedTick) {
	key := candleKey{
		instrumentID: instrumentID,
		interval:     interval,
		openTime:     interval.OpenTime(tick.Timestamp).Unix(),
	}

	v, ok := a.candles.Load(key)
	if !ok {
		v, _ = a.candles.LoadOrStore(key, &candleEntry{
			c: domain.NewCandle(instrumentID, interval, tick.Timestamp),
		})
	}
	entry := v.(*candleEntry)

	entry.mu.Lock()
	entry.c.ApplyTick(tick.Price, tick.Volume)
	entry.mu.Unlock()
}

// Flush runs one tick-buffer flush followed by one candle flush. It is
// single-flight: when a flush is already running, the call returns
// immediately. Failures are logged; they never abort the process.
func (a *Aggregator) Flush(ctx context.Context) {
	if !a.flushing.CompareAndSwap(false, true) {
		return
	}
	defer a.flushing.Store(false)

	a.flushTicks(ctx)
	a.flushCandles(ctx)
}

// flushTicks drains up to twice the buffer threshold and bulk-inserts. A
// failed batch is dropped: at-most-once delivery to storage while the
// database is unreachable.
func (a *Aggregator) flushTicks(ctx context.Context) {
	batch := a.buffer.drain(2 * a.cfg.TickBufferSize)
	if len(batch) == 0 {
		return
	}
	if err := a.ticks.BulkInsert(ctx, batch); err != nil {
		a.logger.ErrorContext(ctx, "tick flush failed, batch dropped",
			slog.Int("count", len(batch)),
			slog.String("error", err.Error()),
		)
		return
	}
	a.metrics.RecordTickStored(len(batch))
	a.logger.DebugContext(ctx, "ticks flushed", slog.Int("count", len(batch)))
}

// flushCandles snapshots the map, selects candles whose window has closed
// or that exceeded the in-memory retention, bulk-upserts them and removes
// the successfully written keys.
func (a *Aggregator) flushCandles(ctx context.Context) {
	now := a.now()

	var keys []candleKey
	var selected []domain.Candle
	a.candles.Range(func(k, v any) bool {
		entry := v.(*candleEntry)
		entry.mu.Lock()
		c := *entry.c
		entry.mu.Unlock()

		closed := !c.CloseTime.After(now)
		overRetention := now.Sub(c.OpenTime) > a.cfg.CandleRetention
		if closed || overRetention {
			keys = append(keys, k.(candleKey))
			selected = append(selected, c)
		}
		return true
	})
	if len(selected) == 0 {
		return
	}

	// Deterministic write order keeps upsert batches friendly to the
	// unique index.
	sort.Slice(selected, func(i, j int) bool {
		if selected[i].InstrumentID != selected[j].InstrumentID {
			return selected[i].InstrumentID < selected[j].InstrumentID
		}
		return selected[i].OpenTime.Before(selected[j].OpenTime)
	})

	if err := a.candleStore.BulkUpsert(ctx, selected); err != nil {
		a.logger.ErrorContext(ctx, "candle flush failed",
			slog.Int("count", len(selected)),
			slog.String("error", err.Error()),
		)
		return
	}
	for _, k := range keys {
		a.candles.Delete(k)
	}
	a.logger.DebugContext(ctx, "candles flushed", slog.Int("count", len(selected)))
}

// BufferedTicks reports the current tick-buffer depth.
func (a *Aggregator) BufferedTicks() int {
	return a.buffer.size()
}

// OpenCandles reports how many candles are currently held in memory.
func (a *Aggregator) OpenCandles() int {
	n := 0
	a.candles.Range(func(any, any) bool { n++; return true })
	return n
}
