package aggregator

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantpulse/marketd/internal/domain"
	"github.com/quantpulse/marketd/internal/metrics"
)

// fakeInstrumentStore assigns sequential ids and counts round-trips.
type fakeInstrumentStore struct {
	mu    sync.Mutex
	next  int64
	byKey map[string]domain.Instrument
	calls int
}

func newFakeInstrumentStore() *fakeInstrumentStore {
	return &fakeInstrumentStore{byKey: make(map[string]domain.Instrument)}
}

func (s *fakeInstrumentStore) GetOrCreate(ctx context.Context, symbol, exchange string) (domain.Instrument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	key := symbol + "|" + exchange
	if inst, ok := s.byKey[key]; ok {
		return inst, nil
	}
	s.next++
	base, quote := domain.SplitSymbol(symbol)
	inst := domain.Instrument{
		ID: s.next, Symbol: symbol, Exchange: exchange,
		BaseCurrency: base, QuoteCurrency: quote, CreatedAt: time.Now().UTC(),
	}
	s.byKey[key] = inst
	return inst, nil
}

func (s *fakeInstrumentStore) Get(ctx context.Context, symbol, exchange string) (domain.Instrument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if inst, ok := s.byKey[symbol+"|"+exchange]; ok {
		return inst, nil
	}
	return domain.Instrument{}, domain.ErrNotFound
}

func (s *fakeInstrumentStore) GetByID(ctx context.Context, id int64) (domain.Instrument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, inst := range s.byKey {
		if inst.ID == id {
			return inst, nil
		}
	}
	return domain.Instrument{}, domain.ErrNotFound
}

// fakeTickStore records bulk inserts; optionally fails or blocks.
type fakeTickStore struct {
	mu      sync.Mutex
	batches [][]domain.StoredTick
	failing bool
	block   chan struct{} // when non-nil, BulkInsert waits on it
}

func (s *fakeTickStore) BulkInsert(ctx context.Context, ticks []domain.StoredTick) error {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return errors.New("db down")
	}
	batch := make([]domain.StoredTick, len(ticks))
	copy(batch, ticks)
	s.batches = append(s.batches, batch)
	return nil
}

func (s *fakeTickStore) ListBefore(ctx context.Context, before time.Time) ([]domain.StoredTick, error) {
	return nil, nil
}

func (s *fakeTickStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	return 0, nil
}

func (s *fakeTickStore) inserted() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, b := range s.batches {
		n += len(b)
	}
	return n
}

// fakeCandleStore records upserts; optionally fails.
type fakeCandleStore struct {
	mu      sync.Mutex
	upserts [][]domain.Candle
	failing bool
	calls   atomic.Int32
}

func (s *fakeCandleStore) BulkUpsert(ctx context.Context, candles []domain.Candle) error {
	s.calls.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return errors.New("db down")
	}
	batch := make([]domain.Candle, len(candles))
	copy(batch, candles)
	s.upserts = append(s.upserts, batch)
	return nil
}

func (s *fakeCandleStore) List(ctx context.Context, instrumentID int64, interval domain.Interval, from, to time.Time, limit int) ([]domain.Candle, error) {
	return nil, nil
}

func (s *fakeCandleStore) all() []domain.Candle {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Candle
	for _, b := range s.upserts {
		out = append(out, b...)
	}
	return out
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func tick(symbol string, price, volume string, ts time.Time) domain.NormalizedTick {
	return domain.NormalizedTick{
		Exchange:   "binance",
		Source:     domain.SourceStreaming,
		Symbol:     symbol,
		Price:      decimal.RequireFromString(price),
		Volume:     decimal.RequireFromString(volume),
		Timestamp:  ts,
		ReceivedAt: ts,
	}
}

func newTestAggregator(t *testing.T, cfg Config) (*Aggregator, *fakeInstrumentStore, *fakeTickStore, *fakeCandleStore) {
	t.Helper()
	instruments := newFakeInstrumentStore()
	ticks := &fakeTickStore{}
	candles := &fakeCandleStore{}
	agg := New(cfg, instruments, ticks, candles, metrics.NewRegistry(), discardLogger())
	return agg, instruments, ticks, candles
}

func TestAggregatorBuildsMinuteCandle(t *testing.T) {
	agg, _, _, candles := newTestAggregator(t, Config{
		Intervals:      []domain.Interval{domain.IntervalOneMinute},
		TickBufferSize: 100,
	})
	ctx := context.Background()

	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, agg.HandleTick(ctx, tick("BTCUSDT", "100", "1", base.Add(5*time.Second))))
	require.NoError(t, agg.HandleTick(ctx, tick("BTCUSDT", "110", "2", base.Add(20*time.Second))))
	require.NoError(t, agg.HandleTick(ctx, tick("BTCUSDT", "95", "1", base.Add(40*time.Second))))
	require.NoError(t, agg.HandleTick(ctx, tick("BTCUSDT", "105", "1", base.Add(55*time.Second))))

	// Move the clock past the candle close so the flush evicts it.
	agg.now = func() time.Time { return base.Add(2 * time.Minute) }
	agg.Flush(ctx)

	flushed := candles.all()
	require.Len(t, flushed, 1)
	c := flushed[0]
	assert.True(t, c.OpenTime.Equal(base))
	assert.True(t, c.CloseTime.Equal(base.Add(time.Minute)))
	assert.True(t, c.Open.Equal(decimal.RequireFromString("100")))
	assert.True(t, c.High.Equal(decimal.RequireFromString("110")))
	assert.True(t, c.Low.Equal(decimal.RequireFromString("95")))
	assert.True(t, c.Close.Equal(decimal.RequireFromString("105")))
	assert.True(t, c.Volume.Equal(decimal.RequireFromString("5")))
	assert.Equal(t, int64(4), c.TradesCount)

	assert.Zero(t, agg.OpenCandles(), "flushed candle must leave the map")
}

func TestAggregatorKeepsOpenCandlesInMemory(t *testing.T) {
	agg, _, _, candles := newTestAggregator(t, Config{
		Intervals:      []domain.Interval{domain.IntervalOneHour},
		TickBufferSize: 100,
	})
	ctx := context.Background()

	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, agg.HandleTick(ctx, tick("BTCUSDT", "100", "1", base.Add(time.Minute))))

	// Ten minutes in: the hour candle is still open and inside retention.
	agg.now = func() time.Time { return base.Add(10 * time.Minute) }
	agg.Flush(ctx)

	assert.Empty(t, candles.all())
	assert.Equal(t, 1, agg.OpenCandles())
}

func TestAggregatorEvictsByRetention(t *testing.T) {
	agg, _, _, candles := newTestAggregator(t, Config{
		Intervals:       []domain.Interval{domain.IntervalOneHour},
		TickBufferSize:  100,
		CandleRetention: 30 * time.Minute,
	})
	ctx := context.Background()

	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, agg.HandleTick(ctx, tick("BTCUSDT", "100", "1", base.Add(time.Minute))))

	// Window still open, but past the in-memory retention bound.
	agg.now = func() time.Time { return base.Add(45 * time.Minute) }
	agg.Flush(ctx)

	require.Len(t, candles.all(), 1)
	assert.Zero(t, agg.OpenCandles())
}

func TestAggregatorInstrumentCacheHitsStoreOnce(t *testing.T) {
	agg, instruments, _, _ := newTestAggregator(t, Config{
		Intervals:      []domain.Interval{domain.IntervalOneMinute},
		TickBufferSize: 100,
	})
	ctx := context.Background()

	ts := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, agg.HandleTick(ctx, tick("BTCUSDT", "100", "1", ts.Add(time.Duration(i)*time.Second))))
	}

	assert.Equal(t, 1, instruments.calls)
}

func TestAggregatorInlineFlushAtThreshold(t *testing.T) {
	agg, _, ticks, _ := newTestAggregator(t, Config{
		Intervals:      []domain.Interval{domain.IntervalOneMinute},
		TickBufferSize: 3,
	})
	ctx := context.Background()

	ts := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		require.NoError(t, agg.HandleTick(ctx, tick("BTCUSDT", "100", "1", ts.Add(time.Duration(i)*time.Second))))
	}

	assert.Equal(t, 3, ticks.inserted(), "reaching the threshold flushes inline")
	assert.Zero(t, agg.BufferedTicks())
}

func TestAggregatorDropsBatchWhenInsertFails(t *testing.T) {
	agg, _, ticks, _ := newTestAggregator(t, Config{
		Intervals:      []domain.Interval{domain.IntervalOneMinute},
		TickBufferSize: 100,
	})
	ticks.failing = true
	ctx := context.Background()

	ts := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, agg.HandleTick(ctx, tick("BTCUSDT", "100", "1", ts)))
	agg.Flush(ctx)

	// At-most-once: the failed batch is gone from the buffer.
	assert.Zero(t, agg.BufferedTicks())
	assert.Zero(t, ticks.inserted())
}

func TestAggregatorFlushSingleFlight(t *testing.T) {
	agg, _, ticks, candles := newTestAggregator(t, Config{
		Intervals:      []domain.Interval{domain.IntervalOneMinute},
		TickBufferSize: 100,
	})
	ticks.block = make(chan struct{})
	ctx := context.Background()

	ts := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, agg.HandleTick(ctx, tick("BTCUSDT", "100", "1", ts)))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		agg.Flush(ctx) // blocks inside BulkInsert
	}()

	// Give the first flush time to take the flag and block.
	time.Sleep(50 * time.Millisecond)

	// Concurrent flushes early-return while the first is still running.
	for i := 0; i < 5; i++ {
		agg.Flush(ctx)
	}
	assert.Zero(t, candles.calls.Load())

	close(ticks.block)
	wg.Wait()

	assert.Equal(t, 1, ticks.inserted())
}

func TestAggregatorSeparateKeysPerInterval(t *testing.T) {
	agg, _, _, _ := newTestAggregator(t, Config{
		Intervals:      []domain.Interval{domain.IntervalOneMinute, domain.IntervalFiveMinutes, domain.IntervalOneHour},
		TickBufferSize: 100,
	})
	ctx := context.Background()

	ts := time.Date(2024, 1, 1, 12, 7, 30, 0, time.UTC)
	require.NoError(t, agg.HandleTick(ctx, tick("BTCUSDT", "100", "1", ts)))

	assert.Equal(t, 3, agg.OpenCandles())
}
