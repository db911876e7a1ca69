package domain

import (
	"context"
	"time"
)

// TickStore persists admitted ticks. BulkInsert is not required to be
// idempotent: when the dedup backend misses, duplicate rows are tolerated.
type TickStore interface {
	BulkInsert(ctx context.Context, ticks []StoredTick) error
	ListBefore(ctx context.Context, before time.Time) ([]StoredTick, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// CandleStore persists aggregated candles. The upsert key is
// (instrument_id, interval, open_time); an existing row's OHLCV, volume,
// trade count and close time are replaced.
type CandleStore interface {
	BulkUpsert(ctx context.Context, candles []Candle) error
	List(ctx context.Context, instrumentID int64, interval Interval, from, to time.Time, limit int) ([]Candle, error)
}

// InstrumentStore resolves (symbol, exchange) pairs to stable instruments,
// creating them on first sighting.
type InstrumentStore interface {
	GetOrCreate(ctx context.Context, symbol, exchange string) (Instrument, error)
	Get(ctx context.Context, symbol, exchange string) (Instrument, error)
	GetByID(ctx context.Context, id int64) (Instrument, error)
}

// AlertRuleStore persists user-defined alert rules.
type AlertRuleStore interface {
	GetAllActive(ctx context.Context) ([]AlertRule, error)
	GetByID(ctx context.Context, id int64) (AlertRule, error)
	Create(ctx context.Context, rule AlertRule) (AlertRule, error)
	Update(ctx context.Context, rule AlertRule) error
	Delete(ctx context.Context, id int64) error
}

// AlertHistoryStore persists an append-only record of fired rules.
type AlertHistoryStore interface {
	Add(ctx context.Context, h AlertHistory) error
	List(ctx context.Context, from, to time.Time, limit int) ([]AlertHistory, error)
}

// ExchangeStatusStore persists adapter health snapshots, keyed by
// (exchange, source type).
type ExchangeStatusStore interface {
	Upsert(ctx context.Context, s ExchangeStatus) error
	Get(ctx context.Context, exchange string, source SourceType) (ExchangeStatus, error)
	GetAll(ctx context.Context) ([]ExchangeStatus, error)
}

// Deduplicator answers whether a normalized tick has been seen before
// within the dedup window. Implementations report ErrBackendUnavailable
// when the backing store cannot be reached.
type Deduplicator interface {
	IsUnique(ctx context.Context, tick NormalizedTick) (bool, error)
}
