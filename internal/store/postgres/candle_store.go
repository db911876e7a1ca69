package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quantpulse/marketd/internal/domain"
)

// CandleStore implements domain.CandleStore using PostgreSQL.
type CandleStore struct {
	pool *pgxpool.Pool
}

// NewCandleStore creates a new CandleStore backed by the given pool.
func NewCandleStore(pool *pgxpool.Pool) *CandleStore {
	return &CandleStore{pool: pool}
}

// BulkUpsert writes candles keyed on (instrument_id, interval, open_time).
// An existing row's OHLCV, volume, trade count and close time are replaced
// wholesale: the in-memory candle is always the fresher aggregate.
func (s *CandleStore) BulkUpsert(ctx context.Context, candles []domain.Candle) error {
	if len(candles) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	const query = `
		INSERT INTO candles (
			instrument_id, interval, open_time, close_time,
			open, high, low, close, volume, trades_count
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (instrument_id, interval, open_time) DO UPDATE SET
			close_time   = EXCLUDED.close_time,
			open         = EXCLUDED.open,
			high         = EXCLUDED.high,
			low          = EXCLUDED.low,
			close        = EXCLUDED.close,
			volume       = EXCLUDED.volume,
			trades_count = EXCLUDED.trades_count`

	for _, c := range candles {
		batch.Queue(query,
			c.InstrumentID, string(c.Interval), c.OpenTime, c.CloseTime,
			c.Open, c.High, c.Low, c.Close, c.Volume, c.TradesCount,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range candles {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: upsert candle batch item %d: %w", i, err)
		}
	}
	return nil
}

// List returns candles for an instrument and interval within [from, to],
// newest first.
func (s *CandleStore) List(ctx context.Context, instrumentID int64, interval domain.Interval, from, to time.Time, limit int) ([]domain.Candle, error) {
	query := `
		SELECT instrument_id, interval, open_time, close_time,
		       open, high, low, close, volume, trades_count
		FROM candles
		WHERE instrument_id = $1 AND interval = $2 AND open_time >= $3 AND open_time <= $4
		ORDER BY open_time DESC`
	args := []any{instrumentID, string(interval), from, to}
	if limit > 0 {
		query += " LIMIT $5"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list candles: %w", err)
	}
	defer rows.Close()

	var candles []domain.Candle
	for rows.Next() {
		var c domain.Candle
		var interval string
		if err := rows.Scan(
			&c.InstrumentID, &interval, &c.OpenTime, &c.CloseTime,
			&c.Open, &c.High, &c.Low, &c.Close, &c.Volume, &c.TradesCount,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan candle: %w", err)
		}
		c.Interval = domain.Interval(interval)
		candles = append(candles, c)
	}
	return candles, rows.Err()
}

// Compile-time interface check.
var _ domain.CandleStore = (*CandleStore)(nil)
