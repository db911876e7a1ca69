package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quantpulse/marketd/internal/domain"
)

// TickStore implements domain.TickStore using PostgreSQL. Inserts are not
// deduplicated here: when the Redis dedup window misses, duplicate rows
// are accepted by design.
type TickStore struct {
	pool *pgxpool.Pool
}

// NewTickStore creates a new TickStore backed by the given connection pool.
func NewTickStore(pool *pgxpool.Pool) *TickStore {
	return &TickStore{pool: pool}
}

// BulkInsert inserts ticks efficiently using pgx Batch.
func (s *TickStore) BulkInsert(ctx context.Context, ticks []domain.StoredTick) error {
	if len(ticks) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	const query = `
		INSERT INTO ticks (instrument_id, source_type, price, volume, timestamp, received_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	for _, t := range ticks {
		batch.Queue(query, t.InstrumentID, string(t.Source), t.Price, t.Volume, t.Timestamp, t.ReceivedAt)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range ticks {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: insert tick batch item %d: %w", i, err)
		}
	}
	return nil
}

// ListBefore returns all ticks with an event timestamp strictly before the
// given time, oldest first (used by the cold-storage archiver).
func (s *TickStore) ListBefore(ctx context.Context, before time.Time) ([]domain.StoredTick, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT instrument_id, source_type, price, volume, timestamp, received_at
		FROM ticks WHERE timestamp < $1 ORDER BY timestamp ASC`, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list ticks before: %w", err)
	}
	defer rows.Close()

	var ticks []domain.StoredTick
	for rows.Next() {
		var t domain.StoredTick
		var source string
		if err := rows.Scan(&t.InstrumentID, &source, &t.Price, &t.Volume, &t.Timestamp, &t.ReceivedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan tick: %w", err)
		}
		t.Source = domain.SourceType(source)
		ticks = append(ticks, t)
	}
	return ticks, rows.Err()
}

// DeleteBefore deletes all ticks older than the given time. Returns the
// number of rows deleted.
func (s *TickStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM ticks WHERE timestamp < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete ticks before: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Compile-time interface check.
var _ domain.TickStore = (*TickStore)(nil)
