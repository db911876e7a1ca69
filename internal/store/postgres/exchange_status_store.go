package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quantpulse/marketd/internal/domain"
)

// ExchangeStatusStore implements domain.ExchangeStatusStore using
// PostgreSQL, one row per (exchange, source_type).
type ExchangeStatusStore struct {
	pool *pgxpool.Pool
}

// NewExchangeStatusStore creates a new ExchangeStatusStore backed by the pool.
func NewExchangeStatusStore(pool *pgxpool.Pool) *ExchangeStatusStore {
	return &ExchangeStatusStore{pool: pool}
}

// Upsert writes the status snapshot for one adapter.
func (s *ExchangeStatusStore) Upsert(ctx context.Context, st domain.ExchangeStatus) error {
	var lastTick any
	if !st.LastTickAt.IsZero() {
		lastTick = st.LastTickAt
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO exchange_statuses (exchange, source_type, is_online, last_tick_at, last_error, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (exchange, source_type) DO UPDATE SET
			is_online    = EXCLUDED.is_online,
			last_tick_at = EXCLUDED.last_tick_at,
			last_error   = EXCLUDED.last_error,
			updated_at   = NOW()`,
		st.Exchange, string(st.Source), st.IsOnline, lastTick, st.LastError,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert exchange status %s/%s: %w", st.Exchange, st.Source, err)
	}
	return nil
}

func scanStatus(row pgx.Row) (domain.ExchangeStatus, error) {
	var st domain.ExchangeStatus
	var source string
	var lastTick *time.Time
	err := row.Scan(&st.Exchange, &source, &st.IsOnline, &lastTick, &st.LastError, &st.UpdatedAt)
	if err != nil {
		return domain.ExchangeStatus{}, err
	}
	st.Source = domain.SourceType(source)
	if lastTick != nil {
		st.LastTickAt = *lastTick
	}
	return st, nil
}

// Get returns the status for one adapter, or domain.ErrNotFound.
func (s *ExchangeStatusStore) Get(ctx context.Context, exchange string, source domain.SourceType) (domain.ExchangeStatus, error) {
	st, err := scanStatus(s.pool.QueryRow(ctx, `
		SELECT exchange, source_type, is_online, last_tick_at, last_error, updated_at
		FROM exchange_statuses WHERE exchange = $1 AND source_type = $2`,
		exchange, string(source)))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ExchangeStatus{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.ExchangeStatus{}, fmt.Errorf("postgres: get exchange status %s/%s: %w", exchange, source, err)
	}
	return st, nil
}

// GetAll returns every adapter status.
func (s *ExchangeStatusStore) GetAll(ctx context.Context) ([]domain.ExchangeStatus, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT exchange, source_type, is_online, last_tick_at, last_error, updated_at
		FROM exchange_statuses ORDER BY exchange, source_type`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list exchange statuses: %w", err)
	}
	defer rows.Close()

	var out []domain.ExchangeStatus
	for rows.Next() {
		st, err := scanStatus(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan exchange status: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// Compile-time interface check.
var _ domain.ExchangeStatusStore = (*ExchangeStatusStore)(nil)
