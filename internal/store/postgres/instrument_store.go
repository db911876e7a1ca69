package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quantpulse/marketd/internal/domain"
)

// InstrumentStore implements domain.InstrumentStore using PostgreSQL.
type InstrumentStore struct {
	pool *pgxpool.Pool
}

// NewInstrumentStore creates a new InstrumentStore backed by the given pool.
func NewInstrumentStore(pool *pgxpool.Pool) *InstrumentStore {
	return &InstrumentStore{pool: pool}
}

const instrumentCols = `id, symbol, exchange, base_currency, quote_currency, created_at`

// GetOrCreate returns the instrument for (symbol, exchange), creating it on
// first sighting. The base/quote split is derived from the symbol. The
// upsert's no-op update makes RETURNING yield the existing row on conflict,
// so concurrent first sightings all resolve to the same id.
func (s *InstrumentStore) GetOrCreate(ctx context.Context, symbol, exchange string) (domain.Instrument, error) {
	symbol = strings.ToUpper(symbol)
	base, quote := domain.SplitSymbol(symbol)

	var inst domain.Instrument
	err := s.pool.QueryRow(ctx, `
		INSERT INTO instruments (symbol, exchange, base_currency, quote_currency)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (symbol, exchange) DO UPDATE SET symbol = EXCLUDED.symbol
		RETURNING `+instrumentCols,
		symbol, exchange, base, quote,
	).Scan(&inst.ID, &inst.Symbol, &inst.Exchange, &inst.BaseCurrency, &inst.QuoteCurrency, &inst.CreatedAt)
	if err != nil {
		return domain.Instrument{}, fmt.Errorf("postgres: get or create instrument %s/%s: %w", symbol, exchange, err)
	}
	return inst, nil
}

// Get returns the instrument for (symbol, exchange) without creating it,
// or domain.ErrNotFound.
func (s *InstrumentStore) Get(ctx context.Context, symbol, exchange string) (domain.Instrument, error) {
	var inst domain.Instrument
	err := s.pool.QueryRow(ctx,
		`SELECT `+instrumentCols+` FROM instruments WHERE symbol = $1 AND exchange = $2`,
		strings.ToUpper(symbol), exchange,
	).Scan(&inst.ID, &inst.Symbol, &inst.Exchange, &inst.BaseCurrency, &inst.QuoteCurrency, &inst.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Instrument{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Instrument{}, fmt.Errorf("postgres: get instrument %s/%s: %w", symbol, exchange, err)
	}
	return inst, nil
}

// GetByID returns the instrument with the given id, or domain.ErrNotFound.
func (s *InstrumentStore) GetByID(ctx context.Context, id int64) (domain.Instrument, error) {
	var inst domain.Instrument
	err := s.pool.QueryRow(ctx,
		`SELECT `+instrumentCols+` FROM instruments WHERE id = $1`, id,
	).Scan(&inst.ID, &inst.Symbol, &inst.Exchange, &inst.BaseCurrency, &inst.QuoteCurrency, &inst.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Instrument{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Instrument{}, fmt.Errorf("postgres: get instrument %d: %w", id, err)
	}
	return inst, nil
}

// Compile-time interface check.
var _ domain.InstrumentStore = (*InstrumentStore)(nil)
