package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quantpulse/marketd/internal/domain"
)

// AlertHistoryStore implements domain.AlertHistoryStore using PostgreSQL.
// History rows are append-only.
type AlertHistoryStore struct {
	pool *pgxpool.Pool
}

// NewAlertHistoryStore creates a new AlertHistoryStore backed by the pool.
func NewAlertHistoryStore(pool *pgxpool.Pool) *AlertHistoryStore {
	return &AlertHistoryStore{pool: pool}
}

// Add appends one history row.
func (s *AlertHistoryStore) Add(ctx context.Context, h domain.AlertHistory) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO alert_histories (id, rule_id, instrument_id, message, triggered_at)
		VALUES ($1, $2, $3, $4, $5)`,
		h.ID, h.RuleID, h.InstrumentID, h.Message, h.TriggeredAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: add alert history: %w", err)
	}
	return nil
}

// List returns history rows triggered within [from, to], newest first.
func (s *AlertHistoryStore) List(ctx context.Context, from, to time.Time, limit int) ([]domain.AlertHistory, error) {
	query := `
		SELECT id, rule_id, instrument_id, message, triggered_at
		FROM alert_histories
		WHERE triggered_at >= $1 AND triggered_at <= $2
		ORDER BY triggered_at DESC`
	args := []any{from, to}
	if limit > 0 {
		query += " LIMIT $3"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list alert history: %w", err)
	}
	defer rows.Close()

	var out []domain.AlertHistory
	for rows.Next() {
		var h domain.AlertHistory
		if err := rows.Scan(&h.ID, &h.RuleID, &h.InstrumentID, &h.Message, &h.TriggeredAt); err != nil {
			return nil, fmt.Errorf("postgres: scan alert history: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// Compile-time interface check.
var _ domain.AlertHistoryStore = (*AlertHistoryStore)(nil)
