package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quantpulse/marketd/internal/domain"
)

// AlertRuleStore implements domain.AlertRuleStore using PostgreSQL.
type AlertRuleStore struct {
	pool *pgxpool.Pool
}

// NewAlertRuleStore creates a new AlertRuleStore backed by the given pool.
func NewAlertRuleStore(pool *pgxpool.Pool) *AlertRuleStore {
	return &AlertRuleStore{pool: pool}
}

const ruleCols = `id, name, instrument_id, kind, threshold, period_minutes, active, created_at`

func scanRule(row pgx.Row) (domain.AlertRule, error) {
	var r domain.AlertRule
	var kind string
	err := row.Scan(&r.ID, &r.Name, &r.InstrumentID, &kind, &r.Threshold, &r.PeriodMinutes, &r.Active, &r.CreatedAt)
	if err != nil {
		return domain.AlertRule{}, err
	}
	r.Kind = domain.RuleKind(kind)
	return r, nil
}

// GetAllActive returns every rule with the active flag set.
func (s *AlertRuleStore) GetAllActive(ctx context.Context) ([]domain.AlertRule, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+ruleCols+` FROM alert_rules WHERE active ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list active rules: %w", err)
	}
	defer rows.Close()

	var rules []domain.AlertRule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan rule: %w", err)
		}
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

// GetByID returns the rule with the given id, or domain.ErrNotFound.
func (s *AlertRuleStore) GetByID(ctx context.Context, id int64) (domain.AlertRule, error) {
	r, err := scanRule(s.pool.QueryRow(ctx,
		`SELECT `+ruleCols+` FROM alert_rules WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.AlertRule{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.AlertRule{}, fmt.Errorf("postgres: get rule %d: %w", id, err)
	}
	return r, nil
}

// Create inserts a rule and returns it with the assigned id.
func (s *AlertRuleStore) Create(ctx context.Context, rule domain.AlertRule) (domain.AlertRule, error) {
	r, err := scanRule(s.pool.QueryRow(ctx, `
		INSERT INTO alert_rules (name, instrument_id, kind, threshold, period_minutes, active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+ruleCols,
		rule.Name, rule.InstrumentID, string(rule.Kind), rule.Threshold, rule.PeriodMinutes, rule.Active,
	))
	if err != nil {
		return domain.AlertRule{}, fmt.Errorf("postgres: create rule: %w", err)
	}
	return r, nil
}

// Update replaces the mutable fields of a rule.
func (s *AlertRuleStore) Update(ctx context.Context, rule domain.AlertRule) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE alert_rules
		SET name = $2, instrument_id = $3, kind = $4, threshold = $5, period_minutes = $6, active = $7
		WHERE id = $1`,
		rule.ID, rule.Name, rule.InstrumentID, string(rule.Kind), rule.Threshold, rule.PeriodMinutes, rule.Active,
	)
	if err != nil {
		return fmt.Errorf("postgres: update rule %d: %w", rule.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Delete removes a rule.
func (s *AlertRuleStore) Delete(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM alert_rules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: delete rule %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Compile-time interface check.
var _ domain.AlertRuleStore = (*AlertRuleStore)(nil)
