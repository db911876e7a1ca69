package alert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quantpulse/marketd/internal/domain"
	"github.com/quantpulse/marketd/internal/notify"
)

// Engine is the alert-scanning tick handler. Per tick it matches the
// active rules for the tick's instrument, dispatches each to the first
// evaluator that can handle it, gates firings through the per-rule
// cooldown, appends history and fans the message out to the channels.
type Engine struct {
	rules       domain.AlertRuleStore
	instruments domain.InstrumentStore
	history     domain.AlertHistoryStore
	notifier    *notify.Notifier
	evaluators  []Evaluator
	cooldown    time.Duration
	logger      *slog.Logger

	instCache sync.Map // symbol|exchange -> domain.Instrument

	// Active-rule cache. Per-tick repository round-trips would put the
	// database on the consumer hot path; instead the list is cached for a
	// short TTL and invalidated explicitly on rule mutation.
	ruleMu      sync.Mutex
	cachedRules []domain.AlertRule
	rulesAt     time.Time
	ruleTTL     time.Duration

	// Cooldown stamps, read-modify-written under fireMu.
	fireMu    sync.Mutex
	lastFired map[int64]time.Time

	now func() time.Time
}

// EngineConfig holds engine parameters.
type EngineConfig struct {
	Cooldown     time.Duration // default 300s
	RuleCacheTTL time.Duration // default 5s
}

// NewEngine creates an Engine with the default evaluator set.
func NewEngine(cfg EngineConfig, rules domain.AlertRuleStore, instruments domain.InstrumentStore, history domain.AlertHistoryStore, notifier *notify.Notifier, logger *slog.Logger) *Engine {
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 300 * time.Second
	}
	if cfg.RuleCacheTTL <= 0 {
		cfg.RuleCacheTTL = 5 * time.Second
	}
	return &Engine{
		rules:       rules,
		instruments: instruments,
		history:     history,
		notifier:    notifier,
		evaluators:  DefaultEvaluators(),
		cooldown:    cfg.Cooldown,
		ruleTTL:     cfg.RuleCacheTTL,
		lastFired:   make(map[int64]time.Time),
		logger:      logger.With(slog.String("component", "alert_engine")),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Name implements pipeline.Handler.
func (e *Engine) Name() string { return "alerts" }

// HandleTick implements pipeline.Handler.
func (e *Engine) HandleTick(ctx context.Context, tick domain.NormalizedTick) error {
	rules, err := e.activeRules(ctx)
	if err != nil {
		return fmt.Errorf("alert: load active rules: %w", err)
	}
	if len(rules) == 0 {
		return nil
	}

	inst, ok, err := e.resolveInstrument(ctx, tick.Symbol, tick.Exchange)
	if err != nil {
		return fmt.Errorf("alert: resolve instrument %s/%s: %w", tick.Symbol, tick.Exchange, err)
	}
	if !ok {
		return nil
	}

	for _, rule := range rules {
		if rule.InstrumentID != inst.ID {
			continue
		}
		ev := e.evaluatorFor(rule)
		if ev == nil {
			e.logger.WarnContext(ctx, "no evaluator for rule",
				slog.Int64("rule_id", rule.ID),
				slog.String("kind", string(rule.Kind)),
			)
			continue
		}
		res := ev.Evaluate(rule, tick)
		if res.Triggered {
			e.fire(ctx, rule, inst, res.Message)
		}
	}
	return nil
}

// evaluatorFor returns the first evaluator that handles the rule's kind.
func (e *Engine) evaluatorFor(rule domain.AlertRule) Evaluator {
	for _, ev := range e.evaluators {
		if ev.CanEvaluate(rule) {
			return ev
		}
	}
	return nil
}

// fire runs a triggered rule through the cooldown gate, records history and
// dispatches notifications. History or channel failures are logged; the
// firing itself stands.
func (e *Engine) fire(ctx context.Context, rule domain.AlertRule, inst domain.Instrument, message string) {
	now := e.now()

	e.fireMu.Lock()
	if last, ok := e.lastFired[rule.ID]; ok && now.Sub(last) < e.cooldown {
		e.fireMu.Unlock()
		return
	}
	e.lastFired[rule.ID] = now
	e.fireMu.Unlock()

	e.logger.InfoContext(ctx, "alert triggered",
		slog.Int64("rule_id", rule.ID),
		slog.String("rule", rule.Name),
		slog.String("symbol", inst.Symbol),
		slog.String("message", message),
	)

	if err := e.history.Add(ctx, domain.AlertHistory{
		ID:           uuid.NewString(),
		RuleID:       rule.ID,
		InstrumentID: inst.ID,
		Message:      message,
		TriggeredAt:  now,
	}); err != nil {
		e.logger.ErrorContext(ctx, "append alert history failed",
			slog.Int64("rule_id", rule.ID),
			slog.String("error", err.Error()),
		)
	}

	if err := e.notifier.Dispatch(ctx, message); err != nil {
		e.logger.ErrorContext(ctx, "alert dispatch failed",
			slog.Int64("rule_id", rule.ID),
			slog.String("error", err.Error()),
		)
	}
}

// activeRules returns the cached rule list, refreshing it after the TTL.
func (e *Engine) activeRules(ctx context.Context) ([]domain.AlertRule, error) {
	e.ruleMu.Lock()
	defer e.ruleMu.Unlock()

	if !e.rulesAt.IsZero() && e.now().Sub(e.rulesAt) < e.ruleTTL {
		return e.cachedRules, nil
	}
	rules, err := e.rules.GetAllActive(ctx)
	if err != nil {
		// Serve the stale list if we have one; the next tick retries.
		if e.cachedRules != nil {
			return e.cachedRules, nil
		}
		return nil, err
	}
	e.cachedRules = rules
	e.rulesAt = e.now()
	return rules, nil
}

// Invalidate drops the rule cache; call after rule mutations.
func (e *Engine) Invalidate() {
	e.ruleMu.Lock()
	e.cachedRules = nil
	e.rulesAt = time.Time{}
	e.ruleMu.Unlock()
}

// resolveInstrument looks the instrument up, caching hits. A miss is not
// an error: ticks for symbols without instruments simply carry no rules.
func (e *Engine) resolveInstrument(ctx context.Context, symbol, exchange string) (domain.Instrument, bool, error) {
	key := symbol + "|" + exchange
	if v, ok := e.instCache.Load(key); ok {
		return v.(domain.Instrument), true, nil
	}
	inst, err := e.instruments.Get(ctx, symbol, exchange)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Instrument{}, false, nil
	}
	if err != nil {
		return domain.Instrument{}, false, err
	}
	e.instCache.Store(key, inst)
	return inst, true, nil
}
