// Package app provides the top-level application lifecycle for marketd. It
// wires the stores, the dedup backend, the pipeline with its two handlers,
// the exchange adapters and the background scheduler, and coordinates the
// ordered shutdown.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/quantpulse/marketd/internal/adapter"
	"github.com/quantpulse/marketd/internal/aggregator"
	"github.com/quantpulse/marketd/internal/alert"
	"github.com/quantpulse/marketd/internal/config"
	"github.com/quantpulse/marketd/internal/domain"
	"github.com/quantpulse/marketd/internal/pipeline"
	"github.com/quantpulse/marketd/internal/scheduler"
)

const (
	// shutdownTimeout bounds the whole drain-and-flush sequence.
	shutdownTimeout = 30 * time.Second

	// adapterStopTimeout bounds each adapter's Stop.
	adapterStopTimeout = 10 * time.Second
)

// App is the root application object.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run wires all dependencies, starts the pipeline, the adapters and the
// scheduler, and blocks until the context is cancelled. On cancellation it
// stops the adapters, drains the pipeline and runs a final best-effort
// flush within the shutdown deadline.
func (a *App) Run(ctx context.Context) error {
	deps, cleanup, err := Wire(ctx, a.cfg)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	// Symbol filter: union of every configured exchange's symbols.
	symbolLists := make([][]string, 0, len(a.cfg.Exchanges))
	for _, ex := range a.cfg.Exchanges {
		symbolLists = append(symbolLists, ex.Symbols)
	}
	filter := pipeline.NewSymbolFilter(symbolLists...)

	pl := pipeline.New(a.cfg.Pipeline.QueueCapacity, deps.Dedup, filter, deps.Metrics, a.logger)

	intervals := make([]domain.Interval, 0, len(a.cfg.Aggregator.CandleIntervals))
	for _, s := range a.cfg.Aggregator.CandleIntervals {
		iv, err := domain.ParseInterval(s)
		if err != nil {
			return fmt.Errorf("app: %w", err)
		}
		intervals = append(intervals, iv)
	}

	agg := aggregator.New(aggregator.Config{
		Intervals:       intervals,
		TickBufferSize:  a.cfg.Aggregator.TickBufferSize,
		CandleRetention: a.cfg.Aggregator.CandleRetention.Duration,
	}, deps.InstrumentStore, deps.TickStore, deps.CandleStore, deps.Metrics, a.logger)

	engine := alert.NewEngine(alert.EngineConfig{
		Cooldown:     a.cfg.Alerts.Cooldown.Duration,
		RuleCacheTTL: a.cfg.Alerts.RuleCacheTTL.Duration,
	}, deps.AlertRuleStore, deps.InstrumentStore, deps.AlertHistoryStore, deps.Notifier, a.logger)

	// Registration order is dispatch order: candles first, alerts second.
	if err := pl.RegisterHandler(agg); err != nil {
		return fmt.Errorf("app: %w", err)
	}
	if err := pl.RegisterHandler(engine); err != nil {
		return fmt.Errorf("app: %w", err)
	}
	if err := pl.Start(ctx); err != nil {
		return fmt.Errorf("app: %w", err)
	}

	adapters := a.buildAdapters()
	started := make([]adapter.Adapter, 0, len(adapters))
	for _, ad := range adapters {
		if err := ad.Start(ctx, pl); err != nil {
			a.logger.ErrorContext(ctx, "adapter start failed",
				slog.String("exchange", ad.Exchange()),
				slog.String("source", string(ad.Source())),
				slog.String("error", err.Error()),
			)
			continue
		}
		started = append(started, ad)
		a.logger.InfoContext(ctx, "adapter started",
			slog.String("exchange", ad.Exchange()),
			slog.String("source", string(ad.Source())),
			slog.Int("symbols", len(ad.Symbols())),
		)
	}

	sched := scheduler.New(scheduler.Config{
		FlushInterval:        a.cfg.Aggregator.FlushInterval.Duration,
		RetentionDays:        a.cfg.Retention.Days,
		RetentionCron:        a.cfg.Retention.Cron,
		DeleteWithoutArchive: a.cfg.Retention.DeleteWithoutArchive,
	}, agg, started, deps.ExchangeStatusStore, archiverOrNil(deps), deps.TickStore, a.logger)

	schedErr := make(chan error, 1)
	go func() { schedErr <- sched.Run(ctx) }()

	a.logger.InfoContext(ctx, "marketd running",
		slog.Int("adapters", len(started)),
		slog.Int("queue_capacity", a.cfg.Pipeline.QueueCapacity),
	)

	select {
	case <-ctx.Done():
	case err := <-schedErr:
		if err != nil {
			a.logger.ErrorContext(ctx, "scheduler failed", slog.String("error", err.Error()))
			a.shutdown(started, pl, agg)
			return fmt.Errorf("app: scheduler: %w", err)
		}
	}

	a.shutdown(started, pl, agg)
	return ctx.Err()
}

// shutdown stops adapters concurrently, drains the pipeline and runs a
// final flush, all within the shutdown deadline.
func (a *App) shutdown(adapters []adapter.Adapter, pl *pipeline.Pipeline, agg *aggregator.Aggregator) {
	shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	a.logger.Info("shutting down")

	// Writers first: stop every adapter, individually bounded. A slow stop
	// is logged and abandoned.
	g := new(errgroup.Group)
	for _, ad := range adapters {
		g.Go(func() error {
			stopCtx, cancel := context.WithTimeout(shutCtx, adapterStopTimeout)
			defer cancel()
			if err := ad.Stop(stopCtx); err != nil {
				a.logger.Warn("adapter stop failed",
					slog.String("exchange", ad.Exchange()),
					slog.String("source", string(ad.Source())),
					slog.String("error", err.Error()),
				)
			}
			return nil
		})
	}
	_ = g.Wait()

	// Then close the queue and drain the consumer.
	if err := pl.Stop(shutCtx); err != nil {
		a.logger.Warn("pipeline stop incomplete", slog.String("error", err.Error()))
	}

	// Final best-effort flush of buffered ticks and open candles.
	agg.Flush(shutCtx)
}

// buildAdapters constructs adapters from configuration: a streaming and/or
// polling adapter per exchange depending on its source setting.
func (a *App) buildAdapters() []adapter.Adapter {
	var adapters []adapter.Adapter
	for _, ex := range a.cfg.Exchanges {
		if ex.Source == "stream" || ex.Source == "both" {
			adapters = append(adapters, adapter.NewWSAdapter(ex.Name, ex.WSURL, ex.Symbols, a.logger))
		}
		if ex.Source == "poll" || ex.Source == "both" {
			adapters = append(adapters, adapter.NewPollAdapter(ex.Name, ex.PollURL, ex.Symbols, ex.PollInterval.Duration, a.logger))
		}
	}
	return adapters
}

func archiverOrNil(deps *Dependencies) scheduler.Archiver {
	if deps.TickArchiver == nil {
		return nil
	}
	return deps.TickArchiver
}

// Close tears down all resources in reverse registration order. It is safe
// to call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
