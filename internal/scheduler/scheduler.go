// Package scheduler runs the background loops around the pipeline: the
// periodic aggregator flush, the adapter status probe and the cron-driven
// retention cycle (archive old ticks to cold storage, then delete).
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/quantpulse/marketd/internal/adapter"
	"github.com/quantpulse/marketd/internal/domain"
)

// statusProbeInterval is how often adapter statuses are persisted.
const statusProbeInterval = 30 * time.Second

// Flusher is the aggregator-facing flush trigger.
type Flusher interface {
	Flush(ctx context.Context)
}

// Archiver exports and removes ticks older than the cutoff.
type Archiver interface {
	ArchiveBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Config holds scheduler parameters.
type Config struct {
	FlushInterval        time.Duration
	RetentionDays        int
	RetentionCron        string
	DeleteWithoutArchive bool
}

// Scheduler owns the periodic background tasks.
type Scheduler struct {
	cfg      Config
	flusher  Flusher
	adapters []adapter.Adapter
	statuses domain.ExchangeStatusStore
	archiver Archiver // nil disables archival
	ticks    domain.TickStore
	logger   *slog.Logger
}

// New creates a Scheduler. archiver may be nil when no object store is
// configured; the retention delete then only runs when explicitly allowed.
func New(cfg Config, flusher Flusher, adapters []adapter.Adapter, statuses domain.ExchangeStatusStore, archiver Archiver, ticks domain.TickStore, logger *slog.Logger) *Scheduler {
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 10 * time.Second
	}
	return &Scheduler{
		cfg:      cfg,
		flusher:  flusher,
		adapters: adapters,
		statuses: statuses,
		archiver: archiver,
		ticks:    ticks,
		logger:   logger.With(slog.String("component", "scheduler")),
	}
}

// Run starts all loops and blocks until ctx is cancelled, then returns nil.
// The flush and status loops log their own failures and keep running; a
// retention cron expression that does not parse makes Run return that error.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.InfoContext(ctx, "scheduler starting",
		slog.Duration("flush_interval", s.cfg.FlushInterval),
		slog.String("retention_cron", s.cfg.RetentionCron),
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return s.flushLoop(gctx) })
	g.Go(func() error { return s.statusLoop(gctx) })
	if s.cfg.RetentionCron != "" {
		g.Go(func() error { return s.retentionLoop(gctx) })
	}

	err := g.Wait()
	if ctx.Err() != nil {
		return nil // clean shutdown
	}
	return err
}

// flushLoop triggers the aggregator flush on every interval tick. The
// flush itself is single-flight, so an overlapping timer tick is a no-op.
func (s *Scheduler) flushLoop(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.flusher.Flush(ctx)
		}
	}
}

// statusLoop snapshots every adapter and upserts the statuses. Store
// failures are logged and retried on the next probe.
func (s *Scheduler) statusLoop(ctx context.Context) error {
	ticker := time.NewTicker(statusProbeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			for _, a := range s.adapters {
				st := a.Status()
				if err := s.statuses.Upsert(ctx, st); err != nil {
					s.logger.WarnContext(ctx, "status upsert failed",
						slog.String("exchange", st.Exchange),
						slog.String("source", string(st.Source)),
						slog.String("error", err.Error()),
					)
				}
			}
		}
	}
}

// retentionLoop runs the archive-then-delete cycle on the configured cron
// schedule.
func (s *Scheduler) retentionLoop(ctx context.Context) error {
	schedule, err := cron.ParseStandard(s.cfg.RetentionCron)
	if err != nil {
		return fmt.Errorf("scheduler: parse retention cron %q: %w", s.cfg.RetentionCron, err)
	}

	for {
		next := schedule.Next(time.Now())
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			s.runRetention(ctx)
		}
	}
}

// runRetention archives and deletes ticks older than the retention bound.
// Without an archiver the delete only runs when explicitly permitted.
func (s *Scheduler) runRetention(ctx context.Context) {
	cutoff := time.Now().UTC().AddDate(0, 0, -s.cfg.RetentionDays)

	if s.archiver != nil {
		deleted, err := s.archiver.ArchiveBefore(ctx, cutoff)
		if err != nil {
			s.logger.ErrorContext(ctx, "retention archive failed, delete skipped",
				slog.Time("cutoff", cutoff),
				slog.String("error", err.Error()),
			)
			return
		}
		s.logger.InfoContext(ctx, "retention cycle complete",
			slog.Time("cutoff", cutoff),
			slog.Int64("ticks_archived", deleted),
		)
		return
	}

	if !s.cfg.DeleteWithoutArchive {
		s.logger.WarnContext(ctx, "retention skipped: no archiver configured and delete_without_archive is off")
		return
	}
	deleted, err := s.ticks.DeleteBefore(ctx, cutoff)
	if err != nil {
		s.logger.ErrorContext(ctx, "retention delete failed",
			slog.Time("cutoff", cutoff),
			slog.String("error", err.Error()),
		)
		return
	}
	s.logger.InfoContext(ctx, "retention delete complete",
		slog.Time("cutoff", cutoff),
		slog.Int64("ticks_deleted", deleted),
	)
}
