// Package pipeline implements the tick ingestion pipeline: a bounded
// multi-producer queue drained by a single consumer that normalizes,
// deduplicates, filters and fans each tick out to the registered handlers.
//
// Backpressure is the queue itself: producers block when it is full and
// nothing is ever dropped. Errors inside the consumer loop are never
// surfaced to producers.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/quantpulse/marketd/internal/domain"
	"github.com/quantpulse/marketd/internal/metrics"
)

// DefaultQueueCapacity is the production queue depth.
const DefaultQueueCapacity = 10_000

// Handler consumes admitted ticks. Handlers are invoked sequentially in
// registration order; a failing handler does not stop the others.
type Handler interface {
	Name() string
	HandleTick(ctx context.Context, tick domain.NormalizedTick) error
}

// Pipeline owns the bounded tick queue and the single consumer goroutine.
type Pipeline struct {
	queue    chan domain.RawTick
	handlers []Handler
	dedup    domain.Deduplicator
	filter   *SymbolFilter
	metrics  *metrics.Registry
	logger   *slog.Logger

	started atomic.Bool
	stopped atomic.Bool
	stopCh  chan struct{} // closed by Stop: no new writes, consumer drains
	doneCh  chan struct{} // closed when the consumer has returned
}

// New creates a Pipeline with the given queue capacity. A capacity <= 0
// falls back to DefaultQueueCapacity.
func New(capacity int, dedup domain.Deduplicator, filter *SymbolFilter, reg *metrics.Registry, logger *slog.Logger) *Pipeline {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	return &Pipeline{
		queue:   make(chan domain.RawTick, capacity),
		dedup:   dedup,
		filter:  filter,
		metrics: reg,
		logger:  logger.With(slog.String("component", "pipeline")),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// RegisterHandler appends a handler. Handlers must be registered before
// Start; registering afterwards is an error.
func (p *Pipeline) RegisterHandler(h Handler) error {
	if p.started.Load() {
		return fmt.Errorf("pipeline: register %s: %w", h.Name(), domain.ErrPipelineStarted)
	}
	p.handlers = append(p.handlers, h)
	return nil
}

// Write enqueues a raw tick. It blocks while the queue is full; that block
// is the backpressure signal to producers. It fails once the pipeline has
// been stopped or the caller's context is cancelled.
func (p *Pipeline) Write(ctx context.Context, raw domain.RawTick) error {
	if p.stopped.Load() {
		return fmt.Errorf("pipeline: write: %w", domain.ErrPipelineStopped)
	}
	if raw.ReceivedAt.IsZero() {
		raw.ReceivedAt = time.Now().UTC()
	}
	select {
	case p.queue <- raw:
		p.metrics.RecordTickReceived(raw.Exchange)
		return nil
	case <-p.stopCh:
		return fmt.Errorf("pipeline: write: %w", domain.ErrPipelineStopped)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Start launches the consumer goroutine. Calling Start twice is an error.
//
// The consumer deliberately runs detached from ctx's cancellation: on
// shutdown the writer is closed first and the consumer drains what is
// already queued. The bound on that drain is Stop's context, owned by the
// caller.
func (p *Pipeline) Start(ctx context.Context) error {
	if !p.started.CompareAndSwap(false, true) {
		return domain.ErrPipelineStarted
	}
	p.logger.InfoContext(ctx, "pipeline starting",
		slog.Int("queue_capacity", cap(p.queue)),
		slog.Int("handlers", len(p.handlers)),
	)
	go p.consume(context.WithoutCancel(ctx))
	return nil
}

// Stop closes the writer side, waits for the consumer to drain the queue
// and returns. The wait is bounded by ctx.
func (p *Pipeline) Stop(ctx context.Context) error {
	if !p.stopped.CompareAndSwap(false, true) {
		return nil
	}
	close(p.stopCh)
	select {
	case <-p.doneCh:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("pipeline: stop: %w", ctx.Err())
	}
}

// consume is the single consumer loop. It exits only through Stop: once
// the writer side is closed it drains whatever remains in the queue and
// returns.
func (p *Pipeline) consume(ctx context.Context) {
	defer close(p.doneCh)

	for {
		select {
		case raw := <-p.queue:
			p.process(ctx, raw)
		case <-p.stopCh:
			p.drain(ctx)
			return
		}
	}
}

// drain empties the queue without blocking for new items.
func (p *Pipeline) drain(ctx context.Context) {
	for {
		select {
		case raw := <-p.queue:
			p.process(ctx, raw)
		default:
			p.logger.Info("pipeline drained")
			return
		}
	}
}

// process runs one tick through normalize -> dedup -> filter -> handlers.
func (p *Pipeline) process(ctx context.Context, raw domain.RawTick) {
	p.metrics.RecordPipelineQueueSize(len(p.queue))

	tick := domain.Normalize(raw)

	unique, err := p.dedup.IsUnique(ctx, tick)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		// The dedup backend being down must not stall ingestion: admit the
		// tick and let the tick table tolerate the duplicate.
		p.logger.WarnContext(ctx, "dedup check failed, admitting tick",
			slog.String("exchange", tick.Exchange),
			slog.String("symbol", tick.Symbol),
			slog.String("error", err.Error()),
		)
		p.metrics.RecordError(tick.Exchange, "dedup")
		unique = true
	}
	if !unique {
		p.metrics.RecordDuplicateFiltered(tick.Exchange)
		return
	}

	if !p.filter.IsAllowed(tick) {
		return
	}

	for _, h := range p.handlers {
		if ctx.Err() != nil {
			return
		}
		if err := h.HandleTick(ctx, tick); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			// One handler failing must not stop the others or the loop.
			p.logger.ErrorContext(ctx, "handler failed",
				slog.String("handler", h.Name()),
				slog.String("exchange", tick.Exchange),
				slog.String("symbol", tick.Symbol),
				slog.String("error", err.Error()),
			)
			p.metrics.RecordError(tick.Exchange, "handler")
		}
	}

	p.metrics.RecordTickProcessed(tick.Exchange, time.Since(tick.ReceivedAt).Milliseconds())
}

// QueueDepth reports the current number of queued ticks.
func (p *Pipeline) QueueDepth() int {
	return len(p.queue)
}
