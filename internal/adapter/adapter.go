// Package adapter contains the exchange feed adapters that produce raw
// ticks into the pipeline: a WebSocket streaming adapter and a REST
// polling adapter. Each adapter runs as an independent producer with its
// own lifecycle (Idle -> Running -> Stopping -> Idle) and keeps reconnect
// churn invisible to the pipeline.
package adapter

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/quantpulse/marketd/internal/domain"
)

// TickWriter is the pipeline-facing write endpoint. Write blocks while the
// queue is full.
type TickWriter interface {
	Write(ctx context.Context, raw domain.RawTick) error
}

// Adapter is one exchange feed producer.
type Adapter interface {
	// Exchange returns the exchange tag stamped on produced ticks.
	Exchange() string
	// Source returns the source-type tag (streaming or polled).
	Source() domain.SourceType
	// Symbols returns the symbols this adapter subscribes to.
	Symbols() []string
	// Start begins producing into w and returns once the producer goroutine
	// is running. Starting a running adapter is an error.
	Start(ctx context.Context, w TickWriter) error
	// Stop unwinds the producer; the wait is bounded by ctx.
	Stop(ctx context.Context) error
	// Status returns the current health snapshot.
	Status() domain.ExchangeStatus
}

// lifecycle carries the shared adapter state machine and status tracking.
type lifecycle struct {
	exchange string
	source   domain.SourceType

	state  atomic.Int32 // domain.AdapterState
	cancel context.CancelFunc
	done   chan struct{}

	mu         sync.Mutex
	online     bool
	lastTickAt time.Time
	lastErr    string
}

func newLifecycle(exchange string, source domain.SourceType) lifecycle {
	return lifecycle{exchange: exchange, source: source}
}

// begin transitions Idle -> Running and installs the cancel/done pair.
// It fails when the adapter is not idle.
func (l *lifecycle) begin(parent context.Context) (context.Context, error) {
	if !l.state.CompareAndSwap(int32(domain.AdapterIdle), int32(domain.AdapterRunning)) {
		return nil, domain.ErrAdapterRunning
	}
	ctx, cancel := context.WithCancel(parent)
	l.cancel = cancel
	l.done = make(chan struct{})
	return ctx, nil
}

// end transitions back to Idle; the producer goroutine calls it on exit.
func (l *lifecycle) end() {
	l.setOnline(false)
	l.state.Store(int32(domain.AdapterIdle))
	close(l.done)
}

// stop requests shutdown and waits for the producer, bounded by ctx.
func (l *lifecycle) stop(ctx context.Context) error {
	if !l.state.CompareAndSwap(int32(domain.AdapterRunning), int32(domain.AdapterStopping)) {
		return nil
	}
	l.cancel()
	select {
	case <-l.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *lifecycle) setOnline(online bool) {
	l.mu.Lock()
	l.online = online
	l.mu.Unlock()
}

func (l *lifecycle) recordTick() {
	l.mu.Lock()
	l.lastTickAt = time.Now().UTC()
	l.mu.Unlock()
}

func (l *lifecycle) recordError(err error) {
	l.mu.Lock()
	l.online = false
	l.lastErr = err.Error()
	l.mu.Unlock()
}

// status snapshots the current health.
func (l *lifecycle) status() domain.ExchangeStatus {
	l.mu.Lock()
	defer l.mu.Unlock()
	return domain.ExchangeStatus{
		Exchange:   l.exchange,
		Source:     l.source,
		IsOnline:   l.online,
		LastTickAt: l.lastTickAt,
		LastError:  l.lastErr,
		UpdatedAt:  time.Now().UTC(),
	}
}
