// Package metrics provides an in-process registry of pipeline counters.
// The record path is wait-free: per-exchange counters live in a sync.Map of
// atomic cells, so concurrent producers, the consumer loop and the flusher
// never contend on a lock.
package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// exchangeCounters holds the per-exchange atomic cells.
type exchangeCounters struct {
	received     atomic.Int64
	processed    atomic.Int64
	duplicates   atomic.Int64
	errors       atomic.Int64
	errorKinds   sync.Map     // kind -> *atomic.Int64
	processingMs atomic.Int64 // summed over all processed ticks
}

func (c *exchangeCounters) errorKind(kind string) *atomic.Int64 {
	if v, ok := c.errorKinds.Load(kind); ok {
		return v.(*atomic.Int64)
	}
	v, _ := c.errorKinds.LoadOrStore(kind, new(atomic.Int64))
	return v.(*atomic.Int64)
}

// Registry accumulates counters since process start. All methods are safe
// for concurrent use.
type Registry struct {
	exchanges   sync.Map // exchange -> *exchangeCounters
	queueSize   atomic.Int64
	ticksStored atomic.Int64
	startedAt   time.Time
}

// NewRegistry creates a Registry; the construction time is the uptime
// baseline reported in snapshots.
func NewRegistry() *Registry {
	return &Registry{startedAt: time.Now().UTC()}
}

func (r *Registry) counters(exchange string) *exchangeCounters {
	if c, ok := r.exchanges.Load(exchange); ok {
		return c.(*exchangeCounters)
	}
	c, _ := r.exchanges.LoadOrStore(exchange, &exchangeCounters{})
	return c.(*exchangeCounters)
}

// RecordTickReceived counts a raw tick accepted from an adapter.
func (r *Registry) RecordTickReceived(exchange string) {
	r.counters(exchange).received.Add(1)
}

// RecordTickProcessed counts a fully handled tick together with its
// ingress-to-done latency in milliseconds.
func (r *Registry) RecordTickProcessed(exchange string, ms int64) {
	c := r.counters(exchange)
	c.processed.Add(1)
	c.processingMs.Add(ms)
}

// RecordDuplicateFiltered counts a tick dropped by the deduplicator.
func (r *Registry) RecordDuplicateFiltered(exchange string) {
	r.counters(exchange).duplicates.Add(1)
}

// RecordError counts a failure attributed to an exchange, bucketed by kind
// (e.g. "dedup", "handler").
func (r *Registry) RecordError(exchange, kind string) {
	c := r.counters(exchange)
	c.errors.Add(1)
	c.errorKind(kind).Add(1)
}

// RecordPipelineQueueSize records the current queue depth gauge.
func (r *Registry) RecordPipelineQueueSize(n int) {
	r.queueSize.Store(int64(n))
}

// RecordTickStored counts ticks flushed to persistent storage.
func (r *Registry) RecordTickStored(n int) {
	r.ticksStored.Add(int64(n))
}

// ExchangeSnapshot is the per-exchange view inside a Snapshot.
type ExchangeSnapshot struct {
	TicksReceived      int64            `json:"ticks_received"`
	TicksProcessed     int64            `json:"ticks_processed"`
	DuplicatesFiltered int64            `json:"duplicates_filtered"`
	Errors             int64            `json:"errors"`
	ErrorsByKind       map[string]int64 `json:"errors_by_kind,omitempty"`
	AvgProcessingMs    float64          `json:"avg_processing_ms"`
}

// Snapshot is a point-in-time copy of every counter.
type Snapshot struct {
	Exchanges       map[string]ExchangeSnapshot `json:"exchanges"`
	TotalReceived   int64                       `json:"total_received"`
	TotalProcessed  int64                       `json:"total_processed"`
	TotalDuplicates int64                       `json:"total_duplicates"`
	TotalErrors     int64                       `json:"total_errors"`
	TicksStored     int64                       `json:"ticks_stored"`
	QueueSize       int64                       `json:"queue_size"`
	UptimeSeconds   float64                     `json:"uptime_seconds"`
	SnapshotAt      time.Time                   `json:"snapshot_at"`
}

// GetSnapshot copies all counters. Averages are plain means over every
// processing sample since start.
func (r *Registry) GetSnapshot() Snapshot {
	now := time.Now().UTC()
	snap := Snapshot{
		Exchanges:     make(map[string]ExchangeSnapshot),
		TicksStored:   r.ticksStored.Load(),
		QueueSize:     r.queueSize.Load(),
		UptimeSeconds: now.Sub(r.startedAt).Seconds(),
		SnapshotAt:    now,
	}

	r.exchanges.Range(func(key, value any) bool {
		c := value.(*exchangeCounters)
		es := ExchangeSnapshot{
			TicksReceived:      c.received.Load(),
			TicksProcessed:     c.processed.Load(),
			DuplicatesFiltered: c.duplicates.Load(),
			Errors:             c.errors.Load(),
		}
		if es.TicksProcessed > 0 {
			es.AvgProcessingMs = float64(c.processingMs.Load()) / float64(es.TicksProcessed)
		}
		c.errorKinds.Range(func(k, v any) bool {
			if es.ErrorsByKind == nil {
				es.ErrorsByKind = make(map[string]int64)
			}
			es.ErrorsByKind[k.(string)] = v.(*atomic.Int64).Load()
			return true
		})
		snap.Exchanges[key.(string)] = es
		snap.TotalReceived += es.TicksReceived
		snap.TotalProcessed += es.TicksProcessed
		snap.TotalDuplicates += es.DuplicatesFiltered
		snap.TotalErrors += es.Errors
		return true
	})

	return snap
}
