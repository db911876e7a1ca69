package aggregator

import (
	"sync"

	"github.com/quantpulse/marketd/internal/domain"
)

// tickBuffer collects persisted-tick records between flushes. Multiple
// producers append; the flusher drains in bulk.
type tickBuffer struct {
	mu    sync.Mutex
	items []domain.StoredTick
}

// append adds one record and returns the new buffer length.
func (b *tickBuffer) append(t domain.StoredTick) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items = append(b.items, t)
	return len(b.items)
}

// drain removes and returns up to max records, oldest first.
func (b *tickBuffer) drain(max int) []domain.StoredTick {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.items) == 0 {
		return nil
	}
	n := len(b.items)
	if max > 0 && n > max {
		n = max
	}
	out := make([]domain.StoredTick, n)
	copy(out, b.items[:n])
	b.items = b.items[n:]
	return out
}

// size returns the current buffer length.
func (b *tickBuffer) size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}
