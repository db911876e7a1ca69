package pipeline

import (
	"strings"

	"github.com/quantpulse/marketd/internal/domain"
)

// SymbolFilter is the ingestion allow-list: the union of every configured
// exchange's symbols, compared case-insensitively. It is built once at
// startup and is safe for concurrent reads.
type SymbolFilter struct {
	allowed map[string]bool
}

// NewSymbolFilter builds the filter from the configured symbol lists.
func NewSymbolFilter(symbolLists ...[]string) *SymbolFilter {
	allowed := make(map[string]bool)
	for _, list := range symbolLists {
		for _, s := range list {
			s = strings.ToUpper(strings.TrimSpace(s))
			if s != "" {
				allowed[s] = true
			}
		}
	}
	return &SymbolFilter{allowed: allowed}
}

// IsAllowed reports whether the tick's symbol is on the allow-list.
func (f *SymbolFilter) IsAllowed(tick domain.NormalizedTick) bool {
	return f.allowed[strings.ToUpper(tick.Symbol)]
}
