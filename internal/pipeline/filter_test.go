package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/quantpulse/marketd/internal/domain"
)

func TestSymbolFilterUnionsExchangeLists(t *testing.T) {
	f := NewSymbolFilter(
		[]string{"btcusdt", "ETHUSDT"},
		[]string{"ethusdt", " solusdt "},
	)

	assert.True(t, f.IsAllowed(domain.NormalizedTick{Symbol: "BTCUSDT"}))
	assert.True(t, f.IsAllowed(domain.NormalizedTick{Symbol: "ETHUSDT"}))
	assert.True(t, f.IsAllowed(domain.NormalizedTick{Symbol: "SOLUSDT"}))
	assert.False(t, f.IsAllowed(domain.NormalizedTick{Symbol: "DOGEUSDT"}))
}

func TestSymbolFilterEmptyAllowsNothing(t *testing.T) {
	f := NewSymbolFilter()
	assert.False(t, f.IsAllowed(domain.NormalizedTick{Symbol: "BTCUSDT"}))
}
