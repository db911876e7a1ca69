package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitSymbol(t *testing.T) {
	tests := []struct {
		symbol string
		base   string
		quote  string
	}{
		{"BTCUSDT", "BTC", "USDT"},
		{"ethusdt", "ETH", "USDT"},
		{"SOLUSDC", "SOL", "USDC"},
		{"DOGEBUSD", "DOGE", "BUSD"},
		{"XRPEUR", "XRP", "EUR"},
		{"ETHBTC", "ETH", "BTC"},
		{"ADABNB", "ADA", "BNB"},
		// USDTUSD ends in both USD and no longer match; longest suffix is USD.
		{"USDTUSD", "USDT", "USD"},
		// No known quote, length >= 6: mid-split.
		{"FOOBAR", "FOO", "BAR"},
		{"ABCDEFG", "ABC", "DEFG"},
		// No known quote, too short for a mid-split.
		{"WIF", "WIF", ""},
	}

	for _, tt := range tests {
		t.Run(tt.symbol, func(t *testing.T) {
			base, quote := SplitSymbol(tt.symbol)
			assert.Equal(t, tt.base, base)
			assert.Equal(t, tt.quote, quote)
		})
	}
}
