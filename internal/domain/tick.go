package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// SourceType distinguishes how a tick reached us: pushed over a streaming
// connection or pulled by a REST poller.
type SourceType string

const (
	SourceStreaming SourceType = "streaming"
	SourcePolled    SourceType = "polled"
)

// RawTick is a single trade as handed over by an exchange adapter, before
// normalization. Symbol casing is whatever the exchange uses natively.
type RawTick struct {
	Exchange   string
	Source     SourceType
	Symbol     string
	Price      decimal.Decimal
	Volume     decimal.Decimal
	Timestamp  time.Time // event time reported by the exchange
	ReceivedAt time.Time // assigned on ingress
}

// NormalizedTick is a RawTick after canonicalization: upper-case symbol,
// UTC timestamps. It is immutable once created.
type NormalizedTick struct {
	Exchange   string
	Source     SourceType
	Symbol     string
	Price      decimal.Decimal
	Volume     decimal.Decimal
	Timestamp  time.Time
	ReceivedAt time.Time
}

// Normalize canonicalizes a raw tick. The symbol is upper-cased and both
// timestamps are forced to UTC.
func Normalize(raw RawTick) NormalizedTick {
	return NormalizedTick{
		Exchange:   raw.Exchange,
		Source:     raw.Source,
		Symbol:     strings.ToUpper(raw.Symbol),
		Price:      raw.Price,
		Volume:     raw.Volume,
		Timestamp:  raw.Timestamp.UTC(),
		ReceivedAt: raw.ReceivedAt.UTC(),
	}
}

// DedupKey returns the canonical identity of the trade event:
// exchange:symbol:price:volume:timestamp. Source type and receive time are
// deliberately excluded so the same trade reported by the streaming and the
// polled source of one exchange collapses to a single key.
func (t NormalizedTick) DedupKey() string {
	var b strings.Builder
	b.WriteString(t.Exchange)
	b.WriteByte(':')
	b.WriteString(t.Symbol)
	b.WriteByte(':')
	b.WriteString(canonDecimal(t.Price))
	b.WriteByte(':')
	b.WriteString(canonDecimal(t.Volume))
	b.WriteByte(':')
	b.WriteString(t.Timestamp.UTC().Format(time.RFC3339Nano))
	return b.String()
}

// canonDecimal renders a decimal without trailing fractional zeros, so that
// "50000", "50000.0" and "50000.00" all map to the same key fragment.
func canonDecimal(d decimal.Decimal) string {
	s := d.String()
	if strings.ContainsRune(s, '.') {
		s = strings.TrimRight(s, "0")
		s = strings.TrimRight(s, ".")
	}
	return s
}

// StoredTick is the persisted form of an admitted tick, resolved to an
// instrument id.
type StoredTick struct {
	InstrumentID int64
	Source       SourceType
	Price        decimal.Decimal
	Volume       decimal.Decimal
	Timestamp    time.Time
	ReceivedAt   time.Time
}
