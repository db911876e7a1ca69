package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Interval is a candle aggregation window. Its string form is the canonical
// short form used on the wire and in persistence.
type Interval string

const (
	IntervalOneMinute   Interval = "1m"
	IntervalFiveMinutes Interval = "5m"
	IntervalOneHour     Interval = "1h"
)

// ParseInterval maps a short form back to an Interval.
func ParseInterval(s string) (Interval, error) {
	switch Interval(s) {
	case IntervalOneMinute, IntervalFiveMinutes, IntervalOneHour:
		return Interval(s), nil
	}
	return "", fmt.Errorf("domain: unknown interval %q", s)
}

// Duration returns the wall-clock length of the interval.
func (i Interval) Duration() time.Duration {
	switch i {
	case IntervalOneMinute:
		return time.Minute
	case IntervalFiveMinutes:
		return 5 * time.Minute
	case IntervalOneHour:
		return time.Hour
	}
	return 0
}

// OpenTime truncates a tick timestamp down to the interval boundary.
func (i Interval) OpenTime(ts time.Time) time.Time {
	return ts.UTC().Truncate(i.Duration())
}

// Candle is one OHLCV bucket, identified by (instrument, interval, open
// time). Low uses a zero sentinel until the first tick is applied.
type Candle struct {
	InstrumentID int64
	Interval     Interval
	OpenTime     time.Time
	CloseTime    time.Time
	Open         decimal.Decimal
	High         decimal.Decimal
	Low          decimal.Decimal
	Close        decimal.Decimal
	Volume       decimal.Decimal
	TradesCount  int64
}

// NewCandle creates an empty candle for the bucket containing ts.
func NewCandle(instrumentID int64, interval Interval, ts time.Time) *Candle {
	open := interval.OpenTime(ts)
	return &Candle{
		InstrumentID: instrumentID,
		Interval:     interval,
		OpenTime:     open,
		CloseTime:    open.Add(interval.Duration()),
	}
}

// ApplyTick folds one trade into the candle: open is set by the first
// apply, close tracks the most recent, high/low extend, volume and the
// trade count accumulate. Callers must serialize applies per candle.
func (c *Candle) ApplyTick(price, volume decimal.Decimal) {
	if c.TradesCount == 0 {
		c.Open = price
	}
	if price.GreaterThan(c.High) {
		c.High = price
	}
	if c.Low.IsZero() || price.LessThan(c.Low) {
		c.Low = price
	}
	c.Close = price
	c.Volume = c.Volume.Add(volume)
	c.TradesCount++
}
