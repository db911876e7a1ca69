package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"github.com/quantpulse/marketd/internal/domain"
)

// defaultPollInterval applies when the config leaves the interval unset.
const defaultPollInterval = 5 * time.Second

// PollAdapter fetches recent trades over REST at a fixed interval, one
// request per symbol per cycle. It covers exchanges (or symbols) without a
// usable stream and doubles as the redundancy source the deduplicator
// collapses against the streaming feed.
type PollAdapter struct {
	lifecycle
	pollURL  string
	symbols  []string
	interval time.Duration
	client   *resty.Client
	logger   *slog.Logger
}

// NewPollAdapter creates a polling adapter for the given exchange tag,
// trades endpoint and symbols.
func NewPollAdapter(exchange, pollURL string, symbols []string, interval time.Duration, logger *slog.Logger) *PollAdapter {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	client := resty.New().
		SetTimeout(10 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond)
	return &PollAdapter{
		lifecycle: newLifecycle(exchange, domain.SourcePolled),
		pollURL:   pollURL,
		symbols:   symbols,
		interval:  interval,
		client:    client,
		logger: logger.With(
			slog.String("component", "poll_adapter"),
			slog.String("exchange", exchange),
		),
	}
}

// Exchange implements Adapter.
func (a *PollAdapter) Exchange() string { return a.exchange }

// Source implements Adapter.
func (a *PollAdapter) Source() domain.SourceType { return a.source }

// Symbols implements Adapter.
func (a *PollAdapter) Symbols() []string { return a.symbols }

// Start launches the poll loop.
func (a *PollAdapter) Start(ctx context.Context, w TickWriter) error {
	runCtx, err := a.begin(ctx)
	if err != nil {
		return fmt.Errorf("poll adapter %s: %w", a.exchange, err)
	}
	go a.run(runCtx, w)
	return nil
}

// Stop implements Adapter.
func (a *PollAdapter) Stop(ctx context.Context) error {
	return a.stop(ctx)
}

// Status implements Adapter.
func (a *PollAdapter) Status() domain.ExchangeStatus {
	return a.status()
}

// run polls every symbol once immediately and then on each tick of the
// interval.
func (a *PollAdapter) run(ctx context.Context, w TickWriter) {
	defer a.end()

	a.pollOnce(ctx, w)

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.pollOnce(ctx, w)
		}
	}
}

// pollOnce fetches recent trades for every symbol. A failing symbol is
// recorded and skipped; the cycle continues.
func (a *PollAdapter) pollOnce(ctx context.Context, w TickWriter) {
	online := false
	for _, symbol := range a.symbols {
		if ctx.Err() != nil {
			return
		}
		if err := a.pollSymbol(ctx, w, symbol); err != nil {
			a.recordError(err)
			a.logger.Warn("poll failed",
				slog.String("symbol", symbol),
				slog.String("error", err.Error()),
			)
			continue
		}
		online = true
	}
	if online {
		a.setOnline(true)
	}
}

// polledTrade is one trade row in the REST response.
type polledTrade struct {
	Price    string `json:"price"`
	Quantity string `json:"qty"`
	Time     int64  `json:"time"` // unix millis
}

// pollSymbol fetches the most recent trades for one symbol and writes them
// in response order. Duplicates across cycles are collapsed downstream by
// the deduplicator.
func (a *PollAdapter) pollSymbol(ctx context.Context, w TickWriter, symbol string) error {
	resp, err := a.client.R().
		SetContext(ctx).
		SetQueryParam("symbol", symbol).
		SetQueryParam("limit", "20").
		Get(a.pollURL)
	if err != nil {
		return fmt.Errorf("poll adapter %s: get %s: %w", a.exchange, symbol, err)
	}
	if resp.IsError() {
		return fmt.Errorf("poll adapter %s: get %s: status %d", a.exchange, symbol, resp.StatusCode())
	}

	var trades []polledTrade
	if err := json.Unmarshal(resp.Body(), &trades); err != nil {
		return fmt.Errorf("poll adapter %s: decode %s: %w", a.exchange, symbol, err)
	}

	for _, t := range trades {
		price, err := decimal.NewFromString(t.Price)
		if err != nil || price.IsNegative() {
			continue
		}
		volume, err := decimal.NewFromString(t.Quantity)
		if err != nil || volume.IsNegative() {
			continue
		}

		tick := domain.RawTick{
			Exchange:   a.exchange,
			Source:     domain.SourcePolled,
			Symbol:     symbol,
			Price:      price,
			Volume:     volume,
			Timestamp:  time.UnixMilli(t.Time).UTC(),
			ReceivedAt: time.Now().UTC(),
		}
		if err := w.Write(ctx, tick); err != nil {
			if ctx.Err() == nil {
				a.logger.Warn("tick write failed", slog.String("error", err.Error()))
			}
			return nil
		}
		a.recordTick()
	}
	return nil
}

// Compile-time interface check.
var _ Adapter = (*PollAdapter)(nil)
