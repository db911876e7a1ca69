package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"github.com/quantpulse/marketd/internal/domain"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong from the peer.
	pongWait = 60 * time.Second

	// pingPeriod sends pings at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// maxReconnectWait caps the exponential reconnect backoff.
	maxReconnectWait = 30 * time.Second
)

// WSAdapter streams trades from a combined-stream WebSocket endpoint
// (Binance-style: one connection multiplexing <symbol>@trade streams).
// Reconnection is transparent: the adapter stays Running with
// is_online=false until the connection is back.
type WSAdapter struct {
	lifecycle
	wsURL   string
	symbols []string
	logger  *slog.Logger
}

// NewWSAdapter creates a streaming adapter for the given exchange tag,
// combined-stream URL and symbols.
func NewWSAdapter(exchange, wsURL string, symbols []string, logger *slog.Logger) *WSAdapter {
	return &WSAdapter{
		lifecycle: newLifecycle(exchange, domain.SourceStreaming),
		wsURL:     wsURL,
		symbols:   symbols,
		logger: logger.With(
			slog.String("component", "ws_adapter"),
			slog.String("exchange", exchange),
		),
	}
}

// Exchange implements Adapter.
func (a *WSAdapter) Exchange() string { return a.exchange }

// Source implements Adapter.
func (a *WSAdapter) Source() domain.SourceType { return a.source }

// Symbols implements Adapter.
func (a *WSAdapter) Symbols() []string { return a.symbols }

// Start launches the producer goroutine.
func (a *WSAdapter) Start(ctx context.Context, w TickWriter) error {
	runCtx, err := a.begin(ctx)
	if err != nil {
		return fmt.Errorf("ws adapter %s: %w", a.exchange, err)
	}
	go a.run(runCtx, w)
	return nil
}

// Stop implements Adapter.
func (a *WSAdapter) Stop(ctx context.Context) error {
	return a.stop(ctx)
}

// Status implements Adapter.
func (a *WSAdapter) Status() domain.ExchangeStatus {
	return a.status()
}

// run is the reconnect loop: each connection attempt is spaced by
// exponential backoff, reset after a successful session.
func (a *WSAdapter) run(ctx context.Context, w TickWriter) {
	defer a.end()

	bo := backoff.NewExponentialBackOff()
	bo.MaxInterval = maxReconnectWait
	bo.MaxElapsedTime = 0 // reconnect forever

	for {
		if ctx.Err() != nil {
			return
		}

		started := time.Now()
		err := a.runConnection(ctx, w)
		if ctx.Err() != nil {
			return
		}
		a.recordError(err)

		// A session that held for a while means the endpoint is healthy;
		// start the backoff ladder over.
		if time.Since(started) > maxReconnectWait {
			bo.Reset()
		}

		wait := bo.NextBackOff()
		a.logger.Warn("websocket disconnected, reconnecting",
			slog.String("error", err.Error()),
			slog.Duration("wait", wait),
		)
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// runConnection dials, subscribes and reads frames until the connection
// drops or ctx is cancelled. Returns the read error that ended it.
func (a *WSAdapter) runConnection(ctx context.Context, w TickWriter) error {
	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, a.streamURL(), nil)
	if err != nil {
		return fmt.Errorf("ws adapter %s: connect: %w", a.exchange, err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	// Close the connection on cancellation so the blocked read returns.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	go a.pingLoop(ctx, conn)

	a.setOnline(true)
	a.logger.Info("websocket connected", slog.Int("symbols", len(a.symbols)))

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("ws adapter %s: read: %w", a.exchange, err)
		}
		a.handleMessage(ctx, w, message)
	}
}

// pingLoop keeps the connection alive until ctx is cancelled or a write
// fails.
func (a *WSAdapter) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// streamURL builds the combined-stream URL: <ws_url>/stream?streams=
// <sym>@trade/<sym>@trade/...
func (a *WSAdapter) streamURL() string {
	streams := make([]string, 0, len(a.symbols))
	for _, s := range a.symbols {
		streams = append(streams, strings.ToLower(s)+"@trade")
	}
	return strings.TrimSuffix(a.wsURL, "/") + "/stream?streams=" + strings.Join(streams, "/")
}

// tradeFrame is the combined-stream envelope around one trade event.
type tradeFrame struct {
	Stream string     `json:"stream"`
	Data   tradeEvent `json:"data"`
}

// tradeEvent is one trade from a <symbol>@trade stream.
type tradeEvent struct {
	EventType string `json:"e"`
	Symbol    string `json:"s"`
	Price     string `json:"p"`
	Quantity  string `json:"q"`
	TradeTime int64  `json:"T"` // unix millis
}

// handleMessage parses one frame and writes the tick. Unparseable frames
// are dropped silently; the stream carries subscription acks and other
// noise we do not care about.
func (a *WSAdapter) handleMessage(ctx context.Context, w TickWriter, raw []byte) {
	var frame tradeFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return
	}
	ev := frame.Data
	if ev.EventType != "trade" || ev.Symbol == "" {
		return
	}

	price, err := decimal.NewFromString(ev.Price)
	if err != nil || price.IsNegative() {
		return
	}
	volume, err := decimal.NewFromString(ev.Quantity)
	if err != nil || volume.IsNegative() {
		return
	}

	tick := domain.RawTick{
		Exchange:   a.exchange,
		Source:     domain.SourceStreaming,
		Symbol:     ev.Symbol,
		Price:      price,
		Volume:     volume,
		Timestamp:  time.UnixMilli(ev.TradeTime).UTC(),
		ReceivedAt: time.Now().UTC(),
	}

	if err := w.Write(ctx, tick); err != nil {
		if ctx.Err() == nil {
			a.logger.Warn("tick write failed", slog.String("error", err.Error()))
		}
		return
	}
	a.recordTick()
}

// Compile-time interface check.
var _ Adapter = (*WSAdapter)(nil)
