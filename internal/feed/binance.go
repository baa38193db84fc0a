// Package feed streams reference prices from the Binance combined-stream
// WebSocket endpoint and hands them to the price service.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// reconnectDelay is the pause between reconnect attempts.
const reconnectDelay = 2 * time.Second

// PriceHandler is called for each ticker message.
type PriceHandler func(ctx context.Context, symbol string, price float64, ts time.Time)

// streamWrapper is the combined-stream envelope, e.g.
// {"stream":"btcusdt@miniTicker","data":{...}}.
type streamWrapper struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// miniTicker is the payload of a <symbol>@miniTicker stream.
type miniTicker struct {
	Symbol    string `json:"s"`
	Close     string `json:"c"`
	EventTime int64  `json:"E"` // milliseconds
}

// BinanceFeed connects to the Binance WebSocket, subscribes to the miniTicker
// stream for each configured symbol, and invokes the handler per message. It
// reconnects with a fixed backoff on disconnect.
type BinanceFeed struct {
	wsHost    string
	symbols   []string
	onPrice   PriceHandler
	logger    *slog.Logger
	closeOnce sync.Once
	done      chan struct{}
}

// NewBinanceFeed creates a feed for the given symbols (e.g. "BTCUSDT").
// wsHost is the stream root, e.g. "wss://stream.binance.com:9443".
func NewBinanceFeed(wsHost string, symbols []string, onPrice PriceHandler, logger *slog.Logger) *BinanceFeed {
	return &BinanceFeed{
		wsHost:  strings.TrimRight(wsHost, "/"),
		symbols: symbols,
		onPrice: onPrice,
		logger:  logger.With(slog.String("component", "binance_feed")),
		done:    make(chan struct{}),
	}
}

// Run connects and consumes ticker messages until ctx is cancelled or Close
// is called. Reconnects on disconnect.
func (f *BinanceFeed) Run(ctx context.Context) error {
	if len(f.symbols) == 0 {
		f.logger.Info("no symbols to subscribe, exiting")
		return nil
	}

	url := f.streamURL()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		default:
		}

		err := f.runConnection(ctx, url)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err == nil {
			return nil
		}

		f.logger.Warn("feed disconnected, reconnecting",
			slog.String("error", err.Error()),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		case <-time.After(reconnectDelay):
		}
	}
}

// Close stops the feed. Safe to call more than once.
func (f *BinanceFeed) Close() {
	f.closeOnce.Do(func() {
		close(f.done)
	})
}

// streamURL builds the combined-stream URL, e.g.
// wss://host/stream?streams=btcusdt@miniTicker/ethusdt@miniTicker.
func (f *BinanceFeed) streamURL() string {
	parts := make([]string, 0, len(f.symbols))
	for _, s := range f.symbols {
		parts = append(parts, strings.ToLower(strings.TrimSpace(s))+"@miniTicker")
	}
	return fmt.Sprintf("%s/stream?streams=%s", f.wsHost, strings.Join(parts, "/"))
}

func (f *BinanceFeed) runConnection(ctx context.Context, url string) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("feed: dial %s: %w", url, err)
	}
	defer conn.Close()

	// Unblock ReadMessage when the context is cancelled.
	go func() {
		select {
		case <-ctx.Done():
		case <-f.done:
		}
		_ = conn.Close()
	}()

	f.logger.Info("feed connected", slog.Int("symbols", len(f.symbols)))

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("feed: read: %w", err)
		}

		var wrapper streamWrapper
		if err := json.Unmarshal(msg, &wrapper); err != nil {
			f.logger.Debug("skipping unparseable frame", slog.String("error", err.Error()))
			continue
		}

		var tick miniTicker
		if err := json.Unmarshal(wrapper.Data, &tick); err != nil || tick.Symbol == "" {
			continue
		}

		price, err := strconv.ParseFloat(tick.Close, 64)
		if err != nil {
			continue
		}

		ts := time.UnixMilli(tick.EventTime)
		if tick.EventTime == 0 {
			ts = time.Now()
		}

		if f.onPrice != nil {
			f.onPrice(ctx, tick.Symbol, price, ts)
		}
	}
}
