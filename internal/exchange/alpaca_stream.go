// alpaca_stream.go implements the two equities WebSocket feeds.
//
// Two independent sockets run concurrently:
//
//   - Market data feed: authenticates with the API key pair, subscribes per
//     symbol to quotes, trades, and minute bars. Messages arrive as JSON
//     arrays of objects tagged by "T" ("q" quote, "t" trade, "b" bar).
//
//   - Trading feed: authenticates the same way, then listens to the
//     trade_updates stream for order lifecycle events (new, fill,
//     partial_fill, canceled, rejected).
//
// Both feeds auto-reconnect with exponential backoff (1s → 60s max),
// resetting the backoff after a successful authentication, and replay all
// tracked subscriptions on reconnect. A read deadline detects silent server
// failures within ~2 missed pings.
package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"riskcore/internal/config"
	"riskcore/pkg/types"
)

const (
	wsPingInterval   = 30 * time.Second
	wsReadTimeout    = 90 * time.Second
	wsWriteTimeout   = 10 * time.Second
	wsAuthTimeout    = 10 * time.Second
	maxBackoff       = 60 * time.Second
	quoteBufferSize  = 256
	tradeBufferSize  = 256
	barBufferSize    = 64
	updateBufferSize = 64
)

// EquitiesMarketFeed streams quotes, trades, and bars for subscribed symbols.
type EquitiesMarketFeed struct {
	url       string
	apiKey    string
	apiSecret string
	feed      string // "iex" or "sip"

	conn   *websocket.Conn
	connMu sync.Mutex

	subscribedMu sync.RWMutex
	subscribed   map[string]bool

	quoteCh chan types.WSQuote
	tradeCh chan types.WSTrade
	barCh   chan types.WSBar

	logger *slog.Logger
}

// NewEquitiesMarketFeed creates the market-data feed. Call Subscribe for the
// symbols of interest, then Run.
func NewEquitiesMarketFeed(cfg config.Config, logger *slog.Logger) *EquitiesMarketFeed {
	return &EquitiesMarketFeed{
		url:        cfg.Equities.StreamURL,
		apiKey:     cfg.Equities.APIKey,
		apiSecret:  cfg.Equities.APISecret,
		feed:       cfg.Equities.DataFeed,
		subscribed: make(map[string]bool),
		quoteCh:    make(chan types.WSQuote, quoteBufferSize),
		tradeCh:    make(chan types.WSTrade, tradeBufferSize),
		barCh:      make(chan types.WSBar, barBufferSize),
		logger:     logger.With("component", "ws_equities_data"),
	}
}

// Quotes returns a read-only channel of top-of-book quote events.
func (f *EquitiesMarketFeed) Quotes() <-chan types.WSQuote { return f.quoteCh }

// Trades returns a read-only channel of tape prints.
func (f *EquitiesMarketFeed) Trades() <-chan types.WSTrade { return f.tradeCh }

// Bars returns a read-only channel of minute bars.
func (f *EquitiesMarketFeed) Bars() <-chan types.WSBar { return f.barCh }

// Subscribe adds symbols to the quote/trade/bar subscription. Safe to call
// before Run; symbols are replayed on every (re)connect.
func (f *EquitiesMarketFeed) Subscribe(symbols []string) error {
	f.subscribedMu.Lock()
	for _, s := range symbols {
		f.subscribed[s] = true
	}
	f.subscribedMu.Unlock()

	return f.writeJSON(map[string]any{
		"action": "subscribe",
		"quotes": symbols,
		"trades": symbols,
		"bars":   symbols,
	})
}

// Unsubscribe removes symbols from the subscription.
func (f *EquitiesMarketFeed) Unsubscribe(symbols []string) error {
	f.subscribedMu.Lock()
	for _, s := range symbols {
		delete(f.subscribed, s)
	}
	f.subscribedMu.Unlock()

	return f.writeJSON(map[string]any{
		"action": "unsubscribe",
		"quotes": symbols,
		"trades": symbols,
		"bars":   symbols,
	})
}

// Run connects and maintains the feed with auto-reconnect. Blocks until ctx
// is cancelled.
func (f *EquitiesMarketFeed) Run(ctx context.Context) error {
	backoff := time.Second

	for {
		authed, err := f.connectAndRead(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if authed {
			backoff = time.Second
		}

		f.logger.Warn("websocket disconnected, reconnecting", "error", err, "backoff", backoff)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// Close gracefully closes the connection.
func (f *EquitiesMarketFeed) Close() error {
	f.connMu.Lock()
	defer f.connMu.Unlock()
	if f.conn != nil {
		return f.conn.Close()
	}
	return nil
}

// connectAndRead dials, authenticates, replays subscriptions, and reads
// until the connection drops. The bool reports whether the server confirmed
// the auth, so Run can reset its backoff; bad credentials keep it doubling.
func (f *EquitiesMarketFeed) connectAndRead(ctx context.Context) (bool, error) {
	url := f.url
	if f.feed != "" {
		url += "/" + f.feed
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return false, fmt.Errorf("dial: %w", err)
	}

	f.connMu.Lock()
	f.conn = conn
	f.connMu.Unlock()

	defer func() {
		f.connMu.Lock()
		conn.Close()
		f.conn = nil
		f.connMu.Unlock()
	}()

	if err := f.writeJSON(map[string]string{
		"action": "auth",
		"key":    f.apiKey,
		"secret": f.apiSecret,
	}); err != nil {
		return false, fmt.Errorf("auth: %w", err)
	}
	if err := f.awaitAuth(conn); err != nil {
		return false, fmt.Errorf("auth: %w", err)
	}

	f.subscribedMu.RLock()
	symbols := make([]string, 0, len(f.subscribed))
	for s := range f.subscribed {
		symbols = append(symbols, s)
	}
	f.subscribedMu.RUnlock()

	if len(symbols) > 0 {
		if err := f.writeJSON(map[string]any{
			"action": "subscribe",
			"quotes": symbols,
			"trades": symbols,
			"bars":   symbols,
		}); err != nil {
			return false, fmt.Errorf("subscribe: %w", err)
		}
	}

	f.logger.Info("websocket connected", "symbols", len(symbols))

	pingCtx, pingCancel := context.WithCancel(ctx)
	defer pingCancel()
	go f.pingLoop(pingCtx, conn)

	for {
		if ctx.Err() != nil {
			return true, ctx.Err()
		}

		conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return true, fmt.Errorf("read: %w", err)
		}

		f.dispatch(msg)
	}
}

// awaitAuth consumes control frames until the server acknowledges the auth
// request. Subscribing before the acknowledgment gets rejected, and resetting
// the backoff on an unconfirmed connection would hammer the server at the
// minimum interval for as long as the credentials stay bad.
func (f *EquitiesMarketFeed) awaitAuth(conn *websocket.Conn) error {
	deadline := time.Now().Add(wsAuthTimeout)
	for time.Now().Before(deadline) {
		conn.SetReadDeadline(deadline)
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read auth reply: %w", err)
		}

		var frames []struct {
			Type string `json:"T"`
			Msg  string `json:"msg"`
		}
		if err := json.Unmarshal(msg, &frames); err != nil {
			continue
		}
		for _, fr := range frames {
			switch {
			case fr.Type == "success" && fr.Msg == "authenticated":
				return nil
			case fr.Type == "error":
				return fmt.Errorf("rejected: %s", fr.Msg)
			}
		}
		// "connected" and other control frames keep the wait going.
	}
	return fmt.Errorf("no confirmation within %s", wsAuthTimeout)
}

// dispatch routes one frame. Frames are JSON arrays of tagged objects.
func (f *EquitiesMarketFeed) dispatch(data []byte) {
	var envelopes []json.RawMessage
	if err := json.Unmarshal(data, &envelopes); err != nil {
		f.logger.Debug("ignoring non-array ws message", "data", string(data))
		return
	}

	for _, raw := range envelopes {
		var tag struct {
			Type string `json:"T"`
		}
		if err := json.Unmarshal(raw, &tag); err != nil {
			continue
		}

		switch tag.Type {
		case "q":
			var evt types.WSQuote
			if err := json.Unmarshal(raw, &evt); err != nil {
				f.logger.Error("unmarshal quote", "error", err)
				continue
			}
			select {
			case f.quoteCh <- evt:
			default:
				f.logger.Warn("quote channel full, dropping event", "symbol", evt.Symbol)
			}

		case "t":
			var evt types.WSTrade
			if err := json.Unmarshal(raw, &evt); err != nil {
				f.logger.Error("unmarshal trade", "error", err)
				continue
			}
			select {
			case f.tradeCh <- evt:
			default:
				f.logger.Warn("trade channel full, dropping event", "symbol", evt.Symbol)
			}

		case "b":
			var evt types.WSBar
			if err := json.Unmarshal(raw, &evt); err != nil {
				f.logger.Error("unmarshal bar", "error", err)
				continue
			}
			select {
			case f.barCh <- evt:
			default:
				f.logger.Warn("bar channel full, dropping event", "symbol", evt.Symbol)
			}

		case "success", "subscription":
			f.logger.Debug("control message", "data", string(raw))

		case "error":
			f.logger.Error("stream error message", "data", string(raw))

		default:
			f.logger.Debug("unknown ws message type", "type", tag.Type)
		}
	}
}

func (f *EquitiesMarketFeed) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.connMu.Lock()
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			f.connMu.Unlock()
			if err != nil {
				f.logger.Warn("ping failed", "error", err)
				return
			}
		}
	}
}

func (f *EquitiesMarketFeed) writeJSON(v any) error {
	f.connMu.Lock()
	defer f.connMu.Unlock()
	if f.conn == nil {
		return fmt.Errorf("websocket not connected")
	}
	f.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return f.conn.WriteJSON(v)
}

// ————————————————————————————————————————————————————————————————————————
// Trading feed
// ————————————————————————————————————————————————————————————————————————

// EquitiesTradingFeed streams order lifecycle events (trade_updates).
type EquitiesTradingFeed struct {
	url       string
	apiKey    string
	apiSecret string

	conn   *websocket.Conn
	connMu sync.Mutex

	updateCh chan types.WSOrderUpdate

	logger *slog.Logger
}

// NewEquitiesTradingFeed creates the trading-events feed.
func NewEquitiesTradingFeed(cfg config.Config, logger *slog.Logger) *EquitiesTradingFeed {
	return &EquitiesTradingFeed{
		url:       cfg.Equities.TradingStreamURL,
		apiKey:    cfg.Equities.APIKey,
		apiSecret: cfg.Equities.APISecret,
		updateCh:  make(chan types.WSOrderUpdate, updateBufferSize),
		logger:    logger.With("component", "ws_equities_trading"),
	}
}

// OrderUpdates returns a read-only channel of order lifecycle events.
func (f *EquitiesTradingFeed) OrderUpdates() <-chan types.WSOrderUpdate { return f.updateCh }

// Run connects and maintains the feed with auto-reconnect. Blocks until ctx
// is cancelled.
func (f *EquitiesTradingFeed) Run(ctx context.Context) error {
	backoff := time.Second

	for {
		authed, err := f.connectAndRead(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if authed {
			backoff = time.Second
		}

		f.logger.Warn("websocket disconnected, reconnecting", "error", err, "backoff", backoff)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// Close gracefully closes the connection.
func (f *EquitiesTradingFeed) Close() error {
	f.connMu.Lock()
	defer f.connMu.Unlock()
	if f.conn != nil {
		return f.conn.Close()
	}
	return nil
}

func (f *EquitiesTradingFeed) connectAndRead(ctx context.Context) (bool, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return false, fmt.Errorf("dial: %w", err)
	}

	f.connMu.Lock()
	f.conn = conn
	f.connMu.Unlock()

	defer func() {
		f.connMu.Lock()
		conn.Close()
		f.conn = nil
		f.connMu.Unlock()
	}()

	if err := f.writeJSON(map[string]string{
		"action": "auth",
		"key":    f.apiKey,
		"secret": f.apiSecret,
	}); err != nil {
		return false, fmt.Errorf("auth: %w", err)
	}
	if err := f.awaitAuth(conn); err != nil {
		return false, fmt.Errorf("auth: %w", err)
	}

	if err := f.writeJSON(map[string]any{
		"action": "listen",
		"data":   map[string]any{"streams": []string{"trade_updates"}},
	}); err != nil {
		return false, fmt.Errorf("listen: %w", err)
	}

	f.logger.Info("websocket connected")

	pingCtx, pingCancel := context.WithCancel(ctx)
	defer pingCancel()
	go f.pingLoop(pingCtx, conn)

	for {
		if ctx.Err() != nil {
			return true, ctx.Err()
		}

		conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return true, fmt.Errorf("read: %w", err)
		}

		f.dispatch(msg)
	}
}

// awaitAuth consumes envelopes until the server reports the authorization
// outcome. Same contract as the market feed: an unconfirmed auth never
// resets the reconnect backoff.
func (f *EquitiesTradingFeed) awaitAuth(conn *websocket.Conn) error {
	deadline := time.Now().Add(wsAuthTimeout)
	for time.Now().Before(deadline) {
		conn.SetReadDeadline(deadline)
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read auth reply: %w", err)
		}

		var envelope struct {
			Stream string `json:"stream"`
			Data   struct {
				Status string `json:"status"`
			} `json:"data"`
		}
		if err := json.Unmarshal(msg, &envelope); err != nil {
			continue
		}
		if envelope.Stream != "authorization" {
			continue
		}
		if envelope.Data.Status == "authorized" {
			return nil
		}
		return fmt.Errorf("rejected: status %q", envelope.Data.Status)
	}
	return fmt.Errorf("no confirmation within %s", wsAuthTimeout)
}

// dispatch routes one {stream, data} envelope.
func (f *EquitiesTradingFeed) dispatch(data []byte) {
	var envelope struct {
		Stream string          `json:"stream"`
		Data   json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		f.logger.Debug("ignoring non-json ws message", "data", string(data))
		return
	}

	switch envelope.Stream {
	case "trade_updates":
		var evt types.WSOrderUpdate
		if err := json.Unmarshal(envelope.Data, &evt); err != nil {
			f.logger.Error("unmarshal trade update", "error", err)
			return
		}
		select {
		case f.updateCh <- evt:
		default:
			f.logger.Warn("order update channel full, dropping event",
				"event", evt.Event, "order_id", evt.Order.ID)
		}

	case "authorization", "listening":
		f.logger.Debug("control message", "stream", envelope.Stream)

	default:
		f.logger.Debug("unknown ws stream", "stream", envelope.Stream)
	}
}

func (f *EquitiesTradingFeed) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.connMu.Lock()
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			f.connMu.Unlock()
			if err != nil {
				f.logger.Warn("ping failed", "error", err)
				return
			}
		}
	}
}

func (f *EquitiesTradingFeed) writeJSON(v any) error {
	f.connMu.Lock()
	defer f.connMu.Unlock()
	if f.conn == nil {
		return fmt.Errorf("websocket not connected")
	}
	f.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return f.conn.WriteJSON(v)
}
