// kalshi_stream.go implements the single prediction-venue WebSocket feed.
//
// One authenticated socket carries orderbook deltas, public trades, and
// private fills for subscribed market tickers. Every data message carries a
// monotonically increasing sequence number; a gap (received != last+1 while
// last > 0) means deltas were lost and any locally maintained book is
// unreliable until a fresh REST snapshot is fetched. Gap detection lives
// here; the registered callback decides what to refetch.
package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"riskcore/internal/config"
	"riskcore/pkg/types"
)

const (
	deltaBufferSize = 256
	fillBufferSize  = 1024
)

// TokenProvider supplies the current bearer token for the socket handshake.
// The REST client's token rotates on re-login, so the feed asks at dial time.
type TokenProvider func() string

// PredictionFeed manages the prediction venue's WebSocket connection.
type PredictionFeed struct {
	url   string
	token TokenProvider

	conn   *websocket.Conn
	connMu sync.Mutex

	subscribedMu sync.RWMutex
	subscribed   map[string]bool // market tickers

	// last seen sequence number per ticker; guarded by seqMu
	seqMu   sync.Mutex
	lastSeq map[string]int64

	// onGap is invoked with the ticker whose delta stream gapped
	onGap func(ticker string)

	cmdID atomic.Int64

	deltaCh chan types.WSOrderbookDelta
	tradeCh chan types.WSMarketTrade
	fillCh  chan types.WSFill

	logger *slog.Logger
}

// NewPredictionFeed creates the feed. token is called on every (re)connect.
func NewPredictionFeed(cfg config.Config, token TokenProvider, logger *slog.Logger) *PredictionFeed {
	return &PredictionFeed{
		url:        cfg.Prediction.WSURL,
		token:      token,
		subscribed: make(map[string]bool),
		lastSeq:    make(map[string]int64),
		deltaCh:    make(chan types.WSOrderbookDelta, deltaBufferSize),
		tradeCh:    make(chan types.WSMarketTrade, deltaBufferSize),
		fillCh:     make(chan types.WSFill, fillBufferSize),
		logger:     logger.With("component", "ws_prediction"),
	}
}

// OrderbookDeltas returns a read-only channel of orderbook delta events.
func (f *PredictionFeed) OrderbookDeltas() <-chan types.WSOrderbookDelta { return f.deltaCh }

// MarketTrades returns a read-only channel of public trade events.
func (f *PredictionFeed) MarketTrades() <-chan types.WSMarketTrade { return f.tradeCh }

// Fills returns a read-only channel of private fill events.
func (f *PredictionFeed) Fills() <-chan types.WSFill { return f.fillCh }

// OnSequenceGap registers a callback invoked when a ticker's delta stream
// gaps. Must be set before Run.
func (f *PredictionFeed) OnSequenceGap(fn func(ticker string)) {
	f.onGap = fn
}

// Subscribe adds market tickers to the subscription. Tickers are replayed
// on every (re)connect.
func (f *PredictionFeed) Subscribe(tickers []string) error {
	f.subscribedMu.Lock()
	for _, t := range tickers {
		f.subscribed[t] = true
	}
	f.subscribedMu.Unlock()

	return f.sendSubscribe(tickers)
}

// Unsubscribe removes tickers from the subscription and clears their
// sequence tracking.
func (f *PredictionFeed) Unsubscribe(tickers []string) error {
	f.subscribedMu.Lock()
	for _, t := range tickers {
		delete(f.subscribed, t)
	}
	f.subscribedMu.Unlock()

	f.seqMu.Lock()
	for _, t := range tickers {
		delete(f.lastSeq, t)
	}
	f.seqMu.Unlock()

	return f.writeJSON(map[string]any{
		"id":  f.cmdID.Add(1),
		"cmd": "unsubscribe",
		"params": map[string]any{
			"channels":       []string{"orderbook_delta", "trade", "fill"},
			"market_tickers": tickers,
		},
	})
}

func (f *PredictionFeed) sendSubscribe(tickers []string) error {
	if len(tickers) == 0 {
		return nil
	}
	return f.writeJSON(map[string]any{
		"id":  f.cmdID.Add(1),
		"cmd": "subscribe",
		"params": map[string]any{
			"channels":       []string{"orderbook_delta", "trade", "fill"},
			"market_tickers": tickers,
		},
	})
}

// Run connects and maintains the feed with auto-reconnect (1s → 60s backoff,
// reset after successful auth). Blocks until ctx is cancelled.
func (f *PredictionFeed) Run(ctx context.Context) error {
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
func (f *PredictionFeed) Close() error {
	f.connMu.Lock()
	defer f.connMu.Unlock()
	if f.conn != nil {
		return f.conn.Close()
	}
	return nil
}

func (f *PredictionFeed) connectAndRead(ctx context.Context) (bool, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+f.token())

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.url, header)
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

	// Sequence numbers restart on a fresh connection; stale tracking would
	// report phantom gaps.
	f.seqMu.Lock()
	f.lastSeq = make(map[string]int64)
	f.seqMu.Unlock()

	f.subscribedMu.RLock()
	tickers := make([]string, 0, len(f.subscribed))
	for t := range f.subscribed {
		tickers = append(tickers, t)
	}
	f.subscribedMu.RUnlock()

	if err := f.sendSubscribe(tickers); err != nil {
		return false, fmt.Errorf("subscribe: %w", err)
	}

	f.logger.Info("websocket connected", "tickers", len(tickers))

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

// checkSeq updates sequence tracking for a ticker and fires the gap callback
// when continuity breaks. The first message after (re)connect establishes
// the baseline without a gap.
func (f *PredictionFeed) checkSeq(ticker string, seq int64) {
	f.seqMu.Lock()
	last, seen := f.lastSeq[ticker]
	f.lastSeq[ticker] = seq
	f.seqMu.Unlock()

	if seen && last > 0 && seq != last+1 {
		f.logger.Warn("sequence gap detected",
			"ticker", ticker, "last_seq", last, "received_seq", seq)
		if f.onGap != nil {
			f.onGap(ticker)
		}
	}
}

func (f *PredictionFeed) dispatch(data []byte) {
	var envelope struct {
		Type string          `json:"type"`
		Msg  json.RawMessage `json:"msg"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		f.logger.Debug("ignoring non-json ws message", "data", string(data))
		return
	}

	// The venue nests payloads under "msg" but tags the envelope; fall back
	// to the whole frame when "msg" is absent.
	payload := envelope.Msg
	if len(payload) == 0 {
		payload = data
	}

	switch envelope.Type {
	case "orderbook_delta":
		var evt types.WSOrderbookDelta
		if err := json.Unmarshal(payload, &evt); err != nil {
			f.logger.Error("unmarshal orderbook delta", "error", err)
			return
		}
		f.checkSeq(evt.Ticker, evt.Seq)
		select {
		case f.deltaCh <- evt:
		default:
			f.logger.Warn("delta channel full, dropping event", "ticker", evt.Ticker)
		}

	case "trade":
		var evt types.WSMarketTrade
		if err := json.Unmarshal(payload, &evt); err != nil {
			f.logger.Error("unmarshal market trade", "error", err)
			return
		}
		select {
		case f.tradeCh <- evt:
		default:
			f.logger.Warn("trade channel full, dropping event", "ticker", evt.Ticker)
		}

	case "fill":
		var evt types.WSFill
		if err := json.Unmarshal(payload, &evt); err != nil {
			f.logger.Error("unmarshal fill", "error", err)
			return
		}
		// A dropped quote is replaced by the next tick; a dropped fill is
		// lost position state. Delivery blocks when the buffer is full.
		f.fillCh <- evt

	case "subscribed":
		f.logger.Debug("subscription confirmed", "data", string(payload))

	case "error":
		f.logger.Error("stream error message", "data", string(payload))

	default:
		f.logger.Debug("unknown ws message type", "type", envelope.Type)
	}
}

func (f *PredictionFeed) pingLoop(ctx context.Context, conn *websocket.Conn) {
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

func (f *PredictionFeed) writeJSON(v any) error {
	f.connMu.Lock()
	defer f.connMu.Unlock()
	if f.conn == nil {
		return fmt.Errorf("websocket not connected")
	}
	f.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return f.conn.WriteJSON(v)
}
