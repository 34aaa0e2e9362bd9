// Package engine wires the venue clients, market data, risk stack, and
// value strategy into one process.
//
//  1. Scanner polls the prediction venue and ranks candidate markets.
//  2. Each candidate gets a local orderbook mirror fed by the WebSocket.
//     A sequence gap marks the book stale until a REST snapshot refetch.
//  3. The value strategy turns candidates into signals; compliance and the
//     pre-trade pipeline gate every order before it reaches the venue.
//  4. A broadcaster samples account equity on a fixed interval and fans the
//     resulting alerts out on the events bus.
//
// Lifecycle: New() → Start() → [runs until SIGINT] → Stop()
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"riskcore/internal/config"
	"riskcore/internal/events"
	"riskcore/internal/exchange"
	"riskcore/internal/journal"
	"riskcore/internal/market"
	"riskcore/internal/monitor"
	"riskcore/internal/risk"
	"riskcore/internal/strategy"
	"riskcore/internal/thesis"
	"riskcore/pkg/types"
)

const (
	broadcastInterval      = 5 * time.Second
	settlementPollInterval = time.Minute
	snapshotDepth          = 50
	complianceDepthLevels  = 5
	loginTimeout           = 15 * time.Second
)

// Engine orchestrates every component of the trading core. It owns the
// lifecycle of all background goroutines.
type Engine struct {
	cfg config.Config

	equities *exchange.EquitiesClient
	mktFeed  *exchange.EquitiesMarketFeed
	trdFeed  *exchange.EquitiesTradingFeed

	prediction *exchange.PredictionClient
	predFeed   *exchange.PredictionFeed

	scanner  *market.Scanner
	strategy *strategy.ValueStrategy
	riskMgr  *risk.Manager
	theses   *thesis.Tracker
	journal  *journal.Journal
	monitor  *monitor.Monitor
	bus      *events.Bus

	// books and candidates track the current scan set, keyed by ticker.
	mu         sync.RWMutex
	books      map[string]*market.Book
	candidates map[string]types.PredictionMarket

	// equity is the last sampled account equity, read by the scan loop
	// as the strategy bankroll.
	equityMu sync.RWMutex
	equity   decimal.Decimal

	// settled tracks tickers whose settlement has already been routed.
	settled map[string]bool

	// eqSymbols is the equities market-data subscription set, kept in
	// sync with held positions by the broadcaster.
	eqSymbols map[string]bool

	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates and wires all engine components. The model provides outcome
// probabilities for scanned markets; the engine never trades a market the
// model declines to price.
func New(cfg config.Config, model strategy.ModelProvider, logger *slog.Logger) (*Engine, error) {
	equities := exchange.NewEquitiesClient(cfg, logger)
	mktFeed := exchange.NewEquitiesMarketFeed(cfg, logger)
	trdFeed := exchange.NewEquitiesTradingFeed(cfg, logger)

	prediction := exchange.NewPredictionClient(cfg, logger)
	predFeed := exchange.NewPredictionFeed(cfg, prediction.Token, logger)

	theses, err := thesis.NewTracker(cfg.Thesis, logger)
	if err != nil {
		return nil, fmt.Errorf("open thesis tracker: %w", err)
	}

	jrnl, err := journal.New(cfg.Journal, logger)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}

	riskMgr := risk.NewManager(cfg, logger)
	val := strategy.NewValueStrategy(cfg.Strategy, cfg.Thesis.FeeCents, theses, model, logger)
	scanner := market.NewScanner(prediction, cfg.Scanner, logger)

	mon := monitor.New(cfg.Monitor, logger)
	probe := resty.New().SetTimeout(10 * time.Second)
	mon.Register("equities", monitor.HTTPCheck(probe, cfg.Equities.BaseURL+"/v2/clock"))
	mon.Register("prediction", monitor.HTTPCheck(probe, cfg.Prediction.BaseURL+"/exchange/status"))

	ctx, cancel := context.WithCancel(context.Background())

	e := &Engine{
		cfg:        cfg,
		equities:   equities,
		mktFeed:    mktFeed,
		trdFeed:    trdFeed,
		prediction: prediction,
		predFeed:   predFeed,
		scanner:    scanner,
		strategy:   val,
		riskMgr:    riskMgr,
		theses:     theses,
		journal:    jrnl,
		monitor:    mon,
		bus:        events.NewBus(logger),
		books:      make(map[string]*market.Book),
		candidates: make(map[string]types.PredictionMarket),
		settled:    make(map[string]bool),
		eqSymbols:  make(map[string]bool),
		logger:     logger.With("component", "engine"),
		ctx:        ctx,
		cancel:     cancel,
	}

	predFeed.OnSequenceGap(e.onSequenceGap)

	riskMgr.Approval().OnQueued(func(req types.ApprovalRequest) {
		e.bus.ApprovalNeeded(req)
		e.journal.Record(journal.EventOrderPendingApproval, req.Intent.Symbol, map[string]any{
			"approval_id": req.ID,
			"reason":      req.Reason,
			"expires_at":  req.ExpiresAt,
		})
	})
	riskMgr.Approval().OnResolved(func(req types.ApprovalRequest) {
		e.bus.ApprovalResolved(req)
	})
	riskMgr.Protector().OnLevelChange(e.onDrawdownLevelChange)

	return e, nil
}

// Bus returns the engine's event bus for external subscribers.
func (e *Engine) Bus() *events.Bus { return e.bus }

// Risk returns the risk manager, for operator controls.
func (e *Engine) Risk() *risk.Manager { return e.riskMgr }

// Monitor returns the venue health monitor.
func (e *Engine) Monitor() *monitor.Monitor { return e.monitor }

// Theses returns the thesis tracker.
func (e *Engine) Theses() *thesis.Tracker { return e.theses }

// Journal returns the trade journal.
func (e *Engine) Journal() *journal.Journal { return e.journal }

// Equity returns the last sampled account equity.
func (e *Engine) Equity() decimal.Decimal {
	e.equityMu.RLock()
	defer e.equityMu.RUnlock()
	return e.equity
}

func (e *Engine) setEquity(eq decimal.Decimal) {
	e.equityMu.Lock()
	e.equity = eq
	e.equityMu.Unlock()
}

// Start logs in to the prediction venue, seeds the equity sample, and
// launches all background goroutines.
func (e *Engine) Start() error {
	loginCtx, loginCancel := context.WithTimeout(e.ctx, loginTimeout)
	defer loginCancel()
	if err := e.prediction.Login(loginCtx); err != nil {
		return fmt.Errorf("prediction login: %w", err)
	}

	if acct, err := e.equities.GetAccount(loginCtx); err != nil {
		e.logger.Warn("initial account fetch failed", "error", err)
	} else {
		e.setEquity(acct.Equity)
		e.riskMgr.UpdateEquity(acct.Equity)
	}

	e.run("equities_market_feed", func() {
		if err := e.mktFeed.Run(e.ctx); err != nil && e.ctx.Err() == nil {
			e.logger.Error("equities market feed stopped", "error", err)
		}
	})
	e.run("equities_trading_feed", func() {
		if err := e.trdFeed.Run(e.ctx); err != nil && e.ctx.Err() == nil {
			e.logger.Error("equities trading feed stopped", "error", err)
		}
	})
	e.run("prediction_feed", func() {
		if err := e.predFeed.Run(e.ctx); err != nil && e.ctx.Err() == nil {
			e.logger.Error("prediction feed stopped", "error", err)
		}
	})

	e.run("scanner", func() { e.scanner.Run(e.ctx) })
	e.run("monitor", func() { e.monitor.Run(e.ctx) })
	e.run("approval_sweeper", func() { e.riskMgr.Approval().Run(e.ctx) })
	e.run("thesis_cleanup", func() { e.theses.Run(e.ctx) })

	e.run("scan_loop", e.scanLoop)
	e.run("prediction_events", e.predictionEvents)
	e.run("equities_events", e.equitiesEvents)
	e.run("order_updates", e.orderUpdates)
	e.run("broadcaster", e.broadcaster)
	e.run("settlements", e.settlementLoop)

	e.journal.Note("engine started")
	return nil
}

// Stop cancels all goroutines, waits for them, and closes the feeds.
func (e *Engine) Stop() {
	e.logger.Info("shutting down")
	e.cancel()
	e.wg.Wait()

	if err := e.mktFeed.Close(); err != nil {
		e.logger.Warn("close market feed", "error", err)
	}
	if err := e.trdFeed.Close(); err != nil {
		e.logger.Warn("close trading feed", "error", err)
	}
	if err := e.predFeed.Close(); err != nil {
		e.logger.Warn("close prediction feed", "error", err)
	}

	e.journal.Note("engine stopped")
	e.logger.Info("shutdown complete")
}

func (e *Engine) run(name string, fn func()) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				e.logger.Error("goroutine panicked", "name", name, "panic", r)
			}
		}()
		fn()
	}()
}

// ————————————————————————————————————————————————————————————————————————
// Scan loop: candidate reconciliation and signal evaluation
// ————————————————————————————————————————————————————————————————————————

func (e *Engine) scanLoop() {
	for {
		select {
		case <-e.ctx.Done():
			return
		case result := <-e.scanner.Results():
			e.reconcileCandidates(result)
			e.evaluateCandidates()
		}
	}
}

// reconcileCandidates diffs the scan set against tracked markets: new
// tickers get a book, a feed subscription, and a snapshot; dropped tickers
// are unsubscribed unless a live thesis still needs their book.
func (e *Engine) reconcileCandidates(result market.ScanResult) {
	desired := make(map[string]types.PredictionMarket, len(result.Markets))
	for _, m := range result.Markets {
		desired[m.Ticker] = m
	}

	var added, removed []string

	e.mu.Lock()
	for ticker := range e.candidates {
		if _, ok := desired[ticker]; ok {
			continue
		}
		if _, live := e.theses.ActiveForMarket(ticker); live {
			continue // keep the book while a position rides on it
		}
		delete(e.candidates, ticker)
		delete(e.books, ticker)
		removed = append(removed, ticker)
	}
	for ticker, m := range desired {
		if _, ok := e.candidates[ticker]; !ok {
			e.books[ticker] = market.NewBook(ticker)
			added = append(added, ticker)
		}
		e.candidates[ticker] = m
	}
	e.mu.Unlock()

	if len(removed) > 0 {
		if err := e.predFeed.Unsubscribe(removed); err != nil {
			e.logger.Warn("unsubscribe failed", "tickers", removed, "error", err)
		}
	}
	if len(added) > 0 {
		if err := e.predFeed.Subscribe(added); err != nil {
			e.logger.Warn("subscribe failed", "tickers", added, "error", err)
		}
		for _, ticker := range added {
			e.refreshSnapshot(ticker)
		}
	}

	e.logger.Info("candidates reconciled",
		"tracked", len(desired), "added", len(added), "removed", len(removed))
}

// evaluateCandidates runs one strategy pass over the tracked set: first
// invalidation checks on live theses, then entry evaluation.
func (e *Engine) evaluateCandidates() {
	e.mu.RLock()
	markets := make([]types.PredictionMarket, 0, len(e.candidates))
	for _, m := range e.candidates {
		markets = append(markets, m)
	}
	e.mu.RUnlock()

	bankroll := e.Equity()

	for _, m := range markets {
		book := e.book(m.Ticker)
		if book == nil {
			continue
		}

		if th, ok := e.theses.ActiveForMarket(m.Ticker); ok {
			if reason, invalid := e.strategy.ShouldInvalidate(th, m, book); invalid {
				e.invalidateThesis(th, reason)
			}
			continue // one thesis per market; no re-entry while one is live
		}

		sig := e.strategy.Evaluate(m, book, bankroll)
		if sig == nil {
			continue
		}
		e.executeSignal(m, book, *sig)
	}
}

func (e *Engine) book(ticker string) *market.Book {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.books[ticker]
}

// invalidateThesis terminates the thesis and cancels its resting orders.
func (e *Engine) invalidateThesis(th thesis.Thesis, reason string) {
	if err := e.theses.Invalidate(th.ID, reason); err != nil {
		e.logger.Warn("invalidate failed", "thesis", th.ID, "error", err)
		return
	}
	e.journal.TradeDecision(th.Ticker, "invalidate", reason, map[string]any{
		"thesis_id": th.ID,
	})

	orders, err := e.prediction.GetOrders(e.ctx, th.Ticker, "resting")
	if err != nil {
		e.logger.Warn("list resting orders failed", "ticker", th.Ticker, "error", err)
		return
	}
	ids := make([]string, 0, len(orders))
	for _, o := range orders {
		ids = append(ids, o.OrderID)
	}
	if len(ids) > 0 {
		if err := e.prediction.BatchCancelOrders(e.ctx, ids); err != nil {
			e.logger.Error("cancel resting orders failed", "ticker", th.Ticker, "error", err)
		}
	}
}

// executeSignal gates a signal through kill switch, compliance, and the
// approval threshold, then places the order.
func (e *Engine) executeSignal(m types.PredictionMarket, book *market.Book, sig strategy.Signal) {
	if e.riskMgr.KillSwitchActive() {
		e.journal.TradeDecision(sig.Ticker, "skip", "kill switch active", nil)
		return
	}

	order := types.PredictionOrder{
		Ticker:        sig.Ticker,
		Side:          sig.Side,
		Action:        types.Buy,
		Count:         sig.Count,
		ClientOrderID: uuid.NewString(),
	}
	if sig.Side == types.Yes {
		order.YesPrice = sig.PriceCents
	} else {
		order.NoPrice = sig.PriceCents
	}

	check := e.riskMgr.Compliance().CheckOrder(
		order, m, e.predictionPositions(), e.Equity(), e.bookDepth(book, sig.Side))
	if !check.Allowed {
		e.journal.Record(journal.EventRiskCheckFailed, sig.Ticker, map[string]any{
			"reason": check.Reason,
			"side":   string(sig.Side),
			"count":  sig.Count,
		})
		return
	}

	e.journal.Record(journal.EventTradeDecision, sig.Ticker, map[string]any{
		"action":     "enter",
		"side":       string(sig.Side),
		"price":      sig.PriceCents,
		"count":      sig.Count,
		"edge":       sig.Edge,
		"kelly":      sig.Kelly,
		"confidence": sig.Confidence,
		"thesis_id":  sig.ThesisID,
	})

	notional := order.NotionalDollars()
	threshold := decimal.NewFromFloat(e.cfg.Risk.ApprovalNotionalThreshold)
	if threshold.Sign() > 0 && notional.GreaterThan(threshold) {
		e.queueForApproval(order, sig, notional)
		return
	}

	e.placeOrder(order, sig)
}

// queueForApproval parks the order with the human-in-the-loop workflow and
// places it from a background waiter if approved.
func (e *Engine) queueForApproval(order types.PredictionOrder, sig strategy.Signal, notional decimal.Decimal) {
	limit := decimal.New(int64(sig.PriceCents), -2)
	intent := types.OrderIntent{
		Symbol:        order.Ticker,
		Side:          types.Buy,
		Qty:           order.Count,
		Type:          types.Limit,
		TimeInForce:   types.TIFDay,
		LimitPrice:    &limit,
		ClientOrderID: order.ClientOrderID,
	}
	reason := fmt.Sprintf("notional %s above approval threshold", notional.StringFixed(2))
	req := e.riskMgr.Approval().Queue(intent, reason, types.RiskDecision{
		Action: types.ActionRequireApproval,
	})

	e.run("approval_wait_"+req.ID, func() {
		status, err := e.riskMgr.Approval().WaitForApproval(e.ctx, req.ID, e.cfg.Approval.Timeout)
		if err != nil {
			return
		}
		if status != types.ApprovalApproved {
			e.journal.Record(journal.EventOrderCanceled, order.Ticker, map[string]any{
				"approval_id": req.ID,
				"status":      string(status),
			})
			return
		}
		e.placeOrder(order, sig)
	})
}

// placeOrder submits to the venue (or journals a dry run) and links the
// order to its thesis.
func (e *Engine) placeOrder(order types.PredictionOrder, sig strategy.Signal) {
	if e.cfg.DryRun {
		e.journal.Record(journal.EventOrderDryRun, order.Ticker, map[string]any{
			"side":      string(order.Side),
			"price":     order.Price(),
			"count":     order.Count,
			"thesis_id": sig.ThesisID,
		})
		return
	}

	result, err := e.prediction.CreateOrder(e.ctx, order)
	if err != nil {
		e.journal.Record(journal.EventOrderRejected, order.Ticker, map[string]any{
			"error": err.Error(),
		})
		e.riskMgr.Engine().RecordReject()
		e.logger.Error("order rejected", "ticker", order.Ticker, "error", err)
		return
	}

	if err := e.theses.LinkOrder(sig.ThesisID, result.OrderID); err != nil {
		e.logger.Warn("link order failed", "thesis", sig.ThesisID, "error", err)
	}
	e.journal.Record(journal.EventOrderSubmitted, order.Ticker, map[string]any{
		"order_id":  result.OrderID,
		"status":    result.Status,
		"side":      string(order.Side),
		"price":     order.Price(),
		"count":     order.Count,
		"thesis_id": sig.ThesisID,
	})
	e.logger.Info("order placed",
		"ticker", order.Ticker, "side", order.Side,
		"price", order.Price(), "count", order.Count, "order_id", result.OrderID)
}

// bookDepth returns resting contracts near the touch on the order's side,
// or -1 when the book can't say.
func (e *Engine) bookDepth(book *market.Book, side types.ContractSide) int {
	if book == nil || book.Stale() || side != types.Yes {
		return -1
	}
	depth := 0
	for _, lvl := range book.Depth(complianceDepthLevels) {
		depth += lvl[1]
	}
	return depth
}

func (e *Engine) predictionPositions() []types.PredictionPosition {
	positions, err := e.prediction.GetPositions(e.ctx)
	if err != nil {
		e.logger.Warn("fetch prediction positions failed", "error", err)
		return nil
	}
	return positions
}

// ————————————————————————————————————————————————————————————————————————
// Stream dispatch
// ————————————————————————————————————————————————————————————————————————

func (e *Engine) predictionEvents() {
	for {
		select {
		case <-e.ctx.Done():
			return
		case d := <-e.predFeed.OrderbookDeltas():
			if book := e.book(d.Ticker); book != nil {
				book.ApplyDelta(d)
			}
		case t := <-e.predFeed.MarketTrades():
			e.mu.Lock()
			if m, ok := e.candidates[t.Ticker]; ok {
				m.LastPrice = t.Price
				e.candidates[t.Ticker] = m
			}
			e.mu.Unlock()
		case f := <-e.predFeed.Fills():
			e.handleFill(f)
		}
	}
}

func (e *Engine) handleFill(f types.WSFill) {
	fill := types.Fill{
		OrderID: f.OrderID,
		Ticker:  f.Ticker,
		Side:    f.Side,
		Action:  f.Action,
		Count:   f.Count,
		Price:   f.Price,
		IsTaker: f.IsTaker,
	}
	e.strategy.OnFill(fill)

	notional := decimal.New(f.Count*int64(f.Price), -2)
	e.riskMgr.Engine().RecordFill(f.Action, notional, decimal.Zero)
	e.journal.Record(journal.EventOrderFilled, f.Ticker, map[string]any{
		"order_id": f.OrderID,
		"side":     string(f.Side),
		"count":    f.Count,
		"price":    f.Price,
	})
	e.logger.Info("fill",
		"ticker", f.Ticker, "side", f.Side, "count", f.Count, "price", f.Price)
}

// equitiesEvents drains the market-data stream. Quotes and prints are
// informational for this core; bars are dropped.
func (e *Engine) equitiesEvents() {
	for {
		select {
		case <-e.ctx.Done():
			return
		case q := <-e.mktFeed.Quotes():
			e.logger.Debug("quote", "symbol", q.Symbol, "bid", q.BidPrice, "ask", q.AskPrice)
		case t := <-e.mktFeed.Trades():
			e.logger.Debug("trade", "symbol", t.Symbol, "price", t.Price, "size", t.Size)
		case <-e.mktFeed.Bars():
		}
	}
}

// orderUpdates routes equities trading-stream events into the journal and
// the circuit breaker.
func (e *Engine) orderUpdates() {
	for {
		select {
		case <-e.ctx.Done():
			return
		case u := <-e.trdFeed.OrderUpdates():
			e.handleOrderUpdate(u)
		}
	}
}

func (e *Engine) handleOrderUpdate(u types.WSOrderUpdate) {
	switch u.Event {
	case "fill", "partial_fill":
		qty, qerr := decimal.NewFromString(u.Qty)
		price, perr := decimal.NewFromString(u.Price)
		if qerr != nil || perr != nil {
			e.logger.Warn("unparseable fill event", "qty", u.Qty, "price", u.Price)
			return
		}
		e.journal.OrderFilled(u.Order.Symbol, u.Order.ID, qty.IntPart(), u.Price)
		e.riskMgr.Engine().RecordFill(u.Order.Side, qty.Mul(price), decimal.Zero)
	case "rejected":
		qty, _ := decimal.NewFromString(u.Order.Qty)
		e.journal.OrderRejected(types.OrderIntent{
			Symbol: u.Order.Symbol,
			Side:   u.Order.Side,
			Qty:    qty.IntPart(),
		}, "venue rejected")
		e.riskMgr.Engine().RecordReject()
	case "canceled":
		e.journal.Record(journal.EventOrderCanceled, u.Order.Symbol, map[string]any{
			"order_id": u.Order.ID,
		})
	}
}

// ————————————————————————————————————————————————————————————————————————
// Sequence-gap recovery
// ————————————————————————————————————————————————————————————————————————

// onSequenceGap marks the book stale and refetches a REST snapshot. Runs
// off the feed's read loop so the refetch can't stall dispatch.
func (e *Engine) onSequenceGap(ticker string) {
	if book := e.book(ticker); book != nil {
		book.MarkStale()
	}
	go e.refreshSnapshot(ticker)
}

func (e *Engine) refreshSnapshot(ticker string) {
	book := e.book(ticker)
	if book == nil {
		return
	}
	ob, err := e.prediction.GetOrderbook(e.ctx, ticker, snapshotDepth)
	if err != nil {
		e.logger.Error("snapshot refetch failed", "ticker", ticker, "error", err)
		return
	}
	book.ApplySnapshot(ob)
	e.logger.Info("orderbook snapshot applied", "ticker", ticker)
}

// ————————————————————————————————————————————————————————————————————————
// Broadcaster: periodic equity sampling and alert fan-out
// ————————————————————————————————————————————————————————————————————————

func (e *Engine) broadcaster() {
	ticker := time.NewTicker(broadcastInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			e.broadcast()
		}
	}
}

// broadcast samples account state and routes the observations through the
// risk stack, publishing any alerts they trigger.
func (e *Engine) broadcast() {
	acct, err := e.equities.GetAccount(e.ctx)
	if err != nil {
		e.logger.Warn("account sample failed", "error", err)
		return
	}
	e.setEquity(acct.Equity)

	alerts, status := e.riskMgr.UpdateEquity(acct.Equity)
	for _, a := range alerts {
		e.bus.Alert(a)
	}
	if !status.TradingAllowed && !e.riskMgr.KillSwitchActive() {
		e.riskMgr.SetKillSwitch(true)
		e.journal.KillSwitch(true, "drawdown protection: "+status.Level.String())
	}

	positions, err := e.equities.GetPositions(e.ctx)
	if err != nil {
		e.logger.Warn("positions sample failed", "error", err)
		return
	}
	for _, pos := range positions {
		for _, a := range e.riskMgr.PnL().UpdatePosition(pos) {
			e.bus.Alert(a)
		}
	}
	e.syncQuoteSubscriptions(positions)
}

// syncQuoteSubscriptions keeps the equities market-data stream subscribed
// to exactly the symbols currently held.
func (e *Engine) syncQuoteSubscriptions(positions []types.Position) {
	held := make(map[string]bool, len(positions))
	for _, pos := range positions {
		if pos.Qty.Sign() != 0 {
			held[pos.Symbol] = true
		}
	}

	var add, drop []string
	for sym := range held {
		if !e.eqSymbols[sym] {
			add = append(add, sym)
		}
	}
	for sym := range e.eqSymbols {
		if !held[sym] {
			drop = append(drop, sym)
		}
	}
	if len(add) > 0 {
		if err := e.mktFeed.Subscribe(add); err != nil {
			e.logger.Warn("quote subscribe failed", "symbols", add, "error", err)
			return
		}
	}
	if len(drop) > 0 {
		if err := e.mktFeed.Unsubscribe(drop); err != nil {
			e.logger.Warn("quote unsubscribe failed", "symbols", drop, "error", err)
			return
		}
	}
	e.eqSymbols = held
}

// onDrawdownLevelChange publishes the transition and, at WARNING or
// worse, the liquidation plan the new level demands.
func (e *Engine) onDrawdownLevelChange(old, new risk.DrawdownLevel) {
	e.bus.DrawdownLevel(old.String(), new.String())
	e.journal.Record(journal.EventNote, "", map[string]any{
		"text":      "drawdown level change",
		"old_level": old.String(),
		"new_level": new.String(),
	})

	if new < risk.LevelWarning || new <= old {
		return
	}
	go func() {
		positions, err := e.equities.GetPositions(e.ctx)
		if err != nil {
			e.logger.Error("liquidation plan: positions fetch failed", "error", err)
			return
		}
		plan := e.riskMgr.Protector().LiquidationPlan(positions)
		if len(plan) > 0 {
			e.bus.LiquidationRequired(new.String(), plan)
		}
	}()
}

// ————————————————————————————————————————————————————————————————————————
// Settlement polling
// ————————————————————————————————————————————————————————————————————————

func (e *Engine) settlementLoop() {
	ticker := time.NewTicker(settlementPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			e.pollSettlements()
		}
	}
}

// pollSettlements routes newly settled markets into the strategy so their
// theses realize P&L and record outcome correctness.
func (e *Engine) pollSettlements() {
	settlements, err := e.prediction.GetSettlements(e.ctx, 100)
	if err != nil {
		e.logger.Warn("settlements fetch failed", "error", err)
		return
	}
	for _, s := range settlements {
		if e.settled[s.Ticker] {
			continue
		}
		e.settled[s.Ticker] = true
		e.strategy.OnSettle(s.Ticker, s.MarketResult == "yes")
		e.journal.Record(journal.EventNote, s.Ticker, map[string]any{
			"text":    "market settled",
			"result":  s.MarketResult,
			"revenue": s.Revenue,
		})
	}
}
