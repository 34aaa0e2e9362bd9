// Package exchange implements the broker gateway: rate-limited REST clients
// and auto-reconnecting WebSocket streams for the two venues.
//
// The equities client (EquitiesClient) talks to the Alpaca-style trading API:
//   - GetAccount / GetPositions / ClosePosition / CloseAllPositions
//   - SubmitOrder / GetOrder / GetOrderByClientID / ListOrders
//   - CancelOrder / CancelAllOrders / ReplaceOrder
//   - Market data: LatestQuote, LatestTrade, Bars, Snapshot
//   - Options: OptionsContracts, OptionsQuote
//
// Every request is rate-limited through a shared TokenBucket, retried up to
// 3 times with exponential backoff on transport errors, and authenticated
// with two static header fields. Order submission is idempotent: a repeated
// client order id short-circuits to a lookup of the already-created order.
package exchange

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"

	"riskcore/internal/config"
	"riskcore/pkg/types"
)

const maxRESTRetries = 3

// EquitiesClient is the equities broker REST API client.
// It wraps two resty clients (trading host, data host) with rate limiting,
// retry, and an idempotency cache for order submission.
type EquitiesClient struct {
	trading *resty.Client // orders, positions, account
	data    *resty.Client // quotes, trades, bars, options
	rl      *TokenBucket
	dryRun  bool
	logger  *slog.Logger

	// client_order_id → broker order id, for the life of the process.
	// At most one broker order is ever associated with a client key.
	submittedMu sync.Mutex
	submitted   map[string]string
}

// NewEquitiesClient creates an equities REST client.
func NewEquitiesClient(cfg config.Config, logger *slog.Logger) *EquitiesClient {
	headers := map[string]string{
		"APCA-API-KEY-ID":     cfg.Equities.APIKey,
		"APCA-API-SECRET-KEY": cfg.Equities.APISecret,
		"Content-Type":        "application/json",
	}

	newHost := func(base string) *resty.Client {
		return resty.New().
			SetBaseURL(base).
			SetTimeout(10 * time.Second).
			SetHeaders(headers)
	}

	return &EquitiesClient{
		trading:   newHost(cfg.Equities.BaseURL),
		data:      newHost(cfg.Equities.DataURL),
		rl:        NewEquitiesLimiter(cfg.Equities.RateLimitPerMin),
		dryRun:    cfg.DryRun,
		logger:    logger.With("component", "equities"),
		submitted: make(map[string]string),
	}
}

// do executes a prepared request with the venue retry policy:
//   - transport errors and 5xx retry up to 3 times with 2^attempt backoff
//   - 429 sleeps for Retry-After (default 60s) without consuming a retry
//   - 422 is a venue rejection, decoded as OrderError and not retried
func (c *EquitiesClient) do(ctx context.Context, req *resty.Request, method, url string) (*resty.Response, error) {
	if err := c.rl.Wait(ctx); err != nil {
		return nil, err
	}

	for attempt := 0; attempt < maxRESTRetries; {
		resp, err := req.SetContext(ctx).Execute(method, url)
		if err != nil {
			attempt++
			if attempt == maxRESTRetries {
				return nil, fmt.Errorf("%s %s: %w", method, url, err)
			}
			wait := time.Duration(1<<attempt) * time.Second
			c.logger.Warn("request failed, retrying", "url", url, "wait", wait, "error", err)
			if err := sleepCtx(ctx, wait); err != nil {
				return nil, err
			}
			continue
		}

		switch {
		case resp.StatusCode() == http.StatusTooManyRequests:
			wait := retryAfter(resp, 60*time.Second)
			c.logger.Warn("rate limited by venue", "url", url, "retry_after", wait)
			if err := sleepCtx(ctx, wait); err != nil {
				return nil, err
			}
			// 429 does not consume a retry
			continue

		case resp.StatusCode() == http.StatusUnprocessableEntity:
			return nil, decodeOrderError(resp)

		case resp.StatusCode() >= 500:
			attempt++
			if attempt == maxRESTRetries {
				return nil, fmt.Errorf("%s %s: status %d: %s", method, url, resp.StatusCode(), resp.String())
			}
			wait := time.Duration(1<<attempt) * time.Second
			c.logger.Warn("server error, retrying", "url", url, "status", resp.StatusCode(), "wait", wait)
			if err := sleepCtx(ctx, wait); err != nil {
				return nil, err
			}
			continue

		case resp.StatusCode() >= 400:
			return nil, fmt.Errorf("%s %s: status %d: %s", method, url, resp.StatusCode(), resp.String())
		}

		return resp, nil
	}
	return nil, fmt.Errorf("%s %s: max retries exceeded", method, url)
}

// ————————————————————————————————————————————————————————————————————————
// Account and positions
// ————————————————————————————————————————————————————————————————————————

// GetAccount fetches the current account snapshot.
func (c *EquitiesClient) GetAccount(ctx context.Context) (*types.AccountSnapshot, error) {
	var result struct {
		Equity         string `json:"equity"`
		Cash           string `json:"cash"`
		BuyingPower    string `json:"buying_power"`
		PortfolioValue string `json:"portfolio_value"`
		DaytradeCount  int    `json:"daytrade_count"`
		TradingBlocked bool   `json:"trading_blocked"`
	}
	req := c.trading.R().SetResult(&result)
	if _, err := c.do(ctx, req, http.MethodGet, "/v2/account"); err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}

	snap := &types.AccountSnapshot{
		DaytradeCount:  result.DaytradeCount,
		TradingBlocked: result.TradingBlocked,
		Timestamp:      time.Now().UTC(),
	}
	var err error
	if snap.Equity, err = parseDecimal(result.Equity); err != nil {
		return nil, fmt.Errorf("get account: equity: %w", err)
	}
	if snap.Cash, err = parseDecimal(result.Cash); err != nil {
		return nil, fmt.Errorf("get account: cash: %w", err)
	}
	if snap.BuyingPower, err = parseDecimal(result.BuyingPower); err != nil {
		return nil, fmt.Errorf("get account: buying_power: %w", err)
	}
	if snap.PortfolioValue, err = parseDecimal(result.PortfolioValue); err != nil {
		return nil, fmt.Errorf("get account: portfolio_value: %w", err)
	}
	return snap, nil
}

// positionJSON is the wire format for a position; all numerics are strings.
type positionJSON struct {
	Symbol        string `json:"symbol"`
	Qty           string `json:"qty"`
	AvgEntryPrice string `json:"avg_entry_price"`
	CurrentPrice  string `json:"current_price"`
	MarketValue   string `json:"market_value"`
	UnrealizedPL  string `json:"unrealized_pl"`
	CostBasis     string `json:"cost_basis"`
}

func (p positionJSON) toPosition() (types.Position, error) {
	var pos types.Position
	pos.Symbol = p.Symbol
	var err error
	if pos.Qty, err = parseDecimal(p.Qty); err != nil {
		return pos, fmt.Errorf("qty: %w", err)
	}
	if pos.AvgEntryPrice, err = parseDecimal(p.AvgEntryPrice); err != nil {
		return pos, fmt.Errorf("avg_entry_price: %w", err)
	}
	if pos.CurrentPrice, err = parseDecimal(p.CurrentPrice); err != nil {
		return pos, fmt.Errorf("current_price: %w", err)
	}
	if pos.MarketValue, err = parseDecimal(p.MarketValue); err != nil {
		return pos, fmt.Errorf("market_value: %w", err)
	}
	if pos.UnrealizedPnL, err = parseDecimal(p.UnrealizedPL); err != nil {
		return pos, fmt.Errorf("unrealized_pl: %w", err)
	}
	if pos.CostBasis, err = parseDecimal(p.CostBasis); err != nil {
		return pos, fmt.Errorf("cost_basis: %w", err)
	}
	return pos, nil
}

// GetPositions fetches all open positions.
func (c *EquitiesClient) GetPositions(ctx context.Context) ([]types.Position, error) {
	var raw []positionJSON
	req := c.trading.R().SetResult(&raw)
	if _, err := c.do(ctx, req, http.MethodGet, "/v2/positions"); err != nil {
		return nil, fmt.Errorf("get positions: %w", err)
	}

	positions := make([]types.Position, 0, len(raw))
	for _, p := range raw {
		pos, err := p.toPosition()
		if err != nil {
			return nil, fmt.Errorf("get positions: %s: %w", p.Symbol, err)
		}
		positions = append(positions, pos)
	}
	return positions, nil
}

// GetPosition fetches the position for a single symbol.
func (c *EquitiesClient) GetPosition(ctx context.Context, symbol string) (*types.Position, error) {
	var raw positionJSON
	req := c.trading.R().SetResult(&raw)
	if _, err := c.do(ctx, req, http.MethodGet, "/v2/positions/"+symbol); err != nil {
		return nil, fmt.Errorf("get position %s: %w", symbol, err)
	}
	pos, err := raw.toPosition()
	if err != nil {
		return nil, fmt.Errorf("get position %s: %w", symbol, err)
	}
	return &pos, nil
}

// CloseAllPositions liquidates every open position. This is the kill-switch
// path; cancelOrders also cancels all working orders first.
func (c *EquitiesClient) CloseAllPositions(ctx context.Context, cancelOrders bool) ([]types.Order, error) {
	if c.dryRun {
		c.logger.Warn("DRY-RUN: would close all positions", "cancel_orders", cancelOrders)
		return nil, nil
	}

	var result []types.Order
	req := c.trading.R().
		SetQueryParam("cancel_orders", strconv.FormatBool(cancelOrders)).
		SetResult(&result)
	if _, err := c.do(ctx, req, http.MethodDelete, "/v2/positions"); err != nil {
		return nil, fmt.Errorf("close all positions: %w", err)
	}

	c.logger.Warn("all positions closing", "orders", len(result))
	return result, nil
}

// ————————————————————————————————————————————————————————————————————————
// Orders
// ————————————————————————————————————————————————————————————————————————

// SubmitOrder places an order with idempotency support. If the intent's
// ClientOrderID was already submitted this process, the existing broker
// order is fetched instead of creating a duplicate. If the venue reports
// the key as already submitted (e.g. after a crash-retry race), the order
// list is scanned to recover the mapping.
func (c *EquitiesClient) SubmitOrder(ctx context.Context, intent types.OrderIntent) (*types.Order, error) {
	if intent.ClientOrderID == "" {
		intent.ClientOrderID = uuid.NewString()
	}

	c.submittedMu.Lock()
	existing, ok := c.submitted[intent.ClientOrderID]
	c.submittedMu.Unlock()
	if ok {
		c.logger.Info("duplicate submission, returning existing order",
			"client_order_id", intent.ClientOrderID, "order_id", existing)
		return c.GetOrder(ctx, existing)
	}

	if c.dryRun {
		c.logger.Info("DRY-RUN: would submit order",
			"symbol", intent.Symbol, "side", intent.Side, "qty", intent.Qty, "type", intent.Type)
		return &types.Order{
			ID:            "dry-run-" + intent.ClientOrderID,
			ClientOrderID: intent.ClientOrderID,
			Symbol:        intent.Symbol,
			Side:          intent.Side,
			Type:          intent.Type,
			Qty:           strconv.FormatInt(intent.Qty, 10),
			Status:        "accepted",
		}, nil
	}

	body := buildOrderBody(intent)
	var result types.Order
	req := c.trading.R().SetBody(body).SetResult(&result)
	_, err := c.do(ctx, req, http.MethodPost, "/v2/orders")
	if err != nil {
		if oe, ok := AsOrderError(err); ok && strings.Contains(strings.ToLower(oe.Message), "already submitted") {
			return c.recoverSubmitted(ctx, intent.ClientOrderID)
		}
		return nil, fmt.Errorf("submit order: %w", err)
	}

	c.submittedMu.Lock()
	c.submitted[intent.ClientOrderID] = result.ID
	c.submittedMu.Unlock()

	c.logger.Info("order submitted",
		"symbol", intent.Symbol, "side", intent.Side, "qty", intent.Qty,
		"order_id", result.ID, "client_order_id", intent.ClientOrderID)
	return &result, nil
}

// recoverSubmitted locates an order the venue says already exists for the
// given client key, and caches the mapping.
func (c *EquitiesClient) recoverSubmitted(ctx context.Context, clientOrderID string) (*types.Order, error) {
	orders, err := c.ListOrders(ctx, ListOrdersParams{Status: "all", Limit: 100})
	if err != nil {
		return nil, fmt.Errorf("recover submitted order: %w", err)
	}
	for i := range orders {
		if orders[i].ClientOrderID == clientOrderID {
			c.submittedMu.Lock()
			c.submitted[clientOrderID] = orders[i].ID
			c.submittedMu.Unlock()
			return &orders[i], nil
		}
	}
	return nil, fmt.Errorf("recover submitted order: client_order_id %s not found", clientOrderID)
}

// buildOrderBody converts an OrderIntent into the venue request body.
// Numeric fields travel as strings to preserve decimal precision.
func buildOrderBody(intent types.OrderIntent) map[string]any {
	body := map[string]any{
		"symbol":          intent.Symbol,
		"qty":             strconv.FormatInt(intent.Qty, 10),
		"side":            string(intent.Side),
		"type":            string(intent.Type),
		"time_in_force":   string(intent.TimeInForce),
		"client_order_id": intent.ClientOrderID,
	}
	if intent.LimitPrice != nil {
		body["limit_price"] = intent.LimitPrice.String()
	}
	if intent.StopPrice != nil {
		body["stop_price"] = intent.StopPrice.String()
	}
	if intent.TrailPercent != nil {
		body["trail_percent"] = intent.TrailPercent.String()
	}
	if intent.TrailPrice != nil {
		body["trail_price"] = intent.TrailPrice.String()
	}
	if intent.ExtendedHours {
		body["extended_hours"] = true
	}
	if intent.OrderClass != "" {
		body["order_class"] = intent.OrderClass
	}
	if intent.TakeProfit != nil {
		body["take_profit"] = bracketBody(intent.TakeProfit)
	}
	if intent.StopLoss != nil {
		body["stop_loss"] = bracketBody(intent.StopLoss)
	}
	return body
}

func bracketBody(leg *types.BracketLeg) map[string]string {
	m := make(map[string]string, 2)
	if leg.LimitPrice != nil {
		m["limit_price"] = leg.LimitPrice.String()
	}
	if leg.StopPrice != nil {
		m["stop_price"] = leg.StopPrice.String()
	}
	return m
}

// GetOrder fetches an order by broker id.
func (c *EquitiesClient) GetOrder(ctx context.Context, orderID string) (*types.Order, error) {
	var result types.Order
	req := c.trading.R().SetResult(&result)
	if _, err := c.do(ctx, req, http.MethodGet, "/v2/orders/"+orderID); err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	return &result, nil
}

// GetOrderByClientID fetches an order by its client order id.
func (c *EquitiesClient) GetOrderByClientID(ctx context.Context, clientOrderID string) (*types.Order, error) {
	var result types.Order
	req := c.trading.R().
		SetQueryParam("client_order_id", clientOrderID).
		SetResult(&result)
	if _, err := c.do(ctx, req, http.MethodGet, "/v2/orders:by_client_order_id"); err != nil {
		return nil, fmt.Errorf("get order by client id: %w", err)
	}
	return &result, nil
}

// ListOrdersParams filters ListOrders. Zero values are omitted.
type ListOrdersParams struct {
	Status    string // "open", "closed", "all"
	Limit     int
	After     string
	Until     string
	Direction string // "asc" or "desc"
	Symbols   []string
}

// ListOrders lists orders with filters.
func (c *EquitiesClient) ListOrders(ctx context.Context, p ListOrdersParams) ([]types.Order, error) {
	if p.Status == "" {
		p.Status = "open"
	}
	if p.Limit == 0 {
		p.Limit = 50
	}
	if p.Direction == "" {
		p.Direction = "desc"
	}

	req := c.trading.R().
		SetQueryParam("status", p.Status).
		SetQueryParam("limit", strconv.Itoa(p.Limit)).
		SetQueryParam("direction", p.Direction)
	if p.After != "" {
		req.SetQueryParam("after", p.After)
	}
	if p.Until != "" {
		req.SetQueryParam("until", p.Until)
	}
	if len(p.Symbols) > 0 {
		req.SetQueryParam("symbols", strings.Join(p.Symbols, ","))
	}

	var result []types.Order
	req.SetResult(&result)
	if _, err := c.do(ctx, req, http.MethodGet, "/v2/orders"); err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return result, nil
}

// CancelOrder cancels a single order.
func (c *EquitiesClient) CancelOrder(ctx context.Context, orderID string) error {
	if c.dryRun {
		c.logger.Info("DRY-RUN: would cancel order", "order_id", orderID)
		return nil
	}
	req := c.trading.R()
	if _, err := c.do(ctx, req, http.MethodDelete, "/v2/orders/"+orderID); err != nil {
		return fmt.Errorf("cancel order: %w", err)
	}
	return nil
}

// CancelAllOrders cancels every working order.
func (c *EquitiesClient) CancelAllOrders(ctx context.Context) error {
	if c.dryRun {
		c.logger.Info("DRY-RUN: would cancel all orders")
		return nil
	}
	req := c.trading.R()
	if _, err := c.do(ctx, req, http.MethodDelete, "/v2/orders"); err != nil {
		return fmt.Errorf("cancel all orders: %w", err)
	}
	c.logger.Warn("all orders cancelled")
	return nil
}

// ReplaceOrderParams carries the mutable fields for ReplaceOrder.
// Nil pointers leave the field unchanged.
type ReplaceOrderParams struct {
	Qty           *int64
	LimitPrice    *string
	StopPrice     *string
	TimeInForce   *types.TimeInForce
	ClientOrderID *string
}

// ReplaceOrder modifies an existing order. The venue implements this as
// cancel-then-new, not atomic.
func (c *EquitiesClient) ReplaceOrder(ctx context.Context, orderID string, p ReplaceOrderParams) (*types.Order, error) {
	body := make(map[string]any)
	if p.Qty != nil {
		body["qty"] = strconv.FormatInt(*p.Qty, 10)
	}
	if p.LimitPrice != nil {
		body["limit_price"] = *p.LimitPrice
	}
	if p.StopPrice != nil {
		body["stop_price"] = *p.StopPrice
	}
	if p.TimeInForce != nil {
		body["time_in_force"] = string(*p.TimeInForce)
	}
	if p.ClientOrderID != nil {
		body["client_order_id"] = *p.ClientOrderID
	}

	var result types.Order
	req := c.trading.R().SetBody(body).SetResult(&result)
	if _, err := c.do(ctx, req, http.MethodPatch, "/v2/orders/"+orderID); err != nil {
		return nil, fmt.Errorf("replace order: %w", err)
	}
	return &result, nil
}

// ————————————————————————————————————————————————————————————————————————
// Market data
// ————————————————————————————————————————————————————————————————————————

// Quote is the latest top-of-book quote for a symbol.
type Quote struct {
	Symbol   string  `json:"symbol"`
	BidPrice float64 `json:"bp"`
	BidSize  int64   `json:"bs"`
	AskPrice float64 `json:"ap"`
	AskSize  int64   `json:"as"`
}

// LatestQuote fetches the latest quote for a symbol.
func (c *EquitiesClient) LatestQuote(ctx context.Context, symbol string) (*Quote, error) {
	var result struct {
		Symbol string `json:"symbol"`
		Quote  Quote  `json:"quote"`
	}
	req := c.data.R().SetResult(&result)
	if _, err := c.do(ctx, req, http.MethodGet, "/v2/stocks/"+symbol+"/quotes/latest"); err != nil {
		return nil, fmt.Errorf("latest quote: %w", err)
	}
	result.Quote.Symbol = result.Symbol
	return &result.Quote, nil
}

// Trade is the latest tape print for a symbol.
type Trade struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"p"`
	Size   int64   `json:"s"`
}

// LatestTrade fetches the latest trade for a symbol.
func (c *EquitiesClient) LatestTrade(ctx context.Context, symbol string) (*Trade, error) {
	var result struct {
		Symbol string `json:"symbol"`
		Trade  Trade  `json:"trade"`
	}
	req := c.data.R().SetResult(&result)
	if _, err := c.do(ctx, req, http.MethodGet, "/v2/stocks/"+symbol+"/trades/latest"); err != nil {
		return nil, fmt.Errorf("latest trade: %w", err)
	}
	result.Trade.Symbol = result.Symbol
	return &result.Trade, nil
}

// Bar is one historical OHLCV bar. TradeCount is populated opportunistically
// by the venue and may be nil.
type Bar struct {
	Open       float64 `json:"o"`
	High       float64 `json:"h"`
	Low        float64 `json:"l"`
	Close      float64 `json:"c"`
	Volume     int64   `json:"v"`
	TradeCount *int64  `json:"n,omitempty"`
	Timestamp  string  `json:"t"`
}

// BarsParams filters the Bars request.
type BarsParams struct {
	Timeframe  string // default "1Day"
	Start      string
	End        string
	Limit      int
	Adjustment string // default "split"
}

// Bars fetches historical bars for a symbol.
func (c *EquitiesClient) Bars(ctx context.Context, symbol string, p BarsParams) ([]Bar, error) {
	if p.Timeframe == "" {
		p.Timeframe = "1Day"
	}
	if p.Limit == 0 {
		p.Limit = 1000
	}
	if p.Adjustment == "" {
		p.Adjustment = "split"
	}

	req := c.data.R().
		SetQueryParam("timeframe", p.Timeframe).
		SetQueryParam("limit", strconv.Itoa(p.Limit)).
		SetQueryParam("adjustment", p.Adjustment)
	if p.Start != "" {
		req.SetQueryParam("start", p.Start)
	}
	if p.End != "" {
		req.SetQueryParam("end", p.End)
	}

	var result struct {
		Bars []Bar `json:"bars"`
	}
	req.SetResult(&result)
	if _, err := c.do(ctx, req, http.MethodGet, "/v2/stocks/"+symbol+"/bars"); err != nil {
		return nil, fmt.Errorf("bars: %w", err)
	}
	return result.Bars, nil
}

// Snapshot bundles the latest quote, trade, and daily bar for a symbol.
type Snapshot struct {
	LatestQuote Quote `json:"latestQuote"`
	LatestTrade Trade `json:"latestTrade"`
	DailyBar    Bar   `json:"dailyBar"`
}

// GetSnapshot fetches the market snapshot for a symbol.
func (c *EquitiesClient) GetSnapshot(ctx context.Context, symbol string) (*Snapshot, error) {
	var result Snapshot
	req := c.data.R().SetResult(&result)
	if _, err := c.do(ctx, req, http.MethodGet, "/v2/stocks/"+symbol+"/snapshot"); err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	return &result, nil
}

// ————————————————————————————————————————————————————————————————————————
// Options
// ————————————————————————————————————————————————————————————————————————

// OptionsContractsParams filters the contracts listing.
type OptionsContractsParams struct {
	Underlyings       []string
	ExpirationDate    string
	ExpirationDateGTE string
	ExpirationDateLTE string
	StrikePriceGTE    string
	StrikePriceLTE    string
	Type              string // "call" or "put"
}

// OptionContract is one listed option contract.
type OptionContract struct {
	Symbol         string `json:"symbol"`
	Underlying     string `json:"underlying_symbol"`
	ExpirationDate string `json:"expiration_date"`
	StrikePrice    string `json:"strike_price"`
	Type           string `json:"type"`
}

// OptionsContracts lists available option contracts.
func (c *EquitiesClient) OptionsContracts(ctx context.Context, p OptionsContractsParams) ([]OptionContract, error) {
	req := c.trading.R().
		SetQueryParam("underlying_symbols", strings.Join(p.Underlyings, ","))
	if p.ExpirationDate != "" {
		req.SetQueryParam("expiration_date", p.ExpirationDate)
	}
	if p.ExpirationDateGTE != "" {
		req.SetQueryParam("expiration_date_gte", p.ExpirationDateGTE)
	}
	if p.ExpirationDateLTE != "" {
		req.SetQueryParam("expiration_date_lte", p.ExpirationDateLTE)
	}
	if p.StrikePriceGTE != "" {
		req.SetQueryParam("strike_price_gte", p.StrikePriceGTE)
	}
	if p.StrikePriceLTE != "" {
		req.SetQueryParam("strike_price_lte", p.StrikePriceLTE)
	}
	if p.Type != "" {
		req.SetQueryParam("type", p.Type)
	}

	var result struct {
		Contracts []OptionContract `json:"option_contracts"`
	}
	req.SetResult(&result)
	if _, err := c.do(ctx, req, http.MethodGet, "/v2/options/contracts"); err != nil {
		return nil, fmt.Errorf("options contracts: %w", err)
	}
	return result.Contracts, nil
}

// OptionsQuote fetches the latest option quote for a contract symbol.
func (c *EquitiesClient) OptionsQuote(ctx context.Context, symbol string) (*Quote, error) {
	var result struct {
		Quotes map[string]Quote `json:"quotes"`
	}
	req := c.data.R().
		SetQueryParam("symbols", symbol).
		SetResult(&result)
	if _, err := c.do(ctx, req, http.MethodGet, "/v1beta1/options/quotes/latest"); err != nil {
		return nil, fmt.Errorf("options quote: %w", err)
	}
	q, ok := result.Quotes[symbol]
	if !ok {
		return nil, fmt.Errorf("options quote: no quote for %s", symbol)
	}
	q.Symbol = symbol
	return &q, nil
}
