// kalshi.go implements the prediction-market venue REST client.
//
// The venue authenticates with an email/password login that returns a bearer
// token, or with a long-lived API key. Tokens expire server-side; any 401
// triggers exactly one re-login and a retry of the failed request. Prices are
// integer cents in [1, 99] and positions settle to 100 or 0.
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

// PredictionClient is the prediction-market venue REST client.
type PredictionClient struct {
	http   *resty.Client
	rl     *TokenBucket
	dryRun bool
	logger *slog.Logger

	email    string
	password string
	apiKey   string

	tokenMu sync.Mutex
	token   string
	member  string
}

// NewPredictionClient creates a prediction-venue REST client. Call Login
// before trading unless an API key is configured.
func NewPredictionClient(cfg config.Config, logger *slog.Logger) *PredictionClient {
	return &PredictionClient{
		http: resty.New().
			SetBaseURL(cfg.Prediction.BaseURL).
			SetTimeout(10 * time.Second).
			SetHeader("Content-Type", "application/json"),
		rl:       NewPredictionLimiter(cfg.Prediction.RateLimitPerSec),
		dryRun:   cfg.DryRun,
		logger:   logger.With("component", "prediction"),
		email:    cfg.Prediction.Email,
		password: cfg.Prediction.Password,
		apiKey:   cfg.Prediction.APIKey,
	}
}

// Login exchanges credentials for a bearer token. With an API key configured
// it is used directly and no login round-trip happens.
func (c *PredictionClient) Login(ctx context.Context) error {
	if c.apiKey != "" {
		c.tokenMu.Lock()
		c.token = c.apiKey
		c.tokenMu.Unlock()
		c.logger.Info("using API key authentication")
		return nil
	}

	if err := c.rl.Wait(ctx); err != nil {
		return err
	}

	var result struct {
		Token    string `json:"token"`
		MemberID string `json:"member_id"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"email": c.email, "password": c.password}).
		SetResult(&result).
		Post("/login")
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("login: status %d: %s", resp.StatusCode(), resp.String())
	}

	c.tokenMu.Lock()
	c.token = result.Token
	c.member = result.MemberID
	c.tokenMu.Unlock()

	c.logger.Info("logged in", "member_id", result.MemberID)
	return nil
}

func (c *PredictionClient) bearer() string {
	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()
	return c.token
}

// Token returns the current session token, for the streaming feed's
// authorization. Empty until Login succeeds.
func (c *PredictionClient) Token() string { return c.bearer() }

// do executes a request with the venue retry policy: transport errors and
// 5xx back off 2^attempt up to 3 tries, 429 honors Retry-After (default 1s)
// without consuming a retry, and the first 401 triggers a single re-login.
func (c *PredictionClient) do(ctx context.Context, build func() *resty.Request, method, url string) (*resty.Response, error) {
	if err := c.rl.Wait(ctx); err != nil {
		return nil, err
	}

	reauthed := false
	for attempt := 0; attempt < maxRESTRetries; {
		req := build().
			SetContext(ctx).
			SetHeader("Authorization", "Bearer "+c.bearer())
		resp, err := req.Execute(method, url)
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
		case resp.StatusCode() == http.StatusUnauthorized && !reauthed && c.apiKey == "":
			reauthed = true
			c.logger.Warn("token expired, re-authenticating")
			if err := c.Login(ctx); err != nil {
				return nil, fmt.Errorf("%s %s: re-auth: %w", method, url, err)
			}
			continue

		case resp.StatusCode() == http.StatusTooManyRequests:
			wait := retryAfter(resp, time.Second)
			c.logger.Warn("rate limited by venue", "url", url, "retry_after", wait)
			if err := sleepCtx(ctx, wait); err != nil {
				return nil, err
			}
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
// Portfolio
// ————————————————————————————————————————————————————————————————————————

// GetBalance returns the account balance in cents.
func (c *PredictionClient) GetBalance(ctx context.Context) (int64, error) {
	var result struct {
		Balance int64 `json:"balance"`
	}
	_, err := c.do(ctx, func() *resty.Request {
		return c.http.R().SetResult(&result)
	}, http.MethodGet, "/portfolio/balance")
	if err != nil {
		return 0, fmt.Errorf("get balance: %w", err)
	}
	return result.Balance, nil
}

// GetPositions fetches all open market positions.
func (c *PredictionClient) GetPositions(ctx context.Context) ([]types.PredictionPosition, error) {
	var result struct {
		MarketPositions []struct {
			Ticker        string `json:"ticker"`
			Position      int64  `json:"position"` // signed: + = YES, − = NO
			AvgPrice      int    `json:"market_exposure_avg_price"`
			MarketPrice   int    `json:"last_price"`
			TotalTraded   int64  `json:"total_traded"`
			RestingOrders int64  `json:"resting_orders_count"`
		} `json:"market_positions"`
	}
	_, err := c.do(ctx, func() *resty.Request {
		return c.http.R().SetResult(&result)
	}, http.MethodGet, "/portfolio/positions")
	if err != nil {
		return nil, fmt.Errorf("get positions: %w", err)
	}

	positions := make([]types.PredictionPosition, 0, len(result.MarketPositions))
	for _, mp := range result.MarketPositions {
		if mp.Position == 0 {
			continue
		}
		pos := types.PredictionPosition{
			Ticker:      mp.Ticker,
			Side:        types.Yes,
			Count:       mp.Position,
			AvgPrice:    mp.AvgPrice,
			MarketPrice: mp.MarketPrice,
		}
		if mp.Position < 0 {
			pos.Side = types.No
			pos.Count = -mp.Position
			pos.AvgPrice = 100 - mp.AvgPrice
			pos.MarketPrice = mp.MarketPrice
		}
		positions = append(positions, pos)
	}
	return positions, nil
}

// Settlement is one settled market outcome for the account.
type Settlement struct {
	Ticker       string    `json:"ticker"`
	MarketResult string    `json:"market_result"` // "yes" or "no"
	YesCount     int64     `json:"yes_count"`
	NoCount      int64     `json:"no_count"`
	Revenue      int64     `json:"revenue"` // cents
	SettledAt    time.Time `json:"settled_time"`
}

// GetSettlements fetches recent settlements, newest first.
func (c *PredictionClient) GetSettlements(ctx context.Context, limit int) ([]Settlement, error) {
	if limit <= 0 {
		limit = 100
	}
	var result struct {
		Settlements []Settlement `json:"settlements"`
	}
	_, err := c.do(ctx, func() *resty.Request {
		return c.http.R().
			SetQueryParam("limit", strconv.Itoa(limit)).
			SetResult(&result)
	}, http.MethodGet, "/portfolio/settlements")
	if err != nil {
		return nil, fmt.Errorf("get settlements: %w", err)
	}
	return result.Settlements, nil
}

// GetFills fetches recent fills, optionally filtered by ticker.
func (c *PredictionClient) GetFills(ctx context.Context, ticker string, limit int) ([]types.Fill, error) {
	if limit <= 0 {
		limit = 100
	}
	var result struct {
		Fills []types.Fill `json:"fills"`
	}
	_, err := c.do(ctx, func() *resty.Request {
		req := c.http.R().
			SetQueryParam("limit", strconv.Itoa(limit)).
			SetResult(&result)
		if ticker != "" {
			req.SetQueryParam("ticker", ticker)
		}
		return req
	}, http.MethodGet, "/portfolio/fills")
	if err != nil {
		return nil, fmt.Errorf("get fills: %w", err)
	}
	return result.Fills, nil
}

// ————————————————————————————————————————————————————————————————————————
// Market data
// ————————————————————————————————————————————————————————————————————————

// MarketsParams filters the markets listing.
type MarketsParams struct {
	EventTicker  string
	SeriesTicker string
	Status       string // "open", "closed", "settled"
	Tickers      []string
	Limit        int
	Cursor       string
}

// GetMarkets lists markets with a pagination cursor.
func (c *PredictionClient) GetMarkets(ctx context.Context, p MarketsParams) ([]types.PredictionMarket, string, error) {
	if p.Limit <= 0 {
		p.Limit = 100
	}
	var result struct {
		Markets []types.PredictionMarket `json:"markets"`
		Cursor  string                   `json:"cursor"`
	}
	_, err := c.do(ctx, func() *resty.Request {
		req := c.http.R().
			SetQueryParam("limit", strconv.Itoa(p.Limit)).
			SetResult(&result)
		if p.EventTicker != "" {
			req.SetQueryParam("event_ticker", p.EventTicker)
		}
		if p.SeriesTicker != "" {
			req.SetQueryParam("series_ticker", p.SeriesTicker)
		}
		if p.Status != "" {
			req.SetQueryParam("status", p.Status)
		}
		if len(p.Tickers) > 0 {
			req.SetQueryParam("tickers", strings.Join(p.Tickers, ","))
		}
		if p.Cursor != "" {
			req.SetQueryParam("cursor", p.Cursor)
		}
		return req
	}, http.MethodGet, "/markets")
	if err != nil {
		return nil, "", fmt.Errorf("get markets: %w", err)
	}
	return result.Markets, result.Cursor, nil
}

// GetMarket fetches one market by ticker.
func (c *PredictionClient) GetMarket(ctx context.Context, ticker string) (*types.PredictionMarket, error) {
	var result struct {
		Market types.PredictionMarket `json:"market"`
	}
	_, err := c.do(ctx, func() *resty.Request {
		return c.http.R().SetResult(&result)
	}, http.MethodGet, "/markets/"+ticker)
	if err != nil {
		return nil, fmt.Errorf("get market %s: %w", ticker, err)
	}
	return &result.Market, nil
}

// Event groups related markets under one event ticker.
type Event struct {
	EventTicker string                   `json:"event_ticker"`
	Title       string                   `json:"title"`
	Category    string                   `json:"category"`
	Markets     []types.PredictionMarket `json:"markets"`
}

// GetEvents lists events, optionally filtered by status and series.
func (c *PredictionClient) GetEvents(ctx context.Context, status, seriesTicker string, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}
	var result struct {
		Events []Event `json:"events"`
	}
	_, err := c.do(ctx, func() *resty.Request {
		req := c.http.R().
			SetQueryParam("limit", strconv.Itoa(limit)).
			SetQueryParam("with_nested_markets", "true").
			SetResult(&result)
		if status != "" {
			req.SetQueryParam("status", status)
		}
		if seriesTicker != "" {
			req.SetQueryParam("series_ticker", seriesTicker)
		}
		return req
	}, http.MethodGet, "/events")
	if err != nil {
		return nil, fmt.Errorf("get events: %w", err)
	}
	return result.Events, nil
}

// GetOrderbook fetches the orderbook snapshot for a market. depth limits the
// number of levels per side; 0 means venue default.
func (c *PredictionClient) GetOrderbook(ctx context.Context, ticker string, depth int) (*types.Orderbook, error) {
	var result struct {
		Orderbook types.Orderbook `json:"orderbook"`
	}
	_, err := c.do(ctx, func() *resty.Request {
		req := c.http.R().SetResult(&result)
		if depth > 0 {
			req.SetQueryParam("depth", strconv.Itoa(depth))
		}
		return req
	}, http.MethodGet, "/markets/"+ticker+"/orderbook")
	if err != nil {
		return nil, fmt.Errorf("get orderbook %s: %w", ticker, err)
	}
	result.Orderbook.Ticker = ticker
	return &result.Orderbook, nil
}

// GetMarketTrades fetches recent public trades on a market.
func (c *PredictionClient) GetMarketTrades(ctx context.Context, ticker string, limit int) ([]types.Fill, error) {
	if limit <= 0 {
		limit = 100
	}
	var result struct {
		Trades []types.Fill `json:"trades"`
	}
	_, err := c.do(ctx, func() *resty.Request {
		return c.http.R().
			SetQueryParam("ticker", ticker).
			SetQueryParam("limit", strconv.Itoa(limit)).
			SetResult(&result)
	}, http.MethodGet, "/markets/trades")
	if err != nil {
		return nil, fmt.Errorf("get market trades %s: %w", ticker, err)
	}
	return result.Trades, nil
}

// ————————————————————————————————————————————————————————————————————————
// Orders
// ————————————————————————————————————————————————————————————————————————

// PredictionOrderResult is the venue's view of a placed order.
type PredictionOrderResult struct {
	OrderID       string `json:"order_id"`
	ClientOrderID string `json:"client_order_id"`
	Ticker        string `json:"ticker"`
	Status        string `json:"status"` // "resting", "executed", "canceled"
	Side          string `json:"side"`
	Action        string `json:"action"`
	YesPrice      int    `json:"yes_price"`
	NoPrice       int    `json:"no_price"`
	Count         int64  `json:"count"`
	RemainingCnt  int64  `json:"remaining_count"`
}

// CreateOrder places a limit order. Prices must be integer cents in [1, 99].
func (c *PredictionClient) CreateOrder(ctx context.Context, order types.PredictionOrder) (*PredictionOrderResult, error) {
	price := order.Price()
	if price < 1 || price > 99 {
		return nil, fmt.Errorf("create order: price %d outside [1, 99]", price)
	}
	if order.Count <= 0 {
		return nil, fmt.Errorf("create order: count must be positive, got %d", order.Count)
	}
	if order.ClientOrderID == "" {
		order.ClientOrderID = uuid.NewString()
	}

	if c.dryRun {
		c.logger.Info("DRY-RUN: would create order",
			"ticker", order.Ticker, "side", order.Side, "action", order.Action,
			"count", order.Count, "price", price)
		return &PredictionOrderResult{
			OrderID:       "dry-run-" + order.ClientOrderID,
			ClientOrderID: order.ClientOrderID,
			Ticker:        order.Ticker,
			Status:        "resting",
			Side:          string(order.Side),
			Action:        string(order.Action),
			Count:         order.Count,
		}, nil
	}

	body := map[string]any{
		"ticker":          order.Ticker,
		"action":          string(order.Action),
		"side":            string(order.Side),
		"count":           order.Count,
		"type":            "limit",
		"client_order_id": order.ClientOrderID,
	}
	if order.Side == types.Yes {
		body["yes_price"] = order.YesPrice
	} else {
		body["no_price"] = order.NoPrice
	}
	if order.ExpirationTS > 0 {
		body["expiration_ts"] = order.ExpirationTS
	}

	var result struct {
		Order PredictionOrderResult `json:"order"`
	}
	_, err := c.do(ctx, func() *resty.Request {
		return c.http.R().SetBody(body).SetResult(&result)
	}, http.MethodPost, "/portfolio/orders")
	if err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	c.logger.Info("order created",
		"ticker", order.Ticker, "side", order.Side, "action", order.Action,
		"count", order.Count, "price", price, "order_id", result.Order.OrderID)
	return &result.Order, nil
}

// GetOrders lists orders, optionally filtered by ticker and status.
func (c *PredictionClient) GetOrders(ctx context.Context, ticker, status string) ([]PredictionOrderResult, error) {
	var result struct {
		Orders []PredictionOrderResult `json:"orders"`
	}
	_, err := c.do(ctx, func() *resty.Request {
		req := c.http.R().SetResult(&result)
		if ticker != "" {
			req.SetQueryParam("ticker", ticker)
		}
		if status != "" {
			req.SetQueryParam("status", status)
		}
		return req
	}, http.MethodGet, "/portfolio/orders")
	if err != nil {
		return nil, fmt.Errorf("get orders: %w", err)
	}
	return result.Orders, nil
}

// CancelOrder cancels a resting order.
func (c *PredictionClient) CancelOrder(ctx context.Context, orderID string) error {
	if c.dryRun {
		c.logger.Info("DRY-RUN: would cancel order", "order_id", orderID)
		return nil
	}
	_, err := c.do(ctx, func() *resty.Request {
		return c.http.R()
	}, http.MethodDelete, "/portfolio/orders/"+orderID)
	if err != nil {
		return fmt.Errorf("cancel order: %w", err)
	}
	return nil
}

// AmendOrder changes the price and/or remaining count of a resting order.
func (c *PredictionClient) AmendOrder(ctx context.Context, orderID string, price int, count int64) (*PredictionOrderResult, error) {
	if price < 1 || price > 99 {
		return nil, fmt.Errorf("amend order: price %d outside [1, 99]", price)
	}

	var result struct {
		Order PredictionOrderResult `json:"order"`
	}
	body := map[string]any{"price": price, "count": count}
	_, err := c.do(ctx, func() *resty.Request {
		return c.http.R().SetBody(body).SetResult(&result)
	}, http.MethodPost, "/portfolio/orders/"+orderID+"/amend")
	if err != nil {
		return nil, fmt.Errorf("amend order: %w", err)
	}
	return &result.Order, nil
}

// BatchCancelOrders cancels up to 20 resting orders in one request.
func (c *PredictionClient) BatchCancelOrders(ctx context.Context, orderIDs []string) error {
	if len(orderIDs) == 0 {
		return nil
	}
	if len(orderIDs) > 20 {
		return fmt.Errorf("batch cancel: at most 20 orders per request, got %d", len(orderIDs))
	}
	if c.dryRun {
		c.logger.Info("DRY-RUN: would batch cancel orders", "count", len(orderIDs))
		return nil
	}

	body := map[string]any{"ids": orderIDs}
	_, err := c.do(ctx, func() *resty.Request {
		return c.http.R().SetBody(body)
	}, http.MethodDelete, "/portfolio/orders")
	if err != nil {
		return fmt.Errorf("batch cancel: %w", err)
	}
	c.logger.Warn("orders batch cancelled", "count", len(orderIDs))
	return nil
}
