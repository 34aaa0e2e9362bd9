// Package types defines shared data structures used across all packages.
//
// This package is the common vocabulary for the trading core — order intents,
// positions, account snapshots, risk decisions, alerts, approval requests, and
// WebSocket event payloads for both venues. It has no dependencies on internal
// packages, so it can be imported by any layer.
package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// ————————————————————————————————————————————————————————————————————————
// Core enums
// ————————————————————————————————————————————————————————————————————————

// Side represents the direction of an equities order.
type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

// Opposite returns the closing side for a position held on this side.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// ContractSide is the outcome side of a prediction-market order: YES or NO.
type ContractSide string

const (
	Yes ContractSide = "yes"
	No  ContractSide = "no"
)

// OrderType enumerates the supported order lifecycles on the equities venue.
// The prediction venue only supports limit orders.
type OrderType string

const (
	Market       OrderType = "market"
	Limit        OrderType = "limit"
	Stop         OrderType = "stop"
	StopLimit    OrderType = "stop_limit"
	TrailingStop OrderType = "trailing_stop"
)

// TimeInForce controls how long an order stays working.
type TimeInForce string

const (
	TIFDay TimeInForce = "day"
	TIFGTC TimeInForce = "gtc"
	TIFIOC TimeInForce = "ioc"
	TIFFOK TimeInForce = "fok"
	TIFOPG TimeInForce = "opg"
	TIFCLS TimeInForce = "cls"
)

// ————————————————————————————————————————————————————————————————————————
// Order intents and broker orders
// ————————————————————————————————————————————————————————————————————————

// BracketLeg is an attached take-profit or stop-loss leg on a bracket order.
type BracketLeg struct {
	LimitPrice *decimal.Decimal `json:"limit_price,omitempty"`
	StopPrice  *decimal.Decimal `json:"stop_price,omitempty"`
}

// OrderIntent is the high-level order representation produced by a strategy
// or an operator. The broker gateway converts it to the venue wire format.
// ClientOrderID is the idempotency key; if empty the gateway assigns a UUID.
type OrderIntent struct {
	Symbol        string           `json:"symbol"`
	Side          Side             `json:"side"`
	Qty           int64            `json:"qty"`
	Type          OrderType        `json:"type"`
	TimeInForce   TimeInForce      `json:"time_in_force"`
	LimitPrice    *decimal.Decimal `json:"limit_price,omitempty"`
	StopPrice     *decimal.Decimal `json:"stop_price,omitempty"`
	TrailPercent  *decimal.Decimal `json:"trail_percent,omitempty"`
	TrailPrice    *decimal.Decimal `json:"trail_price,omitempty"`
	ClientOrderID string           `json:"client_order_id,omitempty"`
	ExtendedHours bool             `json:"extended_hours,omitempty"`
	OrderClass    string           `json:"order_class,omitempty"` // "bracket", "oco", "oto"
	TakeProfit    *BracketLeg      `json:"take_profit,omitempty"`
	StopLoss      *BracketLeg      `json:"stop_loss,omitempty"`
}

// Notional returns the order value at the given reference price.
func (o OrderIntent) Notional(price decimal.Decimal) decimal.Decimal {
	return price.Mul(decimal.NewFromInt(o.Qty))
}

// Order is the broker's view of a submitted order.
type Order struct {
	ID            string           `json:"id"`
	ClientOrderID string           `json:"client_order_id"`
	Symbol        string           `json:"symbol"`
	Side          Side             `json:"side"`
	Type          OrderType        `json:"type"`
	Qty           string           `json:"qty"`
	FilledQty     string           `json:"filled_qty"`
	FilledAvgPx   string           `json:"filled_avg_price"`
	LimitPrice    string           `json:"limit_price"`
	StopPrice     string           `json:"stop_price"`
	Status        string           `json:"status"` // "new", "filled", "canceled", ...
	TimeInForce   TimeInForce      `json:"time_in_force"`
	CreatedAt     time.Time        `json:"created_at"`
	Legs          []Order          `json:"legs,omitempty"`
	FilledAvg     *decimal.Decimal `json:"-"`
}

// ————————————————————————————————————————————————————————————————————————
// Positions and account state
// ————————————————————————————————————————————————————————————————————————

// Position is a held equities position. Qty is signed: positive = long,
// negative = short.
type Position struct {
	Symbol        string          `json:"symbol"`
	Qty           decimal.Decimal `json:"qty"`
	AvgEntryPrice decimal.Decimal `json:"avg_entry_price"`
	CurrentPrice  decimal.Decimal `json:"current_price"`
	MarketValue   decimal.Decimal `json:"market_value"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pl"`
	CostBasis     decimal.Decimal `json:"cost_basis"`
}

// Side derives the position direction from the sign of Qty.
func (p Position) Side() Side {
	if p.Qty.Sign() < 0 {
		return Sell
	}
	return Buy
}

// AbsMarketValue returns |market value|, the exposure this position carries.
func (p Position) AbsMarketValue() decimal.Decimal {
	return p.MarketValue.Abs()
}

// AccountSnapshot is a point-in-time view of the trading account.
type AccountSnapshot struct {
	Equity         decimal.Decimal `json:"equity"`
	Cash           decimal.Decimal `json:"cash"`
	BuyingPower    decimal.Decimal `json:"buying_power"`
	PortfolioValue decimal.Decimal `json:"portfolio_value"`
	DaytradeCount  int             `json:"daytrade_count"`
	TradingBlocked bool            `json:"trading_blocked"`
	Timestamp      time.Time       `json:"timestamp"`
}

// ————————————————————————————————————————————————————————————————————————
// Risk decisions
// ————————————————————————————————————————————————————————————————————————

// RiskAction classifies the outcome of the pre-trade pipeline.
type RiskAction string

const (
	ActionApprove         RiskAction = "APPROVE"
	ActionReject          RiskAction = "REJECT"
	ActionRequireApproval RiskAction = "REQUIRE_APPROVAL"
	ActionDryRun          RiskAction = "DRY_RUN"
)

// Machine-readable rejection codes. Each failed check is reported as
// "CODE: detail" in RiskDecision.Failed.
const (
	CodeKillSwitchActive         = "KILL_SWITCH_ACTIVE"
	CodeCircuitBreaker           = "CIRCUIT_BREAKER"
	CodeOrderNotionalExceeded    = "ORDER_NOTIONAL_EXCEEDED"
	CodeOrderSharesExceeded      = "ORDER_SHARES_EXCEEDED"
	CodePositionSharesExceeded   = "POSITION_SHARES_EXCEEDED"
	CodePositionNotionalExceeded = "POSITION_NOTIONAL_EXCEEDED"
	CodeTotalExposureExceeded    = "TOTAL_EXPOSURE_EXCEEDED"
	CodeConcentrationExceeded    = "CONCENTRATION_EXCEEDED"
	CodeDailyLossLimit           = "DAILY_LOSS_LIMIT"
	CodeWeeklyLossLimit          = "WEEKLY_LOSS_LIMIT"
	CodeDrawdownLimit            = "DRAWDOWN_LIMIT"
	CodeDailySpendLimit          = "DAILY_SPEND_LIMIT"
	CodeWeeklySpendLimit         = "WEEKLY_SPEND_LIMIT"
	CodeMonthlySpendLimit        = "MONTHLY_SPEND_LIMIT"
	CodeSymbolBlocked            = "SYMBOL_BLOCKED"
	CodeSymbolNotAllowed         = "SYMBOL_NOT_ALLOWED"
)

// RiskDecision is the result of running an order through the pre-trade
// pipeline. Policy rejections are values, never errors: no code path may
// submit an order past an ActionReject decision.
type RiskDecision struct {
	Action         RiskAction `json:"action"`
	Passed         []string   `json:"passed"`
	Failed         []string   `json:"failed"`
	Warnings       []string   `json:"warnings"`
	ApprovalReason string     `json:"approval_reason,omitempty"`
}

// Approved reports whether the order may proceed to submission.
func (d RiskDecision) Approved() bool { return d.Action == ActionApprove }

// ————————————————————————————————————————————————————————————————————————
// Alerts
// ————————————————————————————————————————————————————————————————————————

// AlertType identifies what threshold or condition an alert reports.
type AlertType string

const (
	AlertDailyProfitTarget AlertType = "daily_profit_target"
	AlertDailyLossLimit    AlertType = "daily_loss_limit"
	AlertPositionProfitPct AlertType = "position_profit_pct"
	AlertPositionProfitUSD AlertType = "position_profit_usd"
	AlertPositionLossPct   AlertType = "position_loss_pct"
	AlertPositionLossUSD   AlertType = "position_loss_usd"
	AlertLosingStreak      AlertType = "losing_streak"
	AlertWinningStreak     AlertType = "winning_streak"
	AlertPnLVelocity       AlertType = "pnl_velocity"
	AlertDrawdownWarning   AlertType = "drawdown_warning"
	AlertRecoveryMilestone AlertType = "recovery_milestone"
	AlertNewEquityHigh     AlertType = "new_equity_high"
	AlertBreakeven         AlertType = "breakeven"
)

// AlertPriority ranks alerts for delivery routing.
type AlertPriority string

const (
	PriorityLow      AlertPriority = "LOW"
	PriorityMedium   AlertPriority = "MEDIUM"
	PriorityHigh     AlertPriority = "HIGH"
	PriorityCritical AlertPriority = "CRITICAL"
)

// Alert is a structured notification emitted by the P&L tracker. Delivery is
// the caller's concern; the core only guarantees cooldown spacing per
// (Type, Symbol-or-"portfolio") pair.
type Alert struct {
	ID           string          `json:"id"`
	Type         AlertType       `json:"type"`
	Priority     AlertPriority   `json:"priority"`
	Symbol       string          `json:"symbol,omitempty"` // empty = portfolio scope
	Value        decimal.Decimal `json:"value"`
	Threshold    decimal.Decimal `json:"threshold"`
	Message      string          `json:"message"`
	Timestamp    time.Time       `json:"timestamp"`
	Acknowledged bool            `json:"acknowledged"`
}

// Scope returns the cooldown scope: the symbol, or "portfolio" when unset.
func (a Alert) Scope() string {
	if a.Symbol == "" {
		return "portfolio"
	}
	return a.Symbol
}

// ————————————————————————————————————————————————————————————————————————
// Approval workflow
// ————————————————————————————————————————————————————————————————————————

// ApprovalStatus is the lifecycle state of a human-approval request.
type ApprovalStatus string

const (
	ApprovalPending   ApprovalStatus = "PENDING"
	ApprovalApproved  ApprovalStatus = "APPROVED"
	ApprovalRejected  ApprovalStatus = "REJECTED"
	ApprovalExpired   ApprovalStatus = "EXPIRED"
	ApprovalCancelled ApprovalStatus = "CANCELLED"
)

// ApprovalRequest captures an order waiting for a human decision, together
// with the risk context that triggered the escalation.
type ApprovalRequest struct {
	ID         string         `json:"id"`
	Intent     OrderIntent    `json:"intent"`
	Reason     string         `json:"reason"`
	Context    RiskDecision   `json:"context"`
	Status     ApprovalStatus `json:"status"`
	CreatedAt  time.Time      `json:"created_at"`
	ExpiresAt  time.Time      `json:"expires_at"`
	ResolvedAt time.Time      `json:"resolved_at,omitzero"`
	ResolvedBy string         `json:"resolved_by,omitempty"`
}

// ————————————————————————————————————————————————————————————————————————
// Prediction-market types
// ————————————————————————————————————————————————————————————————————————

// PredictionOrder is an order intent for the prediction-market venue.
// Prices are integer cents in [1, 99]. Only limit orders are supported;
// for market-like execution use a crossing limit price.
type PredictionOrder struct {
	Ticker        string       `json:"ticker"`
	Side          ContractSide `json:"side"`
	Action        Side         `json:"action"` // buy or sell
	Count         int64        `json:"count"`
	YesPrice      int          `json:"yes_price,omitempty"`
	NoPrice       int          `json:"no_price,omitempty"`
	ClientOrderID string       `json:"client_order_id,omitempty"`
	ExpirationTS  int64        `json:"expiration_ts,omitempty"`
}

// Price returns the cents paid per contract on the order's side.
func (o PredictionOrder) Price() int {
	if o.Side == Yes {
		return o.YesPrice
	}
	return o.NoPrice
}

// NotionalDollars returns the order value in dollars.
func (o PredictionOrder) NotionalDollars() decimal.Decimal {
	cents := o.Count * int64(o.Price())
	return decimal.New(cents, -2)
}

// PredictionMarket is the venue's view of one binary market.
type PredictionMarket struct {
	Ticker      string    `json:"ticker"`
	EventTicker string    `json:"event_ticker"`
	Title       string    `json:"title"`
	Category    string    `json:"category"`
	Status      string    `json:"status"` // "open", "closed", "settled"
	YesBid      int       `json:"yes_bid"`
	YesAsk      int       `json:"yes_ask"`
	LastPrice   int       `json:"last_price"`
	Volume      int64     `json:"volume"`
	Volume24h   int64     `json:"volume_24h"`
	OpenTime    time.Time `json:"open_time"`
	CloseTime   time.Time `json:"close_time"`
}

// ImpliedProb returns the market-implied YES probability from the last price.
func (m PredictionMarket) ImpliedProb() float64 {
	return float64(m.LastPrice) / 100
}

// TimeToClose returns the remaining time until market close.
func (m PredictionMarket) TimeToClose(now time.Time) time.Duration {
	return m.CloseTime.Sub(now)
}

// PredictionPosition is a held prediction-market position.
type PredictionPosition struct {
	Ticker      string       `json:"ticker"`
	Side        ContractSide `json:"side"`
	Count       int64        `json:"count"`
	AvgPrice    int          `json:"avg_price"`    // cents
	MarketPrice int          `json:"market_price"` // cents
	Category    string       `json:"category"`
}

// MarketValueDollars returns the current position value in dollars.
func (p PredictionPosition) MarketValueDollars() decimal.Decimal {
	price := p.MarketPrice
	if p.Side == No {
		price = 100 - p.MarketPrice
	}
	return decimal.New(p.Count*int64(price), -2)
}

// UnrealizedCents returns unrealized P&L in cents, excluding fees.
func (p PredictionPosition) UnrealizedCents() int64 {
	if p.Side == Yes {
		return p.Count * int64(p.MarketPrice-p.AvgPrice)
	}
	return p.Count * int64(p.AvgPrice-p.MarketPrice)
}

// OrderbookLevel is one price level of a prediction-market orderbook:
// [price_cents, contract_count].
type OrderbookLevel [2]int

// Orderbook is the venue's orderbook response. Yes levels are resting YES
// bids; No levels are resting NO bids (which imply YES asks at 100 − price).
type Orderbook struct {
	Ticker string           `json:"ticker"`
	Yes    []OrderbookLevel `json:"yes"`
	No     []OrderbookLevel `json:"no"`
}

// Fill is an executed trade on the prediction venue.
type Fill struct {
	TradeID   string       `json:"trade_id"`
	OrderID   string       `json:"order_id"`
	Ticker    string       `json:"ticker"`
	Side      ContractSide `json:"side"`
	Action    Side         `json:"action"`
	Count     int64        `json:"count"`
	Price     int          `json:"price"` // cents
	IsTaker   bool         `json:"is_taker"`
	CreatedAt time.Time    `json:"created_time"`
}

// ————————————————————————————————————————————————————————————————————————
// WebSocket events — equities venue
// ————————————————————————————————————————————————————————————————————————
// Market-data messages arrive in JSON arrays tagged by "T": "q" quote,
// "t" trade, "b" bar. Trading events arrive as {stream, data} envelopes.

// WSQuote is a top-of-book quote from the equities market-data stream.
type WSQuote struct {
	Type      string  `json:"T"` // "q"
	Symbol    string  `json:"S"`
	BidPrice  float64 `json:"bp"`
	BidSize   int64   `json:"bs"`
	AskPrice  float64 `json:"ap"`
	AskSize   int64   `json:"as"`
	Timestamp string  `json:"t"`
}

// WSTrade is a tape print from the equities market-data stream.
type WSTrade struct {
	Type      string  `json:"T"` // "t"
	Symbol    string  `json:"S"`
	Price     float64 `json:"p"`
	Size      int64   `json:"s"`
	Timestamp string  `json:"t"`
}

// WSBar is an aggregated minute bar. TradeCount is populated
// opportunistically by the venue; nil must be tolerated downstream.
type WSBar struct {
	Type       string  `json:"T"` // "b"
	Symbol     string  `json:"S"`
	Open       float64 `json:"o"`
	High       float64 `json:"h"`
	Low        float64 `json:"l"`
	Close      float64 `json:"c"`
	Volume     int64   `json:"v"`
	TradeCount *int64  `json:"n,omitempty"`
	Timestamp  string  `json:"t"`
}

// WSOrderUpdate is a trade_updates event from the equities trading stream.
type WSOrderUpdate struct {
	Event     string  `json:"event"` // "new", "fill", "partial_fill", "canceled", "rejected"
	Timestamp string  `json:"timestamp"`
	Order     Order   `json:"order"`
	Price     string  `json:"price,omitempty"`
	Qty       string  `json:"qty,omitempty"`
	PositionQ *string `json:"position_qty,omitempty"`
}

// ————————————————————————————————————————————————————————————————————————
// WebSocket events — prediction venue
// ————————————————————————————————————————————————————————————————————————
// All messages on the single socket carry a per-channel monotonically
// increasing "seq". A gap means the local orderbook is unreliable until a
// REST snapshot is refetched.

// WSOrderbookDelta is one incremental orderbook change.
type WSOrderbookDelta struct {
	Type   string       `json:"type"` // "orderbook_delta"
	Seq    int64        `json:"seq"`
	Ticker string       `json:"market_ticker"`
	Price  int          `json:"price"`
	Delta  int          `json:"delta"` // signed contract-count change
	Side   ContractSide `json:"side"`
}

// WSMarketTrade is a public trade on a subscribed prediction market.
type WSMarketTrade struct {
	Type     string       `json:"type"` // "trade"
	Seq      int64        `json:"seq"`
	Ticker   string       `json:"market_ticker"`
	Price    int          `json:"yes_price"`
	Count    int64        `json:"count"`
	Taker    ContractSide `json:"taker_side"`
	TradedAt string       `json:"ts"`
}

// WSFill is a private fill notification for the authenticated account.
type WSFill struct {
	Type    string       `json:"type"` // "fill"
	Seq     int64        `json:"seq"`
	Ticker  string       `json:"market_ticker"`
	OrderID string       `json:"order_id"`
	Side    ContractSide `json:"side"`
	Action  Side         `json:"action"`
	Count   int64        `json:"count"`
	Price   int          `json:"price"`
	IsTaker bool         `json:"is_taker"`
}
