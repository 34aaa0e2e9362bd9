// engine.go implements the ordered pre-trade check pipeline.
//
// CheckOrder is deterministic with respect to its inputs plus the engine's
// internal tracker state, and fail-safe: policy violations are decision
// values with machine-readable codes, never errors. No code path may submit
// an order past a REJECT decision.
package risk

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/shopspring/decimal"

	"riskcore/internal/config"
	"riskcore/pkg/types"
)

// Engine runs every order intent through the ordered check pipeline.
type Engine struct {
	limits  Limits
	spend   *SpendTracker
	loss    *LossTracker
	breaker *CircuitBreaker
	logger  *slog.Logger

	mu         sync.Mutex
	killSwitch bool
	dryRun     bool
}

// NewEngine builds the engine and its trackers from config.
func NewEngine(cfg config.Config, logger *slog.Logger) *Engine {
	return &Engine{
		limits:  LimitsFromConfig(cfg.Risk),
		spend:   NewSpendTracker(),
		loss:    NewLossTracker(),
		breaker: NewCircuitBreaker(cfg.Risk, logger),
		logger:  logger.With("component", "risk_engine"),
		dryRun:  cfg.DryRun,
	}
}

// Limits returns the engine's immutable limit snapshot.
func (e *Engine) Limits() Limits { return e.limits }

// Breaker exposes the circuit breaker for outcome recording and operator
// reset.
func (e *Engine) Breaker() *CircuitBreaker { return e.breaker }

// SetKillSwitch flips the global halt. Every decision while active is
// REJECT/KILL_SWITCH_ACTIVE.
func (e *Engine) SetKillSwitch(on bool) {
	e.mu.Lock()
	e.killSwitch = on
	e.mu.Unlock()
	if on {
		e.logger.Error("kill switch ACTIVATED")
	} else {
		e.logger.Warn("kill switch deactivated")
	}
}

// KillSwitchActive reports the halt state.
func (e *Engine) KillSwitchActive() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.killSwitch
}

// SetDryRun toggles dry-run classification for passing orders.
func (e *Engine) SetDryRun(on bool) {
	e.mu.Lock()
	e.dryRun = on
	e.mu.Unlock()
}

// RecordFill records an executed buy/sell: notional into the spend tracker
// (buys only) and a success sample with slippage into the circuit breaker.
func (e *Engine) RecordFill(side types.Side, notional, slippage decimal.Decimal) {
	if side == types.Buy {
		e.spend.Record(notional)
	}
	e.breaker.RecordSuccess(slippage)
}

// RecordReject records a venue or policy rejection sample.
func (e *Engine) RecordReject() {
	e.breaker.RecordFailure()
}

// UpdateEquity feeds an equity observation into the loss tracker.
func (e *Engine) UpdateEquity(equity decimal.Decimal) {
	e.loss.UpdateEquity(equity)
}

// DailyPnL returns today's equity change.
func (e *Engine) DailyPnL() decimal.Decimal { return e.loss.DailyPnL() }

// CheckOrder runs the pipeline and classifies the order.
func (e *Engine) CheckOrder(
	intent types.OrderIntent,
	positions []types.Position,
	marketPrice decimal.Decimal,
	equity decimal.Decimal,
) types.RiskDecision {
	d := types.RiskDecision{}
	fail := func(code, format string, args ...any) {
		d.Failed = append(d.Failed, code+": "+fmt.Sprintf(format, args...))
	}
	pass := func(name string) {
		d.Passed = append(d.Passed, name)
	}

	// 1. Kill switch short-circuits everything.
	if e.KillSwitchActive() {
		fail(types.CodeKillSwitchActive, "all trading halted by operator")
		d.Action = types.ActionReject
		return d
	}
	pass("kill_switch")

	// 2. Circuit breaker: HALF_OPEN passes with a warning.
	switch e.breaker.State() {
	case BreakerOpen:
		fail(types.CodeCircuitBreaker, "circuit breaker open")
	case BreakerHalfOpen:
		d.Warnings = append(d.Warnings, "circuit breaker half-open: probing")
		pass("circuit_breaker")
	default:
		pass("circuit_breaker")
	}

	// 3. Symbol allow/blocklist.
	if code := e.limits.SymbolAllowed(intent.Symbol); code != "" {
		fail(code, "symbol %s", intent.Symbol)
	} else {
		pass("symbol_lists")
	}

	notional := intent.Notional(marketPrice)

	// 4. Per-order caps.
	if notional.GreaterThan(e.limits.MaxOrderNotional) {
		fail(types.CodeOrderNotionalExceeded, "order %s > limit %s",
			notional.StringFixed(2), e.limits.MaxOrderNotional.StringFixed(2))
	} else {
		pass("order_notional")
	}
	if e.limits.MaxOrderShares > 0 && intent.Qty > e.limits.MaxOrderShares {
		fail(types.CodeOrderSharesExceeded, "order %d shares > limit %d",
			intent.Qty, e.limits.MaxOrderShares)
	} else {
		pass("order_shares")
	}

	// 5. Resulting-position caps.
	currentQty := decimal.Zero
	totalExposure := decimal.Zero
	for _, p := range positions {
		if p.Symbol == intent.Symbol {
			currentQty = p.Qty
		}
		totalExposure = totalExposure.Add(p.AbsMarketValue())
	}
	delta := decimal.NewFromInt(intent.Qty)
	if intent.Side == types.Sell {
		delta = delta.Neg()
	}
	qtyAfter := currentQty.Add(delta).Abs()
	positionNotional := qtyAfter.Mul(marketPrice)

	if e.limits.MaxPositionShares > 0 &&
		qtyAfter.GreaterThan(decimal.NewFromInt(e.limits.MaxPositionShares)) {
		fail(types.CodePositionSharesExceeded, "position %s shares > limit %d",
			qtyAfter.String(), e.limits.MaxPositionShares)
	} else {
		pass("position_shares")
	}
	if e.limits.MaxPositionNotional.Sign() > 0 &&
		positionNotional.GreaterThan(e.limits.MaxPositionNotional) {
		fail(types.CodePositionNotionalExceeded, "position %s > limit %s",
			positionNotional.StringFixed(2), e.limits.MaxPositionNotional.StringFixed(2))
	} else {
		pass("position_notional")
	}

	// 6. Total exposure: existing absolute exposure plus buy notional.
	if intent.Side == types.Buy {
		if totalExposure.Add(notional).GreaterThan(e.limits.MaxTotalExposure) {
			fail(types.CodeTotalExposureExceeded, "exposure %s > limit %s",
				totalExposure.Add(notional).StringFixed(2), e.limits.MaxTotalExposure.StringFixed(2))
		} else {
			pass("total_exposure")
		}
	} else {
		pass("total_exposure")
	}

	// 7. Concentration, skipped when equity is not positive.
	if equity.Sign() > 0 {
		concentration := positionNotional.Div(equity)
		if concentration.GreaterThan(e.limits.MaxConcentrationPct) {
			fail(types.CodeConcentrationExceeded, "concentration %s > limit %s",
				concentration.StringFixed(4), e.limits.MaxConcentrationPct.StringFixed(4))
		} else {
			pass("concentration")
		}
	} else {
		d.Warnings = append(d.Warnings, "concentration check skipped: equity <= 0")
	}

	// 8. Loss limits and drawdown.
	dailyPnL := e.loss.DailyPnL()
	if e.limits.MaxDailyLoss.Sign() > 0 && dailyPnL.Neg().GreaterThan(e.limits.MaxDailyLoss) {
		fail(types.CodeDailyLossLimit, "daily loss %s > limit %s",
			dailyPnL.Neg().StringFixed(2), e.limits.MaxDailyLoss.StringFixed(2))
	} else {
		pass("daily_loss")
	}
	weeklyPnL := e.loss.WeeklyPnL()
	if e.limits.MaxWeeklyLoss.Sign() > 0 && weeklyPnL.Neg().GreaterThan(e.limits.MaxWeeklyLoss) {
		fail(types.CodeWeeklyLossLimit, "weekly loss %s > limit %s",
			weeklyPnL.Neg().StringFixed(2), e.limits.MaxWeeklyLoss.StringFixed(2))
	} else {
		pass("weekly_loss")
	}
	if e.limits.MaxDrawdownPct.Sign() > 0 &&
		e.loss.DrawdownPct().GreaterThan(e.limits.MaxDrawdownPct) {
		fail(types.CodeDrawdownLimit, "drawdown %s > limit %s",
			e.loss.DrawdownPct().StringFixed(4), e.limits.MaxDrawdownPct.StringFixed(4))
	} else {
		pass("drawdown")
	}

	// 9. Spend windows apply to buys only.
	if intent.Side == types.Buy {
		daily, weekly, monthly := e.spend.Totals()
		if e.limits.DailySpendLimit.Sign() > 0 &&
			daily.Add(notional).GreaterThan(e.limits.DailySpendLimit) {
			fail(types.CodeDailySpendLimit, "daily spend %s > limit %s",
				daily.Add(notional).StringFixed(2), e.limits.DailySpendLimit.StringFixed(2))
		} else {
			pass("daily_spend")
		}
		if e.limits.WeeklySpendLimit.Sign() > 0 &&
			weekly.Add(notional).GreaterThan(e.limits.WeeklySpendLimit) {
			fail(types.CodeWeeklySpendLimit, "weekly spend %s > limit %s",
				weekly.Add(notional).StringFixed(2), e.limits.WeeklySpendLimit.StringFixed(2))
		} else {
			pass("weekly_spend")
		}
		if e.limits.MonthlySpendLimit.Sign() > 0 &&
			monthly.Add(notional).GreaterThan(e.limits.MonthlySpendLimit) {
			fail(types.CodeMonthlySpendLimit, "monthly spend %s > limit %s",
				monthly.Add(notional).StringFixed(2), e.limits.MonthlySpendLimit.StringFixed(2))
		} else {
			pass("monthly_spend")
		}
	}

	// Classification.
	switch {
	case len(d.Failed) > 0:
		d.Action = types.ActionReject
	case e.isDryRun():
		d.Action = types.ActionDryRun
	default:
		d.Action = types.ActionApprove
		if e.limits.ApprovalNotionalThreshold.Sign() > 0 &&
			notional.GreaterThan(e.limits.ApprovalNotionalThreshold) {
			d.Action = types.ActionRequireApproval
			d.ApprovalReason = fmt.Sprintf("order notional %s exceeds approval threshold %s",
				notional.StringFixed(2), e.limits.ApprovalNotionalThreshold.StringFixed(2))
		} else if e.limits.ApprovalLossThreshold.Sign() > 0 &&
			dailyPnL.Neg().GreaterThan(e.limits.ApprovalLossThreshold) {
			d.Action = types.ActionRequireApproval
			d.ApprovalReason = fmt.Sprintf("daily loss %s exceeds approval threshold %s",
				dailyPnL.Neg().StringFixed(2), e.limits.ApprovalLossThreshold.StringFixed(2))
		}
	}

	if d.Action == types.ActionReject {
		e.logger.Warn("order rejected",
			"symbol", intent.Symbol, "side", intent.Side, "qty", intent.Qty,
			"failed", d.Failed)
	}
	return d
}

func (e *Engine) isDryRun() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dryRun
}
