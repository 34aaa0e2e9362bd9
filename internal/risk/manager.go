// manager.go ties the risk components into a single trade evaluator.
//
// Evaluation order: the drawdown protector sets the posture, the sizer
// computes raw shares, the drawdown multiplier scales them, the correlation
// manager clamps to exposure headroom, and finally the engine runs the
// pre-trade pipeline on the resulting order. The recommended size travels
// with the decision so callers submit exactly what was evaluated.
package risk

import (
	"log/slog"

	"github.com/shopspring/decimal"

	"riskcore/internal/config"
	"riskcore/pkg/types"
)

// TradeEvaluation is the combined output of a full risk evaluation.
type TradeEvaluation struct {
	Decision         types.RiskDecision
	RecommendedQty   int64
	SizingMultiplier decimal.Decimal
	DrawdownLevel    DrawdownLevel
	Warnings         []string
}

// Manager owns every risk component and exposes one evaluation entry point.
type Manager struct {
	engine      *Engine
	sizer       *PositionSizer
	protector   *DrawdownProtector
	correlation *CorrelationManager
	pnl         *PnLTracker
	approval    *ApprovalWorkflow
	compliance  *ComplianceGuard
	logger      *slog.Logger
}

// NewManager wires the full risk stack from config.
func NewManager(cfg config.Config, logger *slog.Logger) *Manager {
	return &Manager{
		engine:      NewEngine(cfg, logger),
		sizer:       NewPositionSizer(cfg.Sizing, logger),
		protector:   NewDrawdownProtector(cfg.Drawdown, logger),
		correlation: NewCorrelationManager(cfg.Correlation),
		pnl:         NewPnLTracker(cfg.PnL, logger),
		approval:    NewApprovalWorkflow(cfg.Approval, logger),
		compliance:  NewComplianceGuard(cfg.Compliance),
		logger:      logger.With("component", "risk_manager"),
	}
}

// Component accessors. Each is safe for concurrent use.

func (m *Manager) Engine() *Engine                  { return m.engine }
func (m *Manager) Sizer() *PositionSizer            { return m.sizer }
func (m *Manager) Protector() *DrawdownProtector    { return m.protector }
func (m *Manager) Correlation() *CorrelationManager { return m.correlation }
func (m *Manager) PnL() *PnLTracker                 { return m.pnl }
func (m *Manager) Approval() *ApprovalWorkflow      { return m.approval }
func (m *Manager) Compliance() *ComplianceGuard     { return m.compliance }
func (m *Manager) SetKillSwitch(on bool)            { m.engine.SetKillSwitch(on) }
func (m *Manager) KillSwitchActive() bool           { return m.engine.KillSwitchActive() }

// UpdateEquity fans an equity observation out to the loss tracker, drawdown
// protector, and P&L tracker, returning any alerts the observation triggers.
func (m *Manager) UpdateEquity(equity decimal.Decimal) ([]types.Alert, DrawdownStatus) {
	m.engine.UpdateEquity(equity)
	limits := m.engine.Limits()
	lossBreached := limits.MaxDailyLoss.Sign() > 0 &&
		m.engine.DailyPnL().Neg().GreaterThan(limits.MaxDailyLoss)
	status := m.protector.UpdateEquity(equity, lossBreached)
	alerts := m.pnl.UpdateEquity(equity)
	return alerts, status
}

// EvaluateTrade sizes and risk-checks a prospective entry in one pass.
// A zero recommended quantity with a REJECT decision means the trade must
// not happen in any size.
func (m *Manager) EvaluateTrade(
	symbol string,
	side types.Side,
	entry, stopLoss decimal.Decimal,
	stats TradeStats,
	positions []types.Position,
	equity decimal.Decimal,
) TradeEvaluation {
	eval := TradeEvaluation{}

	status := m.protector.Status()
	eval.DrawdownLevel = status.Level
	eval.SizingMultiplier = status.SizingMultiplier

	if !status.TradingAllowed {
		eval.Decision = types.RiskDecision{
			Action: types.ActionReject,
			Failed: []string{types.CodeDrawdownLimit + ": trading halted at " + status.Level.String()},
		}
		return eval
	}
	if !status.NewPositionsAllowed && !m.hasPosition(symbol, positions) {
		eval.Decision = types.RiskDecision{
			Action: types.ActionReject,
			Failed: []string{types.CodeDrawdownLimit + ": new positions blocked at " + status.Level.String()},
		}
		return eval
	}

	size := m.sizer.Size(equity, entry, stopLoss, stats)
	eval.Warnings = append(eval.Warnings, size.Warnings...)
	if size.Shares == 0 {
		eval.Decision = types.RiskDecision{Action: types.ActionReject,
			Failed: []string{"NO_EDGE: sizer recommends zero shares"}}
		return eval
	}

	qty := decimal.NewFromInt(size.Shares).Mul(status.SizingMultiplier).Floor().IntPart()
	if qty < 1 {
		eval.Decision = types.RiskDecision{Action: types.ActionReject,
			Failed: []string{types.CodeDrawdownLimit + ": sizing multiplier leaves no size"}}
		return eval
	}

	// Clamp to correlation headroom; shrink rather than reject when some
	// size still fits.
	if side == types.Buy {
		headroom := m.correlation.MaxPositionSize(symbol, positions, equity)
		maxQty := decimal.Zero
		if entry.Sign() > 0 {
			maxQty = headroom.Div(entry).Floor()
		}
		if maxQty.Sign() <= 0 {
			eval.Decision = types.RiskDecision{Action: types.ActionReject,
				Failed: []string{types.CodeConcentrationExceeded + ": no exposure headroom for " + symbol}}
			return eval
		}
		if decimal.NewFromInt(qty).GreaterThan(maxQty) {
			qty = maxQty.IntPart()
			eval.Warnings = append(eval.Warnings, "size reduced to correlation headroom")
		}

		check := m.correlation.CheckPosition(symbol, entry.Mul(decimal.NewFromInt(qty)), positions, equity)
		eval.Warnings = append(eval.Warnings, check.Warnings...)
		if !check.Allowed {
			eval.Decision = types.RiskDecision{Action: types.ActionReject,
				Failed: []string{types.CodeConcentrationExceeded + ": " + check.Reason}}
			return eval
		}
	}

	intent := types.OrderIntent{
		Symbol:      symbol,
		Side:        side,
		Qty:         qty,
		Type:        types.Market,
		TimeInForce: types.TIFDay,
	}
	eval.Decision = m.engine.CheckOrder(intent, positions, entry, equity)
	eval.Decision.Warnings = append(eval.Decision.Warnings, eval.Warnings...)
	if eval.Decision.Action != types.ActionReject {
		eval.RecommendedQty = qty
	}

	m.logger.Info("trade evaluated",
		"symbol", symbol, "side", side, "qty", qty,
		"action", eval.Decision.Action, "level", status.Level.String())
	return eval
}

func (m *Manager) hasPosition(symbol string, positions []types.Position) bool {
	for _, p := range positions {
		if p.Symbol == symbol && p.Qty.Sign() != 0 {
			return true
		}
	}
	return false
}
