// pnl.go implements the P&L tracker and its alert catalog.
//
// Alerts are pure data; delivery is the caller's concern. The tracker
// guarantees cooldown spacing per (alert type, scope) pair so a position
// hovering around a threshold does not spam. Streak counters are signed:
// positive runs of wins, negative runs of losses, reset to ±1 on a sign
// change. Velocity is |equity change| over the sample window relative to
// the equity at the window start.
package risk

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"riskcore/internal/config"
	"riskcore/pkg/types"
)

type equitySample struct {
	at     time.Time
	equity decimal.Decimal
}

// recovery milestones as fractions of the drawdown depth regained.
var recoveryMilestones = []int{25, 50, 75, 100}

// PnLTracker observes equity, positions, and trade results and emits
// threshold alerts.
type PnLTracker struct {
	mu sync.Mutex

	dailyProfitTarget decimal.Decimal
	dailyLossLimit    decimal.Decimal
	positionProfitPct decimal.Decimal
	positionLossPct   decimal.Decimal
	positionProfitUSD decimal.Decimal
	positionLossUSD   decimal.Decimal
	losingStreakLen   int
	winningStreakLen  int
	velocityThreshold decimal.Decimal
	velocityWindow    time.Duration
	drawdownWarnPct   decimal.Decimal
	cooldown          time.Duration

	equity        decimal.Decimal
	peak          decimal.Decimal
	trough        decimal.Decimal // lowest equity since the current peak
	dailyBaseline decimal.Decimal
	day           time.Time
	wasDown       bool
	initialized   bool

	streak    int
	samples   []equitySample
	lastFired map[string]time.Time // key: type|scope
	milestone map[int]bool         // recovery milestones fired this episode

	logger *slog.Logger
	now    func() time.Time
}

// NewPnLTracker builds the tracker from config. Zero-valued thresholds
// disable their alerts.
func NewPnLTracker(cfg config.PnLConfig, logger *slog.Logger) *PnLTracker {
	return &PnLTracker{
		dailyProfitTarget: decimal.NewFromFloat(cfg.DailyProfitTarget),
		dailyLossLimit:    decimal.NewFromFloat(cfg.DailyLossLimit),
		positionProfitPct: decimal.NewFromFloat(cfg.PositionProfitPct),
		positionLossPct:   decimal.NewFromFloat(cfg.PositionLossPct),
		positionProfitUSD: decimal.NewFromFloat(cfg.PositionProfitUSD),
		positionLossUSD:   decimal.NewFromFloat(cfg.PositionLossUSD),
		losingStreakLen:   cfg.LosingStreak,
		winningStreakLen:  cfg.WinningStreak,
		velocityThreshold: decimal.NewFromFloat(cfg.VelocityThresholdPct),
		velocityWindow:    time.Duration(cfg.VelocityWindowMinutes) * time.Minute,
		drawdownWarnPct:   decimal.NewFromFloat(cfg.DrawdownWarningPct),
		cooldown:          time.Duration(cfg.CooldownMinutes) * time.Minute,
		lastFired:         make(map[string]time.Time),
		milestone:         make(map[int]bool),
		logger:            logger.With("component", "pnl"),
		now:               time.Now,
	}
}

// UpdateEquity records an equity observation and returns any portfolio-level
// alerts it triggers.
func (t *PnLTracker) UpdateEquity(equity decimal.Decimal) []types.Alert {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	t.rollDayLocked(now, equity)

	prevPeak := t.peak
	t.equity = equity
	if equity.GreaterThan(t.peak) {
		t.peak = equity
	}
	if equity.LessThan(t.trough) {
		t.trough = equity
	}

	t.samples = append(t.samples, equitySample{at: now, equity: equity})
	t.pruneSamplesLocked(now)

	var alerts []types.Alert

	dailyPnL := equity.Sub(t.dailyBaseline)
	if dailyPnL.Sign() < 0 {
		t.wasDown = true
	}

	if t.dailyProfitTarget.Sign() > 0 && dailyPnL.GreaterThanOrEqual(t.dailyProfitTarget) {
		alerts = t.fireLocked(alerts, now, types.Alert{
			Type:      types.AlertDailyProfitTarget,
			Priority:  types.PriorityMedium,
			Value:     dailyPnL,
			Threshold: t.dailyProfitTarget,
			Message: fmt.Sprintf("daily P&L %s reached profit target %s",
				dailyPnL.StringFixed(2), t.dailyProfitTarget.StringFixed(2)),
		})
	}
	if t.dailyLossLimit.Sign() > 0 && dailyPnL.Neg().GreaterThanOrEqual(t.dailyLossLimit) {
		alerts = t.fireLocked(alerts, now, types.Alert{
			Type:      types.AlertDailyLossLimit,
			Priority:  types.PriorityCritical,
			Value:     dailyPnL,
			Threshold: t.dailyLossLimit.Neg(),
			Message: fmt.Sprintf("daily loss %s breached limit %s",
				dailyPnL.Neg().StringFixed(2), t.dailyLossLimit.StringFixed(2)),
		})
	}

	if t.drawdownWarnPct.Sign() > 0 && t.peak.Sign() > 0 {
		drawdown := t.peak.Sub(equity).Div(t.peak)
		if drawdown.GreaterThanOrEqual(t.drawdownWarnPct) {
			alerts = t.fireLocked(alerts, now, types.Alert{
				Type:      types.AlertDrawdownWarning,
				Priority:  types.PriorityHigh,
				Value:     drawdown,
				Threshold: t.drawdownWarnPct,
				Message: fmt.Sprintf("equity %s%% below peak %s",
					drawdown.Mul(decimal.NewFromInt(100)).StringFixed(1),
					t.peak.StringFixed(2)),
			})
		}
	}

	alerts = t.checkVelocityLocked(alerts, now, equity)
	alerts = t.checkRecoveryLocked(alerts, now, equity)

	if equity.GreaterThan(prevPeak) && t.initialized {
		alerts = t.fireLocked(alerts, now, types.Alert{
			Type:      types.AlertNewEquityHigh,
			Priority:  types.PriorityLow,
			Value:     equity,
			Threshold: prevPeak,
			Message:   fmt.Sprintf("new equity high %s", equity.StringFixed(2)),
		})
		// A new peak starts a fresh drawdown episode.
		t.trough = equity
		t.milestone = make(map[int]bool)
	}

	if t.wasDown && dailyPnL.Sign() >= 0 {
		alerts = t.fireLocked(alerts, now, types.Alert{
			Type:     types.AlertBreakeven,
			Priority: types.PriorityLow,
			Value:    dailyPnL,
			Message:  "recovered to breakeven on the day",
		})
		t.wasDown = false
	}

	t.initialized = true
	return alerts
}

// UpdatePosition checks a single position against the per-position
// thresholds and returns any alerts.
func (t *PnLTracker) UpdatePosition(pos types.Position) []types.Alert {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	var alerts []types.Alert

	pnl := pos.UnrealizedPnL
	pnlPct := decimal.Zero
	if pos.CostBasis.Sign() != 0 {
		pnlPct = pnl.Div(pos.CostBasis.Abs())
	}

	if t.positionProfitPct.Sign() > 0 && pnlPct.GreaterThanOrEqual(t.positionProfitPct) {
		alerts = t.fireLocked(alerts, now, types.Alert{
			Type:      types.AlertPositionProfitPct,
			Priority:  types.PriorityMedium,
			Symbol:    pos.Symbol,
			Value:     pnlPct,
			Threshold: t.positionProfitPct,
			Message: fmt.Sprintf("%s up %s%% (threshold %s%%)", pos.Symbol,
				pnlPct.Mul(decimal.NewFromInt(100)).StringFixed(1),
				t.positionProfitPct.Mul(decimal.NewFromInt(100)).StringFixed(1)),
		})
	}
	if t.positionLossPct.Sign() > 0 && pnlPct.Neg().GreaterThanOrEqual(t.positionLossPct) {
		alerts = t.fireLocked(alerts, now, types.Alert{
			Type:      types.AlertPositionLossPct,
			Priority:  types.PriorityHigh,
			Symbol:    pos.Symbol,
			Value:     pnlPct,
			Threshold: t.positionLossPct.Neg(),
			Message: fmt.Sprintf("%s down %s%% (threshold %s%%)", pos.Symbol,
				pnlPct.Neg().Mul(decimal.NewFromInt(100)).StringFixed(1),
				t.positionLossPct.Mul(decimal.NewFromInt(100)).StringFixed(1)),
		})
	}
	if t.positionProfitUSD.Sign() > 0 && pnl.GreaterThanOrEqual(t.positionProfitUSD) {
		alerts = t.fireLocked(alerts, now, types.Alert{
			Type:      types.AlertPositionProfitUSD,
			Priority:  types.PriorityMedium,
			Symbol:    pos.Symbol,
			Value:     pnl,
			Threshold: t.positionProfitUSD,
			Message: fmt.Sprintf("%s unrealized profit %s", pos.Symbol,
				pnl.StringFixed(2)),
		})
	}
	if t.positionLossUSD.Sign() > 0 && pnl.Neg().GreaterThanOrEqual(t.positionLossUSD) {
		alerts = t.fireLocked(alerts, now, types.Alert{
			Type:      types.AlertPositionLossUSD,
			Priority:  types.PriorityHigh,
			Symbol:    pos.Symbol,
			Value:     pnl,
			Threshold: t.positionLossUSD.Neg(),
			Message: fmt.Sprintf("%s unrealized loss %s", pos.Symbol,
				pnl.Neg().StringFixed(2)),
		})
	}
	return alerts
}

// RecordTrade records a realized trade result and returns any streak alerts.
// A zero P&L leaves the streak untouched.
func (t *PnLTracker) RecordTrade(symbol string, realizedPnL decimal.Decimal) []types.Alert {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch {
	case realizedPnL.Sign() > 0:
		if t.streak > 0 {
			t.streak++
		} else {
			t.streak = 1
		}
	case realizedPnL.Sign() < 0:
		if t.streak < 0 {
			t.streak--
		} else {
			t.streak = -1
		}
	default:
		return nil
	}

	now := t.now()
	var alerts []types.Alert
	if t.losingStreakLen > 0 && t.streak <= -t.losingStreakLen {
		alerts = t.fireLocked(alerts, now, types.Alert{
			Type:      types.AlertLosingStreak,
			Priority:  types.PriorityHigh,
			Value:     decimal.NewFromInt(int64(-t.streak)),
			Threshold: decimal.NewFromInt(int64(t.losingStreakLen)),
			Message:   fmt.Sprintf("%d consecutive losing trades", -t.streak),
		})
	}
	if t.winningStreakLen > 0 && t.streak >= t.winningStreakLen {
		alerts = t.fireLocked(alerts, now, types.Alert{
			Type:      types.AlertWinningStreak,
			Priority:  types.PriorityLow,
			Value:     decimal.NewFromInt(int64(t.streak)),
			Threshold: decimal.NewFromInt(int64(t.winningStreakLen)),
			Message:   fmt.Sprintf("%d consecutive winning trades", t.streak),
		})
	}
	return alerts
}

// Streak returns the signed streak counter.
func (t *PnLTracker) Streak() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.streak
}

// DailyPnL returns equity change since the daily baseline.
func (t *PnLTracker) DailyPnL() decimal.Decimal {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.initialized {
		return decimal.Zero
	}
	return t.equity.Sub(t.dailyBaseline)
}

// rollDayLocked resets the daily baseline at the UTC day boundary. The first
// observation seeds baseline, peak, and trough.
func (t *PnLTracker) rollDayLocked(now time.Time, equity decimal.Decimal) {
	day := startOfDay(now)
	if !t.initialized {
		t.dailyBaseline = equity
		t.peak = equity
		t.trough = equity
		t.day = day
		return
	}
	if day.After(t.day) {
		t.dailyBaseline = t.equity
		t.day = day
		t.wasDown = false
	}
}

func (t *PnLTracker) pruneSamplesLocked(now time.Time) {
	cutoff := now.Add(-t.velocityWindow)
	i := 0
	for i < len(t.samples) && t.samples[i].at.Before(cutoff) {
		i++
	}
	// Keep one sample at or before the cutoff as the window anchor.
	if i > 0 {
		i--
	}
	t.samples = t.samples[i:]
}

// checkVelocityLocked compares the absolute equity move over the window
// against the threshold, relative to the equity at the window start.
func (t *PnLTracker) checkVelocityLocked(alerts []types.Alert, now time.Time, equity decimal.Decimal) []types.Alert {
	if t.velocityThreshold.Sign() <= 0 || len(t.samples) < 2 {
		return alerts
	}
	start := t.samples[0]
	if start.equity.Sign() <= 0 {
		return alerts
	}
	velocity := equity.Sub(start.equity).Abs().Div(start.equity)
	if velocity.LessThan(t.velocityThreshold) {
		return alerts
	}
	return t.fireLocked(alerts, now, types.Alert{
		Type:      types.AlertPnLVelocity,
		Priority:  types.PriorityHigh,
		Value:     velocity,
		Threshold: t.velocityThreshold,
		Message: fmt.Sprintf("equity moved %s%% in %s",
			velocity.Mul(decimal.NewFromInt(100)).StringFixed(2),
			t.velocityWindow),
	})
}

// checkRecoveryLocked fires the 25/50/75/100% milestones as equity climbs
// back from the trough toward the peak. Each milestone fires once per
// drawdown episode.
func (t *PnLTracker) checkRecoveryLocked(alerts []types.Alert, now time.Time, equity decimal.Decimal) []types.Alert {
	depth := t.peak.Sub(t.trough)
	if depth.Sign() <= 0 || !t.initialized {
		return alerts
	}
	recovered := equity.Sub(t.trough).Div(depth).Mul(decimal.NewFromInt(100))
	for _, m := range recoveryMilestones {
		if t.milestone[m] || recovered.LessThan(decimal.NewFromInt(int64(m))) {
			continue
		}
		t.milestone[m] = true
		alerts = t.fireLocked(alerts, now, types.Alert{
			Type:      types.AlertRecoveryMilestone,
			Priority:  types.PriorityLow,
			Value:     recovered,
			Threshold: decimal.NewFromInt(int64(m)),
			Message:   fmt.Sprintf("recovered %d%% of drawdown", m),
		})
	}
	return alerts
}

// fireLocked applies the cooldown and, if clear, stamps and appends the
// alert. Caller holds mu.
func (t *PnLTracker) fireLocked(alerts []types.Alert, now time.Time, a types.Alert) []types.Alert {
	key := string(a.Type) + "|" + a.Scope()
	if last, ok := t.lastFired[key]; ok && now.Sub(last) < t.cooldown {
		return alerts
	}
	t.lastFired[key] = now

	a.ID = uuid.NewString()
	a.Timestamp = now

	t.logger.Info("alert",
		"type", a.Type, "priority", a.Priority, "scope", a.Scope(),
		"value", a.Value.String(), "message", a.Message)
	return append(alerts, a)
}
