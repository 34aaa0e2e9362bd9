// drawdown.go implements the multi-level equity-drawdown protector.
//
// The level is a pure function of drawdown = (peak − equity) / peak against
// the configured thresholds; a drawdown exactly equal to a threshold
// activates the higher level. Negative equity forces EMERGENCY immediately.
// Entering CRITICAL or EMERGENCY arms a recovery cooldown during which
// sizing is further reduced and new positions stay blocked; recovery ends
// on a new equity peak or on cooldown expiry, whichever comes first.
//
// The liquidation plan is advisory — the protector never submits orders.
package risk

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"riskcore/internal/config"
	"riskcore/pkg/types"
)

// DrawdownLevel orders protection severity from NORMAL to EMERGENCY.
type DrawdownLevel int

const (
	LevelNormal DrawdownLevel = iota
	LevelCaution
	LevelWarning
	LevelCritical
	LevelEmergency
)

func (l DrawdownLevel) String() string {
	switch l {
	case LevelNormal:
		return "NORMAL"
	case LevelCaution:
		return "CAUTION"
	case LevelWarning:
		return "WARNING"
	case LevelCritical:
		return "CRITICAL"
	case LevelEmergency:
		return "EMERGENCY"
	}
	return "UNKNOWN"
}

// SizingMultiplier returns the per-level multiplier applied to position size.
func (l DrawdownLevel) SizingMultiplier() decimal.Decimal {
	switch l {
	case LevelNormal:
		return decimal.NewFromInt(1)
	case LevelCaution, LevelWarning:
		return decimal.NewFromFloat(0.5)
	case LevelCritical:
		return decimal.NewFromFloat(0.25)
	default:
		return decimal.Zero
	}
}

// DrawdownStatus is the protector's current posture.
type DrawdownStatus struct {
	Level               DrawdownLevel
	Drawdown            decimal.Decimal // fraction of peak
	TradingAllowed      bool
	NewPositionsAllowed bool
	SizingMultiplier    decimal.Decimal
	InRecovery          bool
}

// DrawdownProtector tracks equity against its peak and escalates protection
// levels.
type DrawdownProtector struct {
	mu sync.Mutex

	caution   decimal.Decimal
	warning   decimal.Decimal
	critical  decimal.Decimal
	emergency decimal.Decimal

	recoveryCooldown time.Duration
	reducedSizing    decimal.Decimal
	preserveWinners  bool

	peak         decimal.Decimal
	current      decimal.Decimal
	level        DrawdownLevel
	recoveryEnds time.Time
	initialized  bool

	onLevelChange func(old, new DrawdownLevel)

	logger *slog.Logger
	now    func() time.Time
}

// NewDrawdownProtector builds a protector from config.
func NewDrawdownProtector(cfg config.DrawdownConfig, logger *slog.Logger) *DrawdownProtector {
	return &DrawdownProtector{
		caution:          decimal.NewFromFloat(cfg.CautionPct),
		warning:          decimal.NewFromFloat(cfg.WarningPct),
		critical:         decimal.NewFromFloat(cfg.CriticalPct),
		emergency:        decimal.NewFromFloat(cfg.EmergencyPct),
		recoveryCooldown: time.Duration(cfg.RecoveryCooldownHours * float64(time.Hour)),
		reducedSizing:    decimal.NewFromFloat(cfg.ReducedSizingPct),
		preserveWinners:  cfg.PreserveWinners,
		logger:           logger.With("component", "drawdown"),
		now:              time.Now,
	}
}

// OnLevelChange registers a notification callback. Must be set before the
// first UpdateEquity.
func (p *DrawdownProtector) OnLevelChange(fn func(old, new DrawdownLevel)) {
	p.onLevelChange = fn
}

// levelFor maps a drawdown fraction to a level. Equality activates the
// higher level.
func (p *DrawdownProtector) levelFor(drawdown decimal.Decimal, negativeEquity bool) DrawdownLevel {
	if negativeEquity {
		return LevelEmergency
	}
	switch {
	case drawdown.GreaterThanOrEqual(p.emergency):
		return LevelEmergency
	case drawdown.GreaterThanOrEqual(p.critical):
		return LevelCritical
	case drawdown.GreaterThanOrEqual(p.warning):
		return LevelWarning
	case drawdown.GreaterThanOrEqual(p.caution):
		return LevelCaution
	default:
		return LevelNormal
	}
}

// UpdateEquity records a new equity observation and returns the resulting
// status. lossLimitBreached promotes the level to at least WARNING even when
// percentage drawdown is lower.
func (p *DrawdownProtector) UpdateEquity(equity decimal.Decimal, lossLimitBreached bool) DrawdownStatus {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.initialized {
		p.peak = equity
		p.initialized = true
	}
	p.current = equity

	newPeak := false
	if equity.GreaterThan(p.peak) {
		p.peak = equity
		newPeak = true
	}

	drawdown := decimal.Zero
	if p.peak.Sign() > 0 {
		drawdown = p.peak.Sub(equity).Div(p.peak)
	}

	level := p.levelFor(drawdown, equity.Sign() < 0)
	if lossLimitBreached && level < LevelWarning {
		level = LevelWarning
	}

	if level != p.level {
		old := p.level
		p.level = level
		if level >= LevelCritical && level > old {
			p.recoveryEnds = p.now().Add(p.recoveryCooldown)
			p.logger.Error("drawdown level escalated",
				"old", old.String(), "new", level.String(),
				"drawdown", drawdown.StringFixed(4),
				"recovery_until", p.recoveryEnds)
		} else {
			p.logger.Warn("drawdown level changed",
				"old", old.String(), "new", level.String(),
				"drawdown", drawdown.StringFixed(4))
		}
		if p.onLevelChange != nil {
			p.onLevelChange(old, level)
		}
	}

	// Recovery exits on a new equity peak or cooldown expiry.
	if newPeak {
		p.recoveryEnds = time.Time{}
	}

	return p.statusLocked(drawdown)
}

// Status returns the current posture without a new equity observation.
func (p *DrawdownProtector) Status() DrawdownStatus {
	p.mu.Lock()
	defer p.mu.Unlock()

	drawdown := decimal.Zero
	if p.initialized && p.peak.Sign() > 0 {
		drawdown = p.peak.Sub(p.current).Div(p.peak)
	}
	return p.statusLocked(drawdown)
}

// statusLocked assembles the status. Caller holds mu.
func (p *DrawdownProtector) statusLocked(drawdown decimal.Decimal) DrawdownStatus {
	inRecovery := !p.recoveryEnds.IsZero() && p.now().Before(p.recoveryEnds)
	if !inRecovery {
		p.recoveryEnds = time.Time{}
	}

	mult := p.level.SizingMultiplier()
	if inRecovery && p.reducedSizing.Sign() > 0 {
		mult = mult.Mul(p.reducedSizing)
	}

	return DrawdownStatus{
		Level:               p.level,
		Drawdown:            drawdown,
		TradingAllowed:      p.level != LevelEmergency,
		NewPositionsAllowed: p.level < LevelWarning && !inRecovery,
		SizingMultiplier:    mult,
		InRecovery:          inRecovery,
	}
}

// LiquidationPlan builds the advisory close orders for the current level:
// WARNING and CRITICAL reduce every targeted position by 50%, EMERGENCY
// closes 100%. Losers exit first (most negative unrealized P&L), ties broken
// by absolute market value descending. With preserve_winners set, positions
// in profit are skipped below EMERGENCY. Lower levels return nil.
func (p *DrawdownProtector) LiquidationPlan(positions []types.Position) []types.OrderIntent {
	p.mu.Lock()
	level := p.level
	preserve := p.preserveWinners
	p.mu.Unlock()

	if level < LevelWarning {
		return nil
	}

	fraction := decimal.NewFromFloat(0.5)
	if level == LevelEmergency {
		fraction = decimal.NewFromInt(1)
	}

	targets := make([]types.Position, 0, len(positions))
	for _, pos := range positions {
		if pos.Qty.Sign() == 0 {
			continue
		}
		if preserve && level < LevelEmergency && pos.UnrealizedPnL.Sign() > 0 {
			continue
		}
		targets = append(targets, pos)
	}

	sort.Slice(targets, func(i, j int) bool {
		if !targets[i].UnrealizedPnL.Equal(targets[j].UnrealizedPnL) {
			return targets[i].UnrealizedPnL.LessThan(targets[j].UnrealizedPnL)
		}
		return targets[i].AbsMarketValue().GreaterThan(targets[j].AbsMarketValue())
	})

	orders := make([]types.OrderIntent, 0, len(targets))
	for _, pos := range targets {
		qty := pos.Qty.Abs().Mul(fraction).Ceil().IntPart()
		if qty < 1 {
			continue
		}
		orders = append(orders, types.OrderIntent{
			Symbol:      pos.Symbol,
			Side:        pos.Side().Opposite(),
			Qty:         qty,
			Type:        types.Market,
			TimeInForce: types.TIFDay,
		})
	}

	if len(orders) > 0 {
		p.logger.Warn("liquidation plan generated",
			"level", level.String(), "orders", len(orders),
			"fraction", fraction.String())
	}
	return orders
}
