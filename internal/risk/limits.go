// Package risk implements the layered pre-trade risk system: the check
// pipeline, circuit breaker, kill switch, drawdown protector, position
// sizer, correlation caps, approval workflow, and P&L tracking. The
// Manager in manager.go is the single entry point for evaluating a trade.
//
// All monetary values are decimals. Config carries float64 for YAML
// friendliness; Limits converts once at startup and is treated as an
// immutable snapshot afterwards.
package risk

import (
	"strings"

	"github.com/shopspring/decimal"

	"riskcore/internal/config"
	"riskcore/pkg/types"
)

// Limits is the immutable snapshot of numeric ceilings the engine enforces.
type Limits struct {
	MaxOrderNotional    decimal.Decimal
	MaxOrderShares      int64
	MaxPositionShares   int64
	MaxPositionNotional decimal.Decimal
	MaxTotalExposure    decimal.Decimal
	MaxConcentrationPct decimal.Decimal

	MaxDailyLoss   decimal.Decimal
	MaxWeeklyLoss  decimal.Decimal
	MaxDrawdownPct decimal.Decimal

	DailySpendLimit   decimal.Decimal
	WeeklySpendLimit  decimal.Decimal
	MonthlySpendLimit decimal.Decimal

	ApprovalNotionalThreshold decimal.Decimal
	ApprovalLossThreshold     decimal.Decimal

	// allowlist empty = disabled; blocklist always active
	allowed map[string]bool
	blocked map[string]bool
}

// LimitsFromConfig converts the float config into a decimal snapshot.
func LimitsFromConfig(cfg config.RiskConfig) Limits {
	l := Limits{
		MaxOrderNotional:    decimal.NewFromFloat(cfg.MaxOrderNotional),
		MaxOrderShares:      cfg.MaxOrderShares,
		MaxPositionShares:   cfg.MaxPositionShares,
		MaxPositionNotional: decimal.NewFromFloat(cfg.MaxPositionNotional),
		MaxTotalExposure:    decimal.NewFromFloat(cfg.MaxTotalExposure),
		MaxConcentrationPct: decimal.NewFromFloat(cfg.MaxConcentrationPct),

		MaxDailyLoss:   decimal.NewFromFloat(cfg.MaxDailyLoss),
		MaxWeeklyLoss:  decimal.NewFromFloat(cfg.MaxWeeklyLoss),
		MaxDrawdownPct: decimal.NewFromFloat(cfg.MaxDrawdownPct),

		DailySpendLimit:   decimal.NewFromFloat(cfg.DailySpendLimit),
		WeeklySpendLimit:  decimal.NewFromFloat(cfg.WeeklySpendLimit),
		MonthlySpendLimit: decimal.NewFromFloat(cfg.MonthlySpendLimit),

		ApprovalNotionalThreshold: decimal.NewFromFloat(cfg.ApprovalNotionalThreshold),
		ApprovalLossThreshold:     decimal.NewFromFloat(cfg.ApprovalLossThreshold),

		allowed: make(map[string]bool, len(cfg.AllowedSymbols)),
		blocked: make(map[string]bool, len(cfg.BlockedSymbols)),
	}
	for _, s := range cfg.AllowedSymbols {
		l.allowed[strings.ToUpper(strings.TrimSpace(s))] = true
	}
	for _, s := range cfg.BlockedSymbols {
		l.blocked[strings.ToUpper(strings.TrimSpace(s))] = true
	}
	return l
}

// SymbolAllowed applies the blocklist and, when non-empty, the allowlist.
// The empty string return means allowed; otherwise it is the rejection code.
func (l Limits) SymbolAllowed(symbol string) string {
	sym := strings.ToUpper(symbol)
	if l.blocked[sym] {
		return types.CodeSymbolBlocked
	}
	if len(l.allowed) > 0 && !l.allowed[sym] {
		return types.CodeSymbolNotAllowed
	}
	return ""
}
