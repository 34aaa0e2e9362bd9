// compliance.go implements the prediction-venue trading controls: category
// and ticker gating, per-market and per-order contract ceilings, an open
// position cap, category exposure limits, and a minimum orderbook depth for
// entries. Category matching is case-insensitive.
package risk

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"riskcore/internal/config"
	"riskcore/pkg/types"
)

// ComplianceCheck is the result of a prediction-venue control evaluation.
type ComplianceCheck struct {
	Allowed  bool
	Reason   string
	Warnings []string
}

func complianceDenied(format string, args ...any) ComplianceCheck {
	return ComplianceCheck{Reason: fmt.Sprintf(format, args...)}
}

// ComplianceGuard gates prediction-market activity.
type ComplianceGuard struct {
	blockedCategories map[string]bool
	allowedCategories map[string]bool // empty = all allowed
	blockedTickers    map[string]bool

	maxContractsPerMarket int64
	maxOrderContracts     int64
	maxOpenPositions      int
	maxCategoryExposure   decimal.Decimal
	minOrderbookDepth     int
}

// NewComplianceGuard builds the guard from config.
func NewComplianceGuard(cfg config.ComplianceConfig) *ComplianceGuard {
	g := &ComplianceGuard{
		blockedCategories:     make(map[string]bool),
		allowedCategories:     make(map[string]bool),
		blockedTickers:        make(map[string]bool),
		maxContractsPerMarket: cfg.MaxContractsPerMarket,
		maxOrderContracts:     cfg.MaxOrderContracts,
		maxOpenPositions:      cfg.MaxOpenPositions,
		maxCategoryExposure:   decimal.NewFromFloat(cfg.MaxCategoryExposurePct),
		minOrderbookDepth:     cfg.MinOrderbookDepth,
	}
	for _, c := range cfg.BlockedCategories {
		g.blockedCategories[strings.ToLower(c)] = true
	}
	for _, c := range cfg.AllowedCategories {
		g.allowedCategories[strings.ToLower(c)] = true
	}
	for _, t := range cfg.BlockedTickers {
		g.blockedTickers[strings.ToUpper(t)] = true
	}
	return g
}

// CategoryAllowed checks a market category against the block and allow lists.
// Blocklist wins; the allowlist only applies when non-empty.
func (g *ComplianceGuard) CategoryAllowed(category string) bool {
	c := strings.ToLower(category)
	if g.blockedCategories[c] {
		return false
	}
	if len(g.allowedCategories) > 0 && !g.allowedCategories[c] {
		return false
	}
	return true
}

// CheckMarket gates market discovery: blocked tickers and categories are
// filtered before any pricing work happens.
func (g *ComplianceGuard) CheckMarket(market types.PredictionMarket) ComplianceCheck {
	if g.blockedTickers[strings.ToUpper(market.Ticker)] {
		return complianceDenied("ticker %s is blocked", market.Ticker)
	}
	if !g.CategoryAllowed(market.Category) {
		return complianceDenied("category %q is not tradable", market.Category)
	}
	return ComplianceCheck{Allowed: true}
}

// CheckOrder evaluates an order against the full control set. bookDepth is
// the resting contract count on the order's side of the book; pass a
// negative value to skip the depth check when no orderbook is available.
func (g *ComplianceGuard) CheckOrder(
	order types.PredictionOrder,
	market types.PredictionMarket,
	positions []types.PredictionPosition,
	equity decimal.Decimal,
	bookDepth int,
) ComplianceCheck {
	if mc := g.CheckMarket(market); !mc.Allowed {
		return mc
	}

	if g.maxOrderContracts > 0 && order.Count > g.maxOrderContracts {
		return complianceDenied("order %d contracts > limit %d",
			order.Count, g.maxOrderContracts)
	}

	var held int64
	openPositions := 0
	categoryExposure := decimal.Zero
	hasPosition := false
	category := strings.ToLower(market.Category)
	for _, pos := range positions {
		if pos.Count == 0 {
			continue
		}
		openPositions++
		if pos.Ticker == order.Ticker {
			held += pos.Count
			hasPosition = true
		}
		if strings.ToLower(pos.Category) == category {
			categoryExposure = categoryExposure.Add(pos.MarketValueDollars())
		}
	}

	if order.Action == types.Buy {
		if g.maxContractsPerMarket > 0 && held+order.Count > g.maxContractsPerMarket {
			return complianceDenied("position would reach %d contracts in %s, limit %d",
				held+order.Count, order.Ticker, g.maxContractsPerMarket)
		}
		if g.maxOpenPositions > 0 && !hasPosition && openPositions >= g.maxOpenPositions {
			return complianceDenied("already holding %d open positions, limit %d",
				openPositions, g.maxOpenPositions)
		}
		if g.maxCategoryExposure.Sign() > 0 && equity.Sign() > 0 {
			after := categoryExposure.Add(order.NotionalDollars()).Div(equity)
			if after.GreaterThan(g.maxCategoryExposure) {
				return complianceDenied("category %q exposure %s > limit %s",
					market.Category, after.StringFixed(4),
					g.maxCategoryExposure.StringFixed(4))
			}
		}
		if g.minOrderbookDepth > 0 && bookDepth >= 0 && bookDepth < g.minOrderbookDepth {
			return complianceDenied("orderbook depth %d contracts < minimum %d",
				bookDepth, g.minOrderbookDepth)
		}
	}

	check := ComplianceCheck{Allowed: true}
	if g.maxContractsPerMarket > 0 && order.Action == types.Buy {
		after := held + order.Count
		if after*10 >= g.maxContractsPerMarket*8 {
			check.Warnings = append(check.Warnings, fmt.Sprintf(
				"position in %s at %d of %d contract limit",
				order.Ticker, after, g.maxContractsPerMarket))
		}
	}
	return check
}
