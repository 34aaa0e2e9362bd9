package risk

import (
	"testing"

	"github.com/shopspring/decimal"

	"riskcore/internal/config"
	"riskcore/pkg/types"
)

func testComplianceConfig() config.ComplianceConfig {
	return config.ComplianceConfig{
		BlockedCategories:      []string{"politics"},
		BlockedTickers:         []string{"badmkt-24"},
		MaxContractsPerMarket:  500,
		MaxOrderContracts:      100,
		MaxOpenPositions:       2,
		MaxCategoryExposurePct: 0.20,
		MinOrderbookDepth:      100,
	}
}

func econMarket(ticker string) types.PredictionMarket {
	return types.PredictionMarket{Ticker: ticker, Category: "Economics", Status: "open"}
}

func yesBuy(ticker string, count int64, price int) types.PredictionOrder {
	return types.PredictionOrder{
		Ticker: ticker, Side: types.Yes, Action: types.Buy,
		Count: count, YesPrice: price,
	}
}

func TestCategoryGating(t *testing.T) {
	t.Parallel()
	g := NewComplianceGuard(testComplianceConfig())

	if g.CategoryAllowed("Politics") {
		t.Fatal("blocked category allowed")
	}
	if !g.CategoryAllowed("Economics") {
		t.Fatal("unblocked category refused with empty allowlist")
	}

	cfg := testComplianceConfig()
	cfg.AllowedCategories = []string{"economics"}
	g = NewComplianceGuard(cfg)
	if g.CategoryAllowed("Weather") {
		t.Fatal("allowlist must exclude unlisted categories")
	}
	if !g.CategoryAllowed("ECONOMICS") {
		t.Fatal("allowlist must match case-insensitively")
	}
}

func TestBlockedTickerRefused(t *testing.T) {
	t.Parallel()
	g := NewComplianceGuard(testComplianceConfig())

	got := g.CheckMarket(types.PredictionMarket{Ticker: "BADMKT-24", Category: "Economics"})
	if got.Allowed {
		t.Fatal("blocked ticker allowed")
	}
}

func TestOrderContractCap(t *testing.T) {
	t.Parallel()
	g := NewComplianceGuard(testComplianceConfig())

	got := g.CheckOrder(yesBuy("CPI-24", 150, 50), econMarket("CPI-24"), nil, d("10000"), -1)
	if got.Allowed {
		t.Fatalf("order over the contract cap allowed: %+v", got)
	}

	got = g.CheckOrder(yesBuy("CPI-24", 100, 50), econMarket("CPI-24"), nil, d("10000"), -1)
	if !got.Allowed {
		t.Fatalf("at-cap order refused: %s", got.Reason)
	}
}

func TestPerMarketContractCap(t *testing.T) {
	t.Parallel()
	g := NewComplianceGuard(testComplianceConfig())
	held := []types.PredictionPosition{{
		Ticker: "CPI-24", Side: types.Yes, Count: 450, MarketPrice: 40, Category: "economics",
	}}

	got := g.CheckOrder(yesBuy("CPI-24", 100, 40), econMarket("CPI-24"), held, d("10000"), -1)
	if got.Allowed {
		t.Fatal("position past the per-market cap allowed")
	}

	got = g.CheckOrder(yesBuy("CPI-24", 50, 40), econMarket("CPI-24"), held, d("10000"), -1)
	if !got.Allowed {
		t.Fatalf("at-cap fill refused: %s", got.Reason)
	}
	if len(got.Warnings) == 0 {
		t.Fatal("want a near-cap warning at 500 of 500")
	}
}

func TestOpenPositionCap(t *testing.T) {
	t.Parallel()
	g := NewComplianceGuard(testComplianceConfig())
	held := []types.PredictionPosition{
		{Ticker: "CPI-24", Side: types.Yes, Count: 10, MarketPrice: 40, Category: "economics"},
		{Ticker: "FED-24", Side: types.No, Count: 10, MarketPrice: 60, Category: "economics"},
	}

	got := g.CheckOrder(yesBuy("GDP-24", 10, 30), econMarket("GDP-24"), held, d("10000"), -1)
	if got.Allowed {
		t.Fatal("third position allowed past the cap")
	}

	// Adding to a held market is not a new position.
	got = g.CheckOrder(yesBuy("CPI-24", 10, 30), econMarket("CPI-24"), held, d("10000"), -1)
	if !got.Allowed {
		t.Fatalf("scaling a held market refused: %s", got.Reason)
	}
}

func TestCategoryExposureLimit(t *testing.T) {
	t.Parallel()
	g := NewComplianceGuard(testComplianceConfig())
	// $50 of economics exposure held.
	held := []types.PredictionPosition{{
		Ticker: "CPI-24", Side: types.Yes, Count: 100, MarketPrice: 50, Category: "economics",
	}}

	// $150 more lands exactly at 20% of $1000: allowed.
	got := g.CheckOrder(yesBuy("FED-24", 300, 50), econMarket("FED-24"), held, d("1000"), -1)
	if !got.Allowed {
		t.Fatalf("at-limit exposure refused: %s", got.Reason)
	}

	got = g.CheckOrder(yesBuy("FED-24", 320, 50), econMarket("FED-24"), held, d("1000"), -1)
	if got.Allowed {
		t.Fatal("over-limit category exposure allowed")
	}
}

func TestMinOrderbookDepth(t *testing.T) {
	t.Parallel()
	g := NewComplianceGuard(testComplianceConfig())

	got := g.CheckOrder(yesBuy("CPI-24", 10, 50), econMarket("CPI-24"), nil, d("10000"), 50)
	if got.Allowed {
		t.Fatal("thin book allowed")
	}

	got = g.CheckOrder(yesBuy("CPI-24", 10, 50), econMarket("CPI-24"), nil, d("10000"), 100)
	if !got.Allowed {
		t.Fatalf("adequate depth refused: %s", got.Reason)
	}

	// Negative depth means no book available: the check is skipped.
	got = g.CheckOrder(yesBuy("CPI-24", 10, 50), econMarket("CPI-24"), nil, d("10000"), -1)
	if !got.Allowed {
		t.Fatalf("missing book refused: %s", got.Reason)
	}
}

func TestSellSkipsEntryChecks(t *testing.T) {
	t.Parallel()
	g := NewComplianceGuard(testComplianceConfig())
	held := []types.PredictionPosition{
		{Ticker: "CPI-24", Side: types.Yes, Count: 500, MarketPrice: 40, Category: "economics"},
		{Ticker: "FED-24", Side: types.No, Count: 10, MarketPrice: 60, Category: "economics"},
	}

	sell := types.PredictionOrder{
		Ticker: "CPI-24", Side: types.Yes, Action: types.Sell, Count: 100, YesPrice: 40,
	}
	got := g.CheckOrder(sell, econMarket("CPI-24"), held, decimal.Zero, 0)
	if !got.Allowed {
		t.Fatalf("exit refused: %s", got.Reason)
	}
}
