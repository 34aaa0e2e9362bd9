package risk

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"riskcore/internal/config"
	"riskcore/pkg/types"
)

func testEngineConfig() config.Config {
	return config.Config{
		Risk: config.RiskConfig{
			MaxOrderNotional:    10000,
			MaxOrderShares:      500,
			MaxPositionShares:   1000,
			MaxPositionNotional: 50000,
			MaxTotalExposure:    100000,
			MaxConcentrationPct: 0.25,
			MaxRejectRate:       0.5,
			RejectWindowSize:    10,
			BreakerCooldown:     time.Minute,
		},
	}
}

func buyIntent(symbol string, qty int64) types.OrderIntent {
	return types.OrderIntent{
		Symbol:      symbol,
		Side:        types.Buy,
		Qty:         qty,
		Type:        types.Market,
		TimeInForce: types.TIFDay,
	}
}

func hasFailure(d types.RiskDecision, code string) bool {
	for _, f := range d.Failed {
		if strings.HasPrefix(f, code+":") {
			return true
		}
	}
	return false
}

func TestCheckOrderAtLimitPasses(t *testing.T) {
	t.Parallel()
	e := NewEngine(testEngineConfig(), testLogger())

	// 100 shares at exactly the per-order notional ceiling.
	got := e.CheckOrder(buyIntent("AAPL", 100), nil, d("100"), d("100000"))
	if got.Action != types.ActionApprove {
		t.Fatalf("action = %s, failed = %v", got.Action, got.Failed)
	}
	if len(got.Failed) != 0 {
		t.Fatalf("unexpected failures: %v", got.Failed)
	}
}

func TestCheckOrderJustOverLimitRejects(t *testing.T) {
	t.Parallel()
	e := NewEngine(testEngineConfig(), testLogger())

	got := e.CheckOrder(buyIntent("AAPL", 100), nil, d("100.01"), d("100000"))
	if got.Action != types.ActionReject {
		t.Fatalf("action = %s, want REJECT", got.Action)
	}
	if !hasFailure(got, types.CodeOrderNotionalExceeded) {
		t.Fatalf("failed = %v, want %s", got.Failed, types.CodeOrderNotionalExceeded)
	}
}

func TestCheckOrderDeterministic(t *testing.T) {
	t.Parallel()
	e := NewEngine(testEngineConfig(), testLogger())

	first := e.CheckOrder(buyIntent("AAPL", 100), nil, d("100"), d("100000"))
	second := e.CheckOrder(buyIntent("AAPL", 100), nil, d("100"), d("100000"))
	if first.Action != second.Action || len(first.Passed) != len(second.Passed) {
		t.Fatalf("decisions differ: %+v vs %+v", first, second)
	}
}

func TestKillSwitchShortCircuits(t *testing.T) {
	t.Parallel()
	e := NewEngine(testEngineConfig(), testLogger())

	e.SetKillSwitch(true)
	got := e.CheckOrder(buyIntent("AAPL", 1), nil, d("100"), d("100000"))
	if got.Action != types.ActionReject {
		t.Fatalf("action = %s, want REJECT", got.Action)
	}
	if !hasFailure(got, types.CodeKillSwitchActive) {
		t.Fatalf("failed = %v", got.Failed)
	}
	if len(got.Passed) != 0 {
		t.Fatalf("no check should run past the kill switch, passed = %v", got.Passed)
	}

	e.SetKillSwitch(false)
	got = e.CheckOrder(buyIntent("AAPL", 1), nil, d("100"), d("100000"))
	if got.Action != types.ActionApprove {
		t.Fatalf("after deactivation action = %s, failed = %v", got.Action, got.Failed)
	}
}

func TestDryRunClassification(t *testing.T) {
	t.Parallel()
	cfg := testEngineConfig()
	cfg.DryRun = true
	e := NewEngine(cfg, testLogger())

	got := e.CheckOrder(buyIntent("AAPL", 1), nil, d("100"), d("100000"))
	if got.Action != types.ActionDryRun {
		t.Fatalf("action = %s, want DRY_RUN", got.Action)
	}

	// Failures still reject in dry-run mode.
	got = e.CheckOrder(buyIntent("AAPL", 200), nil, d("100"), d("100000"))
	if got.Action != types.ActionReject {
		t.Fatalf("over-limit dry-run action = %s, want REJECT", got.Action)
	}
}

func TestSymbolBlocklist(t *testing.T) {
	t.Parallel()
	cfg := testEngineConfig()
	cfg.Risk.BlockedSymbols = []string{"gme"}
	e := NewEngine(cfg, testLogger())

	got := e.CheckOrder(buyIntent("GME", 1), nil, d("20"), d("100000"))
	if !hasFailure(got, types.CodeSymbolBlocked) {
		t.Fatalf("failed = %v, want %s", got.Failed, types.CodeSymbolBlocked)
	}
}

func TestEmptyAllowlistDisablesCheck(t *testing.T) {
	t.Parallel()
	e := NewEngine(testEngineConfig(), testLogger())

	got := e.CheckOrder(buyIntent("XYZ", 1), nil, d("20"), d("100000"))
	if got.Action != types.ActionApprove {
		t.Fatalf("action = %s, failed = %v", got.Action, got.Failed)
	}
}

func TestAllowlistRejectsUnlisted(t *testing.T) {
	t.Parallel()
	cfg := testEngineConfig()
	cfg.Risk.AllowedSymbols = []string{"AAPL", "MSFT"}
	e := NewEngine(cfg, testLogger())

	if got := e.CheckOrder(buyIntent("AAPL", 1), nil, d("100"), d("100000")); got.Action != types.ActionApprove {
		t.Fatalf("listed symbol rejected: %v", got.Failed)
	}
	got := e.CheckOrder(buyIntent("TSLA", 1), nil, d("100"), d("100000"))
	if !hasFailure(got, types.CodeSymbolNotAllowed) {
		t.Fatalf("failed = %v, want %s", got.Failed, types.CodeSymbolNotAllowed)
	}
}

func TestPositionShareCapAfterTrade(t *testing.T) {
	t.Parallel()
	e := NewEngine(testEngineConfig(), testLogger())
	positions := []types.Position{{
		Symbol: "MSFT", Qty: d("900"), MarketValue: d("9000"),
	}}

	got := e.CheckOrder(buyIntent("MSFT", 200), positions, d("10"), d("100000"))
	if !hasFailure(got, types.CodePositionSharesExceeded) {
		t.Fatalf("failed = %v, want %s", got.Failed, types.CodePositionSharesExceeded)
	}

	// Selling reduces the resulting position and passes.
	sell := buyIntent("MSFT", 200)
	sell.Side = types.Sell
	got = e.CheckOrder(sell, positions, d("10"), d("100000"))
	if got.Action != types.ActionApprove {
		t.Fatalf("sell action = %s, failed = %v", got.Action, got.Failed)
	}
}

func TestTotalExposureBuysOnly(t *testing.T) {
	t.Parallel()
	e := NewEngine(testEngineConfig(), testLogger())
	positions := []types.Position{{
		Symbol: "SPY", Qty: d("200"), MarketValue: d("95000"),
	}}

	got := e.CheckOrder(buyIntent("AAPL", 100), positions, d("100"), d("100000"))
	if !hasFailure(got, types.CodeTotalExposureExceeded) {
		t.Fatalf("failed = %v, want %s", got.Failed, types.CodeTotalExposureExceeded)
	}

	sell := buyIntent("SPY", 100)
	sell.Side = types.Sell
	got = e.CheckOrder(sell, positions, d("100"), d("100000"))
	if hasFailure(got, types.CodeTotalExposureExceeded) {
		t.Fatalf("sell should skip the exposure check: %v", got.Failed)
	}
}

func TestConcentrationSkippedWithoutEquity(t *testing.T) {
	t.Parallel()
	e := NewEngine(testEngineConfig(), testLogger())

	got := e.CheckOrder(buyIntent("AAPL", 10), nil, d("10"), decimal.Zero)
	if got.Action != types.ActionApprove {
		t.Fatalf("action = %s, failed = %v", got.Action, got.Failed)
	}
	found := false
	for _, w := range got.Warnings {
		if strings.Contains(w, "concentration") {
			found = true
		}
	}
	if !found {
		t.Fatalf("warnings = %v, want concentration skip note", got.Warnings)
	}
}

func TestDailySpendLimitBuysOnly(t *testing.T) {
	t.Parallel()
	cfg := testEngineConfig()
	cfg.Risk.DailySpendLimit = 10000
	e := NewEngine(cfg, testLogger())
	e.RecordFill(types.Buy, d("8000"), decimal.Zero)

	got := e.CheckOrder(buyIntent("AAPL", 30), nil, d("100"), d("100000"))
	if !hasFailure(got, types.CodeDailySpendLimit) {
		t.Fatalf("failed = %v, want %s", got.Failed, types.CodeDailySpendLimit)
	}

	sell := buyIntent("AAPL", 30)
	sell.Side = types.Sell
	got = e.CheckOrder(sell, nil, d("100"), d("100000"))
	if got.Action != types.ActionApprove {
		t.Fatalf("sell action = %s, failed = %v", got.Action, got.Failed)
	}
}

func TestDailyLossLimitRejects(t *testing.T) {
	t.Parallel()
	cfg := testEngineConfig()
	cfg.Risk.MaxDailyLoss = 2000
	e := NewEngine(cfg, testLogger())
	e.UpdateEquity(d("100000"))
	e.UpdateEquity(d("97500"))

	got := e.CheckOrder(buyIntent("AAPL", 1), nil, d("100"), d("97500"))
	if !hasFailure(got, types.CodeDailyLossLimit) {
		t.Fatalf("failed = %v, want %s", got.Failed, types.CodeDailyLossLimit)
	}
}

func TestApprovalThresholds(t *testing.T) {
	t.Parallel()
	cfg := testEngineConfig()
	cfg.Risk.ApprovalNotionalThreshold = 5000
	e := NewEngine(cfg, testLogger())

	got := e.CheckOrder(buyIntent("AAPL", 60), nil, d("100"), d("100000"))
	if got.Action != types.ActionRequireApproval {
		t.Fatalf("action = %s, want REQUIRE_APPROVAL", got.Action)
	}
	if got.ApprovalReason == "" {
		t.Fatal("approval reason missing")
	}
	if len(got.Failed) != 0 {
		t.Fatalf("escalation is not a failure: %v", got.Failed)
	}

	got = e.CheckOrder(buyIntent("AAPL", 40), nil, d("100"), d("100000"))
	if got.Action != types.ActionApprove {
		t.Fatalf("below threshold action = %s", got.Action)
	}
}

func TestBreakerGatesPipeline(t *testing.T) {
	t.Parallel()
	cfg := testEngineConfig()
	cfg.Risk.MaxRejectRate = 0.5
	e := NewEngine(cfg, testLogger())

	start := time.Now()
	clock := start
	e.Breaker().now = func() time.Time { return clock }

	for i := 0; i < 5; i++ {
		e.RecordReject()
	}
	got := e.CheckOrder(buyIntent("AAPL", 1), nil, d("100"), d("100000"))
	if !hasFailure(got, types.CodeCircuitBreaker) {
		t.Fatalf("failed = %v, want %s", got.Failed, types.CodeCircuitBreaker)
	}

	// After the cooldown the probe order passes with a warning.
	clock = start.Add(2 * time.Minute)
	got = e.CheckOrder(buyIntent("AAPL", 1), nil, d("100"), d("100000"))
	if got.Action != types.ActionApprove {
		t.Fatalf("half-open action = %s, failed = %v", got.Action, got.Failed)
	}
	found := false
	for _, w := range got.Warnings {
		if strings.Contains(w, "half-open") {
			found = true
		}
	}
	if !found {
		t.Fatalf("warnings = %v, want half-open note", got.Warnings)
	}
}
