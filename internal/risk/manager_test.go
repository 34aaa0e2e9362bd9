package risk

import (
	"strings"
	"testing"
	"time"

	"riskcore/internal/config"
	"riskcore/pkg/types"
)

func testManagerConfig() config.Config {
	return config.Config{
		Risk: config.RiskConfig{
			MaxOrderNotional:    100000,
			MaxTotalExposure:    1000000,
			MaxConcentrationPct: 0.5,
			MaxRejectRate:       0.5,
			RejectWindowSize:    10,
			BreakerCooldown:     time.Minute,
		},
		Drawdown: config.DrawdownConfig{
			CautionPct:   0.05,
			WarningPct:   0.08,
			CriticalPct:  0.12,
			EmergencyPct: 0.15,
		},
		Sizing: config.SizingConfig{
			Mode:            "full",
			MaxPositionPct:  0.5,
			MaxTotalRiskPct: 0.1,
			DefaultStopPct:  0.02,
		},
		Correlation: config.CorrelationConfig{
			MaxSingleStockPct:    0.5,
			MaxSectorExposurePct: 0.5,
			MaxUnknownSectorPct:  0.5,
			MaxGroupExposurePct:  0.5,
		},
		Approval: config.ApprovalConfig{MaxPending: 10, Timeout: time.Minute, HistorySize: 10},
	}
}

func TestEvaluateTradeAppliesDrawdownMultiplier(t *testing.T) {
	t.Parallel()
	m := NewManager(testManagerConfig(), testLogger())

	m.UpdateEquity(d("1000"))
	_, status := m.UpdateEquity(d("940")) // 6% down: CAUTION, half size
	if status.Level != LevelCaution {
		t.Fatalf("level = %s, want CAUTION", status.Level)
	}

	got := m.EvaluateTrade("AAPL", types.Buy, d("10"), d("9.5"), goodStats(), nil, d("940"))
	if got.Decision.Action != types.ActionApprove {
		t.Fatalf("action = %s, failed = %v", got.Decision.Action, got.Decision.Failed)
	}
	// Raw Kelly size 31 shares, halved by the CAUTION multiplier.
	if got.RecommendedQty != 15 {
		t.Fatalf("qty = %d, want 15", got.RecommendedQty)
	}
	if got.DrawdownLevel != LevelCaution {
		t.Fatalf("level = %s", got.DrawdownLevel)
	}
}

func TestEvaluateTradeBlocksNewPositionsAtWarning(t *testing.T) {
	t.Parallel()
	m := NewManager(testManagerConfig(), testLogger())

	m.UpdateEquity(d("1000"))
	m.UpdateEquity(d("915")) // 8.5%: WARNING

	got := m.EvaluateTrade("AAPL", types.Buy, d("10"), d("9.5"), goodStats(), nil, d("915"))
	if got.Decision.Action != types.ActionReject {
		t.Fatalf("action = %s, want REJECT", got.Decision.Action)
	}
	if !failureContains(got.Decision, "new positions blocked") {
		t.Fatalf("failed = %v", got.Decision.Failed)
	}

	// Managing an existing position is still allowed.
	held := []types.Position{{Symbol: "AAPL", Qty: d("10"), MarketValue: d("100")}}
	got = m.EvaluateTrade("AAPL", types.Buy, d("10"), d("9.5"), goodStats(), held, d("915"))
	if got.Decision.Action != types.ActionApprove {
		t.Fatalf("existing position action = %s, failed = %v",
			got.Decision.Action, got.Decision.Failed)
	}
	if got.RecommendedQty == 0 {
		t.Fatal("want a positive recommended size")
	}
}

func TestEvaluateTradeHaltsAtEmergency(t *testing.T) {
	t.Parallel()
	m := NewManager(testManagerConfig(), testLogger())

	m.UpdateEquity(d("1000"))
	m.UpdateEquity(d("840")) // 16%: EMERGENCY

	got := m.EvaluateTrade("AAPL", types.Buy, d("10"), d("9.5"), goodStats(), nil, d("840"))
	if got.Decision.Action != types.ActionReject {
		t.Fatalf("action = %s, want REJECT", got.Decision.Action)
	}
	if !failureContains(got.Decision, "trading halted") {
		t.Fatalf("failed = %v", got.Decision.Failed)
	}
	if got.RecommendedQty != 0 {
		t.Fatalf("qty = %d, want 0", got.RecommendedQty)
	}
}

func TestEvaluateTradeClampsToCorrelationHeadroom(t *testing.T) {
	t.Parallel()
	cfg := testManagerConfig()
	cfg.Correlation.MaxSingleStockPct = 0.05
	m := NewManager(cfg, testLogger())
	m.UpdateEquity(d("1000"))

	got := m.EvaluateTrade("AAPL", types.Buy, d("10"), d("9.5"), goodStats(), nil, d("1000"))
	if got.Decision.Action != types.ActionApprove {
		t.Fatalf("action = %s, failed = %v", got.Decision.Action, got.Decision.Failed)
	}
	// $50 of headroom at $10: 5 shares, down from the raw 33.
	if got.RecommendedQty != 5 {
		t.Fatalf("qty = %d, want 5", got.RecommendedQty)
	}
	if !hasWarning(got.Decision.Warnings, "correlation headroom") {
		t.Fatalf("warnings = %v", got.Decision.Warnings)
	}
}

func TestEvaluateTradeRejectsWithoutHeadroom(t *testing.T) {
	t.Parallel()
	m := NewManager(testManagerConfig(), testLogger())
	m.UpdateEquity(d("1000"))

	held := []types.Position{{Symbol: "AAPL", Qty: d("50"), MarketValue: d("500")}}
	got := m.EvaluateTrade("AAPL", types.Buy, d("10"), d("9.5"), goodStats(), held, d("1000"))
	if got.Decision.Action != types.ActionReject {
		t.Fatalf("action = %s, want REJECT", got.Decision.Action)
	}
	if !failureContains(got.Decision, "no exposure headroom") {
		t.Fatalf("failed = %v", got.Decision.Failed)
	}
}

func TestEvaluateTradeRejectsWithoutEdge(t *testing.T) {
	t.Parallel()
	m := NewManager(testManagerConfig(), testLogger())
	m.UpdateEquity(d("1000"))

	stats := TradeStats{WinRate: 0.30, AvgWin: 100, AvgLoss: 100, SampleSize: 100}
	got := m.EvaluateTrade("AAPL", types.Buy, d("10"), d("9.5"), stats, nil, d("1000"))
	if got.Decision.Action != types.ActionReject {
		t.Fatalf("action = %s, want REJECT", got.Decision.Action)
	}
	if !failureContains(got.Decision, "NO_EDGE") {
		t.Fatalf("failed = %v", got.Decision.Failed)
	}
}

func TestManagerKillSwitchFlowsThrough(t *testing.T) {
	t.Parallel()
	m := NewManager(testManagerConfig(), testLogger())
	m.UpdateEquity(d("1000"))
	m.SetKillSwitch(true)

	got := m.EvaluateTrade("AAPL", types.Buy, d("10"), d("9.5"), goodStats(), nil, d("1000"))
	if got.Decision.Action != types.ActionReject {
		t.Fatalf("action = %s, want REJECT", got.Decision.Action)
	}
	if !failureContains(got.Decision, types.CodeKillSwitchActive) {
		t.Fatalf("failed = %v", got.Decision.Failed)
	}
}

func TestUpdateEquityFansOut(t *testing.T) {
	t.Parallel()
	cfg := testManagerConfig()
	cfg.PnL = config.PnLConfig{DailyLossLimit: 50, CooldownMinutes: 10, VelocityWindowMinutes: 15}
	m := NewManager(cfg, testLogger())

	m.UpdateEquity(d("1000"))
	alerts, status := m.UpdateEquity(d("900"))
	if status.Level != LevelWarning {
		t.Fatalf("level = %s, want WARNING at 10%%", status.Level)
	}
	found := false
	for _, a := range alerts {
		if a.Type == types.AlertDailyLossLimit {
			found = true
		}
	}
	if !found {
		t.Fatalf("alerts = %+v, want daily loss", alerts)
	}
	if !m.Engine().DailyPnL().Equal(d("-100")) {
		t.Fatalf("daily pnl = %s", m.Engine().DailyPnL())
	}
}

func failureContains(dec types.RiskDecision, substr string) bool {
	for _, f := range dec.Failed {
		if strings.Contains(f, substr) {
			return true
		}
	}
	return false
}
