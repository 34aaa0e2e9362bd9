package risk

import (
	"testing"
	"time"

	"riskcore/internal/config"
	"riskcore/pkg/types"
)

func testPnLConfig() config.PnLConfig {
	return config.PnLConfig{
		DailyProfitTarget:     500,
		DailyLossLimit:        500,
		PositionProfitPct:     0.05,
		PositionLossPct:       0.05,
		PositionProfitUSD:     1000,
		PositionLossUSD:       1000,
		LosingStreak:          3,
		WinningStreak:         5,
		VelocityThresholdPct:  0.05,
		VelocityWindowMinutes: 15,
		CooldownMinutes:       10,
	}
}

func newTestPnLTracker(t *testing.T, cfg config.PnLConfig) (*PnLTracker, *time.Time) {
	t.Helper()
	tr := NewPnLTracker(cfg, testLogger())
	clock := time.Date(2025, 7, 9, 15, 0, 0, 0, time.UTC)
	tr.now = func() time.Time { return clock }
	return tr, &clock
}

func alertTypes(alerts []types.Alert) []types.AlertType {
	out := make([]types.AlertType, 0, len(alerts))
	for _, a := range alerts {
		out = append(out, a.Type)
	}
	return out
}

func containsAlert(alerts []types.Alert, typ types.AlertType) bool {
	for _, a := range alerts {
		if a.Type == typ {
			return true
		}
	}
	return false
}

func TestPositionProfitAlertCooldown(t *testing.T) {
	t.Parallel()
	tr, clock := newTestPnLTracker(t, testPnLConfig())
	pos := types.Position{Symbol: "AAPL", CostBasis: d("1000"), UnrealizedPnL: d("60")}

	first := tr.UpdatePosition(pos)
	if len(first) != 1 || first[0].Type != types.AlertPositionProfitPct {
		t.Fatalf("first update alerts = %v", alertTypes(first))
	}
	if first[0].Symbol != "AAPL" {
		t.Fatalf("scope = %q", first[0].Symbol)
	}

	// Same condition inside the cooldown: silent.
	if second := tr.UpdatePosition(pos); len(second) != 0 {
		t.Fatalf("second update alerts = %v, want none", alertTypes(second))
	}

	*clock = clock.Add(11 * time.Minute)
	if third := tr.UpdatePosition(pos); len(third) != 1 {
		t.Fatalf("after cooldown alerts = %v, want one", alertTypes(third))
	}
}

func TestCooldownScopedPerSymbol(t *testing.T) {
	t.Parallel()
	tr, _ := newTestPnLTracker(t, testPnLConfig())

	a := tr.UpdatePosition(types.Position{Symbol: "AAPL", CostBasis: d("1000"), UnrealizedPnL: d("60")})
	b := tr.UpdatePosition(types.Position{Symbol: "MSFT", CostBasis: d("1000"), UnrealizedPnL: d("60")})
	if len(a) != 1 || len(b) != 1 {
		t.Fatalf("alerts = %v / %v: cooldown must not bleed across symbols",
			alertTypes(a), alertTypes(b))
	}
}

func TestPositionLossAlerts(t *testing.T) {
	t.Parallel()
	tr, _ := newTestPnLTracker(t, testPnLConfig())

	got := tr.UpdatePosition(types.Position{
		Symbol: "TSLA", CostBasis: d("10000"), UnrealizedPnL: d("-1200"),
	})
	// 12% and $1200 down: both loss alerts fire.
	if !containsAlert(got, types.AlertPositionLossPct) || !containsAlert(got, types.AlertPositionLossUSD) {
		t.Fatalf("alerts = %v", alertTypes(got))
	}
	for _, a := range got {
		if a.Priority != types.PriorityHigh {
			t.Fatalf("loss alert priority = %s", a.Priority)
		}
	}
}

func TestDailyLossAlert(t *testing.T) {
	t.Parallel()
	tr, _ := newTestPnLTracker(t, testPnLConfig())

	tr.UpdateEquity(d("10000"))
	got := tr.UpdateEquity(d("9400"))
	if !containsAlert(got, types.AlertDailyLossLimit) {
		t.Fatalf("alerts = %v, want daily loss", alertTypes(got))
	}
	if !tr.DailyPnL().Equal(d("-600")) {
		t.Fatalf("daily pnl = %s", tr.DailyPnL())
	}
}

func TestDailyProfitTargetAlert(t *testing.T) {
	t.Parallel()
	tr, _ := newTestPnLTracker(t, testPnLConfig())

	tr.UpdateEquity(d("10000"))
	got := tr.UpdateEquity(d("10600"))
	if !containsAlert(got, types.AlertDailyProfitTarget) {
		t.Fatalf("alerts = %v, want profit target", alertTypes(got))
	}
}

func TestStreakAlertsAndReset(t *testing.T) {
	t.Parallel()
	tr, _ := newTestPnLTracker(t, testPnLConfig())

	if got := tr.RecordTrade("AAPL", d("-10")); len(got) != 0 {
		t.Fatalf("alerts after one loss = %v", alertTypes(got))
	}
	tr.RecordTrade("AAPL", d("-10"))
	got := tr.RecordTrade("AAPL", d("-10"))
	if !containsAlert(got, types.AlertLosingStreak) {
		t.Fatalf("alerts = %v, want losing streak", alertTypes(got))
	}
	if tr.Streak() != -3 {
		t.Fatalf("streak = %d, want -3", tr.Streak())
	}

	// A win resets the run to +1.
	tr.RecordTrade("AAPL", d("10"))
	if tr.Streak() != 1 {
		t.Fatalf("streak = %d, want 1", tr.Streak())
	}

	// Scratch trades leave the streak untouched.
	tr.RecordTrade("AAPL", d("0"))
	if tr.Streak() != 1 {
		t.Fatalf("streak after flat trade = %d, want 1", tr.Streak())
	}
}

func TestVelocityAlert(t *testing.T) {
	t.Parallel()
	cfg := testPnLConfig()
	cfg.DailyLossLimit = 0 // isolate the velocity alert
	tr, clock := newTestPnLTracker(t, cfg)

	tr.UpdateEquity(d("10000"))
	*clock = clock.Add(5 * time.Minute)
	got := tr.UpdateEquity(d("9400"))
	if !containsAlert(got, types.AlertPnLVelocity) {
		t.Fatalf("alerts = %v, want velocity", alertTypes(got))
	}
}

func TestVelocityBelowThresholdSilent(t *testing.T) {
	t.Parallel()
	cfg := testPnLConfig()
	cfg.DailyLossLimit = 0
	tr, clock := newTestPnLTracker(t, cfg)

	tr.UpdateEquity(d("10000"))
	*clock = clock.Add(5 * time.Minute)
	if got := tr.UpdateEquity(d("9700")); containsAlert(got, types.AlertPnLVelocity) {
		t.Fatalf("alerts = %v, 3%% move is under the threshold", alertTypes(got))
	}
}

func TestDrawdownWarningAlert(t *testing.T) {
	t.Parallel()
	cfg := testPnLConfig()
	cfg.DailyLossLimit = 0
	cfg.VelocityThresholdPct = 0
	cfg.DrawdownWarningPct = 0.05
	tr, clock := newTestPnLTracker(t, cfg)

	tr.UpdateEquity(d("10000"))
	*clock = clock.Add(2 * time.Minute)

	// 4% off the peak: silent.
	if got := tr.UpdateEquity(d("9600")); containsAlert(got, types.AlertDrawdownWarning) {
		t.Fatalf("alerts = %v, 4%% drawdown is under the threshold", alertTypes(got))
	}

	*clock = clock.Add(2 * time.Minute)
	got := tr.UpdateEquity(d("9400"))
	if !containsAlert(got, types.AlertDrawdownWarning) {
		t.Fatalf("alerts = %v, want drawdown warning at 6%%", alertTypes(got))
	}
	for _, a := range got {
		if a.Type == types.AlertDrawdownWarning {
			if a.Priority != types.PriorityHigh {
				t.Fatalf("priority = %s, want high", a.Priority)
			}
			if !a.Threshold.Equal(d("0.05")) {
				t.Fatalf("threshold = %s, want 0.05", a.Threshold)
			}
		}
	}

	// Still below the peak inside the cooldown: silent.
	*clock = clock.Add(2 * time.Minute)
	if got := tr.UpdateEquity(d("9300")); containsAlert(got, types.AlertDrawdownWarning) {
		t.Fatalf("alerts = %v, cooldown must suppress the repeat", alertTypes(got))
	}
}

func TestRecoveryMilestonesAndNewHigh(t *testing.T) {
	t.Parallel()
	cfg := testPnLConfig()
	cfg.DailyLossLimit = 0
	cfg.VelocityThresholdPct = 0
	cfg.CooldownMinutes = 1
	tr, clock := newTestPnLTracker(t, cfg)

	tr.UpdateEquity(d("1000"))
	*clock = clock.Add(2 * time.Minute)
	tr.UpdateEquity(d("800")) // trough: 200 drawdown

	steps := []struct {
		equity string
		want   string
	}{
		{"850", "25"},
		{"900", "50"},
		{"950", "75"},
	}
	for _, step := range steps {
		*clock = clock.Add(2 * time.Minute)
		got := tr.UpdateEquity(d(step.equity))
		if !containsAlert(got, types.AlertRecoveryMilestone) {
			t.Fatalf("equity %s: alerts = %v, want milestone", step.equity, alertTypes(got))
		}
		for _, a := range got {
			if a.Type == types.AlertRecoveryMilestone && !a.Threshold.Equal(d(step.want)) {
				t.Fatalf("equity %s: milestone = %s, want %s", step.equity, a.Threshold, step.want)
			}
		}
	}

	// Past the old peak: 100% milestone plus a new-high alert.
	*clock = clock.Add(2 * time.Minute)
	got := tr.UpdateEquity(d("1001"))
	if !containsAlert(got, types.AlertRecoveryMilestone) || !containsAlert(got, types.AlertNewEquityHigh) {
		t.Fatalf("alerts = %v", alertTypes(got))
	}
}

func TestBreakevenAlert(t *testing.T) {
	t.Parallel()
	cfg := testPnLConfig()
	cfg.DailyLossLimit = 0
	cfg.VelocityThresholdPct = 0
	tr, clock := newTestPnLTracker(t, cfg)

	tr.UpdateEquity(d("1000"))
	*clock = clock.Add(2 * time.Minute)
	tr.UpdateEquity(d("950"))
	*clock = clock.Add(2 * time.Minute)
	got := tr.UpdateEquity(d("1000"))
	if !containsAlert(got, types.AlertBreakeven) {
		t.Fatalf("alerts = %v, want breakeven", alertTypes(got))
	}

	// Flat from here: no repeat.
	*clock = clock.Add(20 * time.Minute)
	if got := tr.UpdateEquity(d("1000")); containsAlert(got, types.AlertBreakeven) {
		t.Fatalf("alerts = %v, breakeven must not repeat", alertTypes(got))
	}
}
