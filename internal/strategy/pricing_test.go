package strategy

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"

	"riskcore/pkg/types"
)

const tol = 1e-9

func TestYesEdgeAgainstFlatFees(t *testing.T) {
	t.Parallel()
	e := NewPricingEngine(FlatFees(14), 0.25, 0.05)

	// Buying YES at 45¢ with a 55% model: 10% raw edge, but the 14¢
	// round trip eats 14/55 of the 55¢ win.
	edge := e.EdgeFor(0.55, 45, types.Yes)
	if math.Abs(edge.Raw-0.10) > tol {
		t.Fatalf("raw = %f", edge.Raw)
	}
	if math.Abs(edge.FeeImpact-14.0/55.0) > tol {
		t.Fatalf("fee impact = %f", edge.FeeImpact)
	}
	if math.Abs(edge.Adjusted-(0.10-14.0/55.0)) > tol {
		t.Fatalf("adjusted = %f", edge.Adjusted)
	}
	if edge.CostCents != 45 {
		t.Fatalf("cost = %d", edge.CostCents)
	}
}

func TestNoEdgeUsesYesPriceDenominator(t *testing.T) {
	t.Parallel()
	e := NewPricingEngine(FlatFees(14), 0.25, 0.05)

	edge := e.EdgeFor(0.30, 45, types.No)
	if math.Abs(edge.Raw-0.15) > tol {
		t.Fatalf("raw = %f", edge.Raw)
	}
	if math.Abs(edge.FeeImpact-14.0/45.0) > tol {
		t.Fatalf("fee impact = %f", edge.FeeImpact)
	}
	if edge.CostCents != 55 {
		t.Fatalf("cost = %d", edge.CostCents)
	}
}

func TestEdgePriceBoundsSaturateFeeImpact(t *testing.T) {
	t.Parallel()
	e := NewPricingEngine(FlatFees(14), 0.25, 0.05)

	if got := e.EdgeFor(0.99, 100, types.Yes); got.FeeImpact != 1 {
		t.Fatalf("fee impact at 100 = %f", got.FeeImpact)
	}
	if got := e.EdgeFor(0.01, 0, types.No); got.FeeImpact != 1 {
		t.Fatalf("fee impact at 0 = %f", got.FeeImpact)
	}
}

func TestKellyNetOfFees(t *testing.T) {
	t.Parallel()
	e := NewPricingEngine(FlatFees(14), 1.0, 0.05)

	// YES at 20¢, 60% model: b = (100−20−14)/20 = 3.3,
	// f* = (0.6·3.3 − 0.4)/3.3.
	want := (0.6*3.3 - 0.4) / 3.3
	if got := e.Kelly(0.60, 20, types.Yes); math.Abs(got-want) > tol {
		t.Fatalf("kelly = %f, want %f", got, want)
	}

	// Fees exceed the win amount: no position.
	if got := e.Kelly(0.95, 90, types.Yes); got != 0 {
		t.Fatalf("kelly = %f, want 0", got)
	}
}

func TestKellyCapped(t *testing.T) {
	t.Parallel()
	e := NewPricingEngine(FlatFees(14), 0.15, 0.05)

	if got := e.Kelly(0.60, 20, types.Yes); got != 0.15 {
		t.Fatalf("kelly = %f, want cap 0.15", got)
	}
}

func TestExpectedValueIncludesBothLegs(t *testing.T) {
	t.Parallel()
	e := NewPricingEngine(FeeSchedule{EntryCents: 7, ExitCents: 7}, 0.25, 0.05)

	// 100 YES at 45¢: cost 4500+700, win payout 10000−700.
	// EV = 0.55·4100 − 0.45·5200 = −85¢.
	ev := e.ExpectedValue(0.55, 45, 100, types.Yes)
	if math.Abs(ev.InexactFloat64()-(-0.85)) > 1e-6 {
		t.Fatalf("ev = %s, want -0.85", ev)
	}
}

func TestContractCountCapsAtMaxPosition(t *testing.T) {
	t.Parallel()
	e := NewPricingEngine(FlatFees(2), 0.15, 0.05)

	// Kelly caps at 0.15 → $150 of a $1000 bankroll, clamped to $100,
	// 222 contracts at 45¢.
	got := e.ContractCount(0.55, 45, types.Yes,
		decimal.NewFromInt(1000), decimal.NewFromInt(100))
	if got != 222 {
		t.Fatalf("contracts = %d, want 222", got)
	}
}

func TestContractCountRoundsToZero(t *testing.T) {
	t.Parallel()
	e := NewPricingEngine(FlatFees(2), 0.15, 0.05)

	got := e.ContractCount(0.55, 45, types.Yes,
		decimal.NewFromInt(1), decimal.NewFromInt(1))
	if got != 0 {
		t.Fatalf("contracts = %d, want 0", got)
	}
}

func TestAnalyzeRecommendsTrade(t *testing.T) {
	t.Parallel()
	e := NewPricingEngine(FlatFees(2), 0.15, 0.05)

	// Raw edge 0.10 at 45¢ minus 2/55 fee drag clears the 5% gate.
	a := e.Analyze(0.55, 45, decimal.NewFromInt(1000), decimal.NewFromInt(100))
	if a.Recommendation != RecTrade {
		t.Fatalf("recommendation = %s (%s)", a.Recommendation, a.Reason)
	}
	if a.Best.Side != types.Yes {
		t.Fatalf("side = %s", a.Best.Side)
	}
	if a.Contracts != 222 {
		t.Fatalf("contracts = %d", a.Contracts)
	}
	if math.Abs(a.Best.Adjusted-(0.10-2.0/55.0)) > tol {
		t.Fatalf("adjusted = %f", a.Best.Adjusted)
	}
}

func TestAnalyzePicksBetterDirection(t *testing.T) {
	t.Parallel()
	e := NewPricingEngine(FlatFees(2), 0.15, 0.05)

	a := e.Analyze(0.30, 60, decimal.NewFromInt(1000), decimal.NewFromInt(100))
	if a.Best.Side != types.No {
		t.Fatalf("side = %s", a.Best.Side)
	}
	if a.Recommendation != RecTrade {
		t.Fatalf("recommendation = %s (%s)", a.Recommendation, a.Reason)
	}
}

func TestAnalyzeRejectsThinEdge(t *testing.T) {
	t.Parallel()
	e := NewPricingEngine(FlatFees(14), 0.15, 0.05)

	// 10% raw edge does not survive a 14¢ fee at 45¢.
	a := e.Analyze(0.55, 45, decimal.NewFromInt(1000), decimal.NewFromInt(100))
	if a.Recommendation != RecNoTrade {
		t.Fatalf("recommendation = %s", a.Recommendation)
	}
}

func TestAnalyzeWithoutBankrollStillRecommends(t *testing.T) {
	t.Parallel()
	e := NewPricingEngine(FlatFees(2), 0.15, 0.05)

	a := e.Analyze(0.55, 45, decimal.Zero, decimal.Zero)
	if a.Recommendation != RecTrade {
		t.Fatalf("recommendation = %s (%s)", a.Recommendation, a.Reason)
	}
	if a.Contracts != 0 {
		t.Fatalf("contracts = %d", a.Contracts)
	}
}

func TestFlatFeeSplit(t *testing.T) {
	t.Parallel()
	f := FlatFees(7)
	if f.EntryCents != 3 || f.ExitCents != 4 {
		t.Fatalf("split = %d/%d", f.EntryCents, f.ExitCents)
	}
	if f.RoundTrip() != 7 {
		t.Fatalf("round trip = %d", f.RoundTrip())
	}
}
