package risk

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"riskcore/internal/config"
)

func testBreaker(rate, slippage float64) *CircuitBreaker {
	return NewCircuitBreaker(config.RiskConfig{
		MaxRejectRate:    rate,
		MaxSlippagePct:   slippage,
		RejectWindowSize: 10,
		BreakerCooldown:  5 * time.Minute,
	}, testLogger())
}

func TestBreakerTripsOnRejectRate(t *testing.T) {
	t.Parallel()
	cb := testBreaker(0.30, 0)

	for i := 0; i < 5; i++ {
		cb.RecordSuccess(decimal.Zero)
	}
	for i := 0; i < 5; i++ {
		cb.RecordFailure()
	}
	if got := cb.State(); got != BreakerOpen {
		t.Fatalf("state = %s, want OPEN", got)
	}
}

func TestBreakerStaysClosedBelowMinSamples(t *testing.T) {
	t.Parallel()
	cb := testBreaker(0.30, 0)

	// 4 straight failures: 100% reject rate but not enough samples.
	for i := 0; i < 4; i++ {
		cb.RecordFailure()
	}
	if got := cb.State(); got != BreakerClosed {
		t.Fatalf("state = %s, want CLOSED", got)
	}
}

func TestBreakerTripsOnSlippage(t *testing.T) {
	t.Parallel()
	cb := testBreaker(0.90, 0.02)

	for i := 0; i < 5; i++ {
		cb.RecordSuccess(d("0.05"))
	}
	if got := cb.State(); got != BreakerOpen {
		t.Fatalf("state = %s, want OPEN", got)
	}
}

func TestBreakerHalfOpenAfterCooldown(t *testing.T) {
	t.Parallel()
	cb := testBreaker(0.30, 0)
	start := time.Now()
	clock := start
	cb.now = func() time.Time { return clock }

	for i := 0; i < 5; i++ {
		cb.RecordFailure()
	}
	if got := cb.State(); got != BreakerOpen {
		t.Fatalf("state = %s, want OPEN", got)
	}

	clock = start.Add(4 * time.Minute)
	if got := cb.State(); got != BreakerOpen {
		t.Fatalf("before cooldown state = %s, want OPEN", got)
	}

	clock = start.Add(6 * time.Minute)
	if got := cb.State(); got != BreakerHalfOpen {
		t.Fatalf("after cooldown state = %s, want HALF_OPEN", got)
	}
}

func TestBreakerProbeSuccessCloses(t *testing.T) {
	t.Parallel()
	cb := testBreaker(0.30, 0)
	start := time.Now()
	clock := start
	cb.now = func() time.Time { return clock }

	for i := 0; i < 5; i++ {
		cb.RecordFailure()
	}
	clock = start.Add(6 * time.Minute)
	if got := cb.State(); got != BreakerHalfOpen {
		t.Fatalf("state = %s, want HALF_OPEN", got)
	}

	cb.RecordSuccess(decimal.Zero)
	if got := cb.State(); got != BreakerClosed {
		t.Fatalf("state = %s, want CLOSED", got)
	}

	// The ring was cleared: a lone failure cannot re-trip immediately.
	cb.RecordFailure()
	if got := cb.State(); got != BreakerClosed {
		t.Fatalf("state = %s, want CLOSED after single failure", got)
	}
}

func TestBreakerProbeFailureReopens(t *testing.T) {
	t.Parallel()
	cb := testBreaker(0.30, 0)
	start := time.Now()
	clock := start
	cb.now = func() time.Time { return clock }

	for i := 0; i < 5; i++ {
		cb.RecordFailure()
	}
	clock = start.Add(6 * time.Minute)
	if got := cb.State(); got != BreakerHalfOpen {
		t.Fatalf("state = %s, want HALF_OPEN", got)
	}

	cb.RecordFailure()
	if got := cb.State(); got != BreakerOpen {
		t.Fatalf("state = %s, want OPEN", got)
	}

	// The cooldown restarted at the probe failure.
	clock = start.Add(10 * time.Minute)
	if got := cb.State(); got != BreakerOpen {
		t.Fatalf("state = %s, want OPEN until new cooldown elapses", got)
	}
	clock = start.Add(12 * time.Minute)
	if got := cb.State(); got != BreakerHalfOpen {
		t.Fatalf("state = %s, want HALF_OPEN", got)
	}
}

func TestBreakerManualReset(t *testing.T) {
	t.Parallel()
	cb := testBreaker(0.30, 0)

	for i := 0; i < 5; i++ {
		cb.RecordFailure()
	}
	if got := cb.State(); got != BreakerOpen {
		t.Fatalf("state = %s, want OPEN", got)
	}

	cb.Reset()
	if got := cb.State(); got != BreakerClosed {
		t.Fatalf("state = %s, want CLOSED after reset", got)
	}
}
