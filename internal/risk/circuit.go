// circuit.go implements the order-flow circuit breaker.
//
// The breaker watches a bounded ring of recent submission outcomes. It trips
// (CLOSED → OPEN) when, with at least minSamples outcomes recorded, the
// reject rate exceeds max_reject_rate or average slippage exceeds
// max_slippage_pct. After the cooldown it probes (OPEN → HALF_OPEN): the
// next recorded success closes it, the next failure reopens it. Cooldown
// timing uses the monotonic clock.
package risk

import (
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"riskcore/internal/config"
)

// BreakerState is the circuit breaker's position.
type BreakerState string

const (
	BreakerClosed   BreakerState = "CLOSED"
	BreakerOpen     BreakerState = "OPEN"
	BreakerHalfOpen BreakerState = "HALF_OPEN"
)

// minSamples is the minimum outcome count before the breaker may trip.
const minSamples = 5

type outcome struct {
	success  bool
	slippage decimal.Decimal // as a fraction of price, zero when unknown
}

// CircuitBreaker trips trading off when submissions start failing.
type CircuitBreaker struct {
	mu          sync.Mutex
	state       BreakerState
	ring        []outcome
	ringSize    int
	maxReject   decimal.Decimal
	maxSlippage decimal.Decimal
	cooldown    time.Duration
	trippedAt   time.Time
	logger      *slog.Logger
	now         func() time.Time
}

// NewCircuitBreaker builds a breaker from the risk config.
func NewCircuitBreaker(cfg config.RiskConfig, logger *slog.Logger) *CircuitBreaker {
	return &CircuitBreaker{
		state:       BreakerClosed,
		ringSize:    cfg.RejectWindowSize,
		maxReject:   decimal.NewFromFloat(cfg.MaxRejectRate),
		maxSlippage: decimal.NewFromFloat(cfg.MaxSlippagePct),
		cooldown:    cfg.BreakerCooldown,
		logger:      logger.With("component", "circuit_breaker"),
		now:         time.Now,
	}
}

// State returns the current breaker state, transitioning OPEN → HALF_OPEN
// when the cooldown has elapsed.
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == BreakerOpen && cb.now().Sub(cb.trippedAt) >= cb.cooldown {
		cb.state = BreakerHalfOpen
		cb.logger.Info("circuit breaker half-open, probing")
	}
	return cb.state
}

// RecordSuccess records an accepted submission with its slippage fraction.
// In HALF_OPEN a success closes the breaker and clears the ring.
func (cb *CircuitBreaker) RecordSuccess(slippage decimal.Decimal) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == BreakerHalfOpen {
		cb.state = BreakerClosed
		cb.ring = nil
		cb.logger.Info("circuit breaker closed after successful probe")
		return
	}

	cb.push(outcome{success: true, slippage: slippage})
	cb.evaluate()
}

// RecordFailure records a rejected submission. In HALF_OPEN it reopens the
// breaker immediately.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == BreakerHalfOpen {
		cb.trip("probe failed")
		return
	}

	cb.push(outcome{success: false})
	cb.evaluate()
}

// Reset clears state and the outcome ring. Operator action.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = BreakerClosed
	cb.ring = nil
	cb.logger.Warn("circuit breaker manually reset")
}

// push appends to the bounded ring. Caller holds mu.
func (cb *CircuitBreaker) push(o outcome) {
	cb.ring = append(cb.ring, o)
	if len(cb.ring) > cb.ringSize {
		cb.ring = cb.ring[len(cb.ring)-cb.ringSize:]
	}
}

// evaluate trips the breaker when either threshold is breached. Caller
// holds mu.
func (cb *CircuitBreaker) evaluate() {
	if cb.state != BreakerClosed || len(cb.ring) < minSamples {
		return
	}

	rejects := 0
	slippageSum := decimal.Zero
	slippageN := 0
	for _, o := range cb.ring {
		if !o.success {
			rejects++
			continue
		}
		if o.slippage.Sign() != 0 {
			slippageSum = slippageSum.Add(o.slippage.Abs())
			slippageN++
		}
	}

	n := decimal.NewFromInt(int64(len(cb.ring)))
	rejectRate := decimal.NewFromInt(int64(rejects)).Div(n)
	if rejectRate.GreaterThan(cb.maxReject) {
		cb.trip("reject rate " + rejectRate.StringFixed(2))
		return
	}

	if slippageN > 0 && cb.maxSlippage.Sign() > 0 {
		avg := slippageSum.Div(decimal.NewFromInt(int64(slippageN)))
		if avg.GreaterThan(cb.maxSlippage) {
			cb.trip("avg slippage " + avg.StringFixed(4))
		}
	}
}

// trip opens the breaker. Caller holds mu.
func (cb *CircuitBreaker) trip(reason string) {
	cb.state = BreakerOpen
	cb.trippedAt = cb.now()
	cb.logger.Error("circuit breaker tripped", "reason", reason, "cooldown", cb.cooldown)
}
