// ratelimit.go implements token-bucket rate limiting for the broker APIs.
//
// Each venue publishes a hard request budget: the equities broker allows
// 200 requests per minute, the prediction venue 10 requests per second.
// This file provides a smooth token-bucket implementation that refills
// continuously (rather than in fixed-window bursts) to avoid hitting hard
// limits. Every REST call acquires a token via Wait before the HTTP request.
package exchange

import (
	"context"
	"sync"
	"time"
)

// TokenBucket implements a token-bucket rate limiter with continuous refill.
// Callers block in Wait() until a token is available or the context is cancelled.
type TokenBucket struct {
	mu       sync.Mutex
	tokens   float64   // current available tokens (fractional allowed)
	capacity float64   // maximum burst size
	rate     float64   // tokens refilled per second
	lastTime time.Time // last time tokens were calculated
}

// NewTokenBucket creates a rate limiter with the given capacity and refill rate.
func NewTokenBucket(capacity, ratePerSecond float64) *TokenBucket {
	return &TokenBucket{
		tokens:   capacity,
		capacity: capacity,
		rate:     ratePerSecond,
		lastTime: time.Now(),
	}
}

// Wait blocks until a token is available or ctx is cancelled.
func (tb *TokenBucket) Wait(ctx context.Context) error {
	for {
		tb.mu.Lock()
		now := time.Now()
		elapsed := now.Sub(tb.lastTime).Seconds()
		tb.tokens += elapsed * tb.rate
		if tb.tokens > tb.capacity {
			tb.tokens = tb.capacity
		}
		tb.lastTime = now

		if tb.tokens >= 1 {
			tb.tokens--
			tb.mu.Unlock()
			return nil
		}

		// Calculate wait time for next token
		wait := time.Duration((1 - tb.tokens) / tb.rate * float64(time.Second))
		tb.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
			// retry
		}
	}
}

// NewEquitiesLimiter creates a bucket for the equities broker's per-minute
// budget. Capacity equals the full minute allowance; refill is spread evenly.
func NewEquitiesLimiter(requestsPerMinute int) *TokenBucket {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 200
	}
	return NewTokenBucket(float64(requestsPerMinute), float64(requestsPerMinute)/60)
}

// NewPredictionLimiter creates a bucket for the prediction venue's
// per-second budget.
func NewPredictionLimiter(requestsPerSecond int) *TokenBucket {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 10
	}
	return NewTokenBucket(float64(requestsPerSecond), float64(requestsPerSecond))
}
