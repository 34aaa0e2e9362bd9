// http.go holds small helpers shared by the two REST clients.
package exchange

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
)

// parseDecimal converts a venue numeric string to a decimal. Empty strings
// decode to zero; the venues omit fields that have no value yet.
func parseDecimal(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

// sleepCtx sleeps for d or returns early if ctx is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// retryAfter reads the Retry-After header in seconds, falling back to def
// when the header is missing or unparseable.
func retryAfter(resp *resty.Response, def time.Duration) time.Duration {
	h := resp.Header().Get("Retry-After")
	if h == "" {
		return def
	}
	secs, err := strconv.Atoi(h)
	if err != nil || secs <= 0 {
		return def
	}
	return time.Duration(secs) * time.Second
}

// decodeOrderError converts a 422 response body into an OrderError. The body
// is kept even when it does not parse as JSON.
func decodeOrderError(resp *resty.Response) *OrderError {
	oe := &OrderError{Message: resp.String()}
	var body map[string]any
	if err := json.Unmarshal(resp.Body(), &body); err == nil {
		if msg, ok := body["message"].(string); ok {
			oe.Message = msg
		}
		oe.Data = body
	}
	return oe
}
