// errors.go defines the typed venue-level order rejection.
//
// Transport failures are retried inside the clients and surface as plain
// wrapped errors once the retry budget is exhausted. A 422 on order
// submission is different: the venue understood the request and refused it.
// That case is decoded into OrderError so callers can branch on it and the
// risk engine can record a reject sample for the circuit breaker.
package exchange

import "errors"

// OrderError is a venue-level order rejection (HTTP 422). It carries the
// venue's message and the decoded response payload.
type OrderError struct {
	Message string
	Data    map[string]any
}

func (e *OrderError) Error() string {
	if e.Message == "" {
		return "order rejected"
	}
	return "order rejected: " + e.Message
}

// AsOrderError unwraps err into an OrderError, if it is one.
func AsOrderError(err error) (*OrderError, bool) {
	var oe *OrderError
	if errors.As(err, &oe) {
		return oe, true
	}
	return nil, false
}
