package llm

import (
	"errors"
	"time"

	"github.com/sony/gobreaker"
)

// ErrCircuitOpen is returned when the circuit breaker is open and rejects
// requests to prevent hammering a failing model endpoint.
var ErrCircuitOpen = errors.New("llm: circuit breaker is open")

// newBreaker builds the gobreaker instance protecting provider calls.
// The circuit trips after maxFailures consecutive failures, stays open for
// timeout, and closes again after two successes in half-open state.
func newBreaker(name string, maxFailures uint32, timeout time.Duration) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 2,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
	})
}

// translateBreakerErr maps gobreaker's internal open-state errors to the
// package-level ErrCircuitOpen sentinel.
func translateBreakerErr(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrCircuitOpen
	}
	return err
}
