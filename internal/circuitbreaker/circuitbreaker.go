// Package circuitbreaker builds the per-provider breakers that let an adapter
// fail fast while its upstream is known to be down.
package circuitbreaker

import (
	"errors"
	"time"

	"github.com/sony/gobreaker"
)

// Config holds circuit breaker parameters.
type Config struct {
	// FailureThreshold is the number of consecutive failures that opens the circuit.
	FailureThreshold int
	// Timeout is how long the circuit stays open before letting a probe through.
	Timeout time.Duration
	// Probes is the number of requests allowed while half-open.
	Probes int
	// OnStateChange is optional, for metrics and logs.
	OnStateChange func(name string, from, to gobreaker.State)
}

// New creates a breaker named after the provider it protects.
func New(name string, cfg Config) *gobreaker.CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Probes <= 0 {
		cfg.Probes = 1
	}
	threshold := uint32(cfg.FailureThreshold)
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: uint32(cfg.Probes),
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: cfg.OnStateChange,
	})
}

// IsOpen reports whether err was produced by a breaker refusing the call.
func IsOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

// StateValue maps a breaker state to the gauge value exported in metrics.
func StateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
