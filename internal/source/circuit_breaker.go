// EventSync - External Event Cache Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/eventsync

package source

import (
	"context"
	"errors"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/eventsync/internal/logging"
	"github.com/tomtom215/eventsync/internal/metrics"
)

// BreakerName labels the external source breaker in metrics and logs.
const BreakerName = "external-events-api"

// CircuitBreakerClient wraps a Source with a circuit breaker.
//
// The breaker opens when at least 60% of 10 or more requests in a one-minute
// window fail, stays open for two minutes, then lets up to 3 probe requests through.
// Context cancellation is not counted as a failure.
type CircuitBreakerClient struct {
	next Source
	cb   *gobreaker.CircuitBreaker[*QueryResponse]
	name string
}

var _ Source = (*CircuitBreakerClient)(nil)

// NewCircuitBreakerClient wraps next with a breaker.
func NewCircuitBreakerClient(next Source) *CircuitBreakerClient {
	name := BreakerName
	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)

	cb := gobreaker.NewCircuitBreaker[*QueryResponse](gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			if failureRatio >= 0.6 {
				logging.Warn().
					Uint32("failures", counts.TotalFailures).
					Float64("failure_rate", failureRatio*100).
					Msg("[CIRCUIT BREAKER] Opening circuit")
				return true
			}
			return false
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().Str("from", from.String()).Str("to", to.String()).Msg("[CIRCUIT BREAKER] State transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
		},
	})

	return &CircuitBreakerClient{next: next, cb: cb, name: name}
}

// Query runs next.Query through the breaker.
func (c *CircuitBreakerClient) Query(ctx context.Context, params QueryParams) (*QueryResponse, error) {
	resp, err := c.cb.Execute(func() (*QueryResponse, error) {
		return c.next.Query(ctx, params)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		logging.Warn().Err(err).Msg("[CIRCUIT BREAKER] Request rejected")
	}
	return resp, err
}

// Ping runs next.Ping through the breaker.
func (c *CircuitBreakerClient) Ping(ctx context.Context) error {
	_, err := c.cb.Execute(func() (*QueryResponse, error) {
		return nil, c.next.Ping(ctx)
	})
	return err
}

// State returns the current breaker state.
func (c *CircuitBreakerClient) State() gobreaker.State {
	return c.cb.State()
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
