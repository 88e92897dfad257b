// EventSync - External Event Cache Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/eventsync

package source

import (
	"context"
	"errors"
	"testing"

	gobreaker "github.com/sony/gobreaker/v2"
)

type fakeSource struct {
	query func(ctx context.Context, params QueryParams) (*QueryResponse, error)
	ping  func(ctx context.Context) error
}

func (f *fakeSource) Query(ctx context.Context, params QueryParams) (*QueryResponse, error) {
	return f.query(ctx, params)
}

func (f *fakeSource) Ping(ctx context.Context) error {
	if f.ping == nil {
		return nil
	}
	return f.ping(ctx)
}

func TestCircuitBreakerOpensAfterFailures(t *testing.T) {
	t.Parallel()

	calls := 0
	cbc := NewCircuitBreakerClient(&fakeSource{
		query: func(context.Context, QueryParams) (*QueryResponse, error) {
			calls++
			return nil, errors.New("simulated failure")
		},
	})

	if cbc.State() != gobreaker.StateClosed {
		t.Fatalf("initial state = %v, want closed", cbc.State())
	}
	for i := 0; i < 10; i++ {
		_, _ = cbc.Query(context.Background(), QueryParams{})
	}
	if cbc.State() != gobreaker.StateOpen {
		t.Fatalf("state = %v, want open after 10 failures", cbc.State())
	}

	before := calls
	_, err := cbc.Query(context.Background(), QueryParams{})
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Errorf("err = %v, want ErrOpenState", err)
	}
	if calls != before {
		t.Error("open breaker should not call the wrapped source")
	}
}

func TestCircuitBreakerIgnoresCancellation(t *testing.T) {
	t.Parallel()

	cbc := NewCircuitBreakerClient(&fakeSource{
		query: func(context.Context, QueryParams) (*QueryResponse, error) {
			return nil, context.Canceled
		},
	})
	for i := 0; i < 20; i++ {
		_, _ = cbc.Query(context.Background(), QueryParams{})
	}
	if cbc.State() != gobreaker.StateClosed {
		t.Errorf("state = %v, want closed", cbc.State())
	}
}

func TestCircuitBreakerPassesThrough(t *testing.T) {
	t.Parallel()

	want := &QueryResponse{Summary: Summary{Total: 1}}
	cbc := NewCircuitBreakerClient(&fakeSource{
		query: func(context.Context, QueryParams) (*QueryResponse, error) { return want, nil },
	})
	got, err := cbc.Query(context.Background(), QueryParams{})
	if err != nil || got != want {
		t.Fatalf("Query = %v, %v", got, err)
	}
	if err := cbc.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
}
