// EventSync - External Event Cache Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/eventsync

package source

import (
	"context"
	"sync"
	"time"

	"github.com/tomtom215/eventsync/internal/config"
	"github.com/tomtom215/eventsync/internal/logging"
)

// Factory builds a Source for one source configuration.
type Factory func(cfg *config.SourceConfig) Source

// DefaultFactory builds an HTTP client wrapped in the circuit breaker.
func DefaultFactory(cfg *config.SourceConfig) Source {
	return NewCircuitBreakerClient(NewClient(cfg))
}

// Reloader is implemented by sources that follow configuration reloads.
type Reloader interface {
	For(cfg *config.SourceConfig) Source
}

// For returns the Source to use with cfg: src.For(cfg) when src is a Reloader,
// src itself otherwise. A nil cfg always yields src.
func For(src Source, cfg *config.SourceConfig) Source {
	if r, ok := src.(Reloader); ok && cfg != nil {
		return r.For(cfg)
	}
	return src
}

// connection is the part of SourceConfig a built client depends on.
// Groups, types and page size travel with each query instead.
type connection struct {
	baseURL        string
	apiKey         string
	timeout        time.Duration
	maxRetries     int
	retryBaseDelay time.Duration
}

func connectionOf(cfg *config.SourceConfig) connection {
	return connection{
		baseURL:        cfg.BaseURL,
		apiKey:         cfg.APIKey,
		timeout:        cfg.Timeout,
		maxRetries:     cfg.MaxRetries,
		retryBaseDelay: cfg.RetryBaseDelay,
	}
}

// Reloading holds the client built for the most recent source configuration.
//
// For rebuilds the client only when the connection settings differ from the
// ones it was built with; otherwise the existing client, and with it the
// breaker state, is reused. Query and Ping use the current client.
type Reloading struct {
	factory Factory

	mu      sync.Mutex
	conn    connection
	current Source
}

var (
	_ Source   = (*Reloading)(nil)
	_ Reloader = (*Reloading)(nil)
)

// NewReloading builds the initial client for cfg. A nil factory means DefaultFactory.
func NewReloading(cfg *config.SourceConfig, factory Factory) *Reloading {
	if factory == nil {
		factory = DefaultFactory
	}
	return &Reloading{
		factory: factory,
		conn:    connectionOf(cfg),
		current: factory(cfg),
	}
}

// For returns the client for cfg, rebuilding it if the connection settings changed.
func (r *Reloading) For(cfg *config.SourceConfig) Source {
	next := connectionOf(cfg)

	r.mu.Lock()
	defer r.mu.Unlock()
	if next != r.conn {
		logging.Info().
			Str("base_url", cfg.BaseURL).
			Bool("api_key_changed", next.apiKey != r.conn.apiKey).
			Msg("External source settings changed, rebuilding client")
		r.current = r.factory(cfg)
		r.conn = next
	}
	return r.current
}

// Current returns the client built for the most recent configuration.
func (r *Reloading) Current() Source {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Query runs params against the current client.
func (r *Reloading) Query(ctx context.Context, params QueryParams) (*QueryResponse, error) {
	return r.Current().Query(ctx, params)
}

// Ping checks the current client.
func (r *Reloading) Ping(ctx context.Context) error {
	return r.Current().Ping(ctx)
}
