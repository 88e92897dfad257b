// EventSync - External Event Cache Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/eventsync

// Package source is the client for the external event system of record.
//
// The external API is a paginated query endpoint. Every query carries group and
// type filters, a limit/offset page, a sort order and an optional date range or
// identifier list, and returns a summary block with the total row count next to
// the page of events.
//
// Two implementations of Source are provided:
//   - Client: plain HTTP client with HTTP 429 backoff that honors Retry-After
//   - CircuitBreakerClient: wraps any Source with a gobreaker circuit breaker
package source

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/eventsync/internal/models"
)

// Default query values.
const (
	DefaultPageSize = 100
	DefaultSort     = "start_date_time"
	DefaultOrder    = "asc"
)

// QueryParams is one request to the external query endpoint.
type QueryParams struct {
	Groups  []string
	Types   []string
	Limit   int
	Offset  int
	Sort    string
	Order   string
	Date    time.Time
	DateEnd time.Time
	IDs     []string
}

// Summary is the pagination block of a query response.
type Summary struct {
	Count  int `json:"count"`
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
	Total  int `json:"total"`
}

// QueryResponse is one page of events.
type QueryResponse struct {
	Summary Summary                `json:"summary"`
	Data    []models.ExternalEvent `json:"data"`
}

// Source queries the external system of record.
//
// Implementations must be safe for concurrent use.
type Source interface {
	Query(ctx context.Context, params QueryParams) (*QueryResponse, error)
	Ping(ctx context.Context) error
}

// APIError is returned for non-2xx responses other than exhausted rate limiting.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("external source returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("external source returned status %d: %s", e.StatusCode, e.Body)
}

// ErrRateLimited is returned when HTTP 429 persists after all retries.
var ErrRateLimited = errors.New("external source rate limit exceeded")
