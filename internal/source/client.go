// EventSync - External Event Cache Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/eventsync

package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/eventsync/internal/config"
	"github.com/tomtom215/eventsync/internal/logging"
	"github.com/tomtom215/eventsync/internal/metrics"
)

// maxErrorBodySize limits how much of an error response body is read for diagnostics.
const maxErrorBodySize = 64 * 1024

// queryDateLayout is the date format accepted by the date and dateEnd parameters.
const queryDateLayout = "2006-01-02"

// readBodyForError reads at most maxErrorBodySize bytes of r for an error message.
func readBodyForError(r io.Reader) string {
	body, err := io.ReadAll(io.LimitReader(r, maxErrorBodySize))
	if err != nil {
		return "(failed to read response body)"
	}
	if len(body) == maxErrorBodySize {
		return string(body) + "\n... (truncated)"
	}
	return strings.TrimSpace(string(body))
}

// Client talks to the external query API over HTTP.
//
// Requests that receive HTTP 429 are retried with exponential backoff
// (RetryBaseDelay, doubled per attempt) up to MaxRetries times. A Retry-After
// header in seconds replaces the computed delay.
type Client struct {
	baseURL        string
	apiKey         string
	client         *http.Client
	maxRetries     int
	retryBaseDelay time.Duration
}

// NewClient creates a client from the source configuration.
func NewClient(cfg *config.SourceConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:         cfg.APIKey,
		client:         &http.Client{Timeout: timeout},
		maxRetries:     cfg.MaxRetries,
		retryBaseDelay: cfg.RetryBaseDelay,
	}
}

var _ Source = (*Client)(nil)

// Query requests one page of events.
func (c *Client) Query(ctx context.Context, params QueryParams) (*QueryResponse, error) {
	start := time.Now()
	resp, err := c.query(ctx, params)
	metrics.RecordExternalRequest(time.Since(start), err)
	return resp, err
}

func (c *Client) query(ctx context.Context, params QueryParams) (*QueryResponse, error) {
	reqURL := c.baseURL + "/events?" + encodeParams(params).Encode()

	resp, err := c.doRequestWithRateLimit(ctx, reqURL)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: readBodyForError(resp.Body)}
	}

	var out QueryResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode events response: %w", err)
	}
	if out.Summary.Count == 0 {
		out.Summary.Count = len(out.Data)
	}

	logging.Debug().
		Int("offset", params.Offset).
		Int("limit", params.Limit).
		Int("count", len(out.Data)).
		Int("total", out.Summary.Total).
		Msg("Fetched external events page")
	return &out, nil
}

// Ping verifies connectivity by requesting a single event.
func (c *Client) Ping(ctx context.Context) error {
	reqURL := c.baseURL + "/events?" + encodeParams(QueryParams{Limit: 1}).Encode()
	resp, err := c.doRequestWithRateLimit(ctx, reqURL)
	if err != nil {
		return fmt.Errorf("failed to ping external source: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBodySize))

	if resp.StatusCode != http.StatusOK {
		return &APIError{StatusCode: resp.StatusCode}
	}
	return nil
}

// doRequestWithRateLimit performs a GET, retrying HTTP 429 responses with backoff.
// The context cancels both the request and any backoff wait.
func (c *Client) doRequestWithRateLimit(ctx context.Context, reqURL string) (*http.Response, error) {
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		if c.apiKey != "" {
			req.Header.Set("X-Api-Key", c.apiKey)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("HTTP request failed: %w", err)
		}
		if resp.StatusCode != http.StatusTooManyRequests {
			return resp, nil
		}

		metrics.ExternalRateLimited.Inc()
		retryAfter := resp.Header.Get("Retry-After")
		_ = resp.Body.Close()

		if attempt >= c.maxRetries {
			return nil, fmt.Errorf("%w after %d retries (HTTP 429)", ErrRateLimited, c.maxRetries)
		}

		delay := c.retryBaseDelay * time.Duration(1<<uint(attempt))
		if seconds, err := strconv.Atoi(strings.TrimSpace(retryAfter)); err == nil && seconds >= 0 {
			delay = time.Duration(seconds) * time.Second
		}
		logging.Warn().Int("attempt", attempt+1).Dur("delay", delay).Msg("External source rate limited, backing off")

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		}
	}
}

// encodeParams builds the query string for params. Empty values are omitted.
func encodeParams(p QueryParams) url.Values {
	v := url.Values{}
	if len(p.Groups) > 0 {
		v.Set("groups", strings.Join(p.Groups, ","))
	}
	if len(p.Types) > 0 {
		v.Set("types", strings.Join(p.Types, ","))
	}
	if p.Limit > 0 {
		v.Set("limit", strconv.Itoa(p.Limit))
	}
	if p.Offset > 0 {
		v.Set("offset", strconv.Itoa(p.Offset))
	}
	if p.Sort != "" {
		v.Set("sort", p.Sort)
	}
	if p.Order != "" {
		v.Set("order", p.Order)
	}
	if !p.Date.IsZero() {
		v.Set("date", p.Date.UTC().Format(queryDateLayout))
	}
	if !p.DateEnd.IsZero() {
		v.Set("dateEnd", p.DateEnd.UTC().Format(queryDateLayout))
	}
	if len(p.IDs) > 0 {
		v.Set("ids", strings.Join(p.IDs, ","))
	}
	return v
}
