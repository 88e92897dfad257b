// EventSync - External Event Cache Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/eventsync

// Package resolver serves single-event lookups by slug.
//
// A slug is looked up in the cache first. A cached record is refreshed with a
// narrow external query and returned without writing. On a miss a broad external
// query is issued, and its result is cached only when it is a single candidate
// whose URL tail or kebab-cased title equals the slug.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tomtom215/eventsync/internal/config"
	"github.com/tomtom215/eventsync/internal/logging"
	"github.com/tomtom215/eventsync/internal/metrics"
	"github.com/tomtom215/eventsync/internal/models"
	"github.com/tomtom215/eventsync/internal/source"
	"github.com/tomtom215/eventsync/internal/store"
	intsync "github.com/tomtom215/eventsync/internal/sync"
)

// ErrExternalQuery wraps failures of the external source during resolution.
var ErrExternalQuery = errors.New("external query failed")

// broadQueryLimit caps the broad query. More than one candidate is already ambiguous.
const broadQueryLimit = 10

// Lookup outcomes.
const (
	OutcomeCacheHit  = "cache_hit"
	OutcomeCached    = "cached"
	OutcomeUncached  = "uncached"
	OutcomeAmbiguous = "ambiguous"
	OutcomeNotFound  = "not_found"
	OutcomeError     = "error"
)

// Options controls one resolution.
type Options struct {
	// AllowCacheLink permits caching a validated single candidate on a cache miss.
	AllowCacheLink bool
}

// Result is the outcome of Resolve.
type Result struct {
	// Event is the freshest single-event view, or nil when the slug is unknown or ambiguous.
	Event *models.ExternalEvent `json:"event,omitempty"`

	// Record is the cached record, when there is one.
	Record *models.CachedEventRecord `json:"record,omitempty"`

	// Candidates is the raw broad-query result on a cache miss.
	Candidates []models.ExternalEvent `json:"candidates,omitempty"`

	// Outcome is one of the Outcome* constants.
	Outcome string `json:"outcome"`
}

// SettingsFunc returns the source settings a resolution runs with.
type SettingsFunc func() (*config.SourceConfig, error)

// StaticSettings always returns cfg.
func StaticSettings(cfg *config.SourceConfig) SettingsFunc {
	return func() (*config.SourceConfig, error) { return cfg, nil }
}

// Resolver resolves slugs against the cache and the external source.
type Resolver struct {
	store    store.EventStore
	src      source.Source
	upserter *intsync.Upserter
	settings SettingsFunc
}

// New creates a resolver. settings is consulted on every resolution: its groups
// and types scope the broad query, and a source.Reloader src is asked for the
// client matching it.
func New(s store.EventStore, src source.Source, upserter *intsync.Upserter, settings SettingsFunc) *Resolver {
	if settings == nil {
		settings = StaticSettings(&config.SourceConfig{})
	}
	return &Resolver{store: s, src: src, upserter: upserter, settings: settings}
}

// Resolve looks up slug. External failures are returned wrapped in ErrExternalQuery
// and never leave a partially cached record behind.
func (r *Resolver) Resolve(ctx context.Context, slug string, opts Options) (*Result, error) {
	slug = strings.ToLower(strings.TrimSpace(slug))
	if slug == "" {
		return nil, errors.New("empty slug")
	}

	res, err := r.resolve(ctx, slug, opts)
	outcome := OutcomeError
	if res != nil {
		outcome = res.Outcome
	}
	metrics.ResolverLookups.WithLabelValues(outcome).Inc()
	return res, err
}

func (r *Resolver) resolve(ctx context.Context, slug string, opts Options) (*Result, error) {
	log := logging.Ctx(ctx)

	settings, err := r.settings()
	if err != nil {
		return nil, fmt.Errorf("load source settings: %w", err)
	}
	src := source.For(r.src, settings)

	rec, err := r.store.FindBySlug(ctx, slug)
	switch {
	case err == nil:
		return r.refresh(ctx, src, rec)
	case !errors.Is(err, store.ErrNotFound):
		return nil, fmt.Errorf("find by slug: %w", err)
	}

	resp, err := src.Query(ctx, source.QueryParams{
		Groups: settings.Groups,
		Types:  settings.Types,
		IDs:    []string{slug},
		Limit:  broadQueryLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExternalQuery, err)
	}

	res := &Result{Candidates: resp.Data}
	switch len(resp.Data) {
	case 0:
		res.Outcome = OutcomeNotFound
		return res, nil
	case 1:
	default:
		log.Info().Str("slug", slug).Int("candidates", len(resp.Data)).Msg("Ambiguous slug, not caching")
		res.Outcome = OutcomeAmbiguous
		return res, nil
	}

	candidate := resp.Data[0]
	res.Event = &candidate
	res.Outcome = OutcomeUncached
	if !opts.AllowCacheLink {
		return res, nil
	}
	if !candidate.MatchesSlug(slug) {
		log.Info().Str("slug", slug).Str("url", candidate.URL).Str("title", candidate.Title).
			Msg("Candidate does not match slug, not caching")
		return res, nil
	}

	cached, _, err := r.upserter.Upsert(ctx, &candidate, models.InputOnDemand, nil)
	if err != nil {
		return nil, fmt.Errorf("cache resolved event: %w", err)
	}
	log.Info().Str("slug", slug).Str("record_id", cached.ID).Msg("Cached on-demand event")
	res.Record = cached
	res.Outcome = OutcomeCached
	return res, nil
}

// refresh issues a narrow query for a cached record and returns the fresh view.
func (r *Resolver) refresh(ctx context.Context, src source.Source, rec *models.CachedEventRecord) (*Result, error) {
	res := &Result{Record: rec, Outcome: OutcomeCacheHit}
	view := rec.Projection
	res.Event = &view

	extID := rec.ExternalID()
	if extID.IsZero() {
		return res, nil
	}

	params := source.QueryParams{IDs: []string{extID.String()}, Limit: 1}
	if rec.Projection.GroupCode != "" {
		params.Groups = []string{rec.Projection.GroupCode}
	}
	resp, err := src.Query(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExternalQuery, err)
	}
	for i := range resp.Data {
		if resp.Data[i].ID == extID {
			fresh := resp.Data[i]
			res.Event = &fresh
			break
		}
	}
	return res, nil
}
