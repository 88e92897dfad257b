// EventSync - External Event Cache Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/eventsync

package resolver

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tomtom215/eventsync/internal/config"
	"github.com/tomtom215/eventsync/internal/models"
	"github.com/tomtom215/eventsync/internal/source"
	"github.com/tomtom215/eventsync/internal/store/badgerstore"
	intsync "github.com/tomtom215/eventsync/internal/sync"
)

type fakeSource struct {
	query func(ctx context.Context, p source.QueryParams) (*source.QueryResponse, error)
	calls []source.QueryParams
}

func (f *fakeSource) Query(ctx context.Context, p source.QueryParams) (*source.QueryResponse, error) {
	f.calls = append(f.calls, p)
	return f.query(ctx, p)
}

func (f *fakeSource) Ping(context.Context) error { return nil }

func respond(events ...models.ExternalEvent) func(context.Context, source.QueryParams) (*source.QueryResponse, error) {
	return func(context.Context, source.QueryParams) (*source.QueryResponse, error) {
		return &source.QueryResponse{Summary: source.Summary{Total: len(events)}, Data: events}, nil
	}
}

func event(id, title, url string) models.ExternalEvent {
	return models.ExternalEvent{
		ID:            models.ExternalID(id),
		Title:         title,
		ItemType:      "walk",
		GroupCode:     "G1",
		URL:           url,
		StartDateTime: models.NewTimestamp(time.Date(2026, 4, 12, 10, 0, 0, 0, time.UTC)),
	}
}

func setup(t *testing.T, src *fakeSource) (*Resolver, *badgerstore.Store) {
	t.Helper()
	s, err := badgerstore.Open(badgerstore.Options{InMemory: true})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return New(s, src, intsync.NewUpserter(s, 1), StaticSettings(&config.SourceConfig{Groups: []string{"G1"}})), s
}

func TestResolveAmbiguousDoesNotCache(t *testing.T) {
	t.Parallel()

	src := &fakeSource{query: respond(
		event("1", "Spring Walk", "https://x.org/e/spring-walk"),
		event("2", "Spring Walk", "https://x.org/e/spring-walk-2"),
	)}
	r, s := setup(t, src)

	res, err := r.Resolve(context.Background(), "spring-walk", Options{AllowCacheLink: true})
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != OutcomeAmbiguous || len(res.Candidates) != 2 || res.Event != nil {
		t.Errorf("result = %+v", res)
	}
	if n, _ := s.Count(context.Background()); n != 0 {
		t.Errorf("Count = %d, want 0", n)
	}
}

func TestResolveSingleMatchCachesOnce(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	src := &fakeSource{query: respond(event("77", "Big Day Out", "https://x.org/events/spring-walk"))}
	r, s := setup(t, src)

	res, err := r.Resolve(ctx, "spring-walk", Options{AllowCacheLink: true})
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != OutcomeCached || res.Record == nil {
		t.Fatalf("result = %+v", res)
	}
	if res.Record.InputSource != models.InputOnDemand || res.Record.Provenance.Source != models.SourceExternal {
		t.Errorf("record = %+v", res.Record)
	}
	if got := src.calls[0]; len(got.IDs) != 1 || got.IDs[0] != "spring-walk" || got.Groups[0] != "G1" {
		t.Errorf("broad query = %+v", got)
	}

	// The second lookup is a cache hit with a narrow query and no new record.
	res, err = r.Resolve(ctx, "spring-walk", Options{AllowCacheLink: true})
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != OutcomeCacheHit {
		t.Errorf("outcome = %s, want cache_hit", res.Outcome)
	}
	if narrow := src.calls[1]; len(narrow.IDs) != 1 || narrow.IDs[0] != "77" || narrow.Limit != 1 {
		t.Errorf("narrow query = %+v", narrow)
	}
	if n, _ := s.Count(ctx); n != 1 {
		t.Errorf("Count = %d, want 1", n)
	}
}

func TestResolveCacheHitReturnsFreshView(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	fresh := event("5", "Spring Walk", "https://x.org/e/spring-walk")
	fresh.Status = "cancelled"
	src := &fakeSource{query: respond(fresh)}
	r, s := setup(t, src)

	stale := event("5", "Spring Walk", "https://x.org/e/spring-walk")
	if _, _, err := intsync.NewUpserter(s, 1).Upsert(ctx, &stale, models.InputSync, nil); err != nil {
		t.Fatal(err)
	}

	res, err := r.Resolve(ctx, "Spring-Walk", Options{})
	if err != nil {
		t.Fatal(err)
	}
	if res.Event.Status != "cancelled" {
		t.Errorf("event status = %q, want the fresh external view", res.Event.Status)
	}
	rec, err := s.FindByExternalID(ctx, "5")
	if err != nil {
		t.Fatal(err)
	}
	if rec.Provenance.SyncedVersion != 1 {
		t.Errorf("cache hit rewrote the record: version %d", rec.Provenance.SyncedVersion)
	}
}

func TestResolveRequiresSlugMatchAndPermission(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		event models.ExternalEvent
		opts  Options
	}{
		{"mismatched slug", event("1", "Coast Ride", "https://x.org/e/coast-ride"), Options{AllowCacheLink: true}},
		{"linking not allowed", event("1", "Spring Walk", "https://x.org/e/spring-walk"), Options{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r, s := setup(t, &fakeSource{query: respond(tt.event)})

			res, err := r.Resolve(context.Background(), "spring-walk", tt.opts)
			if err != nil {
				t.Fatal(err)
			}
			if res.Outcome != OutcomeUncached || res.Event == nil {
				t.Errorf("result = %+v", res)
			}
			if n, _ := s.Count(context.Background()); n != 0 {
				t.Errorf("Count = %d, want 0", n)
			}
		})
	}
}

func TestResolveSurfacesExternalErrors(t *testing.T) {
	t.Parallel()

	src := &fakeSource{query: func(context.Context, source.QueryParams) (*source.QueryResponse, error) {
		return nil, &source.APIError{StatusCode: 503}
	}}
	r, s := setup(t, src)

	_, err := r.Resolve(context.Background(), "spring-walk", Options{AllowCacheLink: true})
	if !errors.Is(err, ErrExternalQuery) {
		t.Fatalf("err = %v, want ErrExternalQuery", err)
	}
	var apiErr *source.APIError
	if !errors.As(err, &apiErr) {
		t.Error("underlying APIError should be preserved")
	}
	if n, _ := s.Count(context.Background()); n != 0 {
		t.Errorf("Count = %d, want 0", n)
	}
}

func TestResolveNotFound(t *testing.T) {
	t.Parallel()

	r, _ := setup(t, &fakeSource{query: respond()})
	res, err := r.Resolve(context.Background(), "nothing-here", Options{AllowCacheLink: true})
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != OutcomeNotFound {
		t.Errorf("outcome = %s", res.Outcome)
	}
}

func TestResolveUsesCurrentSettings(t *testing.T) {
	t.Parallel()

	bySource := map[string]*fakeSource{
		"http://old.invalid": {query: respond()},
		"http://new.invalid": {query: respond()},
	}
	reloading := source.NewReloading(&config.SourceConfig{BaseURL: "http://old.invalid"},
		func(sc *config.SourceConfig) source.Source { return bySource[sc.BaseURL] })

	s, err := badgerstore.Open(badgerstore.Options{InMemory: true})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = s.Close() })

	current := &config.SourceConfig{BaseURL: "http://old.invalid", Groups: []string{"G1"}}
	r := New(s, reloading, intsync.NewUpserter(s, 1), func() (*config.SourceConfig, error) { return current, nil })

	if _, err := r.Resolve(context.Background(), "spring-walk", Options{}); err != nil {
		t.Fatal(err)
	}
	current = &config.SourceConfig{BaseURL: "http://new.invalid", Groups: []string{"G2"}, Types: []string{"ride"}}
	if _, err := r.Resolve(context.Background(), "spring-walk", Options{}); err != nil {
		t.Fatal(err)
	}

	old, reloaded := bySource["http://old.invalid"], bySource["http://new.invalid"]
	if len(old.calls) != 1 || len(reloaded.calls) != 1 {
		t.Fatalf("calls old=%d new=%d, want 1 each", len(old.calls), len(reloaded.calls))
	}
	if got := reloaded.calls[0]; len(got.Groups) != 1 || got.Groups[0] != "G2" || len(got.Types) != 1 || got.Types[0] != "ride" {
		t.Errorf("reloaded query scope = groups %v types %v", got.Groups, got.Types)
	}
}

func TestResolveSettingsError(t *testing.T) {
	t.Parallel()

	s, err := badgerstore.Open(badgerstore.Options{InMemory: true})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = s.Close() })

	src := &fakeSource{query: respond()}
	loadErr := errors.New("bad yaml")
	r := New(s, src, intsync.NewUpserter(s, 1), func() (*config.SourceConfig, error) { return nil, loadErr })

	if _, err := r.Resolve(context.Background(), "spring-walk", Options{}); !errors.Is(err, loadErr) {
		t.Errorf("err = %v, want %v", err, loadErr)
	}
	if len(src.calls) != 0 {
		t.Errorf("source queried %d times after settings failure", len(src.calls))
	}
}
