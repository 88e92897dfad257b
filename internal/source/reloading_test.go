// EventSync - External Event Cache Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/eventsync

package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tomtom215/eventsync/internal/config"
)

type stubSource struct {
	baseURL string
}

func (s *stubSource) Query(context.Context, QueryParams) (*QueryResponse, error) {
	return &QueryResponse{}, nil
}

func (s *stubSource) Ping(context.Context) error { return nil }

func TestReloadingRebuildsOnConnectionChange(t *testing.T) {
	t.Parallel()

	var built int
	factory := func(cfg *config.SourceConfig) Source {
		built++
		return &stubSource{baseURL: cfg.BaseURL}
	}
	cfg := &config.SourceConfig{BaseURL: "http://a.example", APIKey: "k1", Groups: []string{"G1"}}
	r := NewReloading(cfg, factory)
	first := r.Current()

	tests := []struct {
		name    string
		mutate  func(c *config.SourceConfig)
		rebuild bool
	}{
		{name: "unchanged", mutate: func(*config.SourceConfig) {}, rebuild: false},
		{name: "groups only", mutate: func(c *config.SourceConfig) { c.Groups = []string{"G2"} }, rebuild: false},
		{name: "page size only", mutate: func(c *config.SourceConfig) { c.PageSize = 7 }, rebuild: false},
		{name: "api key", mutate: func(c *config.SourceConfig) { c.APIKey = "k2" }, rebuild: true},
		{name: "base url", mutate: func(c *config.SourceConfig) { c.BaseURL = "http://b.example" }, rebuild: true},
		{name: "timeout", mutate: func(c *config.SourceConfig) { c.Timeout = time.Second }, rebuild: true},
	}
	for _, tt := range tests {
		next := *cfg
		tt.mutate(&next)
		before := built
		got := r.For(&next)
		if rebuilt := built != before; rebuilt != tt.rebuild {
			t.Errorf("%s: rebuilt = %v, want %v", tt.name, rebuilt, tt.rebuild)
		}
		if got != r.Current() {
			t.Errorf("%s: For result is not the current client", tt.name)
		}
		cfg = &next
	}

	if r.Current() == first {
		t.Error("client was never replaced")
	}
	if got := r.Current().(*stubSource).baseURL; got != "http://b.example" {
		t.Errorf("current base url = %q", got)
	}
}

func TestReloadingQueriesReloadedBaseURL(t *testing.T) {
	t.Parallel()

	var hitsA, hitsB atomic.Int32
	handler := func(hits *atomic.Int32) http.HandlerFunc {
		return func(w http.ResponseWriter, _ *http.Request) {
			hits.Add(1)
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"summary":{"total":0},"data":[]}`))
		}
	}
	serverA := httptest.NewServer(handler(&hitsA))
	defer serverA.Close()
	serverB := httptest.NewServer(handler(&hitsB))
	defer serverB.Close()

	cfg := config.SourceConfig{BaseURL: serverA.URL, APIKey: "secret", Timeout: 5 * time.Second}
	r := NewReloading(&cfg, nil)
	if _, err := For(r, &cfg).Query(context.Background(), QueryParams{Limit: 1}); err != nil {
		t.Fatal(err)
	}

	reloaded := cfg
	reloaded.BaseURL = serverB.URL
	if _, err := For(r, &reloaded).Query(context.Background(), QueryParams{Limit: 1}); err != nil {
		t.Fatal(err)
	}
	if err := r.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}

	if hitsA.Load() != 1 {
		t.Errorf("requests to old base url = %d, want 1", hitsA.Load())
	}
	if hitsB.Load() < 2 {
		t.Errorf("requests to reloaded base url = %d, want at least 2", hitsB.Load())
	}
}

func TestForPlainSource(t *testing.T) {
	t.Parallel()

	plain := &stubSource{}
	if got := For(plain, &config.SourceConfig{BaseURL: "http://x"}); got != plain {
		t.Error("plain source should be returned as is")
	}
	r := NewReloading(&config.SourceConfig{}, func(*config.SourceConfig) Source { return plain })
	if got := For(r, nil); got != r {
		t.Error("nil config should return the source itself")
	}
}
