// EventSync - External Event Cache Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/eventsync

package sync

import (
	"context"
	"fmt"
	gosync "sync"
	"testing"
	"time"

	"github.com/tomtom215/eventsync/internal/config"
	"github.com/tomtom215/eventsync/internal/models"
	"github.com/tomtom215/eventsync/internal/source"
	"github.com/tomtom215/eventsync/internal/store/badgerstore"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeSource struct {
	query func(ctx context.Context, p source.QueryParams) (*source.QueryResponse, error)
}

func (f *fakeSource) Query(ctx context.Context, p source.QueryParams) (*source.QueryResponse, error) {
	return f.query(ctx, p)
}

func (f *fakeSource) Ping(context.Context) error { return nil }

// pagedSource serves the events returned by list, sliced by offset and limit.
func pagedSource(list func(p source.QueryParams) ([]models.ExternalEvent, error)) *fakeSource {
	return &fakeSource{query: func(_ context.Context, p source.QueryParams) (*source.QueryResponse, error) {
		all, err := list(p)
		if err != nil {
			return nil, err
		}
		end := p.Offset + p.Limit
		if end > len(all) {
			end = len(all)
		}
		page := []models.ExternalEvent{}
		if p.Offset < len(all) {
			page = append(page, all[p.Offset:end]...)
		}
		return &source.QueryResponse{
			Summary: source.Summary{Count: len(page), Offset: p.Offset, Limit: p.Limit, Total: len(all)},
			Data:    page,
		}, nil
	}}
}

func makeEvent(id int, title string) models.ExternalEvent {
	return models.ExternalEvent{
		ID:            models.ExternalID(fmt.Sprint(id)),
		Title:         title,
		ItemType:      "walk",
		GroupCode:     "G1",
		Status:        "approved",
		StartDateTime: models.NewTimestamp(testNow.Add(time.Duration(id) * time.Hour)),
		URL:           "https://events.example.org/e/" + models.Kebab(title),
	}
}

func makeEvents(n int) []models.ExternalEvent {
	events := make([]models.ExternalEvent, n)
	for i := range events {
		events[i] = makeEvent(i+1, fmt.Sprintf("Event %d", i+1))
	}
	return events
}

func openStore(t *testing.T) *badgerstore.Store {
	t.Helper()
	s, err := badgerstore.Open(badgerstore.Options{InMemory: true})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Source.BaseURL = "http://events.invalid"
	cfg.Source.PageSize = 100
	cfg.Sync.RequestDelay = 0
	cfg.Sync.FetchAttempts = 1
	cfg.Sync.UpsertConcurrency = 4
	return cfg
}

func newTestOrchestrator(t *testing.T, src source.Source, reporter ProgressReporter) (*Orchestrator, *badgerstore.Store) {
	t.Helper()
	s := openStore(t)
	o := NewOrchestrator(s, src, reporter)
	o.now = func() time.Time { return testNow }
	return o, s
}

type progressEvent struct {
	kind    string
	percent int
	message string
	result  *models.SyncResult
}

type recordingReporter struct {
	mu     gosync.Mutex
	events []progressEvent
}

func (r *recordingReporter) Progress(_ context.Context, percent int, message string) {
	r.add(progressEvent{kind: "PROGRESS", percent: percent, message: message})
}

func (r *recordingReporter) Complete(_ context.Context, result *models.SyncResult) {
	r.add(progressEvent{kind: "COMPLETE", result: result})
}

func (r *recordingReporter) Error(_ context.Context, message string) {
	r.add(progressEvent{kind: "ERROR", message: message})
}

func (r *recordingReporter) add(e progressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingReporter) kinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.kind
	}
	return out
}
