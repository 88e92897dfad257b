// EventSync - External Event Cache Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/eventsync

package sync

import (
	"context"
	"errors"
	"strings"
	gosync "sync"
	"testing"
	"time"

	"github.com/tomtom215/eventsync/internal/config"
	"github.com/tomtom215/eventsync/internal/models"
	"github.com/tomtom215/eventsync/internal/source"
)

func TestSyncScenario(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	var mu gosync.Mutex
	events := makeEvents(130)
	pages := 0
	src := pagedSource(func(source.QueryParams) ([]models.ExternalEvent, error) {
		mu.Lock()
		defer mu.Unlock()
		pages++
		return append([]models.ExternalEvent(nil), events...), nil
	})
	o, s := newTestOrchestrator(t, src, nil)
	cfg := testConfig()

	first, err := o.Sync(ctx, cfg, Options{})
	if err != nil {
		t.Fatalf("first sync: %v", err)
	}
	if first.Added != 130 || first.Updated != 0 || first.TotalProcessed != 130 {
		t.Fatalf("first sync = %s (processed %d)", first.Summary(), first.TotalProcessed)
	}
	if pages != 2 {
		t.Errorf("pages = %d, want 2 (100 then 30)", pages)
	}

	second, err := o.Sync(ctx, cfg, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if second.Added != 0 || second.Updated != first.TotalProcessed {
		t.Fatalf("second sync = %s", second.Summary())
	}

	before, err := s.FindByExternalID(ctx, "7")
	if err != nil {
		t.Fatal(err)
	}
	mu.Lock()
	events[6].Title = "Renamed Walk"
	mu.Unlock()

	third, err := o.Sync(ctx, cfg, Options{})
	if err != nil {
		t.Fatal(err)
	}
	after, err := s.FindByExternalID(ctx, "7")
	if err != nil {
		t.Fatal(err)
	}
	if after.Provenance.SyncedVersion != before.Provenance.SyncedVersion+1 {
		t.Errorf("SyncedVersion %d -> %d, want +1", before.Provenance.SyncedVersion, after.Provenance.SyncedVersion)
	}
	if after.Projection.Title != "Renamed Walk" || after.ID != before.ID {
		t.Errorf("record after rename = %s %q", after.ID, after.Projection.Title)
	}
	if third.Added != 0 || third.Updated != 130 {
		t.Errorf("third sync = %s", third.Summary())
	}
	if n, _ := s.Count(ctx); n != 130 {
		t.Errorf("Count = %d, want 130", n)
	}
}

func TestSyncIsolatesChunkFailures(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	src := pagedSource(func(p source.QueryParams) ([]models.ExternalEvent, error) {
		month := int(p.Date.Month())
		if month == 2 {
			return nil, errors.New("upstream timeout")
		}
		return []models.ExternalEvent{makeEvent(month, "Monthly Meet")}, nil
	})
	reporter := &recordingReporter{}
	o, s := newTestOrchestrator(t, src, reporter)

	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	result, err := o.Sync(ctx, testConfig(), Options{FullSync: true, DateFrom: &from, DateTo: &to})
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if result.Chunks != 5 {
		t.Fatalf("chunks = %d, want 5", result.Chunks)
	}
	if result.Added != 4 {
		t.Errorf("added = %d, want 4", result.Added)
	}
	if len(result.Errors) != 1 || !strings.Contains(result.Errors[0], "2026-02-01") {
		t.Errorf("errors = %v, want one entry for the February chunk", result.Errors)
	}
	if n, _ := s.Count(ctx); n != 4 {
		t.Errorf("Count = %d, want 4", n)
	}

	kinds := reporter.kinds()
	if len(kinds) != 7 || kinds[6] != "COMPLETE" {
		t.Errorf("progress kinds = %v, want 6 PROGRESS then COMPLETE", kinds)
	}
	if last := reporter.events[5]; last.percent != 100 {
		t.Errorf("last progress percent = %d, want 100", last.percent)
	}
}

func TestSyncSkipsLocalPopulation(t *testing.T) {
	t.Parallel()

	src := &fakeSource{query: func(context.Context, source.QueryParams) (*source.QueryResponse, error) {
		t.Error("local population mode must not query the source")
		return nil, errors.New("unexpected")
	}}
	o, _ := newTestOrchestrator(t, src, nil)
	cfg := testConfig()
	cfg.Population[config.DefaultScope] = config.PopulationLocal

	result, err := o.Sync(context.Background(), cfg, Options{FullSync: true})
	if err != nil {
		t.Fatal(err)
	}
	if !result.Skipped || result.Added != 0 || result.Updated != 0 || len(result.Errors) != 0 {
		t.Errorf("result = %+v, want zeroed skip", result)
	}
}

func TestSyncReconcilesBeforeFetching(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	src := pagedSource(func(source.QueryParams) ([]models.ExternalEvent, error) {
		return nil, nil
	})
	o, s := newTestOrchestrator(t, src, nil)
	importRecord(t, s, "a", "9", 1, testNow)
	importRecord(t, s, "b", "9", 2, testNow)

	result, err := o.Sync(ctx, testConfig(), Options{})
	if err != nil {
		t.Fatal(err)
	}
	if result.Deleted != 1 {
		t.Errorf("deleted = %d, want 1", result.Deleted)
	}
	if result.Summary() != "0 added, 0 updated, 1 deleted, 0 errors" {
		t.Errorf("Summary() = %q", result.Summary())
	}
}

func TestSyncRejectsConcurrentRun(t *testing.T) {
	t.Parallel()

	entered := make(chan struct{})
	release := make(chan struct{})
	var once gosync.Once
	src := pagedSource(func(source.QueryParams) ([]models.ExternalEvent, error) {
		once.Do(func() { close(entered) })
		<-release
		return nil, nil
	})
	o, _ := newTestOrchestrator(t, src, nil)
	cfg := testConfig()

	done := make(chan error, 1)
	go func() {
		_, err := o.Sync(context.Background(), cfg, Options{})
		done <- err
	}()

	<-entered
	if !o.Running() {
		t.Error("Running() = false during a run")
	}
	if _, err := o.Sync(context.Background(), cfg, Options{}); !errors.Is(err, ErrSyncInProgress) {
		t.Errorf("concurrent Sync err = %v, want ErrSyncInProgress", err)
	}
	close(release)

	if err := <-done; err != nil {
		t.Fatalf("first run: %v", err)
	}
	st := o.Status()
	if st.Running || st.LastResult == nil || st.LastFinishedAt == nil {
		t.Errorf("status = %+v", st)
	}
}

func TestReconcileSharesRunLock(t *testing.T) {
	t.Parallel()

	entered := make(chan struct{})
	release := make(chan struct{})
	var once gosync.Once
	src := pagedSource(func(source.QueryParams) ([]models.ExternalEvent, error) {
		once.Do(func() { close(entered) })
		<-release
		return nil, nil
	})
	o, _ := newTestOrchestrator(t, src, nil)

	done := make(chan error, 1)
	go func() {
		_, err := o.Sync(context.Background(), testConfig(), Options{})
		done <- err
	}()

	<-entered
	if _, err := o.Reconcile(context.Background()); !errors.Is(err, ErrSyncInProgress) {
		t.Errorf("Reconcile during sync err = %v, want ErrSyncInProgress", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("sync: %v", err)
	}

	report, err := o.Reconcile(context.Background())
	if err != nil {
		t.Fatalf("Reconcile after sync: %v", err)
	}
	if report.DuplicatesRemoved != 0 {
		t.Errorf("removed = %d, want 0", report.DuplicatesRemoved)
	}
}

func TestSyncCancellationIsFatal(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src := &fakeSource{query: func(ctx context.Context, _ source.QueryParams) (*source.QueryResponse, error) {
		cancel()
		return nil, ctx.Err()
	}}
	reporter := &recordingReporter{}
	o, _ := newTestOrchestrator(t, src, reporter)

	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	_, err := o.Sync(ctx, testConfig(), Options{FullSync: true, DateFrom: &from, DateTo: &to})

	var fatal *FatalError
	if !errors.As(err, &fatal) || fatal.Stage != StageCancelled {
		t.Fatalf("err = %v, want cancelled FatalError", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err should wrap context.Canceled")
	}
	kinds := reporter.kinds()
	if len(kinds) == 0 || kinds[len(kinds)-1] != "ERROR" {
		t.Errorf("progress kinds = %v, want trailing ERROR", kinds)
	}
	if o.Status().LastError == "" {
		t.Error("Status().LastError should be set")
	}
}

func TestSyncEmptyWindowIsFatal(t *testing.T) {
	t.Parallel()

	o, _ := newTestOrchestrator(t, pagedSource(func(source.QueryParams) ([]models.ExternalEvent, error) {
		return nil, nil
	}), nil)
	day := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := o.Sync(context.Background(), testConfig(), Options{DateFrom: &day, DateTo: &day})
	if !IsFatal(err) {
		t.Fatalf("err = %v, want FatalError", err)
	}
}

func TestSyncFollowsReloadedSourceSettings(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	var mu gosync.Mutex
	requests := map[string]int{}
	factory := func(sc *config.SourceConfig) source.Source {
		baseURL := sc.BaseURL
		return pagedSource(func(source.QueryParams) ([]models.ExternalEvent, error) {
			mu.Lock()
			defer mu.Unlock()
			requests[baseURL]++
			return makeEvents(3), nil
		})
	}

	cfg := testConfig()
	cfg.Source.BaseURL = "http://old.invalid"
	o, _ := newTestOrchestrator(t, source.NewReloading(&cfg.Source, factory), nil)

	if _, err := o.Sync(ctx, cfg, Options{}); err != nil {
		t.Fatal(err)
	}

	reloaded := testConfig()
	reloaded.Source.BaseURL = "http://new.invalid"
	reloaded.Source.APIKey = "rotated"
	if _, err := o.Sync(ctx, reloaded, Options{}); err != nil {
		t.Fatal(err)
	}

	mu.Lock()
	defer mu.Unlock()
	if requests["http://old.invalid"] != 1 {
		t.Errorf("requests to old base url = %d, want 1", requests["http://old.invalid"])
	}
	if requests["http://new.invalid"] != 1 {
		t.Errorf("requests to reloaded base url = %d, want 1", requests["http://new.invalid"])
	}
}
