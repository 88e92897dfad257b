// EventSync - External Event Cache Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/eventsync

package sync

import (
	"context"
	"testing"
	"time"

	"github.com/tomtom215/eventsync/internal/models"
	"github.com/tomtom215/eventsync/internal/store/badgerstore"
)

func importRecord(t *testing.T, s *badgerstore.Store, id, extID string, version int64, syncedAt time.Time) {
	t.Helper()
	ev := makeEvent(1, "Dup "+id)
	ev.ID = models.ExternalID(extID)
	rec := &models.CachedEventRecord{
		ID:         id,
		Projection: ev,
		Provenance: models.Provenance{
			Source:        models.SourceExternal,
			ExternalID:    models.ExternalID(extID),
			SyncedVersion: version,
			LastSyncedAt:  syncedAt,
		},
		InputSource: models.InputSync,
	}
	if err := s.Import(context.Background(), rec); err != nil {
		t.Fatalf("Import %s: %v", id, err)
	}
}

func TestReconcileKeepsHighestVersion(t *testing.T) {
	t.Parallel()

	orders := map[string][]string{
		"v3 first": {"a", "b"},
		"v5 first": {"b", "a"},
	}
	for name, order := range orders {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			s := openStore(t)
			versions := map[string]int64{"a": 3, "b": 5}
			for _, id := range order {
				importRecord(t, s, id, "42", versions[id], testNow)
			}

			report, err := NewReconciler(s).Reconcile(ctx)
			if err != nil {
				t.Fatal(err)
			}
			if report.DuplicatesRemoved != 1 || report.GroupsProcessed != 1 {
				t.Fatalf("report = %+v", report)
			}
			if d := report.Details[0]; d.KeptID != "b" || len(d.DeletedIDs) != 1 || d.DeletedIDs[0] != "a" {
				t.Errorf("detail = %+v, want keep b delete a", d)
			}
			rec, err := s.FindByExternalID(ctx, "42")
			if err != nil || rec.Provenance.SyncedVersion != 5 {
				t.Errorf("surviving record = %+v, %v", rec, err)
			}
		})
	}
}

func TestReconcileTieBreaks(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := openStore(t)

	importRecord(t, s, "old", "7", 2, testNow.Add(-time.Hour))
	importRecord(t, s, "new", "7", 2, testNow)
	importRecord(t, s, "z", "8", 1, testNow)
	importRecord(t, s, "y", "8", 1, testNow)

	report, err := NewReconciler(s).Reconcile(ctx)
	if err != nil {
		t.Fatal(err)
	}
	kept := map[models.ExternalID]string{}
	for _, d := range report.Details {
		kept[d.ExternalID] = d.KeptID
	}
	if kept["7"] != "new" {
		t.Errorf("ext 7 kept %q, want most recently synced", kept["7"])
	}
	if kept["8"] != "y" {
		t.Errorf("ext 8 kept %q, want lowest id", kept["8"])
	}
}

func TestReconcileConvergesAndIsIdempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := openStore(t)

	for i, id := range []string{"r1", "r2", "r3"} {
		importRecord(t, s, id, "100", int64(i+1), testNow)
	}
	importRecord(t, s, "r4", "200", 1, testNow)
	importRecord(t, s, "r5", "200", 1, testNow)
	importRecord(t, s, "r6", "300", 1, testNow)

	r := NewReconciler(s)
	report, err := r.Reconcile(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if report.DuplicatesRemoved != 3 || report.GroupsProcessed != 2 {
		t.Errorf("report = %+v", report)
	}

	recs, err := s.ListWithExternalID(ctx)
	if err != nil {
		t.Fatal(err)
	}
	seen := map[models.ExternalID]int{}
	for _, rec := range recs {
		seen[rec.ExternalID()]++
	}
	for id, n := range seen {
		if n != 1 {
			t.Errorf("external id %s has %d records", id, n)
		}
	}
	if len(seen) != 3 {
		t.Errorf("distinct external ids = %d, want 3", len(seen))
	}

	again, err := r.Reconcile(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if again.DuplicatesRemoved != 0 || again.GroupsProcessed != 0 || len(again.Details) != 0 {
		t.Errorf("second sweep = %+v, want no-op", again)
	}
}
