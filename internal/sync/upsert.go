// EventSync - External Event Cache Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/eventsync

package sync

import (
	"context"
	"errors"
	"fmt"
	gosync "sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/eventsync/internal/logging"
	"github.com/tomtom215/eventsync/internal/models"
	"github.com/tomtom215/eventsync/internal/store"
	"github.com/tomtom215/eventsync/internal/validation"
)

// UpsertOutcome tells whether an upsert created or updated a record.
type UpsertOutcome int

const (
	OutcomeAdded UpsertOutcome = iota + 1
	OutcomeUpdated
)

func (o UpsertOutcome) String() string {
	switch o {
	case OutcomeAdded:
		return "added"
	case OutcomeUpdated:
		return "updated"
	default:
		return "none"
	}
}

// maxUpsertAttempts bounds retries after a version conflict caused by a concurrent writer.
const maxUpsertAttempts = 2

// Upserter is the cache upsert engine.
type Upserter struct {
	store       store.EventStore
	now         func() time.Time
	concurrency int
}

// NewUpserter creates an upserter. concurrency bounds UpsertBatch.
func NewUpserter(s store.EventStore, concurrency int) *Upserter {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Upserter{store: s, now: time.Now, concurrency: concurrency}
}

// Upsert writes ev into the store.
//
// The existing record is found by external id, then by natural key. On a match the
// projection is overwritten, patch is merged into the extension, and the store bumps
// SyncedVersion. Without a match a new record is inserted. A uniqueness or version
// violation is returned as a *ConflictError.
func (u *Upserter) Upsert(ctx context.Context, ev *models.ExternalEvent, input models.InputSource, patch *models.Extension) (*models.CachedEventRecord, UpsertOutcome, error) {
	if err := validation.ValidateStruct(ev); err != nil {
		return nil, 0, fmt.Errorf("invalid event %q: %w", ev.Title, err)
	}

	var err error
	for attempt := 0; attempt < maxUpsertAttempts; attempt++ {
		var rec *models.CachedEventRecord
		var outcome UpsertOutcome
		rec, outcome, err = u.upsertOnce(ctx, ev, input, patch)
		if err == nil {
			return rec, outcome, nil
		}
		if !errors.Is(err, store.ErrStoreConflict) {
			return nil, 0, err
		}
	}
	return nil, 0, &ConflictError{ExternalID: ev.ID, NaturalKey: ev.NaturalKey(), Err: err}
}

func (u *Upserter) upsertOnce(ctx context.Context, ev *models.ExternalEvent, input models.InputSource, patch *models.Extension) (*models.CachedEventRecord, UpsertOutcome, error) {
	existing, err := u.resolve(ctx, ev)
	if err != nil {
		return nil, 0, err
	}
	now := u.now().UTC()
	status := models.NormalizeStatus(ev.Status, ev.CancellationReason)

	if existing == nil {
		rec := &models.CachedEventRecord{
			Projection:  *ev,
			Extension:   models.Extension{SchemaVersion: models.ExtensionSchemaVersion}.Merge(patch),
			InputSource: input,
			Provenance: models.Provenance{
				Source:       models.ProvenanceFor(input),
				ExternalID:   ev.ID,
				LastSyncedAt: now,
			},
		}
		rec.RecordStatus(status, string(input), now)
		if err := u.store.Insert(ctx, rec); err != nil {
			return nil, 0, err
		}
		return rec, OutcomeAdded, nil
	}

	rec := existing
	rec.Projection = *ev
	if !ev.ID.IsZero() {
		rec.Provenance.ExternalID = ev.ID
	}
	rec.Provenance.Source = models.ProvenanceFor(rec.InputSource)
	rec.Provenance.AdvanceSyncedAt(now)
	rec.Extension = rec.Extension.Merge(patch)
	if rec.RecordStatus(status, string(input), now) {
		logging.Debug().Str("record_id", rec.ID).Str("status", string(status)).Msg("Event status changed")
	}
	if err := u.store.Update(ctx, rec); err != nil {
		return nil, 0, err
	}
	return rec, OutcomeUpdated, nil
}

// resolve finds the record matching ev, or returns nil when there is none.
func (u *Upserter) resolve(ctx context.Context, ev *models.ExternalEvent) (*models.CachedEventRecord, error) {
	if !ev.ID.IsZero() {
		rec, err := u.store.FindByExternalID(ctx, ev.ID)
		if err == nil {
			return rec, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}
	rec, err := u.store.FindByNaturalKey(ctx, ev.NaturalKey())
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	return rec, err
}

// BatchResult aggregates UpsertBatch.
type BatchResult struct {
	Added     int
	Updated   int
	Conflicts int
	Errors    []error
}

// UpsertBatch upserts events concurrently, bounded by the upserter's concurrency.
// Individual failures are collected; the batch itself only fails on cancellation.
func (u *Upserter) UpsertBatch(ctx context.Context, events []models.ExternalEvent, input models.InputSource) (*BatchResult, error) {
	var (
		mu  gosync.Mutex
		res BatchResult
		g   errgroup.Group
	)
	g.SetLimit(u.concurrency)

	for i := range events {
		ev := &events[i]
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			_, outcome, err := u.Upsert(ctx, ev, input, nil)

			mu.Lock()
			defer mu.Unlock()
			var conflict *ConflictError
			switch {
			case err == nil && outcome == OutcomeAdded:
				res.Added++
			case err == nil:
				res.Updated++
			case errors.As(err, &conflict):
				res.Conflicts++
				res.Errors = append(res.Errors, err)
				logging.Warn().Err(err).Str("hint", "run reconciliation").Msg("Store conflict during upsert")
			case ctx.Err() != nil:
				return ctx.Err()
			default:
				res.Errors = append(res.Errors, err)
				logging.Warn().Err(err).Str("external_id", ev.ID.String()).Msg("Upsert failed")
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return &res, err
	}
	return &res, nil
}
