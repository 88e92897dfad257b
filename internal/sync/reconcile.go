// EventSync - External Event Cache Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/eventsync

package sync

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/tomtom215/eventsync/internal/logging"
	"github.com/tomtom215/eventsync/internal/metrics"
	"github.com/tomtom215/eventsync/internal/models"
	"github.com/tomtom215/eventsync/internal/store"
)

// Reconciler removes records that share an external id with a better-ranked record.
type Reconciler struct {
	store store.EventStore
}

// NewReconciler creates a reconciler for s.
func NewReconciler(s store.EventStore) *Reconciler {
	return &Reconciler{store: s}
}

// Reconcile groups all records by external id and keeps one record per group: the
// highest SyncedVersion, then the latest LastSyncedAt, then the lowest record id.
// Running it on a store without duplicates changes nothing.
func (r *Reconciler) Reconcile(ctx context.Context) (*models.ReconcileReport, error) {
	recs, err := r.store.ListWithExternalID(ctx)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}

	groups := make(map[models.ExternalID][]*models.CachedEventRecord)
	for _, rec := range recs {
		id := rec.ExternalID()
		groups[id] = append(groups[id], rec)
	}

	ids := make([]models.ExternalID, 0, len(groups))
	for id, members := range groups {
		if len(members) > 1 {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	report := &models.ReconcileReport{Details: []models.ReconcileDetail{}}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		members := groups[id]
		store.SortCanonicalFirst(members)
		detail := models.ReconcileDetail{ExternalID: id, KeptID: members[0].ID}

		for _, dup := range members[1:] {
			if err := r.store.Delete(ctx, dup.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
				return report, fmt.Errorf("delete duplicate %s of external id %s: %w", dup.ID, id, err)
			}
			detail.DeletedIDs = append(detail.DeletedIDs, dup.ID)
			report.DuplicatesRemoved++
		}
		report.GroupsProcessed++
		report.Details = append(report.Details, detail)

		logging.Info().
			Str("external_id", id.String()).
			Str("kept_id", detail.KeptID).
			Strs("deleted_ids", detail.DeletedIDs).
			Msg("Reconciled duplicate records")
	}

	metrics.RecordReconcile(report.DuplicatesRemoved, report.GroupsProcessed)
	return report, nil
}
