// EventSync - External Event Cache Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/eventsync

// Package store defines the persistence contract for cached event records.
//
// Implementations keep one arena of records keyed by record id plus secondary indexes
// on external id, natural key and slug. Insert and Update enforce external id
// uniqueness at write time. Import writes records verbatim so backups and file
// imports can be restored even when they contain duplicates; the duplicate
// reconciler repairs those.
package store

import (
	"context"
	"errors"
	"sort"

	"github.com/tomtom215/eventsync/internal/models"
)

var (
	// ErrNotFound is returned when no record matches a lookup.
	ErrNotFound = errors.New("record not found")

	// ErrStoreConflict is returned when a write would give a second record an external id
	// that is already taken, or when the record changed since it was loaded.
	ErrStoreConflict = errors.New("store conflict")

	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("store is closed")
)

// EventStore is the local cache of external events.
type EventStore interface {
	// Get loads a record by its record id.
	Get(ctx context.Context, id string) (*models.CachedEventRecord, error)

	// FindByExternalID returns the record holding id. When legacy duplicates exist the
	// canonical one (see Canonical) is returned.
	FindByExternalID(ctx context.Context, id models.ExternalID) (*models.CachedEventRecord, error)

	// FindByNaturalKey returns the record whose projection has the given natural key.
	FindByNaturalKey(ctx context.Context, key models.NaturalKey) (*models.CachedEventRecord, error)

	// FindBySlug returns the record whose URL tail or kebab-cased title equals slug.
	FindBySlug(ctx context.Context, slug string) (*models.CachedEventRecord, error)

	// Insert stores a new record. The store assigns ID when empty, sets SyncedVersion to 1
	// and fills CreatedAt and UpdatedAt. rec is updated in place.
	Insert(ctx context.Context, rec *models.CachedEventRecord) error

	// Update replaces an existing record. rec.Provenance.SyncedVersion must equal the
	// stored version; the store increments it by one and writes it back into rec.
	Update(ctx context.Context, rec *models.CachedEventRecord) error

	// Delete removes a record and its index entries.
	Delete(ctx context.Context, id string) error

	// ListWithExternalID returns every record that has a non-empty external id.
	ListWithExternalID(ctx context.Context) ([]*models.CachedEventRecord, error)

	// Import writes rec as-is without uniqueness checks.
	Import(ctx context.Context, rec *models.CachedEventRecord) error

	// Count returns the number of stored records.
	Count(ctx context.Context) (int, error)

	// Ping reports whether the store is usable.
	Ping(ctx context.Context) error

	Close() error
}

// Canonical returns the record that wins the duplicate tie-break among recs, or nil.
func Canonical(recs []*models.CachedEventRecord) *models.CachedEventRecord {
	var best *models.CachedEventRecord
	for _, r := range recs {
		if best == nil || r.Outranks(best) {
			best = r
		}
	}
	return best
}

// SortCanonicalFirst orders recs so that the canonical record comes first.
func SortCanonicalFirst(recs []*models.CachedEventRecord) {
	sort.SliceStable(recs, func(i, j int) bool { return recs[i].Outranks(recs[j]) })
}
