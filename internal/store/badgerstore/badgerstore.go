// EventSync - External Event Cache Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/eventsync

// Package badgerstore implements store.EventStore on BadgerDB.
//
// Key layout:
//
//	rec/<id>                    JSON-encoded CachedEventRecord
//	ix/ext/<externalID>\x00<id> external id membership
//	ix/nk/<naturalKey>\x00<id>  natural key membership
//	ix/slug/<slug>\x00<id>      slug membership
//	uq/ext/<externalID>         uniqueness anchor, value is the owning record id
//
// Every write that touches an external id reads and writes its uniqueness anchor in the
// same transaction, so two concurrent writers claiming one id collide in Badger's
// optimistic conflict detection and one of them gets store.ErrStoreConflict.
package badgerstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/eventsync/internal/logging"
	"github.com/tomtom215/eventsync/internal/metrics"
	"github.com/tomtom215/eventsync/internal/models"
	"github.com/tomtom215/eventsync/internal/store"
)

const backendName = "badger"

const (
	prefixRecord = "rec/"
	prefixExt    = "ix/ext/"
	prefixNK     = "ix/nk/"
	prefixSlug   = "ix/slug/"
	prefixUnique = "uq/ext/"
	keySep       = "\x00"
)

// Options configures the Badger store.
type Options struct {
	// Path is the data directory. Ignored when InMemory is set.
	Path string

	// InMemory keeps all data in memory. Used by tests and the CLI dry-run mode.
	InMemory bool

	// SyncWrites fsyncs every commit.
	SyncWrites bool
}

// Store is a BadgerDB-backed store.EventStore.
type Store struct {
	db *badger.DB

	mu     sync.RWMutex
	closed bool

	now func() time.Time
}

var _ store.EventStore = (*Store)(nil)

// Open opens (or creates) the Badger database described by opts.
func Open(opts Options) (*Store, error) {
	var bopts badger.Options
	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if opts.Path == "" {
			return nil, errors.New("badger store path is required")
		}
		bopts = badger.DefaultOptions(opts.Path)
	}
	bopts.SyncWrites = opts.SyncWrites
	bopts.Logger = nil

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open BadgerDB: %w", err)
	}

	logging.Info().
		Str("path", opts.Path).
		Bool("in_memory", opts.InMemory).
		Msg("Badger event store opened")

	return &Store{db: db, now: time.Now}, nil
}

// Close closes the underlying database. It is safe to call more than once.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close BadgerDB: %w", err)
	}
	return nil
}

// Ping reports whether the store is open.
func (s *Store) Ping(_ context.Context) error {
	return s.checkOpen()
}

// RunGC reclaims value log space until Badger reports nothing left to rewrite.
// In-memory databases have no value log and return immediately.
func (s *Store) RunGC(ratio float64) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if s.db.Opts().InMemory {
		return nil
	}
	for {
		err := s.db.RunValueLogGC(ratio)
		if errors.Is(err, badger.ErrNoRewrite) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("run GC: %w", err)
		}
	}
}

func (s *Store) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return store.ErrClosed
	}
	return nil
}

// Get loads a record by id.
func (s *Store) Get(_ context.Context, id string) (*models.CachedEventRecord, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	var rec *models.CachedEventRecord
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		rec, err = readRecord(txn, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// FindByExternalID returns the canonical record holding id.
func (s *Store) FindByExternalID(ctx context.Context, id models.ExternalID) (*models.CachedEventRecord, error) {
	if id.IsZero() {
		return nil, store.ErrNotFound
	}
	return s.findCanonical(ctx, "find_external_id", prefixExt+id.String()+keySep)
}

// FindByNaturalKey returns the canonical record whose projection has key.
func (s *Store) FindByNaturalKey(ctx context.Context, key models.NaturalKey) (*models.CachedEventRecord, error) {
	if key.IsZero() {
		return nil, store.ErrNotFound
	}
	return s.findCanonical(ctx, "find_natural_key", prefixNK+key.String()+keySep)
}

// FindBySlug returns the canonical record whose URL tail or kebab-cased title is slug.
func (s *Store) FindBySlug(ctx context.Context, slug string) (*models.CachedEventRecord, error) {
	if slug == "" {
		return nil, store.ErrNotFound
	}
	return s.findCanonical(ctx, "find_slug", prefixSlug+slug+keySep)
}

func (s *Store) findCanonical(ctx context.Context, op, prefix string) (*models.CachedEventRecord, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	start := time.Now()
	defer metrics.RecordStoreOperation(backendName, op, start, false)

	var recs []*models.CachedEventRecord
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		recs, err = readIndexed(ctx, txn, prefix)
		return err
	})
	if err != nil {
		return nil, err
	}
	best := store.Canonical(recs)
	if best == nil {
		return nil, store.ErrNotFound
	}
	return best, nil
}

// Insert stores a new record with SyncedVersion 1.
func (s *Store) Insert(_ context.Context, rec *models.CachedEventRecord) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	start := time.Now()

	candidate := rec.Clone()
	if candidate.ID == "" {
		candidate.ID = uuid.NewString()
	}
	now := s.now().UTC()
	candidate.Provenance.SyncedVersion = 1
	candidate.CreatedAt = now
	candidate.UpdatedAt = now

	err := s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(recordKey(candidate.ID)); err == nil {
			return fmt.Errorf("record %s already exists: %w", candidate.ID, store.ErrStoreConflict)
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := claimExternalID(txn, candidate.ExternalID(), candidate.ID); err != nil {
			return err
		}
		return writeRecord(txn, candidate)
	})
	err = mapTxnError(err)
	metrics.RecordStoreOperation(backendName, "insert", start, errors.Is(err, store.ErrStoreConflict))
	if err != nil {
		return err
	}
	*rec = *candidate
	return nil
}

// Update replaces an existing record after an optimistic version check.
func (s *Store) Update(_ context.Context, rec *models.CachedEventRecord) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	start := time.Now()

	candidate := rec.Clone()
	err := s.db.Update(func(txn *badger.Txn) error {
		current, err := readRecord(txn, candidate.ID)
		if err != nil {
			return err
		}
		if current.Provenance.SyncedVersion != candidate.Provenance.SyncedVersion {
			return fmt.Errorf("record %s is at version %d, update was based on %d: %w",
				candidate.ID, current.Provenance.SyncedVersion, candidate.Provenance.SyncedVersion, store.ErrStoreConflict)
		}
		if err := claimExternalID(txn, candidate.ExternalID(), candidate.ID); err != nil {
			return err
		}
		if err := removeIndexes(txn, current); err != nil {
			return err
		}
		if current.ExternalID() != candidate.ExternalID() {
			if err := releaseExternalID(txn, current.ExternalID(), current.ID); err != nil {
				return err
			}
		}

		candidate.Provenance.SyncedVersion = current.Provenance.SyncedVersion + 1
		candidate.CreatedAt = current.CreatedAt
		candidate.UpdatedAt = s.now().UTC()
		return writeRecord(txn, candidate)
	})
	err = mapTxnError(err)
	metrics.RecordStoreOperation(backendName, "update", start, errors.Is(err, store.ErrStoreConflict))
	if err != nil {
		return err
	}
	*rec = *candidate
	return nil
}

// Delete removes a record and its index entries.
func (s *Store) Delete(_ context.Context, id string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	start := time.Now()
	err := s.db.Update(func(txn *badger.Txn) error {
		current, err := readRecord(txn, id)
		if err != nil {
			return err
		}
		if err := removeIndexes(txn, current); err != nil {
			return err
		}
		if err := releaseExternalID(txn, current.ExternalID(), current.ID); err != nil {
			return err
		}
		return txn.Delete(recordKey(id))
	})
	err = mapTxnError(err)
	metrics.RecordStoreOperation(backendName, "delete", start, false)
	return err
}

// ListWithExternalID returns every record with a non-empty external id.
func (s *Store) ListWithExternalID(ctx context.Context) ([]*models.CachedEventRecord, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	var out []*models.CachedEventRecord
	err := s.db.View(func(txn *badger.Txn) error {
		return scanRecords(ctx, txn, func(rec *models.CachedEventRecord) {
			if !rec.ExternalID().IsZero() {
				out = append(out, rec)
			}
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	return out, nil
}

// Count returns the number of records.
func (s *Store) Count(ctx context.Context) (int, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}
	n := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(prefixRecord)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			n++
		}
		return nil
	})
	return n, err
}

// Import writes rec verbatim. Existing index entries of a record with the same id are
// replaced. Uniqueness of the external id is not checked.
func (s *Store) Import(_ context.Context, rec *models.CachedEventRecord) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	candidate := rec.Clone()
	if candidate.ID == "" {
		candidate.ID = uuid.NewString()
	}
	if candidate.Provenance.SyncedVersion < 1 {
		candidate.Provenance.SyncedVersion = 1
	}
	now := s.now().UTC()
	if candidate.CreatedAt.IsZero() {
		candidate.CreatedAt = now
	}
	if candidate.UpdatedAt.IsZero() {
		candidate.UpdatedAt = now
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		current, err := readRecord(txn, candidate.ID)
		switch {
		case err == nil:
			if err := removeIndexes(txn, current); err != nil {
				return err
			}
		case !errors.Is(err, store.ErrNotFound):
			return err
		}
		if id := candidate.ExternalID(); !id.IsZero() {
			if err := touchAnchor(txn, id, candidate.ID); err != nil {
				return err
			}
		}
		return writeRecord(txn, candidate)
	})
	if err = mapTxnError(err); err != nil {
		return err
	}
	*rec = *candidate
	return nil
}

func recordKey(id string) []byte { return []byte(prefixRecord + id) }

func anchorKey(id models.ExternalID) []byte { return []byte(prefixUnique + id.String()) }

func indexKeys(rec *models.CachedEventRecord) [][]byte {
	keys := make([][]byte, 0, 4)
	if id := rec.ExternalID(); !id.IsZero() {
		keys = append(keys, []byte(prefixExt+id.String()+keySep+rec.ID))
	}
	if nk := rec.NaturalKey(); !nk.IsZero() {
		keys = append(keys, []byte(prefixNK+nk.String()+keySep+rec.ID))
	}
	for _, slug := range rec.Slugs() {
		keys = append(keys, []byte(prefixSlug+slug+keySep+rec.ID))
	}
	return keys
}

func writeRecord(txn *badger.Txn, rec *models.CachedEventRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record %s: %w", rec.ID, err)
	}
	if err := txn.Set(recordKey(rec.ID), data); err != nil {
		return err
	}
	for _, k := range indexKeys(rec) {
		if err := txn.Set(k, []byte(rec.ID)); err != nil {
			return err
		}
	}
	return nil
}

func removeIndexes(txn *badger.Txn, rec *models.CachedEventRecord) error {
	for _, k := range indexKeys(rec) {
		if err := txn.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

func readRecord(txn *badger.Txn, id string) (*models.CachedEventRecord, error) {
	item, err := txn.Get(recordKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var rec models.CachedEventRecord
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &rec)
	}); err != nil {
		return nil, fmt.Errorf("decode record %s: %w", id, err)
	}
	return &rec, nil
}

// readIndexed loads every record listed under an index prefix.
func readIndexed(ctx context.Context, txn *badger.Txn, prefix string) ([]*models.CachedEventRecord, error) {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(prefix)
	it := txn.NewIterator(opts)
	defer it.Close()

	var ids []string
	for it.Rewind(); it.Valid(); it.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := it.Item().Value(func(val []byte) error {
			ids = append(ids, string(val))
			return nil
		}); err != nil {
			return nil, err
		}
	}

	recs := make([]*models.CachedEventRecord, 0, len(ids))
	for _, id := range ids {
		rec, err := readRecord(txn, id)
		if errors.Is(err, store.ErrNotFound) {
			logging.Warn().Str("record_id", id).Str("index", prefix).Msg("Dangling index entry")
			continue
		}
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

func scanRecords(ctx context.Context, txn *badger.Txn, fn func(*models.CachedEventRecord)) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(prefixRecord)
	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Rewind(); it.Valid(); it.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		item := it.Item()
		var rec models.CachedEventRecord
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		}); err != nil {
			logging.Warn().Err(err).Str("key", string(item.Key())).Msg("Skipping undecodable record")
			continue
		}
		fn(&rec)
	}
	return nil
}

// claimExternalID fails with ErrStoreConflict when another record already holds id.
func claimExternalID(txn *badger.Txn, id models.ExternalID, owner string) error {
	if id.IsZero() {
		return nil
	}
	// Reading the anchor registers it for conflict detection even when it is absent.
	if _, err := txn.Get(anchorKey(id)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
		return err
	}

	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = []byte(prefixExt + id.String() + keySep)
	it := txn.NewIterator(opts)
	for it.Rewind(); it.Valid(); it.Next() {
		holder := string(it.Item().Key()[len(opts.Prefix):])
		if holder != owner {
			it.Close()
			return fmt.Errorf("external id %s is held by record %s: %w", id, holder, store.ErrStoreConflict)
		}
	}
	it.Close()

	return txn.Set(anchorKey(id), []byte(owner))
}

func touchAnchor(txn *badger.Txn, id models.ExternalID, owner string) error {
	if _, err := txn.Get(anchorKey(id)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
		return err
	}
	return txn.Set(anchorKey(id), []byte(owner))
}

// releaseExternalID drops the anchor when owner was the last holder of id.
func releaseExternalID(txn *badger.Txn, id models.ExternalID, owner string) error {
	if id.IsZero() {
		return nil
	}
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = []byte(prefixExt + id.String() + keySep)
	it := txn.NewIterator(opts)
	remaining := ""
	for it.Rewind(); it.Valid(); it.Next() {
		if holder := string(it.Item().Key()[len(opts.Prefix):]); holder != owner {
			remaining = holder
			break
		}
	}
	it.Close()

	if remaining != "" {
		return txn.Set(anchorKey(id), []byte(remaining))
	}
	if err := txn.Delete(anchorKey(id)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
		return err
	}
	return nil
}

// mapTxnError turns Badger's optimistic-concurrency failure into ErrStoreConflict.
func mapTxnError(err error) error {
	if errors.Is(err, badger.ErrConflict) {
		return fmt.Errorf("concurrent write: %w", store.ErrStoreConflict)
	}
	return err
}
