// EventSync - External Event Cache Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/eventsync

// Package duckstore implements store.EventStore on DuckDB.
//
// The table carries secondary indexes on external_id, natural_key and both slug
// columns. external_id is deliberately not UNIQUE: imported backups may contain
// duplicates. Writes are serialized through one mutex and uniqueness is checked
// inside the write transaction.
package duckstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/eventsync/internal/logging"
	"github.com/tomtom215/eventsync/internal/metrics"
	"github.com/tomtom215/eventsync/internal/models"
	"github.com/tomtom215/eventsync/internal/store"
)

const backendName = "duckdb"

var schema = []string{
	`CREATE TABLE IF NOT EXISTS event_records (
		id             VARCHAR NOT NULL,
		external_id    VARCHAR,
		natural_key    VARCHAR NOT NULL,
		slug_url       VARCHAR,
		slug_title     VARCHAR,
		synced_version BIGINT NOT NULL,
		last_synced_at TIMESTAMP,
		data           VARCHAR NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_event_records_id ON event_records (id)`,
	`CREATE INDEX IF NOT EXISTS idx_event_records_external_id ON event_records (external_id)`,
	`CREATE INDEX IF NOT EXISTS idx_event_records_natural_key ON event_records (natural_key)`,
	`CREATE INDEX IF NOT EXISTS idx_event_records_slug_url ON event_records (slug_url)`,
	`CREATE INDEX IF NOT EXISTS idx_event_records_slug_title ON event_records (slug_title)`,
}

// canonicalOrder sorts duplicate candidates so the tie-break winner comes first.
const canonicalOrder = `ORDER BY synced_version DESC, last_synced_at DESC NULLS LAST, id ASC`

// Options configures the DuckDB store.
type Options struct {
	// Path is the database file. Empty means an in-memory database.
	Path string
}

// Store is a DuckDB-backed store.EventStore.
type Store struct {
	conn *sql.DB

	writeMu sync.Mutex

	mu     sync.RWMutex
	closed bool

	now func() time.Time
}

var _ store.EventStore = (*Store)(nil)

// Open opens the DuckDB database and creates the schema.
func Open(ctx context.Context, opts Options) (*Store, error) {
	path := opts.Path
	if path == "" {
		path = ":memory:"
	} else if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
		}
	}

	connStr := path + "?access_mode=read_write&autoinstall_known_extensions=false&autoload_known_extensions=false"
	conn, err := sql.Open("duckdb", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	conn.SetMaxOpenConns(4)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxIdleTime(5 * time.Minute)

	for _, stmt := range schema {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}

	logging.Info().Str("path", path).Msg("DuckDB event store opened")
	return &Store{conn: conn, now: time.Now}, nil
}

// Close closes the database. It is safe to call more than once.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.conn.Close()
}

func (s *Store) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return store.ErrClosed
	}
	return nil
}

// Ping verifies the connection.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.conn.PingContext(ctx)
}

// Get loads a record by id.
func (s *Store) Get(ctx context.Context, id string) (*models.CachedEventRecord, error) {
	return s.queryOne(ctx, "get", `SELECT data FROM event_records WHERE id = ? LIMIT 1`, id)
}

// FindByExternalID returns the canonical record holding id.
func (s *Store) FindByExternalID(ctx context.Context, id models.ExternalID) (*models.CachedEventRecord, error) {
	if id.IsZero() {
		return nil, store.ErrNotFound
	}
	return s.queryOne(ctx, "find_external_id",
		`SELECT data FROM event_records WHERE external_id = ? `+canonicalOrder+` LIMIT 1`, id.String())
}

// FindByNaturalKey returns the canonical record with the given natural key.
func (s *Store) FindByNaturalKey(ctx context.Context, key models.NaturalKey) (*models.CachedEventRecord, error) {
	if key.IsZero() {
		return nil, store.ErrNotFound
	}
	return s.queryOne(ctx, "find_natural_key",
		`SELECT data FROM event_records WHERE natural_key = ? `+canonicalOrder+` LIMIT 1`, key.String())
}

// FindBySlug returns the canonical record whose URL tail or kebab-cased title is slug.
func (s *Store) FindBySlug(ctx context.Context, slug string) (*models.CachedEventRecord, error) {
	if slug == "" {
		return nil, store.ErrNotFound
	}
	return s.queryOne(ctx, "find_slug",
		`SELECT data FROM event_records WHERE slug_url = ? OR slug_title = ? `+canonicalOrder+` LIMIT 1`, slug, slug)
}

// ListWithExternalID returns every record with a non-empty external id.
func (s *Store) ListWithExternalID(ctx context.Context) ([]*models.CachedEventRecord, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	rows, err := s.conn.QueryContext(ctx,
		`SELECT data FROM event_records WHERE external_id IS NOT NULL AND external_id <> '' ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var out []*models.CachedEventRecord
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		rec, err := decode(data)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Count returns the number of records.
func (s *Store) Count(ctx context.Context) (int, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}
	var n int
	if err := s.conn.QueryRowContext(ctx, `SELECT count(*) FROM event_records`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return n, nil
}

// Insert stores a new record with SyncedVersion 1.
func (s *Store) Insert(ctx context.Context, rec *models.CachedEventRecord) error {
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

	err := s.withWriteTx(ctx, func(tx *sql.Tx) error {
		exists, err := rowExists(ctx, tx, `SELECT 1 FROM event_records WHERE id = ? LIMIT 1`, candidate.ID)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("record %s already exists: %w", candidate.ID, store.ErrStoreConflict)
		}
		if err := checkExternalIDFree(ctx, tx, candidate.ExternalID(), candidate.ID); err != nil {
			return err
		}
		return insertRow(ctx, tx, candidate)
	})
	metrics.RecordStoreOperation(backendName, "insert", start, errors.Is(err, store.ErrStoreConflict))
	if err != nil {
		return err
	}
	*rec = *candidate
	return nil
}

// Update replaces an existing record after an optimistic version check.
func (s *Store) Update(ctx context.Context, rec *models.CachedEventRecord) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	start := time.Now()

	candidate := rec.Clone()
	err := s.withWriteTx(ctx, func(tx *sql.Tx) error {
		var data string
		err := tx.QueryRowContext(ctx, `SELECT data FROM event_records WHERE id = ? LIMIT 1`, candidate.ID).Scan(&data)
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("load record %s: %w", candidate.ID, err)
		}
		current, err := decode(data)
		if err != nil {
			return err
		}
		if current.Provenance.SyncedVersion != candidate.Provenance.SyncedVersion {
			return fmt.Errorf("record %s is at version %d, update was based on %d: %w",
				candidate.ID, current.Provenance.SyncedVersion, candidate.Provenance.SyncedVersion, store.ErrStoreConflict)
		}
		if err := checkExternalIDFree(ctx, tx, candidate.ExternalID(), candidate.ID); err != nil {
			return err
		}

		candidate.Provenance.SyncedVersion = current.Provenance.SyncedVersion + 1
		candidate.CreatedAt = current.CreatedAt
		candidate.UpdatedAt = s.now().UTC()

		if _, err := tx.ExecContext(ctx, `DELETE FROM event_records WHERE id = ?`, candidate.ID); err != nil {
			return fmt.Errorf("replace record %s: %w", candidate.ID, err)
		}
		return insertRow(ctx, tx, candidate)
	})
	metrics.RecordStoreOperation(backendName, "update", start, errors.Is(err, store.ErrStoreConflict))
	if err != nil {
		return err
	}
	*rec = *candidate
	return nil
}

// Delete removes a record.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	start := time.Now()
	defer metrics.RecordStoreOperation(backendName, "delete", start, false)

	return s.withWriteTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM event_records WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("delete record %s: %w", id, err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return store.ErrNotFound
		}
		return nil
	})
}

// Import writes rec verbatim, replacing any record with the same id.
func (s *Store) Import(ctx context.Context, rec *models.CachedEventRecord) error {
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

	err := s.withWriteTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM event_records WHERE id = ?`, candidate.ID); err != nil {
			return fmt.Errorf("replace record %s: %w", candidate.ID, err)
		}
		return insertRow(ctx, tx, candidate)
	})
	if err != nil {
		return err
	}
	*rec = *candidate
	return nil
}

func (s *Store) queryOne(ctx context.Context, op, query string, args ...any) (*models.CachedEventRecord, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	start := time.Now()
	defer metrics.RecordStoreOperation(backendName, op, start, false)

	var data string
	err := s.conn.QueryRowContext(ctx, query, args...).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return decode(data)
}

func (s *Store) withWriteTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func checkExternalIDFree(ctx context.Context, tx *sql.Tx, id models.ExternalID, owner string) error {
	if id.IsZero() {
		return nil
	}
	var holder string
	err := tx.QueryRowContext(ctx,
		`SELECT id FROM event_records WHERE external_id = ? AND id <> ? LIMIT 1`, id.String(), owner).Scan(&holder)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("check external id %s: %w", id, err)
	}
	return fmt.Errorf("external id %s is held by record %s: %w", id, holder, store.ErrStoreConflict)
}

func rowExists(ctx context.Context, tx *sql.Tx, query string, args ...any) (bool, error) {
	var one int
	err := tx.QueryRowContext(ctx, query, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func insertRow(ctx context.Context, tx *sql.Tx, rec *models.CachedEventRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record %s: %w", rec.ID, err)
	}

	var extID, slugURL, slugTitle sql.NullString
	if id := rec.ExternalID(); !id.IsZero() {
		extID = sql.NullString{String: id.String(), Valid: true}
	}
	if tail := models.URLTail(rec.Projection.URL); tail != "" {
		slugURL = sql.NullString{String: tail, Valid: true}
	}
	if kebab := models.Kebab(rec.Projection.Title); kebab != "" {
		slugTitle = sql.NullString{String: kebab, Valid: true}
	}
	var lastSynced sql.NullTime
	if !rec.Provenance.LastSyncedAt.IsZero() {
		lastSynced = sql.NullTime{Time: rec.Provenance.LastSyncedAt.UTC(), Valid: true}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO event_records (id, external_id, natural_key, slug_url, slug_title, synced_version, last_synced_at, data)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, extID, rec.NaturalKey().String(), slugURL, slugTitle,
		rec.Provenance.SyncedVersion, lastSynced, string(data))
	if err != nil {
		return fmt.Errorf("insert record %s: %w", rec.ID, err)
	}
	return nil
}

func decode(data string) (*models.CachedEventRecord, error) {
	var rec models.CachedEventRecord
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return &rec, nil
}
