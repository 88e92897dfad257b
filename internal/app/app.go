// EventSync - External Event Cache Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/eventsync

// Package app wires the EventSync components from a loaded configuration.
//
// Both the server and the eventsyncctl command build their object graph here,
// so the store backend, the external client and the sync engine are assembled
// the same way regardless of entry point.
package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/tomtom215/eventsync/internal/config"
	"github.com/tomtom215/eventsync/internal/logging"
	"github.com/tomtom215/eventsync/internal/resolver"
	"github.com/tomtom215/eventsync/internal/source"
	"github.com/tomtom215/eventsync/internal/store"
	"github.com/tomtom215/eventsync/internal/store/badgerstore"
	"github.com/tomtom215/eventsync/internal/store/duckstore"
	intsync "github.com/tomtom215/eventsync/internal/sync"
)

// Store backends accepted by StoreConfig.Backend.
const (
	BackendBadger = "badger"
	BackendDuckDB = "duckdb"
)

const duckDBFileName = "events.duckdb"

// GarbageCollector is implemented by stores that need periodic value-log GC.
type GarbageCollector interface {
	RunGC(discardRatio float64) error
}

// Components is the assembled object graph.
type Components struct {
	Config       *config.Config
	Store        store.EventStore
	Source       *source.Reloading
	Orchestrator *intsync.Orchestrator
	Upserter     *intsync.Upserter
	Resolver     *resolver.Resolver
}

// ConfigLoader returns the current configuration. config.Loader satisfies it.
type ConfigLoader interface {
	Load() (*config.Config, error)
}

type buildOptions struct {
	loader        ConfigLoader
	sourceFactory source.Factory
}

// Option customizes Build.
type Option func(*buildOptions)

// WithConfigLoader makes the resolver read its source settings through loader
// on every lookup instead of keeping the ones Build was called with.
func WithConfigLoader(loader ConfigLoader) Option {
	return func(o *buildOptions) { o.loader = loader }
}

// WithSourceFactory replaces the factory that builds external source clients.
func WithSourceFactory(factory source.Factory) Option {
	return func(o *buildOptions) { o.sourceFactory = factory }
}

// Build opens the store and assembles the sync engine. reporter receives run
// progress and may be nil. The caller owns the returned components and must Close them.
//
// The external client is a source.Reloading: the orchestrator and the resolver
// hand it the configuration they run with, and it is rebuilt when the
// connection settings in that configuration change.
func Build(ctx context.Context, cfg *config.Config, reporter intsync.ProgressReporter, opts ...Option) (*Components, error) {
	if cfg == nil {
		return nil, errors.New("configuration is required")
	}
	var o buildOptions
	for _, opt := range opts {
		opt(&o)
	}

	st, err := OpenStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}

	src := source.NewReloading(&cfg.Source, o.sourceFactory)
	upserter := intsync.NewUpserter(st, cfg.Sync.UpsertConcurrency)

	settings := resolver.StaticSettings(&cfg.Source)
	if o.loader != nil {
		settings = func() (*config.SourceConfig, error) {
			current, err := o.loader.Load()
			if err != nil {
				return nil, err
			}
			return &current.Source, nil
		}
	}

	return &Components{
		Config:       cfg,
		Store:        st,
		Source:       src,
		Orchestrator: intsync.NewOrchestrator(st, src, reporter),
		Upserter:     upserter,
		Resolver:     resolver.New(st, src, upserter, settings),
	}, nil
}

// OpenStore opens the backend named by cfg.Backend. An empty backend means badger.
func OpenStore(ctx context.Context, cfg config.StoreConfig) (store.EventStore, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", BackendBadger:
		s, err := badgerstore.Open(badgerstore.Options{Path: cfg.Path, InMemory: cfg.InMemory})
		if err != nil {
			return nil, fmt.Errorf("failed to open badger store: %w", err)
		}
		return s, nil

	case BackendDuckDB:
		s, err := duckstore.Open(ctx, duckstore.Options{Path: duckDBPath(cfg)})
		if err != nil {
			return nil, fmt.Errorf("failed to open duckdb store: %w", err)
		}
		return s, nil

	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

// duckDBPath maps the configured path to a database file. A path ending in
// .duckdb or .db is used as-is; anything else is treated as a directory.
func duckDBPath(cfg config.StoreConfig) string {
	if cfg.InMemory || cfg.Path == "" {
		return ""
	}
	switch filepath.Ext(cfg.Path) {
	case ".duckdb", ".db":
		return cfg.Path
	}
	return filepath.Join(cfg.Path, duckDBFileName)
}

// GarbageCollector returns the store as a GarbageCollector when it supports GC.
func (c *Components) GarbageCollector() (GarbageCollector, bool) {
	gc, ok := c.Store.(GarbageCollector)
	return gc, ok
}

// Close releases the store.
func (c *Components) Close() error {
	if c.Store == nil {
		return nil
	}
	if err := c.Store.Close(); err != nil {
		return fmt.Errorf("failed to close store: %w", err)
	}
	logging.Info().Msg("Event store closed")
	return nil
}
