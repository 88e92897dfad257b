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

	"github.com/tomtom215/eventsync/internal/config"
	"github.com/tomtom215/eventsync/internal/logging"
	"github.com/tomtom215/eventsync/internal/metrics"
	"github.com/tomtom215/eventsync/internal/models"
	"github.com/tomtom215/eventsync/internal/source"
	"github.com/tomtom215/eventsync/internal/store"
)

// Options selects the sync window.
type Options struct {
	FullSync bool
	DateFrom *time.Time
	DateTo   *time.Time
}

func (o Options) mode() string {
	if o.FullSync {
		return "full"
	}
	return "incremental"
}

// ProgressReporter receives run progress. Implementations must not block for long.
type ProgressReporter interface {
	Progress(ctx context.Context, percent int, message string)
	Complete(ctx context.Context, result *models.SyncResult)
	Error(ctx context.Context, message string)
}

type nopReporter struct{}

func (nopReporter) Progress(context.Context, int, string)        {}
func (nopReporter) Complete(context.Context, *models.SyncResult) {}
func (nopReporter) Error(context.Context, string)                {}

// Status describes the current and last run.
type Status struct {
	Running        bool               `json:"running"`
	LastResult     *models.SyncResult `json:"last_result,omitempty"`
	LastFinishedAt *time.Time         `json:"last_finished_at,omitempty"`
	LastError      string             `json:"last_error,omitempty"`
}

// Orchestrator runs syncs against one store and external source.
//
// Locking Strategy:
//   - runMu: held for the duration of a run or a standalone reconcile, acquired with TryLock
//   - mu: protects the status fields
type Orchestrator struct {
	store    store.EventStore
	src      source.Source
	reporter ProgressReporter
	now      func() time.Time

	runMu gosync.Mutex

	mu           gosync.RWMutex
	running      bool
	lastResult   *models.SyncResult
	lastFinished time.Time
	lastErr      error
}

// NewOrchestrator creates an orchestrator. reporter may be nil.
//
// When src is a source.Reloader, every run asks it for the client matching the
// source settings of that run's configuration.
func NewOrchestrator(s store.EventStore, src source.Source, reporter ProgressReporter) *Orchestrator {
	if reporter == nil {
		reporter = nopReporter{}
	}
	return &Orchestrator{store: s, src: src, reporter: reporter, now: time.Now}
}

// Sync runs one synchronization with the configuration cfg.
//
// A population mode of local for the configured scope returns a zeroed, skipped
// result without touching the network. Chunk failures are collected in the result.
// Only errors before the chunk loop and cancellation abort the run with a *FatalError.
func (o *Orchestrator) Sync(ctx context.Context, cfg *config.Config, opts Options) (*models.SyncResult, error) {
	if !o.runMu.TryLock() {
		metrics.RecordSyncOperation(opts.mode(), metrics.OutcomeRejected, 0, 0)
		return nil, ErrSyncInProgress
	}
	defer o.runMu.Unlock()

	ctx = logging.ContextWithNewCorrelationID(ctx)
	log := logging.Ctx(ctx)

	scope := cfg.Sync.Scope
	if !cfg.SyncEnabled(scope) {
		log.Info().Str("scope", scope).Msg("Population mode is local, skipping sync")
		result := models.NewSyncResult()
		result.Skipped = true
		metrics.RecordSyncOperation(opts.mode(), metrics.OutcomeSkipped, 0, 0)
		return result, nil
	}

	o.setRunning(true)
	metrics.SyncInProgress.Set(1)
	defer metrics.SyncInProgress.Set(0)

	start := time.Now()
	result, err := o.run(ctx, cfg, opts)
	duration := time.Since(start)

	outcome := metrics.OutcomeSuccess
	switch {
	case err != nil:
		outcome = metrics.OutcomeFailed
		log.Error().Err(err).Str("mode", opts.mode()).Msg("Sync failed")
		o.reporter.Error(ctx, err.Error())
	case len(result.Errors) > 0:
		outcome = metrics.OutcomePartial
	}
	processed := 0
	if result != nil {
		processed = result.TotalProcessed
	}
	metrics.RecordSyncOperation(opts.mode(), outcome, duration, processed)
	o.finish(result, err)

	if err != nil {
		return nil, err
	}

	log.Info().
		Str("mode", opts.mode()).
		Int("chunks", result.Chunks).
		Int("processed", result.TotalProcessed).
		Dur("duration", duration).
		Msg("Sync completed: " + result.Summary())
	o.reporter.Complete(ctx, result)
	return result, nil
}

func (o *Orchestrator) run(ctx context.Context, cfg *config.Config, opts Options) (*models.SyncResult, error) {
	log := logging.Ctx(ctx)

	window := syncWindow(o.now(), &cfg.Sync, opts)
	if window.Empty() {
		return nil, &FatalError{Stage: StageOptions, Err: fmt.Errorf("empty sync window %s", window)}
	}
	if err := o.store.Ping(ctx); err != nil {
		return nil, &FatalError{Stage: StageStore, Err: err}
	}

	result := models.NewSyncResult()

	report, err := NewReconciler(o.store).Reconcile(ctx)
	if err != nil {
		return nil, &FatalError{Stage: StageReconcile, Err: err}
	}
	result.Deleted = report.DuplicatesRemoved

	chunks := []Window{window}
	if opts.FullSync {
		chunks = partition(window)
	}
	result.Chunks = len(chunks)

	log.Info().
		Str("mode", opts.mode()).
		Str("window", window.String()).
		Int("chunks", len(chunks)).
		Int("duplicates_removed", report.DuplicatesRemoved).
		Msg("Starting sync")
	o.reporter.Progress(ctx, 0, fmt.Sprintf("Syncing %s in %d chunk(s)", window, len(chunks)))

	pacer := NewPacer(cfg.Sync.RequestDelay)
	fetcher := NewChunkFetcher(source.For(o.src, &cfg.Source), pacer, FetcherOptions{
		PageSize:   cfg.Source.PageSize,
		Groups:     cfg.Source.Groups,
		Types:      cfg.Source.Types,
		Attempts:   cfg.Sync.FetchAttempts,
		RetryDelay: cfg.Sync.FetchRetryDelay,
	})
	upserter := NewUpserter(o.store, cfg.Sync.UpsertConcurrency)
	upserter.now = o.now

	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return nil, &FatalError{Stage: StageCancelled, Err: err}
		}

		if err := o.processChunk(ctx, fetcher, upserter, chunk, result); err != nil {
			if ctx.Err() != nil {
				return nil, &FatalError{Stage: StageCancelled, Err: ctx.Err()}
			}
			chunkErr := &ChunkError{Window: chunk, Err: err}
			result.Errors = append(result.Errors, chunkErr.Error())
			log.Warn().Err(err).Str("window", chunk.String()).Msg("Chunk failed, continuing with next chunk")
		}

		percent := (i + 1) * 100 / len(chunks)
		o.reporter.Progress(ctx, percent, fmt.Sprintf("Chunk %d/%d (%s): %d added, %d updated",
			i+1, len(chunks), chunk, result.Added, result.Updated))
	}

	result.LastSyncedAt = o.now().UTC()
	return result, nil
}

func (o *Orchestrator) processChunk(ctx context.Context, fetcher *ChunkFetcher, upserter *Upserter, w Window, result *models.SyncResult) error {
	start := time.Now()

	fetched, err := fetcher.Fetch(ctx, w)
	if err != nil {
		metrics.RecordChunk(time.Since(start), 0, 0, err)
		return err
	}

	batch, err := upserter.UpsertBatch(ctx, fetched.Events, models.InputSync)
	metrics.RecordChunk(time.Since(start), fetched.Fetched, fetched.Unique, err)
	if batch != nil {
		result.Added += batch.Added
		result.Updated += batch.Updated
		result.Conflicts += batch.Conflicts
		for _, e := range batch.Errors {
			result.Errors = append(result.Errors, e.Error())
		}
		metrics.RecordUpserts(batch.Added, batch.Updated, batch.Conflicts, len(batch.Errors)-batch.Conflicts)
	}
	result.TotalProcessed += fetched.Unique

	logging.Ctx(ctx).Debug().
		Str("window", w.String()).
		Int("fetched", fetched.Fetched).
		Int("unique", fetched.Unique).
		Msg("Chunk processed")
	return err
}

// Reconcile runs a duplicate sweep under the run lock. It returns
// ErrSyncInProgress without sweeping while a sync holds the lock, and a sync
// started during the sweep is rejected the same way.
func (o *Orchestrator) Reconcile(ctx context.Context) (*models.ReconcileReport, error) {
	if !o.runMu.TryLock() {
		return nil, ErrSyncInProgress
	}
	defer o.runMu.Unlock()

	return NewReconciler(o.store).Reconcile(ctx)
}

// Running reports whether a run is active.
func (o *Orchestrator) Running() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.running
}

// Status returns the current state and the outcome of the last finished run.
func (o *Orchestrator) Status() Status {
	o.mu.RLock()
	defer o.mu.RUnlock()

	st := Status{Running: o.running, LastResult: o.lastResult}
	if !o.lastFinished.IsZero() {
		t := o.lastFinished
		st.LastFinishedAt = &t
	}
	if o.lastErr != nil {
		st.LastError = o.lastErr.Error()
	}
	return st
}

func (o *Orchestrator) setRunning(running bool) {
	o.mu.Lock()
	o.running = running
	o.mu.Unlock()
}

func (o *Orchestrator) finish(result *models.SyncResult, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.running = false
	o.lastFinished = o.now()
	o.lastErr = err
	if err == nil {
		o.lastResult = result
	}
}

// IsFatal reports whether err aborted a run.
func IsFatal(err error) bool {
	var fatal *FatalError
	return errors.As(err, &fatal)
}
