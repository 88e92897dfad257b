// EventSync - External Event Cache Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/eventsync

// Package scheduler runs incremental syncs on a fixed period.
//
// Each tick re-reads configuration through a ConfigLoader, so a population
// mode or credential change takes effect on the next tick without a restart.
// Failures inside a tick, panics included, are logged and counted; the
// ticker keeps firing.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/tomtom215/eventsync/internal/config"
	"github.com/tomtom215/eventsync/internal/logging"
	"github.com/tomtom215/eventsync/internal/metrics"
	"github.com/tomtom215/eventsync/internal/models"
	intsync "github.com/tomtom215/eventsync/internal/sync"
)

// DefaultInterval is used when the configured interval is zero.
const DefaultInterval = 6 * time.Hour

// Tick outcomes, also used as the metrics label.
const (
	OutcomeRan         = "ran"
	OutcomeSkipped     = "skipped"
	OutcomeBusy        = "busy"
	OutcomeFailed      = "failed"
	OutcomePanic       = "panic"
	OutcomeConfigError = "config_error"
)

// ErrAlreadyStarted is returned by Start on a running scheduler.
var ErrAlreadyStarted = errors.New("scheduler already started")

// ConfigLoader returns the current configuration. config.Loader satisfies it.
type ConfigLoader interface {
	Load() (*config.Config, error)
}

// LoaderFunc adapts a function to ConfigLoader.
type LoaderFunc func() (*config.Config, error)

// Load calls f.
func (f LoaderFunc) Load() (*config.Config, error) { return f() }

// Syncer runs one sync. *sync.Orchestrator satisfies it.
type Syncer interface {
	Sync(ctx context.Context, cfg *config.Config, opts intsync.Options) (*models.SyncResult, error)
}

// Scheduler owns its ticker. Nothing about it is process-global, so
// several schedulers can coexist in tests. It is supervised through
// services.SchedulerService.
type Scheduler struct {
	loader       ConfigLoader
	syncer       Syncer
	interval     time.Duration
	runOnStartup bool

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a scheduler but does not start it.
func New(loader ConfigLoader, syncer Syncer, interval time.Duration, runOnStartup bool) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scheduler{
		loader:       loader,
		syncer:       syncer,
		interval:     interval,
		runOnStartup: runOnStartup,
	}
}

// Start launches the tick loop. It returns at once; the loop exits when ctx
// is cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return ErrAlreadyStarted
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go s.loop(ctx, s.done)

	logging.Info().
		Dur("interval", s.interval).
		Bool("run_on_startup", s.runOnStartup).
		Msg("Sync scheduler started")
	return nil
}

// Stop cancels the loop and waits for an in-flight tick to return.
// Stopping a scheduler that is not running is a no-op.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	logging.Info().Msg("Sync scheduler stopped")
	return nil
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	if s.runOnStartup {
		s.Tick(ctx)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs one scheduled sync attempt and returns its outcome.
func (s *Scheduler) Tick(ctx context.Context) (outcome string) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error().
				Str("component", "scheduler").
				Interface("panic", r).
				Msg("Scheduled sync panicked")
			outcome = OutcomePanic
		}
		metrics.SchedulerTicks.WithLabelValues(outcome).Inc()
	}()

	cfg, err := s.loader.Load()
	if err != nil {
		logging.Error().Err(err).Msg("Scheduled sync: configuration reload failed")
		return OutcomeConfigError
	}

	scope := cfg.Sync.Scope
	if !cfg.SyncEnabled(scope) {
		logging.Info().
			Str("scope", scope).
			Str("population_mode", string(cfg.PopulationMode(scope))).
			Msg("Scheduled sync skipped")
		return OutcomeSkipped
	}

	result, err := s.syncer.Sync(ctx, cfg, intsync.Options{FullSync: false})
	switch {
	case errors.Is(err, intsync.ErrSyncInProgress):
		logging.Info().Msg("Scheduled sync skipped: a sync is already running")
		return OutcomeBusy
	case err != nil:
		logging.Error().Err(err).Msg("Scheduled sync failed")
		return OutcomeFailed
	case result != nil && result.Skipped:
		return OutcomeSkipped
	}

	logging.Info().
		Int("errors", len(result.Errors)).
		Msg("Scheduled sync finished: " + result.Summary())
	return OutcomeRan
}
