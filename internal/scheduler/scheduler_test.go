// EventSync - External Event Cache Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/eventsync

package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tomtom215/eventsync/internal/config"
	"github.com/tomtom215/eventsync/internal/metrics"
	"github.com/tomtom215/eventsync/internal/models"
	intsync "github.com/tomtom215/eventsync/internal/sync"
)

type fakeSyncer struct {
	sync  func(ctx context.Context, cfg *config.Config, opts intsync.Options) (*models.SyncResult, error)
	calls atomic.Int32
}

func (f *fakeSyncer) Sync(ctx context.Context, cfg *config.Config, opts intsync.Options) (*models.SyncResult, error) {
	f.calls.Add(1)
	return f.sync(ctx, cfg, opts)
}

func okSyncer() *fakeSyncer {
	return &fakeSyncer{sync: func(context.Context, *config.Config, intsync.Options) (*models.SyncResult, error) {
		return models.NewSyncResult(), nil
	}}
}

func staticLoader(mode config.PopulationMode) LoaderFunc {
	return func() (*config.Config, error) {
		cfg := config.Default()
		cfg.Population = map[string]config.PopulationMode{config.DefaultScope: mode}
		return cfg, nil
	}
}

func TestTick_Outcomes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		loader    LoaderFunc
		syncErr   error
		skipped   bool
		panics    bool
		want      string
		wantCalls int32
	}{
		{name: "external runs", loader: staticLoader(config.PopulationExternal), want: OutcomeRan, wantCalls: 1},
		{name: "hybrid runs", loader: staticLoader(config.PopulationHybrid), want: OutcomeRan, wantCalls: 1},
		{name: "local skipped without sync", loader: staticLoader(config.PopulationLocal), want: OutcomeSkipped},
		{
			name:   "config error",
			loader: func() (*config.Config, error) { return nil, errors.New("bad yaml") },
			want:   OutcomeConfigError,
		},
		{name: "busy", loader: staticLoader(config.PopulationExternal), syncErr: intsync.ErrSyncInProgress, want: OutcomeBusy, wantCalls: 1},
		{
			name:      "fatal",
			loader:    staticLoader(config.PopulationExternal),
			syncErr:   &intsync.FatalError{Stage: intsync.StageStore, Err: errors.New("store down")},
			want:      OutcomeFailed,
			wantCalls: 1,
		},
		{name: "orchestrator skip", loader: staticLoader(config.PopulationExternal), skipped: true, want: OutcomeSkipped, wantCalls: 1},
		{name: "panic recovered", loader: staticLoader(config.PopulationExternal), panics: true, want: OutcomePanic, wantCalls: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			syncer := &fakeSyncer{sync: func(_ context.Context, _ *config.Config, opts intsync.Options) (*models.SyncResult, error) {
				if opts.FullSync {
					t.Error("scheduled syncs must be incremental")
				}
				if tt.panics {
					panic("boom")
				}
				if tt.syncErr != nil {
					return nil, tt.syncErr
				}
				r := models.NewSyncResult()
				r.Skipped = tt.skipped
				return r, nil
			}}

			s := New(tt.loader, syncer, time.Hour, false)
			if got := s.Tick(context.Background()); got != tt.want {
				t.Errorf("Tick() = %q, want %q", got, tt.want)
			}
			if got := syncer.calls.Load(); got != tt.wantCalls {
				t.Errorf("Sync calls = %d, want %d", got, tt.wantCalls)
			}
		})
	}
}

func TestTick_ReloadsConfigEveryTick(t *testing.T) {
	t.Parallel()

	var mode atomic.Value
	mode.Store(config.PopulationExternal)
	loads := 0
	loader := LoaderFunc(func() (*config.Config, error) {
		loads++
		cfg := config.Default()
		cfg.Population = map[string]config.PopulationMode{config.DefaultScope: mode.Load().(config.PopulationMode)}
		return cfg, nil
	})

	syncer := okSyncer()
	s := New(loader, syncer, time.Hour, false)

	if got := s.Tick(context.Background()); got != OutcomeRan {
		t.Fatalf("first tick = %q", got)
	}
	mode.Store(config.PopulationLocal)
	if got := s.Tick(context.Background()); got != OutcomeSkipped {
		t.Fatalf("second tick = %q, want skipped after switching to local", got)
	}
	if loads != 2 {
		t.Errorf("config loaded %d times, want 2", loads)
	}
	if syncer.calls.Load() != 1 {
		t.Errorf("Sync calls = %d, want 1", syncer.calls.Load())
	}
}

func TestTick_CountsMetric(t *testing.T) {
	before := testutil.ToFloat64(metrics.SchedulerTicks.WithLabelValues(OutcomeBusy))

	syncer := &fakeSyncer{sync: func(context.Context, *config.Config, intsync.Options) (*models.SyncResult, error) {
		return nil, intsync.ErrSyncInProgress
	}}
	New(staticLoader(config.PopulationExternal), syncer, time.Hour, false).Tick(context.Background())

	after := testutil.ToFloat64(metrics.SchedulerTicks.WithLabelValues(OutcomeBusy))
	if after-before < 1 {
		t.Errorf("busy ticks increased by %v, want at least 1", after-before)
	}
}

func TestScheduler_StartStop(t *testing.T) {
	t.Parallel()

	ticked := make(chan struct{}, 8)
	syncer := &fakeSyncer{sync: func(context.Context, *config.Config, intsync.Options) (*models.SyncResult, error) {
		ticked <- struct{}{}
		return models.NewSyncResult(), nil
	}}

	s := New(staticLoader(config.PopulationExternal), syncer, 20*time.Millisecond, true)
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := s.Start(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second Start = %v, want ErrAlreadyStarted", err)
	}

	// Startup tick plus at least one timer tick.
	for i := 0; i < 2; i++ {
		select {
		case <-ticked:
		case <-time.After(2 * time.Second):
			t.Fatalf("tick %d never happened", i+1)
		}
	}

	if err := s.Stop(); err != nil {
		t.Fatal(err)
	}
	calls := syncer.calls.Load()
	time.Sleep(60 * time.Millisecond)
	if syncer.calls.Load() != calls {
		t.Error("scheduler kept ticking after Stop")
	}

	if err := s.Stop(); err != nil {
		t.Errorf("second Stop = %v", err)
	}
	// A stopped scheduler can be started again.
	if err := s.Start(context.Background()); err != nil {
		t.Errorf("restart: %v", err)
	}
	_ = s.Stop()
}

func TestNew_DefaultInterval(t *testing.T) {
	t.Parallel()

	if s := New(staticLoader(config.PopulationLocal), okSyncer(), 0, false); s.interval != DefaultInterval {
		t.Errorf("interval = %v, want %v", s.interval, DefaultInterval)
	}
}
