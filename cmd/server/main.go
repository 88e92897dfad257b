// EventSync - External Event Cache Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/eventsync

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tomtom215/eventsync/internal/api"
	"github.com/tomtom215/eventsync/internal/app"
	"github.com/tomtom215/eventsync/internal/config"
	"github.com/tomtom215/eventsync/internal/logging"
	"github.com/tomtom215/eventsync/internal/progress"
	"github.com/tomtom215/eventsync/internal/scheduler"
	"github.com/tomtom215/eventsync/internal/supervisor"
	"github.com/tomtom215/eventsync/internal/supervisor/services"
	ws "github.com/tomtom215/eventsync/internal/websocket"
)

func main() {
	loader := config.Loader{}

	cfg, err := loader.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Caller:     cfg.Logging.Caller,
		Timestamp:  true,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})
	defer func() {
		if err := logging.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing log file")
		}
	}()

	logging.Info().
		Str("scope", cfg.Sync.Scope).
		Str("population_mode", string(cfg.PopulationMode(cfg.Sync.Scope))).
		Str("store_backend", cfg.Store.Backend).
		Bool("source_configured", cfg.Source.BaseURL != "").
		Msg("Starting EventSync with supervisor tree")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := progress.NewBus()
	defer func() {
		if err := bus.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing progress bus")
		}
	}()

	components, err := app.Build(ctx, cfg, bus, app.WithConfigLoader(loader))
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize components")
	}
	defer func() {
		if err := components.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing components")
		}
	}()

	if cfg.Source.BaseURL != "" {
		pingCtx, pingCancel := context.WithTimeout(ctx, 10*time.Second)
		if err := components.Source.Ping(pingCtx); err != nil {
			logging.Warn().Err(err).Msg("External event source unreachable (will retry on next sync)")
		} else {
			logging.Info().Msg("Connected to external event source")
		}
		pingCancel()
	}

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		FailureThreshold: 5,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  10 * time.Second,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create supervisor tree")
	}

	wsHub := ws.NewHub()
	sched := scheduler.New(loader, components.Orchestrator, cfg.Sync.Interval, cfg.Sync.RunOnStartup)

	handler := api.NewHandler(api.Dependencies{
		Config:      loader,
		Syncer:      components.Orchestrator,
		Reconciler:  components.Orchestrator,
		Resolver:    components.Resolver,
		Store:       components.Store,
		Hub:         wsHub,
		BaseContext: ctx,
	}, cfg.Server.CORSOrigins)

	mwConfig := api.DefaultChiMiddlewareConfig()
	mwConfig.CORSAllowedOrigins = cfg.Server.CORSOrigins
	mwConfig.SyncTriggerLimit = cfg.Server.TriggerRateLimit

	server := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           api.NewRouter(handler, mwConfig).Setup(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.Timeout,
		WriteTimeout:      cfg.Server.Timeout,
		IdleTimeout:       60 * time.Second,
	}

	// Data layer
	if gc, ok := components.GarbageCollector(); ok && !cfg.Store.InMemory {
		tree.AddDataService(services.NewStoreGCService(gc, 10*time.Minute))
	}

	// Messaging layer
	tree.AddMessagingService(services.NewWebSocketHubService(wsHub))
	tree.AddMessagingService(progress.NewForwarder(bus, wsHub))
	tree.AddMessagingService(services.NewSchedulerService(sched))
	logging.Info().Dur("interval", cfg.Sync.Interval).Msg("Sync scheduler added to supervisor tree")

	// API layer
	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))
	logging.Info().Str("addr", server.Addr).Msg("HTTP server service added")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree...")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish...")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
		cancel()
	}

	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	if unstopped, _ := tree.UnstoppedServiceReport(); len(unstopped) > 0 {
		logging.Warn().Int("count", len(unstopped)).Msg("Services failed to stop within timeout")
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
		}
	}

	logging.Info().Msg("EventSync stopped gracefully")
}
