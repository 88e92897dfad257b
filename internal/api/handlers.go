// EventSync - External Event Cache Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/eventsync

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tomtom215/eventsync/internal/config"
	"github.com/tomtom215/eventsync/internal/logging"
	"github.com/tomtom215/eventsync/internal/models"
	"github.com/tomtom215/eventsync/internal/resolver"
	"github.com/tomtom215/eventsync/internal/store"
	intsync "github.com/tomtom215/eventsync/internal/sync"
	ws "github.com/tomtom215/eventsync/internal/websocket"
)

// ConfigLoader returns the current configuration.
type ConfigLoader interface {
	Load() (*config.Config, error)
}

// SyncRunner is the orchestrator as seen by the HTTP layer.
type SyncRunner interface {
	Sync(ctx context.Context, cfg *config.Config, opts intsync.Options) (*models.SyncResult, error)
	Running() bool
	Status() intsync.Status
}

// Reconciler runs a duplicate sweep. It returns intsync.ErrSyncInProgress
// while a sync holds the run lock.
type Reconciler interface {
	Reconcile(ctx context.Context) (*models.ReconcileReport, error)
}

// SlugResolver resolves human-friendly slugs.
type SlugResolver interface {
	Resolve(ctx context.Context, slug string, opts resolver.Options) (*resolver.Result, error)
}

// Dependencies groups the collaborators of Handler.
type Dependencies struct {
	Config     ConfigLoader
	Syncer     SyncRunner
	Reconciler Reconciler
	Resolver   SlugResolver
	Store      store.EventStore
	Hub        *ws.Hub // optional

	// BaseContext outlives requests; background syncs run under it.
	BaseContext context.Context
}

// Handler serves the EventSync HTTP endpoints.
type Handler struct {
	deps        Dependencies
	corsOrigins []string
	startTime   time.Time
}

// NewHandler creates a handler. corsOrigins also gates websocket origins.
func NewHandler(deps Dependencies, corsOrigins []string) *Handler {
	if deps.BaseContext == nil {
		deps.BaseContext = context.Background()
	}
	return &Handler{deps: deps, corsOrigins: corsOrigins, startTime: time.Now()}
}

func (h *Handler) getUpgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		CheckOrigin:      h.checkWebSocketOrigin,
		HandshakeTimeout: 10 * time.Second,
	}
}

// checkWebSocketOrigin accepts only origins listed in server.cors_origins.
// Browsers always send Origin, so a missing header is rejected.
func (h *Handler) checkWebSocketOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		logging.Warn().Msg("WebSocket connection rejected: missing Origin header")
		return false
	}
	for _, allowed := range h.corsOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	logging.Warn().Str("origin", sanitizeLogValue(origin)).Msg("WebSocket connection rejected from unauthorized origin")
	return false
}

// WebSocket upgrades the connection and attaches it to the progress hub.
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	if h.deps.Hub == nil {
		respondError(w, http.StatusServiceUnavailable, codeUnavailable, "WebSocket service unavailable", nil)
		return
	}

	upgrader := h.getUpgrader()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	client := ws.NewClient(h.deps.Hub, conn)
	h.deps.Hub.Register <- client
	client.Start()
}
