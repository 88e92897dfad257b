// EventSync - External Event Cache Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/eventsync

package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/tomtom215/eventsync/internal/logging"
	intsync "github.com/tomtom215/eventsync/internal/sync"
)

const dateLayout = "2006-01-02"

// SyncRequest is the body of POST /api/v1/sync. Dates are UTC days.
type SyncRequest struct {
	FullSync bool   `json:"full_sync"`
	DateFrom string `json:"date_from,omitempty" validate:"omitempty,datetime=2006-01-02"`
	DateTo   string `json:"date_to,omitempty" validate:"omitempty,datetime=2006-01-02"`
}

// options converts the validated request to orchestrator options.
func (req SyncRequest) options() (intsync.Options, error) {
	opts := intsync.Options{FullSync: req.FullSync}
	if req.DateFrom != "" {
		from, err := time.Parse(dateLayout, req.DateFrom)
		if err != nil {
			return opts, err
		}
		opts.DateFrom = &from
	}
	if req.DateTo != "" {
		to, err := time.Parse(dateLayout, req.DateTo)
		if err != nil {
			return opts, err
		}
		opts.DateTo = &to
	}
	if opts.DateFrom != nil && opts.DateTo != nil && !opts.DateTo.After(*opts.DateFrom) {
		return opts, errors.New("date_to must be after date_from")
	}
	return opts, nil
}

// SyncAccepted is returned with 202 when a background run starts.
type SyncAccepted struct {
	CorrelationID string `json:"correlation_id"`
	Mode          string `json:"mode"`
}

// TriggerSync starts a sync in the background.
//
// A local population mode is answered synchronously with the skipped result.
func (h *Handler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req SyncRequest
	if err := decodeJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, codeValidation, err.Error(), nil)
		return
	}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondValidation(w, apiErr)
		return
	}
	opts, err := req.options()
	if err != nil {
		respondError(w, http.StatusBadRequest, codeValidation, err.Error(), nil)
		return
	}

	cfg, err := h.deps.Config.Load()
	if err != nil {
		respondError(w, http.StatusInternalServerError, codeConfig, "Failed to load configuration", err)
		return
	}

	if !cfg.SyncEnabled(cfg.Sync.Scope) {
		result, err := h.deps.Syncer.Sync(r.Context(), cfg, opts)
		if err != nil {
			h.respondSyncError(w, err)
			return
		}
		respondSuccess(w, r, http.StatusOK, result, start)
		return
	}

	if h.deps.Syncer.Running() {
		respondError(w, http.StatusConflict, codeSyncInProgress, intsync.ErrSyncInProgress.Error(), nil)
		return
	}

	correlationID := logging.CorrelationIDFromContext(r.Context())
	if correlationID == "" {
		correlationID = logging.GenerateCorrelationID()
	}
	runCtx := logging.ContextWithCorrelationID(h.deps.BaseContext, correlationID)

	go func() {
		if _, err := h.deps.Syncer.Sync(runCtx, cfg, opts); err != nil {
			if errors.Is(err, intsync.ErrSyncInProgress) {
				logging.Ctx(runCtx).Info().Msg("Triggered sync not started: another run won the lock")
				return
			}
			logging.Ctx(runCtx).Warn().Err(err).Msg("Triggered sync failed")
		}
	}()

	mode := "incremental"
	if opts.FullSync {
		mode = "full"
	}
	logging.Ctx(runCtx).Info().Str("mode", mode).Msg("Sync triggered via API")
	respondSuccess(w, r, http.StatusAccepted, SyncAccepted{CorrelationID: correlationID, Mode: mode}, start)
}

func (h *Handler) respondSyncError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, intsync.ErrSyncInProgress):
		respondError(w, http.StatusConflict, codeSyncInProgress, err.Error(), nil)
	default:
		respondError(w, http.StatusInternalServerError, codeStore, "Sync failed", err)
	}
}

// SyncStatus reports whether a run is active and the last result.
func (h *Handler) SyncStatus(w http.ResponseWriter, r *http.Request) {
	respondSuccess(w, r, http.StatusOK, h.deps.Syncer.Status(), time.Now())
}

// Reconcile runs the duplicate reconciler synchronously. The reconciler holds
// the orchestrator's run lock, so it answers 409 while a sync is running.
func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Minute)
	defer cancel()

	report, err := h.deps.Reconciler.Reconcile(ctx)
	switch {
	case errors.Is(err, intsync.ErrSyncInProgress):
		respondError(w, http.StatusConflict, codeSyncInProgress, "Reconciliation is refused while a sync is running", nil)
		return
	case err != nil:
		respondError(w, http.StatusInternalServerError, codeStore, "Reconciliation failed", err)
		return
	}
	logging.Ctx(r.Context()).Info().
		Int("removed", report.DuplicatesRemoved).
		Int("groups", report.GroupsProcessed).
		Msg("Reconciliation triggered via API")
	respondSuccess(w, r, http.StatusOK, report, start)
}
