// EventSync - External Event Cache Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/eventsync

package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/eventsync/internal/models"
	"github.com/tomtom215/eventsync/internal/resolver"
	"github.com/tomtom215/eventsync/internal/store"
)

// GetEvent handles GET /api/v1/events/{ref}.
//
// A slug-shaped ref goes through the on-demand resolver with cache linking
// enabled. Anything else is treated as an external id and served from the
// cache only.
func (h *Handler) GetEvent(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ref := strings.TrimSpace(chi.URLParam(r, "ref"))
	if ref == "" {
		respondError(w, http.StatusBadRequest, codeValidation, "event reference is required", nil)
		return
	}

	if models.LooksLikeSlug(ref) {
		h.resolveSlug(w, r, ref, start)
		return
	}

	rec, err := h.deps.Store.FindByExternalID(r.Context(), models.ExternalID(ref))
	h.respondRecord(w, r, rec, err, start)
}

func (h *Handler) resolveSlug(w http.ResponseWriter, r *http.Request, slug string, start time.Time) {
	res, err := h.deps.Resolver.Resolve(r.Context(), slug, resolver.Options{AllowCacheLink: true})
	switch {
	case errors.Is(err, resolver.ErrExternalQuery):
		respondError(w, http.StatusBadGateway, codeExternalSource, "External event source is unavailable", err)
		return
	case err != nil:
		respondError(w, http.StatusInternalServerError, codeStore, "Failed to resolve event", err)
		return
	case res.Outcome == resolver.OutcomeNotFound:
		respondError(w, http.StatusNotFound, codeNotFound, "No event matches "+slug, nil)
		return
	}
	respondSuccess(w, r, http.StatusOK, res, start)
}

// LookupRequest selects a record by external id or by natural key.
type LookupRequest struct {
	ExternalID string `validate:"omitempty,max=128"`
	Start      string `validate:"required_without=ExternalID"`
	Title      string `validate:"required_without=ExternalID,max=512"`
	ItemType   string `validate:"max=128"`
	GroupCode  string `validate:"max=128"`
}

// LookupEvent handles GET /api/v1/events?external_id= and
// GET /api/v1/events?start=&title=&item_type=&group_code=.
func (h *Handler) LookupEvent(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	q := r.URL.Query()
	req := LookupRequest{
		ExternalID: strings.TrimSpace(q.Get("external_id")),
		Start:      strings.TrimSpace(q.Get("start")),
		Title:      q.Get("title"),
		ItemType:   q.Get("item_type"),
		GroupCode:  q.Get("group_code"),
	}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondValidation(w, apiErr)
		return
	}

	if req.ExternalID != "" {
		rec, err := h.deps.Store.FindByExternalID(r.Context(), models.ExternalID(req.ExternalID))
		h.respondRecord(w, r, rec, err, start)
		return
	}

	at, err := time.Parse(time.RFC3339, req.Start)
	if err != nil {
		respondError(w, http.StatusBadRequest, codeValidation, "start must be an RFC 3339 timestamp", nil)
		return
	}
	rec, err := h.deps.Store.FindByNaturalKey(r.Context(), models.NaturalKey{
		Start:     at,
		Title:     req.Title,
		ItemType:  req.ItemType,
		GroupCode: req.GroupCode,
	})
	h.respondRecord(w, r, rec, err, start)
}

func (h *Handler) respondRecord(w http.ResponseWriter, r *http.Request, rec *models.CachedEventRecord, err error, start time.Time) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		respondError(w, http.StatusNotFound, codeNotFound, "Event not found in cache", nil)
	case err != nil:
		respondError(w, http.StatusInternalServerError, codeStore, "Failed to read event", err)
	default:
		respondSuccess(w, r, http.StatusOK, rec, start)
	}
}
