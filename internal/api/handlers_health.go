// EventSync - External Event Cache Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/eventsync

package api

import (
	"net/http"
	"time"

	"github.com/tomtom215/eventsync/internal/models"
)

// HealthLive reports that the process is serving HTTP.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, &models.APIResponse{
		Status: "success",
		Data: map[string]interface{}{
			"alive":  true,
			"uptime": time.Since(h.startTime).Seconds(),
		},
		Metadata: models.Metadata{Timestamp: time.Now().UTC()},
	})
}

// HealthReady returns 200 only when the local store answers a ping.
// The external source is not checked: reads are served from the cache
// even while the source is down.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	storeReady := h.deps.Store != nil && h.deps.Store.Ping(r.Context()) == nil

	statusCode := http.StatusOK
	status := "ready"
	if !storeReady {
		statusCode = http.StatusServiceUnavailable
		status = "not_ready"
	}

	respondJSON(w, statusCode, &models.APIResponse{
		Status: status,
		Data: map[string]interface{}{
			"store_connected": storeReady,
			"sync_running":    h.deps.Syncer != nil && h.deps.Syncer.Running(),
			"uptime":          time.Since(h.startTime).Seconds(),
		},
		Metadata: models.Metadata{Timestamp: time.Now().UTC()},
	})
}
