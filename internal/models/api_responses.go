// EventSync - External Event Cache Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/eventsync

package models

import (
	"time"
)

// APIResponse is the envelope used by every HTTP endpoint.
//
// Status is "success" (see Data) or "error" (see Error).
//
//	{
//	  "status": "success",
//	  "data": {"added": 12, "updated": 4, "deleted": 1, "errors": []},
//	  "metadata": {"timestamp": "2026-03-01T12:00:00Z"}
//	}
type APIResponse struct {
	Status   string      `json:"status"`
	Data     interface{} `json:"data"`
	Metadata Metadata    `json:"metadata"`
	Error    *APIError   `json:"error,omitempty"`
}

// Metadata carries response timing information.
type Metadata struct {
	Timestamp     time.Time `json:"timestamp"`
	QueryTimeMS   int64     `json:"query_time_ms,omitempty"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// APIError is a machine-readable error code plus a human-readable message.
//
// Codes used by the API:
//   - VALIDATION_ERROR: invalid request body or query parameters
//   - NOT_FOUND: no cached record and no external match
//   - SYNC_IN_PROGRESS: a sync run already holds the run lock
//   - EXTERNAL_SOURCE_ERROR: the external source failed while resolving
//   - STORE_ERROR: the local store failed
type APIError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}
