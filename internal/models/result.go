// EventSync - External Event Cache Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/eventsync

package models

import (
	"fmt"
	"time"
)

// SyncResult aggregates the outcome of one sync run.
type SyncResult struct {
	Added          int       `json:"added"`
	Updated        int       `json:"updated"`
	Deleted        int       `json:"deleted"`
	Errors         []string  `json:"errors"`
	Conflicts      int       `json:"conflicts"`
	TotalProcessed int       `json:"total_processed"`
	LastSyncedAt   time.Time `json:"last_synced_at"`
	Chunks         int       `json:"chunks"`
	Skipped        bool      `json:"skipped,omitempty"`
}

// NewSyncResult returns an empty result with a non-nil Errors slice.
func NewSyncResult() *SyncResult {
	return &SyncResult{Errors: []string{}}
}

// Summary returns a one-line human-readable summary, e.g.
// "12 added, 4 updated, 1 deleted, 0 errors".
func (r *SyncResult) Summary() string {
	s := fmt.Sprintf("%d added, %d updated, %d deleted, %d errors",
		r.Added, r.Updated, r.Deleted, len(r.Errors))
	if r.Conflicts > 0 {
		s += fmt.Sprintf(" (%d store conflicts, run reconciliation)", r.Conflicts)
	}
	if r.Skipped {
		s += " (skipped: population mode is local)"
	}
	return s
}

// ReconcileDetail describes one group of records that shared an external id.
type ReconcileDetail struct {
	ExternalID ExternalID `json:"external_id"`
	KeptID     string     `json:"kept_id"`
	DeletedIDs []string   `json:"deleted_ids"`
}

// ReconcileReport is the outcome of one duplicate reconciliation sweep.
type ReconcileReport struct {
	DuplicatesRemoved int               `json:"duplicates_removed"`
	GroupsProcessed   int               `json:"groups_processed"`
	Details           []ReconcileDetail `json:"details"`
}
