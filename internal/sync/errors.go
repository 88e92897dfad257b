// EventSync - External Event Cache Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/eventsync

package sync

import (
	"errors"
	"fmt"

	"github.com/tomtom215/eventsync/internal/models"
)

// ErrSyncInProgress is returned when Sync is called while another run is active.
var ErrSyncInProgress = errors.New("sync already in progress")

// ChunkError is a failed chunk. The run continues with the next chunk.
type ChunkError struct {
	Window Window
	Err    error
}

func (e *ChunkError) Error() string {
	return fmt.Sprintf("chunk %s failed: %v", e.Window, e.Err)
}

func (e *ChunkError) Unwrap() error { return e.Err }

// ConflictError is a write rejected by the store for a uniqueness or version conflict.
type ConflictError struct {
	ExternalID models.ExternalID
	NaturalKey models.NaturalKey
	Err        error
}

func (e *ConflictError) Error() string {
	ref := "external id " + e.ExternalID.String()
	if e.ExternalID.IsZero() {
		ref = fmt.Sprintf("event %q at %s", e.NaturalKey.Title, e.NaturalKey.Start.UTC().Format("2006-01-02 15:04"))
	}
	return fmt.Sprintf("store conflict for %s (run reconciliation): %v", ref, e.Err)
}

func (e *ConflictError) Unwrap() error { return e.Err }

// FatalError aborts a whole run. Stage names where it happened.
type FatalError struct {
	Stage string
	Err   error
}

// Fatal error stages.
const (
	StageOptions   = "options"
	StageStore     = "store"
	StageReconcile = "reconcile"
	StageCancelled = "cancelled"
)

func (e *FatalError) Error() string {
	return fmt.Sprintf("sync aborted during %s: %v", e.Stage, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }
