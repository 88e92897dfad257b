// EventSync - External Event Cache Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/eventsync

package models

import (
	"slices"
	"strings"
	"time"
)

// ProvenanceSource records where the authoritative copy of a cached record lives.
type ProvenanceSource string

const (
	// SourceLocal marks records created by hand or imported from a file.
	SourceLocal ProvenanceSource = "LOCAL"
	// SourceExternal marks records owned by the external source.
	SourceExternal ProvenanceSource = "EXTERNAL"
)

// InputSource tags how a cached record first entered the store.
type InputSource string

const (
	InputSync       InputSource = "sync"
	InputOnDemand   InputSource = "on_demand"
	InputManual     InputSource = "manual"
	InputFileImport InputSource = "file_import"
)

// ProvenanceFor returns the provenance source for a record created through input.
// Manual and file-imported records keep LOCAL even after being matched by a sync.
func ProvenanceFor(input InputSource) ProvenanceSource {
	switch input {
	case InputManual, InputFileImport:
		return SourceLocal
	default:
		return SourceExternal
	}
}

// Provenance is the synchronization bookkeeping of a cached record.
//
// SyncedVersion starts at 1 on insert and is incremented by exactly one by the store on
// every successful update. LastSyncedAt only moves forward.
type Provenance struct {
	Source        ProvenanceSource `json:"source"`
	ExternalID    ExternalID       `json:"external_id,omitempty"`
	LastSyncedAt  time.Time        `json:"last_synced_at"`
	SyncedVersion int64            `json:"synced_version"`
}

// AdvanceSyncedAt sets LastSyncedAt to now unless the recorded value is already later.
func (p *Provenance) AdvanceSyncedAt(now time.Time) {
	if now.After(p.LastSyncedAt) {
		p.LastSyncedAt = now
	}
}

// EventStatus is the lifecycle status derived from a record's status history.
type EventStatus string

const (
	StatusDraft     EventStatus = "draft"
	StatusApproved  EventStatus = "approved"
	StatusCancelled EventStatus = "cancelled"
)

// NormalizeStatus maps the external status vocabulary onto EventStatus.
// A non-empty cancellation reason always means cancelled.
func NormalizeStatus(status, cancellationReason string) EventStatus {
	if strings.TrimSpace(cancellationReason) != "" {
		return StatusCancelled
	}
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "approved", "published", "confirmed", "active", "live":
		return StatusApproved
	case "cancelled", "canceled", "withdrawn":
		return StatusCancelled
	default:
		return StatusDraft
	}
}

// StatusEntry is one item of a record's append-only lifecycle log.
// Entries with an empty Status are notes and do not change the current status.
type StatusEntry struct {
	At     time.Time   `json:"at"`
	Status EventStatus `json:"status,omitempty"`
	Source string      `json:"source"`
	Note   string      `json:"note,omitempty"`
}

// CachedEventRecord is the locally stored copy of an event.
type CachedEventRecord struct {
	ID            string        `json:"id"`
	Projection    ExternalEvent `json:"projection"`
	Extension     Extension     `json:"extension"`
	Provenance    Provenance    `json:"provenance"`
	StatusHistory []StatusEntry `json:"status_history,omitempty"`
	InputSource   InputSource   `json:"input_source"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// ExternalID returns the external identifier of the record, or "" when it has none.
func (r *CachedEventRecord) ExternalID() ExternalID {
	return r.Provenance.ExternalID
}

// NaturalKey returns the natural key of the record's projection.
func (r *CachedEventRecord) NaturalKey() NaturalKey {
	return r.Projection.NaturalKey()
}

// Slugs returns the slugs under which the record can be found.
func (r *CachedEventRecord) Slugs() []string {
	return r.Projection.Slugs()
}

// CurrentStatus returns the status of the most recent status-changing history entry,
// or StatusDraft when there is none.
func (r *CachedEventRecord) CurrentStatus() EventStatus {
	for i := len(r.StatusHistory) - 1; i >= 0; i-- {
		if s := r.StatusHistory[i].Status; s != "" {
			return s
		}
	}
	return StatusDraft
}

// RecordStatus appends a status entry when status differs from the current status.
// It reports whether an entry was appended.
func (r *CachedEventRecord) RecordStatus(status EventStatus, source string, at time.Time) bool {
	if len(r.StatusHistory) > 0 && r.CurrentStatus() == status {
		return false
	}
	r.StatusHistory = append(r.StatusHistory, StatusEntry{At: at, Status: status, Source: source})
	return true
}

// Clone returns a deep copy of the record.
func (r *CachedEventRecord) Clone() *CachedEventRecord {
	if r == nil {
		return nil
	}
	c := *r
	c.Projection.Media = slices.Clone(r.Projection.Media)
	c.StatusHistory = slices.Clone(r.StatusHistory)
	c.Extension = r.Extension.Clone()
	return &c
}

// Outranks reports whether r should survive over other when both share an external id.
// Highest SyncedVersion wins, then the most recent LastSyncedAt, then the lowest ID.
func (r *CachedEventRecord) Outranks(other *CachedEventRecord) bool {
	if r.Provenance.SyncedVersion != other.Provenance.SyncedVersion {
		return r.Provenance.SyncedVersion > other.Provenance.SyncedVersion
	}
	if !r.Provenance.LastSyncedAt.Equal(other.Provenance.LastSyncedAt) {
		return r.Provenance.LastSyncedAt.After(other.Provenance.LastSyncedAt)
	}
	return r.ID < other.ID
}
