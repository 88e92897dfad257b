// EventSync - External Event Cache Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/eventsync

package models

import (
	"slices"
	"time"
)

// ExtensionSchemaVersion is the current version of the Extension layout.
const ExtensionSchemaVersion = 1

// Extension holds locally owned data attached to a cached record. It is never
// overwritten by the external projection; callers change it through Merge.
type Extension struct {
	SchemaVersion  int                   `json:"schema_version"`
	Attachments    []Attachment          `json:"attachments,omitempty"`
	RiskAssessment *RiskAssessment       `json:"risk_assessment,omitempty"`
	Notifications  *NotificationSettings `json:"notifications,omitempty"`
}

// Attachment is a file reference added by organizers.
type Attachment struct {
	Name        string `json:"name" validate:"required"`
	URL         string `json:"url" validate:"required,url"`
	ContentType string `json:"content_type,omitempty"`
}

// RiskAssessment records the organizer's risk review of an event.
type RiskAssessment struct {
	Level      string    `json:"level" validate:"oneof=low medium high"`
	Notes      string    `json:"notes,omitempty"`
	AssessedBy string    `json:"assessed_by,omitempty"`
	AssessedAt time.Time `json:"assessed_at"`
}

// NotificationSettings controls reminders sent ahead of an event.
type NotificationSettings struct {
	Enabled    bool          `json:"enabled"`
	Recipients []string      `json:"recipients,omitempty" validate:"dive,email"`
	LeadTime   time.Duration `json:"lead_time"`
}

// Merge returns e with every field set in patch applied on top.
// Nil fields in patch leave the current value untouched. A non-nil empty Attachments
// slice clears the attachments.
func (e Extension) Merge(patch *Extension) Extension {
	out := e.Clone()
	if out.SchemaVersion < ExtensionSchemaVersion {
		out.SchemaVersion = ExtensionSchemaVersion
	}
	if patch == nil {
		return out
	}
	if patch.SchemaVersion > out.SchemaVersion {
		out.SchemaVersion = patch.SchemaVersion
	}
	if patch.Attachments != nil {
		out.Attachments = slices.Clone(patch.Attachments)
	}
	if patch.RiskAssessment != nil {
		ra := *patch.RiskAssessment
		out.RiskAssessment = &ra
	}
	if patch.Notifications != nil {
		n := *patch.Notifications
		n.Recipients = slices.Clone(patch.Notifications.Recipients)
		out.Notifications = &n
	}
	return out
}

// Clone returns a deep copy of e.
func (e Extension) Clone() Extension {
	out := e
	out.Attachments = slices.Clone(e.Attachments)
	if e.RiskAssessment != nil {
		ra := *e.RiskAssessment
		out.RiskAssessment = &ra
	}
	if e.Notifications != nil {
		n := *e.Notifications
		n.Recipients = slices.Clone(e.Notifications.Recipients)
		out.Notifications = &n
	}
	return out
}
