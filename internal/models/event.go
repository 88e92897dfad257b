// EventSync - External Event Cache Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/eventsync

// Package models defines the data structures shared by the sync engine, the stores,
// the resolver and the HTTP API.
package models

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// ExternalID is the identifier the external source assigns to an event.
//
// The source is inconsistent about its JSON type: some endpoints return
// "id": 12345 and others "id": "12345". Both decode to the same ExternalID.
type ExternalID string

// UnmarshalJSON accepts a JSON string, a JSON number or null.
func (id *ExternalID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("external id: %w", err)
		}
		*id = ExternalID(strings.TrimSpace(s))
		return nil
	}
	if _, err := strconv.ParseFloat(string(data), 64); err != nil {
		return fmt.Errorf("external id: unsupported value %s", data)
	}
	*id = ExternalID(data)
	return nil
}

// String returns the identifier as a plain string.
func (id ExternalID) String() string { return string(id) }

// IsZero reports whether the identifier is absent.
func (id ExternalID) IsZero() bool { return id == "" }

// Timestamp is a time.Time that decodes the date formats the external source emits.
// An empty string or null decodes to the zero time. It encodes as RFC 3339, or null when zero.
type Timestamp struct {
	time.Time
}

// timestampLayouts are tried in order when decoding.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// NewTimestamp wraps t, normalized to UTC.
func NewTimestamp(t time.Time) Timestamp {
	if t.IsZero() {
		return Timestamp{}
	}
	return Timestamp{Time: t.UTC()}
}

// ParseTimestamp parses s using the accepted layouts.
func ParseTimestamp(s string) (Timestamp, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Timestamp{}, nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return NewTimestamp(t), nil
		}
	}
	return Timestamp{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*t = Timestamp{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	parsed, err := ParseTimestamp(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// MarshalJSON implements json.Marshaler.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return []byte(strconv.Quote(t.UTC().Format(time.RFC3339Nano))), nil
}

// MediaItem is an image or document attached to an event by the external source.
type MediaItem struct {
	URL     string `json:"url"`
	Type    string `json:"type,omitempty"`
	Caption string `json:"caption,omitempty"`
}

// ExternalEvent is one event as returned by the external source.
//
// Only the fields the sync engine reads are modelled. ID may be absent, and it may change
// between syncs. StartDateTime, Title, ItemType and GroupCode form the natural key used
// when the identifier cannot be matched.
type ExternalEvent struct {
	ID                 ExternalID  `json:"id,omitempty"`
	ItemType           string      `json:"item_type" validate:"required,max=100"`
	Title              string      `json:"title" validate:"required,max=500"`
	StartDateTime      Timestamp   `json:"start_date_time"`
	EndDateTime        Timestamp   `json:"end_date_time"`
	GroupCode          string      `json:"group_code" validate:"max=100"`
	GroupName          string      `json:"group_name,omitempty"`
	AreaCode           string      `json:"area_code,omitempty"`
	URL                string      `json:"url,omitempty" validate:"max=2048"`
	Status             string      `json:"status,omitempty"`
	CancellationReason string      `json:"cancellation_reason,omitempty"`
	Description        string      `json:"description,omitempty"`
	Media              []MediaItem `json:"media,omitempty"`
	DateCreated        Timestamp   `json:"date_created"`
	DateUpdated        Timestamp   `json:"date_updated"`
}

// NaturalKey returns the fallback identity tuple of the event.
func (e *ExternalEvent) NaturalKey() NaturalKey {
	return NaturalKey{
		Start:     e.StartDateTime.Time,
		Title:     e.Title,
		ItemType:  e.ItemType,
		GroupCode: e.GroupCode,
	}
}

// DedupKey is the key used to collapse repeated events within one fetched window:
// the external identifier when present, otherwise the natural key.
func (e *ExternalEvent) DedupKey() string {
	if !e.ID.IsZero() {
		return "id:" + e.ID.String()
	}
	return "nk:" + e.NaturalKey().String()
}

// Slugs returns the slugs derivable from the event: the URL tail and the kebab-cased title.
// Empty and repeated values are omitted.
func (e *ExternalEvent) Slugs() []string {
	slugs := make([]string, 0, 2)
	if tail := URLTail(e.URL); tail != "" {
		slugs = append(slugs, tail)
	}
	if kebab := Kebab(e.Title); kebab != "" && (len(slugs) == 0 || slugs[0] != kebab) {
		slugs = append(slugs, kebab)
	}
	return slugs
}

// MatchesSlug reports whether slug equals the event's URL tail or kebab-cased title.
func (e *ExternalEvent) MatchesSlug(slug string) bool {
	slug = strings.ToLower(strings.TrimSpace(slug))
	if slug == "" {
		return false
	}
	for _, s := range e.Slugs() {
		if s == slug {
			return true
		}
	}
	return false
}

// NaturalKey is the fallback identity (start date/time, title, item type, group code).
//
// Two distinct real events sharing all four values are indistinguishable and will be
// merged into one cached record. No further disambiguation is attempted.
type NaturalKey struct {
	Start     time.Time `json:"start"`
	Title     string    `json:"title"`
	ItemType  string    `json:"item_type"`
	GroupCode string    `json:"group_code"`
}

// naturalKeySep separates the tuple members in the encoded form.
const naturalKeySep = "\x1f"

// String returns a stable encoding of the key, suitable for index keys and map keys.
// The start time is normalized to UTC with second precision.
func (k NaturalKey) String() string {
	start := ""
	if !k.Start.IsZero() {
		start = k.Start.UTC().Truncate(time.Second).Format(time.RFC3339)
	}
	return strings.Join([]string{start, k.Title, k.ItemType, k.GroupCode}, naturalKeySep)
}

// IsZero reports whether the key carries no identifying information at all.
func (k NaturalKey) IsZero() bool {
	return k.Start.IsZero() && k.Title == "" && k.ItemType == "" && k.GroupCode == ""
}
