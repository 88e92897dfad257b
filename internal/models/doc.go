// EventSync - External Event Cache Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/eventsync

/*
Package models defines the data shapes shared across EventSync.

# External Events

ExternalEvent is the event as reported by the external API. Its identifier
(ExternalID) decodes from either a JSON string or a number, and timestamps
(Timestamp) accept the several date layouts the source emits. NaturalKey
(start time, title, item type, group code) identifies an event when no
external id is known.

# Cached Records

CachedEventRecord is the locally stored copy: a projection of the external
event plus Provenance (source, external id, last sync time, synced version),
a typed Extension for local-only fields, and a status history. Slugs are
derived from the event URL tail and the kebab-cased title.

# Results

SyncResult and ReconcileReport are returned by the sync engine and rendered by
the API, the progress channel and the CLI. APIResponse is the HTTP envelope.
*/
package models
