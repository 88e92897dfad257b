// EventSync - External Event Cache Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/eventsync

/*
Package websocket streams sync progress to connected admin clients.

The Hub owns the client set and fans out every broadcast message to each
client's buffered send channel. Clients that cannot keep up are dropped
rather than blocking the hub.

# Message Types

	sync_progress  {type, percent, message, correlation_id}
	sync_complete  {type, data: SyncResult}
	sync_error     {type, message}
	ping / pong    keepalive initiated by the client

# Lifecycle

RunWithContext blocks until its context is cancelled, then closes every
client. It is run under the supervisor tree so a crashed hub restarts with
an empty client set.

# Ordering

Broadcasts iterate clients in ascending ID order. IDs come from a
process-wide atomic counter.
*/
package websocket
