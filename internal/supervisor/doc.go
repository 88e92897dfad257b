// EventSync - External Event Cache Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/eventsync

/*
Package supervisor runs the EventSync services under a suture v4 tree.

# Tree Layout

	eventsync (root)
	├── data-layer       store maintenance (Badger value-log GC)
	├── messaging-layer  websocket hub, progress forwarder, sync scheduler
	└── api-layer        HTTP server

Each layer is its own supervisor, so a crash-looping scheduler backs off
without taking the HTTP server down. Read endpoints keep serving from the
cache while the messaging layer restarts.

# Logging

Supervisor events (service failures, restarts, backoff) are routed to
zerolog through sutureslog and logging.NewSlogLogger.

# Shutdown

Cancelling the context passed to Serve stops every layer. Services that do
not return within ShutdownTimeout are listed by UnstoppedServiceReport.
*/
package supervisor
