// EventSync - External Event Cache Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/eventsync

/*
Package main is the entry point for the EventSync server.

EventSync keeps a local cache of events in step with an external event API.
It runs scheduled and on-demand synchronizations, removes legacy duplicates,
resolves slugs on demand, and streams progress to websocket clients.

# Application Architecture

	RootSupervisor ("eventsync")
	├── DataSupervisor ("data-layer")
	│   └── Store GC (badger backend only)
	├── MessagingSupervisor ("messaging-layer")
	│   ├── WebSocket Hub
	│   ├── Progress Forwarder (sync.progress → websocket)
	│   └── Sync Scheduler
	└── APISupervisor ("api-layer")
	    └── HTTP Server

# Configuration

Configuration is loaded with Koanf v2 from built-in defaults, an optional
config.yaml (or CONFIG_PATH) and environment variables, in increasing priority.
The scheduler reloads it on every tick, so population mode changes take effect
without a restart.

# Signal Handling

SIGINT and SIGTERM cancel the root context. The supervisor stops every
service, then the progress bus and the store are closed.
*/
package main
