// EventSync - External Event Cache Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/eventsync

/*
Package services adapts EventSync components to suture's Serve pattern.

	HTTPServerService    ListenAndServe / Shutdown  → Serve   (api layer)
	RunnerService        run(ctx) error             → Serve   (messaging layer, websocket hub)
	SchedulerService     Start / Stop               → Serve   (messaging layer)
	StoreGCService       periodic RunGC             → Serve   (data layer)

The progress forwarder implements suture.Service itself and needs no wrapper.

Each wrapper returns ctx.Err() on a requested shutdown and a wrapped error
on failure, so suture restarts only services that actually failed.
*/
package services
