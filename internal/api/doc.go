// EventSync - External Event Cache Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/eventsync

/*
Package api exposes the EventSync admin and read HTTP surface on a chi router.

# Endpoints

	POST /api/v1/sync            start a sync in the background (202) or 409 when busy
	GET  /api/v1/sync/status     running flag and last result
	POST /api/v1/reconcile       run the duplicate reconciler now
	GET  /api/v1/events/{ref}    slug → on-demand resolver, otherwise external id lookup
	GET  /api/v1/events          lookup by ?external_id= or by natural key
	GET  /api/v1/ws              websocket progress stream
	GET  /api/v1/health/live     liveness
	GET  /api/v1/health/ready    readiness (store reachable)
	GET  /metrics                Prometheus

Every JSON response uses the models.APIResponse envelope.

# Middleware

Request IDs and correlation IDs are attached to the request context for
logging. CORS is handled by go-chi/cors, rate limiting by go-chi/httprate.
The sync trigger has its own, stricter limit.
*/
package api
