// EventSync - External Event Cache Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/eventsync

// Package metrics declares the Prometheus collectors exported on /metrics and small
// helpers that keep label values consistent across callers.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Sync run metrics
	SyncDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "eventsync_sync_duration_seconds",
			Help:    "Duration of sync runs in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800}, // full syncs walk 60 chunks
		},
		[]string{"mode"}, // "full", "incremental"
	)

	SyncRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventsync_sync_runs_total",
			Help: "Total number of sync runs by outcome",
		},
		[]string{"mode", "outcome"}, // "success", "partial", "failed", "skipped", "rejected"
	)

	SyncRecordsProcessed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "eventsync_sync_records_processed_total",
			Help: "Total number of external events processed by sync runs",
		},
	)

	SyncUpserts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventsync_upserts_total",
			Help: "Total number of cache upserts by result",
		},
		[]string{"result"}, // "added", "updated", "conflict", "error"
	)

	SyncLastSuccess = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "eventsync_sync_last_success_timestamp",
			Help: "Unix timestamp of the last sync run that finished without chunk errors",
		},
	)

	SyncInProgress = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "eventsync_sync_in_progress",
			Help: "1 while a sync run holds the run lock",
		},
	)

	// Chunk metrics
	ChunkDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "eventsync_chunk_duration_seconds",
			Help:    "Duration of one chunk (fetch and upsert) in seconds",
			Buckets: []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	ChunkErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "eventsync_chunk_errors_total",
			Help: "Total number of chunks that failed and were skipped",
		},
	)

	ChunkEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventsync_chunk_events_total",
			Help: "External events seen by the chunk fetcher",
		},
		[]string{"kind"}, // "fetched", "unique"
	)

	// External source metrics
	ExternalRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "eventsync_external_request_duration_seconds",
			Help:    "Duration of external source requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"status"}, // "ok", "error"
	)

	ExternalRateLimited = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "eventsync_external_rate_limited_total",
			Help: "Total number of HTTP 429 responses from the external source",
		},
	)

	// Circuit breaker metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "eventsync_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventsync_circuit_breaker_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	// Reconciliation metrics
	ReconcileDuplicatesRemoved = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "eventsync_reconcile_duplicates_removed_total",
			Help: "Total number of duplicate records deleted by reconciliation",
		},
	)

	ReconcileGroups = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "eventsync_reconcile_groups_total",
			Help: "Total number of external ids that had duplicates",
		},
	)

	// Resolver metrics
	ResolverLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventsync_resolver_lookups_total",
			Help: "On-demand slug resolutions by outcome",
		},
		[]string{"outcome"}, // "cache_hit", "cached", "uncached", "ambiguous", "not_found", "error"
	)

	// Store metrics
	StoreOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "eventsync_store_operation_duration_seconds",
			Help:    "Duration of store operations in seconds",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"backend", "operation"},
	)

	StoreConflicts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventsync_store_conflicts_total",
			Help: "Writes rejected for external id uniqueness or version mismatch",
		},
		[]string{"backend"},
	)

	// Scheduler metrics
	SchedulerTicks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventsync_scheduler_ticks_total",
			Help: "Scheduler ticks by outcome",
		},
		[]string{"outcome"}, // "ran", "skipped", "busy", "failed", "panic", "config_error"
	)

	// Progress and websocket metrics
	ProgressMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventsync_progress_messages_total",
			Help: "Progress messages published by type",
		},
		[]string{"type"},
	)

	WSConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "eventsync_websocket_connections_active",
			Help: "Current number of connected websocket clients",
		},
	)

	// API metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventsync_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "route", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "eventsync_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"method", "route"},
	)
)

// Sync run outcomes.
const (
	OutcomeSuccess  = "success"
	OutcomePartial  = "partial"
	OutcomeFailed   = "failed"
	OutcomeSkipped  = "skipped"
	OutcomeRejected = "rejected"
)

// RecordSyncOperation records the end of a sync run.
// A run counts as successful for SyncLastSuccess only when outcome is OutcomeSuccess.
func RecordSyncOperation(mode, outcome string, duration time.Duration, recordsProcessed int) {
	SyncRuns.WithLabelValues(mode, outcome).Inc()
	if outcome == OutcomeSkipped || outcome == OutcomeRejected {
		return
	}
	SyncDuration.WithLabelValues(mode).Observe(duration.Seconds())
	SyncRecordsProcessed.Add(float64(recordsProcessed))
	if outcome == OutcomeSuccess {
		SyncLastSuccess.Set(float64(time.Now().Unix()))
	}
}

// RecordChunk records one processed chunk.
func RecordChunk(duration time.Duration, fetched, unique int, err error) {
	ChunkDuration.Observe(duration.Seconds())
	ChunkEvents.WithLabelValues("fetched").Add(float64(fetched))
	ChunkEvents.WithLabelValues("unique").Add(float64(unique))
	if err != nil {
		ChunkErrors.Inc()
	}
}

// RecordUpserts adds batch upsert counters.
func RecordUpserts(added, updated, conflicts, failed int) {
	SyncUpserts.WithLabelValues("added").Add(float64(added))
	SyncUpserts.WithLabelValues("updated").Add(float64(updated))
	SyncUpserts.WithLabelValues("conflict").Add(float64(conflicts))
	SyncUpserts.WithLabelValues("error").Add(float64(failed))
}

// RecordExternalRequest records one request to the external source.
func RecordExternalRequest(duration time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	ExternalRequestDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordStoreOperation records the latency of one store call and counts conflicts.
func RecordStoreOperation(backend, operation string, start time.Time, conflict bool) {
	StoreOperationDuration.WithLabelValues(backend, operation).Observe(time.Since(start).Seconds())
	if conflict {
		StoreConflicts.WithLabelValues(backend).Inc()
	}
}

// RecordReconcile records one reconciliation sweep.
func RecordReconcile(removed, groups int) {
	ReconcileDuplicatesRemoved.Add(float64(removed))
	ReconcileGroups.Add(float64(groups))
}

// RecordAPIRequest records an API request.
func RecordAPIRequest(method, route, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, route, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}
