// EventSync - External Event Cache Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/eventsync

/*
Package sync keeps the local event store consistent with the external source.

Components:
  - Orchestrator: runs one sync. It reconciles duplicates, partitions the sync
    window into chunks and processes them sequentially in chronological order.
  - ChunkFetcher: pages through one window and de-duplicates the events it saw.
  - Upserter: resolves the identity of an incoming event (external id first,
    natural key second) and inserts or updates the cached record.
  - Reconciler: removes all but one record per external id.

Failure Handling:

A failed chunk never aborts a run. Its error is appended to SyncResult.Errors and
the next chunk is processed. Store conflicts are counted separately in
SyncResult.Conflicts. Errors before the chunk loop, and cancellation, abort the
run as a *FatalError.

Only one run may be active per Orchestrator. A second call to Sync while a run is
in progress returns ErrSyncInProgress immediately. Orchestrator.Reconcile takes the
same lock, so a standalone duplicate sweep and a sync never overlap.

The client is chosen per run: when the source passed to NewOrchestrator is a
source.Reloader, it is handed the source settings of the configuration given to Sync.

Example:

	orch := sync.NewOrchestrator(store, client, bus)
	result, err := orch.Sync(ctx, cfg, sync.Options{FullSync: true})
	if err != nil {
	    return err
	}
	fmt.Println(result.Summary())
*/
package sync
