// EventSync - External Event Cache Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/eventsync

package services

import (
	"context"
	"time"

	"github.com/tomtom215/eventsync/internal/logging"
)

// GarbageCollector is satisfied by *badgerstore.Store.
type GarbageCollector interface {
	RunGC(discardRatio float64) error
}

// StoreGCService periodically reclaims Badger value-log space. Updates and
// reconciler deletes leave stale values behind that only GC frees.
type StoreGCService struct {
	store        GarbageCollector
	interval     time.Duration
	discardRatio float64
	name         string
}

// NewStoreGCService creates the service. interval defaults to 10 minutes.
func NewStoreGCService(store GarbageCollector, interval time.Duration) *StoreGCService {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &StoreGCService{
		store:        store,
		interval:     interval,
		discardRatio: 0.5,
		name:         "store-gc",
	}
}

// Serve implements suture.Service. GC errors are logged, not returned:
// a failed pass is retried on the next tick.
func (s *StoreGCService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			start := time.Now()
			if err := s.store.RunGC(s.discardRatio); err != nil {
				logging.Warn().Err(err).Str("service", s.name).Msg("Store GC pass failed")
				continue
			}
			logging.Debug().Dur("duration", time.Since(start)).Msg("Store GC pass finished")
		}
	}
}

// String implements fmt.Stringer for supervisor logs.
func (s *StoreGCService) String() string {
	return s.name
}
