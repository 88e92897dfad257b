// EventSync - External Event Cache Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/eventsync

package services

import (
	"context"
	"fmt"
)

// StartStopper is satisfied by *scheduler.Scheduler.
type StartStopper interface {
	Start(ctx context.Context) error
	Stop() error
}

// SchedulerService adapts the sync scheduler's Start/Stop lifecycle:
// Start, wait for cancellation, then Stop, which waits for an in-flight tick.
type SchedulerService struct {
	scheduler StartStopper
	name      string
}

// NewSchedulerService wraps s.
func NewSchedulerService(s StartStopper) *SchedulerService {
	return &SchedulerService{scheduler: s, name: "sync-scheduler"}
}

// Serve implements suture.Service. A failed Start is returned so suture
// restarts the service with backoff.
func (s *SchedulerService) Serve(ctx context.Context) error {
	if err := s.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("sync scheduler start failed: %w", err)
	}

	<-ctx.Done()

	if err := s.scheduler.Stop(); err != nil {
		return fmt.Errorf("sync scheduler stop failed: %w", err)
	}
	return ctx.Err()
}

// String implements fmt.Stringer for supervisor logs.
func (s *SchedulerService) String() string {
	return s.name
}
