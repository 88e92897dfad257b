// EventSync - External Event Cache Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/eventsync

package services

import (
	"context"
	"errors"

	"github.com/tomtom215/eventsync/internal/logging"
)

// ContextHub is satisfied by *websocket.Hub.
type ContextHub interface {
	RunWithContext(ctx context.Context) error
}

// RunnerService supervises a function that blocks until its context ends.
type RunnerService struct {
	name string
	run  func(ctx context.Context) error
}

// NewRunnerService wraps run under name.
func NewRunnerService(name string, run func(ctx context.Context) error) *RunnerService {
	return &RunnerService{name: name, run: run}
}

// NewWebSocketHubService supervises the progress hub.
func NewWebSocketHubService(hub ContextHub) *RunnerService {
	return NewRunnerService("websocket-hub", hub.RunWithContext)
}

// Serve implements suture.Service. An error before ctx ends is logged and
// returned so the supervisor restarts the runner.
func (r *RunnerService) Serve(ctx context.Context) error {
	err := r.run(ctx)
	if err != nil && ctx.Err() == nil && !errors.Is(err, context.Canceled) {
		logging.Warn().Err(err).Str("service", r.name).Msg("Service exited unexpectedly")
	}
	return err
}

func (r *RunnerService) String() string { return r.name }
