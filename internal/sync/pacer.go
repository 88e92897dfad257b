// EventSync - External Event Cache Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/eventsync

package sync

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Pacer spaces consecutive requests to the external source by at least delay.
// The first Wait returns immediately.
type Pacer struct {
	limiter *rate.Limiter
}

// NewPacer returns a pacer for delay. A zero delay never blocks.
func NewPacer(delay time.Duration) *Pacer {
	limit := rate.Inf
	if delay > 0 {
		limit = rate.Every(delay)
	}
	return &Pacer{limiter: rate.NewLimiter(limit, 1)}
}

// Wait blocks until the next request may be sent or ctx is done.
func (p *Pacer) Wait(ctx context.Context) error {
	return p.limiter.Wait(ctx)
}
