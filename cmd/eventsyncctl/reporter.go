// EventSync - External Event Cache Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/eventsync

package main

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/tomtom215/eventsync/internal/models"
)

// consoleReporter prints sync progress lines to a terminal.
type consoleReporter struct {
	mu    sync.Mutex
	out   io.Writer
	quiet bool
	last  int
}

func (r *consoleReporter) Progress(_ context.Context, percent int, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.quiet || (percent == r.last && percent != 0) {
		return
	}
	r.last = percent
	fmt.Fprintf(r.out, "[%3d%%] %s\n", percent, message)
}

func (r *consoleReporter) Complete(_ context.Context, result *models.SyncResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.quiet {
		return
	}
	fmt.Fprintf(r.out, "[100%%] %s\n", result.Summary())
}

func (r *consoleReporter) Error(_ context.Context, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.out, "[error] %s\n", message)
}
