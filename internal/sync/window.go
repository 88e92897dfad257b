// EventSync - External Event Cache Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/eventsync

package sync

import (
	"time"

	"github.com/tomtom215/eventsync/internal/config"
)

const windowDateLayout = "2006-01-02"

// Window is a half-open time range [From, To) with day granularity.
type Window struct {
	From time.Time
	To   time.Time
}

func (w Window) String() string {
	return w.From.Format(windowDateLayout) + ".." + w.To.Format(windowDateLayout)
}

// LastDay returns the last day included in the window, for inclusive date filters.
func (w Window) LastDay() time.Time {
	return w.To.AddDate(0, 0, -1)
}

// Empty reports whether the window covers no days.
func (w Window) Empty() bool {
	return !w.To.After(w.From)
}

// syncWindow computes the overall window of a run.
//
// Full syncs cover now-FullLookbackYears..now+LookaheadYears, incremental syncs
// cover now-IncrementalLookback..now+LookaheadYears. DateFrom and DateTo override
// either bound.
func syncWindow(now time.Time, cfg *config.SyncConfig, opts Options) Window {
	var from time.Time
	if opts.FullSync {
		from = now.AddDate(-cfg.FullLookbackYears, 0, 0)
	} else {
		from = now.Add(-cfg.IncrementalLookback)
	}
	to := now.AddDate(cfg.LookaheadYears, 0, 0)

	if opts.DateFrom != nil {
		from = *opts.DateFrom
	}
	if opts.DateTo != nil {
		to = *opts.DateTo
	}
	return Window{From: truncateDay(from), To: truncateDay(to)}
}

// partition splits w into consecutive one-month windows. The last one ends at w.To.
func partition(w Window) []Window {
	var chunks []Window
	for from := w.From; from.Before(w.To); {
		to := from.AddDate(0, 1, 0)
		if to.After(w.To) {
			to = w.To
		}
		chunks = append(chunks, Window{From: from, To: to})
		from = to
	}
	return chunks
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
