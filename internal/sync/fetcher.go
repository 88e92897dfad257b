// EventSync - External Event Cache Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/eventsync

package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/eventsync/internal/logging"
	"github.com/tomtom215/eventsync/internal/models"
	"github.com/tomtom215/eventsync/internal/source"
)

// ChunkResult is the de-duplicated content of one window.
type ChunkResult struct {
	Events  []models.ExternalEvent
	Fetched int
	Unique  int
}

// ChunkFetcher pages through one window of the external source.
type ChunkFetcher struct {
	src        source.Source
	pacer      *Pacer
	pageSize   int
	groups     []string
	types      []string
	attempts   int
	retryDelay time.Duration
}

// FetcherOptions configures a ChunkFetcher.
type FetcherOptions struct {
	PageSize   int
	Groups     []string
	Types      []string
	Attempts   int
	RetryDelay time.Duration
}

// NewChunkFetcher creates a fetcher that waits on pacer before every page.
func NewChunkFetcher(src source.Source, pacer *Pacer, opts FetcherOptions) *ChunkFetcher {
	if opts.PageSize <= 0 {
		opts.PageSize = source.DefaultPageSize
	}
	if pacer == nil {
		pacer = NewPacer(0)
	}
	return &ChunkFetcher{
		src:        src,
		pacer:      pacer,
		pageSize:   opts.PageSize,
		groups:     opts.Groups,
		types:      opts.Types,
		attempts:   opts.Attempts,
		retryDelay: opts.RetryDelay,
	}
}

// Fetch requests pages at increasing offsets until a short page is returned or the
// offset reaches the reported total, then de-duplicates the events. For events
// sharing a dedup key the last occurrence wins. A response without a total
// (zero) is paged until a short page arrives.
func (f *ChunkFetcher) Fetch(ctx context.Context, w Window) (*ChunkResult, error) {
	var all []models.ExternalEvent
	offset := 0
	warnedNoTotal := false

	for {
		if err := f.pacer.Wait(ctx); err != nil {
			return nil, err
		}

		params := source.QueryParams{
			Groups:  f.groups,
			Types:   f.types,
			Limit:   f.pageSize,
			Offset:  offset,
			Sort:    source.DefaultSort,
			Order:   source.DefaultOrder,
			Date:    w.From,
			DateEnd: w.LastDay(),
		}

		var page *source.QueryResponse
		err := retryWithBackoff(ctx, f.attempts, f.retryDelay, func() error {
			var err error
			page, err = f.src.Query(ctx, params)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("fetch offset %d: %w", offset, err)
		}

		all = append(all, page.Data...)
		logging.Debug().
			Str("window", w.String()).
			Int("offset", offset).
			Int("page", len(page.Data)).
			Int("total", page.Summary.Total).
			Msg("Fetched page")

		offset += f.pageSize
		if len(page.Data) < f.pageSize {
			break
		}
		if page.Summary.Total > 0 {
			if offset >= page.Summary.Total {
				break
			}
		} else if !warnedNoTotal {
			warnedNoTotal = true
			logging.Warn().
				Str("window", w.String()).
				Int("offset", offset).
				Msg("Full page without summary total, paging until a short page")
		}
	}

	events := dedupe(all)
	return &ChunkResult{Events: events, Fetched: len(all), Unique: len(events)}, nil
}

// dedupe collapses events with the same DedupKey. The result keeps the order of
// first appearance and the content of the last.
func dedupe(events []models.ExternalEvent) []models.ExternalEvent {
	index := make(map[string]int, len(events))
	out := make([]models.ExternalEvent, 0, len(events))
	for i := range events {
		key := events[i].DedupKey()
		if pos, ok := index[key]; ok {
			out[pos] = events[i]
			continue
		}
		index[key] = len(out)
		out = append(out, events[i])
	}
	return out
}
