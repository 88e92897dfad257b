// EventSync - External Event Cache Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/eventsync

// Package config loads EventSync configuration from built-in defaults, an optional
// YAML file and environment variables, in that order of precedence (env wins).
//
// Configuration is re-read from all layers on every Loader.Load call, so the
// scheduler always sees the current population mode and credentials.
package config

import (
	"net"
	"strconv"
	"strings"
	"time"
)

// PopulationMode controls how a scope's cached data is populated.
type PopulationMode string

const (
	// PopulationLocal disables synchronization for the scope entirely.
	PopulationLocal PopulationMode = "local"
	// PopulationExternal populates the scope from the external source.
	PopulationExternal PopulationMode = "external"
	// PopulationHybrid syncs from the external source while also keeping local records.
	PopulationHybrid PopulationMode = "hybrid"
)

// DefaultScope is the scope synchronized by the scheduler when none is configured.
const DefaultScope = "events"

// Config is the complete EventSync configuration.
type Config struct {
	Source     SourceConfig              `koanf:"source"`
	Population map[string]PopulationMode `koanf:"population"`
	Sync       SyncConfig                `koanf:"sync"`
	Store      StoreConfig               `koanf:"store"`
	Server     ServerConfig              `koanf:"server"`
	Logging    LoggingConfig             `koanf:"logging"`
}

// SourceConfig holds the external source endpoint and query filters.
//
// Environment Variables:
//   - EVENTS_API_URL, EVENTS_API_KEY
//   - EVENTS_GROUPS, EVENTS_TYPES (comma separated)
type SourceConfig struct {
	BaseURL        string        `koanf:"base_url" validate:"omitempty,url"`
	APIKey         string        `koanf:"api_key"`
	Groups         []string      `koanf:"groups"`
	Types          []string      `koanf:"types"`
	PageSize       int           `koanf:"page_size" validate:"min=1,max=1000"`
	Timeout        time.Duration `koanf:"timeout" validate:"gte=0"`
	MaxRetries     int           `koanf:"max_retries" validate:"min=0,max=20"`
	RetryBaseDelay time.Duration `koanf:"retry_base_delay" validate:"gte=0"`
}

// SyncConfig holds sync windowing, pacing and scheduling settings.
type SyncConfig struct {
	// Scope is the population scope that gates scheduled syncs.
	Scope string `koanf:"scope" validate:"required"`

	// Interval is the scheduler period.
	Interval time.Duration `koanf:"interval" validate:"gte=0"`

	// RequestDelay is the pause between consecutive pages and chunks.
	RequestDelay time.Duration `koanf:"request_delay" validate:"gte=0"`

	// IncrementalLookback is how far back an incremental sync starts.
	IncrementalLookback time.Duration `koanf:"incremental_lookback" validate:"gte=0"`

	FullLookbackYears int `koanf:"full_lookback_years" validate:"min=0,max=50"`
	LookaheadYears    int `koanf:"lookahead_years" validate:"min=0,max=50"`

	// UpsertConcurrency bounds concurrent upserts within one chunk.
	UpsertConcurrency int `koanf:"upsert_concurrency" validate:"min=1,max=64"`

	// FetchAttempts is how many times one page request is tried before its chunk fails.
	FetchAttempts   int           `koanf:"fetch_attempts" validate:"min=1,max=10"`
	FetchRetryDelay time.Duration `koanf:"fetch_retry_delay" validate:"gte=0"`

	// RunOnStartup triggers one incremental sync when the scheduler starts.
	RunOnStartup bool `koanf:"run_on_startup"`
}

// StoreConfig selects and configures the local store backend.
type StoreConfig struct {
	Backend  string `koanf:"backend" validate:"oneof=badger duckdb"`
	Path     string `koanf:"path"`
	InMemory bool   `koanf:"in_memory"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host             string        `koanf:"host"`
	Port             int           `koanf:"port" validate:"min=1,max=65535"`
	Timeout          time.Duration `koanf:"timeout" validate:"gte=0"`
	CORSOrigins      []string      `koanf:"cors_origins"`
	TriggerRateLimit int           `koanf:"trigger_rate_limit" validate:"min=0"`
}

// LoggingConfig holds zerolog and log-file rotation settings.
//
// Environment Variables:
//   - LOG_LEVEL: trace, debug, info, warn, error (default: info)
//   - LOG_FORMAT: json, console (default: json)
//   - LOG_CALLER: true/false
//   - LOG_FILE: path of a rotated log file (default: none)
type LoggingConfig struct {
	Level      string `koanf:"level" validate:"oneof=trace debug info warn warning error fatal panic disabled"`
	Format     string `koanf:"format" validate:"oneof=json console"`
	Caller     bool   `koanf:"caller"`
	File       string `koanf:"file"`
	MaxSizeMB  int    `koanf:"max_size_mb" validate:"min=0"`
	MaxBackups int    `koanf:"max_backups" validate:"min=0"`
	MaxAgeDays int    `koanf:"max_age_days" validate:"min=0"`
}

// PopulationMode returns the population mode configured for scope.
// Unconfigured scopes default to PopulationExternal.
func (c *Config) PopulationMode(scope string) PopulationMode {
	if mode, ok := c.Population[scope]; ok && mode != "" {
		return PopulationMode(strings.ToLower(string(mode)))
	}
	return PopulationExternal
}

// SyncEnabled reports whether scope should be synchronized from the external source.
func (c *Config) SyncEnabled(scope string) bool {
	return c.PopulationMode(scope) != PopulationLocal
}

// Addr returns the HTTP listen address.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}
