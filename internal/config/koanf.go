// EventSync - External Event Cache Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/eventsync

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths searched for a config file, in order.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/eventsync/config.yaml",
	"/etc/eventsync/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

func defaultConfig() *Config {
	return &Config{
		Source: SourceConfig{
			PageSize:       100,
			Timeout:        30 * time.Second,
			MaxRetries:     5,
			RetryBaseDelay: time.Second,
		},
		Population: map[string]PopulationMode{
			DefaultScope: PopulationExternal,
		},
		Sync: SyncConfig{
			Scope:               DefaultScope,
			Interval:            6 * time.Hour,
			RequestDelay:        250 * time.Millisecond,
			IncrementalLookback: 7 * 24 * time.Hour,
			FullLookbackYears:   3,
			LookaheadYears:      2,
			UpsertConcurrency:   8,
			FetchAttempts:       3,
			FetchRetryDelay:     2 * time.Second,
			RunOnStartup:        false,
		},
		Store: StoreConfig{
			Backend: "badger",
			Path:    "/data/eventsync",
		},
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             8080,
			Timeout:          30 * time.Second,
			CORSOrigins:      []string{},
			TriggerRateLimit: 6,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 28,
		},
	}
}

// Default returns the built-in defaults without consulting files or the environment.
func Default() *Config {
	return defaultConfig()
}

// Loader re-reads configuration from every layer on each Load call.
// A zero Loader searches DefaultConfigPaths.
type Loader struct {
	// Path, when set, is used instead of searching for a config file.
	Path string
}

// Load builds a fresh Config from defaults, the config file and the environment.
func (l Loader) Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	configPath := l.Path
	if configPath == "" {
		configPath = findConfigFile()
	}
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// LoadWithKoanf loads configuration once using the default search paths.
func LoadWithKoanf() (*Config, error) {
	return Loader{}.Load()
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths are parsed from comma-separated strings when set through env.
var sliceConfigPaths = []string{
	"source.groups",
	"source.types",
	"server.cors_origins",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// envMappings maps lowercased environment variable names to koanf paths.
var envMappings = map[string]string{
	"events_api_url":      "source.base_url",
	"events_api_key":      "source.api_key",
	"events_groups":       "source.groups",
	"events_types":        "source.types",
	"events_page_size":    "source.page_size",
	"events_timeout":      "source.timeout",
	"events_max_retries":  "source.max_retries",
	"events_retry_delay":  "source.retry_base_delay",
	"events_population":   "population.events",
	"sync_scope":          "sync.scope",
	"sync_interval":       "sync.interval",
	"sync_request_delay":  "sync.request_delay",
	"sync_lookback":       "sync.incremental_lookback",
	"sync_full_years":     "sync.full_lookback_years",
	"sync_ahead_years":    "sync.lookahead_years",
	"sync_concurrency":    "sync.upsert_concurrency",
	"sync_on_startup":     "sync.run_on_startup",
	"sync_fetch_attempts": "sync.fetch_attempts",
	"sync_fetch_delay":    "sync.fetch_retry_delay",
	"store_backend":       "store.backend",
	"store_path":          "store.path",
	"store_in_memory":     "store.in_memory",
	"http_host":           "server.host",
	"http_port":           "server.port",
	"http_timeout":        "server.timeout",
	"cors_origins":        "server.cors_origins",
	"sync_trigger_limit":  "server.trigger_rate_limit",
	"log_level":           "logging.level",
	"log_format":          "logging.format",
	"log_caller":          "logging.caller",
	"log_file":            "logging.file",
	"log_file_max_size":   "logging.max_size_mb",
	"log_file_max_backup": "logging.max_backups",
	"log_file_max_age":    "logging.max_age_days",
}

// populationEnvPrefix maps POPULATION_<SCOPE> to population.<scope>.
const populationEnvPrefix = "population_"

// envTransformFunc maps environment variable names to koanf paths.
// Unmapped variables return "" and are ignored.
//
// Examples:
//   - EVENTS_API_URL -> source.base_url
//   - SYNC_INTERVAL -> sync.interval
//   - POPULATION_VENUES -> population.venues
func envTransformFunc(key string) string {
	key = strings.ToLower(key)
	if mapped, ok := envMappings[key]; ok {
		return mapped
	}
	if scope, ok := strings.CutPrefix(key, populationEnvPrefix); ok && scope != "" {
		return "population." + scope
	}
	return ""
}
