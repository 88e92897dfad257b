// EventSync - External Event Cache Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/eventsync

package logging

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	if cfg.Level != "info" {
		t.Errorf("expected default level 'info', got %q", cfg.Level)
	}
	if cfg.Format != "json" {
		t.Errorf("expected default format 'json', got %q", cfg.Format)
	}
	if !cfg.Timestamp {
		t.Error("expected default timestamp to be true")
	}
	if cfg.File != "" {
		t.Errorf("expected no log file by default, got %q", cfg.File)
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  zerolog.Level
	}{
		{"trace", zerolog.TraceLevel},
		{"DEBUG", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"disabled", zerolog.Disabled},
		{"bogus", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.input); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

// Init mutates global state, so these tests do not run in parallel.
func TestInitWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "debug", Format: "json", Timestamp: true, Output: &buf})
	defer Init(DefaultConfig())

	Info().Str("component", "sync").Msg("chunk fetched")

	out := buf.String()
	if !strings.Contains(out, `"message":"chunk fetched"`) {
		t.Errorf("missing message in %s", out)
	}
	if !strings.Contains(out, `"component":"sync"`) {
		t.Errorf("missing field in %s", out)
	}
}

func TestInitWithFileRotation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "eventsync.log")
	var buf bytes.Buffer
	Init(Config{Level: "info", Format: "json", Output: &buf, File: path, MaxSizeMB: 1})

	Warn().Msg("written to both sinks")
	if err := Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	Init(DefaultConfig())

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "written to both sinks") {
		t.Errorf("log file missing line: %s", data)
	}
	if !strings.Contains(buf.String(), "written to both sinks") {
		t.Errorf("primary output missing line: %s", buf.String())
	}
}

func TestCtxAddsCorrelationID(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(NewTestLogger(&buf))
	defer Init(DefaultConfig())

	ctx := ContextWithCorrelationID(context.Background(), "abcd1234")
	ctx = ContextWithRequestID(ctx, "req-1")
	Ctx(ctx).Info().Msg("hello")

	out := buf.String()
	if !strings.Contains(out, `"correlation_id":"abcd1234"`) {
		t.Errorf("missing correlation id: %s", out)
	}
	if !strings.Contains(out, `"request_id":"req-1"`) {
		t.Errorf("missing request id: %s", out)
	}
}

func TestContextWithNewCorrelationIDKeepsExisting(t *testing.T) {
	t.Parallel()

	ctx := ContextWithCorrelationID(context.Background(), "keepme00")
	if got := CorrelationIDFromContext(ContextWithNewCorrelationID(ctx)); got != "keepme00" {
		t.Errorf("correlation id = %q, want keepme00", got)
	}

	fresh := CorrelationIDFromContext(ContextWithNewCorrelationID(context.Background()))
	if len(fresh) != 8 {
		t.Errorf("generated correlation id %q should have 8 characters", fresh)
	}
}

func TestSlogLoggerBridgesToZerolog(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(NewTestLogger(&buf))
	defer Init(DefaultConfig())

	NewSlogLogger().WithGroup("supervisor").Warn("service restarted", "service", "scheduler")

	out := buf.String()
	if !strings.Contains(out, `"supervisor.service":"scheduler"`) {
		t.Errorf("missing grouped attribute: %s", out)
	}
	if !strings.Contains(out, `"level":"warn"`) {
		t.Errorf("missing level: %s", out)
	}
}
