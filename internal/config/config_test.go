/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"strings"
	"testing"
)

func TestLoadReadsCriticalEnvKeys(t *testing.T) {
	t.Setenv("SMARTLISTS_DB_BACKEND", "sqlite")
	t.Setenv("SMARTLISTS_DB_DSN", "file:smartlists.db")
	t.Setenv("SMARTLISTS_REFRESH_CRON", "*/30 * * * *")
	t.Setenv("SMARTLISTS_PLAYLIST_SUFFIX", "(auto)")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.DBBackend != DatabaseSQLite || cfg.DBDSN != "file:smartlists.db" {
		t.Fatalf("unexpected db config: %s %s", cfg.DBBackend, cfg.DBDSN)
	}
	if cfg.RefreshCron != "*/30 * * * *" || cfg.PlaylistSuffix != "(auto)" {
		t.Fatalf("unexpected refresh config: %+v", cfg)
	}
	if cfg.HTTPAddr() != "0.0.0.0:8080" {
		t.Fatalf("HTTPAddr = %s", cfg.HTTPAddr())
	}
}

func TestLoadAcceptsShortPrefixWithWarning(t *testing.T) {
	t.Setenv("SL_DB_DSN", "host=localhost user=test dbname=test sslmode=disable")
	t.Setenv("SL_HISTORY_SIZE", "25")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.DBDSN == "" || cfg.HistorySize != 25 {
		t.Fatalf("short prefix not honoured: %+v", cfg)
	}
	var found bool
	for _, w := range cfg.LegacyEnvWarnings {
		if strings.Contains(w, "SL_HISTORY_SIZE") && strings.Contains(w, "SMARTLISTS_HISTORY_SIZE") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected legacy env warning, got %v", cfg.LegacyEnvWarnings)
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"missing dsn", map[string]string{}},
		{"unknown backend", map[string]string{"SMARTLISTS_DB_DSN": "x", "SMARTLISTS_DB_BACKEND": "oracle"}},
		{"bad cron", map[string]string{"SMARTLISTS_DB_DSN": "x", "SMARTLISTS_REFRESH_CRON": "every day"}},
		{"bad workers", map[string]string{"SMARTLISTS_DB_DSN": "x", "SMARTLISTS_PREFETCH_WORKERS": "0"}},
		{"bad sample rate", map[string]string{"SMARTLISTS_DB_DSN": "x", "SMARTLISTS_TRACING_SAMPLE_RATE": "1.5"}},
		{"unknown relay", map[string]string{"SMARTLISTS_DB_DSN": "x", "SMARTLISTS_EVENT_RELAY": "kafka"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Fatal("expected load to fail")
			}
		})
	}
}

func TestLoadSkipsCronCheckWhenSchedulerDisabled(t *testing.T) {
	t.Setenv("SMARTLISTS_DB_DSN", "x")
	t.Setenv("SMARTLISTS_SCHEDULER_ENABLED", "false")
	t.Setenv("SMARTLISTS_REFRESH_CRON", "never")

	if _, err := Load(); err != nil {
		t.Fatalf("disabled scheduler should not validate cron: %v", err)
	}
}

func TestLoadEventRelay(t *testing.T) {
	tests := []struct {
		value string
		want  string
	}{
		{"", ""},
		{"redis", EventRelayRedis},
		{"NATS", EventRelayNATS},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv("SMARTLISTS_DB_DSN", "x")
			t.Setenv("SMARTLISTS_EVENT_RELAY", tt.value)
			t.Setenv("SMARTLISTS_NATS_URL", "nats://broker:4222")

			cfg, err := Load()
			if err != nil {
				t.Fatalf("load config: %v", err)
			}
			if cfg.EventRelay != tt.want || cfg.NATSURL != "nats://broker:4222" {
				t.Fatalf("relay = %q url = %q", cfg.EventRelay, cfg.NATSURL)
			}
			if cfg.LogBufferSize != 5000 {
				t.Fatalf("LogBufferSize = %d", cfg.LogBufferSize)
			}
		})
	}
}
