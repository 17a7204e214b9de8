/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/robfig/cron/v3"
)

// Database backend selection.
type DatabaseBackend string

const (
	DatabasePostgres DatabaseBackend = "postgres"
	DatabaseMySQL    DatabaseBackend = "mysql"
	DatabaseSQLite   DatabaseBackend = "sqlite"
)

// Event relay transports.
const (
	EventRelayRedis = "redis"
	EventRelayNATS  = "nats"
)

// Config covers process level configuration read from environment variables.
type Config struct {
	Environment string
	HTTPBind    string
	HTTPPort    int
	MetricsBind string
	DBBackend   DatabaseBackend
	DBDSN       string

	// LegacyDir holds list definitions from the file-based store. Empty skips migration.
	LegacyDir string

	// Refresh configuration
	SchedulerEnabled bool
	RefreshCron      string
	PrefetchWorkers  int
	HistorySize      int

	// Artifact naming
	PlaylistPrefix   string
	PlaylistSuffix   string
	CollectionPrefix string
	CollectionSuffix string
	CoverArtEnabled  bool

	// Tracing configuration
	TracingEnabled    bool
	OTLPEndpoint      string
	TracingSampleRate float64

	// Multi-instance configuration
	LeaderElectionEnabled bool
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	InstanceID            string

	// EventRelay shares list and refresh events between instances: "", "redis" or "nats".
	EventRelay string
	NATSURL    string

	// LogBufferSize is the number of recent log lines kept for the logs endpoint.
	LogBufferSize int

	LegacyEnvWarnings []string
}

// Load reads environment variables, applies defaults, and validates the result.
func Load() (*Config, error) {
	cfg := &Config{
		Environment: getEnvAny([]string{"SMARTLISTS_ENV", "SL_ENV"}, "development"),
		HTTPBind:    getEnvAny([]string{"SMARTLISTS_HTTP_BIND", "SL_HTTP_BIND"}, "0.0.0.0"),
		HTTPPort:    getEnvIntAny([]string{"SMARTLISTS_HTTP_PORT", "SL_HTTP_PORT"}, 8080),
		MetricsBind: getEnvAny([]string{"SMARTLISTS_METRICS_BIND", "SL_METRICS_BIND"}, "127.0.0.1:9000"),
		DBBackend:   DatabaseBackend(getEnvAny([]string{"SMARTLISTS_DB_BACKEND", "SL_DB_BACKEND"}, string(DatabasePostgres))),
		DBDSN:       getEnvAny([]string{"SMARTLISTS_DB_DSN", "SL_DB_DSN"}, ""),
		LegacyDir:   getEnvAny([]string{"SMARTLISTS_LEGACY_DIR", "SL_LEGACY_DIR"}, ""),

		SchedulerEnabled: getEnvBoolAny([]string{"SMARTLISTS_SCHEDULER_ENABLED", "SL_SCHEDULER_ENABLED"}, true),
		RefreshCron:      getEnvAny([]string{"SMARTLISTS_REFRESH_CRON", "SL_REFRESH_CRON"}, "0 * * * *"),
		PrefetchWorkers:  getEnvIntAny([]string{"SMARTLISTS_PREFETCH_WORKERS", "SL_PREFETCH_WORKERS"}, 4),
		HistorySize:      getEnvIntAny([]string{"SMARTLISTS_HISTORY_SIZE", "SL_HISTORY_SIZE"}, 100),

		PlaylistPrefix:   getEnvAny([]string{"SMARTLISTS_PLAYLIST_PREFIX", "SL_PLAYLIST_PREFIX"}, ""),
		PlaylistSuffix:   getEnvAny([]string{"SMARTLISTS_PLAYLIST_SUFFIX", "SL_PLAYLIST_SUFFIX"}, "[Smart]"),
		CollectionPrefix: getEnvAny([]string{"SMARTLISTS_COLLECTION_PREFIX", "SL_COLLECTION_PREFIX"}, ""),
		CollectionSuffix: getEnvAny([]string{"SMARTLISTS_COLLECTION_SUFFIX", "SL_COLLECTION_SUFFIX"}, "[Smart]"),
		CoverArtEnabled:  getEnvBoolAny([]string{"SMARTLISTS_COVER_ART_ENABLED", "SL_COVER_ART_ENABLED"}, true),

		TracingEnabled:    getEnvBoolAny([]string{"SMARTLISTS_TRACING_ENABLED", "SL_TRACING_ENABLED"}, false),
		OTLPEndpoint:      getEnvAny([]string{"SMARTLISTS_OTLP_ENDPOINT", "SL_OTLP_ENDPOINT"}, "localhost:4317"),
		TracingSampleRate: getEnvFloatAny([]string{"SMARTLISTS_TRACING_SAMPLE_RATE", "SL_TRACING_SAMPLE_RATE"}, 1.0),

		LeaderElectionEnabled: getEnvBoolAny([]string{"SMARTLISTS_LEADER_ELECTION_ENABLED", "SL_LEADER_ELECTION_ENABLED"}, false),
		RedisAddr:             getEnvAny([]string{"SMARTLISTS_REDIS_ADDR", "SL_REDIS_ADDR"}, "localhost:6379"),
		RedisPassword:         getEnvAny([]string{"SMARTLISTS_REDIS_PASSWORD", "SL_REDIS_PASSWORD"}, ""),
		RedisDB:               getEnvIntAny([]string{"SMARTLISTS_REDIS_DB", "SL_REDIS_DB"}, 0),
		InstanceID:            getEnvAny([]string{"SMARTLISTS_INSTANCE_ID", "SL_INSTANCE_ID"}, ""),

		EventRelay: strings.ToLower(getEnvAny([]string{"SMARTLISTS_EVENT_RELAY", "SL_EVENT_RELAY"}, "")),
		NATSURL:    getEnvAny([]string{"SMARTLISTS_NATS_URL", "SL_NATS_URL"}, "nats://127.0.0.1:4222"),

		LogBufferSize: getEnvIntAny([]string{"SMARTLISTS_LOG_BUFFER_SIZE", "SL_LOG_BUFFER_SIZE"}, 5000),
	}

	if cfg.DBBackend != DatabasePostgres && cfg.DBBackend != DatabaseMySQL && cfg.DBBackend != DatabaseSQLite {
		return nil, fmt.Errorf("unsupported database backend %q", cfg.DBBackend)
	}

	if cfg.DBDSN == "" {
		return nil, fmt.Errorf("SMARTLISTS_DB_DSN or SL_DB_DSN must be provided")
	}

	if cfg.SchedulerEnabled {
		if _, err := cron.ParseStandard(cfg.RefreshCron); err != nil {
			return nil, fmt.Errorf("invalid SMARTLISTS_REFRESH_CRON %q: %w", cfg.RefreshCron, err)
		}
	}

	if cfg.PrefetchWorkers <= 0 {
		return nil, fmt.Errorf("SMARTLISTS_PREFETCH_WORKERS must be positive, got %d", cfg.PrefetchWorkers)
	}

	if cfg.TracingSampleRate < 0 || cfg.TracingSampleRate > 1 {
		return nil, fmt.Errorf("SMARTLISTS_TRACING_SAMPLE_RATE must be between 0 and 1, got %v", cfg.TracingSampleRate)
	}

	switch cfg.EventRelay {
	case "", EventRelayRedis, EventRelayNATS:
	default:
		return nil, fmt.Errorf("SMARTLISTS_EVENT_RELAY must be redis or nats, got %q", cfg.EventRelay)
	}

	cfg.LegacyEnvWarnings = detectLegacyEnvWarnings()

	return cfg, nil
}

// HTTPAddr returns the listen address of the control API.
func (c *Config) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.HTTPBind, c.HTTPPort)
}

func detectLegacyEnvWarnings() []string {
	var warnings []string
	for _, kv := range os.Environ() {
		key, _, _ := strings.Cut(kv, "=")
		if !strings.HasPrefix(key, "SL_") {
			continue
		}
		warnings = append(warnings, fmt.Sprintf("legacy env key %s is set; use SMARTLISTS_%s", key, strings.TrimPrefix(key, "SL_")))
	}
	sort.Strings(warnings)
	return warnings
}

// getEnvAny returns the first non-empty environment variable value from keys, or def if none set.
func getEnvAny(keys []string, def string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return def
}

// getEnvIntAny returns the first set integer environment variable value from keys, or def.
func getEnvIntAny(keys []string, def int) int {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				return parsed
			}
		}
	}
	return def
}

// getEnvBoolAny returns the first set boolean environment variable value from keys, or def.
func getEnvBoolAny(keys []string, def bool) bool {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			v = strings.ToLower(strings.TrimSpace(v))
			if v == "true" || v == "1" || v == "yes" {
				return true
			}
			if v == "false" || v == "0" || v == "no" {
				return false
			}
		}
	}
	return def
}

// getEnvFloatAny returns the first set float environment variable value from keys, or def.
func getEnvFloatAny(keys []string, def float64) float64 {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.ParseFloat(v, 64); err == nil {
				return parsed
			}
		}
	}
	return def
}
