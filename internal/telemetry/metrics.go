/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "smartlists"

var (
	// HTTP
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_requests_total",
			Help:      "Total API requests by method, route and status.",
		},
		[]string{"method", "endpoint", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "api_request_duration_seconds",
			Help:      "API request latency.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"method", "endpoint", "status"},
	)

	APIActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "api_active_connections",
			Help:      "API requests currently being served.",
		},
	)

	// Refresh pipeline
	RefreshDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "refresh_duration_seconds",
			Help:      "Time spent refreshing one list for one owner.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"operation"},
	)

	RefreshTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_total",
			Help:      "Refresh outcomes by operation, trigger and result.",
		},
		[]string{"operation", "trigger", "result"},
	)

	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "refresh_queue_depth",
			Help:      "Items waiting in the refresh queue.",
		},
	)

	BatchConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_conflicts_total",
			Help:      "Batch refresh requests rejected because a batch was already running.",
		},
	)

	ConsumerPanics = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "consumer_panics_total",
			Help:      "Panics recovered while processing a queued refresh.",
		},
	)

	// Catalog cache
	CatalogFetchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "catalog_fetch_total",
			Help:      "Catalog queries issued by the refresh cache.",
		},
		[]string{"result"},
	)

	CatalogFetchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "catalog_fetch_duration_seconds",
			Help:      "Catalog query latency.",
			Buckets:   prometheus.DefBuckets,
		},
	)

	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_cache_hits_total",
			Help:      "Refresh cache lookups served from a memoized snapshot.",
		},
	)

	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_cache_misses_total",
			Help:      "Refresh cache lookups that required a catalog fetch.",
		},
	)

	// Rule evaluation
	RegexTimeouts = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "regex_timeouts_total",
			Help:      "Regex matches abandoned after exceeding the match budget.",
		},
	)

	EvaluationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evaluation_errors_total",
			Help:      "Expressions that failed on a single item and evaluated to false.",
		},
		[]string{"field"},
	)

	// Scheduler
	ScheduledRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scheduled_runs_total",
			Help:      "Cron-triggered batch refreshes by result.",
		},
		[]string{"result"},
	)

	// Database
	DatabaseQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "database_query_duration_seconds",
			Help:      "Database operation latency by operation and table.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"operation", "table"},
	)

	DatabaseErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "database_errors_total",
			Help:      "Failed database operations.",
		},
		[]string{"operation", "table"},
	)

	DatabaseConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "database_connections_active",
			Help:      "Open database connections.",
		},
	)

	// Cross-instance event relay
	EventRelayTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_relay_total",
			Help:      "Events relayed between instances by direction and result.",
		},
		[]string{"direction", "result"},
	)

	// Audit trail
	AuditEntriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_entries_total",
			Help:      "Audit entries written by action.",
		},
		[]string{"action"},
	)

	// Leader election
	LeaderElectionStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "leader_election_status",
			Help:      "1 when this instance holds the scheduler lease.",
		},
		[]string{"instance_id"},
	)

	LeaderElectionChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "leader_election_changes_total",
			Help:      "Leadership transitions.",
		},
		[]string{"instance_id", "change"},
	)
)

// ObserveRefresh records one refresh outcome.
func ObserveRefresh(operation, trigger string, success bool, elapsed time.Duration) {
	result := "success"
	if !success {
		result = "failure"
	}
	RefreshTotal.WithLabelValues(operation, trigger, result).Inc()
	RefreshDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// Handler exposes the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
