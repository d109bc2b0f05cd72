/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Scheduling runs
	SchedulerRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "telrun_scheduler_runs_total",
		Help: "Scheduling runs by terminal state.",
	}, []string{"state"})

	SchedulerPlacementsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "telrun_scheduler_placements_total",
		Help: "Schedule entries emitted by block kind.",
	}, []string{"kind"})

	SchedulerUnplacedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "telrun_scheduler_unplaced_total",
		Help: "Blocks left unscheduled by outcome (rejected, expired).",
	}, []string{"outcome"})

	SchedulerRunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "telrun_scheduler_run_duration_seconds",
		Help:    "Wall-clock time to build one schedule.",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
	})

	SchedulerIdleFraction = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "telrun_scheduler_idle_fraction",
		Help: "Unallocated share of the most recent schedule window.",
	})

	OptimizerProbesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "telrun_optimizer_probes_total",
		Help: "Feasibility evaluations performed by the optimizer.",
	}, []string{"optimizer"})

	CacheRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "telrun_cache_requests_total",
		Help: "Run cache lookups by entry kind and result (hit, miss, error).",
	}, []string{"kind", "result"})

	// Export and fan-out
	ExportsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "telrun_exports_total",
		Help: "Schedule exports by destination and status.",
	}, []string{"destination", "status"})

	EventsPublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "telrun_events_published_total",
		Help: "Events forwarded to an external bus.",
	}, []string{"bus", "type"})

	EventPublishErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "telrun_event_publish_errors_total",
		Help: "Events that failed to reach an external bus.",
	}, []string{"bus"})

	// HTTP API
	APIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "telrun_api_request_duration_seconds",
		Help:    "HTTP request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "endpoint", "status"})

	APIRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "telrun_api_requests_total",
		Help: "HTTP requests served.",
	}, []string{"method", "endpoint", "status"})

	APIActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "telrun_api_active_connections",
		Help: "In-flight HTTP requests.",
	})

	// Database
	DatabaseQueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "telrun_database_query_duration_seconds",
		Help:    "Database operation latency.",
		Buckets: []float64{.001, .005, .01, .05, .1, .5, 1},
	}, []string{"operation", "table"})

	DatabaseErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "telrun_database_errors_total",
		Help: "Failed database operations.",
	}, []string{"operation", "table"})

	DatabaseConnectionsOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "telrun_database_connections_open",
		Help: "Open connections in the database pool.",
	})
)

// Handler exposes the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
