// Segmentfold - Audience Query & Segmentation Engine
// Copyright 2026 Segmentfold Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/segmentfold/segmentfold

// Package metrics provides Prometheus instrumentation for the engine:
// source loading, query execution, segment store operations, and the API
// surface. All metrics are registered via promauto at package init and
// exposed on /metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Source loading metrics
	SourceLoadDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "source_load_duration_seconds",
			Help:    "Duration of source fetch-and-import operations in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"format"},
	)

	SourceLoadErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "source_load_errors_total",
			Help: "Total number of source load failures",
		},
		[]string{"format"},
	)

	SourceFetchErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "source_fetch_errors_total",
			Help: "Total number of source fetch failures",
		},
		[]string{"reason"}, // "exhausted", "breaker_open"
	)

	SourceBytesFetched = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "source_fetch_bytes_total",
			Help: "Total bytes downloaded from audience sources",
		},
	)

	SourceCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "source_cache_hits_total",
			Help: "Total number of source loads satisfied by the table cache",
		},
	)

	SourceCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "source_cache_misses_total",
			Help: "Total number of source loads that required an import",
		},
	)

	LoadedSources = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "loaded_sources",
			Help: "Current number of sources materialized as tables",
		},
	)

	// Query execution metrics
	QueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "duckdb_query_duration_seconds",
			Help:    "Duration of DuckDB queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"}, // "select", "count", "import", "view"
	)

	QueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duckdb_query_errors_total",
			Help: "Total number of DuckDB query errors",
		},
		[]string{"operation"},
	)

	// Segment store metrics
	SegmentOps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "segment_store_operations_total",
			Help: "Total number of segment store operations",
		},
		[]string{"operation", "status"}, // operation: "create", "get", "list", "delete"
	)

	// API endpoint metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_active_requests",
			Help: "Current number of active API requests",
		},
	)
)

// ObserveQuery records the duration and outcome of an engine query.
func ObserveQuery(operation string, start time.Time, err error) {
	QueryDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	if err != nil {
		QueryErrors.WithLabelValues(operation).Inc()
	}
}

// ObserveAPIRequest records one completed API request.
func ObserveAPIRequest(method, endpoint string, statusCode int, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(statusCode)).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}
