// Interstop - Transit Segment Speed Estimation and Analytics
// Copyright 2026 M. Peeters (mpeeters-be)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mpeeters-be/interstop

// Package metrics defines the Prometheus instrumentation for Interstop.
// All collectors are registered on the default registry via promauto and
// exposed on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Query Metrics

	QueryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "speed_query_duration_seconds",
			Help:    "End-to-end duration of speed estimation queries",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120}, // Multi-month ranges can take minutes
		},
	)

	ObservationsFiltered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "speed_observations_filtered_total",
			Help: "Observations surviving the sample filter, before deduplication",
		},
	)

	ObservationsMalformed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "speed_observations_malformed_total",
			Help: "Shard rows dropped because fields were missing or unparseable",
		},
	)

	DeltaSamplesAccepted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "speed_delta_samples_accepted_total",
			Help: "Delta samples passing validity and mode filtering",
		},
	)

	DeltaSamplesRejected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "speed_delta_samples_rejected_total",
			Help: "Delta samples discarded by validity or mode filtering",
		},
	)

	// Shard Fetch Metrics

	ShardFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shard_fetches_total",
			Help: "Archive shard fetch attempts by outcome",
		},
		[]string{"outcome"}, // "hit", "downloaded", "failed"
	)

	ShardFetchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "shard_fetch_duration_seconds",
			Help:    "Duration of individual shard downloads",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
	)

	// Upstream Circuit Breaker Metrics

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "upstream_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstream_circuit_breaker_requests_total",
			Help: "Requests through the upstream circuit breaker by result",
		},
		[]string{"name", "result"}, // "success", "failure", "rejected"
	)

	// API Metrics

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
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 60},
		},
		[]string{"method", "endpoint"},
	)
)
