// TrafficLens - Live Traffic Camera Dashboard
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trafficlens

// Package metrics defines the Prometheus instrumentation for TrafficLens:
// feed fetches and circuit breakers, registry revalidation, media lifecycle
// transitions, snapshot refreshes, API requests, and WebSocket connections.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Feed Adapter Metrics
	FeedFetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "feed_fetch_duration_seconds",
			Help:    "Duration of upstream feed fetches in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"source"},
	)

	FeedFetchErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feed_fetch_errors_total",
			Help: "Total number of failed feed fetches",
		},
		[]string{"source", "reason"}, // "status", "timeout", "network", "decode", "breaker_open"
	)

	FeedRecordsNormalized = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feed_records_normalized_total",
			Help: "Total number of camera records emitted by feed adapters",
		},
		[]string{"source"},
	)

	FeedRecordsSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feed_records_skipped_total",
			Help: "Total number of upstream records dropped during normalization",
		},
		[]string{"source", "reason"}, // "no_snapshot", "no_location"
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "feed_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feed_circuit_breaker_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feed_circuit_breaker_requests_total",
			Help: "Total number of requests through the circuit breaker",
		},
		[]string{"name", "result"}, // "success", "failure", "rejected"
	)

	// Registry Metrics
	RegistryRevalidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "registry_revalidations_total",
			Help: "Total number of registry revalidations by trigger",
		},
		[]string{"source", "trigger", "result"}, // trigger: "switch", "interval", "manual"
	)

	RegistryStaleResultsDiscarded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "registry_stale_results_discarded_total",
			Help: "Fetch results discarded because a newer revalidation superseded them",
		},
		[]string{"source"},
	)

	RegistryCameras = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "registry_cameras",
			Help: "Number of cameras currently held for the active feed",
		},
		[]string{"source"},
	)

	// Media Lifecycle Metrics
	MediaStateTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_state_transitions_total",
			Help: "Total number of media lifecycle state transitions",
		},
		[]string{"from", "to"},
	)

	MediaStreamFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_stream_failures_total",
			Help: "Total number of stream playback failures",
		},
		[]string{"kind"}, // "recoverable", "fatal"
	)

	MediaSnapshotRefreshes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_snapshot_refreshes_total",
			Help: "Total number of snapshot cache-bust refreshes issued",
		},
	)

	MediaActiveStreams = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_active_streams",
			Help: "Number of controllers currently in the StreamActive state",
		},
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

	// WebSocket Metrics
	WebSocketClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_clients",
			Help: "Current number of connected WebSocket clients",
		},
	)

	WebSocketMessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_messages_sent_total",
			Help: "Total number of WebSocket messages broadcast to clients",
		},
		[]string{"type"},
	)
)

// RecordAPIRequest records a completed API request.
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest adjusts the active-request gauge.
func TrackActiveRequest(start bool) {
	if start {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// RecordFeedFetch records a completed upstream fetch.
func RecordFeedFetch(source string, duration time.Duration) {
	FeedFetchDuration.WithLabelValues(source).Observe(duration.Seconds())
}

// RecordMediaTransition records a media lifecycle state transition.
func RecordMediaTransition(from, to string) {
	MediaStateTransitions.WithLabelValues(from, to).Inc()
}
