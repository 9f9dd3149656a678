// Waveframe - Audio Poster Customization and Preview Service
// Copyright 2026 Waveframe Studio
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/waveframe-studio/waveframe

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Session Lifecycle Metrics
	SessionsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sessions_created_total",
			Help: "Total number of customization sessions created",
		},
	)

	UploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "uploads_total",
			Help: "Total number of asset uploads",
		},
		[]string{"kind"}, // "photo", "audio"
	)

	UploadBytes = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upload_bytes",
			Help:    "Size distribution of uploaded assets in bytes",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 9), // 1KiB .. 64MiB
		},
		[]string{"kind"},
	)

	// Edit Metrics
	EditsApplied = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "edits_applied_total",
			Help: "Total number of customization edits accepted",
		},
	)

	EditsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edits_rejected_total",
			Help: "Total number of customization edits rejected",
		},
		[]string{"reason"}, // "not_ready", "invalid", "finalized", "not_found"
	)

	EditsCoalesced = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "edits_coalesced_total",
			Help: "Total number of edits merged into a pending buffer before flush",
		},
	)

	// Waveform Derivation Metrics
	WaveformEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "waveform_events_total",
			Help: "Total number of waveform completion events by outcome",
		},
		[]string{"outcome"}, // "applied", "duplicate", "unknown_session", "error"
	)

	WaveformJobsPublished = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "waveform_jobs_published_total",
			Help: "Total number of waveform derivation jobs dispatched",
		},
	)

	// Preview Metrics
	PreviewsGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "previews_generated_total",
			Help: "Total number of previews rendered successfully",
		},
		[]string{"representation"}, // "image", "document"
	)

	PreviewFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "preview_failures_total",
			Help: "Total number of failed preview renders",
		},
		[]string{"representation"},
	)

	PreviewFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "preview_fallbacks_total",
			Help: "Total number of renders served by the alternate representation",
		},
		[]string{"from", "to"},
	)

	PreviewRenderDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "preview_render_duration_seconds",
			Help:    "Preview render duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"representation"},
	)

	// Finalization Metrics
	FinalizationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "finalizations_total",
			Help: "Total number of finalization attempts by outcome",
		},
		[]string{"outcome"}, // "completed", "rejected", "error"
	)

	CleanRenderFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clean_render_failures_total",
			Help: "Total number of post-finalization clean renders that failed",
		},
	)

	// API Endpoint Metrics
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

	APIRateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_rate_limit_hits_total",
			Help: "Total number of rate limit rejections",
		},
		[]string{"endpoint"},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Current circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	// WebSocket Metrics
	WebSocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_connections",
			Help: "Current number of connected status subscribers",
		},
	)

	WebSocketPushes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_pushes_total",
			Help: "Total number of status snapshots pushed over WebSocket",
		},
	)

	// Janitor Metrics
	JanitorSweeps = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "janitor_sweeps_total",
			Help: "Total number of completed janitor sweeps",
		},
	)

	JanitorAssetsDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "janitor_assets_deleted_total",
			Help: "Total number of expired temporary asset trees removed",
		},
	)

	// Messaging Metrics
	BusMessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bus_messages_published_total",
			Help: "Total number of messages published to the job bus",
		},
		[]string{"subject"},
	)

	BusMessagesConsumed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bus_messages_consumed_total",
			Help: "Total number of messages consumed from the job bus by outcome",
		},
		[]string{"subject", "outcome"}, // "processed", "parse_failed", "error"
	)
)

// RecordAPIRequest records an API request metric
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest increments or decrements the active request gauge
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// RecordUpload records an asset upload
func RecordUpload(kind string, size int) {
	UploadsTotal.WithLabelValues(kind).Inc()
	UploadBytes.WithLabelValues(kind).Observe(float64(size))
}

// RecordEditRejected records a rejected edit by reason
func RecordEditRejected(reason string) {
	EditsRejected.WithLabelValues(reason).Inc()
}

// RecordPreview records the outcome of a preview render
func RecordPreview(representation string, duration time.Duration, err error) {
	PreviewRenderDuration.WithLabelValues(representation).Observe(duration.Seconds())
	if err != nil {
		PreviewFailures.WithLabelValues(representation).Inc()
		return
	}
	PreviewsGenerated.WithLabelValues(representation).Inc()
}

// RecordPreviewFallback records a render served by the alternate representation
func RecordPreviewFallback(from, to string) {
	PreviewFallbacks.WithLabelValues(from, to).Inc()
}

// RecordFinalization records a finalization attempt by outcome
func RecordFinalization(outcome string) {
	FinalizationsTotal.WithLabelValues(outcome).Inc()
}
