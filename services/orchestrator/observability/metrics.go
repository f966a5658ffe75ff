// Copyright (C) 2026 Equisight Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package observability provides metrics and instrumentation for the orchestrator.
//
// # Description
//
// This package implements Prometheus metrics for monitoring streaming chat
// operations. Metrics include:
//   - Request counters (by status, error type)
//   - Latency histograms (time to first fragment, total duration)
//   - Active stream gauges
//   - Retrieval failure counters by collection
//   - Evaluation pass counters
//
// # Integration
//
// Metrics are exposed via /metrics endpoint. Use with Prometheus + Grafana
// for dashboards and alerting.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Metric Definitions
// =============================================================================

// Namespace for all metrics
const metricsNamespace = "equisight"

// Subsystem for streaming metrics
const streamingSubsystem = "streaming"

// StreamingMetrics holds all Prometheus metrics for streaming chat operations.
//
// # Description
//
// Provides counters, histograms, and gauges for monitoring streaming performance
// and resource usage. Initialize once at startup via InitMetrics().
//
// # Thread Safety
//
// All operations are thread-safe.
type StreamingMetrics struct {
	// RequestsTotal counts streaming requests by status.
	// Labels: status (success, error)
	RequestsTotal *prometheus.CounterVec

	// TimeToFirstFragmentSeconds measures latency to the first answer fragment.
	TimeToFirstFragmentSeconds prometheus.Histogram

	// StreamDurationSeconds measures total stream duration.
	// Labels: status (success, error)
	StreamDurationSeconds *prometheus.HistogramVec

	// ActiveStreams tracks currently active streaming connections.
	ActiveStreams prometheus.Gauge

	// ErrorsTotal counts errors by pipeline stage.
	// Labels: stage (validation, condense, retrieval, generation, persistence, internal)
	ErrorsTotal *prometheus.CounterVec

	// RetrievalFailuresTotal counts per-collection retrieval failures that
	// the pipeline degraded through rather than aborting.
	// Labels: collection
	RetrievalFailuresTotal *prometheus.CounterVec

	// EvalRunsTotal counts evaluation passes by outcome.
	// Labels: status (success, error, skipped)
	EvalRunsTotal *prometheus.CounterVec

	// KeepAlivesTotal counts keepalive pings sent.
	KeepAlivesTotal prometheus.Counter

	// ClientDisconnectsTotal counts client disconnections during streaming.
	ClientDisconnectsTotal prometheus.Counter
}

// DefaultMetrics is the singleton instance of StreamingMetrics.
// Initialized by InitMetrics(). Callers must nil-check before use so the
// package works in tests that never register metrics.
var DefaultMetrics *StreamingMetrics

// InitMetrics initializes the default metrics instance.
//
// # Description
//
// Creates and registers all Prometheus metrics. Should be called once
// at application startup.
//
// # Limitations
//
//   - Panics if called twice (duplicate registration).
func InitMetrics() *StreamingMetrics {
	DefaultMetrics = &StreamingMetrics{
		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: streamingSubsystem,
				Name:      "requests_total",
				Help:      "Total number of streaming chat requests by status",
			},
			[]string{"status"},
		),

		TimeToFirstFragmentSeconds: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: streamingSubsystem,
				Name:      "time_to_first_fragment_seconds",
				Help:      "Time from request to first answer fragment in seconds",
				Buckets:   []float64{0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
			},
		),

		StreamDurationSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: streamingSubsystem,
				Name:      "stream_duration_seconds",
				Help:      "Total stream duration in seconds",
				Buckets:   []float64{1, 5, 10, 30, 60, 120, 300},
			},
			[]string{"status"},
		),

		ActiveStreams: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: streamingSubsystem,
				Name:      "active_streams",
				Help:      "Number of currently active streaming connections",
			},
		),

		ErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: streamingSubsystem,
				Name:      "errors_total",
				Help:      "Total streaming errors by pipeline stage",
			},
			[]string{"stage"},
		),

		RetrievalFailuresTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: streamingSubsystem,
				Name:      "retrieval_failures_total",
				Help:      "Per-collection retrieval failures tolerated by fusion",
			},
			[]string{"collection"},
		),

		EvalRunsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: streamingSubsystem,
				Name:      "eval_runs_total",
				Help:      "Evaluation passes by outcome",
			},
			[]string{"status"},
		),

		KeepAlivesTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: streamingSubsystem,
				Name:      "keepalives_total",
				Help:      "Total keepalive pings sent",
			},
		),

		ClientDisconnectsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: streamingSubsystem,
				Name:      "client_disconnects_total",
				Help:      "Total client disconnections during streaming",
			},
		),
	}

	return DefaultMetrics
}

// =============================================================================
// Pipeline Stages
// =============================================================================

// Stage labels an error with the pipeline step that produced it.
type Stage string

const (
	// StageValidation indicates request validation failure.
	StageValidation Stage = "validation"

	// StageCondense indicates query condensation failure.
	StageCondense Stage = "condense"

	// StageRetrieval indicates total retrieval failure.
	StageRetrieval Stage = "retrieval"

	// StageGeneration indicates LLM streaming failure.
	StageGeneration Stage = "generation"

	// StagePersistence indicates history write failure.
	StagePersistence Stage = "persistence"

	// StageInternal indicates internal server error.
	StageInternal Stage = "internal"
)

// =============================================================================
// Helper Methods
// =============================================================================

// RecordRequest records a completed streaming request.
func (m *StreamingMetrics) RecordRequest(success bool) {
	m.RequestsTotal.WithLabelValues(statusLabel(success)).Inc()
}

// RecordError records an error in the given pipeline stage.
func (m *StreamingMetrics) RecordError(stage Stage) {
	m.ErrorsTotal.WithLabelValues(string(stage)).Inc()
}

// RecordRetrievalFailure records a tolerated per-collection failure.
func (m *StreamingMetrics) RecordRetrievalFailure(collection string) {
	m.RetrievalFailuresTotal.WithLabelValues(collection).Inc()
}

// RecordEvalRun records the outcome of an evaluation pass.
// Status must be one of "success", "error", "skipped".
func (m *StreamingMetrics) RecordEvalRun(status string) {
	m.EvalRunsTotal.WithLabelValues(status).Inc()
}

// StreamStarted increments the active streams gauge.
func (m *StreamingMetrics) StreamStarted() {
	m.ActiveStreams.Inc()
}

// StreamEnded decrements the active streams gauge.
func (m *StreamingMetrics) StreamEnded() {
	m.ActiveStreams.Dec()
}

// RecordTimeToFirstFragment records the first-fragment latency.
func (m *StreamingMetrics) RecordTimeToFirstFragment(seconds float64) {
	m.TimeToFirstFragmentSeconds.Observe(seconds)
}

// RecordStreamDuration records the total stream duration.
func (m *StreamingMetrics) RecordStreamDuration(seconds float64, success bool) {
	m.StreamDurationSeconds.WithLabelValues(statusLabel(success)).Observe(seconds)
}

// RecordKeepAlive increments the keepalive counter.
func (m *StreamingMetrics) RecordKeepAlive() {
	m.KeepAlivesTotal.Inc()
}

// RecordClientDisconnect increments the client disconnect counter.
func (m *StreamingMetrics) RecordClientDisconnect() {
	m.ClientDisconnectsTotal.Inc()
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}
