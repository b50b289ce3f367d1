// Package observe provides application-wide observability primitives for
// Narvox: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still
// be scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Narvox metrics.
const meterName = "github.com/penumbralworks/narvox"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// SynthesisDuration tracks speech synthesis latency. Use with attributes:
	//   attribute.String("backend", ...), attribute.String("status", ...)
	SynthesisDuration metric.Float64Histogram

	// SegmentationDuration tracks narrative segmentation latency.
	SegmentationDuration metric.Float64Histogram

	// HTTPRequestDuration tracks HTTP request processing time. Use with
	// attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram

	// SegmentsPlayed counts narration segments by speaker kind and outcome.
	// Use with attributes:
	//   attribute.String("speaker", ...), attribute.String("outcome", ...)
	SegmentsPlayed metric.Int64Counter

	// BackendRequests counts speech backend calls. Use with attributes:
	//   attribute.String("backend", ...), attribute.String("status", ...)
	BackendRequests metric.Int64Counter

	// BackendErrors counts speech backend errors by backend name.
	BackendErrors metric.Int64Counter

	// RateLimitRejections counts requests turned away by the rate limiter,
	// by route.
	RateLimitRejections metric.Int64Counter

	// ActiveSessions tracks the number of live narration sessions.
	ActiveSessions metric.Int64UpDownCounter

	// ActiveListeners tracks the number of connected event-feed clients.
	ActiveListeners metric.Int64UpDownCounter
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// speech synthesis round trips.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.SynthesisDuration, err = m.Float64Histogram("narvox.synthesis.duration",
		metric.WithDescription("Latency of speech synthesis by backend and status."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SegmentationDuration, err = m.Float64Histogram("narvox.segmentation.duration",
		metric.WithDescription("Latency of narrative segmentation."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("narvox.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	if met.SegmentsPlayed, err = m.Int64Counter("narvox.segments.played",
		metric.WithDescription("Total narration segments by speaker kind and outcome."),
	); err != nil {
		return nil, err
	}
	if met.BackendRequests, err = m.Int64Counter("narvox.backend.requests",
		metric.WithDescription("Total speech backend requests by backend and status."),
	); err != nil {
		return nil, err
	}
	if met.BackendErrors, err = m.Int64Counter("narvox.backend.errors",
		metric.WithDescription("Total speech backend errors by backend."),
	); err != nil {
		return nil, err
	}
	if met.RateLimitRejections, err = m.Int64Counter("narvox.ratelimit.rejections",
		metric.WithDescription("Total rate-limited requests by route."),
	); err != nil {
		return nil, err
	}

	if met.ActiveSessions, err = m.Int64UpDownCounter("narvox.active_sessions",
		metric.WithDescription("Number of live narration sessions."),
	); err != nil {
		return nil, err
	}
	if met.ActiveListeners, err = m.Int64UpDownCounter("narvox.active_listeners",
		metric.WithDescription("Number of connected event-feed clients."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it
// on first call using [otel.GetMeterProvider]. Subsequent calls return the
// same pointer. Panics if instrument creation fails (should not happen with
// the global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordSynthesis records one speech backend round trip.
func (m *Metrics) RecordSynthesis(ctx context.Context, backend, status string, d time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("backend", backend),
		attribute.String("status", status),
	)
	m.SynthesisDuration.Record(ctx, d.Seconds(), attrs)
	m.BackendRequests.Add(ctx, 1, attrs)
	if status != "ok" {
		m.BackendErrors.Add(ctx, 1,
			metric.WithAttributes(attribute.String("backend", backend)))
	}
}

// RecordSegment records one narration segment reaching a terminal outcome
// ("completed", "skipped" or "failed").
func (m *Metrics) RecordSegment(ctx context.Context, speaker, outcome string) {
	m.SegmentsPlayed.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("speaker", speaker),
			attribute.String("outcome", outcome),
		),
	)
}

// RecordRateLimitRejection records one request turned away at route.
func (m *Metrics) RecordRateLimitRejection(ctx context.Context, route string) {
	m.RateLimitRejections.Add(ctx, 1,
		metric.WithAttributes(attribute.String("route", route)),
	)
}
