// Package observe provides application-wide observability primitives for
// julesmcp: OpenTelemetry metrics, distributed tracing, trace-aware
// structured logging, and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the /metrics endpoint when the server runs over HTTP. A
// package-level default [Metrics] instance ([DefaultMetrics]) is provided for
// convenience; tests should use [NewMetrics] with a custom
// [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all julesmcp metrics.
const meterName = "github.com/MrWong99/julesmcp"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// ToolCallDuration tracks end-to-end tool invocation latency, from
	// validation to the returned envelope.
	ToolCallDuration metric.Float64Histogram

	// ToolCalls counts tool invocations. Use with attributes:
	//   attribute.String("tool", ...), attribute.String("status", ...)
	ToolCalls metric.Int64Counter

	// ToolFailures counts error envelopes by failure category. Use with attributes:
	//   attribute.String("tool", ...), attribute.String("category", ...)
	ToolFailures metric.Int64Counter

	// APIRequestDuration tracks outbound Jules API latency.
	APIRequestDuration metric.Float64Histogram

	// APIRequests counts outbound Jules API calls. Use with attributes:
	//   attribute.String("method", ...), attribute.String("status", ...)
	APIRequests metric.Int64Counter

	// HTTPRequestDuration tracks inbound HTTP request processing time when
	// serving streamable HTTP. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) spanning
// fast validation failures up to the 30 s API timeout.
var latencyBuckets = []float64{
	0.005, 0.025, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.ToolCallDuration, err = m.Float64Histogram("julesmcp.tool_call.duration",
		metric.WithDescription("Latency of tool invocations."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ToolCalls, err = m.Int64Counter("julesmcp.tool.calls",
		metric.WithDescription("Total tool invocations by tool name and status."),
	); err != nil {
		return nil, err
	}
	if met.ToolFailures, err = m.Int64Counter("julesmcp.tool.failures",
		metric.WithDescription("Total failed tool invocations by tool name and failure category."),
	); err != nil {
		return nil, err
	}
	if met.APIRequestDuration, err = m.Float64Histogram("julesmcp.api.duration",
		metric.WithDescription("Latency of Jules API requests."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.APIRequests, err = m.Int64Counter("julesmcp.api.requests",
		metric.WithDescription("Total Jules API requests by method and status."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("julesmcp.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
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

// RecordToolCall records one finished invocation of tool. status is "ok" or
// "error".
func (m *Metrics) RecordToolCall(ctx context.Context, tool, status string, d time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("tool", tool),
		attribute.String("status", status),
	)
	m.ToolCalls.Add(ctx, 1, attrs)
	m.ToolCallDuration.Record(ctx, d.Seconds(), attrs)
}

// RecordToolFailure records an error envelope with its failure category.
func (m *Metrics) RecordToolFailure(ctx context.Context, tool, category string) {
	m.ToolFailures.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("tool", tool),
			attribute.String("category", category),
		),
	)
}

// RecordAPIRequest records one outbound API request.
func (m *Metrics) RecordAPIRequest(ctx context.Context, method, status string, d time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("status", status),
	)
	m.APIRequests.Add(ctx, 1, attrs)
	m.APIRequestDuration.Record(ctx, d.Seconds(), attrs)
}
