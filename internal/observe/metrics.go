// Package observe provides the observability primitives of the answer
// pipeline: OpenTelemetry metrics, tracing spans, trace-aware structured
// logging and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. [InitProvider]
// bridges them to a Prometheus exporter so they can be scraped from /metrics.
// A package-level default [Metrics] instance ([DefaultMetrics]) is provided
// for convenience; tests should use [NewMetrics] with their own
// [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all metrics.
const meterName = "github.com/MrWong99/twinvoice"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// NormalizeDuration tracks audio decoding and resampling latency.
	NormalizeDuration metric.Float64Histogram

	// STTDuration tracks speech-to-text transcription latency.
	STTDuration metric.Float64Histogram

	// LLMDuration tracks completion latency per provider attempt. Use with
	// attribute.String("provider", ...).
	LLMDuration metric.Float64Histogram

	// TTSDuration tracks text-to-speech synthesis latency.
	TTSDuration metric.Float64Histogram

	// InteractionDuration tracks the end-to-end time of one handled clip.
	InteractionDuration metric.Float64Histogram

	// --- Counters ---

	// ProviderResults counts completion attempts. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderResults metric.Int64Counter

	// Fallbacks counts rule-based answers. Use with attributes:
	//   attribute.String("reason", ...), attribute.String("method", ...)
	Fallbacks metric.Int64Counter

	// Interactions counts handled clips. Use with attribute:
	//   attribute.String("status", ...)
	Interactions metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of open conversation sessions.
	ActiveSessions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for
// request/response voice latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	histograms := []struct {
		dst  *metric.Float64Histogram
		name string
		desc string
	}{
		{&met.NormalizeDuration, "twinvoice.normalize.duration", "Latency of audio decoding and normalisation."},
		{&met.STTDuration, "twinvoice.stt.duration", "Latency of speech-to-text transcription."},
		{&met.LLMDuration, "twinvoice.llm.duration", "Latency of a single completion attempt."},
		{&met.TTSDuration, "twinvoice.tts.duration", "Latency of text-to-speech synthesis."},
		{&met.InteractionDuration, "twinvoice.interaction.duration", "End-to-end latency of one handled clip."},
	}
	for _, h := range histograms {
		if *h.dst, err = m.Float64Histogram(h.name,
			metric.WithDescription(h.desc),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(latencyBuckets...),
		); err != nil {
			return nil, err
		}
	}

	// Counters.
	if met.ProviderResults, err = m.Int64Counter("twinvoice.provider.results",
		metric.WithDescription("Completion attempts by provider and result kind."),
	); err != nil {
		return nil, err
	}
	if met.Fallbacks, err = m.Int64Counter("twinvoice.fallback.answers",
		metric.WithDescription("Rule-based answers by reason and match method."),
	); err != nil {
		return nil, err
	}
	if met.Interactions, err = m.Int64Counter("twinvoice.interactions",
		metric.WithDescription("Handled clips by reply status."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("twinvoice.active_sessions",
		metric.WithDescription("Number of open conversation sessions."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("twinvoice.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
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

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Panics if instrument creation
// fails, which does not happen with the global provider.
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

// RecordProviderResult records one completion attempt and its latency.
func (m *Metrics) RecordProviderResult(ctx context.Context, provider, kind string, seconds float64) {
	m.ProviderResults.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
	m.LLMDuration.Record(ctx, seconds,
		metric.WithAttributes(attribute.String("provider", provider)),
	)
}

// RecordFallback records a rule-based answer.
func (m *Metrics) RecordFallback(ctx context.Context, reason, method string) {
	m.Fallbacks.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("reason", reason),
			attribute.String("method", method),
		),
	)
}

// RecordInteraction records the outcome of one handled clip.
func (m *Metrics) RecordInteraction(ctx context.Context, status string, seconds float64) {
	m.Interactions.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
	m.InteractionDuration.Record(ctx, seconds)
}
