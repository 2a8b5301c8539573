// Package observe provides application-wide observability primitives for
// voxgate: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is set up by [InitProvider] so that metrics can be scraped
// via /metrics. A package-level default [Metrics] instance ([DefaultMetrics])
// is provided for convenience; tests should use [NewMetrics] with a custom
// [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"context"
	"strconv"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all voxgate metrics.
const meterName = "github.com/MrWong99/voxgate"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// VADDuration tracks how long one Detect call takes.
	VADDuration metric.Float64Histogram

	// STTDuration tracks speech-to-text transcription latency.
	STTDuration metric.Float64Histogram

	// SpeechRatio is the distribution of the detector's speech ratio.
	SpeechRatio metric.Float64Histogram

	// VADVerdicts counts detector verdicts. Attribute:
	//   attribute.Bool("has_speech", ...)
	VADVerdicts metric.Int64Counter

	// GateDecisions counts gate outcomes. Attribute:
	//   attribute.String("decision", ...)
	GateDecisions metric.Int64Counter

	// ProviderErrors counts detector and transcription errors. Attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// ActiveStreams tracks open WebSocket audio streams.
	ActiveStreams metric.Int64UpDownCounter

	// HTTPRequestDuration tracks HTTP request processing time. Attributes:
	//   attribute.String("method", ...), attribute.String("route", ...),
	//   attribute.String("status", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) spanning
// sub-millisecond detection up to slow cloud transcription.
var latencyBuckets = []float64{
	0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// ratioBuckets partitions [0, 1] for the speech ratio histogram.
var ratioBuckets = []float64{0, 0.05, 0.1, 0.2, 0.3, 0.5, 0.7, 0.9, 1}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.VADDuration, err = m.Float64Histogram("voxgate.vad.duration",
		metric.WithDescription("Latency of voice activity detection per buffer."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.STTDuration, err = m.Float64Histogram("voxgate.stt.duration",
		metric.WithDescription("Latency of speech-to-text transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SpeechRatio, err = m.Float64Histogram("voxgate.vad.speech_ratio",
		metric.WithDescription("Fraction of each buffer classified as speech."),
		metric.WithUnit("1"),
		metric.WithExplicitBucketBoundaries(ratioBuckets...),
	); err != nil {
		return nil, err
	}

	if met.VADVerdicts, err = m.Int64Counter("voxgate.vad.verdicts",
		metric.WithDescription("Detector verdicts by outcome."),
	); err != nil {
		return nil, err
	}
	if met.GateDecisions, err = m.Int64Counter("voxgate.gate.decisions",
		metric.WithDescription("Transcription gate decisions."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("voxgate.provider.errors",
		metric.WithDescription("Detector and transcription errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	if met.ActiveStreams, err = m.Int64UpDownCounter("voxgate.active_streams",
		metric.WithDescription("Number of open audio streams."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("voxgate.http.request.duration",
		metric.WithDescription("HTTP request latency by method, route and status."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
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
// first call using [otel.GetMeterProvider]. Panics if instrument creation
// fails (should not happen with the global provider).
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

// RecordVerdict records one detector verdict and its speech ratio.
func (m *Metrics) RecordVerdict(ctx context.Context, hasSpeech bool, ratio float64) {
	m.VADVerdicts.Add(ctx, 1, metric.WithAttributes(attribute.Bool("has_speech", hasSpeech)))
	m.SpeechRatio.Record(ctx, ratio)
}

// RecordGateDecision increments the gate decision counter.
func (m *Metrics) RecordGateDecision(ctx context.Context, decision string) {
	m.GateDecisions.Add(ctx, 1, metric.WithAttributes(attribute.String("decision", decision)))
}

// RecordProviderError increments the provider error counter.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordHTTPRequest records the latency of one HTTP request.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, route string, status int, seconds float64) {
	m.HTTPRequestDuration.Record(ctx, seconds,
		metric.WithAttributes(
			attribute.String("method", method),
			attribute.String("route", route),
			attribute.String("status", strconv.Itoa(status)),
		),
	)
}
