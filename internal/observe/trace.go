package observe

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/voxgate/pkg/provider/vad"
)

const tracerName = "github.com/MrWong99/voxgate"

// Tracer returns the voxgate tracer from the global [trace.TracerProvider].
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan starts a span under ctx. The caller must End it.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

// FailSpan records err on span and marks it as failed. A nil err is a no-op.
func FailSpan(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// AudioAttributes describes a detector-format buffer of n samples at rate Hz.
func AudioAttributes(n, rate int) []attribute.KeyValue {
	attrs := []attribute.KeyValue{attribute.Int("audio.samples", n)}
	if rate > 0 {
		d := time.Duration(n) * time.Second / time.Duration(rate)
		attrs = append(attrs, attribute.Int64("audio.duration_ms", d.Milliseconds()))
	}
	return attrs
}

// VerdictAttributes flattens res into span attributes under the vad. prefix.
func VerdictAttributes(res vad.Result) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool("vad.has_speech", res.HasSpeech),
		attribute.Float64("vad.speech_ratio", res.SpeechRatio),
		attribute.Float64("vad.speech_secs", res.SpeechDurationSecs),
		attribute.Float64("vad.rms", res.RMSEnergy),
		attribute.Float64("vad.threshold", res.Threshold),
		attribute.Int("vad.frames", res.Frames),
	}
}

// CorrelationID is the trace ID of the span in ctx, or "" without one.
func CorrelationID(ctx context.Context) string {
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// Logger returns the default logger, tagged with trace_id and span_id when
// ctx carries a span.
func Logger(ctx context.Context) *slog.Logger {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return slog.Default()
	}
	return slog.Default().With(
		slog.String("trace_id", sc.TraceID().String()),
		slog.String("span_id", sc.SpanID().String()),
	)
}
