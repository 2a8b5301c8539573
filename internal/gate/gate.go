// Package gate decides, per utterance, whether audio is worth sending to a
// transcription backend.
//
// # Decisions
//
//  1. No detector configured: [DecisionPassthrough], transcribe.
//  2. The detector fails: [DecisionFailOpen], transcribe. Losing speech is
//     worse than paying for one unnecessary transcription.
//  3. The detector hears no speech: [DecisionSkipped], no transcription.
//  4. The detector hears speech: [DecisionTranscribed].
//
// Every outcome is counted, traced and, when a store is configured, appended
// to the verdict log. The detector can be replaced at runtime with
// [Gate.SetDetector] while requests are in flight.
package gate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/voxgate/internal/observe"
	"github.com/MrWong99/voxgate/internal/verdict"
	"github.com/MrWong99/voxgate/pkg/provider/stt"
	"github.com/MrWong99/voxgate/pkg/provider/vad"
)

// Decision is the gate outcome for one utterance.
type Decision string

const (
	DecisionPassthrough Decision = "passthrough"
	DecisionFailOpen    Decision = "fail_open"
	DecisionSkipped     Decision = "skipped"
	DecisionTranscribed Decision = "transcribed"

	// DecisionDetected marks a classification-only call ([Gate.Classify]).
	DecisionDetected Decision = "detected"
)

var (
	// ErrEmptyInput is returned for an utterance with no samples. There is
	// nothing to classify or transcribe, so it is never failed open.
	ErrEmptyInput = errors.New("gate: empty input")

	// ErrNoTranscriber is returned by Process on a gate built without a
	// transcription backend.
	ErrNoTranscriber = errors.New("gate: no transcriber configured")

	// ErrDetectorDisabled is returned by Classify when VAD is disabled.
	ErrDetectorDisabled = errors.New("gate: vad disabled")
)

// Recorder receives one record per outcome. [verdict.Store] satisfies it.
type Recorder interface {
	Record(ctx context.Context, r verdict.Record) error
}

// Utterance is one complete buffer of detector-format audio: mono float32
// PCM at 16 kHz.
type Utterance struct {
	Samples []float32

	// Source names the entry point for logs and the verdict log.
	Source string
}

// Outcome is the result of gating one utterance.
type Outcome struct {
	ID       string   `json:"id"`
	Decision Decision `json:"decision"`

	// Verdict is nil for passthrough and fail-open decisions.
	Verdict *vad.Result `json:"verdict,omitempty"`

	// DetectError is the detector failure behind a fail-open decision.
	DetectError error `json:"-"`

	// Transcript is nil when transcription was skipped.
	Transcript *stt.Transcript `json:"transcript,omitempty"`
}

// Text returns the transcript text, or "" when transcription was skipped.
func (o Outcome) Text() string {
	if o.Transcript == nil {
		return ""
	}
	return o.Transcript.Text
}

// detectorSlot lets a nil Detector live in an atomic.Pointer.
type detectorSlot struct{ d vad.Detector }

// Gate runs the detector in front of a transcription backend. It is safe for
// concurrent use.
type Gate struct {
	detector    atomic.Pointer[detectorSlot]
	transcriber stt.Provider

	recorder     Recorder
	metrics      *observe.Metrics
	providerName string
}

// Option is a functional option for configuring a Gate.
type Option func(*Gate)

// WithRecorder appends every outcome to r.
func WithRecorder(r Recorder) Option {
	return func(g *Gate) { g.recorder = r }
}

// WithMetrics records into m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(g *Gate) { g.metrics = m }
}

// WithProviderName sets the backend name used on error metrics.
func WithProviderName(name string) Option {
	return func(g *Gate) { g.providerName = name }
}

// New builds a gate. detector may be nil (VAD disabled) and transcriber may be
// nil (classification only).
func New(detector vad.Detector, transcriber stt.Provider, opts ...Option) *Gate {
	g := &Gate{
		transcriber:  transcriber,
		providerName: "stt",
	}
	for _, o := range opts {
		o(g)
	}
	if g.metrics == nil {
		g.metrics = observe.DefaultMetrics()
	}
	g.detector.Store(&detectorSlot{d: detector})
	return g
}

// SetDetector replaces the detector used by subsequent calls. Calls already
// in progress finish with the detector they started with. nil disables VAD.
func (g *Gate) SetDetector(d vad.Detector) {
	g.detector.Store(&detectorSlot{d: d})
}

// Detector returns the current detector, or nil when VAD is disabled.
func (g *Gate) Detector() vad.Detector {
	return g.detector.Load().d
}

// CanTranscribe reports whether Process is available.
func (g *Gate) CanTranscribe() bool { return g.transcriber != nil }

// Process gates u and transcribes it unless the detector found no speech. A
// transcription failure is returned as an error together with the partial
// outcome carrying the decision.
func (g *Gate) Process(ctx context.Context, u Utterance) (Outcome, error) {
	if len(u.Samples) == 0 {
		return Outcome{}, ErrEmptyInput
	}
	if g.transcriber == nil {
		return Outcome{}, ErrNoTranscriber
	}

	ctx, span := observe.StartSpan(ctx, "gate.process",
		trace.WithAttributes(attribute.String("source", u.Source)),
		trace.WithAttributes(observe.AudioAttributes(len(u.Samples), stt.SampleRate)...),
	)
	defer span.End()

	out := Outcome{ID: uuid.NewString()}
	if det := g.Detector(); det == nil {
		out.Decision = DecisionPassthrough
	} else if res, err := g.detect(ctx, det, u.Samples); err != nil {
		out.Decision = DecisionFailOpen
		out.DetectError = err
		observe.Logger(ctx).Warn("vad failed, transcribing anyway", "id", out.ID, "source", u.Source, "err", err)
	} else {
		out.Verdict = &res
		out.Decision = DecisionTranscribed
		if !res.HasSpeech {
			out.Decision = DecisionSkipped
		}
	}
	span.SetAttributes(attribute.String("decision", string(out.Decision)))
	g.metrics.RecordGateDecision(ctx, string(out.Decision))

	if out.Decision != DecisionSkipped {
		tr, err := g.transcribe(ctx, u.Samples)
		if err != nil {
			observe.FailSpan(span, err)
			return out, fmt.Errorf("gate: transcribe: %w", err)
		}
		out.Transcript = &tr
	}

	g.record(ctx, u.Source, out)
	observe.Logger(ctx).Debug("utterance gated",
		"id", out.ID,
		"source", u.Source,
		"decision", out.Decision,
		"text_len", len(out.Text()),
	)
	return out, nil
}

// Classify runs only the detector. It returns [ErrDetectorDisabled] when no
// detector is configured and wraps detector errors.
func (g *Gate) Classify(ctx context.Context, u Utterance) (Outcome, error) {
	if len(u.Samples) == 0 {
		return Outcome{}, ErrEmptyInput
	}
	det := g.Detector()
	if det == nil {
		return Outcome{}, ErrDetectorDisabled
	}
	res, err := g.detect(ctx, det, u.Samples)
	if err != nil {
		return Outcome{}, fmt.Errorf("gate: classify: %w", err)
	}
	out := Outcome{ID: uuid.NewString(), Decision: DecisionDetected, Verdict: &res}
	g.record(ctx, u.Source, out)
	return out, nil
}

func (g *Gate) detect(ctx context.Context, det vad.Detector, samples []float32) (vad.Result, error) {
	ctx, span := observe.StartSpan(ctx, "vad.detect")
	defer span.End()

	start := time.Now()
	res, err := det.Detect(samples)
	g.metrics.VADDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		observe.FailSpan(span, err)
		g.metrics.RecordProviderError(ctx, "vad", "detect")
		return vad.Result{}, err
	}

	span.SetAttributes(observe.VerdictAttributes(res)...)
	g.metrics.RecordVerdict(ctx, res.HasSpeech, res.SpeechRatio)
	return res, nil
}

func (g *Gate) transcribe(ctx context.Context, samples []float32) (stt.Transcript, error) {
	ctx, span := observe.StartSpan(ctx, "stt.transcribe", trace.WithAttributes(
		attribute.String("provider", g.providerName),
	))
	defer span.End()

	start := time.Now()
	tr, err := g.transcriber.Transcribe(ctx, samples)
	g.metrics.STTDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		observe.FailSpan(span, err)
		g.metrics.RecordProviderError(ctx, g.providerName, "transcribe")
		return stt.Transcript{}, err
	}
	return tr, nil
}

// record appends out to the verdict log. Failures are logged only.
func (g *Gate) record(ctx context.Context, source string, out Outcome) {
	if g.recorder == nil {
		return
	}
	r := verdict.Record{
		ID:       out.ID,
		Time:     time.Now().UTC(),
		Source:   source,
		Decision: string(out.Decision),
		Verdict:  out.Verdict,
		Text:     out.Text(),
	}
	if out.DetectError != nil {
		r.DetectError = out.DetectError.Error()
	}
	if err := g.recorder.Record(ctx, r); err != nil {
		slog.Warn("gate: failed to record verdict", "id", out.ID, "err", err)
	}
}
