// Package vad defines the Detector interface for Voice Activity Detection and
// ships the energy-based implementation used to gate transcription.
//
// A Detector classifies one complete audio buffer as "contains speech" or
// "silence/noise only" and reports supporting metrics. The only built-in
// implementation, [EnergyDetector], slices the buffer into fixed-duration
// frames, measures each frame's RMS energy, derives a threshold from a fixed
// value or the buffer's own noise floor, and runs a two-state hysteresis
// classifier so that brief dips inside an utterance do not split it.
//
// Detection is synchronous and CPU-bound. A Detector holds no state that spans
// calls, so a single instance may be shared across goroutines without locking.
// There is no cancellation: callers that need a time bound must bound the
// buffer size upstream.
//
// Callers obtain detectors through [New]. When VAD is disabled New returns a nil
// Detector, which callers must treat as "always assume speech".
package vad

import "errors"

// ErrEmptyInput is returned by Detect when it is given a zero-length buffer.
// Speech ratio and duration are undefined for empty input, so the condition is
// always surfaced instead of being coerced into a result.
var ErrEmptyInput = errors.New("vad: empty input")

// ErrInvalidConfig is wrapped by every configuration validation failure
// reported by [Config.Validate] and [New].
var ErrInvalidConfig = errors.New("vad: invalid config")

// Detector is the abstraction over any voice activity detector.
//
// Implementations must be safe for concurrent use and must not mutate samples.
type Detector interface {
	// Detect classifies samples (mono float32 PCM at the configured sample rate,
	// normalised to [-1.0, 1.0]) and returns the verdict with its metrics.
	// Returns ErrEmptyInput when len(samples) == 0.
	Detect(samples []float32) (Result, error)
}

// Result is the verdict for one audio buffer. It is a value type and is never
// modified after Detect returns it.
type Result struct {
	// HasSpeech is the final verdict.
	HasSpeech bool `json:"has_speech"`

	// SpeechDurationSecs is the total duration of all frames classified as
	// speech. Never exceeds TotalDurationSecs.
	SpeechDurationSecs float64 `json:"speech_duration_secs"`

	// SpeechRatio is SpeechDurationSecs / TotalDurationSecs, in [0, 1].
	SpeechRatio float64 `json:"speech_ratio"`

	// RMSEnergy is the RMS level across every sample of the buffer.
	RMSEnergy float64 `json:"rms_energy"`

	// TotalDurationSecs is the duration of the whole buffer.
	TotalDurationSecs float64 `json:"total_duration_secs"`

	// Threshold is the effective per-frame energy threshold used for this call.
	Threshold float64 `json:"threshold"`

	// Frames is the number of analysis frames the buffer was split into.
	Frames int `json:"frames"`
}
