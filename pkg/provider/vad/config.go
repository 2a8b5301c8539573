package vad

import (
	"errors"
	"fmt"
	"math"
)

// ThresholdMode selects how the per-frame energy threshold is derived.
type ThresholdMode string

const (
	// ThresholdFixed uses Config.FixedThreshold regardless of the input.
	ThresholdFixed ThresholdMode = "fixed"

	// ThresholdAdaptive scales a low percentile of the buffer's frame energies
	// by Config.AdaptiveMultiplier, tracking the ambient noise floor.
	ThresholdAdaptive ThresholdMode = "adaptive"
)

// IsValid reports whether m is a recognised threshold mode.
func (m ThresholdMode) IsValid() bool {
	return m == ThresholdFixed || m == ThresholdAdaptive
}

// Decision selects how the ratio and duration minimums combine into the final
// verdict.
type Decision string

const (
	// DecisionAny reports speech when either minimum is met. A short loud burst
	// in a long silent buffer and a quiet but sustained presence both count.
	DecisionAny Decision = "any"

	// DecisionAll reports speech only when both minimums are met.
	DecisionAll Decision = "all"
)

// IsValid reports whether d is a recognised decision policy.
func (d Decision) IsValid() bool {
	return d == DecisionAny || d == DecisionAll
}

// Default parameter values. They are tunable; the property tests in this
// package pin the behaviour that matters, not these exact numbers.
const (
	DefaultSampleRate          = 16000
	DefaultFrameDurationMs     = 20
	DefaultMinSpeechRatio      = 0.1
	DefaultMinSpeechDurationMs = 250
	DefaultFixedThreshold      = 0.01 // ≈ -40 dBFS
	DefaultAdaptiveMultiplier  = 3.0
	DefaultAdaptivePercentile  = 0.15
	DefaultAdaptiveFloor       = 0.001
	DefaultAdaptiveCeiling     = 0.05
	DefaultHangoverMs          = 100
)

// Upper bounds enforced by [Config.Validate]. They keep frame and hangover
// arithmetic well inside int range.
const (
	MaxSampleRate      = 384000
	MaxFrameDurationMs = 1000
	MaxHangoverMs      = 60000
)

// Config holds the parameters of a detector. It is passed by value and never
// modified by the detector.
type Config struct {
	// Enabled turns the subsystem on. When false, [New] returns no detector.
	Enabled bool

	// SampleRate is the input sample rate in Hz. Default: 16000.
	SampleRate int

	// FrameDurationMs is the analysis window length. Default: 20.
	FrameDurationMs int

	// MinSpeechRatio is the speech fraction of the buffer at or above which the
	// buffer counts as speech. Range: (0, 1].
	MinSpeechRatio float64

	// MinSpeechDurationMs is the absolute amount of speech at or above which the
	// buffer counts as speech. Must be positive.
	MinSpeechDurationMs int

	// ThresholdMode selects fixed or adaptive thresholding.
	ThresholdMode ThresholdMode

	// FixedThreshold is the frame RMS above which a frame is loud, used in
	// fixed mode. Range: (0, 1].
	FixedThreshold float64

	// AdaptiveMultiplier scales the noise floor in adaptive mode. Must be ≥ 1.
	AdaptiveMultiplier float64

	// AdaptivePercentile picks the noise-floor frame energy in adaptive mode.
	// Range: [0, 0.5].
	AdaptivePercentile float64

	// AdaptiveFloor is the lowest threshold adaptive mode may produce. It keeps
	// uniformly silent buffers from collapsing the threshold to zero.
	AdaptiveFloor float64

	// AdaptiveCeiling is the highest threshold adaptive mode may produce. It
	// keeps buffers that are loud throughout classifiable as speech.
	AdaptiveCeiling float64

	// HangoverMs is how long the classifier stays in speech after the last
	// loud frame. Zero disables hangover.
	HangoverMs int

	// Decision combines MinSpeechRatio and MinSpeechDurationMs. Default: any.
	Decision Decision
}

// DefaultConfig returns a disabled configuration populated with the default
// parameters. Set Enabled to obtain a working detector from [New].
func DefaultConfig() Config {
	return Config{
		SampleRate:          DefaultSampleRate,
		FrameDurationMs:     DefaultFrameDurationMs,
		MinSpeechRatio:      DefaultMinSpeechRatio,
		MinSpeechDurationMs: DefaultMinSpeechDurationMs,
		ThresholdMode:       ThresholdFixed,
		FixedThreshold:      DefaultFixedThreshold,
		AdaptiveMultiplier:  DefaultAdaptiveMultiplier,
		AdaptivePercentile:  DefaultAdaptivePercentile,
		AdaptiveFloor:       DefaultAdaptiveFloor,
		AdaptiveCeiling:     DefaultAdaptiveCeiling,
		HangoverMs:          DefaultHangoverMs,
		Decision:            DecisionAny,
	}
}

// Validate checks every field and returns a joined error listing all
// failures. Each failure wraps [ErrInvalidConfig].
func (c Config) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
	}

	rateOK := c.SampleRate > 0 && c.SampleRate <= MaxSampleRate
	if !rateOK {
		bad("sample_rate %d is out of range (0, %d]", c.SampleRate, MaxSampleRate)
	}
	if c.FrameDurationMs <= 0 || c.FrameDurationMs > MaxFrameDurationMs {
		bad("frame_duration_ms %d is out of range (0, %d]", c.FrameDurationMs, MaxFrameDurationMs)
	} else if rateOK && c.SampleRate*c.FrameDurationMs/1000 < 1 {
		bad("frame_duration_ms %d is shorter than one sample at %d Hz", c.FrameDurationMs, c.SampleRate)
	}
	if !inRange(c.MinSpeechRatio, 0, 1) || c.MinSpeechRatio <= 0 {
		bad("min_speech_ratio %.3f is out of range (0, 1]", c.MinSpeechRatio)
	}
	if c.MinSpeechDurationMs <= 0 {
		bad("min_speech_duration_ms %d must be positive", c.MinSpeechDurationMs)
	}
	if c.HangoverMs < 0 || c.HangoverMs > MaxHangoverMs {
		bad("hangover_ms %d is out of range [0, %d]", c.HangoverMs, MaxHangoverMs)
	}
	if !c.Decision.IsValid() {
		bad("decision %q is invalid; valid values: any, all", c.Decision)
	}

	switch c.ThresholdMode {
	case ThresholdFixed:
		if !inRange(c.FixedThreshold, 0, 1) || c.FixedThreshold <= 0 {
			bad("fixed_threshold %.4f is out of range (0, 1]", c.FixedThreshold)
		}
	case ThresholdAdaptive:
		if !finite(c.AdaptiveMultiplier) || c.AdaptiveMultiplier < 1 {
			bad("adaptive_multiplier %.3f must be at least 1", c.AdaptiveMultiplier)
		}
		if !inRange(c.AdaptivePercentile, 0, 0.5) {
			bad("adaptive_percentile %.3f is out of range [0, 0.5]", c.AdaptivePercentile)
		}
		if !inRange(c.AdaptiveFloor, 0, 1) || c.AdaptiveFloor <= 0 {
			bad("adaptive_floor %.4f is out of range (0, 1]", c.AdaptiveFloor)
		}
		if !inRange(c.AdaptiveCeiling, 0, 1) || c.AdaptiveCeiling < c.AdaptiveFloor {
			bad("adaptive_ceiling %.4f must be in [adaptive_floor, 1]", c.AdaptiveCeiling)
		}
	default:
		bad("threshold_mode %q is invalid; valid values: fixed, adaptive", c.ThresholdMode)
	}

	return errors.Join(errs...)
}

// frameSamples returns the nominal frame length in samples.
func (c Config) frameSamples() int {
	return c.SampleRate * c.FrameDurationMs / 1000
}

// hangoverFrames converts HangoverMs into whole frames, rounding up so that a
// dip as long as HangoverMs is always bridged.
func (c Config) hangoverFrames() int {
	if c.HangoverMs <= 0 {
		return 0
	}
	return (c.HangoverMs + c.FrameDurationMs - 1) / c.FrameDurationMs
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func inRange(v, lo, hi float64) bool {
	return finite(v) && v >= lo && v <= hi
}
