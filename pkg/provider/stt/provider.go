// Package stt defines the Provider interface for Speech-to-Text backends.
//
// A Provider turns one complete utterance (mono float32 PCM at 16 kHz) into a
// Transcript. The transcription gate calls it only for buffers the voice
// activity detector classified as speech, or for every buffer when detection is
// disabled or fails.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"errors"
)

// SampleRate is the sample rate every Provider expects.
const SampleRate = 16000

// ErrEmptyAudio is returned by Transcribe when given no samples.
var ErrEmptyAudio = errors.New("stt: empty audio")

// Provider is the abstraction over any STT backend.
type Provider interface {
	// Transcribe returns the text spoken in samples. samples are mono,
	// SampleRate Hz, normalised to [-1.0, 1.0]. An utterance without
	// recognisable words yields an empty Text and a nil error.
	Transcribe(ctx context.Context, samples []float32) (Transcript, error)
}

// Pinger is implemented by providers that can report whether their backend is
// reachable. It drives readiness checks.
type Pinger interface {
	Ping(ctx context.Context) error
}
