// Package audio converts the audio formats voxgate accepts into the detector
// input contract: mono, 16 kHz, float32 samples normalised to [-1.0, 1.0].
//
// Everything in between travels as 16-bit signed little-endian PCM in an
// [AudioFrame]. Decoders turn encoded payloads (G.711, Opus, WAV) into
// frames; [FormatConverter] downmixes and resamples them; [PCM16ToFloat32]
// produces the final sample buffer.
package audio

import (
	"errors"
	"time"
)

// DetectorSampleRate is the sample rate the detector and the transcription
// backends expect.
const DetectorSampleRate = 16000

// DetectorFormat is mono PCM at DetectorSampleRate.
var DetectorFormat = Format{SampleRate: DetectorSampleRate, Channels: 1}

// ErrUnsupportedCodec is returned when a codec or container variant cannot be
// decoded.
var ErrUnsupportedCodec = errors.New("audio: unsupported codec")

// AudioFrame is a chunk of 16-bit signed little-endian PCM.
type AudioFrame struct {
	// Data holds interleaved PCM samples, two bytes each.
	Data []byte

	// SampleRate in Hz (e.g., 8000 for G.711, 48000 for Opus).
	SampleRate int

	// Channels: 1 for mono, 2 for stereo.
	Channels int

	// Timestamp marks when this frame was received, relative to stream start.
	Timestamp time.Duration
}

// Duration returns the playback length of the frame.
func (f AudioFrame) Duration() time.Duration {
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return 0
	}
	samples := len(f.Data) / (2 * f.Channels)
	return time.Duration(samples) * time.Second / time.Duration(f.SampleRate)
}
