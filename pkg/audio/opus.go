package audio

import (
	"fmt"

	"layeh.com/gopus"
)

// opusMaxFrameMs is the longest frame an Opus packet may carry.
const opusMaxFrameMs = 120

// OpusDecoder decodes a mono Opus stream. Opus decoders can render at any of
// 8, 12, 16, 24 or 48 kHz, so decoding straight to 16 kHz skips resampling.
// Not safe for concurrent use.
type OpusDecoder struct {
	dec       *gopus.Decoder
	rate      int
	frameSize int
}

// NewOpusDecoder creates a decoder that renders packets at sampleRate.
func NewOpusDecoder(sampleRate int) (*OpusDecoder, error) {
	dec, err := gopus.NewDecoder(sampleRate, 1)
	if err != nil {
		return nil, fmt.Errorf("audio: create opus decoder: %w", err)
	}
	return &OpusDecoder{
		dec:       dec,
		rate:      sampleRate,
		frameSize: sampleRate * opusMaxFrameMs / 1000,
	}, nil
}

// Decode decodes one Opus packet.
func (d *OpusDecoder) Decode(packet []byte) (AudioFrame, error) {
	pcm, err := d.dec.Decode(packet, d.frameSize, false)
	if err != nil {
		return AudioFrame{}, fmt.Errorf("audio: opus decode: %w", err)
	}
	return AudioFrame{Data: int16sToBytes(pcm), SampleRate: d.rate, Channels: 1}, nil
}

func int16sToBytes(pcm []int16) []byte {
	b := make([]byte, len(pcm)*2)
	for i, s := range pcm {
		b[i*2] = byte(s)
		b[i*2+1] = byte(s >> 8)
	}
	return b
}
