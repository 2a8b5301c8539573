package audio

import (
	"fmt"
	"strings"

	"github.com/zaf/g711"
)

// Codec names an audio encoding accepted on the wire.
type Codec string

const (
	// CodecWAV is a RIFF/WAVE container holding PCM. Whole bodies only.
	CodecWAV Codec = "wav"

	// CodecPCM16 is headerless 16-bit signed little-endian mono PCM (L16).
	CodecPCM16 Codec = "pcm16"

	// CodecPCMU is G.711 µ-law, mono.
	CodecPCMU Codec = "pcmu"

	// CodecPCMA is G.711 A-law, mono.
	CodecPCMA Codec = "pcma"

	// CodecOpus is a sequence of raw Opus packets, one per message.
	CodecOpus Codec = "opus"
)

// IsValid reports whether c is a recognised codec.
func (c Codec) IsValid() bool {
	switch c {
	case CodecWAV, CodecPCM16, CodecPCMU, CodecPCMA, CodecOpus:
		return true
	}
	return false
}

// ParseCodec maps a codec name or MIME type to a Codec. Names are matched
// case-insensitively; MIME parameters such as ";rate=8000" are ignored.
func ParseCodec(s string) (Codec, error) {
	base, _, _ := strings.Cut(s, ";")
	switch strings.ToLower(strings.TrimSpace(base)) {
	case "wav", "audio/wav", "audio/wave", "audio/x-wav", "audio/vnd.wave":
		return CodecWAV, nil
	case "pcm16", "l16", "audio/l16", "audio/pcm", "application/octet-stream":
		return CodecPCM16, nil
	case "pcmu", "ulaw", "mulaw", "audio/pcmu", "audio/basic":
		return CodecPCMU, nil
	case "pcma", "alaw", "audio/pcma":
		return CodecPCMA, nil
	case "opus", "audio/opus":
		return CodecOpus, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedCodec, s)
}

// DefaultSampleRate returns the sample rate assumed for c when the caller does
// not state one.
func (c Codec) DefaultSampleRate() int {
	switch c {
	case CodecPCMU, CodecPCMA:
		return 8000
	case CodecOpus:
		return 48000
	}
	return DetectorSampleRate
}

// Decoder turns the encoded payloads of one stream into PCM frames. Stateful
// codecs keep state between calls, so use one Decoder per stream.
type Decoder interface {
	Decode(payload []byte) (AudioFrame, error)
}

// NewDecoder returns a Decoder for packet-oriented codecs. sampleRate is the
// rate of the encoded stream; zero selects the codec's default. WAV is a
// container, not a packet codec; use [DecodeWAV] for it.
func NewDecoder(codec Codec, sampleRate int) (Decoder, error) {
	if sampleRate <= 0 {
		sampleRate = codec.DefaultSampleRate()
	}
	switch codec {
	case CodecPCM16:
		return pcm16Decoder{rate: sampleRate}, nil
	case CodecPCMU:
		return g711Decoder{rate: sampleRate, decode: g711.DecodeUlaw}, nil
	case CodecPCMA:
		return g711Decoder{rate: sampleRate, decode: g711.DecodeAlaw}, nil
	case CodecOpus:
		return NewOpusDecoder(sampleRate)
	}
	return nil, fmt.Errorf("%w: %q has no packet decoder", ErrUnsupportedCodec, codec)
}

type pcm16Decoder struct {
	rate int
}

func (d pcm16Decoder) Decode(payload []byte) (AudioFrame, error) {
	if len(payload)%2 != 0 {
		return AudioFrame{}, fmt.Errorf("audio: pcm16 payload has odd length %d", len(payload))
	}
	return AudioFrame{Data: payload, SampleRate: d.rate, Channels: 1}, nil
}

type g711Decoder struct {
	rate   int
	decode func([]byte) []byte
}

func (d g711Decoder) Decode(payload []byte) (AudioFrame, error) {
	return AudioFrame{Data: d.decode(payload), SampleRate: d.rate, Channels: 1}, nil
}
