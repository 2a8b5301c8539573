package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/zaf/g711"
)

// ErrInvalidWAV is returned when a buffer is not a well-formed RIFF/WAVE file.
var ErrInvalidWAV = errors.New("audio: invalid wav")

// WAV format tags.
const (
	wavFormatPCM        = 0x0001
	wavFormatFloat      = 0x0003
	wavFormatALaw       = 0x0006
	wavFormatMuLaw      = 0x0007
	wavFormatExtensible = 0xFFFE
)

const wavHeaderSize = 44

type wavFormat struct {
	tag           uint16
	channels      int
	sampleRate    int
	bitsPerSample int
}

// DecodeWAV parses a RIFF/WAVE file and returns its samples as 16-bit PCM.
// Supported encodings: 8/16-bit integer PCM, 32-bit float, µ-law and A-law.
// Unknown chunks are skipped. A data chunk whose declared size runs past the
// end of the buffer is truncated to what is present, as streaming writers
// often leave the size unset.
func DecodeWAV(data []byte) (AudioFrame, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return AudioFrame{}, fmt.Errorf("%w: missing RIFF/WAVE header", ErrInvalidWAV)
	}

	var (
		fmtChunk *wavFormat
		payload  []byte
	)
	for off := 12; off+8 <= len(data); {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		body := data[off+8:]
		if size < 0 || size > len(body) {
			size = len(body)
		}
		body = body[:size]

		switch id {
		case "fmt ":
			f, err := parseWAVFormat(body)
			if err != nil {
				return AudioFrame{}, err
			}
			fmtChunk = &f
		case "data":
			payload = body
		}
		if payload != nil && fmtChunk != nil {
			break
		}
		off += 8 + size + size%2 // chunks are word aligned
	}

	if fmtChunk == nil {
		return AudioFrame{}, fmt.Errorf("%w: no fmt chunk", ErrInvalidWAV)
	}
	if payload == nil {
		return AudioFrame{}, fmt.Errorf("%w: no data chunk", ErrInvalidWAV)
	}

	pcm, err := wavToPCM16(*fmtChunk, payload)
	if err != nil {
		return AudioFrame{}, err
	}
	return AudioFrame{Data: pcm, SampleRate: fmtChunk.sampleRate, Channels: fmtChunk.channels}, nil
}

func parseWAVFormat(b []byte) (wavFormat, error) {
	if len(b) < 16 {
		return wavFormat{}, fmt.Errorf("%w: fmt chunk is %d bytes", ErrInvalidWAV, len(b))
	}
	f := wavFormat{
		tag:           binary.LittleEndian.Uint16(b[0:2]),
		channels:      int(binary.LittleEndian.Uint16(b[2:4])),
		sampleRate:    int(binary.LittleEndian.Uint32(b[4:8])),
		bitsPerSample: int(binary.LittleEndian.Uint16(b[14:16])),
	}
	if f.tag == wavFormatExtensible && len(b) >= 26 {
		// The sub-format GUID starts with the plain format tag.
		f.tag = binary.LittleEndian.Uint16(b[24:26])
	}
	if f.channels <= 0 || f.sampleRate <= 0 {
		return wavFormat{}, fmt.Errorf("%w: %d channels at %d Hz", ErrInvalidWAV, f.channels, f.sampleRate)
	}
	return f, nil
}

func wavToPCM16(f wavFormat, data []byte) ([]byte, error) {
	switch {
	case f.tag == wavFormatPCM && f.bitsPerSample == 16:
		return data[:len(data)-len(data)%(2*f.channels)], nil

	case f.tag == wavFormatPCM && f.bitsPerSample == 8:
		out := make([]byte, len(data)*2)
		for i, u := range data {
			s := int16(int(u)-128) << 8
			out[i*2] = byte(s)
			out[i*2+1] = byte(s >> 8)
		}
		return out, nil

	case f.tag == wavFormatFloat && f.bitsPerSample == 32:
		samples := make([]float32, len(data)/4)
		for i := range samples {
			samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
		}
		return Float32ToPCM16(samples), nil

	case f.tag == wavFormatMuLaw && f.bitsPerSample == 8:
		return g711.DecodeUlaw(data), nil

	case f.tag == wavFormatALaw && f.bitsPerSample == 8:
		return g711.DecodeAlaw(data), nil
	}
	return nil, fmt.Errorf("%w: wav format 0x%04x with %d bits per sample", ErrUnsupportedCodec, f.tag, f.bitsPerSample)
}

// EncodeWAV wraps 16-bit signed little-endian PCM data in a canonical
// 44-byte-header RIFF/WAV container.
func EncodeWAV(pcm []byte, sampleRate, channels int) []byte {
	const bps = 16
	byteRate := sampleRate * channels * bps / 8
	blockAlign := channels * bps / 8
	dataSize := len(pcm)

	buf := make([]byte, wavHeaderSize+dataSize)

	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize))
	copy(buf[8:12], "WAVE")

	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], wavFormatPCM)
	binary.LittleEndian.PutUint16(buf[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], bps)

	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	copy(buf[wavHeaderSize:], pcm)

	return buf
}

// EncodeSamplesWAV encodes normalised mono samples as a 16-bit WAV file.
func EncodeSamplesWAV(samples []float32, sampleRate int) []byte {
	return EncodeWAV(Float32ToPCM16(samples), sampleRate, 1)
}
