package audio_test

import (
	"encoding/binary"
	"errors"
	"math"
	"slices"
	"testing"

	"github.com/MrWong99/voxgate/pkg/audio"
)

// wavWith builds a WAV file with an arbitrary fmt chunk body and payload,
// preceded by an odd-sized LIST chunk to exercise chunk skipping.
func wavWith(tag, channels uint16, rate uint32, bits uint16, payload []byte) []byte {
	fmtBody := make([]byte, 16)
	binary.LittleEndian.PutUint16(fmtBody[0:], tag)
	binary.LittleEndian.PutUint16(fmtBody[2:], channels)
	binary.LittleEndian.PutUint32(fmtBody[4:], rate)
	binary.LittleEndian.PutUint16(fmtBody[14:], bits)

	var b []byte
	b = append(b, "RIFF\x00\x00\x00\x00WAVE"...)
	b = appendChunk(b, "LIST", []byte("abc"))
	b = appendChunk(b, "fmt ", fmtBody)
	b = appendChunk(b, "data", payload)
	binary.LittleEndian.PutUint32(b[4:], uint32(len(b)-8))
	return b
}

func appendChunk(b []byte, id string, body []byte) []byte {
	b = append(b, id...)
	b = binary.LittleEndian.AppendUint32(b, uint32(len(body)))
	b = append(b, body...)
	if len(body)%2 == 1 {
		b = append(b, 0)
	}
	return b
}

func TestWAV_RoundTrip(t *testing.T) {
	t.Parallel()

	pcm := samplesToBytes([]int16{0, 1000, -1000, 32767, -32768, 5})
	frame, err := audio.DecodeWAV(audio.EncodeWAV(pcm, 22050, 2))
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if frame.SampleRate != 22050 || frame.Channels != 2 {
		t.Errorf("format %dHz %dch, want 22050Hz stereo", frame.SampleRate, frame.Channels)
	}
	if !slices.Equal(frame.Data, pcm) {
		t.Errorf("data = %v, want %v", frame.Data, pcm)
	}
}

func TestEncodeSamplesWAV(t *testing.T) {
	t.Parallel()

	wav := audio.EncodeSamplesWAV([]float32{0, 0.5, -0.5}, 16000)
	if len(wav) != 44+6 {
		t.Fatalf("len = %d, want 50", len(wav))
	}
	frame, err := audio.DecodeWAV(wav)
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if got := bytesToSamples(frame.Data); !slices.Equal(got, []int16{0, 16384, -16384}) {
		t.Errorf("samples = %v", got)
	}
}

func TestDecodeWAV_Encodings(t *testing.T) {
	t.Parallel()

	floatPayload := make([]byte, 8)
	binary.LittleEndian.PutUint32(floatPayload[0:], math.Float32bits(0.5))
	binary.LittleEndian.PutUint32(floatPayload[4:], math.Float32bits(-1))

	infPayload := make([]byte, 12)
	binary.LittleEndian.PutUint32(infPayload[0:], math.Float32bits(float32(math.Inf(1))))
	binary.LittleEndian.PutUint32(infPayload[4:], math.Float32bits(float32(math.Inf(-1))))
	binary.LittleEndian.PutUint32(infPayload[8:], math.Float32bits(float32(math.NaN())))

	tests := []struct {
		name string
		file []byte
		want []int16
	}{
		{"pcm16 with extra chunk", wavWith(1, 1, 16000, 16, samplesToBytes([]int16{7, -7})), []int16{7, -7}},
		{"pcm8", wavWith(1, 1, 8000, 8, []byte{128, 255, 0}), []int16{0, 127 << 8, -128 << 8}},
		{"float32", wavWith(3, 1, 16000, 32, floatPayload), []int16{16384, -32767}},
		{"float32 non-finite is silence", wavWith(3, 1, 16000, 32, infPayload), []int16{0, 0, 0}},
		{"mu-law", wavWith(7, 1, 8000, 8, []byte{0xFF, 0x7F}), []int16{0, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			frame, err := audio.DecodeWAV(tt.file)
			if err != nil {
				t.Fatalf("DecodeWAV: %v", err)
			}
			if got := bytesToSamples(frame.Data); !slices.Equal(got, tt.want) {
				t.Errorf("samples = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDecodeWAV_Truncated(t *testing.T) {
	t.Parallel()

	// Streaming writers leave the data size at its maximum.
	file := audio.EncodeWAV(samplesToBytes([]int16{1, 2, 3}), 16000, 1)
	binary.LittleEndian.PutUint32(file[40:], 0xFFFFFFFF)
	frame, err := audio.DecodeWAV(file)
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if got := bytesToSamples(frame.Data); !slices.Equal(got, []int16{1, 2, 3}) {
		t.Errorf("samples = %v", got)
	}
}

func TestDecodeWAV_Errors(t *testing.T) {
	t.Parallel()

	noData := wavWith(1, 1, 16000, 16, nil)[:12+12+24] // header + LIST + fmt only

	tests := []struct {
		name    string
		file    []byte
		wantErr error
	}{
		{"empty", nil, audio.ErrInvalidWAV},
		{"not riff", []byte("RIFX\x00\x00\x00\x00WAVEfmt "), audio.ErrInvalidWAV},
		{"no fmt chunk", append([]byte("RIFF\x00\x00\x00\x00WAVE"), "data\x02\x00\x00\x00\x01\x02"...), audio.ErrInvalidWAV},
		{"no data chunk", noData, audio.ErrInvalidWAV},
		{"zero channels", wavWith(1, 0, 16000, 16, []byte{0, 0}), audio.ErrInvalidWAV},
		{"24-bit pcm", wavWith(1, 1, 16000, 24, []byte{0, 0, 0}), audio.ErrUnsupportedCodec},
		{"adpcm", wavWith(2, 1, 16000, 4, []byte{0}), audio.ErrUnsupportedCodec},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := audio.DecodeWAV(tt.file)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
