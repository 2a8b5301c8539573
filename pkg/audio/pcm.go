package audio

import (
	"encoding/binary"
	"math"
)

// PCM16ToFloat32 converts 16-bit signed little-endian PCM to float32 samples
// normalised to [-1.0, 1.0). A trailing odd byte is ignored.
func PCM16ToFloat32(pcm []byte) []float32 {
	n := len(pcm) / 2
	samples := make([]float32, n)
	for i := range n {
		s := int16(binary.LittleEndian.Uint16(pcm[i*2:]))
		samples[i] = float32(s) / 32768.0
	}
	return samples
}

// Float32ToPCM16 converts normalised float32 samples to 16-bit signed
// little-endian PCM. Finite values outside [-1, 1] are clipped; NaN and ±Inf
// become silence.
func Float32ToPCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := float64(s)
		switch {
		case math.IsNaN(v) || math.IsInf(v, 0):
			v = 0
		case v > 1:
			v = 1
		case v < -1:
			v = -1
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(math.Round(v*32767))))
	}
	return out
}
