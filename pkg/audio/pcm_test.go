package audio_test

import (
	"math"
	"testing"

	"github.com/MrWong99/voxgate/pkg/audio"
)

func TestPCM16ToFloat32(t *testing.T) {
	t.Parallel()

	got := audio.PCM16ToFloat32(append(samplesToBytes([]int16{0, 16384, -32768, 32767}), 0xAA))
	want := []float32{0, 0.5, -1, 32767.0 / 32768.0}
	if len(got) != len(want) {
		t.Fatalf("got %d samples, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestFloat32ToPCM16(t *testing.T) {
	t.Parallel()

	inf := float32(math.Inf(1))
	in := []float32{0, 1, -1, 2, -3, float32(math.NaN()), 0.5, inf, -inf}
	got := bytesToSamples(audio.Float32ToPCM16(in))
	want := []int16{0, 32767, -32767, 32767, -32767, 0, 16384, 0, 0}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d (%v) = %d, want %d", i, in[i], got[i], want[i])
		}
	}
}
