package vad

import "math"

// sanitize maps a non-finite sample (NaN, ±Inf from upstream glitches) to
// silence. Finite values outside [-1, 1] are clipped to full scale rather than
// rejected: the buffer is still classified, and frame RMS never exceeds 1, the
// top of the fixed threshold range.
func sanitize(s float32) float64 {
	v := float64(s)
	switch {
	case math.IsNaN(v) || math.IsInf(v, 0):
		return 0
	case v > 1:
		return 1
	case v < -1:
		return -1
	}
	return v
}

// sumSquares returns the sum of squared, sanitized samples.
func sumSquares(samples []float32) float64 {
	var sum float64
	for _, s := range samples {
		v := sanitize(s)
		sum += v * v
	}
	return sum
}

// frameEnergy returns sqrt(mean(s²)) over frame, normalised by the frame's own
// length, together with the raw sum of squares. The RMS is 0 for an empty
// frame and is never a non-finite value.
func frameEnergy(frame []float32) (rms, ss float64) {
	if len(frame) == 0 {
		return 0, 0
	}
	ss = sumSquares(frame)
	return math.Sqrt(ss / float64(len(frame))), ss
}
