package vad

import "iter"

// frames yields consecutive, non-overlapping windows of size samples over
// samples, left to right, together with each window's starting index. The
// last window is shorter than size when len(samples) is not a multiple of
// size; it is yielded as-is rather than padded so a short trailing burst is
// not diluted.
//
// The windows are sub-slices of samples and must not be retained or
// modified. The sequence can be ranged over any number of times.
func frames(samples []float32, size int) iter.Seq2[int, []float32] {
	return func(yield func(int, []float32) bool) {
		if size <= 0 {
			return
		}
		for start := 0; start < len(samples); start += size {
			end := min(start+size, len(samples))
			if !yield(start, samples[start:end:end]) {
				return
			}
		}
	}
}

// frameCount returns how many windows frames yields for n samples.
func frameCount(n, size int) int {
	if n <= 0 || size <= 0 {
		return 0
	}
	return (n + size - 1) / size
}
