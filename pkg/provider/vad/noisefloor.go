package vad

import (
	"math"
	"slices"
)

// estimateThreshold returns the effective frame-energy threshold for one call.
//
// In fixed mode the configured constant is returned unchanged. In adaptive
// mode the threshold is AdaptiveMultiplier times the AdaptivePercentile frame
// energy, clamped to [AdaptiveFloor, AdaptiveCeiling]. A low percentile tracks
// the ambient noise without being pulled up by the loud speech frames.
//
// scratch must have len(energies) capacity; it receives a sorted copy so the
// caller's energies keep their frame order. A single frame is enough to
// produce a threshold; with no frames adaptive mode yields the floor.
func estimateThreshold(cfg Config, energies, scratch []float64) float64 {
	if cfg.ThresholdMode != ThresholdAdaptive {
		return cfg.FixedThreshold
	}
	baseline := percentile(energies, scratch, cfg.AdaptivePercentile)
	return clamp(cfg.AdaptiveMultiplier*baseline, cfg.AdaptiveFloor, cfg.AdaptiveCeiling)
}

// percentile returns the nearest-rank p-quantile (p in [0, 1]) of values.
func percentile(values, scratch []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append(scratch[:0], values...)
	slices.Sort(sorted)
	idx := int(math.Floor(p * float64(len(sorted)-1)))
	idx = max(0, min(idx, len(sorted)-1))
	return sorted[idx]
}

func clamp(v, lo, hi float64) float64 {
	return max(lo, min(v, hi))
}
