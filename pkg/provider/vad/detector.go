package vad

import "fmt"

// Compile-time assertion that EnergyDetector satisfies Detector.
var _ Detector = (*EnergyDetector)(nil)

// EnergyDetector classifies audio by frame RMS energy with a hysteresis
// classifier. It holds only immutable configuration and is safe for
// concurrent use.
type EnergyDetector struct {
	cfg          Config
	frameSize    int
	hangoverSize int
}

// NewEnergyDetector validates cfg and returns a ready detector. The Enabled
// field is ignored; use [New] for the enable/disable decision.
func NewEnergyDetector(cfg Config) (*EnergyDetector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("vad: energy detector: %w", err)
	}
	return &EnergyDetector{
		cfg:          cfg,
		frameSize:    cfg.frameSamples(),
		hangoverSize: cfg.hangoverFrames(),
	}, nil
}

// Config returns the configuration the detector was built with.
func (d *EnergyDetector) Config() Config { return d.cfg }

// Detect implements [Detector].
//
// It makes two passes over the frames: one to measure energies and derive the
// threshold, one to classify. Frame windows are sub-slices of samples, so the
// only allocation is the per-frame energy table.
func (d *EnergyDetector) Detect(samples []float32) (Result, error) {
	if len(samples) == 0 {
		return Result{}, ErrEmptyInput
	}

	n := frameCount(len(samples), d.frameSize)
	buf := make([]float64, 2*n)
	energies, scratch := buf[:n:n], buf[n:]

	var t tally
	for start, frame := range frames(samples, d.frameSize) {
		rms, ss := frameEnergy(frame)
		energies[start/d.frameSize] = rms
		t.sumSquares += ss
	}

	threshold := estimateThreshold(d.cfg, energies, scratch)

	cls := newClassifier(d.hangoverSize)
	for start, frame := range frames(samples, d.frameSize) {
		t.add(len(frame), cls.step(energies[start/d.frameSize], threshold))
	}

	return t.result(d.cfg, threshold, n), nil
}
