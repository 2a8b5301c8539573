package vad

// New builds the detector described by cfg.
//
// When cfg.Enabled is false New returns (nil, nil): there is no detector and
// the caller must treat every buffer as speech. That is not an error.
// Configuration is validated once here, not on every Detect call; failures
// wrap [ErrInvalidConfig].
func New(cfg Config) (Detector, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	d, err := NewEnergyDetector(cfg)
	if err != nil {
		return nil, err
	}
	return d, nil
}
