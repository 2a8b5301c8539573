package config

import "slices"

// ConfigDiff describes what changed between two configs.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// VADChanged means the detector must be rebuilt. This is applied live.
	VADChanged bool

	// STTChanged, VerdictsChanged and ServerChanged cover settings that are
	// only picked up on restart.
	STTChanged      bool
	VerdictsChanged bool
	ServerChanged   bool
}

// RestartRequired reports whether d contains changes that cannot be applied
// to a running process.
func (d ConfigDiff) RestartRequired() bool {
	return d.STTChanged || d.VerdictsChanged || d.ServerChanged
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{
		VADChanged:      old.VAD != new.VAD,
		VerdictsChanged: old.Verdicts != new.Verdicts,
	}
	d.STTChanged = old.STT != new.STT ||
		old.Breaker != new.Breaker ||
		!slices.Equal(old.STTFallbacks, new.STTFallbacks)
	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	o, n := old.Server, new.Server
	o.LogLevel, n.LogLevel = "", ""
	d.ServerChanged = o != n
	return d
}
