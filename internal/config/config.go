// Package config provides the configuration schema, loader, hot-reload
// watcher and transcription backend registry for the voxgate service.
package config

import (
	"time"

	"github.com/MrWong99/voxgate/pkg/audio"
	"github.com/MrWong99/voxgate/pkg/provider/vad"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure. It is typically loaded from a
// YAML file using [Load] or [LoadFromReader]; fields absent from the file keep
// the values from [Default].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	VAD       VADConfig       `yaml:"vad"`
	STT       STTConfig       `yaml:"stt"`
	Verdicts  VerdictsConfig  `yaml:"verdicts"`
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// STTFallbacks are tried in order when the primary backend fails or its
	// circuit breaker is open.
	STTFallbacks []STTConfig   `yaml:"stt_fallbacks"`
	Breaker      BreakerConfig `yaml:"breaker"`
}

// ServerConfig holds network, logging and request-limit settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the HTTP server listens on (e.g. ":8080").
	ListenAddr string `yaml:"listen_addr"`

	LogLevel LogLevel `yaml:"log_level"`

	// MaxBodyBytes caps the size of an uploaded audio body and of the audio
	// accumulated on one stream. Detection has no cancellation, so this is
	// the bound on how long a single Detect call can run.
	MaxBodyBytes int64 `yaml:"max_body_bytes"`

	// MaxConcurrent is the number of transcriptions allowed in flight.
	MaxConcurrent int64 `yaml:"max_concurrent"`

	// ShutdownTimeout is how long in-flight requests get on shutdown.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// VADConfig is the YAML form of [vad.Config]. The sample rate is not
// configurable: every input is resampled to [audio.DetectorSampleRate].
type VADConfig struct {
	Enabled             bool              `yaml:"enabled"`
	FrameDurationMs     int               `yaml:"frame_duration_ms"`
	MinSpeechRatio      float64           `yaml:"min_speech_ratio"`
	MinSpeechDurationMs int               `yaml:"min_speech_duration_ms"`
	ThresholdMode       vad.ThresholdMode `yaml:"threshold_mode"`
	FixedThreshold      float64           `yaml:"fixed_threshold"`
	AdaptiveMultiplier  float64           `yaml:"adaptive_multiplier"`
	AdaptivePercentile  float64           `yaml:"adaptive_percentile"`
	AdaptiveFloor       float64           `yaml:"adaptive_floor"`
	AdaptiveCeiling     float64           `yaml:"adaptive_ceiling"`
	HangoverMs          int               `yaml:"hangover_ms"`
	Decision            vad.Decision      `yaml:"decision"`
}

func defaultVAD() VADConfig {
	d := vad.DefaultConfig()
	return VADConfig{
		Enabled:             d.Enabled,
		FrameDurationMs:     d.FrameDurationMs,
		MinSpeechRatio:      d.MinSpeechRatio,
		MinSpeechDurationMs: d.MinSpeechDurationMs,
		ThresholdMode:       d.ThresholdMode,
		FixedThreshold:      d.FixedThreshold,
		AdaptiveMultiplier:  d.AdaptiveMultiplier,
		AdaptivePercentile:  d.AdaptivePercentile,
		AdaptiveFloor:       d.AdaptiveFloor,
		AdaptiveCeiling:     d.AdaptiveCeiling,
		HangoverMs:          d.HangoverMs,
		Decision:            d.Decision,
	}
}

// DetectorConfig converts c into the detector's own configuration type,
// pinned to the rate the audio pipeline delivers.
func (c VADConfig) DetectorConfig() vad.Config {
	return vad.Config{
		Enabled:             c.Enabled,
		SampleRate:          audio.DetectorSampleRate,
		FrameDurationMs:     c.FrameDurationMs,
		MinSpeechRatio:      c.MinSpeechRatio,
		MinSpeechDurationMs: c.MinSpeechDurationMs,
		ThresholdMode:       c.ThresholdMode,
		FixedThreshold:      c.FixedThreshold,
		AdaptiveMultiplier:  c.AdaptiveMultiplier,
		AdaptivePercentile:  c.AdaptivePercentile,
		AdaptiveFloor:       c.AdaptiveFloor,
		AdaptiveCeiling:     c.AdaptiveCeiling,
		HangoverMs:          c.HangoverMs,
		Decision:            c.Decision,
	}
}

// STTConfig selects and configures the transcription backend. The Name field
// is used to look up the constructor in the [Registry]; an empty Name runs the
// service in detect-only mode.
type STTConfig struct {
	// Name selects the backend: "whisper", "whisper-native" or "openai".
	Name string `yaml:"name"`

	// BaseURL is the whisper.cpp server URL, or an override of the OpenAI
	// API endpoint.
	BaseURL string `yaml:"base_url"`

	// APIKey authenticates against hosted backends. ${VAR} references are
	// expanded from the environment.
	APIKey string `yaml:"api_key"`

	Model    string `yaml:"model"`
	Language string `yaml:"language"`

	// ModelPath is the ggml model file for the whisper-native backend.
	ModelPath string `yaml:"model_path"`

	// Threads is the whisper-native inference thread count. Zero keeps the
	// library default.
	Threads int `yaml:"threads"`

	// Timeout bounds one transcription request. Zero keeps the backend default.
	Timeout time.Duration `yaml:"timeout"`
}

// VerdictsConfig configures the verdict log. With neither field set no
// verdicts are recorded.
type VerdictsConfig struct {
	// Path is a JSON-lines file that verdicts are appended to.
	Path string `yaml:"path"`

	// PostgresDSN selects the PostgreSQL store instead of the file. ${VAR}
	// references are expanded from the environment.
	PostgresDSN string `yaml:"postgres_dsn"`
}

// Enabled reports whether any verdict store is configured.
func (c VerdictsConfig) Enabled() bool {
	return c.Path != "" || c.PostgresDSN != ""
}

// BreakerConfig tunes the circuit breaker kept per transcription backend.
type BreakerConfig struct {
	// MaxFailures is the number of consecutive failures that opens the breaker.
	MaxFailures int `yaml:"max_failures"`

	// ResetTimeout is how long an open breaker rejects calls before probing.
	ResetTimeout time.Duration `yaml:"reset_timeout"`

	// HalfOpenMax is the number of successful probes needed to close again.
	HalfOpenMax int `yaml:"half_open_max"`
}

// TelemetryConfig holds OpenTelemetry resource settings.
type TelemetryConfig struct {
	ServiceName string `yaml:"service_name"`
}

// Default returns the configuration used for every field a file leaves out.
// VAD is disabled, so every buffer is transcribed until it is switched on.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr:      ":8080",
			LogLevel:        LogInfo,
			MaxBodyBytes:    32 << 20,
			MaxConcurrent:   4,
			ShutdownTimeout: 10 * time.Second,
		},
		VAD:       defaultVAD(),
		Telemetry: TelemetryConfig{ServiceName: "voxgate"},
		Breaker: BreakerConfig{
			MaxFailures:  5,
			ResetTimeout: 30 * time.Second,
			HalfOpenMax:  3,
		},
	}
}
