package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// Transcription backend names understood by the default registry.
const (
	STTWhisper       = "whisper"
	STTWhisperNative = "whisper-native"
	STTOpenAI        = "openai"
)

// ValidSTTNames lists the built-in backend names. [Validate] warns about any
// other name, since a third-party backend may be registered under it.
var ValidSTTNames = []string{STTWhisper, STTWhisperNative, STTOpenAI}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r on top of [Default], expands
// environment references in secrets and validates the result. An empty
// document yields the defaults.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	cfg.STT.APIKey = os.ExpandEnv(cfg.STT.APIKey)
	for i := range cfg.STTFallbacks {
		cfg.STTFallbacks[i].APIKey = os.ExpandEnv(cfg.STTFallbacks[i].APIKey)
	}
	cfg.Verdicts.PostgresDSN = os.ExpandEnv(cfg.Verdicts.PostgresDSN)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values. It returns a
// joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.ListenAddr == "" {
		errs = append(errs, errors.New("server.listen_addr is required"))
	}
	if cfg.Server.MaxBodyBytes <= 0 {
		errs = append(errs, fmt.Errorf("server.max_body_bytes %d must be positive", cfg.Server.MaxBodyBytes))
	}
	if cfg.Server.MaxConcurrent <= 0 {
		errs = append(errs, fmt.Errorf("server.max_concurrent %d must be positive", cfg.Server.MaxConcurrent))
	}
	if cfg.Server.ShutdownTimeout < 0 {
		errs = append(errs, fmt.Errorf("server.shutdown_timeout %s must not be negative", cfg.Server.ShutdownTimeout))
	}

	// A disabled detector is never built, so its parameters are not checked.
	if cfg.VAD.Enabled {
		if err := cfg.VAD.DetectorConfig().Validate(); err != nil {
			errs = append(errs, fmt.Errorf("vad: %w", err))
		}
	}

	errs = append(errs, validateSTT("stt", cfg.STT)...)
	for i, fb := range cfg.STTFallbacks {
		prefix := fmt.Sprintf("stt_fallbacks[%d]", i)
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
			continue
		}
		errs = append(errs, validateSTT(prefix, fb)...)
	}
	if len(cfg.STTFallbacks) > 0 && cfg.STT.Name == "" {
		errs = append(errs, errors.New("stt_fallbacks requires a primary stt.name"))
	}
	if cfg.Breaker.MaxFailures <= 0 {
		errs = append(errs, fmt.Errorf("breaker.max_failures %d must be positive", cfg.Breaker.MaxFailures))
	}
	if cfg.Breaker.ResetTimeout <= 0 {
		errs = append(errs, fmt.Errorf("breaker.reset_timeout %s must be positive", cfg.Breaker.ResetTimeout))
	}
	if cfg.Breaker.HalfOpenMax <= 0 {
		errs = append(errs, fmt.Errorf("breaker.half_open_max %d must be positive", cfg.Breaker.HalfOpenMax))
	}

	if cfg.Verdicts.Path != "" && cfg.Verdicts.PostgresDSN != "" {
		errs = append(errs, errors.New("verdicts: set either path or postgres_dsn, not both"))
	}

	return errors.Join(errs...)
}

func validateSTT(prefix string, c STTConfig) []error {
	if c.Name == "" {
		return nil
	}
	if !slices.Contains(ValidSTTNames, c.Name) {
		slog.Warn("unknown stt backend name, may be a typo or third-party backend",
			"key", prefix+".name",
			"name", c.Name,
			"known", ValidSTTNames,
		)
	}

	var errs []error
	switch c.Name {
	case STTWhisper:
		if c.BaseURL == "" {
			errs = append(errs, fmt.Errorf("%s.base_url is required for the whisper backend", prefix))
		}
	case STTWhisperNative:
		if c.ModelPath == "" {
			errs = append(errs, fmt.Errorf("%s.model_path is required for the whisper-native backend", prefix))
		}
	case STTOpenAI:
		if c.APIKey == "" && os.Getenv("OPENAI_API_KEY") == "" {
			slog.Warn(prefix + ".api_key is empty and OPENAI_API_KEY is unset; openai requests will fail")
		}
	}
	if c.Threads < 0 {
		errs = append(errs, fmt.Errorf("%s.threads %d must not be negative", prefix, c.Threads))
	}
	if c.Timeout < 0 {
		errs = append(errs, fmt.Errorf("%s.timeout %s must not be negative", prefix, c.Timeout))
	}
	return errs
}
