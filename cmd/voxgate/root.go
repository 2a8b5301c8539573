package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/MrWong99/voxgate/internal/config"
	"github.com/MrWong99/voxgate/pkg/provider/stt"
	"github.com/MrWong99/voxgate/pkg/provider/stt/openai"
	"github.com/MrWong99/voxgate/pkg/provider/stt/whisper"
)

func newRootCmd() *cobra.Command {
	var cfgFile string

	root := &cobra.Command{
		Use:   "voxgate",
		Short: "Energy-based speech gate in front of speech-to-text",
		Long: `voxgate decides whether a buffer of audio contains speech before it is
handed to a transcription backend. Silent buffers are skipped; speech is
forwarded to the configured STT provider.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "config.yaml", "path to the YAML configuration file")

	root.AddCommand(newServeCmd(&cfgFile))
	root.AddCommand(newDetectCmd(&cfgFile))
	return root
}

// loadConfig reads path, turning a missing file into a hint instead of a raw
// stat error.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config file %q not found; copy configs/example.yaml to get started", path)
	}
	return cfg, err
}

// ── Providers ──────────────────────────────────────────────────────────────────

// registerBuiltinProviders wires the compiled-in transcription backends into
// reg under the names accepted by the stt.name config key.
func registerBuiltinProviders(reg *config.Registry) {
	reg.RegisterSTT(config.STTWhisper, func(c config.STTConfig) (stt.Provider, error) {
		var opts []whisper.Option
		if c.Model != "" {
			opts = append(opts, whisper.WithModel(c.Model))
		}
		if c.Language != "" {
			opts = append(opts, whisper.WithLanguage(c.Language))
		}
		return whisper.New(c.BaseURL, opts...)
	})

	reg.RegisterSTT(config.STTWhisperNative, func(c config.STTConfig) (stt.Provider, error) {
		var opts []whisper.NativeOption
		if c.Language != "" {
			opts = append(opts, whisper.WithNativeLanguage(c.Language))
		}
		if c.Threads > 0 {
			opts = append(opts, whisper.WithNativeThreads(uint(c.Threads)))
		}
		return whisper.NewNative(c.ModelPath, opts...)
	})

	reg.RegisterSTT(config.STTOpenAI, func(c config.STTConfig) (stt.Provider, error) {
		key := c.APIKey
		if key == "" {
			key = os.Getenv("OPENAI_API_KEY")
		}
		var opts []openai.Option
		if c.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(c.BaseURL))
		}
		if c.Language != "" {
			opts = append(opts, openai.WithLanguage(c.Language))
		}
		if c.Timeout > 0 {
			opts = append(opts, openai.WithTimeout(c.Timeout))
		}
		return openai.New(key, c.Model, opts...)
	})
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// newLogger writes text logs to w. The level is read through lv on every
// record so a config reload can change it without rebuilding the handler.
func newLogger(w io.Writer, lv *slog.LevelVar) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lv}))
}
