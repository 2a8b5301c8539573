package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/voxgate/internal/config"
	"github.com/MrWong99/voxgate/internal/gate"
	"github.com/MrWong99/voxgate/internal/health"
	"github.com/MrWong99/voxgate/internal/observe"
	"github.com/MrWong99/voxgate/internal/resilience"
	"github.com/MrWong99/voxgate/internal/server"
	"github.com/MrWong99/voxgate/internal/verdict"
	"github.com/MrWong99/voxgate/pkg/provider/stt"
	"github.com/MrWong99/voxgate/pkg/provider/vad"
)

func newServeCmd(cfgFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP speech gate",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, *cfgFile)
		},
	}
}

func runServe(ctx context.Context, cfgPath string) error {
	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return err
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	level.Set(slogLevel(cfg.Server.LogLevel))
	slog.SetDefault(newLogger(os.Stderr, level))

	slog.Info("voxgate starting", "version", version, "config", cfgPath)

	// ── Telemetry ─────────────────────────────────────────────────────────────
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: version,
		Registry:       reg,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(sctx); err != nil {
			slog.Warn("telemetry shutdown", "err", err)
		}
	}()

	// ── Detector ──────────────────────────────────────────────────────────────
	det, err := vad.New(cfg.VAD.DetectorConfig())
	if err != nil {
		return fmt.Errorf("build detector: %w", err)
	}
	if det == nil {
		slog.Warn("voice activity detection disabled, every buffer is forwarded")
	}

	// ── Transcription backend ─────────────────────────────────────────────────
	providers := config.NewRegistry()
	registerBuiltinProviders(providers)

	var transcriber stt.Provider
	if cfg.STT.Name != "" {
		chain, err := buildTranscriber(providers, cfg)
		if err != nil {
			return err
		}
		defer chain.Close()
		transcriber = chain
	}

	// ── Verdict log ───────────────────────────────────────────────────────────
	store, err := openVerdicts(ctx, cfg.Verdicts)
	if err != nil {
		return fmt.Errorf("open verdict log: %w", err)
	}
	if store != nil {
		defer store.Close()
	}

	// ── Gate and HTTP server ──────────────────────────────────────────────────
	gateOpts := []gate.Option{gate.WithRecorder(store)}
	if cfg.STT.Name != "" {
		gateOpts = append(gateOpts, gate.WithProviderName(cfg.STT.Name))
	}
	g := gate.New(det, transcriber, gateOpts...)

	var checks []health.Checker
	if p, ok := transcriber.(stt.Pinger); ok {
		checks = append(checks, health.PingChecker("stt", p))
	}
	if p, ok := store.(health.Pinger); ok {
		checks = append(checks, health.PingChecker("verdicts", p))
	}

	srv := server.New(g,
		server.WithVerdicts(store),
		server.WithHealth(health.New(checks...)),
		server.WithMetricsHandler(observe.MetricsHandler(reg)),
		server.WithLimits(cfg.Server.MaxBodyBytes, cfg.Server.MaxConcurrent),
	)

	// ── Hot reload ────────────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(cfgPath, onReload(g, level))
	if err != nil {
		return fmt.Errorf("watch config: %w", err)
	}

	printStartupSummary(cfg)

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return srv.ListenAndServe(ctx, cfg.Server.ListenAddr, cfg.Server.ShutdownTimeout)
	})
	eg.Go(func() error {
		<-ctx.Done()
		watcher.Stop()
		return nil
	})
	if err := eg.Wait(); err != nil {
		return err
	}

	slog.Info("voxgate stopped")
	return nil
}

// buildTranscriber creates the primary backend and its fallbacks and chains
// them behind per-backend circuit breakers.
func buildTranscriber(providers *config.Registry, cfg *config.Config) (*resilience.Transcriber, error) {
	breaker := resilience.BreakerConfig{
		MaxFailures:  cfg.Breaker.MaxFailures,
		ResetTimeout: cfg.Breaker.ResetTimeout,
		HalfOpenMax:  cfg.Breaker.HalfOpenMax,
	}
	primary, err := providers.CreateSTT(cfg.STT)
	if err != nil {
		return nil, fmt.Errorf("create stt provider %q: %w", cfg.STT.Name, err)
	}
	chain := resilience.NewTranscriber(cfg.STT.Name, primary, breaker)
	for i, fb := range cfg.STTFallbacks {
		p, err := providers.CreateSTT(fb)
		if err != nil {
			chain.Close()
			return nil, fmt.Errorf("create stt fallback %d (%q): %w", i, fb.Name, err)
		}
		chain.Add(fmt.Sprintf("%s#%d", fb.Name, i+1), p)
	}
	return chain, nil
}

// openVerdicts returns the configured verdict log, or nil when logging is off.
func openVerdicts(ctx context.Context, cfg config.VerdictsConfig) (verdict.Store, error) {
	switch {
	case cfg.PostgresDSN != "":
		return verdict.OpenPostgres(ctx, cfg.PostgresDSN)
	case cfg.Path != "":
		return verdict.OpenFile(cfg.Path)
	}
	return nil, nil
}

// onReload applies the parts of a config change that can take effect without
// a restart: the log level and the detector parameters.
func onReload(g *gate.Gate, level *slog.LevelVar) func(old, cur *config.Config) {
	return func(old, cur *config.Config) {
		d := config.Diff(old, cur)

		if d.LogLevelChanged {
			level.Set(slogLevel(d.NewLogLevel))
			slog.Info("log level changed", "level", d.NewLogLevel)
		}

		if d.VADChanged {
			det, err := vad.New(cur.VAD.DetectorConfig())
			if err != nil {
				slog.Error("reload detector, keeping previous", "err", err)
			} else {
				g.SetDetector(det)
				slog.Info("detector reloaded", "enabled", det != nil, "mode", cur.VAD.ThresholdMode)
			}
		}

		if d.RestartRequired() {
			slog.Warn("config change requires a restart to take effect",
				"server", d.ServerChanged,
				"stt", d.STTChanged,
				"verdicts", d.VerdictsChanged,
			)
		}
	}
}

// ── Startup summary ────────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║        voxgate, startup summary       ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	if cfg.VAD.Enabled {
		printRow("VAD", string(cfg.VAD.ThresholdMode)+" / "+string(cfg.VAD.Decision))
	} else {
		printRow("VAD", "(disabled)")
	}
	switch {
	case cfg.STT.Name == "":
		printRow("STT", "(not configured)")
	case cfg.STT.Model != "":
		printRow("STT", cfg.STT.Name+" / "+cfg.STT.Model)
	default:
		printRow("STT", cfg.STT.Name)
	}
	printRow("Fallbacks", fmt.Sprint(len(cfg.STTFallbacks)))
	switch {
	case cfg.Verdicts.PostgresDSN != "":
		printRow("Verdicts", "postgres")
	case cfg.Verdicts.Path != "":
		printRow("Verdicts", cfg.Verdicts.Path)
	default:
		printRow("Verdicts", "(disabled)")
	}
	printRow("Listen addr", cfg.Server.ListenAddr)
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printRow(label, value string) {
	if len([]rune(value)) > 19 {
		value = string([]rune(value)[:18]) + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", label, value)
}
