package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"

	"github.com/MrWong99/voxgate/internal/config"
	"github.com/MrWong99/voxgate/pkg/audio"
	"github.com/MrWong99/voxgate/pkg/provider/vad"
)

// detectLine is one line of `voxgate detect` output.
type detectLine struct {
	File    string      `json:"file"`
	Verdict *vad.Result `json:"verdict,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func newDetectCmd(cfgFile *string) *cobra.Command {
	var (
		mode     string
		decision string
	)
	cmd := &cobra.Command{
		Use:   "detect FILE...",
		Short: "Classify WAV files offline and print one JSON verdict per file",
		Long: `detect runs the detector from the config file over each WAV file and
prints a JSON line per file. Detection is always on, even when vad.enabled is
false in the config. Use "-" to read a single WAV from stdin. A missing
config file falls back to the built-in defaults.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := detectConfig(*cfgFile, cmd.Flags().Changed("config"))
			if err != nil {
				return err
			}
			dc := cfg.VAD.DetectorConfig()
			dc.Enabled = true
			if mode != "" {
				dc.ThresholdMode = vad.ThresholdMode(mode)
			}
			if decision != "" {
				dc.Decision = vad.Decision(decision)
			}
			det, err := vad.New(dc)
			if err != nil {
				return err
			}
			return runDetect(det, args, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&mode, "mode", "", `threshold mode override: "fixed" or "adaptive"`)
	cmd.Flags().StringVar(&decision, "decision", "", `decision policy override: "any" or "all"`)
	return cmd
}

// detectConfig loads path, or returns defaults when the file is absent and
// the flag was left at its default.
func detectConfig(path string, explicit bool) (*config.Config, error) {
	cfg, err := config.Load(path)
	if errors.Is(err, os.ErrNotExist) && !explicit {
		return config.Default(), nil
	}
	return cfg, err
}

// errDetectFailed signals that at least one file could not be classified.
// The per-file reason is already on stdout.
var errDetectFailed = errors.New("one or more files failed")

func runDetect(det vad.Detector, files []string, stdin io.Reader, out io.Writer) error {
	enc := sonic.ConfigDefault.NewEncoder(out)
	failed := false
	for _, name := range files {
		line := detectLine{File: name}
		res, err := detectFile(det, name, stdin)
		if err != nil {
			line.Error = err.Error()
			failed = true
		} else {
			line.Verdict = &res
		}
		if err := enc.Encode(line); err != nil {
			return fmt.Errorf("write result: %w", err)
		}
	}
	if failed {
		return errDetectFailed
	}
	return nil
}

func detectFile(det vad.Detector, name string, stdin io.Reader) (vad.Result, error) {
	var (
		data []byte
		err  error
	)
	if name == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(name)
	}
	if err != nil {
		return vad.Result{}, err
	}
	frame, err := audio.DecodeWAV(data)
	if err != nil {
		return vad.Result{}, err
	}
	return det.Detect(audio.ToDetectorInput(frame))
}
