// Command voxgate runs the voice-activity speech gate: an HTTP service that
// classifies audio as speech or silence and forwards only speech to a
// transcription backend.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// version is overridden at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// A missing .env is normal in production.
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "voxgate: %v\n", err)
		os.Exit(1)
	}
}
