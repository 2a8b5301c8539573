// Package verdict keeps a log of gate decisions so that detector thresholds
// can be tuned offline against what was actually skipped or transcribed.
//
// Two stores are provided: [FileStore] appends JSON lines to a local file and
// [PostgresStore] writes to a PostgreSQL table. Recording is best effort; the
// gate logs and otherwise ignores store errors.
package verdict

import (
	"context"
	"time"

	"github.com/MrWong99/voxgate/pkg/provider/vad"
)

// Record is one logged gate decision.
type Record struct {
	ID   string    `json:"id"`
	Time time.Time `json:"time"`

	// Source names the entry point that produced the record, such as
	// "detect", "transcribe" or "stream".
	Source string `json:"source"`

	// Decision is the gate outcome ("passthrough", "fail_open", "skipped",
	// "transcribed"). "detect" records carry "detected".
	Decision string `json:"decision"`

	// Verdict is nil when no detector ran or detection failed.
	Verdict *vad.Result `json:"verdict,omitempty"`

	// DetectError holds the detector error for fail-open decisions.
	DetectError string `json:"detect_error,omitempty"`

	// Text is the transcript, if one was produced.
	Text string `json:"text,omitempty"`
}

// Store persists and lists verdict records.
type Store interface {
	// Record appends r to the log.
	Record(ctx context.Context, r Record) error

	// Recent returns up to limit records, newest first.
	Recent(ctx context.Context, limit int) ([]Record, error)

	// Close releases the store's resources.
	Close() error
}
