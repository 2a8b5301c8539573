package resilience

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/MrWong99/voxgate/pkg/provider/stt"
)

// ErrAllFailed is returned when every backend failed or had its breaker open.
var ErrAllFailed = errors.New("resilience: all stt backends failed")

type backend struct {
	provider stt.Provider
	breaker  *Breaker
}

// Transcriber implements [stt.Provider] over an ordered list of backends. Each
// call tries the backends in order, skipping those whose breaker is open, and
// returns the first transcript.
type Transcriber struct {
	cfg      BreakerConfig
	backends []backend
}

var (
	_ stt.Provider = (*Transcriber)(nil)
	_ stt.Pinger   = (*Transcriber)(nil)
	_ io.Closer    = (*Transcriber)(nil)
)

// NewTranscriber puts primary behind a breaker. Every breaker in the chain
// uses cfg.
func NewTranscriber(primaryName string, primary stt.Provider, cfg BreakerConfig) *Transcriber {
	t := &Transcriber{cfg: cfg}
	t.Add(primaryName, primary)
	return t
}

// Add appends a fallback. It must not be called once the Transcriber is in
// use.
func (t *Transcriber) Add(name string, p stt.Provider) {
	t.backends = append(t.backends, backend{provider: p, breaker: NewBreaker(name, t.cfg)})
}

// Transcribe implements [stt.Provider]. A cancelled ctx stops the chain
// instead of failing over.
func (t *Transcriber) Transcribe(ctx context.Context, samples []float32) (stt.Transcript, error) {
	var lastErr error
	for _, b := range t.backends {
		var tr stt.Transcript
		err := b.breaker.Execute(ctx, func(ctx context.Context) error {
			var err error
			tr, err = b.provider.Transcribe(ctx, samples)
			return err
		})
		if err == nil {
			return tr, nil
		}
		if ctx.Err() != nil {
			return stt.Transcript{}, err
		}
		// Malformed input fails the same way everywhere.
		if errors.Is(err, stt.ErrEmptyAudio) {
			return stt.Transcript{}, err
		}
		lastErr = err
		if errors.Is(err, ErrCircuitOpen) {
			slog.Debug("skipping stt backend, circuit open", "backend", b.breaker.Name())
			continue
		}
		slog.Warn("stt backend failed, trying next", "backend", b.breaker.Name(), "err", err)
	}
	return stt.Transcript{}, fmt.Errorf("%w: %w", ErrAllFailed, lastErr)
}

// Ping reports ready when at least one backend is usable: its breaker is not
// open and, if it can be pinged, it answers.
func (t *Transcriber) Ping(ctx context.Context) error {
	var errs []error
	for _, b := range t.backends {
		if b.breaker.State() == StateOpen {
			errs = append(errs, fmt.Errorf("%s: %w", b.breaker.Name(), ErrCircuitOpen))
			continue
		}
		p, ok := b.provider.(stt.Pinger)
		if !ok {
			return nil
		}
		err := p.Ping(ctx)
		if err == nil {
			return nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", b.breaker.Name(), err))
	}
	return errors.Join(errs...)
}

// States returns each backend's breaker state keyed by name.
func (t *Transcriber) States() map[string]State {
	out := make(map[string]State, len(t.backends))
	for _, b := range t.backends {
		out[b.breaker.Name()] = b.breaker.State()
	}
	return out
}

// Close closes every backend that holds resources.
func (t *Transcriber) Close() error {
	var errs []error
	for _, b := range t.backends {
		if c, ok := b.provider.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", b.breaker.Name(), err))
			}
		}
	}
	return errors.Join(errs...)
}
