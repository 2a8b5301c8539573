// This file contains the NativeProvider implementation backed by the
// whisper.cpp CGO bindings. The whisper.cpp static library (libwhisper.a)
// and headers (whisper.h) must be available at link time via LIBRARY_PATH
// and C_INCLUDE_PATH environment variables.

package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/MrWong99/voxgate/pkg/provider/stt"
)

// Compile-time assertion that NativeProvider satisfies stt.Provider.
var _ stt.Provider = (*NativeProvider)(nil)

// NativeProvider implements stt.Provider using whisper.cpp Go bindings
// (CGO), eliminating HTTP overhead entirely. The model is loaded once at
// startup and shared; every Transcribe call creates its own context, so calls
// may run concurrently.
type NativeProvider struct {
	model    whisperlib.Model
	language string
	threads  uint
}

// NativeOption is a functional option for configuring a NativeProvider.
type NativeOption func(*NativeProvider)

// WithNativeLanguage sets the language code for transcription
// (e.g., "en", "de", "auto"). Defaults to "en".
func WithNativeLanguage(lang string) NativeOption {
	return func(p *NativeProvider) { p.language = lang }
}

// WithNativeThreads sets the number of CPU threads used per inference.
// Zero keeps the library default.
func WithNativeThreads(n uint) NativeOption {
	return func(p *NativeProvider) { p.threads = n }
}

// NewNative creates a NativeProvider that loads the whisper.cpp model from
// the given file path. The caller must call Close when the provider is no
// longer needed.
func NewNative(modelPath string, opts ...NativeOption) (*NativeProvider, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}

	p := &NativeProvider{
		model:    model,
		language: defaultLanguage,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Close releases the whisper model.
func (p *NativeProvider) Close() error {
	if p.model != nil {
		return p.model.Close()
	}
	return nil
}

// Transcribe implements stt.Provider. Inference runs to completion once
// started; ctx is only checked beforehand.
func (p *NativeProvider) Transcribe(ctx context.Context, samples []float32) (stt.Transcript, error) {
	if len(samples) == 0 {
		return stt.Transcript{}, stt.ErrEmptyAudio
	}
	if err := ctx.Err(); err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: %w", err)
	}

	// A context is not thread-safe; the model is.
	wctx, err := p.model.NewContext()
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: create context: %w", err)
	}
	if err := wctx.SetLanguage(p.language); err != nil {
		slog.Warn("whisper: failed to set language, using default", "language", p.language, "err", err)
	}
	if p.threads > 0 {
		wctx.SetThreads(p.threads)
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: process audio: %w", err)
	}

	tr := stt.Transcript{
		Language: wctx.Language(),
		Duration: stt.AudioDuration(len(samples)),
	}
	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return stt.Transcript{}, fmt.Errorf("whisper: read segment: %w", err)
		}
		text := strings.TrimSpace(segment.Text)
		if text == "" {
			continue
		}
		parts = append(parts, text)
		tr.Segments = append(tr.Segments, stt.Segment{Text: text, Start: segment.Start, End: segment.End})
	}
	tr.Text = strings.Join(parts, " ")
	return tr, nil
}
