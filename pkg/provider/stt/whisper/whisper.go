// Package whisper provides whisper.cpp-backed STT providers.
//
// [Provider] talks to a running whisper-server binary, which exposes a REST
// API at POST /inference, by uploading each utterance as a WAV file.
// [NativeProvider] links whisper.cpp through its CGO bindings and runs
// inference in-process.
//
// whisper.cpp is a batch engine, which fits the gate exactly: every utterance
// is complete before it is transcribed.
//
// Usage:
//
//	p, err := whisper.New("http://localhost:8080", whisper.WithLanguage("en"))
//	tr, err := p.Transcribe(ctx, samples)
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/MrWong99/voxgate/pkg/audio"
	"github.com/MrWong99/voxgate/pkg/provider/stt"
)

const (
	defaultLanguage = "en"
	defaultTimeout  = 30 * time.Second
)

// Compile-time assertions.
var (
	_ stt.Provider = (*Provider)(nil)
	_ stt.Pinger   = (*Provider)(nil)
)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the model identifier forwarded to the whisper.cpp server
// (e.g., "base.en", "small"). When empty the server uses whichever model it
// was started with, which is the default.
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithLanguage sets the language code sent to the whisper.cpp server
// (e.g., "en", "de", "auto"). Defaults to "en".
func WithLanguage(lang string) Option {
	return func(p *Provider) {
		p.language = lang
	}
}

// WithHTTPClient replaces the HTTP client. The default has a 30 s timeout.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// Provider implements stt.Provider backed by a whisper.cpp HTTP server.
// It holds no per-request state and is safe for concurrent use.
type Provider struct {
	serverURL  string
	model      string
	language   string
	httpClient *http.Client
}

// New creates a Provider that connects to the whisper.cpp HTTP server at
// serverURL (e.g., "http://localhost:8080"). serverURL must be non-empty.
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:  strings.TrimRight(serverURL, "/"),
		language:   defaultLanguage,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Transcribe implements stt.Provider. The samples are encoded as a 16 kHz
// mono WAV file and POSTed to /inference as multipart/form-data.
func (p *Provider) Transcribe(ctx context.Context, samples []float32) (stt.Transcript, error) {
	if len(samples) == 0 {
		return stt.Transcript{}, stt.ErrEmptyAudio
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: create form file: %w", err)
	}
	if _, err := fw.Write(audio.EncodeSamplesWAV(samples, stt.SampleRate)); err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: write wav data: %w", err)
	}
	fields := [][2]string{
		{"response_format", "json"},
		{"language", p.language},
		{"model", p.model},
	}
	for _, f := range fields {
		if f[1] == "" {
			continue
		}
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return stt.Transcript{}, fmt.Errorf("whisper: write %s field: %w", f[0], err)
		}
	}
	if err := mw.Close(); err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+"/inference", &body)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return stt.Transcript{}, fmt.Errorf("whisper: server returned HTTP %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: parse JSON response: %w", err)
	}

	return stt.Transcript{
		Text:     strings.TrimSpace(result.Text),
		Language: p.language,
		Duration: stt.AudioDuration(len(samples)),
	}, nil
}

// Ping implements stt.Pinger. Any response below HTTP 500 from the server
// root counts as reachable.
func (p *Provider) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.serverURL+"/", nil)
	if err != nil {
		return fmt.Errorf("whisper: create ping request: %w", err)
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("whisper: ping: %w", err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("whisper: ping: server returned HTTP %d", resp.StatusCode)
	}
	return nil
}
