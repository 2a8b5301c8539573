// Package openai provides an STT provider backed by the OpenAI Audio
// Transcriptions API (or any server that implements it).
package openai

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/MrWong99/voxgate/pkg/audio"
	"github.com/MrWong99/voxgate/pkg/provider/stt"
)

// DefaultModel is the default transcription model.
const DefaultModel = string(oai.AudioModelWhisper1)

// Ensure Provider implements the stt.Provider interface.
var _ stt.Provider = (*Provider)(nil)

// Provider implements stt.Provider using the OpenAI API.
type Provider struct {
	client   oai.Client
	model    string
	language string
}

// config holds optional configuration for the provider.
type config struct {
	baseURL    string
	language   string
	timeout    time.Duration
	maxRetries int
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL, e.g. to target a
// self-hosted OpenAI-compatible transcription server.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithLanguage sets the ISO-639-1 input language hint. Empty lets the model
// detect the language.
func WithLanguage(lang string) Option {
	return func(c *config) {
		c.language = lang
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// WithMaxRetries sets how often a failed request is retried. The client
// default is 2.
func WithMaxRetries(n int) Option {
	return func(c *config) {
		c.maxRetries = n
	}
}

// New constructs a new OpenAI STT Provider.
// If model is empty, DefaultModel (whisper-1) is used.
func New(apiKey string, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("openai stt: apiKey must not be empty")
	}
	if model == "" {
		model = DefaultModel
	}

	cfg := &config{maxRetries: -1}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}
	if cfg.maxRetries >= 0 {
		reqOpts = append(reqOpts, option.WithMaxRetries(cfg.maxRetries))
	}

	return &Provider{
		client:   oai.NewClient(reqOpts...),
		model:    model,
		language: cfg.language,
	}, nil
}

// Transcribe implements stt.Provider.
func (p *Provider) Transcribe(ctx context.Context, samples []float32) (stt.Transcript, error) {
	if len(samples) == 0 {
		return stt.Transcript{}, stt.ErrEmptyAudio
	}

	wav := audio.EncodeSamplesWAV(samples, stt.SampleRate)
	params := oai.AudioTranscriptionNewParams{
		File:  oai.File(bytes.NewReader(wav), "audio.wav", "audio/wav"),
		Model: oai.AudioModel(p.model),
	}
	if p.language != "" {
		params.Language = oai.String(p.language)
	}

	resp, err := p.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("openai stt: transcribe: %w", err)
	}

	return stt.Transcript{
		Text:     strings.TrimSpace(resp.Text),
		Language: p.language,
		Duration: stt.AudioDuration(len(samples)),
	}, nil
}

// Model returns the transcription model in use.
func (p *Provider) Model() string {
	return p.model
}
