// Package mock provides test doubles for the stt package interfaces.
//
// Use Provider to return a controlled Transcript and to inspect which sample
// buffers reached transcription.
//
// Example:
//
//	p := &mock.Provider{Transcript: stt.Transcript{Text: "hello"}}
//	tr, _ := p.Transcribe(ctx, samples)
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/voxgate/pkg/provider/stt"
)

// TranscribeCall records a single invocation of Provider.Transcribe.
type TranscribeCall struct {
	// Ctx is the context passed to Transcribe.
	Ctx context.Context
	// Samples is a copy of the buffer passed to Transcribe.
	Samples []float32
}

// Provider is a mock implementation of stt.Provider and stt.Pinger.
type Provider struct {
	mu sync.Mutex

	// Transcript is returned by every successful Transcribe call.
	Transcript stt.Transcript

	// TranscribeErr, if non-nil, is returned as the error from Transcribe.
	TranscribeErr error

	// PingErr, if non-nil, is returned from Ping.
	PingErr error

	// TranscribeCalls records every call to Transcribe.
	TranscribeCalls []TranscribeCall
}

// Transcribe records the call and returns Transcript, TranscribeErr.
func (p *Provider) Transcribe(ctx context.Context, samples []float32) (stt.Transcript, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	cp := make([]float32, len(samples))
	copy(cp, samples)
	p.TranscribeCalls = append(p.TranscribeCalls, TranscribeCall{Ctx: ctx, Samples: cp})
	if p.TranscribeErr != nil {
		return stt.Transcript{}, p.TranscribeErr
	}
	return p.Transcript, nil
}

// Ping returns PingErr.
func (p *Provider) Ping(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.PingErr
}

// CallCount returns the number of recorded Transcribe calls. Thread-safe.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.TranscribeCalls)
}

// Ensure Provider implements the stt interfaces at compile time.
var (
	_ stt.Provider = (*Provider)(nil)
	_ stt.Pinger   = (*Provider)(nil)
)
