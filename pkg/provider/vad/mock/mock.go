// Package mock provides test doubles for the vad package interfaces.
//
// Use Detector to inject a fixed Result or error and to inspect the buffers
// that were submitted for detection.
//
// Example:
//
//	det := &mock.Detector{
//	    Result: vad.Result{HasSpeech: true, SpeechRatio: 0.8},
//	}
//	res, _ := det.Detect(samples)
package mock

import (
	"sync"

	"github.com/MrWong99/voxgate/pkg/provider/vad"
)

// DetectCall records a single invocation of Detector.Detect.
type DetectCall struct {
	// Samples is a copy of the buffer passed to Detect.
	Samples []float32
}

// Detector is a mock implementation of vad.Detector.
type Detector struct {
	mu sync.Mutex

	// Result is returned by every Detect call.
	Result vad.Result

	// Err, if non-nil, is returned as the error from every Detect call.
	Err error

	// DetectCalls records every call to Detect in order.
	DetectCalls []DetectCall
}

// Detect records the call and returns Result, Err.
func (d *Detector) Detect(samples []float32) (vad.Result, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	cp := make([]float32, len(samples))
	copy(cp, samples)
	d.DetectCalls = append(d.DetectCalls, DetectCall{Samples: cp})
	if d.Err != nil {
		return vad.Result{}, d.Err
	}
	return d.Result, nil
}

// CallCount returns the number of recorded Detect calls. Thread-safe.
func (d *Detector) CallCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.DetectCalls)
}

// Reset clears all recorded calls. Thread-safe.
func (d *Detector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.DetectCalls = nil
}

// Ensure Detector implements vad.Detector at compile time.
var _ vad.Detector = (*Detector)(nil)
