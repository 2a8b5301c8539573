package stt

import "time"

// Transcript is the result of transcribing one utterance.
type Transcript struct {
	// Text is the transcribed speech content, trimmed of surrounding space.
	Text string `json:"text"`

	// Language is the language the backend recognised or was told to use.
	// Empty if unknown.
	Language string `json:"language,omitempty"`

	// Duration is the length of the transcribed audio.
	Duration time.Duration `json:"duration"`

	// Segments carries per-segment timing when the backend reports it.
	Segments []Segment `json:"segments,omitempty"`
}

// Segment is a timed span of recognised text.
type Segment struct {
	Text  string        `json:"text"`
	Start time.Duration `json:"start"`
	End   time.Duration `json:"end"`
}

// AudioDuration returns the playback length of n samples at SampleRate.
func AudioDuration(n int) time.Duration {
	return time.Duration(n) * time.Second / SampleRate
}
