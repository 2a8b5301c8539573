package vad

import "math"

// tally accumulates per-frame classifications into a [Result].
type tally struct {
	speechSamples int
	totalSamples  int
	sumSquares    float64 // over all sanitized samples
}

// add records the classification of one frame of n samples.
func (t *tally) add(n int, speech bool) {
	t.totalSamples += n
	if speech {
		t.speechSamples += n
	}
}

// result reduces the tally into the final verdict. Durations are derived from
// sample counts so the ratio and the duration agree exactly.
func (t *tally) result(cfg Config, threshold float64, frames int) Result {
	rate := float64(cfg.SampleRate)
	r := Result{
		SpeechDurationSecs: float64(t.speechSamples) / rate,
		TotalDurationSecs:  float64(t.totalSamples) / rate,
		Threshold:          threshold,
		Frames:             frames,
	}
	if t.totalSamples > 0 {
		r.SpeechRatio = float64(t.speechSamples) / float64(t.totalSamples)
		r.RMSEnergy = math.Sqrt(t.sumSquares / float64(t.totalSamples))
	}
	r.HasSpeech = decide(cfg, r.SpeechRatio, r.SpeechDurationSecs)
	return r
}

// decide combines the ratio and duration minimums per cfg.Decision.
func decide(cfg Config, ratio, durationSecs float64) bool {
	ratioOK := ratio >= cfg.MinSpeechRatio
	durationOK := durationSecs >= float64(cfg.MinSpeechDurationMs)/1000
	if cfg.Decision == DecisionAll {
		return ratioOK && durationOK
	}
	return ratioOK || durationOK
}
