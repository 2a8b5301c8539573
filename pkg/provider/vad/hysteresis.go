package vad

// classState is the state of the hysteresis classifier.
type classState int

const (
	stateSilence classState = iota
	stateSpeech
)

// String returns the human-readable name of the state.
func (s classState) String() string {
	switch s {
	case stateSilence:
		return "silence"
	case stateSpeech:
		return "speech"
	default:
		return "unknown"
	}
}

// classifier turns a sequence of per-frame energy/threshold comparisons into a
// stable speech/silence flag per frame.
//
// Attack is immediate: the first loud frame in silence is speech. Release is
// delayed: once in speech, each quiet frame consumes one unit of hangover and
// is still reported as speech; the classifier falls back to silence only on
// the first quiet frame after the hangover is exhausted. Every loud frame
// reloads the full hangover.
//
// A classifier lives for one Detect call and is not safe for concurrent use.
type classifier struct {
	state     classState
	remaining int // hangover frames left before release
	hangover  int // hangover length in frames
}

// newClassifier returns a classifier in the silence state.
func newClassifier(hangoverFrames int) *classifier {
	return &classifier{
		state:    stateSilence,
		hangover: max(0, hangoverFrames),
	}
}

// step feeds one frame and reports whether it is classified as speech.
func (c *classifier) step(energy, threshold float64) bool {
	loud := energy > threshold

	switch c.state {
	case stateSilence:
		if loud {
			c.state = stateSpeech
			c.remaining = c.hangover
			return true
		}
		return false

	case stateSpeech:
		if loud {
			c.remaining = c.hangover
			return true
		}
		if c.remaining > 0 {
			c.remaining--
			return true
		}
		c.state = stateSilence
		return false
	}
	return false
}
