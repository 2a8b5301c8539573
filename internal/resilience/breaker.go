// Package resilience keeps a failing transcription backend from stalling every
// request. [Breaker] is a three-state circuit breaker; [Transcriber] chains
// several stt backends, each behind its own breaker, and fails over in order.
//
// All types are safe for concurrent use.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [Breaker.Execute] while the breaker rejects
// calls.
var ErrCircuitOpen = errors.New("resilience: circuit open")

// State is the operating mode of a [Breaker].
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota

	// StateOpen rejects calls with [ErrCircuitOpen] until ResetTimeout has
	// passed since the last failure.
	StateOpen

	// StateHalfOpen lets up to HalfOpenMax probe calls through. One failure
	// re-opens the breaker; HalfOpenMax successes close it.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig tunes a [Breaker]. Zero fields take the defaults.
type BreakerConfig struct {
	// MaxFailures is the consecutive failure count that opens the breaker.
	// Default: 5.
	MaxFailures int

	// ResetTimeout is how long the breaker stays open. Default: 30s.
	ResetTimeout time.Duration

	// HalfOpenMax is the probe budget in the half-open state. Default: 3.
	HalfOpenMax int
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	if c.MaxFailures <= 0 {
		c.MaxFailures = 5
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = 30 * time.Second
	}
	if c.HalfOpenMax <= 0 {
		c.HalfOpenMax = 3
	}
	return c
}

// Breaker is a circuit breaker guarding one backend.
type Breaker struct {
	name string
	cfg  BreakerConfig
	now  func() time.Time

	mu        sync.Mutex
	state     State
	failures  int // consecutive, closed state only
	openedAt  time.Time
	probes    int // admitted in the current half-open window
	probeWins int
}

// NewBreaker returns a closed breaker labelled name in logs.
func NewBreaker(name string, cfg BreakerConfig) *Breaker {
	return &Breaker{name: name, cfg: cfg.withDefaults(), now: time.Now}
}

// Name returns the label the breaker was created with.
func (b *Breaker) Name() string { return b.name }

// Execute runs fn unless the breaker is open. A call abandoned because ctx
// ended is neither a success nor a failure: the backend did not get a fair
// chance to answer.
func (b *Breaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	probe, err := b.admit()
	if err != nil {
		return err
	}
	err = fn(ctx)
	if err != nil && ctx.Err() != nil {
		b.abandon(probe)
		return err
	}
	b.report(probe, err)
	return err
}

// admit decides whether a call may proceed and reserves a probe slot when
// half-open.
func (b *Breaker) admit() (probe bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen {
		if b.now().Sub(b.openedAt) < b.cfg.ResetTimeout {
			return false, ErrCircuitOpen
		}
		b.transition(StateHalfOpen)
	}
	if b.state == StateHalfOpen {
		if b.probes >= b.cfg.HalfOpenMax {
			return false, ErrCircuitOpen
		}
		b.probes++
		return true, nil
	}
	return false, nil
}

// report accounts for a finished call. Results that arrive after the state
// they were admitted in has ended are dropped.
func (b *Breaker) report(probe bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if probe != (b.state == StateHalfOpen) || b.state == StateOpen {
		return
	}
	switch {
	case err != nil && probe:
		b.open()
	case err != nil:
		b.failures++
		if b.failures >= b.cfg.MaxFailures {
			b.open()
		}
	case probe:
		b.probeWins++
		if b.probeWins >= b.cfg.HalfOpenMax {
			b.transition(StateClosed)
		}
	default:
		b.failures = 0
	}
}

// abandon returns an unused probe slot.
func (b *Breaker) abandon(probe bool) {
	if !probe {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateHalfOpen && b.probes > 0 {
		b.probes--
	}
}

// open trips the breaker. Must be called with b.mu held.
func (b *Breaker) open() {
	b.openedAt = b.now()
	b.transition(StateOpen)
}

// transition resets the per-state counters. Must be called with b.mu held.
func (b *Breaker) transition(to State) {
	from := b.state
	b.state = to
	b.failures, b.probes, b.probeWins = 0, 0, 0
	if from == to {
		return
	}
	level := slog.LevelInfo
	if to == StateOpen {
		level = slog.LevelWarn
	}
	slog.Log(context.Background(), level, "circuit breaker state change",
		"backend", b.name, "from", from.String(), "to", to.String())
}

// State returns the current state. An open breaker whose timeout has passed
// reports [StateHalfOpen]; the transition itself happens on the next call.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.cfg.ResetTimeout {
		return StateHalfOpen
	}
	return b.state
}

// Reset forces the breaker closed.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transition(StateClosed)
}
