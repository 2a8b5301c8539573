package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

var errBackend = errors.New("backend down")

// fakeClock is a manually advanced clock for breaker timeouts.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestBreaker(cfg BreakerConfig) (*Breaker, *fakeClock) {
	clk := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	b := NewBreaker("test", cfg)
	b.now = clk.now
	return b, clk
}

func fail(context.Context) error    { return errBackend }
func succeed(context.Context) error { return nil }

func TestNewBreaker_Defaults(t *testing.T) {
	t.Parallel()
	b := NewBreaker("whisper", BreakerConfig{})
	if b.cfg.MaxFailures != 5 || b.cfg.ResetTimeout != 30*time.Second || b.cfg.HalfOpenMax != 3 {
		t.Errorf("cfg = %+v, want defaults 5/30s/3", b.cfg)
	}
	if b.State() != StateClosed {
		t.Errorf("initial state = %v, want closed", b.State())
	}
	if b.Name() != "whisper" {
		t.Errorf("Name() = %q", b.Name())
	}
}

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b, _ := newTestBreaker(BreakerConfig{MaxFailures: 3, ResetTimeout: time.Minute})

	// A success in between resets the count.
	_ = b.Execute(ctx, fail)
	_ = b.Execute(ctx, fail)
	_ = b.Execute(ctx, succeed)
	_ = b.Execute(ctx, fail)
	if b.State() != StateClosed {
		t.Fatalf("state = %v, want closed", b.State())
	}

	_ = b.Execute(ctx, fail)
	_ = b.Execute(ctx, fail)
	if b.State() != StateOpen {
		t.Fatalf("state = %v, want open", b.State())
	}

	called := false
	err := b.Execute(ctx, func(context.Context) error { called = true; return nil })
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Execute() = %v, want ErrCircuitOpen", err)
	}
	if called {
		t.Error("fn called while open")
	}
}

func TestBreaker_HalfOpenCloses(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b, clk := newTestBreaker(BreakerConfig{MaxFailures: 1, ResetTimeout: time.Minute, HalfOpenMax: 2})

	_ = b.Execute(ctx, fail)
	clk.advance(time.Minute)
	if b.State() != StateHalfOpen {
		t.Fatalf("state = %v, want half-open after timeout", b.State())
	}

	if err := b.Execute(ctx, succeed); err != nil {
		t.Fatalf("probe 1: %v", err)
	}
	if b.State() != StateHalfOpen {
		t.Fatalf("state = %v, want half-open after one probe", b.State())
	}
	if err := b.Execute(ctx, succeed); err != nil {
		t.Fatalf("probe 2: %v", err)
	}
	if b.State() != StateClosed {
		t.Errorf("state = %v, want closed after probes", b.State())
	}
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b, clk := newTestBreaker(BreakerConfig{MaxFailures: 1, ResetTimeout: time.Minute})

	_ = b.Execute(ctx, fail)
	clk.advance(time.Minute)
	_ = b.Execute(ctx, fail)
	if b.State() != StateOpen {
		t.Fatalf("state = %v, want open", b.State())
	}

	// The reset timeout restarts from the failed probe.
	clk.advance(30 * time.Second)
	if err := b.Execute(ctx, succeed); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Execute() = %v, want ErrCircuitOpen", err)
	}
}

func TestBreaker_HalfOpenProbeBudget(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b, clk := newTestBreaker(BreakerConfig{MaxFailures: 1, ResetTimeout: time.Second, HalfOpenMax: 1})

	_ = b.Execute(ctx, fail)
	clk.advance(time.Second)

	release := make(chan struct{})
	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- b.Execute(ctx, func(context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	// The single probe slot is taken.
	if err := b.Execute(ctx, succeed); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("second probe = %v, want ErrCircuitOpen", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("probe: %v", err)
	}
	if b.State() != StateClosed {
		t.Errorf("state = %v, want closed", b.State())
	}
}

func TestBreaker_CancelledCallsDoNotCount(t *testing.T) {
	t.Parallel()
	b, _ := newTestBreaker(BreakerConfig{MaxFailures: 1})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := b.Execute(ctx, func(ctx context.Context) error { return ctx.Err() })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Execute() = %v, want context.Canceled", err)
	}
	if b.State() != StateClosed {
		t.Errorf("state = %v, want closed", b.State())
	}
}

func TestBreaker_Reset(t *testing.T) {
	t.Parallel()
	b, _ := newTestBreaker(BreakerConfig{MaxFailures: 1, ResetTimeout: time.Hour})
	_ = b.Execute(context.Background(), fail)
	b.Reset()
	if b.State() != StateClosed {
		t.Errorf("state = %v, want closed", b.State())
	}
	if err := b.Execute(context.Background(), succeed); err != nil {
		t.Errorf("Execute() after Reset = %v", err)
	}
}

func TestState_String(t *testing.T) {
	t.Parallel()
	tests := map[State]string{
		StateClosed:   "closed",
		StateOpen:     "open",
		StateHalfOpen: "half-open",
		State(42):     "unknown",
	}
	for s, want := range tests {
		if got := s.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", int(s), got, want)
		}
	}
}
