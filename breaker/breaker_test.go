package breaker

import (
	"context"
	"errors"
	"testing"
	"time"
)

// newTestBreaker returns a breaker with a controllable clock and jitter
// pinned to zero (randFloat 0.5 makes the ±10% jitter term vanish).
func newTestBreaker(cfg Config) (*Breaker, *time.Time) {
	b := New(cfg)
	base := time.Now()
	b.now = func() time.Time { return base }
	b.randFloat = func() float64 { return 0.5 }
	return b, &base
}

func advance(b *Breaker, base *time.Time, d time.Duration) {
	*base = base.Add(d)
	b.now = func() time.Time { return *base }
}

func TestOpensAfterThreshold(t *testing.T) {
	b, base := newTestBreaker(Config{FailThreshold: 3, BaseBackoff: time.Second})

	if b.State() != StateClosed {
		t.Fatalf("State() = %v, want %v", b.State(), StateClosed)
	}

	b.RecordFailure()
	b.RecordFailure()
	if b.State() != StateClosed {
		t.Errorf("State() after 2 failures = %v, want %v", b.State(), StateClosed)
	}
	if !b.AllowRequest() {
		t.Error("AllowRequest() should be true while closed")
	}

	b.RecordFailure()
	if b.State() != StateOpen {
		t.Errorf("State() after 3 failures = %v, want %v", b.State(), StateOpen)
	}
	if b.AllowRequest() {
		t.Error("AllowRequest() should be false immediately after opening")
	}

	// Slightly more than the base backoff has elapsed.
	advance(b, base, time.Second+50*time.Millisecond)
	if !b.AllowRequest() {
		t.Error("AllowRequest() should be true once the backoff has elapsed")
	}
}

func TestProbeAndRecovery(t *testing.T) {
	b, base := newTestBreaker(Config{FailThreshold: 3, BaseBackoff: time.Second})

	for i := 0; i < 3; i++ {
		b.RecordFailure()
	}

	// Cooldown not yet elapsed: no probe.
	if b.Probe() {
		t.Error("Probe() should be false during cooldown")
	}

	advance(b, base, 2*time.Second)
	if !b.Probe() {
		t.Fatal("Probe() should be true after cooldown")
	}
	if b.State() != StateHalfOpen {
		t.Errorf("State() = %v, want %v", b.State(), StateHalfOpen)
	}
	if !b.AllowRequest() {
		t.Error("AllowRequest() should be true while half-open")
	}
	// Probe is single-shot: the circuit is no longer open.
	if b.Probe() {
		t.Error("second Probe() should be false while half-open")
	}

	b.RecordSuccess()
	if b.State() != StateClosed {
		t.Errorf("State() after success = %v, want %v", b.State(), StateClosed)
	}
	if b.GetStats().Fails != 0 {
		t.Errorf("Fails = %d, want 0 after success", b.GetStats().Fails)
	}
}

func TestProbeFailureReopensWithLongerBackoff(t *testing.T) {
	b, base := newTestBreaker(Config{FailThreshold: 3, BaseBackoff: time.Second, MaxBackoff: time.Hour})

	for i := 0; i < 3; i++ {
		b.RecordFailure()
	}
	advance(b, base, 2*time.Second)
	if !b.Probe() {
		t.Fatal("Probe() should be true after cooldown")
	}

	// The trial call fails: back to open, now with fails=4 so the
	// backoff doubles to 2s.
	b.RecordFailure()
	if b.State() != StateOpen {
		t.Fatalf("State() = %v, want %v", b.State(), StateOpen)
	}

	advance(b, base, time.Second+100*time.Millisecond)
	if b.AllowRequest() {
		t.Error("AllowRequest() should be false before the doubled backoff elapses")
	}
	advance(b, base, time.Second)
	if !b.AllowRequest() {
		t.Error("AllowRequest() should be true after the doubled backoff")
	}
}

func TestBackoffIsCapped(t *testing.T) {
	b, base := newTestBreaker(Config{FailThreshold: 1, BaseBackoff: time.Second, MaxBackoff: 4 * time.Second})

	// Many failures would push the exponent far past the cap.
	for i := 0; i < 20; i++ {
		b.RecordFailure()
	}

	advance(b, base, 4*time.Second+100*time.Millisecond)
	if !b.AllowRequest() {
		t.Error("AllowRequest() should be true once the capped backoff has elapsed")
	}
}

func TestJitterBounds(t *testing.T) {
	b, base := newTestBreaker(Config{FailThreshold: 3, BaseBackoff: 10 * time.Second})

	for i := 0; i < 3; i++ {
		b.RecordFailure()
	}

	// Maximum jitter (+10%): 10.5s elapsed is not enough, 11.1s is.
	b.randFloat = func() float64 { return 1.0 }
	advance(b, base, 10*time.Second+500*time.Millisecond)
	if b.AllowRequest() {
		t.Error("AllowRequest() should be false below the +10% jittered backoff")
	}
	advance(b, base, 600*time.Millisecond)
	if !b.AllowRequest() {
		t.Error("AllowRequest() should be true above the +10% jittered backoff")
	}

	// Minimum jitter (-10%): 9.1s elapsed suffices.
	b2, base2 := newTestBreaker(Config{FailThreshold: 3, BaseBackoff: 10 * time.Second})
	for i := 0; i < 3; i++ {
		b2.RecordFailure()
	}
	b2.randFloat = func() float64 { return 0.0 }
	advance(b2, base2, 9*time.Second+100*time.Millisecond)
	if !b2.AllowRequest() {
		t.Error("AllowRequest() should be true above the -10% jittered backoff")
	}
}

func TestOnStateChange(t *testing.T) {
	var transitions [][2]string
	b, base := newTestBreaker(Config{
		FailThreshold: 2,
		BaseBackoff:   time.Second,
		OnStateChange: func(from, to string) {
			transitions = append(transitions, [2]string{from, to})
		},
	})
	// New() captured the hook; the clock/jitter overrides still apply.

	b.RecordFailure()
	b.RecordFailure() // closed -> open
	b.RecordFailure() // open -> open: no notification
	advance(b, base, 2*time.Second)
	b.Probe()         // open -> half_open
	b.RecordSuccess() // half_open -> closed

	want := [][2]string{
		{StateClosed, StateOpen},
		{StateOpen, StateHalfOpen},
		{StateHalfOpen, StateClosed},
	}
	if len(transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", transitions, want)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transition %d = %v, want %v", i, transitions[i], want[i])
		}
	}
}

func TestDo(t *testing.T) {
	b, base := newTestBreaker(Config{FailThreshold: 1, BaseBackoff: time.Minute})
	ctx := context.Background()

	boom := errors.New("provider down")
	if err := b.Do(ctx, func(context.Context) error { return boom }); !errors.Is(err, boom) {
		t.Errorf("Do() = %v, want the loader error", err)
	}

	// Circuit is open: the function must not run.
	called := false
	err := b.Do(ctx, func(context.Context) error { called = true; return nil })
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Do() while open = %v, want ErrCircuitOpen", err)
	}
	if called {
		t.Error("fn must not be invoked while the circuit is open")
	}

	// After the cooldown, Do probes and a success closes the circuit.
	advance(b, base, 2*time.Minute)
	if err := b.Do(ctx, func(context.Context) error { return nil }); err != nil {
		t.Errorf("Do() after cooldown = %v, want nil", err)
	}
	if b.State() != StateClosed {
		t.Errorf("State() = %v, want %v", b.State(), StateClosed)
	}
}

func TestManagerPerKeyIsolation(t *testing.T) {
	m := NewManager(Config{FailThreshold: 1, BaseBackoff: time.Minute})

	spotify := m.Get("spotify")
	gcal := m.Get("gcal")
	if spotify == gcal {
		t.Fatal("distinct keys must get distinct breakers")
	}
	if m.Get("spotify") != spotify {
		t.Error("same key must return the same breaker")
	}

	spotify.RecordFailure()
	if spotify.State() != StateOpen {
		t.Errorf("spotify State() = %v, want %v", spotify.State(), StateOpen)
	}
	if gcal.State() != StateClosed {
		t.Errorf("gcal State() = %v, want %v", gcal.State(), StateClosed)
	}

	stats := m.AllStats()
	if stats["spotify"].State != StateOpen || stats["gcal"].State != StateClosed {
		t.Errorf("AllStats() = %v", stats)
	}

	m.Reset("spotify")
	if spotify.State() != StateClosed {
		t.Errorf("spotify State() after Reset = %v, want %v", spotify.State(), StateClosed)
	}
}
