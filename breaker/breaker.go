// Package breaker implements a per-key circuit breaker with jittered
// exponential backoff, used to gate outbound calls to flaky integration
// providers.
package breaker

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/luminastack/fusekit/config"
)

// Circuit states
const (
	StateClosed   = "closed"
	StateOpen     = "open"
	StateHalfOpen = "half_open"
)

// ErrCircuitOpen indicates a call was rejected during the cooldown window.
// Callers should translate it into a degraded/unavailable response rather
// than retry; retries and backoff are exclusively the breaker's job.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Config defines the breaker behavior
type Config struct {
	// FailThreshold is the number of consecutive failures before opening
	FailThreshold int `env:"BREAKER_FAIL_THRESHOLD,default:3"`

	// BaseBackoff is the cooldown after the threshold failure; it doubles
	// with each further failure
	BaseBackoff time.Duration `env:"BREAKER_BASE_BACKOFF,default:5s"`

	// MaxBackoff caps the exponential cooldown
	MaxBackoff time.Duration `env:"BREAKER_MAX_BACKOFF,default:300s"`

	// OnStateChange is called when the circuit changes state
	OnStateChange func(from, to string) `json:"-"`

	// Logger records state transitions. Defaults to a no-op logger.
	Logger *zap.Logger `json:"-"`
}

// GetConfig returns config loaded from environment with optional LoadOptions
func GetConfig(opts ...config.LoadOptions) (*Config, error) {
	cfg := &Config{}
	if err := config.Load(cfg, opts...); err != nil {
		return nil, fmt.Errorf("failed to load breaker config: %w", err)
	}
	return cfg, nil
}

// Stats is a point-in-time snapshot of a breaker for observability.
type Stats struct {
	State    string    `json:"state"`
	Fails    int       `json:"fails"`
	OpenedAt time.Time `json:"opened_at,omitempty"`
}

// Breaker is a failure gate for one protected key. It starts closed, opens
// after FailThreshold consecutive failures, and admits a single probe once
// the jittered exponential cooldown has elapsed. openedAt is set iff the
// circuit is open.
type Breaker struct {
	cfg    Config
	logger *zap.Logger

	mu       sync.Mutex
	fails    int
	state    string
	openedAt time.Time

	now       func() time.Time
	randFloat func() float64
}

// New creates a breaker, applying defaults for unset config fields.
func New(cfg Config) *Breaker {
	if cfg.FailThreshold <= 0 {
		cfg.FailThreshold = 3
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = 5 * time.Second
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 300 * time.Second
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Breaker{
		cfg:       cfg,
		logger:    logger,
		state:     StateClosed,
		now:       time.Now,
		randFloat: rand.Float64,
	}
}

// AllowRequest reports whether a call may proceed. It is always true while
// closed or half-open; while open it is true only once the jittered
// exponential cooldown since openedAt has elapsed.
func (b *Breaker) AllowRequest() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != StateOpen {
		return true
	}
	return b.now().Sub(b.openedAt) >= b.jitteredBackoff()
}

// jitteredBackoff computes min(base * 2^(fails - threshold), max) with a
// symmetric jitter of up to ±10%. Jitter avoids synchronized retry storms
// across processes hitting the same failing provider. Caller holds b.mu.
func (b *Breaker) jitteredBackoff() time.Duration {
	backoff := b.cfg.BaseBackoff
	for i := b.cfg.FailThreshold; i < b.fails && backoff < b.cfg.MaxBackoff; i++ {
		backoff *= 2
	}
	if backoff > b.cfg.MaxBackoff {
		backoff = b.cfg.MaxBackoff
	}

	jitter := (b.randFloat()*0.2 - 0.1) * float64(backoff)
	return backoff + time.Duration(jitter)
}

// RecordSuccess closes the circuit and resets the failure count.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	from := b.state
	b.fails = 0
	b.state = StateClosed
	b.openedAt = time.Time{}
	b.notify(from, StateClosed)
}

// RecordFailure counts a failure and opens the circuit once the threshold
// is reached. A failure while already open restarts the backoff window,
// extending the cooldown on repeated failures.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.fails++
	if b.fails < b.cfg.FailThreshold {
		return
	}

	from := b.state
	b.state = StateOpen
	b.openedAt = b.now()
	b.notify(from, StateOpen)
}

// Probe transitions an open circuit whose cooldown has elapsed to
// half-open and returns true, signaling the caller it may attempt exactly
// one trial call. The caller must follow with RecordSuccess or
// RecordFailure based on that trial's outcome.
func (b *Breaker) Probe() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != StateOpen {
		return false
	}
	if b.now().Sub(b.openedAt) < b.jitteredBackoff() {
		return false
	}

	b.state = StateHalfOpen
	b.notify(StateOpen, StateHalfOpen)
	return true
}

// State returns the current state for observability.
func (b *Breaker) State() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// GetStats returns a snapshot of the breaker.
func (b *Breaker) GetStats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{State: b.state, Fails: b.fails, OpenedAt: b.openedAt}
}

// Reset returns the breaker to its initial closed state.
func (b *Breaker) Reset() {
	b.RecordSuccess()
}

// Do wraps a call with the full allow/probe/record protocol. It returns
// ErrCircuitOpen without invoking fn while the circuit is cooling down;
// otherwise it runs fn and records the outcome.
func (b *Breaker) Do(ctx context.Context, fn func(context.Context) error) error {
	if !b.AllowRequest() {
		return ErrCircuitOpen
	}
	b.Probe() // open -> half-open before the trial call

	if err := fn(ctx); err != nil {
		b.RecordFailure()
		return err
	}
	b.RecordSuccess()
	return nil
}

// notify fires the hook and log only on actual transitions. Caller holds b.mu.
func (b *Breaker) notify(from, to string) {
	if from == to {
		return
	}
	b.logger.Info("circuit state change",
		zap.String("from", from),
		zap.String("to", to),
		zap.Int("fails", b.fails),
	)
	if b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(from, to)
	}
}
