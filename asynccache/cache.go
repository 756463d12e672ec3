// Package asynccache memoizes expensive or rate-limited loader calls with
// per-key TTLs, cache-stampede protection and a per-key error cooldown.
package asynccache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/luminastack/fusekit/config"
)

// Package-level errors
var (
	// ErrCircuitOpen indicates the key's error circuit is open: a recent
	// loader failure is still cooling down and the loader was not invoked.
	ErrCircuitOpen = errors.New("error circuit is open")

	// ErrLoaderFailed matches any *LoaderError via errors.Is.
	ErrLoaderFailed = errors.New("loader failed")
)

// LoaderError wraps the underlying loader failure for a key.
type LoaderError struct {
	Key string
	Err error
}

// Error implements the error interface
func (e *LoaderError) Error() string {
	return fmt.Sprintf("loader failed for key %q: %v", e.Key, e.Err)
}

// Unwrap returns the underlying error
func (e *LoaderError) Unwrap() error {
	return e.Err
}

// Is matches the ErrLoaderFailed sentinel
func (e *LoaderError) Is(target error) bool {
	return target == ErrLoaderFailed
}

// Loader produces a fresh value for a key. It must respect ctx.
type Loader[V any] func(ctx context.Context) (V, error)

// Config defines the cache behavior
type Config struct {
	// TTL is how long loaded values stay fresh.
	TTL time.Duration `env:"CACHE_TTL,default:5m"`

	// ErrorTTL is the error-circuit cooldown after a loader failure.
	// Zero uses TTL.
	ErrorTTL time.Duration `env:"CACHE_ERROR_TTL"`
}

// GetConfig returns config loaded from environment with optional LoadOptions
func GetConfig(opts ...config.LoadOptions) (*Config, error) {
	cfg := &Config{}
	if err := config.Load(cfg, opts...); err != nil {
		return nil, fmt.Errorf("failed to load asynccache config: %w", err)
	}
	return cfg, nil
}

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// Cache memoizes loader results per key. At most one loader invocation is
// ever in flight per key: concurrent callers for a stale key either observe
// the fresh result of that single invocation or the resulting open error
// circuit. Distinct keys are fully concurrent.
//
// Eviction is lazy: stale value and error entries are dropped on the next
// access to their key. Per-key locks are created on first use and retained
// for the cache's lifetime.
type Cache[V any] struct {
	ttl    time.Duration
	errTTL time.Duration

	mu           sync.Mutex
	entries      map[string]entry[V]
	errOpenUntil map[string]time.Time
	locks        map[string]chan struct{}

	now func() time.Time
}

// New creates a cache, applying defaults for unset config fields.
func New[V any](cfg Config) *Cache[V] {
	if cfg.TTL <= 0 {
		cfg.TTL = 5 * time.Minute
	}
	if cfg.ErrorTTL <= 0 {
		cfg.ErrorTTL = cfg.TTL
	}

	return &Cache[V]{
		ttl:          cfg.TTL,
		errTTL:       cfg.ErrorTTL,
		entries:      make(map[string]entry[V]),
		errOpenUntil: make(map[string]time.Time),
		locks:        make(map[string]chan struct{}),
		now:          time.Now,
	}
}

// Get returns the cached value for key, invoking loader to refresh it when
// stale. While the key's error circuit is open Get fails fast with
// ErrCircuitOpen; a loader failure opens that circuit for the error TTL and
// is returned as a *LoaderError wrapping the cause.
//
// Caller-side cancellation — while waiting for the key lock or surfaced by
// the loader itself — does not open the error circuit; only an actual
// loader failure does.
func (c *Cache[V]) Get(ctx context.Context, key string, loader Loader[V]) (V, error) {
	var zero V

	// Fast path: no per-key lock taken.
	if v, hit, err := c.lookup(key); hit {
		return v, err
	}

	lock := c.keyLock(key)
	select {
	case lock <- struct{}{}:
	case <-ctx.Done():
		return zero, ctx.Err()
	}
	defer func() { <-lock }()

	// Re-check under the key lock: another caller may have refreshed or
	// failed the key while this one waited.
	if v, hit, err := c.lookup(key); hit {
		return v, err
	}

	v, err := loader(ctx)
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if err != nil {
		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			// Cancellation is not a provider failure.
			return zero, err
		}
		c.errOpenUntil[key] = now.Add(c.errTTL)
		return zero, &LoaderError{Key: key, Err: err}
	}

	c.entries[key] = entry[V]{value: v, expiresAt: now.Add(c.ttl)}
	delete(c.errOpenUntil, key)
	return v, nil
}

// Invalidate drops the key's value and error-circuit entries.
func (c *Cache[V]) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	delete(c.errOpenUntil, key)
}

// lookup resolves key against the value and error maps, lazily evicting
// stale entries. hit is true when the caller has an answer (fresh value or
// open circuit) and must not invoke the loader.
func (c *Cache[V]) lookup(key string) (v V, hit bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()

	if until, ok := c.errOpenUntil[key]; ok {
		if now.Before(until) {
			return v, true, fmt.Errorf("%w for key %q", ErrCircuitOpen, key)
		}
		delete(c.errOpenUntil, key)
	}

	if e, ok := c.entries[key]; ok {
		if now.Before(e.expiresAt) {
			return e.value, true, nil
		}
		delete(c.entries, key)
	}

	return v, false, nil
}

// keyLock returns the capacity-1 channel serving as key's mutex, creating
// it on first use. A channel rather than sync.Mutex so acquisition can be
// abandoned on context cancellation.
func (c *Cache[V]) keyLock(key string) chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()

	l, ok := c.locks[key]
	if !ok {
		l = make(chan struct{}, 1)
		c.locks[key] = l
	}
	return l
}
