// Package oauthtx holds in-flight OAuth transaction context — target
// provider, redirect destination, PKCE verifier — keyed by state token,
// with TTL expiry and a lifecycle status used for replay prevention.
package oauthtx

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/luminastack/fusekit/config"
)

// Global instance management
var (
	defaultStore *Store
	defaultOnce  sync.Once
	defaultErr   error
)

// Status is the lifecycle state of a transaction record.
type Status string

// Transaction lifecycle states
const (
	// StatusPending is the initial state set by Save.
	StatusPending Status = "pending"
	// StatusCompleted marks the provider callback as handled.
	StatusCompleted Status = "completed"
	// StatusConsummated marks the token exchange as finished.
	StatusConsummated Status = "consummated"
)

// ErrNotFound indicates a lookup miss or a post-TTL expiry. This is an
// ordinary, expected outcome, distinct from token verification failures.
var ErrNotFound = errors.New("transaction not found")

// Record is the stored context of one OAuth flow.
type Record struct {
	// ID uniquely identifies the record across overwrites of the same key.
	ID            string
	Payload       map[string]any
	CreatedAt     time.Time
	TTL           time.Duration
	Status        Status
	CompletedAt   time.Time
	ConsummatedAt time.Time
}

func (r *Record) expired(now time.Time) bool {
	return now.Sub(r.CreatedAt) > r.TTL
}

// Config defines the transaction store configuration
type Config struct {
	// DefaultTTL applies when Save is called with a non-positive TTL.
	DefaultTTL time.Duration `env:"TX_TTL,default:10m"`

	// SweepInterval is how often the background sweeper evicts expired
	// records. Zero uses the 1 minute default; negative disables the sweeper
	// (eviction then happens only on read or via CleanupExpired).
	SweepInterval time.Duration `env:"TX_SWEEP_INTERVAL,default:1m"`
}

// GetConfig returns config loaded from environment with optional LoadOptions
func GetConfig(opts ...config.LoadOptions) (*Config, error) {
	cfg := &Config{}
	if err := config.Load(cfg, opts...); err != nil {
		return nil, fmt.Errorf("failed to load oauthtx config: %w", err)
	}
	return cfg, nil
}

// Store is an in-memory, TTL-expiring transaction store. It is safe for
// concurrent use and holds state for the process lifetime only.
type Store struct {
	mu      sync.Mutex
	records map[string]*Record

	defaultTTL time.Duration
	stopSweep  chan struct{}

	now func() time.Time
}

// Init initializes the global store instance with optional config
func Init(configs ...Config) error {
	defaultOnce.Do(func() {
		var cfg *Config
		if len(configs) > 0 {
			cfg = &configs[0]
		} else {
			cfg, defaultErr = GetConfig()
			if defaultErr != nil {
				return
			}
		}

		defaultStore = New(*cfg)
	})

	return defaultErr
}

// New creates a new transaction store with given config
func New(cfg Config) *Store {
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = 10 * time.Minute
	}
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = time.Minute
	}

	s := &Store{
		records:    make(map[string]*Record),
		defaultTTL: cfg.DefaultTTL,
		stopSweep:  make(chan struct{}),
		now:        time.Now,
	}

	if cfg.SweepInterval > 0 {
		go s.sweep(cfg.SweepInterval)
	}

	return s
}

// Save stores the flow context under the state token, overwriting any
// existing record for that key. The payload is shallow-copied. A ttl of
// zero or less uses the store default.
func (s *Store) Save(state string, payload map[string]any, ttl time.Duration) *Record {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}

	copied := make(map[string]any, len(payload))
	for k, v := range payload {
		copied[k] = v
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec := &Record{
		ID:        uuid.NewString(),
		Payload:   copied,
		CreatedAt: s.now(),
		TTL:       ttl,
		Status:    StatusPending,
	}
	s.records[state] = rec

	snapshot := *rec
	return &snapshot
}

// Get returns the record for the state token, or ErrNotFound when the key
// is absent or its TTL has elapsed. Expired records are evicted on read.
func (s *Store) Get(state string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[state]
	if !ok {
		return nil, ErrNotFound
	}
	if rec.expired(s.now()) {
		delete(s.records, state)
		return nil, ErrNotFound
	}

	snapshot := *rec
	return &snapshot, nil
}

// MarkCompleted sets the record's status to completed and stamps
// CompletedAt. It is an idempotent no-op when the record is absent,
// expired, or already past the pending state.
func (s *Store) MarkCompleted(state string) {
	s.mark(state, StatusCompleted)
}

// MarkConsummated sets the record's status to consummated and stamps
// ConsummatedAt. Idempotent no-op semantics match MarkCompleted.
func (s *Store) MarkConsummated(state string) {
	s.mark(state, StatusConsummated)
}

func (s *Store) mark(state string, status Status) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[state]
	if !ok {
		return
	}
	now := s.now()
	if rec.expired(now) {
		// Marking never resurrects an expired entry.
		delete(s.records, state)
		return
	}
	if rec.Status == status {
		return
	}

	rec.Status = status
	switch status {
	case StatusCompleted:
		rec.CompletedAt = now
	case StatusConsummated:
		rec.ConsummatedAt = now
	}
}

// CleanupExpired evicts every record whose TTL has elapsed, independent of
// read access, and returns the number of evicted records.
func (s *Store) CleanupExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	evicted := 0
	for state, rec := range s.records {
		if rec.expired(now) {
			delete(s.records, state)
			evicted++
		}
	}
	return evicted
}

// Len returns the number of stored records, including not-yet-swept
// expired ones.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Close stops the background sweeper. The store remains usable.
func (s *Store) Close() error {
	select {
	case <-s.stopSweep:
		// Already closed.
	default:
		close(s.stopSweep)
	}
	return nil
}

// sweep evicts expired records periodically until Close is called.
func (s *Store) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.CleanupExpired()
		case <-s.stopSweep:
			return
		}
	}
}

// Reset clears the global instance (for testing)
func Reset() {
	if defaultStore != nil {
		defaultStore.Close()
	}
	defaultStore = nil
	defaultOnce = sync.Once{}
	defaultErr = nil
}

// Service returns the global store instance
func Service() *Store {
	if defaultStore == nil {
		Init() // Initialize with defaults if needed
	}
	return defaultStore
}
