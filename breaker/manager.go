package breaker

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Manager holds one breaker per protected key (provider endpoint, API
// host, ...). Breakers are created lazily on first use and live for the
// process lifetime.
type Manager struct {
	mu       sync.RWMutex
	breakers map[string]*Breaker
	cfg      Config
}

// NewManager creates a manager whose breakers share cfg.
func NewManager(cfg Config) *Manager {
	return &Manager{
		breakers: make(map[string]*Breaker),
		cfg:      cfg,
	}
}

// Get returns the breaker for the given key, creating it on first use.
func (m *Manager) Get(key string) *Breaker {
	m.mu.RLock()
	b, exists := m.breakers[key]
	m.mu.RUnlock()

	if exists {
		return b
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Double-check after acquiring write lock
	if b, exists := m.breakers[key]; exists {
		return b
	}

	cfg := m.cfg
	if cfg.Logger != nil {
		cfg.Logger = cfg.Logger.With(zap.String("breaker", key))
	}
	b = New(cfg)
	m.breakers[key] = b

	return b
}

// Do executes fn through the breaker for the given key.
func (m *Manager) Do(ctx context.Context, key string, fn func(context.Context) error) error {
	return m.Get(key).Do(ctx, fn)
}

// AllStats returns snapshots for all known breakers.
func (m *Manager) AllStats() map[string]Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := make(map[string]Stats, len(m.breakers))
	for key, b := range m.breakers {
		stats[key] = b.GetStats()
	}
	return stats
}

// Reset resets the breaker for a specific key, if it exists.
func (m *Manager) Reset(key string) {
	m.mu.RLock()
	b, exists := m.breakers[key]
	m.mu.RUnlock()

	if exists {
		b.Reset()
	}
}
