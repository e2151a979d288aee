package config

import (
	"sync"

	"github.com/asetapen/picinplace/internal/models"
)

// MemStore is an in-memory Store for tests that never writes to disk.
type MemStore struct {
	mu    sync.Mutex
	cfg   *models.Config
	saves int
}

// NewMemStore returns a new in-memory store (defaults to DefaultConfig on Load).
func NewMemStore() *MemStore {
	return &MemStore{}
}

// Load returns the stored config, or DefaultConfig if none has been saved yet.
func (m *MemStore) Load() (models.Config, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cfg == nil {
		return models.DefaultConfig(), nil
	}
	return *m.cfg, nil
}

// Save stores a copy of the given config in memory.
func (m *MemStore) Save(cfg models.Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg = &cfg
	m.saves++
	return nil
}

// Path returns ":memory:" to indicate this is an in-memory store.
func (m *MemStore) Path() string { return ":memory:" }

// SaveCount reports how many times Save has been called, for tests asserting
// that failed validations never reach persistence.
func (m *MemStore) SaveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

// Ensure MemStore implements config.Store
var _ Store = (*MemStore)(nil)
