package keyshare

import (
	"sync"
)

// MemoryStore keeps the share in process memory. Suitable for tests and
// for platforms where the surrounding application provides at-rest
// protection.
type MemoryStore struct {
	mu    sync.Mutex
	share *KeyShare
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Load implements Store.
func (m *MemoryStore) Load() (*KeyShare, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.share == nil {
		return nil, ErrNoShare
	}
	return m.share, nil
}

// Store implements Store. The previous share, if any, is zeroized.
func (m *MemoryStore) Store(ks *KeyShare) error {
	if err := ks.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.share != nil && m.share != ks {
		m.share.Zeroize()
	}
	m.share = ks
	return nil
}

// Zeroize implements Store.
func (m *MemoryStore) Zeroize() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.share != nil {
		m.share.Zeroize()
		m.share = nil
	}
	return nil
}
