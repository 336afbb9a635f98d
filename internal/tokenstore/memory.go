package tokenstore

import (
	"context"
	"sync"
)

// MemoryStorage is the default, process-local Storage backend: a single
// protected slot, no persistence across restarts.
type MemoryStorage struct {
	mu  sync.Mutex
	tok *TokenData
}

// NewMemoryStorage creates an empty in-memory token slot.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

func (m *MemoryStorage) Load(_ context.Context) (*TokenData, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tok == nil {
		return nil, nil
	}
	cp := *m.tok
	return &cp, nil
}

func (m *MemoryStorage) Save(_ context.Context, tok TokenData) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := tok
	m.tok = &cp
	return nil
}

func (m *MemoryStorage) Delete(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tok = nil
	return nil
}
