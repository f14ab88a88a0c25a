package linkstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/zero5yt/StreamixBot2.0/pkg/remote"
)

type MemoryStore struct {
	mu    sync.RWMutex
	links map[string]remote.Handle
}

var _ Store = &MemoryStore{}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{links: make(map[string]remote.Handle)}
}

func (m *MemoryStore) Save(_ context.Context, id string, h remote.Handle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.links[id]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicate, id)
	}
	m.links[id] = h
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (remote.Handle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.links[id]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return h, nil
}

func (m *MemoryStore) Close() error {
	return nil
}
