package store

import (
	"context"
	"sync"
)

// MemoryStore is a Repository that keeps everything in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	prefs map[string]map[string]string
}

// NewMemory returns an empty in-memory repository.
func NewMemory() *MemoryStore {
	return &MemoryStore{prefs: make(map[string]map[string]string)}
}

func (m *MemoryStore) GetPreference(_ context.Context, deviceID, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.prefs[deviceID][key]
	return v, ok, nil
}

func (m *MemoryStore) SetPreference(_ context.Context, deviceID, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	dev, ok := m.prefs[deviceID]
	if !ok {
		dev = make(map[string]string)
		m.prefs[deviceID] = dev
	}
	dev[key] = value
	return nil
}

func (m *MemoryStore) DeletePreference(_ context.Context, deviceID, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.prefs[deviceID], key)
	return nil
}

func (m *MemoryStore) Ping(context.Context) error { return nil }

func (m *MemoryStore) Close() error { return nil }
