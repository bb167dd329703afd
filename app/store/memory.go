package store

import (
	"context"
	"sync"
)

// Memory is an in-memory Store used by tests and as a fallback when no
// database path is configured.
type Memory struct {
	mu   sync.RWMutex
	data map[string]string
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{data: make(map[string]string)}
}

func (m *Memory) Get(_ context.Context, bucket, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	value, ok := m.data[bucket+"\x00"+key]
	return value, ok, nil
}

func (m *Memory) Set(_ context.Context, bucket, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[bucket+"\x00"+key] = value
	return nil
}

func (m *Memory) Delete(_ context.Context, bucket, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, bucket+"\x00"+key)
	return nil
}
