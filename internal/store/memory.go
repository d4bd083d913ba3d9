package store

import (
	"context"
	"sync"
)

// Memory keeps everything in process. It is the default when no durable
// store is configured.
type Memory struct {
	mu     sync.RWMutex
	player map[string][]byte
	shared map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{
		player: make(map[string][]byte),
		shared: make(map[string][]byte),
	}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	return m.get(m.player, key)
}

func (m *Memory) Set(_ context.Context, key string, value []byte) error {
	return m.set(m.player, key, value)
}

func (m *Memory) GetShared(_ context.Context, key string) ([]byte, bool, error) {
	return m.get(m.shared, key)
}

func (m *Memory) SetShared(_ context.Context, key string, value []byte) error {
	return m.set(m.shared, key, value)
}

func (m *Memory) Close() error { return nil }

func (m *Memory) get(ns map[string][]byte, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := ns[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (m *Memory) set(ns map[string][]byte, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ns[key] = append([]byte(nil), value...)
	return nil
}
