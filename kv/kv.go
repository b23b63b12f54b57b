// Package kv holds the durable blob stores notes are persisted in. Every
// store is synchronous and keyed; values are written whole.
package kv

import (
	"fmt"
	"sync"
)

const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

type Store interface {
	Get(key string) ([]byte, bool, error)
	Set(key string, blob []byte) error
	Close() error
}

// Open returns the store for backend rooted at path.
func Open(backend, path string) (Store, error) {
	switch backend {
	case BackendFile, "":
		return NewFile(path)
	case BackendSQLite:
		return NewSQLite(path)
	case BackendMemory:
		return NewMemory(), nil
	}
	return nil, fmt.Errorf("unknown storage backend %q", backend)
}

type Memory struct {
	mu     sync.Mutex
	values map[string][]byte
	writes int
}

func NewMemory() *Memory {
	return &Memory{values: make(map[string][]byte)}
}

func (m *Memory) Get(key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (m *Memory) Set(key string, blob []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = append([]byte(nil), blob...)
	m.writes++
	return nil
}

// Writes counts Set calls.
func (m *Memory) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

func (m *Memory) Close() error { return nil }
