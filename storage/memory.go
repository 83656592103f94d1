package storage

import (
	"strconv"
	"sync"
)

// Compile-time interface check.
var _ Store = (*Memory)(nil)

// Memory is an in-memory Store. It is safe for concurrent use and is the
// default backend for tests and ephemeral sessions.
type Memory struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{values: make(map[string]string)}
}

// GetString returns the value for key, or ("", false) if absent.
func (m *Memory) GetString(key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok
}

// SetString writes a string value.
func (m *Memory) SetString(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

// GetInt64 returns the numeric value for key, or (0, false) if the key is
// absent or not numeric.
func (m *Memory) GetInt64(key string) (int64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// SetInt64 writes a numeric value.
func (m *Memory) SetInt64(key string, value int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = strconv.FormatInt(value, 10)
	return nil
}

// Delete removes a key.
func (m *Memory) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}
