// Package blob stores serialized index payloads outside the relational row
package blob

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a key has no object
var ErrNotFound = errors.New("blob: not found")

// Store persists opaque byte payloads under generated keys
type Store interface {
	// Name identifies the backend in logs and status output
	Name() string
	// Put writes data and returns the key to persist alongside the checkpoint
	Put(ctx context.Context, prefix string, data []byte) (string, error)
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// NewKey builds a unique object name under prefix
func NewKey(prefix string) string {
	if prefix == "" {
		return uuid.NewString()
	}
	return prefix + "/" + uuid.NewString()
}

// Memory is an in-process Store used by tests and single-node dev setups
type Memory struct {
	mu   sync.RWMutex
	objs map[string][]byte
}

// NewMemory returns an empty Memory store
func NewMemory() *Memory { return &Memory{objs: map[string][]byte{}} }

// Name implements Store
func (m *Memory) Name() string { return "memory" }

// Ping always succeeds
func (m *Memory) Ping(context.Context) error { return nil }

// Put implements Store
func (m *Memory) Put(_ context.Context, prefix string, data []byte) (string, error) {
	k := NewKey(prefix)
	cp := append([]byte(nil), data...)
	m.mu.Lock()
	m.objs[k] = cp
	m.mu.Unlock()
	return k, nil
}

// Get implements Store
func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.objs[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), b...), nil
}

// Delete implements Store
func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.objs, key)
	m.mu.Unlock()
	return nil
}

// Len reports the number of stored objects
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objs)
}
