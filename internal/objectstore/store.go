// Package objectstore reads and writes raw log bytes.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrNotFound is returned when a key does not exist.
var ErrNotFound = errors.New("object not found")

// DefaultBucket holds raw logs.
const DefaultBucket = "logs"

// Store is a bucketed key/value blob store.
type Store interface {
	Put(ctx context.Context, key string, data []byte, bucket string) error
	Get(ctx context.Context, key, bucket string) ([]byte, error)
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string][]byte)}
}

// Put implements Store.
func (m *MemoryStore) Put(_ context.Context, key string, data []byte, bucket string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[bucket+"/"+key] = append([]byte(nil), data...)
	return nil
}

// Get implements Store.
func (m *MemoryStore) Get(_ context.Context, key, bucket string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[bucket+"/"+key]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, bucket, key)
	}
	return append([]byte(nil), data...), nil
}
