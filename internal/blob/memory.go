package blob

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore is an in-process Store used by the local server when no bucket
// is configured, and by tests.
type MemoryStore struct {
	mu      sync.Mutex
	objects map[string]StoredObject
}

// StoredObject is a MemoryStore entry.
type StoredObject struct {
	Data []byte
	Object
}

// Compile-time interface check.
var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string]StoredObject)}
}

func (m *MemoryStore) Put(_ context.Context, key string, data []byte, obj Object) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[key]; ok {
		return fmt.Errorf("put %s: %w", key, ErrExists)
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	m.objects[key] = StoredObject{Data: buf, Object: obj}
	return nil
}

// Get returns the stored object for key.
func (m *MemoryStore) Get(key string) (StoredObject, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.objects[key]
	return o, ok
}

// Len returns the number of stored objects.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}

// URL returns the key unchanged; memory objects have no public address.
func (m *MemoryStore) URL(key string) string { return key }
