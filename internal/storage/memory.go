package storage

import (
	"context"
	"sync"
)

// MemoryPersister keeps the snapshot in process memory, for development and tests
type MemoryPersister struct {
	mu        sync.Mutex
	namespace string
	data      map[string][]byte
}

// NewMemoryPersister creates an empty in-memory persister
func NewMemoryPersister(namespace string) (*MemoryPersister, error) {
	if namespace == "" {
		return nil, errEmptyNamespace
	}
	return &MemoryPersister{
		namespace: namespace,
		data:      make(map[string][]byte),
	}, nil
}

// Save stores the encoded snapshot
func (m *MemoryPersister) Save(ctx context.Context, snap Snapshot) error {
	data, err := encodeSnapshot(snap)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[m.namespace] = data
	return nil
}

// Load returns the stored snapshot, or nil
func (m *MemoryPersister) Load(ctx context.Context) (*Snapshot, error) {
	m.mu.Lock()
	data, ok := m.data[m.namespace]
	m.mu.Unlock()
	if !ok {
		return nil, nil
	}
	return decodeSnapshot(data)
}

// Clear removes the stored snapshot
func (m *MemoryPersister) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, m.namespace)
	return nil
}

func (m *MemoryPersister) Close() error { return nil }
