package draft

import (
	"context"
	"sync"
)

// MemoryStore keeps documents in process memory. It backs dev mode and
// tests. The mutex protects the map itself, not the read-merge-write
// sequence above it, so the accessor's race semantics match the other
// backends.
type MemoryStore struct {
	mu   sync.Mutex
	docs map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string][]byte)}
}

func storageKey(ownerID, key string) string {
	return ownerID + "\x00" + key
}

func (m *MemoryStore) ReadRaw(ctx context.Context, ownerID, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.docs[storageKey(ownerID, key)]
	if !ok {
		return nil, nil
	}
	copied := make([]byte, len(raw))
	copy(copied, raw)
	return copied, nil
}

func (m *MemoryStore) WriteRaw(ctx context.Context, ownerID, key string, raw []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := make([]byte, len(raw))
	copy(copied, raw)
	m.docs[storageKey(ownerID, key)] = copied
	return nil
}
