package storage

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps sealed blobs in a map. It is used by tests and by
// `storage.backend: memory` development runs.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
	sealer  *Sealer
}

var _ BlobStore = (*MemoryStore)(nil)

// NewMemoryStore returns an empty store. A nil sealer stores plaintext.
func NewMemoryStore(sealer *Sealer) *MemoryStore {
	return &MemoryStore{objects: make(map[string][]byte), sealer: sealer}
}

func (m *MemoryStore) Put(_ context.Context, key string, data []byte, _ map[string]string) (*PutResult, error) {
	stored := append([]byte(nil), data...)
	if m.sealer != nil {
		sealed, err := m.sealer.Seal(data)
		if err != nil {
			return nil, err
		}
		stored = sealed
	}

	m.mu.Lock()
	m.objects[key] = stored
	m.mu.Unlock()

	return &PutResult{
		Key:        key,
		Hash:       Hash(data),
		Size:       int64(len(data)),
		UploadedAt: time.Now().UTC(),
	}, nil
}

func (m *MemoryStore) Get(_ context.Context, key string) (*Object, error) {
	m.mu.RLock()
	stored, ok := m.objects[key]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrObjectNotFound
	}

	data := append([]byte(nil), stored...)
	if m.sealer != nil {
		plain, err := m.sealer.Open(stored)
		if err != nil {
			return nil, err
		}
		data = plain
	}
	return &Object{Data: data, Hash: Hash(data), Size: int64(len(data))}, nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.objects, key)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Exists(_ context.Context, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.objects[key]
	return ok, nil
}

// Corrupt overwrites the stored bytes under key, bypassing the sealer.
func (m *MemoryStore) Corrupt(key string, raw []byte) {
	m.mu.Lock()
	m.objects[key] = raw
	m.mu.Unlock()
}

// Keys lists the stored keys in no particular order.
func (m *MemoryStore) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	return keys
}
