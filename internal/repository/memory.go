package repository

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

// MemoryStore keeps snapshots in process memory; used as the failover target
// and in tests.
type MemoryStore struct {
	entries sync.Map
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{now: time.Now}
}

func (r *MemoryStore) Load(ctx context.Context, key string) ([]byte, error) {
	val, ok := r.entries.Load(key)
	if !ok {
		return nil, nil
	}
	entry := val.(*memoryEntry)
	if !entry.expiresAt.IsZero() && r.now().After(entry.expiresAt) {
		r.entries.Delete(key)
		return nil, nil
	}
	return append([]byte(nil), entry.data...), nil
}

func (r *MemoryStore) Save(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	entry := &memoryEntry{data: append([]byte(nil), data...)}
	if ttl > 0 {
		entry.expiresAt = r.now().Add(ttl)
	}
	r.entries.Store(key, entry)
	return nil
}

func (r *MemoryStore) Delete(ctx context.Context, key string) error {
	r.entries.Delete(key)
	return nil
}
