package cachestore

import (
	"context"
	"time"

	"github.com/hranalytics/explaind/internal/api"
	"github.com/hranalytics/explaind/internal/cache"
)

const memoryKey = "explain:global"

// MemoryStore keeps the cached explanation in process memory on an LRU with
// TTL. Useful for tests and single-instance deployments without disk.
type MemoryStore struct {
	cache *cache.LRUWithTTL[string, *Entry]
}

// NewMemoryStore creates an in-memory store.
func NewMemoryStore() (*MemoryStore, error) {
	c, err := cache.NewLRUWithTTL[string, *Entry](8, TTL)
	if err != nil {
		return nil, err
	}
	return &MemoryStore{cache: c}, nil
}

func (m *MemoryStore) Load(ctx context.Context) (*api.GlobalExplanation, error) {
	entry, ok := m.cache.Get(memoryKey)
	if !ok || entry.Expired(time.Now()) {
		return nil, nil
	}
	return entry.Explanation, nil
}

func (m *MemoryStore) Save(ctx context.Context, explanation *api.GlobalExplanation) error {
	m.cache.Set(memoryKey, NewEntry(explanation))
	return nil
}

func (m *MemoryStore) Clear(ctx context.Context) error {
	m.cache.Delete(memoryKey)
	return nil
}

func (m *MemoryStore) Close() error {
	m.cache.Clear()
	return nil
}
