package cache

import (
	"context"
	"sync"
)

// MemoryBackend is an in-process Backend for development and tests. Entries
// never expire; the process lifetime bounds the cache.
type MemoryBackend struct {
	mu      sync.RWMutex
	entries map[string][]float32
}

// NewMemoryBackend creates an empty in-process backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{entries: make(map[string][]float32)}
}

func (b *MemoryBackend) Get(_ context.Context, key string) ([]float32, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	vec, ok := b.entries[key]
	if !ok {
		return nil, false, nil
	}
	return append([]float32(nil), vec...), true, nil
}

func (b *MemoryBackend) Set(_ context.Context, key string, vec []float32) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.entries[key] = append([]float32(nil), vec...)
	return nil
}

func (b *MemoryBackend) Close() error {
	return nil
}

var _ Backend = (*MemoryBackend)(nil)
