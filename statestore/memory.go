package statestore

import (
	"context"
	"path/filepath"
	"sort"
	"sync"
)

// MemoryStore is an in-memory Store for tests and single-process
// deployments. Values are stored as given, so round trips are exact.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]any
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]any)}
}

// Get returns the value under key.
func (s *MemoryStore) Get(ctx context.Context, key string) (any, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	val, ok := s.items[key]
	return val, ok, nil
}

// Set stores val under key.
func (s *MemoryStore) Set(ctx context.Context, key string, val any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[key] = val
	return nil
}

// Keys returns the sorted keys matching pattern. Glob syntax follows
// path.Match; keys never contain a path separator so '*' spans the whole key.
func (s *MemoryStore) Keys(ctx context.Context, pattern string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := filepath.Match(pattern, ""); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0)
	for k := range s.items {
		if ok, _ := filepath.Match(pattern, k); ok {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out, nil
}

// MultiGet returns the values for keys in order. Absent keys yield nil.
func (s *MemoryStore) MultiGet(ctx context.Context, keys []string) ([]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]any, len(keys))
	for i, k := range keys {
		out[i] = s.items[k]
	}
	return out, nil
}

// Delete removes key. Used by tests and eviction tooling.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, key)
	return nil
}

// Len returns the number of stored keys.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// compile-time interface check
var _ Store = (*MemoryStore)(nil)
