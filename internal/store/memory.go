package store

import (
	"context"
	"sync"
)

// MemoryStore is an in-process RecordStore used in tests and when no store
// URL is configured.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string][]byte
	lists  map[string][][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		values: make(map[string][]byte),
		lists:  make(map[string][][]byte),
	}
}

var _ RecordStore = (*MemoryStore)(nil)

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	val, ok := s.values[key]
	if !ok {
		return nil, ErrNotFound
	}

	cp := make([]byte, len(val))
	copy(cp, val)
	return cp, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := make([]byte, len(value))
	copy(cp, value)
	s.values[key] = cp
	return nil
}

func (s *MemoryStore) Append(_ context.Context, key string, element []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := make([]byte, len(element))
	copy(cp, element)
	s.lists[key] = append(s.lists[key], cp)
	return nil
}

func (s *MemoryStore) GetList(_ context.Context, key string) ([][]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	elements := make([][]byte, len(s.lists[key]))
	for i, el := range s.lists[key] {
		cp := make([]byte, len(el))
		copy(cp, el)
		elements[i] = cp
	}
	return elements, nil
}

func (s *MemoryStore) Ping(_ context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }
