package storage

import (
	"context"
	"sync"
)

type memoryStore struct {
	mu   sync.RWMutex
	data map[string]map[string]string
}

// NewMemory returns a process-local store.
func NewMemory() Store {
	return &memoryStore{data: map[string]map[string]string{}}
}

func (s *memoryStore) Get(_ context.Context, namespace, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[namespace][key]
	return v, ok, nil
}

func (s *memoryStore) Set(_ context.Context, namespace, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ns := s.data[namespace]
	if ns == nil {
		ns = map[string]string{}
		s.data[namespace] = ns
	}
	ns[key] = value
	return nil
}

func (s *memoryStore) Close() error { return nil }
