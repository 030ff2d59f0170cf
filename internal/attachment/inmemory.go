package attachment

import (
	"context"
	"sync"
)

// InMemoryStore keeps attachment content in-process for local/dev use.
type InMemoryStore struct {
	mu      sync.RWMutex
	content map[string]string
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{content: make(map[string]string)}
}

func (s *InMemoryStore) Resolve(_ context.Context, ref string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	content, ok := s.content[ref]
	if !ok {
		return "", ErrNotFound
	}
	return content, nil
}

func (s *InMemoryStore) Put(_ context.Context, ref, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.content[ref] = content
	return nil
}

func (s *InMemoryStore) Close() error { return nil }
