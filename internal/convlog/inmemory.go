package convlog

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryStore is a simple in-process conversation log for local/dev use.
type InMemoryStore struct {
	mu    sync.RWMutex
	turns map[spaceKey][]Turn
}

type spaceKey struct {
	participant string
	space       string
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{turns: make(map[spaceKey][]Turn)}
}

func (s *InMemoryStore) AppendTurn(_ context.Context, t Turn) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	key := spaceKey{participant: t.Participant, space: t.Space}
	s.turns[key] = append(s.turns[key], t)
	return int64(len(s.turns[key]) - 1), nil
}

func (s *InMemoryStore) LastTurns(_ context.Context, participant, space string, k int) ([]Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	arr := s.turns[spaceKey{participant: participant, space: space}]
	if len(arr) == 0 {
		return nil, nil
	}
	if k <= 0 || k > len(arr) {
		k = len(arr)
	}
	out := make([]Turn, 0, k)
	for i := len(arr) - k; i < len(arr); i++ {
		out = append(out, arr[i])
	}
	return out, nil
}

func (s *InMemoryStore) Close() error { return nil }
