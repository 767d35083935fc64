package conversation

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// memStore is an in-memory Store for tests.
type memStore struct {
	mu       sync.Mutex
	logs     map[string][]Message
	reads    int
	failNext error
}

func newMemStore() *memStore {
	return &memStore{logs: make(map[string][]Message)}
}

func (s *memStore) key(org int64, session string) string {
	return fmt.Sprintf("%d/%s", org, session)
}

func (s *memStore) Messages(_ context.Context, org int64, session string) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	if err := s.failNext; err != nil {
		s.failNext = nil
		return nil, err
	}
	msgs := s.logs[s.key(org, session)]
	if msgs == nil {
		return nil, nil
	}
	return append([]Message(nil), msgs...), nil
}

func (s *memStore) Append(_ context.Context, org int64, session string, msgs ...Message) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failNext; err != nil {
		s.failNext = nil
		return 0, err
	}
	k := s.key(org, session)
	s.logs[k] = append(s.logs[k], msgs...)
	return len(s.logs[k]), nil
}

var errStore = errors.New("store unavailable")
