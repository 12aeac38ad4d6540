package audit

import (
	"context"
	"sync"
)

// InMemoryStore keeps every event in one process-local log.
type InMemoryStore struct {
	mu  sync.RWMutex
	log []Event
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Append(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log = append(s.log, event)
	return nil
}

func (s *InMemoryStore) ListByUser(_ context.Context, userID string) ([]Event, error) {
	return s.filter(func(e Event) bool { return e.UserID == userID }), nil
}

// ListByDocument returns the events that touched one document, across actors.
func (s *InMemoryStore) ListByDocument(documentID string) []Event {
	return s.filter(func(e Event) bool { return e.DocumentID == documentID })
}

// Actions lists the recorded actions for a user in order.
func (s *InMemoryStore) Actions(userID string) []string {
	events := s.filter(func(e Event) bool { return e.UserID == userID })
	out := make([]string, 0, len(events))
	for _, e := range events {
		out = append(out, e.Action)
	}
	return out
}

func (s *InMemoryStore) filter(keep func(Event) bool) []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Event
	for _, e := range s.log {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}
