package judgments

import (
	"context"
	"sort"
	"sync"

	"github.com/aiengineer/rageval/internal/pkg/errors"
)

// MemoryStore keeps judgments in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	queries map[string]map[string]struct{}
	closed  bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		queries: make(map[string]map[string]struct{}),
	}
}

// Add records judgments.
func (s *MemoryStore) Add(_ context.Context, judgments []Judgment) error {
	if err := validate(judgments); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errors.ServiceUnavailableError("judgments store")
	}

	for _, j := range judgments {
		docs, ok := s.queries[j.QueryID]
		if !ok {
			docs = make(map[string]struct{})
			s.queries[j.QueryID] = docs
		}
		docs[j.DocID] = struct{}{}
	}
	return nil
}

// GroundTruth returns the relevant doc IDs for a query.
func (s *MemoryStore) GroundTruth(_ context.Context, queryID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, errors.ServiceUnavailableError("judgments store")
	}

	docs := s.queries[queryID]
	ids := make([]string, 0, len(docs))
	for id := range docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Queries returns all judged query IDs.
func (s *MemoryStore) Queries(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, errors.ServiceUnavailableError("judgments store")
	}

	ids := make([]string, 0, len(s.queries))
	for id := range s.queries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Delete removes a query's judgments.
func (s *MemoryStore) Delete(_ context.Context, queryID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errors.ServiceUnavailableError("judgments store")
	}
	if _, ok := s.queries[queryID]; !ok {
		return errors.NotFoundError("query " + queryID)
	}
	delete(s.queries, queryID)
	return nil
}

// Close marks the store closed.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.queries = nil
	return nil
}
