package blob

import (
	"context"
	"errors"
	"sync"

	"signflow.org/internal/ids"
)

// InMemory keeps objects in process memory. Used by tests and by the API when
// no gateway URL is configured.
type InMemory struct {
	mu      sync.Mutex
	objects map[string][]byte

	// FailPut and FailDelete force the next calls to fail, for exercising
	// partial-failure paths in the signing protocol.
	FailPut    bool
	FailDelete bool
}

var _ Store = (*InMemory)(nil)

// NewInMemory creates an empty in-memory object store.
func NewInMemory() *InMemory {
	return &InMemory{objects: make(map[string][]byte)}
}

func (s *InMemory) Put(ctx context.Context, data []byte, contentType, name string) (Object, error) {
	if len(data) == 0 {
		return Object{}, errors.New("blob: empty content")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailPut {
		return Object{}, errors.New("blob: simulated upload failure")
	}
	id := ids.New()
	cp := make([]byte, len(data))
	copy(cp, data)
	s.objects[id] = cp
	return Object{ID: id, URL: "memory://" + id + "/" + name}, nil
}

func (s *InMemory) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailDelete {
		return errors.New("blob: simulated delete failure")
	}
	if _, ok := s.objects[id]; !ok {
		return ErrNotFound
	}
	delete(s.objects, id)
	return nil
}

// Get returns stored bytes; test helper.
func (s *InMemory) Get(id string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[id]
	return data, ok
}

// Len reports how many objects are currently stored; test helper.
func (s *InMemory) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}
