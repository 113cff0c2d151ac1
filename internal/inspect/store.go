package inspect

import (
	"context"
	"sync"
)

// Store memoizes evaluated children by index.
type Store struct {
	mu       sync.Mutex
	children map[int]Child
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{children: make(map[int]Child)}
}

// Get returns the child stored at index i.
func (s *Store) Get(i int) (Child, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.children[i]
	return c, ok
}

// Save stores c at index i, replacing any previous value.
func (s *Store) Save(i int, c Child) {
	s.mu.Lock()
	s.children[i] = c
	s.mu.Unlock()
}

// GetOrEvaluate returns the child at index i, calling eval and storing the
// result when it is not known yet. Errors are not stored.
func (s *Store) GetOrEvaluate(ctx context.Context, i int, eval func(ctx context.Context, i int) (Child, error)) (Child, error) {
	if c, ok := s.Get(i); ok {
		return c, nil
	}

	c, err := eval(ctx, i)
	if err != nil {
		return nil, err
	}

	s.Save(i, c)
	return c, nil
}

// Len returns the number of stored children.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.children)
}

// Reset drops every stored child.
func (s *Store) Reset() {
	s.mu.Lock()
	s.children = make(map[int]Child)
	s.mu.Unlock()
}
