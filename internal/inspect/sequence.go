package inspect

import (
	"context"
	"sync"
)

// NextFunc yields the next element of a forward-only walk. It returns false
// once the walk is exhausted.
type NextFunc func(ctx context.Context) (Child, bool, error)

// Sequence is an entity over a structure that can only be enumerated from
// the start, such as a linked list or a tree walked in order. Its size is
// unknown until the walk ends, so counting honors the children limit and
// stops walking once the limit is reached.
//
// The known count only grows: raising the limit resumes the walk, lowering
// it keeps what was already found. A walk error is stored as a trailing
// ErrorChild and ends the sequence.
type Sequence struct {
	base

	next  NextFunc
	store *Store

	mu     sync.Mutex
	walked int
	done   bool
	limit  int
}

// NewSequence creates a sequence over next.
func NewSequence(next NextFunc, opts ...Option) *Sequence {
	s := &Sequence{
		next:  next,
		store: NewStore(),
	}
	s.apply(opts)
	return s
}

// SetChildrenLimit implements Entity. Zero means unlimited.
func (s *Sequence) SetChildrenLimit(n int) {
	s.mu.Lock()
	s.limit = max(0, n)
	s.mu.Unlock()
}

// ChildrenLimit returns the current hint.
func (s *Sequence) ChildrenLimit() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.limit
}

// Walked returns how many elements have been produced so far.
func (s *Sequence) Walked() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.walked
}

// CountChildren walks until the end or the children limit and returns the
// number of elements found.
func (s *Sequence) CountChildren(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for !s.done && (s.limit == 0 || s.walked < s.limit) {
		if err := s.step(ctx); err != nil {
			return 0, err
		}
	}
	return s.walked, nil
}

// GetChildren walks far enough to cover the requested range.
func (s *Sequence) GetChildren(ctx context.Context, start, count int) ([]Child, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	end := start + count
	for !s.done && s.walked < end {
		if err := s.step(ctx); err != nil {
			return nil, err
		}
	}

	end = min(end, s.walked)
	result := make([]Child, 0, max(0, end-start))
	for i := max(0, start); i < end; i++ {
		c, _ := s.store.Get(i)
		result = append(result, c)
	}
	return result, nil
}

// step produces one element. Only context cancellation is returned as an
// error; other failures end the sequence with an ErrorChild.
func (s *Sequence) step(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c, ok, err := s.next(ctx)
	switch {
	case err != nil:
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.store.Save(s.walked, NewErrorChild("<Error>", err))
		s.walked++
		s.done = true
	case !ok:
		s.done = true
	default:
		s.store.Save(s.walked, c)
		s.walked++
	}
	return nil
}
