package inspect

import (
	"context"
	"sync"
)

// SizeFunc returns the number of elements of a collection.
type SizeFunc func(ctx context.Context) (int, error)

// ItemFunc evaluates element i of a collection.
type ItemFunc func(ctx context.Context, i int) (Child, error)

// Indexed is an entity over a collection whose size is known up front and
// whose elements can be evaluated independently by index, such as arrays
// and index-addressable lists.
//
// The size is evaluated once. Elements are evaluated lazily and memoized.
// An element that fails to evaluate is reported as an ErrorChild instead of
// failing the whole page.
type Indexed struct {
	base

	size  SizeFunc
	item  ItemFunc
	store *Store

	mu    sync.Mutex
	count int
	known bool
	limit int
}

// NewIndexed creates an entity over size and item.
func NewIndexed(size SizeFunc, item ItemFunc, opts ...Option) *Indexed {
	e := &Indexed{
		size:  size,
		item:  item,
		store: NewStore(),
	}
	e.apply(opts)
	return e
}

// NewSlice creates an Indexed entity over a fixed slice of children.
func NewSlice(children []Child, opts ...Option) *Indexed {
	return NewIndexed(
		func(context.Context) (int, error) { return len(children), nil },
		func(_ context.Context, i int) (Child, error) { return children[i], nil },
		opts...,
	)
}

// SetChildrenLimit records the hint. The size of an indexed collection is
// known without enumerating it, so the hint does not change anything.
func (e *Indexed) SetChildrenLimit(n int) {
	e.mu.Lock()
	e.limit = n
	e.mu.Unlock()
}

// ChildrenLimit returns the last hint.
func (e *Indexed) ChildrenLimit() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.limit
}

// CountChildren implements Entity.
func (e *Indexed) CountChildren(ctx context.Context) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.known {
		return e.count, nil
	}

	n, err := e.size(ctx)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		n = 0
	}

	e.count = n
	e.known = true
	return n, nil
}

// GetChildren implements Entity.
func (e *Indexed) GetChildren(ctx context.Context, start, count int) ([]Child, error) {
	total, err := e.CountChildren(ctx)
	if err != nil {
		return nil, err
	}

	end := min(start+count, total)
	result := make([]Child, 0, max(0, end-start))
	for i := max(0, start); i < end; i++ {
		c, err := e.store.GetOrEvaluate(ctx, i, e.item)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c = NewErrorChild(IndexName(i), err)
		}
		result = append(result, c)
	}

	return result, nil
}
