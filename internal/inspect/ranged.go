package inspect

import (
	"context"
	"fmt"
)

// Ranged is a window of at most pageSize children of a wrapped entity,
// starting at an absolute offset. When the wrapped entity has more children
// than fit, the window gets one extra slot holding a MoreChild that expands
// into the next window.
//
// A Ranged view holds no mutable state. The wrapped entity is shared by
// every page of a chain.
type Ranged struct {
	offset   int
	pageSize int
	inner    Entity
}

// First returns the window starting at the first child of inner.
func First(pageSize int, inner Entity) *Ranged {
	return StartFrom(0, pageSize, inner)
}

// StartFrom returns the window starting at the given absolute offset.
// Offsets past the end are accepted and yield empty results.
func StartFrom(offset, pageSize int, inner Entity) *Ranged {
	if pageSize <= 0 {
		panic(fmt.Errorf("%w: %d", ErrInvalidPageSize, pageSize))
	}
	if offset < 0 {
		panic(fmt.Errorf("%w: %d", ErrInvalidOffset, offset))
	}
	return &Ranged{offset: offset, pageSize: pageSize, inner: inner}
}

// Offset returns the absolute index of the first child in the window.
func (r *Ranged) Offset() int { return r.offset }

// PageSize returns the maximum number of real children in the window.
func (r *Ranged) PageSize() int { return r.pageSize }

// Inner returns the wrapped entity.
func (r *Ranged) Inner() Entity { return r.inner }

// IsValid delegates to the wrapped entity.
func (r *Ranged) IsValid(ctx context.Context) bool {
	return r.inner.IsValid(ctx)
}

// SetChildrenLimit is a no-op. The view bounds its own count and asserts
// its own hint on the wrapped entity before every count.
func (r *Ranged) SetChildrenLimit(int) {}

// CountChildren returns the number of children left from the offset,
// capped at pageSize+1 so that callers can tell a full page from a page
// followed by more data.
func (r *Ranged) CountChildren(ctx context.Context) (int, error) {
	// Counting past the end of this window plus the continuation slot is
	// wasted work.
	r.inner.SetChildrenLimit(r.offset + r.pageSize + 1)

	total, err := r.inner.CountChildren(ctx)
	if err != nil {
		return 0, err
	}

	remaining := max(0, total-r.offset)
	return min(remaining, r.pageSize+1), nil
}

// GetChildren returns children of the window. start and count are relative
// to the window, so index 0 is the child at Offset. Index pageSize is
// reserved for the continuation placeholder, which is only returned when
// the requested range covers it and the wrapped entity has more children.
func (r *Ranged) GetChildren(ctx context.Context, start, count int) ([]Child, error) {
	if count <= 0 || start < 0 {
		return []Child{}, nil
	}

	boundary := r.pageSize

	// Only a window covering the boundary can hold the continuation, so
	// only then is the bounded count needed.
	includeMore := false
	if start <= boundary && boundary < start+count {
		n, err := r.CountChildren(ctx)
		if err != nil {
			return nil, err
		}
		includeMore = n > r.pageSize
	}

	result := []Child{}

	realAvailable := max(0, min(count, boundary-start))
	if realAvailable > 0 {
		children, err := r.inner.GetChildren(ctx, r.offset+start, realAvailable)
		if err != nil {
			return nil, err
		}
		result = append(result, children[:min(len(children), realAvailable)]...)
	}

	if includeMore {
		result = append(result, NewMoreChild(r.next()))
	}

	return result, nil
}

// next returns the window that follows this one.
func (r *Ranged) next() *Ranged {
	return StartFrom(r.offset+r.pageSize, r.pageSize, r.inner)
}

// String describes the window for logs.
func (r *Ranged) String() string {
	return fmt.Sprintf("ranged[%d:+%d]", r.offset, r.pageSize)
}
