package inspect

import (
	"context"
	"errors"
)

// SkipChildren can be returned by a VisitFunc to leave a child unexpanded.
var SkipChildren = errors.New("skip children")

// VisitFunc is called for every child reached by Walk. depth is 0 for the
// children of the root entity.
type VisitFunc func(depth int, c Child) error

// WalkOptions bounds a Walk.
type WalkOptions struct {
	// MaxDepth is the number of levels visited. Zero means one level.
	MaxDepth int

	// MaxPages is the number of pages followed per level through
	// continuation placeholders. Once reached, the placeholder itself is
	// visited. Zero means one page.
	MaxPages int
}

// Walk visits the children of e depth first.
func Walk(ctx context.Context, e Entity, opts WalkOptions, visit VisitFunc) error {
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = 1
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = 1
	}

	w := walker{opts: opts, visit: visit}
	return w.level(ctx, e, 0, 1)
}

type walker struct {
	opts  WalkOptions
	visit VisitFunc
}

func (w walker) level(ctx context.Context, e Entity, depth, page int) error {
	if !e.IsValid(ctx) {
		return nil
	}

	n, err := e.CountChildren(ctx)
	if err != nil {
		return err
	}
	if n == 0 {
		return nil
	}

	children, err := e.GetChildren(ctx, 0, n)
	if err != nil {
		return err
	}

	for _, c := range children {
		if err := ctx.Err(); err != nil {
			return err
		}

		if IsMore(c) && page < w.opts.MaxPages {
			if err := w.level(ctx, c.ChildAdapter(), depth, page+1); err != nil {
				return err
			}
			continue
		}

		err := w.visit(depth, c)
		if errors.Is(err, SkipChildren) {
			continue
		}
		if err != nil {
			return err
		}
		if IsMore(c) {
			continue
		}

		if adapter := c.ChildAdapter(); adapter != nil && depth+1 < w.opts.MaxDepth {
			if err := w.level(ctx, adapter, depth+1, 1); err != nil {
				return err
			}
		}
	}

	return nil
}
