package inspect

import "context"

// Composite presents the children of several entities as one list, in
// order. A struct with a few named fields followed by a paged array is a
// Composite of a slice entity and a Ranged view.
type Composite struct {
	parts []Entity
}

// NewComposite concatenates parts.
func NewComposite(parts ...Entity) *Composite {
	return &Composite{parts: parts}
}

// Parts returns the concatenated entities.
func (c *Composite) Parts() []Entity {
	return append([]Entity{}, c.parts...)
}

// IsValid reports whether every part is valid.
func (c *Composite) IsValid(ctx context.Context) bool {
	for _, p := range c.parts {
		if !p.IsValid(ctx) {
			return false
		}
	}
	return true
}

// SetChildrenLimit is a no-op. Parts that need bounding are wrapped in
// their own Ranged views.
func (c *Composite) SetChildrenLimit(int) {}

// CountChildren returns the sum of the parts' counts.
func (c *Composite) CountChildren(ctx context.Context) (int, error) {
	total := 0
	for _, p := range c.parts {
		n, err := p.CountChildren(ctx)
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}

// GetChildren collects the requested range across parts.
func (c *Composite) GetChildren(ctx context.Context, start, count int) ([]Child, error) {
	result := []Child{}
	partStart := 0

	for _, p := range c.parts {
		if partStart >= start+count {
			break
		}

		n, err := p.CountChildren(ctx)
		if err != nil {
			return nil, err
		}

		if from, k, ok := intersect(start, count, partStart, n); ok {
			children, err := p.GetChildren(ctx, from-partStart, k)
			if err != nil {
				return nil, err
			}
			result = append(result, children...)
		}

		partStart += n
	}

	return result, nil
}

// intersect intersects [from1, from1+count1) with [from2, from2+count2).
func intersect(from1, count1, from2, count2 int) (from, count int, ok bool) {
	from = max(from1, from2)
	count = min(from1+count1, from2+count2) - from
	return from, count, count > 0
}
