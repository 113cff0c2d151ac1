package inspect

import (
	"context"
	"fmt"
)

// MoreLabel is the display name of the continuation placeholder.
// Presentation layers match on it literally.
const MoreLabel = "[More]"

// Entity is anything that can be expanded into an ordered list of children.
type Entity interface {
	// IsValid reports whether the entity still represents live data.
	IsValid(ctx context.Context) bool

	// SetChildrenLimit hints that children beyond n need not be computed.
	// Zero removes the hint.
	SetChildrenLimit(n int)

	// CountChildren returns the number of children, honoring the most
	// recent limit hint when the entity supports it.
	CountChildren(ctx context.Context) (int, error)

	// GetChildren returns up to count children starting at index start.
	GetChildren(ctx context.Context, start, count int) ([]Child, error)
}

// Child is a single row shown under an expanded entity.
type Child interface {
	// DisplayName is the name shown for the row.
	DisplayName() string

	// Value is the formatted value.
	Value() string

	// Type is the type name, empty when unknown.
	Type() string

	// ChildAdapter returns the entity the row expands into, or nil.
	ChildAdapter() Entity
}

// Item is a plain Child value.
type Item struct {
	Name     string
	Val      string
	TypeName string
	Adapter  Entity
}

// DisplayName implements Child.
func (i Item) DisplayName() string { return i.Name }

// Value implements Child.
func (i Item) Value() string { return i.Val }

// Type implements Child.
func (i Item) Type() string { return i.TypeName }

// ChildAdapter implements Child.
func (i Item) ChildAdapter() Entity { return i.Adapter }

// MoreChild is the continuation placeholder appended to a full page.
type MoreChild struct {
	next Entity
}

// NewMoreChild returns a placeholder that expands into next.
func NewMoreChild(next Entity) MoreChild {
	return MoreChild{next: next}
}

// DisplayName implements Child.
func (m MoreChild) DisplayName() string { return MoreLabel }

// Value is a single space so that no preview is rendered.
func (m MoreChild) Value() string { return " " }

// Type implements Child.
func (m MoreChild) Type() string { return "" }

// ChildAdapter implements Child.
func (m MoreChild) ChildAdapter() Entity { return m.next }

// IsMore reports whether c is a continuation placeholder.
func IsMore(c Child) bool {
	if _, ok := c.(MoreChild); ok {
		return true
	}
	return c != nil && c.DisplayName() == MoreLabel && c.ChildAdapter() != nil
}

// ErrorChild reports a failure for a single element in place of its value.
type ErrorChild struct {
	Name    string
	Message string
}

// NewErrorChild builds an ErrorChild from err.
func NewErrorChild(name string, err error) ErrorChild {
	return ErrorChild{Name: name, Message: err.Error()}
}

// DisplayName implements Child.
func (e ErrorChild) DisplayName() string { return e.Name }

// Value implements Child.
func (e ErrorChild) Value() string { return fmt.Sprintf("<Error> %s", e.Message) }

// Type implements Child.
func (e ErrorChild) Type() string { return "" }

// ChildAdapter implements Child.
func (e ErrorChild) ChildAdapter() Entity { return nil }

// IndexName returns the conventional display name for element i.
func IndexName(i int) string {
	return fmt.Sprintf("[%d]", i)
}
