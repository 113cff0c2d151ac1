package inspect

import "fmt"

// Kind identifies a family of containers that share a page size.
type Kind string

const (
	// KindIndexed is a collection addressed by index.
	KindIndexed Kind = "indexed"
	// KindArray is a contiguous array.
	KindArray Kind = "array"
	// KindLinked is a linked list walked node by node.
	KindLinked Kind = "linked"
	// KindTree is a tree walked in order.
	KindTree Kind = "tree"
	// KindScripted is a collection produced by a script.
	KindScripted Kind = "scripted"
	// KindVariables is the children of a debug adapter variable.
	KindVariables Kind = "variables"
)

// Kinds lists every known kind.
var Kinds = []Kind{KindIndexed, KindArray, KindLinked, KindTree, KindScripted, KindVariables}

// PageSizes maps container kinds to page sizes. Cheap random-access
// containers get large pages; containers that must be walked get small ones.
type PageSizes map[Kind]int

// DefaultPageSizes returns the built-in page sizes.
func DefaultPageSizes() PageSizes {
	return PageSizes{
		KindIndexed:   50000,
		KindArray:     50000,
		KindLinked:    100,
		KindTree:      100,
		KindScripted:  20,
		KindVariables: 50000,
	}
}

// Size returns the page size for kind.
func (p PageSizes) Size(kind Kind) (int, error) {
	n, ok := p[kind]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	if n <= 0 {
		return 0, fmt.Errorf("%w: %s=%d", ErrInvalidPageSize, kind, n)
	}
	return n, nil
}

// Wrap returns the first page of e using the page size for kind.
func (p PageSizes) Wrap(kind Kind, e Entity) (*Ranged, error) {
	n, err := p.Size(kind)
	if err != nil {
		return nil, err
	}
	return First(n, e), nil
}
