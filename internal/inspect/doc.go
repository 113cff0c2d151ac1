// Package inspect provides the windowed child enumeration engine behind
// variable inspection.
//
// Anything that can show children implements Entity: a DAP variables
// reference, an in-memory collection, a walk over a linked structure, or a
// scripted provider. The presentation layer never talks to those directly.
// It wraps them in a Ranged view, which surfaces a fixed-size page of
// children and, when the wrapped entity holds more, one synthetic "[More]"
// child that expands into the next page:
//
//	┌──────────────────────┐      ┌──────────────────────┐
//	│ First(2, list)       │      │ StartFrom(2, 2, list)│
//	│   [0]                │      │   [2]                │
//	│   [1]                │      │   [3]                │
//	│   [More] ────────────┼─────>│   [More] ──> ...     │
//	└──────────────────────┘      └──────────────────────┘
//
// Every page shares the same wrapped entity and differs only by offset, so
// the chain only grows forward and nothing is materialized ahead of time.
//
// # Children limit
//
// Counting can be expensive (walking a linked list, evaluating a size
// expression against a live target). Before counting, a Ranged view tells
// the wrapped entity how far it actually needs to count through
// SetChildrenLimit. Entities are free to ignore the hint.
package inspect
