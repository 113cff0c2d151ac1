package debug

import (
	"context"
	"sync"

	"github.com/dshills/varpager/internal/inspect"
	"github.com/dshills/varpager/internal/integration/debug/dap"
)

// VariableEntity exposes the children of a DAP variables reference as an
// inspect.Entity. It is only valid while the debuggee stays in the stop it
// was created in.
type VariableEntity struct {
	session  *Session
	ref      int
	named    int
	indexed  int
	epoch    uint64
	pageSize int

	mu       sync.Mutex
	limit    int
	known    []dap.Variable // prefix of the children, or all of them when complete
	complete bool
}

// NewVariableEntity creates an entity over the children of v. Nested
// containers are shown in pages of pageSize.
func NewVariableEntity(s *Session, v *Variable, pageSize int) *VariableEntity {
	return &VariableEntity{
		session:  s,
		ref:      v.VariablesReference,
		named:    v.NamedVariables,
		indexed:  v.IndexedVariables,
		epoch:    v.epoch,
		pageSize: pageSize,
	}
}

// Reference returns the wrapped variables reference.
func (e *VariableEntity) Reference() int {
	return e.ref
}

// IsValid implements inspect.Entity.
func (e *VariableEntity) IsValid(context.Context) bool {
	return e.session.Valid(e.epoch)
}

// SetChildrenLimit bounds the next count request when the adapter did not
// report child counts.
func (e *VariableEntity) SetChildrenLimit(n int) {
	e.mu.Lock()
	e.limit = n
	e.mu.Unlock()
}

// CountChildren implements inspect.Entity. Reported counts are used as is.
// Otherwise at most limit children are requested; the result only grows
// across calls.
func (e *VariableEntity) CountChildren(ctx context.Context) (int, error) {
	if n := e.named + e.indexed; n > 0 {
		return n, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.complete || (e.limit > 0 && e.limit <= len(e.known)) {
		return len(e.known), nil
	}

	args := dap.VariablesArguments{VariablesReference: e.ref, Count: e.limit}
	vars, err := e.session.Variables(ctx, e.epoch, args)
	if err != nil {
		return 0, err
	}

	e.known = vars
	// Short or oversized replies mean the adapter returned everything.
	e.complete = e.limit == 0 || len(vars) != e.limit
	return len(vars), nil
}

// GetChildren implements inspect.Entity. Purely indexed containers are
// fetched window by window; everything else is fetched once.
func (e *VariableEntity) GetChildren(ctx context.Context, start, count int) ([]inspect.Child, error) {
	if count <= 0 || start < 0 {
		return []inspect.Child{}, nil
	}

	if e.indexed > 0 && e.named == 0 {
		vars, err := e.session.Variables(ctx, e.epoch, dap.VariablesArguments{
			VariablesReference: e.ref,
			Filter:             dap.FilterIndexed,
			Start:              start,
			Count:              count,
		})
		if err != nil {
			return nil, err
		}
		// Adapters without paging support answer with every indexed child.
		if len(vars) > count {
			vars = slice(vars, start, count)
		}
		return e.children(vars), nil
	}

	vars, err := e.window(ctx, start, count)
	if err != nil {
		return nil, err
	}
	return e.children(vars), nil
}

func (e *VariableEntity) window(ctx context.Context, start, count int) ([]dap.Variable, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if need := start + count; !e.complete && need > len(e.known) {
		vars, err := e.session.Variables(ctx, e.epoch, dap.VariablesArguments{VariablesReference: e.ref, Count: need})
		if err != nil {
			return nil, err
		}
		e.known = vars
		e.complete = len(vars) != need
	}
	return slice(e.known, start, count), nil
}

// slice returns vars[start:start+count] clipped to the length of vars.
func slice(vars []dap.Variable, start, count int) []dap.Variable {
	if start >= len(vars) {
		return nil
	}
	return vars[start:min(start+count, len(vars))]
}

func (e *VariableEntity) children(vars []dap.Variable) []inspect.Child {
	result := make([]inspect.Child, len(vars))
	for i, dv := range vars {
		v := variableFromDAP(dv, e.epoch)
		v.parentRef = e.ref
		result[i] = childOf(e.session, v, e.pageSize)
	}
	return result
}

// variableChild presents a Variable as an inspect.Child.
type variableChild struct {
	*Variable
	adapter inspect.Entity
}

func childOf(s *Session, v *Variable, pageSize int) variableChild {
	c := variableChild{Variable: v}
	if v.HasChildren() {
		c.adapter = inspect.First(pageSize, NewVariableEntity(s, v, pageSize))
	}
	return c
}

// DisplayName implements inspect.Child.
func (c variableChild) DisplayName() string { return c.Name }

// Value implements inspect.Child.
func (c variableChild) Value() string { return c.Variable.Value }

// Type implements inspect.Child.
func (c variableChild) Type() string { return c.Variable.Type }

// ChildAdapter implements inspect.Child.
func (c variableChild) ChildAdapter() inspect.Entity { return c.adapter }

// VariableOf returns the debugger variable behind c, if any.
func VariableOf(c inspect.Child) (*Variable, bool) {
	vc, ok := c.(variableChild)
	if !ok {
		return nil, false
	}
	return vc.Variable, true
}
