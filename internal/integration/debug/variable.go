package debug

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dshills/varpager/internal/inspect"
	"github.com/dshills/varpager/internal/integration/debug/dap"
	"github.com/dshills/varpager/internal/logging"
)

// ErrNoChildren is returned when paging a variable without children.
var ErrNoChildren = errors.New("variable has no children")

// ScopeType represents the type of a variable scope.
type ScopeType string

const (
	// ScopeLocals represents local variables.
	ScopeLocals ScopeType = "locals"
	// ScopeArguments represents function arguments.
	ScopeArguments ScopeType = "arguments"
	// ScopeGlobals represents global variables.
	ScopeGlobals ScopeType = "globals"
	// ScopeRegisters represents CPU registers.
	ScopeRegisters ScopeType = "registers"
)

// VariableScope represents a scope containing variables.
type VariableScope struct {
	// Name is the scope name.
	Name string

	// Type is the scope type.
	Type ScopeType

	// VariablesReference is the reference to retrieve variables.
	VariablesReference int

	// NamedVariables is the number of named variables in this scope.
	NamedVariables int

	// IndexedVariables is the number of indexed variables in this scope.
	IndexedVariables int

	// Expensive indicates if fetching variables is expensive.
	Expensive bool

	epoch uint64
}

// variable returns the scope as a variable so it can be expanded like one.
func (s *VariableScope) variable() *Variable {
	return &Variable{
		Name:               s.Name,
		VariablesReference: s.VariablesReference,
		NamedVariables:     s.NamedVariables,
		IndexedVariables:   s.IndexedVariables,
		epoch:              s.epoch,
	}
}

// Variable represents a variable or expression result.
type Variable struct {
	// Name is the variable name.
	Name string

	// Value is the variable value as a string.
	Value string

	// Type is the variable type.
	Type string

	// VariablesReference is the reference for child variables.
	VariablesReference int

	// NamedVariables is the number of named children.
	NamedVariables int

	// IndexedVariables is the number of indexed children.
	IndexedVariables int

	// EvaluateName is the expression to evaluate this variable.
	EvaluateName string

	// PresentationHint contains hints for presentation.
	PresentationHint *dap.VariablePresentationHint

	epoch     uint64
	parentRef int
}

// HasChildren returns true if this variable has child variables.
func (v *Variable) HasChildren() bool {
	return v.VariablesReference > 0
}

// TotalChildren returns the reported number of children. Zero means
// unknown for a variable with children.
func (v *Variable) TotalChildren() int {
	return v.NamedVariables + v.IndexedVariables
}

func variableFromDAP(dv dap.Variable, epoch uint64) *Variable {
	return &Variable{
		Name:               dv.Name,
		Value:              dv.Value,
		Type:               dv.Type,
		VariablesReference: dv.VariablesReference,
		NamedVariables:     dv.NamedVariables,
		IndexedVariables:   dv.IndexedVariables,
		EvaluateName:       dv.EvaluateName,
		PresentationHint:   dv.PresentationHint,
		epoch:              epoch,
	}
}

// VariableInspector turns scopes, variables and expressions of a stopped
// session into paged inspect entities.
type VariableInspector struct {
	session *Session
	sizes   inspect.PageSizes
	log     *logging.Logger

	mu           sync.RWMutex
	watches      []string
	watchResults []*Variable
}

// NewVariableInspector creates an inspector. Nil sizes means the defaults.
func NewVariableInspector(session *Session, sizes inspect.PageSizes, log *logging.Logger) *VariableInspector {
	if sizes == nil {
		sizes = inspect.DefaultPageSizes()
	}
	return &VariableInspector{
		session: session,
		sizes:   sizes,
		log:     logging.OrNop(log).WithComponent("inspector"),
	}
}

// PageSize returns the page size used for debugger variables.
func (v *VariableInspector) PageSize() int {
	n, err := v.sizes.Size(inspect.KindVariables)
	if err != nil {
		v.log.Warn("%v, using default", err)
		return inspect.DefaultPageSizes()[inspect.KindVariables]
	}
	return n
}

// Scopes returns the scopes of a stack frame.
func (v *VariableInspector) Scopes(ctx context.Context, frameID int) ([]*VariableScope, error) {
	epoch := v.session.Epoch()
	scopes, err := v.session.Scopes(ctx, frameID)
	if err != nil {
		return nil, err
	}

	result := make([]*VariableScope, len(scopes))
	for i, s := range scopes {
		result[i] = &VariableScope{
			Name:               s.Name,
			Type:               mapScopeType(s.PresentationHint),
			VariablesReference: s.VariablesReference,
			NamedVariables:     s.NamedVariables,
			IndexedVariables:   s.IndexedVariables,
			Expensive:          s.Expensive,
			epoch:              epoch,
		}
	}
	return result, nil
}

// mapScopeType maps a DAP presentation hint to a scope type.
func mapScopeType(hint string) ScopeType {
	switch hint {
	case "arguments":
		return ScopeArguments
	case "globals":
		return ScopeGlobals
	case "registers":
		return ScopeRegisters
	default:
		return ScopeLocals
	}
}

// ScopeEntity returns the first page of the variables of scope.
func (v *VariableInspector) ScopeEntity(scope *VariableScope) *inspect.Ranged {
	n := v.PageSize()
	return inspect.First(n, NewVariableEntity(v.session, scope.variable(), n))
}

// FrameEntity returns an entity whose children are the scopes of a frame,
// each expanding into its paged variables.
func (v *VariableInspector) FrameEntity(ctx context.Context, frameID int) (inspect.Entity, error) {
	scopes, err := v.Scopes(ctx, frameID)
	if err != nil {
		return nil, err
	}

	children := make([]inspect.Child, len(scopes))
	for i, s := range scopes {
		children[i] = inspect.Item{
			Name:    s.Name,
			Val:     scopeSummary(s),
			Adapter: v.ScopeEntity(s),
		}
	}

	epoch := scopeEpoch(scopes, v.session.Epoch())
	return inspect.NewSlice(children, inspect.WithValidity(func(context.Context) bool {
		return v.session.Valid(epoch)
	})), nil
}

func scopeEpoch(scopes []*VariableScope, fallback uint64) uint64 {
	if len(scopes) == 0 {
		return fallback
	}
	return scopes[0].epoch
}

func scopeSummary(s *VariableScope) string {
	if n := s.NamedVariables + s.IndexedVariables; n > 0 {
		return fmt.Sprintf("%d variables", n)
	}
	if s.Expensive {
		return "(expensive)"
	}
	return ""
}

// Child returns variable as an inspect.Child expanding into its first page.
func (v *VariableInspector) Child(variable *Variable) inspect.Child {
	return childOf(v.session, variable, v.PageSize())
}

// Expand returns the first page of the children of variable, or nil when it
// has none.
func (v *VariableInspector) Expand(variable *Variable) *inspect.Ranged {
	if !variable.HasChildren() {
		return nil
	}
	n := v.PageSize()
	return inspect.First(n, NewVariableEntity(v.session, variable, n))
}

// Page returns count rows of the first page of variable starting at start,
// including the trailing [More] row when the page is full.
func (v *VariableInspector) Page(ctx context.Context, variable *Variable, start, count int) ([]inspect.Child, error) {
	page := v.Expand(variable)
	if page == nil {
		return nil, ErrNoChildren
	}
	return page.GetChildren(ctx, start, count)
}

// Find returns the child of scope named name. Only the first page is
// searched.
func (v *VariableInspector) Find(ctx context.Context, scope *VariableScope, name string) (*Variable, error) {
	page := v.ScopeEntity(scope)
	n, err := page.CountChildren(ctx)
	if err != nil {
		return nil, err
	}
	children, err := page.GetChildren(ctx, 0, n)
	if err != nil {
		return nil, err
	}

	for _, c := range children {
		if variable, ok := VariableOf(c); ok && variable.Name == name {
			return variable, nil
		}
	}
	return nil, fmt.Errorf("variable %s not found", name)
}

// SetVariable assigns value to variable in the debuggee and returns the
// updated variable.
func (v *VariableInspector) SetVariable(ctx context.Context, variable *Variable, value string) (*Variable, error) {
	if variable.parentRef == 0 {
		return nil, fmt.Errorf("variable %s cannot be assigned", variable.Name)
	}

	result, err := v.session.SetVariable(ctx, variable.epoch, variable.parentRef, variable.Name, value)
	if err != nil {
		return nil, err
	}

	updated := *variable
	updated.Value = result.Value
	if result.Type != "" {
		updated.Type = result.Type
	}
	updated.VariablesReference = result.VariablesReference
	updated.NamedVariables = result.NamedVariables
	updated.IndexedVariables = result.IndexedVariables
	return &updated, nil
}

// Evaluate evaluates an expression in the given context.
func (v *VariableInspector) Evaluate(ctx context.Context, expression string, frameID int, evalContext string) (*Variable, error) {
	epoch := v.session.Epoch()
	result, err := v.session.Evaluate(ctx, expression, frameID, evalContext)
	if err != nil {
		return nil, err
	}

	return &Variable{
		Name:               expression,
		Value:              result.Result,
		Type:               result.Type,
		VariablesReference: result.VariablesReference,
		NamedVariables:     result.NamedVariables,
		IndexedVariables:   result.IndexedVariables,
		EvaluateName:       expression,
		PresentationHint:   result.PresentationHint,
		epoch:              epoch,
	}, nil
}

// EvaluateForHover evaluates an expression for hover display.
func (v *VariableInspector) EvaluateForHover(ctx context.Context, expression string, frameID int) (*Variable, error) {
	caps := v.session.Capabilities()
	if caps == nil || !caps.SupportsEvaluateForHovers {
		return nil, fmt.Errorf("hover evaluation not supported")
	}
	return v.Evaluate(ctx, expression, frameID, dap.ContextHover)
}

// EvaluateForWatch evaluates an expression for watch display.
func (v *VariableInspector) EvaluateForWatch(ctx context.Context, expression string, frameID int) (*Variable, error) {
	return v.Evaluate(ctx, expression, frameID, dap.ContextWatch)
}

// EvaluateForRepl evaluates an expression in REPL context.
func (v *VariableInspector) EvaluateForRepl(ctx context.Context, expression string, frameID int) (*Variable, error) {
	return v.Evaluate(ctx, expression, frameID, dap.ContextRepl)
}

// AddWatch adds a watch expression.
func (v *VariableInspector) AddWatch(expression string) {
	v.mu.Lock()
	v.watches = append(v.watches, expression)
	v.mu.Unlock()
}

// RemoveWatch removes a watch expression by index.
func (v *VariableInspector) RemoveWatch(index int) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if index < 0 || index >= len(v.watches) {
		return fmt.Errorf("watch index %d out of range", index)
	}

	v.watches = append(v.watches[:index], v.watches[index+1:]...)
	if index < len(v.watchResults) {
		v.watchResults = append(v.watchResults[:index], v.watchResults[index+1:]...)
	}
	return nil
}

// ClearWatches removes all watch expressions.
func (v *VariableInspector) ClearWatches() {
	v.mu.Lock()
	v.watches = nil
	v.watchResults = nil
	v.mu.Unlock()
}

// Watches returns the current watch expressions.
func (v *VariableInspector) Watches() []string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return append([]string(nil), v.watches...)
}

// WatchResults returns the last evaluated watch results.
func (v *VariableInspector) WatchResults() []*Variable {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return append([]*Variable(nil), v.watchResults...)
}

// UpdateWatches evaluates all watch expressions. A failing expression is
// kept with its error as value.
func (v *VariableInspector) UpdateWatches(ctx context.Context, frameID int) error {
	watches := v.Watches()

	results := make([]*Variable, len(watches))
	for i, expr := range watches {
		result, err := v.EvaluateForWatch(ctx, expr, frameID)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			results[i] = &Variable{
				Name:  expr,
				Value: fmt.Sprintf("<error: %v>", err),
				Type:  "error",
			}
			continue
		}
		results[i] = result
	}

	v.mu.Lock()
	v.watchResults = results
	v.mu.Unlock()
	return nil
}

// WatchEntity returns the last watch results as an entity.
func (v *VariableInspector) WatchEntity() inspect.Entity {
	results := v.WatchResults()
	children := make([]inspect.Child, len(results))
	for i, r := range results {
		children[i] = v.Child(r)
	}
	return inspect.NewSlice(children)
}

// FormatVariable returns a formatted string representation of a variable.
func (v *VariableInspector) FormatVariable(variable *Variable) string {
	if variable.Type != "" {
		return fmt.Sprintf("%s: %s = %s", variable.Name, variable.Type, variable.Value)
	}
	return fmt.Sprintf("%s = %s", variable.Name, variable.Value)
}
