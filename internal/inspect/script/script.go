// Package script provides an inspect.Entity whose children are produced by a
// small Lua program.
//
// The program defines a global function item(i), called with a zero-based
// index, that returns name, value and optionally a type name, or nil once
// the collection is exhausted. When it also defines size(), the collection
// is treated as randomly addressable; otherwise it is walked from the start
// and counting stops at the children limit.
//
//	function size() return 3 end
//	function item(i) return "[" .. i .. "]", i * i, "int" end
//
// A value returned as a table becomes an expandable child whose own
// children are the table's entries.
//
// A program may set the global kind to one of the inspect kinds ("linked",
// "tree", ...) to pick the page size its collection is shown with. Without
// it the collection is of kind "scripted".
package script

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/varpager/internal/inspect"
	"github.com/dshills/varpager/internal/logging"
)

// DefaultCallTimeout bounds a single call into the program.
const DefaultCallTimeout = 5 * time.Second

var (
	// ErrNoItemFunction is returned when the program does not define item.
	ErrNoItemFunction = errors.New("script does not define item(i)")

	// ErrClosed is returned by calls on a closed entity.
	ErrClosed = errors.New("script entity is closed")
)

// Option configures an Entity.
type Option func(*Entity)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(e *Entity) {
		e.log = l
	}
}

// WithCallTimeout bounds each call into the program. Zero disables the
// bound; the caller's context still applies.
func WithCallTimeout(d time.Duration) Option {
	return func(e *Entity) {
		e.timeout = d
	}
}

// WithPageSizes pages table values: tables with only an array part by the
// array page size, other tables by the indexed page size.
func WithPageSizes(sizes inspect.PageSizes) Option {
	return func(e *Entity) {
		e.sizes = sizes
	}
}

// WithValidity sets the validity check of the entity.
func WithValidity(valid func(ctx context.Context) bool) Option {
	return func(e *Entity) {
		e.valid = valid
	}
}

// Entity is an inspect.Entity backed by a sandboxed Lua state.
//
// gopher-lua states are not goroutine-safe, so every call into the program
// is serialized.
type Entity struct {
	mu     sync.Mutex
	L      *lua.LState
	closed bool

	log     *logging.Logger
	timeout time.Duration
	valid   func(ctx context.Context) bool
	sizes   inspect.PageSizes
	kind    inspect.Kind

	itemFn lua.LValue
	sizeFn lua.LValue

	inner inspect.Entity
}

// New compiles source and returns the entity it describes.
func New(source string, opts ...Option) (*Entity, error) {
	e := &Entity{timeout: DefaultCallTimeout}
	for _, opt := range opts {
		opt(e)
	}
	e.log = logging.OrNop(e.log).WithComponent("script")

	e.L = newSandbox()
	if err := e.L.DoString(source); err != nil {
		e.L.Close()
		return nil, fmt.Errorf("compile script: %w", err)
	}

	e.itemFn = e.L.GetGlobal("item")
	if e.itemFn.Type() != lua.LTFunction {
		e.L.Close()
		return nil, ErrNoItemFunction
	}

	kind, err := programKind(e.L.GetGlobal("kind"))
	if err != nil {
		e.L.Close()
		return nil, err
	}
	e.kind = kind

	var innerOpts []inspect.Option
	if e.valid != nil {
		innerOpts = append(innerOpts, inspect.WithValidity(e.valid))
	}

	if fn := e.L.GetGlobal("size"); fn.Type() == lua.LTFunction {
		e.sizeFn = fn
		e.inner = inspect.NewIndexed(e.size, e.item, innerOpts...)
		e.log.Debug("compiled sized script")
	} else {
		e.inner = inspect.NewSequence(e.walker(), innerOpts...)
		e.log.Debug("compiled unsized script")
	}

	return e, nil
}

// newSandbox creates a state with only the base, table, string and math
// libraries and without the functions that load code from disk or strings.
func newSandbox() *lua.LState {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})

	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)

	for _, name := range []string{"dofile", "loadfile", "load", "loadstring", "require"} {
		L.SetGlobal(name, lua.LNil)
	}
	return L
}

func programKind(v lua.LValue) (inspect.Kind, error) {
	if v == lua.LNil {
		return inspect.KindScripted, nil
	}
	name, ok := v.(lua.LString)
	if !ok {
		return "", fmt.Errorf("kind: expected string, got %s", v.Type())
	}
	for _, k := range inspect.Kinds {
		if string(k) == string(name) {
			return k, nil
		}
	}
	return "", fmt.Errorf("kind: %w: %s", inspect.ErrUnknownKind, name)
}

// Kind returns the container kind the program declared.
func (e *Entity) Kind() inspect.Kind {
	return e.kind
}

// Sized reports whether the program defines size().
func (e *Entity) Sized() bool {
	return e.sizeFn != nil
}

// IsValid implements inspect.Entity.
func (e *Entity) IsValid(ctx context.Context) bool {
	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	return !closed && e.inner.IsValid(ctx)
}

// SetChildrenLimit implements inspect.Entity.
func (e *Entity) SetChildrenLimit(n int) {
	e.inner.SetChildrenLimit(n)
}

// CountChildren implements inspect.Entity.
func (e *Entity) CountChildren(ctx context.Context) (int, error) {
	return e.inner.CountChildren(ctx)
}

// GetChildren implements inspect.Entity.
func (e *Entity) GetChildren(ctx context.Context, start, count int) ([]inspect.Child, error) {
	return e.inner.GetChildren(ctx, start, count)
}

// Close releases the Lua state.
func (e *Entity) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.L.Close()
	e.closed = true
	return nil
}

func (e *Entity) size(ctx context.Context) (int, error) {
	ret, err := e.call(ctx, e.sizeFn, 1)
	if err != nil {
		return 0, fmt.Errorf("size(): %w", err)
	}

	n, ok := ret[0].(lua.LNumber)
	if !ok {
		return 0, fmt.Errorf("size(): expected number, got %s", ret[0].Type())
	}
	return int(n), nil
}

func (e *Entity) item(ctx context.Context, i int) (inspect.Child, error) {
	c, ok, err := e.eval(ctx, i)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("item(%d) returned nil", i)
	}
	return c, nil
}

func (e *Entity) walker() inspect.NextFunc {
	i := 0
	return func(ctx context.Context) (inspect.Child, bool, error) {
		c, ok, err := e.eval(ctx, i)
		if err != nil || !ok {
			return nil, ok, err
		}
		i++
		return c, true, nil
	}
}

func (e *Entity) eval(ctx context.Context, i int) (inspect.Child, bool, error) {
	ret, err := e.call(ctx, e.itemFn, 3, lua.LNumber(i))
	if err != nil {
		e.log.Debug("item(%d) failed: %v", i, err)
		return nil, false, fmt.Errorf("item(%d): %w", i, err)
	}
	if ret[0] == lua.LNil {
		return nil, false, nil
	}

	item := inspect.Item{
		Name: lua.LVAsString(ret[0]),
		Val:  format(ret[1]),
	}
	if ret[2] != lua.LNil {
		item.TypeName = lua.LVAsString(ret[2])
	}
	if t, ok := ret[1].(*lua.LTable); ok {
		item.Adapter = e.table(t)
	}
	return item, true, nil
}

// call invokes fn and returns exactly nret values, padded with nil.
func (e *Entity) call(ctx context.Context, fn lua.LValue, nret int, args ...lua.LValue) ([]lua.LValue, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, ErrClosed
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	e.L.SetContext(ctx)
	defer e.L.RemoveContext()

	top := e.L.GetTop()
	if err := e.L.CallByParam(lua.P{Fn: fn, NRet: nret, Protect: true}, args...); err != nil {
		e.L.SetTop(top)
		return nil, err
	}

	ret := make([]lua.LValue, nret)
	for i := range ret {
		ret[i] = e.L.Get(top + i + 1)
	}
	e.L.SetTop(top)
	return ret, nil
}

func format(v lua.LValue) string {
	switch v := v.(type) {
	case *lua.LNilType:
		return "nil"
	case lua.LNumber:
		return strconv.FormatFloat(float64(v), 'g', -1, 64)
	case *lua.LTable:
		return fmt.Sprintf("table[%d]", tableSize(v))
	default:
		return v.String()
	}
}

func tableSize(t *lua.LTable) int {
	n := 0
	t.ForEach(func(lua.LValue, lua.LValue) { n++ })
	return n
}

// table returns the entity listing the entries of t, paged when page sizes
// are configured.
func (e *Entity) table(t *lua.LTable) inspect.Entity {
	children := e.tableChildren(t)
	slice := inspect.NewSlice(children)
	if e.sizes == nil {
		return slice
	}

	kind := inspect.KindIndexed
	if t.Len() == len(children) {
		kind = inspect.KindArray
	}
	paged, err := e.sizes.Wrap(kind, slice)
	if err != nil {
		e.log.Warn("table not paged: %v", err)
		return slice
	}
	return paged
}

// tableChildren lists the array part of t in order, followed by the
// remaining keys sorted by name.
func (e *Entity) tableChildren(t *lua.LTable) []inspect.Child {
	n := t.Len()
	children := make([]inspect.Child, 0, n)
	for i := 1; i <= n; i++ {
		children = append(children, e.entry(inspect.IndexName(i-1), t.RawGetInt(i)))
	}

	var keys []string
	named := make(map[string]lua.LValue)
	t.ForEach(func(k, v lua.LValue) {
		if num, ok := k.(lua.LNumber); ok && float64(num) == float64(int(num)) && int(num) >= 1 && int(num) <= n {
			return
		}
		key := lua.LVAsString(k)
		if key == "" {
			key = k.String()
		}
		keys = append(keys, key)
		named[key] = v
	})
	sort.Strings(keys)

	for _, k := range keys {
		children = append(children, e.entry(k, named[k]))
	}
	return children
}

func (e *Entity) entry(name string, v lua.LValue) inspect.Child {
	item := inspect.Item{Name: name, Val: format(v), TypeName: v.Type().String()}
	if t, ok := v.(*lua.LTable); ok {
		item.Adapter = e.table(t)
	}
	return item
}
