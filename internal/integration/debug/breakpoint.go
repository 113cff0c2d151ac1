package debug

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/dshills/varpager/internal/integration/debug/dap"
)

// ErrInvalidLocation is returned by ParseLocation.
var ErrInvalidLocation = errors.New("invalid breakpoint location")

// Breakpoint is a source breakpoint requested by the user.
type Breakpoint struct {
	// Path is the source file path.
	Path string

	// Line is the line number (1-based).
	Line int

	// Condition is an optional condition expression.
	Condition string

	// Verified indicates if the adapter confirmed the breakpoint.
	Verified bool

	// Message contains any message from the adapter.
	Message string

	// ActualLine is the line the adapter placed the breakpoint on.
	ActualLine int
}

// String returns "path:line".
func (b *Breakpoint) String() string {
	return fmt.Sprintf("%s:%d", b.Path, b.Line)
}

// ParseLocation parses "file:line" or "file:line if condition".
func ParseLocation(s string) (*Breakpoint, error) {
	loc, cond, _ := strings.Cut(s, " if ")

	i := strings.LastIndex(loc, ":")
	if i <= 0 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidLocation, s)
	}
	line, err := strconv.Atoi(strings.TrimSpace(loc[i+1:]))
	if err != nil || line <= 0 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidLocation, s)
	}

	path := strings.TrimSpace(loc[:i])
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}

	return &Breakpoint{
		Path:      path,
		Line:      line,
		Condition: strings.TrimSpace(cond),
	}, nil
}

// Breakpoints groups source breakpoints by file, the unit setBreakpoints
// works on.
type Breakpoints struct {
	mu     sync.RWMutex
	byPath map[string][]*Breakpoint
}

// NewBreakpoints creates an empty set.
func NewBreakpoints() *Breakpoints {
	return &Breakpoints{byPath: make(map[string][]*Breakpoint)}
}

// Add adds bp unless the same path and line is already present.
func (b *Breakpoints) Add(bp *Breakpoint) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, existing := range b.byPath[bp.Path] {
		if existing.Line == bp.Line {
			existing.Condition = bp.Condition
			return
		}
	}
	b.byPath[bp.Path] = append(b.byPath[bp.Path], bp)
}

// Remove removes the breakpoint at path and line.
func (b *Breakpoints) Remove(path string, line int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	bps := b.byPath[path]
	for i, bp := range bps {
		if bp.Line == line {
			b.byPath[path] = append(bps[:i], bps[i+1:]...)
			return true
		}
	}
	return false
}

// Paths returns the files with breakpoints, sorted.
func (b *Breakpoints) Paths() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	paths := make([]string, 0, len(b.byPath))
	for p := range b.byPath {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// ForPath returns the breakpoints of one file.
func (b *Breakpoints) ForPath(path string) []*Breakpoint {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]*Breakpoint{}, b.byPath[path]...)
}

// Sync sends every file's breakpoints to the session and records what the
// adapter verified.
func (b *Breakpoints) Sync(ctx context.Context, s *Session) error {
	for _, path := range b.Paths() {
		if err := b.syncPath(ctx, s, path); err != nil {
			return fmt.Errorf("sync breakpoints for %s: %w", path, err)
		}
	}
	return nil
}

func (b *Breakpoints) syncPath(ctx context.Context, s *Session, path string) error {
	bps := b.ForPath(path)
	source := make([]dap.SourceBreakpoint, len(bps))
	for i, bp := range bps {
		source[i] = dap.SourceBreakpoint{Line: bp.Line, Condition: bp.Condition}
	}

	result, err := s.SetBreakpoints(ctx, path, source)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for i, bp := range bps {
		if i >= len(result) {
			break
		}
		bp.Verified = result[i].Verified
		bp.Message = result[i].Message
		if result[i].Line > 0 {
			bp.ActualLine = result[i].Line
		}
	}
	return nil
}
