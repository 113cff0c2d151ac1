package debug

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/dshills/varpager/internal/integration/debug/dap"
)

// StackFrame is a frame of a stopped thread.
type StackFrame struct {
	// ID is the frame identifier used for scopes and evaluate.
	ID int

	// Name is the function name.
	Name string

	// Source is the source file information.
	Source *dap.Source

	// Line is the current line in the source.
	Line int

	// Column is the current column in the source.
	Column int
}

// HasSource returns true if the frame has source information.
func (f *StackFrame) HasSource() bool {
	return f.Source != nil && f.Source.Path != ""
}

// FormatLocation returns a location string like "file.go:42".
func (f *StackFrame) FormatLocation() string {
	if f.Source == nil {
		return fmt.Sprintf("<unknown>:%d", f.Line)
	}
	name := f.Source.Name
	if name == "" && f.Source.Path != "" {
		name = filepath.Base(f.Source.Path)
	}
	if name == "" {
		return fmt.Sprintf("<unknown>:%d", f.Line)
	}
	return fmt.Sprintf("%s:%d", name, f.Line)
}

// String returns "name at file:line".
func (f *StackFrame) String() string {
	return fmt.Sprintf("%s at %s", f.Name, f.FormatLocation())
}

func frameFromDAP(f dap.StackFrame) *StackFrame {
	return &StackFrame{
		ID:     f.ID,
		Name:   f.Name,
		Source: f.Source,
		Line:   f.Line,
		Column: f.Column,
	}
}

// CallStack fetches up to levels frames of threadID. levels 0 means all.
func (s *Session) CallStack(ctx context.Context, threadID, levels int) ([]*StackFrame, error) {
	frames, _, err := s.StackTrace(ctx, threadID, 0, levels)
	if err != nil {
		return nil, err
	}

	result := make([]*StackFrame, len(frames))
	for i, f := range frames {
		result[i] = frameFromDAP(f)
	}
	return result, nil
}

// TopFrame returns the innermost frame of the thread that caused the last
// stop.
func (s *Session) TopFrame(ctx context.Context) (*StackFrame, error) {
	frames, err := s.CallStack(ctx, s.CurrentThread(), 1)
	if err != nil {
		return nil, err
	}
	if len(frames) == 0 {
		return nil, fmt.Errorf("thread %d has no frames", s.CurrentThread())
	}
	return frames[0], nil
}

// FormatStackTrace renders frames one per line, innermost first.
func FormatStackTrace(frames []*StackFrame) string {
	var sb strings.Builder
	for i, f := range frames {
		fmt.Fprintf(&sb, "#%d %s\n", i, f)
	}
	return sb.String()
}
