package debug

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestParseLocation(t *testing.T) {
	cwd, err := filepath.Abs(".")
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		in        string
		path      string
		line      int
		condition string
	}{
		{"/src/main.go:42", "/src/main.go", 42, ""},
		{"main.go:7", filepath.Join(cwd, "main.go"), 7, ""},
		{"/src/main.go:10 if i > 3", "/src/main.go", 10, "i > 3"},
	}

	for _, tt := range tests {
		bp, err := ParseLocation(tt.in)
		if err != nil {
			t.Errorf("ParseLocation(%q) error: %v", tt.in, err)
			continue
		}
		if bp.Path != tt.path {
			t.Errorf("ParseLocation(%q).Path = %s, want %s", tt.in, bp.Path, tt.path)
		}
		if bp.Line != tt.line {
			t.Errorf("ParseLocation(%q).Line = %d, want %d", tt.in, bp.Line, tt.line)
		}
		if bp.Condition != tt.condition {
			t.Errorf("ParseLocation(%q).Condition = %q, want %q", tt.in, bp.Condition, tt.condition)
		}
	}
}

func TestParseLocation_Invalid(t *testing.T) {
	for _, in := range []string{"main.go", ":12", "main.go:x", "main.go:0", "main.go:-3"} {
		if _, err := ParseLocation(in); !errors.Is(err, ErrInvalidLocation) {
			t.Errorf("ParseLocation(%q) error = %v, want ErrInvalidLocation", in, err)
		}
	}
}

func TestBreakpoints(t *testing.T) {
	bps := NewBreakpoints()
	bps.Add(&Breakpoint{Path: "/b.go", Line: 3})
	bps.Add(&Breakpoint{Path: "/a.go", Line: 1})
	bps.Add(&Breakpoint{Path: "/a.go", Line: 9})
	bps.Add(&Breakpoint{Path: "/a.go", Line: 1, Condition: "x == 2"})

	paths := bps.Paths()
	if len(paths) != 2 || paths[0] != "/a.go" || paths[1] != "/b.go" {
		t.Fatalf("Paths() = %v", paths)
	}

	a := bps.ForPath("/a.go")
	if len(a) != 2 {
		t.Fatalf("ForPath(/a.go) has %d breakpoints, want 2", len(a))
	}
	if a[0].Condition != "x == 2" {
		t.Errorf("re-adding a line should update its condition, got %q", a[0].Condition)
	}
	if a[1].String() != "/a.go:9" {
		t.Errorf("String() = %s", a[1].String())
	}

	if !bps.Remove("/a.go", 1) {
		t.Error("Remove(/a.go, 1) = false")
	}
	if bps.Remove("/a.go", 1) {
		t.Error("second Remove(/a.go, 1) = true")
	}
	if got := bps.ForPath("/a.go"); len(got) != 1 || got[0].Line != 9 {
		t.Errorf("ForPath(/a.go) after remove = %v", got)
	}
}
