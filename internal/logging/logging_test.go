package logging

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock() time.Time {
	return time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)
}

func newTestLogger(level Level) (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	l := New(Config{Level: level, Output: &buf, Prefix: "test"})
	l.now = fixedClock
	return l, &buf
}

func TestLevel_String(t *testing.T) {
	tests := []struct {
		level    Level
		expected string
	}{
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
		{Level(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, tt.level.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected Level
		wantErr  bool
	}{
		{"debug", LevelDebug, false},
		{"DEBUG", LevelDebug, false},
		{"info", LevelInfo, false},
		{"", LevelInfo, false},
		{"warn", LevelWarn, false},
		{"Warning", LevelWarn, false},
		{"error", LevelError, false},
		{"verbose", LevelInfo, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseLevel(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnknownLevel)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestLogger_Format(t *testing.T) {
	l, buf := newTestLogger(LevelDebug)

	l.Info("page %d of %s", 2, "items")

	assert.Equal(t, "2024-03-01T12:30:00.000 [INFO] test: page 2 of items\n", buf.String())
}

func TestLogger_FieldsSorted(t *testing.T) {
	l, buf := newTestLogger(LevelDebug)

	l.WithFields(map[string]any{"zeta": 1, "alpha": "a"}).
		WithComponent("inspect").
		Warn("slow")

	assert.True(t, strings.HasSuffix(buf.String(), "slow {alpha=a, component=inspect, zeta=1}\n"), buf.String())
}

func TestLogger_WithFieldDoesNotMutateParent(t *testing.T) {
	l, buf := newTestLogger(LevelDebug)

	_ = l.WithField("session", "abc")
	l.Info("plain")

	assert.NotContains(t, buf.String(), "session")
}

func TestLogger_Level(t *testing.T) {
	l, buf := newTestLogger(LevelWarn)
	child := l.WithComponent("dap")

	child.Debug("hidden")
	child.Info("hidden")
	assert.Empty(t, buf.String())
	assert.False(t, child.Enabled(LevelInfo))

	l.SetLevel(LevelDebug)
	child.Debug("shown")
	assert.Contains(t, buf.String(), "[DEBUG] test: shown")
}

func TestNop(t *testing.T) {
	assert.NotPanics(t, func() {
		Nop.Error("nothing")
		Nop.WithField("k", "v").Info("nothing")
		Nop.SetLevel(LevelDebug)
	})
	assert.False(t, Nop.Enabled(LevelError))
	assert.Same(t, Nop, OrNop(nil))

	l, _ := newTestLogger(LevelInfo)
	assert.Same(t, l, OrNop(l))
}

func TestLogger_Concurrent(t *testing.T) {
	l, buf := newTestLogger(LevelInfo)

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.WithField("worker", i).Info("line")
		}()
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 8)
}
