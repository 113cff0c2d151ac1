// Package adapters describes how to start and drive the debug adapters
// varpager talks to.
package adapters

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"sort"
	"time"
)

// AdapterType identifies a debug adapter.
type AdapterType string

const (
	// AdapterDelve is the Go debugger (dlv dap).
	AdapterDelve AdapterType = "delve"
	// AdapterGeneric runs an explicit adapter command.
	AdapterGeneric AdapterType = "generic"
)

// Request kinds.
const (
	RequestLaunch = "launch"
	RequestAttach = "attach"
)

var (
	// ErrUnknownAdapter is returned by New for unregistered types.
	ErrUnknownAdapter = errors.New("unknown adapter type")

	// ErrInvalidConfig is wrapped by Validate failures.
	ErrInvalidConfig = errors.New("invalid adapter configuration")
)

// Config is the adapter independent part of a debug configuration.
type Config struct {
	// Type is the adapter type.
	Type AdapterType

	// Request is "launch" (default) or "attach".
	Request string

	// Program is the program or package to debug.
	Program string

	// Args are the program arguments.
	Args []string

	// Cwd is the working directory of the debuggee.
	Cwd string

	// Env are additional environment variables for the adapter.
	Env map[string]string

	// StopOnEntry stops at the program entry point.
	StopOnEntry bool

	// Mode is adapter specific (delve: debug, test, exec).
	Mode string

	// ProcessID is the process to attach to.
	ProcessID int

	// Listen makes the adapter serve DAP on this TCP address instead of
	// stdio.
	Listen string

	// AdapterPath overrides the adapter executable.
	AdapterPath string

	// AdapterArgs are extra arguments for the adapter executable.
	AdapterArgs []string
}

// request returns the request kind with the launch default applied.
func (c Config) request() string {
	if c.Request == "" {
		return RequestLaunch
	}
	return c.Request
}

// Adapter knows how to start one kind of debug adapter and what to put in
// its launch and attach requests.
type Adapter interface {
	// Type returns the adapter type.
	Type() AdapterType

	// Name returns a human-readable adapter name.
	Name() string

	// Validate validates the configuration.
	Validate() error

	// Command returns the command that starts the adapter.
	Command() (*exec.Cmd, error)

	// Request returns "launch" or "attach".
	Request() string

	// LaunchArgs returns the arguments for the launch request.
	LaunchArgs() map[string]any

	// AttachArgs returns the arguments for the attach request.
	AttachArgs() map[string]any

	// Address returns the TCP address the adapter listens on, or "" for
	// stdio.
	Address() string
}

// Factory creates an adapter from configuration.
type Factory func(Config) (Adapter, error)

var factories = map[AdapterType]Factory{
	AdapterDelve:   NewDelveAdapter,
	AdapterGeneric: NewGenericAdapter,
}

// New creates the adapter registered for cfg.Type.
func New(cfg Config) (Adapter, error) {
	factory, ok := factories[cfg.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAdapter, cfg.Type)
	}
	return factory(cfg)
}

// Available returns the registered adapter types, sorted.
func Available() []AdapterType {
	result := make([]AdapterType, 0, len(factories))
	for t := range factories {
		result = append(result, t)
	}
	sort.Slice(result, func(i, j int) bool { return result[i] < result[j] })
	return result
}

// FindExecutable searches for an executable in PATH.
func FindExecutable(name string) (string, error) {
	path, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("%s not found in PATH: %w", name, err)
	}
	return path, nil
}

// environ returns the parent environment with extra appended.
func environ(extra map[string]string) []string {
	env := os.Environ()
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+extra[k])
	}
	return env
}

// validateRequest checks the fields every adapter needs.
func validateRequest(cfg Config) error {
	switch cfg.request() {
	case RequestLaunch:
		if cfg.Program == "" {
			return fmt.Errorf("%w: program is required for launch request", ErrInvalidConfig)
		}
	case RequestAttach:
		if cfg.ProcessID == 0 {
			return fmt.Errorf("%w: processId is required for attach request", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: invalid request type %q", ErrInvalidConfig, cfg.Request)
	}
	return nil
}

// WaitForPort polls address until it accepts connections or ctx is done.
func WaitForPort(ctx context.Context, address string) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		conn, err := net.DialTimeout("tcp", address, 50*time.Millisecond)
		if err == nil {
			conn.Close()
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for %s: %w", address, ctx.Err())
		case <-ticker.C:
		}
	}
}
