package adapters

import (
	"fmt"
	"os/exec"
)

// GenericAdapter runs an explicitly configured adapter command and sends
// the common launch fields.
type GenericAdapter struct {
	config Config
}

// NewGenericAdapter creates a generic adapter.
func NewGenericAdapter(cfg Config) (Adapter, error) {
	return &GenericAdapter{config: cfg}, nil
}

// Type returns the adapter type.
func (a *GenericAdapter) Type() AdapterType {
	return AdapterGeneric
}

// Name returns a human-readable adapter name.
func (a *GenericAdapter) Name() string {
	if a.config.AdapterPath == "" {
		return "Generic DAP adapter"
	}
	return "Generic DAP adapter (" + a.config.AdapterPath + ")"
}

// Validate validates the configuration.
func (a *GenericAdapter) Validate() error {
	if a.config.AdapterPath == "" {
		return fmt.Errorf("%w: adapter path is required", ErrInvalidConfig)
	}
	return validateRequest(a.config)
}

// Command returns the configured adapter command.
func (a *GenericAdapter) Command() (*exec.Cmd, error) {
	if a.config.AdapterPath == "" {
		return nil, fmt.Errorf("%w: adapter path is required", ErrInvalidConfig)
	}
	cmd := exec.Command(a.config.AdapterPath, a.config.AdapterArgs...)
	if a.config.Cwd != "" {
		cmd.Dir = a.config.Cwd
	}
	cmd.Env = environ(a.config.Env)
	return cmd, nil
}

// Request returns "launch" or "attach".
func (a *GenericAdapter) Request() string {
	return a.config.request()
}

// LaunchArgs returns the arguments for the launch request.
func (a *GenericAdapter) LaunchArgs() map[string]any {
	args := map[string]any{
		"program":     a.config.Program,
		"stopOnEntry": a.config.StopOnEntry,
	}
	if len(a.config.Args) > 0 {
		args["args"] = a.config.Args
	}
	if a.config.Cwd != "" {
		args["cwd"] = a.config.Cwd
	}
	if a.config.Mode != "" {
		args["mode"] = a.config.Mode
	}
	return args
}

// AttachArgs returns the arguments for the attach request.
func (a *GenericAdapter) AttachArgs() map[string]any {
	return map[string]any{"processId": a.config.ProcessID}
}

// Address returns the listen address, or "" for stdio.
func (a *GenericAdapter) Address() string {
	return a.config.Listen
}
