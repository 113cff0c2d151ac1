package adapters

import (
	"fmt"
	"os/exec"
)

// DelveAdapter starts dlv in DAP mode.
type DelveAdapter struct {
	config Config
}

// NewDelveAdapter creates a Delve adapter. Mode defaults to "debug".
func NewDelveAdapter(cfg Config) (Adapter, error) {
	if cfg.Mode == "" {
		cfg.Mode = "debug"
	}
	return &DelveAdapter{config: cfg}, nil
}

// Type returns the adapter type.
func (a *DelveAdapter) Type() AdapterType {
	return AdapterDelve
}

// Name returns a human-readable adapter name.
func (a *DelveAdapter) Name() string {
	return "Delve (Go Debugger)"
}

// Validate validates the configuration.
func (a *DelveAdapter) Validate() error {
	if err := validateRequest(a.config); err != nil {
		return err
	}
	switch a.config.Mode {
	case "debug", "test", "exec":
	default:
		return fmt.Errorf("%w: invalid delve mode %q", ErrInvalidConfig, a.config.Mode)
	}
	return nil
}

// Command returns `dlv dap`, with --listen when a listen address is set.
func (a *DelveAdapter) Command() (*exec.Cmd, error) {
	dlvPath := a.config.AdapterPath
	if dlvPath == "" {
		var err error
		dlvPath, err = FindExecutable("dlv")
		if err != nil {
			return nil, fmt.Errorf("delve debugger not found: %w (install with: go install github.com/go-delve/delve/cmd/dlv@latest)", err)
		}
	}

	args := []string{"dap"}
	if a.config.Listen != "" {
		args = append(args, "--listen", a.config.Listen)
	}
	args = append(args, a.config.AdapterArgs...)

	cmd := exec.Command(dlvPath, args...)
	if a.config.Cwd != "" {
		cmd.Dir = a.config.Cwd
	}
	cmd.Env = environ(a.config.Env)
	return cmd, nil
}

// Request returns "launch" or "attach".
func (a *DelveAdapter) Request() string {
	return a.config.request()
}

// LaunchArgs returns the arguments for the launch request.
func (a *DelveAdapter) LaunchArgs() map[string]any {
	args := map[string]any{
		"mode":        a.config.Mode,
		"program":     a.config.Program,
		"stopOnEntry": a.config.StopOnEntry,
	}
	if len(a.config.Args) > 0 {
		args["args"] = a.config.Args
	}
	if a.config.Cwd != "" {
		args["cwd"] = a.config.Cwd
	}
	if len(a.config.Env) > 0 {
		args["env"] = a.config.Env
	}
	return args
}

// AttachArgs returns the arguments for the attach request.
func (a *DelveAdapter) AttachArgs() map[string]any {
	args := map[string]any{
		"mode":        "local",
		"processId":   a.config.ProcessID,
		"stopOnEntry": a.config.StopOnEntry,
	}
	if a.config.Cwd != "" {
		args["cwd"] = a.config.Cwd
	}
	return args
}

// Address returns the listen address, or "" for stdio.
func (a *DelveAdapter) Address() string {
	return a.config.Listen
}
