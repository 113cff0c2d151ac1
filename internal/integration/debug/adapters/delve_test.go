package adapters

import (
	"reflect"
	"testing"
)

func newDelve(t *testing.T, cfg Config) *DelveAdapter {
	t.Helper()
	cfg.Type = AdapterDelve
	adapter, err := NewDelveAdapter(cfg)
	if err != nil {
		t.Fatalf("NewDelveAdapter failed: %v", err)
	}
	return adapter.(*DelveAdapter)
}

func TestNewDelveAdapter(t *testing.T) {
	adapter := newDelve(t, Config{Program: "./cmd/app"})

	if adapter.Name() != "Delve (Go Debugger)" {
		t.Errorf("unexpected adapter name: %s", adapter.Name())
	}
	if adapter.config.Mode != "debug" {
		t.Errorf("expected default mode 'debug', got %s", adapter.config.Mode)
	}
	if adapter.Request() != RequestLaunch {
		t.Errorf("expected launch request, got %s", adapter.Request())
	}
}

func TestDelveAdapter_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{"debug", Config{Program: "./cmd/app"}, false},
		{"test", Config{Program: "./pkg", Mode: "test"}, false},
		{"exec", Config{Program: "./bin/app", Mode: "exec"}, false},
		{"bad mode", Config{Program: "./cmd/app", Mode: "replay"}, true},
		{"no program", Config{}, true},
		{"attach", Config{Request: RequestAttach, ProcessID: 7}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := newDelve(t, tt.config).Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDelveAdapter_Command(t *testing.T) {
	adapter := newDelve(t, Config{
		Program:     "./cmd/app",
		AdapterPath: "/opt/bin/dlv",
		Listen:      "127.0.0.1:4711",
		AdapterArgs: []string{"--log"},
		Cwd:         "/src",
		Env:         map[string]string{"GOFLAGS": "-mod=mod"},
	})

	cmd, err := adapter.Command()
	if err != nil {
		t.Fatalf("Command failed: %v", err)
	}

	want := []string{"/opt/bin/dlv", "dap", "--listen", "127.0.0.1:4711", "--log"}
	if !reflect.DeepEqual(cmd.Args, want) {
		t.Errorf("args = %v, want %v", cmd.Args, want)
	}
	if cmd.Dir != "/src" {
		t.Errorf("dir = %q", cmd.Dir)
	}
	if cmd.Env[len(cmd.Env)-1] != "GOFLAGS=-mod=mod" {
		t.Errorf("env override missing: %v", cmd.Env[len(cmd.Env)-1])
	}
	if adapter.Address() != "127.0.0.1:4711" {
		t.Errorf("address = %q", adapter.Address())
	}
}

func TestDelveAdapter_CommandStdio(t *testing.T) {
	adapter := newDelve(t, Config{Program: "./cmd/app", AdapterPath: "dlv"})

	cmd, err := adapter.Command()
	if err != nil {
		t.Fatalf("Command failed: %v", err)
	}
	if !reflect.DeepEqual(cmd.Args, []string{"dlv", "dap"}) {
		t.Errorf("args = %v", cmd.Args)
	}
	if adapter.Address() != "" {
		t.Errorf("stdio adapter should have no address")
	}
}

func TestDelveAdapter_LaunchArgs(t *testing.T) {
	adapter := newDelve(t, Config{
		Program:     "./cmd/app",
		Args:        []string{"-v"},
		StopOnEntry: true,
		Cwd:         "/src",
	})

	args := adapter.LaunchArgs()
	if args["mode"] != "debug" || args["program"] != "./cmd/app" || args["stopOnEntry"] != true {
		t.Errorf("unexpected launch args: %v", args)
	}
	if !reflect.DeepEqual(args["args"], []string{"-v"}) {
		t.Errorf("args = %v", args["args"])
	}
	if args["cwd"] != "/src" {
		t.Errorf("cwd = %v", args["cwd"])
	}
	if _, ok := args["env"]; ok {
		t.Error("env should be omitted when empty")
	}
}

func TestDelveAdapter_AttachArgs(t *testing.T) {
	adapter := newDelve(t, Config{Request: RequestAttach, ProcessID: 1234})

	args := adapter.AttachArgs()
	if args["mode"] != "local" || args["processId"] != 1234 {
		t.Errorf("unexpected attach args: %v", args)
	}
}
