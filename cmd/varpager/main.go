// Package main is the entry point for varpager.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/dshills/varpager/internal/config"
	"github.com/dshills/varpager/internal/inspect"
	"github.com/dshills/varpager/internal/inspect/script"
	"github.com/dshills/varpager/internal/integration/debug"
	"github.com/dshills/varpager/internal/integration/debug/adapters"
	"github.com/dshills/varpager/internal/logging"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// errHelp is returned by parseFlags when usage was requested.
var errHelp = errors.New("help requested")

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// options are the command line settings. Zero values leave the
// configuration untouched.
type options struct {
	ConfigPath  string
	Adapter     string
	Address     string
	Program     string
	PageSize    int
	Depth       int
	Pages       int
	LogLevel    string
	Breakpoints []string
	Scripts     []string
	Watch       bool
	ShowVersion bool
}

// stringList collects a repeated flag.
type stringList []string

func (l *stringList) String() string { return strings.Join(*l, ",") }

func (l *stringList) Set(v string) error {
	*l = append(*l, v)
	return nil
}

func run(args []string, stdout, stderr io.Writer) int {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, errHelp) {
			return 0
		}
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	if opts.ShowVersion {
		fmt.Fprintf(stdout, "varpager %s\n", version)
		fmt.Fprintf(stdout, "Commit: %s\n", commit)
		fmt.Fprintf(stdout, "Built: %s\n", date)
		return 0
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	level, _ := logging.ParseLevel(cfg.Log.Level)
	log := logging.New(logging.Config{Level: level, Output: stderr, Prefix: "varpager"})

	bps := debug.NewBreakpoints()
	for _, loc := range opts.Breakpoints {
		bp, err := debug.ParseLocation(loc)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		bps.Add(bp)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals for graceful shutdown
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(signals)

	go func() {
		select {
		case <-signals:
			cancel()
		case <-ctx.Done():
		}
	}()

	var reloads <-chan *config.Config
	if opts.Watch {
		w, err := config.NewWatcher(opts.ConfigPath, config.WithWatcherLogger(log))
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		defer w.Close()
		reloads = forwardReloads(ctx, w, opts, log)
	}

	if err := inspectFirstStop(ctx, cfg, bps, log, stdout, reloads); err != nil {
		if errors.Is(err, context.Canceled) {
			return 0
		}
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var opts options
	var breaks, scripts stringList

	fs := flag.NewFlagSet("varpager", flag.ContinueOnError)
	fs.SetOutput(stderr)

	fs.StringVar(&opts.ConfigPath, "config", "", "Path to configuration file (.toml or .yaml)")
	fs.StringVar(&opts.ConfigPath, "c", "", "Path to configuration file (shorthand)")
	fs.StringVar(&opts.Adapter, "adapter", "", "Debug adapter (delve, generic)")
	fs.StringVar(&opts.Address, "address", "", "Address of a running debug adapter")
	fs.StringVar(&opts.Program, "program", "", "Program or package to debug")
	fs.IntVar(&opts.PageSize, "page-size", 0, "Children per page for every container kind")
	fs.IntVar(&opts.Depth, "depth", 0, "Number of levels to print")
	fs.IntVar(&opts.Pages, "pages", 0, "Pages to follow per level")
	fs.StringVar(&opts.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	fs.Var(&breaks, "break", "Breakpoint as file:line[ if condition] (repeatable)")
	fs.Var(&breaks, "b", "Breakpoint (shorthand)")
	fs.Var(&scripts, "script", "Lua script listed after the frame's scopes (repeatable)")
	fs.Var(&scripts, "s", "Lua script (shorthand)")
	fs.BoolVar(&opts.Watch, "watch", false, "Reprint the frame whenever the config file changes")
	fs.BoolVar(&opts.ShowVersion, "version", false, "Show version information")
	fs.BoolVar(&opts.ShowVersion, "v", false, "Show version information (shorthand)")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "varpager - page through debuggee variables over DAP\n\n")
		fmt.Fprintf(stderr, "Usage: varpager [options]\n\n")
		fmt.Fprintf(stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(stderr, "\nExamples:\n")
		fmt.Fprintf(stderr, "  varpager -program ./cmd/app -break main.go:42\n")
		fmt.Fprintf(stderr, "  varpager -address 127.0.0.1:4711 -program ./cmd/app -b main.go:42\n")
		fmt.Fprintf(stderr, "  varpager -config varpager.toml -page-size 20 -pages 2\n")
		fmt.Fprintf(stderr, "  varpager -config varpager.toml -watch -script queue.lua\n")
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return opts, errHelp
		}
		return opts, err
	}
	if fs.NArg() > 0 {
		return opts, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}
	if opts.PageSize < 0 || opts.Depth < 0 || opts.Pages < 0 {
		return opts, errors.New("page-size, depth and pages must not be negative")
	}
	if opts.Watch && opts.ConfigPath == "" {
		return opts, errors.New("-watch needs -config")
	}

	opts.Breakpoints = breaks
	opts.Scripts = scripts
	return opts, nil
}

// loadConfig layers file, environment and flags, then validates.
func loadConfig(opts options) (*config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	applyFlags(cfg, opts)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyFlags overrides cfg with the flags that were set.
func applyFlags(cfg *config.Config, opts options) {
	if opts.Adapter != "" {
		cfg.Debug.Adapter = opts.Adapter
	}
	if opts.Address != "" {
		cfg.Debug.Address = opts.Address
	}
	if opts.Program != "" {
		cfg.Debug.Program = opts.Program
	}
	if opts.PageSize > 0 {
		cfg.Inspect.SetPageSize(opts.PageSize)
	}
	if opts.Depth > 0 {
		cfg.Inspect.MaxDepth = opts.Depth
	}
	if opts.Pages > 0 {
		cfg.Inspect.MaxPages = opts.Pages
	}
	if opts.LogLevel != "" {
		cfg.Log.Level = opts.LogLevel
	}
	if len(opts.Scripts) > 0 {
		cfg.Inspect.Scripts = slices.Concat(cfg.Inspect.Scripts, opts.Scripts)
	}
}

// forwardReloads delivers every reloaded configuration, with the flags
// applied again, until ctx is done. A reload the flags make invalid is
// skipped.
func forwardReloads(ctx context.Context, w *config.Watcher, opts options, log *logging.Logger) <-chan *config.Config {
	log = logging.OrNop(log)
	reloads := make(chan *config.Config)
	w.OnChange(func(reloaded *config.Config) {
		cfg := *reloaded
		applyFlags(&cfg, opts)
		if err := cfg.Validate(); err != nil {
			log.Error("ignoring reload: %v", err)
			return
		}
		select {
		case reloads <- &cfg:
		case <-ctx.Done():
		}
	})
	return reloads
}

// withTimeout bounds ctx by d when d is positive.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// adapterConfig translates the debug section for the adapters package.
func adapterConfig(dc config.DebugConfig) adapters.Config {
	return adapters.Config{
		Type:        adapters.AdapterType(dc.Adapter),
		Program:     dc.Program,
		Args:        dc.Args,
		Mode:        dc.Mode,
		StopOnEntry: dc.StopOnEntry,
		AdapterPath: dc.AdapterPath,
		AdapterArgs: dc.AdapterArgs,
	}
}

// inspectFirstStop prints the frame the debuggee first stops in. When
// reloads is not nil the frame is printed again for every configuration
// received until ctx is done or the session ends.
func inspectFirstStop(ctx context.Context, cfg *config.Config, bps *debug.Breakpoints, log *logging.Logger, out io.Writer, reloads <-chan *config.Config) error {
	adapter, err := adapters.New(adapterConfig(cfg.Debug))
	if err != nil {
		return err
	}

	timeout := cfg.Debug.RequestTimeout.Std()
	startCtx, cancel := withTimeout(ctx, timeout)
	defer cancel()

	var session *debug.Session
	if cfg.Debug.Address != "" {
		session, err = debug.Dial(startCtx, cfg.Debug.Address, debug.WithSessionLogger(log))
	} else {
		session, err = debug.Connect(startCtx, adapter, debug.WithSessionLogger(log))
	}
	if err != nil {
		return err
	}
	defer session.Close()

	ended := make(chan struct{})
	var endOnce sync.Once
	session.SetHandlers(debug.SessionHandlers{
		OnOutput: func(category, output string) {
			log.Debug("%s: %s", category, strings.TrimRight(output, "\n"))
		},
		OnStateChanged: func(_, state debug.SessionState) {
			if state.Ended() {
				endOnce.Do(func() { close(ended) })
			}
		},
	})

	if err := session.Start(startCtx, adapter, bps); err != nil {
		return err
	}
	for _, path := range bps.Paths() {
		for _, bp := range bps.ForPath(path) {
			if !bp.Verified {
				log.Warn("breakpoint %s not verified: %s", bp, bp.Message)
			}
		}
	}

	// The first stop may take as long as the program needs to get there.
	stop, err := session.WaitForStop(ctx)
	if err != nil {
		return err
	}
	log.Info("stopped: %s (thread %d)", stop.Reason, stop.ThreadID)

	if err := printFrame(ctx, session, cfg, log, out); err != nil {
		return err
	}
	if err := followReloads(ctx, reloads, ended, func(next *config.Config) error {
		fmt.Fprintln(out)
		return printFrame(ctx, session, next, log, out)
	}); err != nil {
		return err
	}

	disconnectCtx, cancelDisconnect := withTimeout(context.Background(), timeout)
	defer cancelDisconnect()
	return session.Disconnect(disconnectCtx, cfg.Debug.Address == "")
}

// followReloads calls reprint for each configuration received until ctx
// is done, ended is closed or reloads is closed. A nil reloads returns at
// once.
func followReloads(ctx context.Context, reloads <-chan *config.Config, ended <-chan struct{}, reprint func(*config.Config) error) error {
	if reloads == nil {
		return nil
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ended:
			return nil
		case cfg, ok := <-reloads:
			if !ok {
				return nil
			}
			if err := reprint(cfg); err != nil {
				return err
			}
		}
	}
}

// printFrame prints the top frame's location followed by its scopes and
// the configured scripts as an indented tree. Views are built from cfg
// each time, so reloaded page sizes apply.
func printFrame(ctx context.Context, session *debug.Session, cfg *config.Config, log *logging.Logger, out io.Writer) error {
	ctx, cancel := withTimeout(ctx, cfg.Debug.RequestTimeout.Std())
	defer cancel()

	ic := cfg.Inspect
	frame, err := session.TopFrame(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s\n", frame)

	vi := debug.NewVariableInspector(session, ic.PageSizes(), log)
	var root inspect.Entity
	root, err = vi.FrameEntity(ctx, frame.ID)
	if err != nil {
		return err
	}

	scripts, closeScripts, err := loadScripts(ic, log)
	if err != nil {
		return err
	}
	defer closeScripts()
	if len(scripts) > 0 {
		root = inspect.NewComposite(root, inspect.NewSlice(scripts))
	}

	return printTree(ctx, out, root, inspect.WalkOptions{MaxDepth: ic.MaxDepth, MaxPages: ic.MaxPages})
}

// loadScripts compiles each configured script into a child named after
// its file, paged by the page size of the script's kind. The returned
// func closes the scripts.
func loadScripts(ic config.InspectConfig, log *logging.Logger) ([]inspect.Child, func(), error) {
	sizes := ic.PageSizes()
	var entities []*script.Entity
	closeAll := func() {
		for _, e := range entities {
			_ = e.Close()
		}
	}

	children := make([]inspect.Child, 0, len(ic.Scripts))
	for _, path := range ic.Scripts {
		src, err := os.ReadFile(path)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		e, err := script.New(string(src), script.WithPageSizes(sizes), script.WithLogger(log))
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("%s: %w", path, err)
		}
		entities = append(entities, e)

		paged, err := sizes.Wrap(e.Kind(), e)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("%s: %w", path, err)
		}
		children = append(children, inspect.Item{
			Name:     filepath.Base(path),
			TypeName: string(e.Kind()),
			Adapter:  paged,
		})
	}
	return children, closeAll, nil
}

// printTree writes one line per visited child, indented two spaces per
// level.
func printTree(ctx context.Context, out io.Writer, root inspect.Entity, opts inspect.WalkOptions) error {
	return inspect.Walk(ctx, root, opts, func(depth int, c inspect.Child) error {
		fmt.Fprintf(out, "%s%s\n", strings.Repeat("  ", depth), formatChild(c))
		return nil
	})
}

func formatChild(c inspect.Child) string {
	if inspect.IsMore(c) {
		return c.DisplayName()
	}
	line := c.DisplayName()
	if v := c.Value(); v != "" {
		line += " = " + v
	}
	if t := c.Type(); t != "" {
		line += " (" + t + ")"
	}
	return line
}
