package debug

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sync"

	"github.com/google/uuid"

	"github.com/dshills/varpager/internal/integration/debug/adapters"
	"github.com/dshills/varpager/internal/integration/debug/dap"
	"github.com/dshills/varpager/internal/logging"
)

var (
	// ErrNotStopped is returned by operations that need a stopped debuggee.
	ErrNotStopped = errors.New("debuggee is not stopped")

	// ErrStaleReference is returned for a variables reference handed out
	// before the debuggee last resumed.
	ErrStaleReference = errors.New("variables reference is stale")

	// ErrTerminated is returned when waiting on a session that has ended.
	ErrTerminated = errors.New("debug session terminated")
)

// SessionState represents the current state of a debug session.
type SessionState int

const (
	// StateInitializing is the initial state before connection.
	StateInitializing SessionState = iota
	// StateConnected is after transport is established.
	StateConnected
	// StateConfiguring is after initialize but before configurationDone.
	StateConfiguring
	// StateRunning is when the debuggee is running.
	StateRunning
	// StateStopped is when the debuggee is stopped (breakpoint, exception, etc).
	StateStopped
	// StateTerminated is when the debuggee has exited.
	StateTerminated
	// StateDisconnected is when the debug adapter has disconnected.
	StateDisconnected
)

// String returns a string representation of the state.
func (s SessionState) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateConnected:
		return "connected"
	case StateConfiguring:
		return "configuring"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	case StateTerminated:
		return "terminated"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Ended reports whether no further stop can happen.
func (s SessionState) Ended() bool {
	return s == StateTerminated || s == StateDisconnected
}

// Session represents a debug session with a debug adapter.
//
// Every stopped, continued or invalidated event starts a new epoch.
// Variables references are only meaningful within the epoch they were
// obtained in.
type Session struct {
	id     string
	client *dap.Client
	log    *logging.Logger

	capabilities *dap.Capabilities

	stateMu       sync.RWMutex
	state         SessionState
	epoch         uint64
	currentThread int
	lastStop      dap.StoppedEventBody
	changed       chan struct{}

	initialized     chan struct{}
	initializedOnce sync.Once

	breakpoints   map[string][]dap.Breakpoint
	breakpointsMu sync.RWMutex

	handlers   SessionHandlers
	handlersMu sync.RWMutex

	// adapter process when the session started one in listen mode
	proc *exec.Cmd
}

// SessionHandlers contains callbacks for session events.
type SessionHandlers struct {
	// OnStateChanged is called when the session state changes.
	OnStateChanged func(old, new SessionState)

	// OnStopped is called when the debuggee stops.
	OnStopped func(reason string, threadID int, allStopped bool)

	// OnOutput is called when the debuggee produces output.
	OnOutput func(category, output string)

	// OnTerminated is called when the debuggee terminates.
	OnTerminated func()
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithSessionLogger sets the session logger.
func WithSessionLogger(l *logging.Logger) SessionOption {
	return func(s *Session) {
		s.log = l
	}
}

// NewSession creates a session over an established client.
func NewSession(client *dap.Client, opts ...SessionOption) *Session {
	s := &Session{
		id:          uuid.NewString(),
		client:      client,
		state:       StateConnected,
		changed:     make(chan struct{}),
		initialized: make(chan struct{}),
		breakpoints: make(map[string][]dap.Breakpoint),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = logging.OrNop(s.log).WithComponent("debug").WithField("session", s.id)

	client.OnInitialized(s.onInitialized)
	client.OnStopped(s.onStopped)
	client.OnContinued(s.onContinued)
	client.OnExited(s.onExited)
	client.OnTerminated(s.onTerminated)
	client.OnOutput(s.onOutput)
	client.OnInvalidated(s.onInvalidated)

	go s.watchConnection()
	return s
}

// watchConnection moves the session to StateDisconnected when the adapter
// connection fails, so waiters do not block on a dead adapter.
func (s *Session) watchConnection() {
	select {
	case <-s.client.Done():
	case <-s.client.Lost():
		s.log.Warn("adapter connection lost: %v", s.client.Error())
		if !s.State().Ended() {
			s.setState(StateDisconnected, true)
		}
	}
}

// Connect starts the adapter described by a and returns a session talking
// to it. Adapters with a listen address are dialed once the port accepts
// connections; the others are driven over stdio.
func Connect(ctx context.Context, a adapters.Adapter, opts ...SessionOption) (*Session, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}

	cmd, err := a.Command()
	if err != nil {
		return nil, err
	}

	if a.Address() == "" {
		transport, err := dap.Start(cmd)
		if err != nil {
			return nil, fmt.Errorf("start %s: %w", a.Name(), err)
		}
		return newSession(transport, opts), nil
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", a.Name(), err)
	}
	stop := func() {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
	}

	if err := adapters.WaitForPort(ctx, a.Address()); err != nil {
		stop()
		return nil, err
	}
	transport, err := dap.Dial(ctx, a.Address())
	if err != nil {
		stop()
		return nil, err
	}

	s := newSession(transport, opts)
	s.proc = cmd
	return s, nil
}

// Dial connects to a debug adapter that is already listening on address.
func Dial(ctx context.Context, address string, opts ...SessionOption) (*Session, error) {
	transport, err := dap.Dial(ctx, address)
	if err != nil {
		return nil, err
	}
	return newSession(transport, opts), nil
}

func newSession(transport dap.Transport, opts []SessionOption) *Session {
	s := &Session{}
	for _, opt := range opts {
		opt(s)
	}
	client := dap.NewClient(transport, dap.WithLogger(s.log))
	return NewSession(client, opts...)
}

// ID returns the session identifier used in logs.
func (s *Session) ID() string {
	return s.id
}

// SetHandlers sets the session event handlers.
func (s *Session) SetHandlers(handlers SessionHandlers) {
	s.handlersMu.Lock()
	s.handlers = handlers
	s.handlersMu.Unlock()
}

// State returns the current session state.
func (s *Session) State() SessionState {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.state
}

// Epoch returns the current stop epoch.
func (s *Session) Epoch() uint64 {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.epoch
}

// Valid reports whether references obtained in epoch may still be used.
func (s *Session) Valid(epoch uint64) bool {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.state == StateStopped && s.epoch == epoch
}

// setState updates the session state. bump starts a new epoch.
func (s *Session) setState(state SessionState, bump bool) {
	s.stateMu.Lock()
	old := s.state
	s.state = state
	if bump {
		s.epoch++
	}
	close(s.changed)
	s.changed = make(chan struct{})
	s.stateMu.Unlock()

	if old != state {
		s.log.Debug("state %s -> %s", old, state)
	}

	s.handlersMu.RLock()
	handler := s.handlers.OnStateChanged
	s.handlersMu.RUnlock()

	if handler != nil && old != state {
		handler(old, state)
	}
}

// Capabilities returns the debug adapter capabilities.
func (s *Session) Capabilities() *dap.Capabilities {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.capabilities
}

// CurrentThread returns the thread that caused the last stop.
func (s *Session) CurrentThread() int {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.currentThread
}

// WaitForStop blocks until the debuggee is stopped and returns the stop
// details.
func (s *Session) WaitForStop(ctx context.Context) (dap.StoppedEventBody, error) {
	for {
		s.stateMu.RLock()
		state, stop, changed := s.state, s.lastStop, s.changed
		s.stateMu.RUnlock()

		switch {
		case state == StateStopped:
			return stop, nil
		case state.Ended():
			return dap.StoppedEventBody{}, ErrTerminated
		}

		select {
		case <-ctx.Done():
			return dap.StoppedEventBody{}, ctx.Err()
		case <-changed:
		}
	}
}

// Initialize initializes the debug session.
func (s *Session) Initialize(ctx context.Context, adapterID string) error {
	caps, err := s.client.Initialize(ctx, dap.InitializeRequestArguments{
		ClientID:                 "varpager",
		ClientName:               "varpager",
		AdapterID:                adapterID,
		LinesStartAt1:            true,
		ColumnsStartAt1:          true,
		PathFormat:               "path",
		SupportsVariableType:     true,
		SupportsVariablePaging:   true,
		SupportsInvalidatedEvent: true,
	})
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}

	s.stateMu.Lock()
	s.capabilities = caps
	s.stateMu.Unlock()

	s.setState(StateConfiguring, false)
	return nil
}

// Start runs the DAP startup sequence for a: initialize, launch or attach,
// wait for the initialized event, set breakpoints, configurationDone.
func (s *Session) Start(ctx context.Context, a adapters.Adapter, bps *Breakpoints) error {
	if err := s.Initialize(ctx, string(a.Type())); err != nil {
		return err
	}

	var err error
	if a.Request() == adapters.RequestAttach {
		err = s.Attach(ctx, a.AttachArgs())
	} else {
		err = s.Launch(ctx, a.LaunchArgs())
	}
	if err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return fmt.Errorf("waiting for initialized event: %w", ctx.Err())
	case <-s.initialized:
	}

	if bps != nil {
		if err := bps.Sync(ctx, s); err != nil {
			return err
		}
	}

	caps := s.Capabilities()
	if caps == nil || caps.SupportsConfigurationDoneRequest {
		return s.ConfigurationDone(ctx)
	}
	s.setState(StateRunning, true)
	return nil
}

// ConfigurationDone signals that configuration is complete.
func (s *Session) ConfigurationDone(ctx context.Context) error {
	if err := s.client.ConfigurationDone(ctx); err != nil {
		return fmt.Errorf("configurationDone: %w", err)
	}

	// A stop on entry may already have been reported.
	if s.State() == StateConfiguring {
		s.setState(StateRunning, true)
	}
	return nil
}

// Launch launches the debuggee with adapter specific arguments.
func (s *Session) Launch(ctx context.Context, args map[string]any) error {
	s.log.Info("launching %v", args["program"])
	if err := s.client.Launch(ctx, args); err != nil {
		return fmt.Errorf("launch: %w", err)
	}
	return nil
}

// Attach attaches to a running process.
func (s *Session) Attach(ctx context.Context, args map[string]any) error {
	s.log.Info("attaching to %v", args["processId"])
	if err := s.client.Attach(ctx, args); err != nil {
		return fmt.Errorf("attach: %w", err)
	}
	return nil
}

// Disconnect disconnects from the debug adapter.
func (s *Session) Disconnect(ctx context.Context, terminate bool) error {
	if err := s.client.Disconnect(ctx, dap.DisconnectArguments{TerminateDebuggee: terminate}); err != nil {
		return fmt.Errorf("disconnect: %w", err)
	}

	s.setState(StateDisconnected, true)
	return nil
}

// Close closes the session, the client and any adapter process the session
// started.
func (s *Session) Close() error {
	s.setState(StateDisconnected, true)
	err := s.client.Close()
	if s.proc != nil && s.proc.Process != nil {
		_ = s.proc.Process.Kill()
		_ = s.proc.Wait()
	}
	return err
}

// SetBreakpoints replaces the breakpoints of one source file.
func (s *Session) SetBreakpoints(ctx context.Context, path string, bps []dap.SourceBreakpoint) ([]dap.Breakpoint, error) {
	if bps == nil {
		bps = []dap.SourceBreakpoint{}
	}

	result, err := s.client.SetBreakpoints(ctx, dap.SetBreakpointsArguments{
		Source:      dap.Source{Path: path},
		Breakpoints: bps,
	})
	if err != nil {
		return nil, err
	}

	s.breakpointsMu.Lock()
	if len(bps) == 0 {
		delete(s.breakpoints, path)
	} else {
		s.breakpoints[path] = result
	}
	s.breakpointsMu.Unlock()

	return result, nil
}

// Breakpoints returns the verified breakpoints of a source file.
func (s *Session) Breakpoints(path string) []dap.Breakpoint {
	s.breakpointsMu.RLock()
	defer s.breakpointsMu.RUnlock()
	return append([]dap.Breakpoint{}, s.breakpoints[path]...)
}

// Continue resumes execution.
func (s *Session) Continue(ctx context.Context, threadID int) error {
	if s.State() != StateStopped {
		return ErrNotStopped
	}
	if _, err := s.client.Continue(ctx, dap.ContinueArguments{ThreadID: threadID}); err != nil {
		return err
	}

	s.setState(StateRunning, true)
	return nil
}

// Next performs step over.
func (s *Session) Next(ctx context.Context, threadID int) error {
	if s.State() != StateStopped {
		return ErrNotStopped
	}
	if err := s.client.Next(ctx, dap.NextArguments{ThreadID: threadID}); err != nil {
		return err
	}

	s.setState(StateRunning, true)
	return nil
}

// Threads retrieves the current threads.
func (s *Session) Threads(ctx context.Context) ([]dap.Thread, error) {
	return s.client.Threads(ctx)
}

// StackTrace retrieves frames of a thread. levels 0 means all.
func (s *Session) StackTrace(ctx context.Context, threadID, startFrame, levels int) ([]dap.StackFrame, int, error) {
	if s.State() != StateStopped {
		return nil, 0, ErrNotStopped
	}

	result, err := s.client.StackTrace(ctx, dap.StackTraceArguments{
		ThreadID:   threadID,
		StartFrame: startFrame,
		Levels:     levels,
	})
	if err != nil {
		return nil, 0, err
	}
	return result.StackFrames, result.TotalFrames, nil
}

// Scopes retrieves the scopes for a stack frame.
func (s *Session) Scopes(ctx context.Context, frameID int) ([]dap.Scope, error) {
	if s.State() != StateStopped {
		return nil, ErrNotStopped
	}
	return s.client.Scopes(ctx, dap.ScopesArguments{FrameID: frameID})
}

// Variables retrieves children of a variables reference obtained in epoch.
func (s *Session) Variables(ctx context.Context, epoch uint64, args dap.VariablesArguments) ([]dap.Variable, error) {
	if err := s.check(epoch); err != nil {
		return nil, err
	}
	return s.client.Variables(ctx, args)
}

// SetVariable sets a variable value.
func (s *Session) SetVariable(ctx context.Context, epoch uint64, variablesRef int, name, value string) (*dap.SetVariableResponseBody, error) {
	if err := s.check(epoch); err != nil {
		return nil, err
	}

	caps := s.Capabilities()
	if caps != nil && !caps.SupportsSetVariable {
		return nil, fmt.Errorf("setVariable not supported by adapter")
	}

	return s.client.SetVariable(ctx, dap.SetVariableArguments{
		VariablesReference: variablesRef,
		Name:               name,
		Value:              value,
	})
}

// Evaluate evaluates an expression in a frame.
func (s *Session) Evaluate(ctx context.Context, expression string, frameID int, evalContext string) (*dap.EvaluateResponseBody, error) {
	if s.State() != StateStopped {
		return nil, ErrNotStopped
	}
	return s.client.Evaluate(ctx, dap.EvaluateArguments{
		Expression: expression,
		FrameID:    frameID,
		Context:    evalContext,
	})
}

func (s *Session) check(epoch uint64) error {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()

	if s.state != StateStopped {
		return ErrNotStopped
	}
	if s.epoch != epoch {
		return ErrStaleReference
	}
	return nil
}

// Event handlers

func (s *Session) onInitialized() {
	s.initializedOnce.Do(func() { close(s.initialized) })
}

func (s *Session) onStopped(body dap.StoppedEventBody) {
	s.stateMu.Lock()
	s.currentThread = body.ThreadID
	s.lastStop = body
	s.stateMu.Unlock()

	s.log.Info("stopped: %s (thread %d)", body.Reason, body.ThreadID)
	s.setState(StateStopped, true)

	s.handlersMu.RLock()
	handler := s.handlers.OnStopped
	s.handlersMu.RUnlock()

	if handler != nil {
		handler(body.Reason, body.ThreadID, body.AllThreadsStopped)
	}
}

func (s *Session) onContinued(dap.ContinuedEventBody) {
	s.setState(StateRunning, true)
}

func (s *Session) onInvalidated(body dap.InvalidatedEventBody) {
	if !invalidatesVariables(body.Areas) {
		return
	}
	s.log.Debug("variables invalidated")
	s.setState(s.State(), true)
}

func invalidatesVariables(areas []string) bool {
	if len(areas) == 0 {
		return true
	}
	for _, a := range areas {
		if a == "all" || a == "variables" || a == "stacks" {
			return true
		}
	}
	return false
}

func (s *Session) onExited(body dap.ExitedEventBody) {
	s.log.Info("debuggee exited with code %d", body.ExitCode)
	s.setState(StateTerminated, true)
}

func (s *Session) onTerminated(dap.TerminatedEventBody) {
	s.setState(StateTerminated, true)

	s.handlersMu.RLock()
	handler := s.handlers.OnTerminated
	s.handlersMu.RUnlock()

	if handler != nil {
		handler()
	}
}

func (s *Session) onOutput(body dap.OutputEventBody) {
	s.handlersMu.RLock()
	handler := s.handlers.OnOutput
	s.handlersMu.RUnlock()

	if handler != nil {
		handler(body.Category, body.Output)
	}
}
