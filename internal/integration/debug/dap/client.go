package dap

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/dshills/varpager/internal/logging"
)

var (
	// ErrClosed is returned for requests on a closed client.
	ErrClosed = errors.New("dap client closed")

	// ErrConnectionLost is returned for requests once the adapter
	// connection failed.
	ErrConnectionLost = errors.New("dap connection lost")
)

// ResponseError is a response with success=false.
type ResponseError struct {
	Command string
	Message string
	Details *ErrorMessage
}

// Error implements the error interface.
func (e *ResponseError) Error() string {
	msg := e.Message
	if e.Details != nil && e.Details.Format != "" {
		msg = e.Details.format()
	}
	return fmt.Sprintf("%s failed: %s", e.Command, msg)
}

// format expands {name} placeholders.
func (m *ErrorMessage) format() string {
	out := m.Format
	for k, v := range m.Variables {
		out = strings.ReplaceAll(out, "{"+k+"}", v)
	}
	return out
}

// Client is a DAP client that communicates with a debug adapter.
type Client struct {
	transport Transport
	log       *logging.Logger
	seq       int64

	pending   map[int]*pendingRequest
	pendingMu sync.Mutex

	handlers  map[string]func(json.RawMessage)
	onAny     func(Event)
	handlerMu sync.RWMutex

	done      chan struct{}
	closeOnce sync.Once
	lost      chan struct{}
	err       error
	errMu     sync.RWMutex
}

// pendingRequest tracks a pending request awaiting response.
type pendingRequest struct {
	done      chan struct{}
	closeOnce sync.Once
	response  *Response
	err       error
}

func (p *pendingRequest) finish(resp *Response, err error) {
	p.closeOnce.Do(func() {
		p.response = resp
		p.err = err
		close(p.done)
	})
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithLogger sets the client logger.
func WithLogger(l *logging.Logger) ClientOption {
	return func(c *Client) {
		c.log = l
	}
}

// NewClient creates a client and starts reading from transport.
func NewClient(transport Transport, opts ...ClientOption) *Client {
	c := &Client{
		transport: transport,
		pending:   make(map[int]*pendingRequest),
		handlers:  make(map[string]func(json.RawMessage)),
		done:      make(chan struct{}),
		lost:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = logging.OrNop(c.log).WithComponent("dap")

	go c.receiveLoop()
	return c
}

// Close closes the client and underlying transport. Pending requests fail
// with ErrClosed.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.failPending(ErrClosed)
		err = c.transport.Close()
	})
	return err
}

// Done is closed by Close.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Lost is closed when the receive loop stops because the transport failed.
// It is not closed by Close.
func (c *Client) Lost() <-chan struct{} {
	return c.lost
}

// Error returns the error that stopped the receive loop, if any.
func (c *Client) Error() error {
	c.errMu.RLock()
	defer c.errMu.RUnlock()
	return c.err
}

func (c *Client) failPending(err error) {
	c.pendingMu.Lock()
	pending := c.pending
	c.pending = make(map[int]*pendingRequest)
	c.pendingMu.Unlock()

	for _, req := range pending {
		req.finish(nil, err)
	}
}

func (c *Client) receiveLoop() {
	for {
		msg, err := c.transport.Receive()
		if err != nil {
			select {
			case <-c.done:
				return
			default:
			}

			c.errMu.Lock()
			c.err = err
			c.errMu.Unlock()
			close(c.lost)

			c.log.Debug("receive loop stopped: %v", err)
			c.failPending(c.lostError())
			return
		}

		select {
		case <-c.done:
			return
		default:
		}

		c.handleMessage(msg)
	}
}

func (c *Client) handleMessage(msg *Message) {
	var base ProtocolMessage
	if err := json.Unmarshal(msg.Content, &base); err != nil {
		c.log.Warn("malformed message: %v", err)
		return
	}

	switch base.Type {
	case "response":
		c.handleResponse(msg.Content)
	case "event":
		c.handleEvent(msg.Content)
	}
}

func (c *Client) handleResponse(content []byte) {
	var resp Response
	if err := json.Unmarshal(content, &resp); err != nil {
		c.log.Warn("malformed response: %v", err)
		return
	}

	c.pendingMu.Lock()
	req, ok := c.pending[resp.RequestSeq]
	delete(c.pending, resp.RequestSeq)
	c.pendingMu.Unlock()

	if ok {
		req.finish(&resp, nil)
	}
}

func (c *Client) handleEvent(content []byte) {
	var evt Event
	if err := json.Unmarshal(content, &evt); err != nil {
		c.log.Warn("malformed event: %v", err)
		return
	}
	c.log.Debug("<- %s", evt.Event)

	c.handlerMu.RLock()
	handler := c.handlers[evt.Event]
	onAny := c.onAny
	c.handlerMu.RUnlock()

	if handler != nil {
		handler(evt.Body)
	}
	if onAny != nil {
		onAny(evt)
	}
}

func (c *Client) lostError() error {
	return fmt.Errorf("%w: %v", ErrConnectionLost, c.Error())
}

func (c *Client) sendRequest(ctx context.Context, command string, args any) (*Response, error) {
	select {
	case <-c.done:
		return nil, ErrClosed
	case <-c.lost:
		return nil, c.lostError()
	default:
	}

	seq := int(atomic.AddInt64(&c.seq, 1))

	var argsJSON json.RawMessage
	if args != nil {
		var err error
		argsJSON, err = json.Marshal(args)
		if err != nil {
			return nil, fmt.Errorf("marshal %s arguments: %w", command, err)
		}
	}

	content, err := json.Marshal(Request{
		ProtocolMessage: ProtocolMessage{Seq: seq, Type: "request"},
		Command:         command,
		Arguments:       argsJSON,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	pending := &pendingRequest{done: make(chan struct{})}

	c.pendingMu.Lock()
	c.pending[seq] = pending
	c.pendingMu.Unlock()

	c.log.Debug("-> %s seq=%d", command, seq)
	if err := c.transport.Send(&Message{Content: content}); err != nil {
		c.forget(seq)
		select {
		case <-c.done:
			return nil, ErrClosed
		case <-c.lost:
			return nil, c.lostError()
		default:
		}
		return nil, fmt.Errorf("send %s: %w", command, err)
	}

	select {
	case <-ctx.Done():
		c.forget(seq)
		return nil, ctx.Err()
	case <-c.done:
		c.forget(seq)
		return nil, ErrClosed
	case <-c.lost:
		select {
		case <-pending.done:
			return pending.response, pending.err
		default:
		}
		c.forget(seq)
		return nil, c.lostError()
	case <-pending.done:
		return pending.response, pending.err
	}
}

func (c *Client) forget(seq int) {
	c.pendingMu.Lock()
	delete(c.pending, seq)
	c.pendingMu.Unlock()
}

// call sends command and decodes the body of a successful response into T.
func call[T any](ctx context.Context, c *Client, command string, args any) (*T, error) {
	resp, err := c.sendRequest(ctx, command, args)
	if err != nil {
		return nil, err
	}

	if !resp.Success {
		rerr := &ResponseError{Command: command, Message: resp.Message}
		var body ErrorResponseBody
		if len(resp.Body) > 0 && json.Unmarshal(resp.Body, &body) == nil {
			rerr.Details = body.Error
		}
		return nil, rerr
	}

	var body T
	if len(resp.Body) > 0 {
		if err := json.Unmarshal(resp.Body, &body); err != nil {
			return nil, fmt.Errorf("unmarshal %s response: %w", command, err)
		}
	}
	return &body, nil
}

// noBody is decoded from responses whose body is ignored.
type noBody struct{}

// on registers a typed handler for an event.
func on[T any](c *Client, event string, handler func(T)) {
	c.handlerMu.Lock()
	defer c.handlerMu.Unlock()

	if handler == nil {
		delete(c.handlers, event)
		return
	}
	c.handlers[event] = func(raw json.RawMessage) {
		var body T
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &body); err != nil {
				c.log.Warn("malformed %s event: %v", event, err)
				return
			}
		}
		handler(body)
	}
}

// OnInitialized sets the handler for the initialized event.
func (c *Client) OnInitialized(handler func()) {
	if handler == nil {
		on[noBody](c, "initialized", nil)
		return
	}
	on(c, "initialized", func(noBody) { handler() })
}

// OnStopped sets the handler for the stopped event.
func (c *Client) OnStopped(handler func(StoppedEventBody)) {
	on(c, "stopped", handler)
}

// OnContinued sets the handler for the continued event.
func (c *Client) OnContinued(handler func(ContinuedEventBody)) {
	on(c, "continued", handler)
}

// OnExited sets the handler for the exited event.
func (c *Client) OnExited(handler func(ExitedEventBody)) {
	on(c, "exited", handler)
}

// OnTerminated sets the handler for the terminated event.
func (c *Client) OnTerminated(handler func(TerminatedEventBody)) {
	on(c, "terminated", handler)
}

// OnOutput sets the handler for the output event.
func (c *Client) OnOutput(handler func(OutputEventBody)) {
	on(c, "output", handler)
}

// OnInvalidated sets the handler for the invalidated event.
func (c *Client) OnInvalidated(handler func(InvalidatedEventBody)) {
	on(c, "invalidated", handler)
}

// OnAnyEvent sets a handler called for every event after its typed handler.
func (c *Client) OnAnyEvent(handler func(Event)) {
	c.handlerMu.Lock()
	c.onAny = handler
	c.handlerMu.Unlock()
}

// Initialize sends the initialize request.
func (c *Client) Initialize(ctx context.Context, args InitializeRequestArguments) (*Capabilities, error) {
	return call[Capabilities](ctx, c, "initialize", args)
}

// ConfigurationDone sends the configurationDone request.
func (c *Client) ConfigurationDone(ctx context.Context) error {
	_, err := call[noBody](ctx, c, "configurationDone", nil)
	return err
}

// Launch sends the launch request. args are adapter specific.
func (c *Client) Launch(ctx context.Context, args map[string]any) error {
	_, err := call[noBody](ctx, c, "launch", args)
	return err
}

// Attach sends the attach request. args are adapter specific.
func (c *Client) Attach(ctx context.Context, args map[string]any) error {
	_, err := call[noBody](ctx, c, "attach", args)
	return err
}

// Disconnect sends the disconnect request.
func (c *Client) Disconnect(ctx context.Context, args DisconnectArguments) error {
	_, err := call[noBody](ctx, c, "disconnect", args)
	return err
}

// SetBreakpoints replaces the breakpoints of one source file.
func (c *Client) SetBreakpoints(ctx context.Context, args SetBreakpointsArguments) ([]Breakpoint, error) {
	body, err := call[SetBreakpointsResponseBody](ctx, c, "setBreakpoints", args)
	if err != nil {
		return nil, err
	}
	return body.Breakpoints, nil
}

// Continue sends the continue request.
func (c *Client) Continue(ctx context.Context, args ContinueArguments) (*ContinueResponseBody, error) {
	return call[ContinueResponseBody](ctx, c, "continue", args)
}

// Next sends the next (step over) request.
func (c *Client) Next(ctx context.Context, args NextArguments) error {
	_, err := call[noBody](ctx, c, "next", args)
	return err
}

// Threads sends the threads request.
func (c *Client) Threads(ctx context.Context) ([]Thread, error) {
	body, err := call[ThreadsResponseBody](ctx, c, "threads", nil)
	if err != nil {
		return nil, err
	}
	return body.Threads, nil
}

// StackTrace sends the stackTrace request.
func (c *Client) StackTrace(ctx context.Context, args StackTraceArguments) (*StackTraceResponseBody, error) {
	return call[StackTraceResponseBody](ctx, c, "stackTrace", args)
}

// Scopes sends the scopes request.
func (c *Client) Scopes(ctx context.Context, args ScopesArguments) ([]Scope, error) {
	body, err := call[ScopesResponseBody](ctx, c, "scopes", args)
	if err != nil {
		return nil, err
	}
	return body.Scopes, nil
}

// Variables sends the variables request.
func (c *Client) Variables(ctx context.Context, args VariablesArguments) ([]Variable, error) {
	body, err := call[VariablesResponseBody](ctx, c, "variables", args)
	if err != nil {
		return nil, err
	}
	return body.Variables, nil
}

// SetVariable sends the setVariable request.
func (c *Client) SetVariable(ctx context.Context, args SetVariableArguments) (*SetVariableResponseBody, error) {
	return call[SetVariableResponseBody](ctx, c, "setVariable", args)
}

// Evaluate sends the evaluate request.
func (c *Client) Evaluate(ctx context.Context, args EvaluateArguments) (*EvaluateResponseBody, error) {
	return call[EvaluateResponseBody](ctx, c, "evaluate", args)
}
