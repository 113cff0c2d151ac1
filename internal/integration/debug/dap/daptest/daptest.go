// Package daptest provides an in-memory debug adapter for tests.
package daptest

import (
	"encoding/json"
	"errors"
	"io"
	"sync"

	"github.com/dshills/varpager/internal/integration/debug/dap"
)

// ErrNoReply makes a handler leave its request unanswered.
var ErrNoReply = errors.New("no reply")

// HandlerFunc answers one request. Returning an error produces a response
// with success=false and the error text as message.
type HandlerFunc func(args json.RawMessage) (body any, err error)

// Adapter is a dap.Transport that answers requests in-process.
// Commands without a handler succeed with an empty body.
type Adapter struct {
	mu       sync.Mutex
	handlers map[string]HandlerFunc
	requests []dap.Request
	seq      int
	closed   bool

	recv chan *dap.Message
}

// New creates an adapter.
func New() *Adapter {
	return &Adapter{
		handlers: make(map[string]HandlerFunc),
		recv:     make(chan *dap.Message, 64),
	}
}

// Handle registers the handler for command.
func (a *Adapter) Handle(command string, h HandlerFunc) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.handlers[command] = h
}

// Requests returns every request received so far.
func (a *Adapter) Requests() []dap.Request {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]dap.Request(nil), a.requests...)
}

// Count returns how many requests for command were received.
func (a *Adapter) Count(command string) int {
	n := 0
	for _, r := range a.Requests() {
		if r.Command == command {
			n++
		}
	}
	return n
}

// Emit sends an event to the client.
func (a *Adapter) Emit(event string, body any) {
	a.mu.Lock()
	defer a.mu.Unlock()

	msg := dap.Event{
		ProtocolMessage: dap.ProtocolMessage{Seq: a.nextSeq(), Type: "event"},
		Event:           event,
		Body:            marshal(body),
	}
	a.push(msg)
}

// Send implements dap.Transport.
func (a *Adapter) Send(msg *dap.Message) error {
	var req dap.Request
	if err := json.Unmarshal(msg.Content, &req); err != nil {
		return err
	}

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return io.ErrClosedPipe
	}
	a.requests = append(a.requests, req)
	h := a.handlers[req.Command]
	a.mu.Unlock()

	var body any
	var err error
	if h != nil {
		body, err = h(req.Arguments)
	}
	if errors.Is(err, ErrNoReply) {
		return nil
	}

	resp := dap.Response{
		RequestSeq: req.Seq,
		Success:    err == nil,
		Command:    req.Command,
	}
	if err != nil {
		resp.Message = err.Error()
	} else {
		resp.Body = marshal(body)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return io.ErrClosedPipe
	}
	resp.ProtocolMessage = dap.ProtocolMessage{Seq: a.nextSeq(), Type: "response"}
	a.push(resp)
	return nil
}

// Receive implements dap.Transport.
func (a *Adapter) Receive() (*dap.Message, error) {
	msg, ok := <-a.recv
	if !ok {
		return nil, io.EOF
	}
	return msg, nil
}

// Close implements dap.Transport.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.closed {
		a.closed = true
		close(a.recv)
	}
	return nil
}

// Serve answers requests arriving on rwc, such as an accepted TCP
// connection, until either side closes.
func (a *Adapter) Serve(rwc io.ReadWriteCloser) {
	stream := dap.NewStreamTransport(rwc)
	defer stream.Close()

	go func() {
		for {
			msg, err := a.Receive()
			if err != nil {
				_ = stream.Close()
				return
			}
			if err := stream.Send(msg); err != nil {
				return
			}
		}
	}()

	for {
		msg, err := stream.Receive()
		if err != nil {
			a.Disconnect()
			return
		}
		if err := a.Send(msg); err != nil {
			return
		}
	}
}

// Disconnect simulates the adapter going away.
func (a *Adapter) Disconnect() {
	_ = a.Close()
}

func (a *Adapter) nextSeq() int {
	a.seq++
	return a.seq
}

// push must be called with a.mu held.
func (a *Adapter) push(v any) {
	if a.closed {
		return
	}
	content, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	a.recv <- &dap.Message{Content: content}
}

func marshal(v any) json.RawMessage {
	if v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}

// Args decodes request arguments into T.
func Args[T any](raw json.RawMessage) (T, error) {
	var v T
	if len(raw) == 0 {
		return v, errors.New("missing arguments")
	}
	err := json.Unmarshal(raw, &v)
	return v, err
}
