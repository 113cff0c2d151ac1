// Package dap implements the Debug Adapter Protocol client.
package dap

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os/exec"
	"strconv"
	"strings"
	"sync"
)

// MaxContentLength is the maximum allowed content length for DAP messages (10MB).
const MaxContentLength = 10 * 1024 * 1024

var (
	// ErrMessageTooLarge is returned for frames above MaxContentLength.
	ErrMessageTooLarge = errors.New("dap message too large")

	// ErrMissingContentLength is returned for frames without a length header.
	ErrMissingContentLength = errors.New("missing Content-Length header")
)

// Transport carries framed DAP messages to and from a debug adapter.
type Transport interface {
	// Send sends a message to the debug adapter.
	Send(msg *Message) error

	// Receive blocks until the next message arrives.
	Receive() (*Message, error)

	// Close closes the transport.
	Close() error
}

// Message is one framed DAP message.
type Message struct {
	// ContentType is the optional Content-Type header.
	ContentType string

	// Content is the JSON body.
	Content []byte
}

// StreamTransport frames messages over any byte stream, such as a TCP
// connection or a pipe.
type StreamTransport struct {
	rwc    io.ReadWriteCloser
	reader *bufio.Reader
	mu     sync.Mutex
}

// NewStreamTransport wraps rwc.
func NewStreamTransport(rwc io.ReadWriteCloser) *StreamTransport {
	return &StreamTransport{
		rwc:    rwc,
		reader: bufio.NewReader(rwc),
	}
}

// Dial connects to a debug adapter listening on a TCP address.
func Dial(ctx context.Context, address string) (*StreamTransport, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", address, err)
	}
	return NewStreamTransport(conn), nil
}

// Send implements Transport.
func (t *StreamTransport) Send(msg *Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return writeMessage(t.rwc, msg)
}

// Receive implements Transport.
func (t *StreamTransport) Receive() (*Message, error) {
	return readMessage(t.reader)
}

// Close implements Transport.
func (t *StreamTransport) Close() error {
	return t.rwc.Close()
}

// ProcessTransport talks to a debug adapter over the stdin and stdout of a
// child process.
type ProcessTransport struct {
	*StreamTransport
	cmd *exec.Cmd
}

// Start starts cmd and connects to its standard streams. The caller keeps
// control of cmd.Stderr.
func Start(cmd *exec.Cmd) (*ProcessTransport, error) {
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("get stdin pipe: %w", err)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		_ = stdin.Close()
		return nil, fmt.Errorf("get stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		_ = stdout.Close()
		return nil, fmt.Errorf("start %s: %w", cmd.Path, err)
	}

	return &ProcessTransport{
		StreamTransport: NewStreamTransport(pipe{Reader: stdout, WriteCloser: stdin}),
		cmd:             cmd,
	}, nil
}

// Pid returns the adapter process id.
func (t *ProcessTransport) Pid() int {
	if t.cmd.Process == nil {
		return 0
	}
	return t.cmd.Process.Pid
}

// Close closes the pipes, kills the adapter and reaps it.
func (t *ProcessTransport) Close() error {
	_ = t.StreamTransport.Close()
	if t.cmd.Process != nil {
		_ = t.cmd.Process.Kill()
	}

	err := t.cmd.Wait()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}

// pipe joins a child's stdout and stdin into one stream.
type pipe struct {
	io.Reader
	io.WriteCloser
}

func (p pipe) Close() error {
	err := p.WriteCloser.Close()
	if c, ok := p.Reader.(io.Closer); ok {
		if cerr := c.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

func writeMessage(w io.Writer, msg *Message) error {
	var header strings.Builder
	fmt.Fprintf(&header, "Content-Length: %d\r\n", len(msg.Content))
	if msg.ContentType != "" {
		fmt.Fprintf(&header, "Content-Type: %s\r\n", msg.ContentType)
	}
	header.WriteString("\r\n")

	if _, err := io.WriteString(w, header.String()); err != nil {
		return fmt.Errorf("write headers: %w", err)
	}
	if _, err := w.Write(msg.Content); err != nil {
		return fmt.Errorf("write content: %w", err)
	}
	return nil
}

func readMessage(r *bufio.Reader) (*Message, error) {
	msg := &Message{}
	length := -1

	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return nil, fmt.Errorf("read header: %w", err)
		}

		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			break
		}

		name, value, ok := strings.Cut(line, ":")
		if !ok {
			return nil, fmt.Errorf("invalid header: %q", line)
		}
		value = strings.TrimSpace(value)

		switch strings.ToLower(strings.TrimSpace(name)) {
		case "content-length":
			n, err := strconv.Atoi(value)
			if err != nil || n < 0 {
				return nil, fmt.Errorf("invalid content-length %q", value)
			}
			if n > MaxContentLength {
				return nil, fmt.Errorf("%w: %d bytes", ErrMessageTooLarge, n)
			}
			length = n
		case "content-type":
			msg.ContentType = value
		}
	}

	if length <= 0 {
		return nil, ErrMissingContentLength
	}

	msg.Content = make([]byte, length)
	if _, err := io.ReadFull(r, msg.Content); err != nil {
		return nil, fmt.Errorf("read content: %w", err)
	}
	return msg, nil
}
