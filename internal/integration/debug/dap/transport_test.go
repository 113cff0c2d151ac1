package dap

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteMessage(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, writeMessage(&buf, &Message{Content: []byte(`{"test": "value"}`)}))
	assert.Equal(t, "Content-Length: 17\r\n\r\n{\"test\": \"value\"}", buf.String())

	buf.Reset()
	require.NoError(t, writeMessage(&buf, &Message{ContentType: "application/json", Content: []byte(`{}`)}))
	assert.Contains(t, buf.String(), "Content-Type: application/json\r\n")
}

func TestReadMessage(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		content string
		ctype   string
		wantErr error
	}{
		{name: "plain", input: "Content-Length: 2\r\n\r\n{}", content: "{}"},
		{name: "content type", input: "Content-Length: 2\r\nContent-Type: application/json\r\n\r\n{}", content: "{}", ctype: "application/json"},
		{name: "lenient spacing", input: "content-length:2\r\n\r\n{}", content: "{}"},
		{name: "missing length", input: "Content-Type: x\r\n\r\n{}", wantErr: ErrMissingContentLength},
		{name: "too large", input: "Content-Length: 10485761\r\n\r\n", wantErr: ErrMessageTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := readMessage(bufio.NewReader(strings.NewReader(tt.input)))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.content, string(msg.Content))
			assert.Equal(t, tt.ctype, msg.ContentType)
		})
	}
}

func TestReadMessageErrors(t *testing.T) {
	for _, input := range []string{
		"garbage\r\n\r\n{}",
		"Content-Length: abc\r\n\r\n",
		"Content-Length: 10\r\n\r\n{}",
		"Content-Length: 2\r\n",
	} {
		_, err := readMessage(bufio.NewReader(strings.NewReader(input)))
		assert.Error(t, err, "input %q", input)
	}
}

func TestReadMessageSequence(t *testing.T) {
	var buf bytes.Buffer
	for _, body := range []string{`{"seq":1}`, `{"seq":2}`} {
		require.NoError(t, writeMessage(&buf, &Message{Content: []byte(body)}))
	}

	r := bufio.NewReader(&buf)
	first, err := readMessage(r)
	require.NoError(t, err)
	second, err := readMessage(r)
	require.NoError(t, err)

	assert.Equal(t, `{"seq":1}`, string(first.Content))
	assert.Equal(t, `{"seq":2}`, string(second.Content))

	_, err = readMessage(r)
	assert.ErrorIs(t, err, io.EOF)
}

func TestStreamTransportOverTCP(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	serverDone := make(chan error, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			serverDone <- err
			return
		}
		server := NewStreamTransport(conn)
		defer server.Close()

		msg, err := server.Receive()
		if err != nil {
			serverDone <- err
			return
		}
		serverDone <- server.Send(&Message{Content: append([]byte("echo:"), msg.Content...)})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	client, err := Dial(ctx, ln.Addr().String())
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.Send(&Message{Content: []byte(`{"ping":true}`)}))
	resp, err := client.Receive()
	require.NoError(t, err)
	assert.Equal(t, `echo:{"ping":true}`, string(resp.Content))
	require.NoError(t, <-serverDone)
}

func TestDialFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	_, err = Dial(context.Background(), addr)
	assert.Error(t, err)
}

func TestStreamTransportPipe(t *testing.T) {
	a, b := net.Pipe()
	left := NewStreamTransport(a)
	right := NewStreamTransport(b)
	defer left.Close()
	defer right.Close()

	go func() { _ = left.Send(&Message{Content: []byte(`{}`)}) }()

	msg, err := right.Receive()
	require.NoError(t, err)
	assert.Equal(t, `{}`, string(msg.Content))

	require.NoError(t, left.Close())
	_, err = right.Receive()
	assert.Error(t, err)
}
