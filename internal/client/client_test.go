package client

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRelay accepts one connection and runs script against it.
func fakeRelay(t *testing.T, script func(conn net.Conn)) string {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = listener.Close() })

	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		script(conn)
	}()

	return listener.Addr().String()
}

func TestRunRelaysBothDirections(t *testing.T) {
	got := make(chan []string, 1)
	addr := fakeRelay(t, func(conn net.Conn) {
		fmt.Fprintf(conn, "peer: hello\n")
		var lines []string
		scanner := bufio.NewScanner(conn)
		for scanner.Scan() {
			lines = append(lines, scanner.Text())
		}
		fmt.Fprintf(conn, "peer: bye\n")
		got <- lines
	})

	var stdout bytes.Buffer
	err := Run(context.Background(), addr, bytes.NewBufferString("first\n\nsecond\n"), &stdout)
	require.NoError(t, err)

	select {
	case lines := <-got:
		assert.Equal(t, []string{"first", "", "second"}, lines)
	case <-time.After(2 * time.Second):
		t.Fatal("relay never saw end of input")
	}

	assert.Contains(t, stdout.String(), "Connected to the chat server at "+addr)
	assert.Contains(t, stdout.String(), "Received: peer: hello\n")
	assert.Contains(t, stdout.String(), "Received: peer: bye\n")
}

func TestRunReturnsWhenServerCloses(t *testing.T) {
	addr := fakeRelay(t, func(conn net.Conn) {
		fmt.Fprintf(conn, "peer: going away\n")
	})

	stdin, stdinWriter := io.Pipe()
	t.Cleanup(func() { _ = stdinWriter.Close() })

	var stdout bytes.Buffer
	done := make(chan error, 1)
	go func() {
		done <- Run(context.Background(), addr, stdin, &stdout)
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after the server closed")
	}
	assert.Contains(t, stdout.String(), "Received: peer: going away\n")
}

func TestRunHonorsContext(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	addr := fakeRelay(t, func(net.Conn) { <-release })

	stdin, stdinWriter := io.Pipe()
	t.Cleanup(func() { _ = stdinWriter.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, addr, stdin, io.Discard)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRunReportsDialFailure(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := listener.Addr().String()
	require.NoError(t, listener.Close())

	err = Run(context.Background(), addr, bytes.NewBufferString(""), io.Discard)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connecting to "+addr)
}
