package server

import (
	"bufio"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestHandleReadLine tests line splitting, CRLF handling, and end of stream.
func TestHandleReadLine(t *testing.T) {
	handle, peer := pipeHandle(t, "reader")

	go func() {
		_, _ = io.WriteString(peer, "first\r\nsecond\n\nlast")
		_ = peer.Close()
	}()

	for _, want := range []string{"first", "second", "", "last"} {
		line, err := handle.ReadLine()
		require.NoError(t, err)
		assert.Equal(t, want, line)
	}

	_, err := handle.ReadLine()
	assert.ErrorIs(t, err, io.EOF)
}

// TestHandleReadLineTooLong tests that a line over the limit is an error.
func TestHandleReadLineTooLong(t *testing.T) {
	peer, conn := net.Pipe()
	defer peer.Close()
	handle := NewConnectionHandle("long", conn, 8, 0)
	defer handle.Close()

	go func() { _, _ = io.WriteString(peer, "0123456789abcdef\n") }()

	_, err := handle.ReadLine()
	assert.ErrorIs(t, err, bufio.ErrTooLong)
}

// TestHandleReadLineAtLimit tests that the limit counts line bytes only.
func TestHandleReadLineAtLimit(t *testing.T) {
	peer, conn := net.Pipe()
	defer peer.Close()
	handle := NewConnectionHandle("exact", conn, 8, 0)
	defer handle.Close()

	go func() { _, _ = io.WriteString(peer, "01234567\n012345678\n") }()

	line, err := handle.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, "01234567", line)

	_, err = handle.ReadLine()
	assert.ErrorIs(t, err, bufio.ErrTooLong)
}

// TestHandleWriteLine tests that WriteLine appends the line delimiter.
func TestHandleWriteLine(t *testing.T) {
	handle, peer := pipeHandle(t, "writer")

	go func() { _ = handle.WriteLine("hello") }()

	line, err := bufio.NewReader(peer).ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "hello\n", line)
}

// TestHandleWriteAfterClose tests that writes after Close fail cleanly.
func TestHandleWriteAfterClose(t *testing.T) {
	handle, _ := pipeHandle(t, "closed")

	require.NoError(t, handle.Close())
	assert.True(t, handle.Closed())
	assert.ErrorIs(t, handle.WriteLine("late"), ErrStreamClosed)
	assert.NoError(t, handle.Close(), "second Close returns the first result")
}

// TestHandleConcurrentWritesDoNotInterleave tests write serialization.
func TestHandleConcurrentWritesDoNotInterleave(t *testing.T) {
	const writers = 10
	const perWriter = 20

	handle, peer := pipeHandle(t, "shared")
	lines := make([]string, writers)
	for i := range lines {
		lines[i] = strings.Repeat(string(rune('a'+i)), 512)
	}

	var wg sync.WaitGroup
	for _, line := range lines {
		wg.Add(1)
		go func(line string) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				if err := handle.WriteLine(line); err != nil {
					t.Errorf("WriteLine: %v", err)
					return
				}
			}
		}(line)
	}

	reader := bufio.NewReader(peer)
	for i := 0; i < writers*perWriter; i++ {
		got, err := reader.ReadString('\n')
		require.NoError(t, err)
		got = strings.TrimSuffix(got, "\n")
		require.Len(t, got, 512)
		assert.Equal(t, strings.Repeat(got[:1], 512), got, "line %d interleaved", i)
	}
	wg.Wait()
}

// TestHandleWriteTimeout tests that a stalled peer fails the write instead
// of blocking forever.
func TestHandleWriteTimeout(t *testing.T) {
	peer, conn := net.Pipe()
	defer peer.Close()
	handle := NewConnectionHandle("slow", conn, 0, 20*time.Millisecond)
	defer handle.Close()

	err := handle.WriteLine("nobody is reading")
	var netErr net.Error
	require.True(t, errors.As(err, &netErr), "expected net.Error, got %v", err)
	assert.True(t, netErr.Timeout())
}

// TestHandleCloseUnblocksReader tests that closing from another goroutine
// ends a blocked ReadLine.
func TestHandleCloseUnblocksReader(t *testing.T) {
	handle, _ := pipeHandle(t, "blocked")

	done := make(chan error, 1)
	go func() {
		_, err := handle.ReadLine()
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, handle.Close())

	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("ReadLine did not return after Close")
	}
}

// TestHandleFailedWriteBreaksHandle tests that a write cut short by the
// deadline stops all later writes and wakes the reader.
func TestHandleFailedWriteBreaksHandle(t *testing.T) {
	peer, conn := net.Pipe()
	defer peer.Close()
	handle := NewConnectionHandle("stalled", conn, 0, 50*time.Millisecond)
	defer handle.Close()

	fragment := make(chan string, 1)
	go func() {
		buf := make([]byte, 3)
		n, _ := io.ReadFull(peer, buf)
		fragment <- string(buf[:n])
	}()

	require.Error(t, handle.WriteLine("client-1: first"))
	assert.Equal(t, "cli", <-fragment)
	assert.True(t, handle.Broken())

	assert.ErrorIs(t, handle.WriteLine("client-2: second"), ErrStreamClosed)

	require.NoError(t, peer.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	_, err := peer.Read(make([]byte, 64))
	var netErr net.Error
	require.True(t, errors.As(err, &netErr), "expected read timeout, got %v", err)
	assert.True(t, netErr.Timeout(), "nothing may follow the partial line")

	done := make(chan error, 1)
	go func() {
		_, err := handle.ReadLine()
		done <- err
	}()
	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("ReadLine did not return after a failed write")
	}
}
