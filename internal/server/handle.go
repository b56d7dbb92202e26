// Package server manages individual relay connections, serializing writes
// and tracking the open/closed state of each stream.
package server

import (
	"bufio"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// Conn is the bidirectional stream a ConnectionHandle owns. net.Conn
// satisfies it, as does the WebSocket adapter.
type Conn interface {
	io.ReadWriteCloser
	RemoteAddr() net.Addr
}

type writeDeadliner interface {
	SetWriteDeadline(t time.Time) error
}

type readDeadliner interface {
	SetReadDeadline(t time.Time) error
}

// ConnectionHandle represents one accepted client connection.
// Reads are performed only by the connection's own receive loop; writes may
// come from any goroutine and are serialized by the handle.
type ConnectionHandle struct {
	id           string
	conn         Conn
	addr         string
	scanner      *bufio.Scanner
	writeTimeout time.Duration

	writeMu   sync.Mutex
	closed    atomic.Bool
	broken    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// NewConnectionHandle wraps conn under the given identity. Lines longer than
// maxLineSize bytes, not counting the newline, end the stream with
// bufio.ErrTooLong. A writeTimeout of zero disables write deadlines.
func NewConnectionHandle(id string, conn Conn, maxLineSize int, writeTimeout time.Duration) *ConnectionHandle {
	if maxLineSize <= 0 {
		maxLineSize = defaultMaxLineSize
	}
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, min(4096, maxLineSize+1)), maxLineSize+1)

	addr := ""
	if remote := conn.RemoteAddr(); remote != nil {
		addr = remote.String()
	}

	return &ConnectionHandle{
		id:           id,
		conn:         conn,
		addr:         addr,
		scanner:      scanner,
		writeTimeout: writeTimeout,
	}
}

// ID returns the identity assigned at accept time.
func (h *ConnectionHandle) ID() string {
	return h.id
}

// RemoteAddr returns the peer address as a string.
func (h *ConnectionHandle) RemoteAddr() string {
	return h.addr
}

// Closed reports whether Close has been called.
func (h *ConnectionHandle) Closed() bool {
	return h.closed.Load()
}

// Broken reports whether a write has failed. A broken handle accepts no
// further writes and its ReadLine fails.
func (h *ConnectionHandle) Broken() bool {
	return h.broken.Load()
}

// ReadLine blocks until a full line is available and returns it without the
// line terminator. It returns io.EOF at end of stream.
func (h *ConnectionHandle) ReadLine() (string, error) {
	if h.scanner.Scan() {
		return h.scanner.Text(), nil
	}
	if err := h.scanner.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}

// WriteLine writes line followed by a newline as a single write. Concurrent
// callers never interleave on the wire. Writing to a closed handle returns
// ErrStreamClosed. After a failed write the peer may hold a partial line,
// so the handle is marked broken: later writes return ErrStreamClosed and
// the owning receive loop is woken so it can deregister.
func (h *ConnectionHandle) WriteLine(line string) error {
	h.writeMu.Lock()
	defer h.writeMu.Unlock()

	if h.closed.Load() || h.broken.Load() {
		return ErrStreamClosed
	}

	if h.writeTimeout > 0 {
		if d, ok := h.conn.(writeDeadliner); ok {
			if err := d.SetWriteDeadline(time.Now().Add(h.writeTimeout)); err != nil {
				return err
			}
		}
	}

	if _, err := io.WriteString(h.conn, line+"\n"); err != nil {
		h.markBroken()
		return err
	}
	return nil
}

// markBroken expires the read deadline so a blocked ReadLine returns. Streams
// without read deadlines are closed instead.
func (h *ConnectionHandle) markBroken() {
	h.broken.Store(true)
	if d, ok := h.conn.(readDeadliner); ok {
		if err := d.SetReadDeadline(time.Now()); err == nil {
			return
		}
	}
	_ = h.Close()
}

// Close releases the underlying stream. Only the first call closes; later
// calls return the first result.
func (h *ConnectionHandle) Close() error {
	h.closeOnce.Do(func() {
		h.closed.Store(true)
		h.closeErr = h.conn.Close()
	})
	return h.closeErr
}
