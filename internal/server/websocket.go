// Package server adapts WebSocket connections to the line stream the relay
// reads and writes, so browser clients share the registry with TCP clients.
package server

import (
	"bytes"
	"io"
	"net"
	"time"

	"github.com/gorilla/websocket"
)

const closeGracePeriod = time.Second

// wsConn presents a WebSocket as a newline-delimited byte stream. Each
// inbound message is terminated with a newline unless it already ends with
// one, so an empty message reads as an empty line. Each Write is sent as one
// text message without its trailing newline.
type wsConn struct {
	conn      *websocket.Conn
	current   io.Reader
	lastByte  byte
	terminate bool
}

func newWSConn(conn *websocket.Conn, maxMessageSize int64) *wsConn {
	if maxMessageSize > 0 {
		conn.SetReadLimit(maxMessageSize)
	}
	return &wsConn{conn: conn}
}

func (c *wsConn) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	for {
		if c.current == nil {
			if c.terminate {
				c.terminate = false
				if c.lastByte != '\n' {
					c.lastByte = '\n'
					p[0] = '\n'
					return 1, nil
				}
			}

			messageType, reader, err := c.conn.NextReader()
			if err != nil {
				return 0, err
			}
			if messageType != websocket.TextMessage && messageType != websocket.BinaryMessage {
				continue
			}
			c.current = reader
			c.lastByte = 0
		}

		n, err := c.current.Read(p)
		if n > 0 {
			c.lastByte = p[n-1]
		}
		if err == io.EOF {
			c.current = nil
			c.terminate = true
			err = nil
		}
		if n > 0 || err != nil {
			return n, err
		}
	}
}

func (c *wsConn) Write(p []byte) (int, error) {
	payload := bytes.TrimSuffix(p, []byte{'\n'})
	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (c *wsConn) SetWriteDeadline(t time.Time) error {
	return c.conn.SetWriteDeadline(t)
}

func (c *wsConn) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

// Close sends a close frame on a best-effort basis and releases the socket.
func (c *wsConn) Close() error {
	message := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.conn.WriteControl(websocket.CloseMessage, message, time.Now().Add(closeGracePeriod))
	return c.conn.Close()
}

func (c *wsConn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}
