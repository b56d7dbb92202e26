// Package server defines shared helpers that are reused across the handle,
// router, and gateway logic.
package server

import (
	"errors"
	"io"
	"net"
	"strings"
)

// formatLine builds the line delivered to other clients: "<id>: <text>".
func formatLine(id, text string) string {
	return id + ": " + text
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil || errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe") ||
		strings.Contains(errStr, "connection reset by peer")
}
