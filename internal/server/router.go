// Package server fans broadcast lines out to every registered connection
// except the sender.
package server

import (
	"log/slog"
)

// Router delivers one sender's line to all other registered connections.
type Router struct {
	registry *Registry
	logger   *slog.Logger
}

// NewRouter creates a Router over registry. A nil logger uses slog.Default().
func NewRouter(registry *Registry, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		registry: registry,
		logger:   logger,
	}
}

// Broadcast writes message to every registered handle whose identity differs
// from senderID, in the calling goroutine. A failed write is logged and
// skipped; the failing recipient is left for its own receive loop to clean
// up. Broadcast returns the number of successful deliveries.
func (r *Router) Broadcast(senderID, message string) int {
	handles := r.registry.Snapshot()

	delivered := 0
	for _, handle := range handles {
		if handle.ID() == senderID {
			continue
		}
		if err := handle.WriteLine(message); err != nil {
			r.logWriteFailure(handle, err)
			continue
		}
		delivered++
	}

	r.logger.Debug("broadcast delivered",
		"sender", senderID,
		"recipients", delivered,
		"registered", len(handles))
	return delivered
}

func (r *Router) logWriteFailure(handle *ConnectionHandle, err error) {
	if isExpectedCloseError(err) || handle.Closed() {
		r.logger.Debug("skipping closed recipient", "client", handle.ID(), "error", err)
		return
	}
	r.logger.Warn("write to recipient failed",
		"client", handle.ID(),
		"addr", handle.RemoteAddr(),
		"error", err)
}
