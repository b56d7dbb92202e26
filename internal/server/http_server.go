// Package server constructs and stops the gateway's HTTP service.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// CreateServer creates an HTTP server for the gateway. Only the header read
// is bounded: upgraded WebSocket connections outlive any request timeout.
func CreateServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// ShutdownServer stops the HTTP server, waiting up to timeout for in-flight
// requests. Hijacked WebSocket connections are closed by Server.Shutdown,
// not here.
func ShutdownServer(server *http.Server, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
