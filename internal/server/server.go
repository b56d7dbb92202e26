// Package server implements the relay's accept loop and the per-connection
// receive loop that feeds lines into the Router.
package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/jpillora/backoff"
)

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger used by the server and its router.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithIdentityGenerator replaces the UUID identity generator.
func WithIdentityGenerator(generate IdentityGenerator) Option {
	return func(s *Server) {
		if generate != nil {
			s.newID = generate
		}
	}
}

// Server accepts stream connections, registers them, and relays every line
// a client sends to all other connected clients.
type Server struct {
	cfg      Config
	registry *Registry
	router   *Router
	newID    IdentityGenerator
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	closing   bool
	listeners map[net.Listener]struct{}
	wg        sync.WaitGroup
}

// NewServer creates a Server. A nil cfg uses the defaults.
func NewServer(cfg *Config, options ...Option) *Server {
	if cfg == nil {
		cfg = NewConfig()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:       cfg.Sanitize(),
		registry:  NewRegistry(),
		newID:     NewIdentity,
		logger:    slog.Default(),
		ctx:       ctx,
		cancel:    cancel,
		listeners: make(map[net.Listener]struct{}),
	}
	for _, option := range options {
		if option != nil {
			option(s)
		}
	}
	s.router = NewRouter(s.registry, s.logger)
	return s
}

// Registry returns the server's connection registry.
func (s *Server) Registry() *Registry {
	return s.registry
}

// Router returns the server's broadcast router.
func (s *Server) Router() *Router {
	return s.router
}

// Config returns the sanitized configuration the server runs with.
func (s *Server) Config() Config {
	return s.cfg
}

// ListenAndServe listens on the configured TCP address and calls Serve.
func (s *Server) ListenAndServe() error {
	listener, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return fmt.Errorf("%w: %w", ErrListenerFailure, err)
	}
	return s.Serve(listener)
}

// Serve runs the accept loop on listener until the listener fails or the
// server shuts down. Individual accept failures are logged and retried with
// a growing delay. Serve always returns a non-nil error: ErrServerClosed
// after Shutdown, otherwise an error wrapping ErrListenerFailure.
func (s *Server) Serve(listener net.Listener) error {
	if !s.trackListener(listener) {
		_ = listener.Close()
		return ErrServerClosed
	}
	defer s.untrackListener(listener)

	addr := listener.Addr().String()
	s.logger.Info("relay listening", "addr", addr)

	retry := &backoff.Backoff{
		Min:    5 * time.Millisecond,
		Max:    time.Second,
		Factor: 2,
	}

	for {
		conn, err := listener.Accept()
		if err != nil {
			if s.shuttingDown() {
				return ErrServerClosed
			}
			if errors.Is(err, net.ErrClosed) {
				s.logger.Error("listener failed", "addr", addr, "error", err)
				return fmt.Errorf("%w: %w", ErrListenerFailure, err)
			}

			delay := retry.Duration()
			s.logger.Error("accept failed",
				"addr", addr,
				"error", fmt.Errorf("%w: %w", ErrAcceptFailure, err),
				"retry_in", delay)
			select {
			case <-time.After(delay):
			case <-s.ctx.Done():
				return ErrServerClosed
			}
			continue
		}
		retry.Reset()

		if !s.startConn() {
			_ = conn.Close()
			return ErrServerClosed
		}
		go func() {
			defer s.wg.Done()
			_ = s.serveConn(conn)
		}()
	}
}

// HandleConn runs the full lifecycle of one connection in the calling
// goroutine: register, receive until the stream ends, deregister, close.
// It returns ErrServerClosed if the server is shutting down and the
// registration error if the identity is rejected.
func (s *Server) HandleConn(conn Conn) error {
	if !s.startConn() {
		_ = conn.Close()
		return ErrServerClosed
	}
	defer s.wg.Done()
	return s.serveConn(conn)
}

func (s *Server) serveConn(conn Conn) error {
	id := s.newID()
	handle := NewConnectionHandle(id, conn, s.cfg.MaxLineSize, s.cfg.WriteTimeout)

	if err := s.register(handle); err != nil {
		s.logger.Error("rejecting connection",
			"client", id,
			"addr", handle.RemoteAddr(),
			"error", err)
		if cerr := handle.Close(); cerr != nil && !isExpectedCloseError(cerr) {
			s.logger.Warn("closing rejected connection", "addr", handle.RemoteAddr(), "error", cerr)
		}
		return err
	}
	defer s.release(handle)

	s.logger.Info("client added",
		"client", id,
		"addr", handle.RemoteAddr(),
		"clients", s.registry.Len())

	// Shutdown may have taken its snapshot before this handle was added.
	if s.shuttingDown() {
		return ErrServerClosed
	}

	s.receive(handle)
	return nil
}

func (s *Server) register(handle *ConnectionHandle) error {
	if handle.ID() == "" {
		return ErrInvalidIdentity
	}
	return s.registry.Add(handle.ID(), handle)
}

// receive reads lines until end of stream or a read error.
func (s *Server) receive(handle *ConnectionHandle) {
	id := handle.ID()
	limiter := newRateLimiter(s.cfg.RateLimit)

	for {
		line, err := handle.ReadLine()
		if err != nil {
			s.logReadEnd(handle, err)
			return
		}

		if !limiter.allow() {
			s.logger.Warn("rate limit exceeded; dropping line",
				"client", id,
				"burst", s.cfg.RateLimit.Burst,
				"interval", s.cfg.RateLimit.RefillInterval)
			continue
		}

		s.logger.Debug("line received", "client", id, "line", line)
		s.router.Broadcast(id, formatLine(id, line))
	}
}

func (s *Server) logReadEnd(handle *ConnectionHandle, err error) {
	switch {
	case errors.Is(err, bufio.ErrTooLong):
		s.logger.Warn("line exceeded maximum size",
			"client", handle.ID(),
			"max_line_size", s.cfg.MaxLineSize)
	case handle.Broken():
		s.logger.Info("dropping client after failed write", "client", handle.ID(), "addr", handle.RemoteAddr())
	case errors.Is(err, io.EOF), isExpectedCloseError(err), handle.Closed():
		s.logger.Debug("client disconnected", "client", handle.ID(), "addr", handle.RemoteAddr())
	default:
		s.logger.Debug("read failed", "client", handle.ID(), "error", err)
	}
}

// release deregisters and closes handle. Failures are logged only.
func (s *Server) release(handle *ConnectionHandle) {
	removed := s.registry.Remove(handle.ID())
	if err := handle.Close(); err != nil && !isExpectedCloseError(err) {
		s.logger.Warn("closing connection", "client", handle.ID(), "error", err)
	}
	if removed {
		s.logger.Info("client removed",
			"client", handle.ID(),
			"addr", handle.RemoteAddr(),
			"clients", s.registry.Len())
	}
}

func (s *Server) startConn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.wg.Add(1)
	return true
}

func (s *Server) trackListener(listener net.Listener) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.listeners[listener] = struct{}{}
	return true
}

func (s *Server) untrackListener(listener net.Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.listeners, listener)
}

func (s *Server) shuttingDown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closing
}

// Shutdown stops all accept loops, closes every registered connection, and
// waits up to timeout for their receive loops to finish. It returns
// context.DeadlineExceeded if the timeout is reached first.
func (s *Server) Shutdown(timeout time.Duration) error {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return nil
	}
	s.closing = true
	listeners := make([]net.Listener, 0, len(s.listeners))
	for listener := range s.listeners {
		listeners = append(listeners, listener)
	}
	s.mu.Unlock()

	s.cancel()
	s.logger.Info("shutting down relay",
		"listeners", len(listeners),
		"clients", s.registry.Len())

	for _, listener := range listeners {
		if err := listener.Close(); err != nil && !isExpectedCloseError(err) {
			s.logger.Warn("closing listener", "addr", listener.Addr().String(), "error", err)
		}
	}

	handles := s.registry.Snapshot()
	for _, handle := range handles {
		if err := handle.Close(); err != nil && !isExpectedCloseError(err) {
			s.logger.Warn("closing connection", "client", handle.ID(), "error", err)
		}
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("relay shutdown completed", "closed", len(handles))
		return nil
	case <-time.After(timeout):
		s.logger.Warn("relay shutdown timeout reached, some connections may still be open")
		return context.DeadlineExceeded
	}
}
