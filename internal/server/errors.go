package server

import "errors"

var (
	// ErrListenerFailure is returned by Serve when the listener can no longer
	// accept connections. It is fatal for that listener.
	ErrListenerFailure = errors.New("server: listener failure")

	// ErrAcceptFailure wraps a single failed accept attempt. The accept loop
	// reports it and keeps going.
	ErrAcceptFailure = errors.New("server: accept failure")

	// ErrDuplicateIdentity is returned by Registry.Add when the identity is
	// already registered.
	ErrDuplicateIdentity = errors.New("server: duplicate identity")

	// ErrInvalidIdentity is returned when the identity generator yields an
	// empty identity.
	ErrInvalidIdentity = errors.New("server: invalid identity")

	// ErrStreamClosed is returned when writing to a closed ConnectionHandle.
	ErrStreamClosed = errors.New("server: stream closed")

	// ErrServerClosed is returned by Serve and HandleConn once Shutdown has
	// been called.
	ErrServerClosed = errors.New("server: closed")
)
