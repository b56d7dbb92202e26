// Package server implements a line relay: every newline-terminated line a
// client sends is rebroadcast, prefixed with the sender's identity, to every
// other connected client.
//
// The implementation is organized into specialized files for configuration,
// connection handles, the registry, the broadcast router, the accept loop,
// and the optional WebSocket gateway that lets browser clients join the
// same relay.
package server
