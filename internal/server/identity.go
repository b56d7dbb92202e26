package server

import "github.com/google/uuid"

// IdentityGenerator produces the opaque identity assigned to a connection at
// accept time.
type IdentityGenerator func() string

// NewIdentity returns a random UUID string.
func NewIdentity() string {
	return uuid.NewString()
}
