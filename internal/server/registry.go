// Package server tracks live connections in a Registry keyed by identity.
package server

import (
	"fmt"
	"sync"
)

// Registry is a concurrent mapping from identity to ConnectionHandle.
// All methods are safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	handles map[string]*ConnectionHandle
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		handles: make(map[string]*ConnectionHandle),
	}
}

// Add registers handle under id. It fails with ErrDuplicateIdentity if id is
// already present.
func (r *Registry) Add(id string, handle *ConnectionHandle) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handles[id]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateIdentity, id)
	}
	r.handles[id] = handle
	return nil
}

// Remove deletes id from the registry and reports whether it was present.
// Removing an absent id is a no-op.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handles[id]; !exists {
		return false
	}
	delete(r.handles, id)
	return true
}

// Get returns the handle registered under id.
func (r *Registry) Get(id string) (*ConnectionHandle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	handle, ok := r.handles[id]
	return handle, ok
}

// Len returns the number of registered handles.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handles)
}

// Snapshot returns a point-in-time copy of all registered handles in no
// particular order. The returned slice is owned by the caller.
func (r *Registry) Snapshot() []*ConnectionHandle {
	r.mu.RLock()
	defer r.mu.RUnlock()

	handles := make([]*ConnectionHandle, 0, len(r.handles))
	for _, handle := range r.handles {
		handles = append(handles, handle)
	}
	return handles
}
