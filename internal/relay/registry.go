// Package relay implements the presence-aware message relay: a registry of
// live connections keyed by presence name, the WebSocket protocol handler
// and the delivery engine that persists and pushes chat messages.
package relay

import "sync"

// Conn is a live, push-capable connection as seen by the registry and the
// delivery engine.
type Conn interface {
	// ID identifies the connection in logs.
	ID() string
	// Send enqueues payload for delivery without blocking.
	Send(payload []byte) error
	// Writable reports whether the connection still accepts payloads.
	Writable() bool
	// Close tears the connection down.
	Close() error
}

// Registry maps presence names to live connections. The zero value is not
// usable; call NewRegistry.
//
// Register, Lookup and Unregister are linearizable. Registering a name that
// is already bound replaces the previous connection without notifying it.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]Conn
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]Conn)}
}

// Register binds name to c, replacing any previous binding. Any string is
// accepted, including the empty string.
func (r *Registry) Register(name string, c Conn) {
	r.mu.Lock()
	r.conns[name] = c
	n := len(r.conns)
	r.mu.Unlock()
	registryEntries.Set(float64(n))
}

// Lookup returns the connection bound to name.
func (r *Registry) Lookup(name string) (Conn, bool) {
	r.mu.RLock()
	c, ok := r.conns[name]
	r.mu.RUnlock()
	return c, ok
}

// Unregister removes every binding whose connection is c. A connection that
// re-established under several names is bound once per name; all of those
// bindings go. Unknown connections are a no-op.
func (r *Registry) Unregister(c Conn) {
	r.mu.Lock()
	for name, cur := range r.conns {
		if cur == c {
			delete(r.conns, name)
		}
	}
	n := len(r.conns)
	r.mu.Unlock()
	registryEntries.Set(float64(n))
}

// Len returns the number of bound names.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// CloseAll closes every registered connection. Connections unregister
// themselves as they close, so the lock is not held while closing.
func (r *Registry) CloseAll() {
	r.mu.RLock()
	seen := make(map[Conn]struct{}, len(r.conns))
	for _, c := range r.conns {
		seen[c] = struct{}{}
	}
	r.mu.RUnlock()

	for c := range seen {
		_ = c.Close()
	}
}
