// Package presence tracks which identities currently hold live connections.
package presence

import (
	"sync"
)

// Conn is the minimal view the registry needs of a live connection: a stable
// id and a non-blocking send that reports whether the frame was queued.
type Conn interface {
	ID() string
	Send(frame []byte) bool
}

// Registry maps identities to one or more live connections so a frame can be
// pushed to every endpoint a user has open.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]map[string]Conn
	// owner is the reverse index conn id -> identity used by Unregister
	owner map[string]string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[string]map[string]Conn),
		owner: make(map[string]string),
	}
}

// Register adds c to the identity's connection set. Registering the same
// connection again moves it to the new identity.
func (r *Registry) Register(identity string, c Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.owner[c.ID()]; ok {
		r.removeLocked(prev, c.ID())
	}

	set, ok := r.conns[identity]
	if !ok {
		set = make(map[string]Conn)
		r.conns[identity] = set
	}
	set[c.ID()] = c
	r.owner[c.ID()] = identity
}

// Unregister removes c. It reports false when c was not registered.
func (r *Registry) Unregister(c Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	identity, ok := r.owner[c.ID()]
	if !ok {
		return false
	}
	r.removeLocked(identity, c.ID())
	return true
}

func (r *Registry) removeLocked(identity, id string) {
	delete(r.owner, id)
	if set, ok := r.conns[identity]; ok {
		delete(set, id)
		if len(set) == 0 {
			delete(r.conns, identity)
		}
	}
}

// ConnectionsFor returns a snapshot of the identity's connections.
func (r *Registry) ConnectionsFor(identity string) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.conns[identity]
	out := make([]Conn, 0, len(set))
	for _, c := range set {
		out = append(out, c)
	}
	return out
}

// Online reports whether identity has at least one live connection.
func (r *Registry) Online(identity string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns[identity]) > 0
}

// Count returns the number of live connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.owner)
}

// SendToUser offers frame to every connection of identity and returns how
// many accepted it and how many refused. Connections that refuse are
// unregistered; sends happen outside the registry lock.
func (r *Registry) SendToUser(identity string, frame []byte) (sent, failed int) {
	for _, c := range r.ConnectionsFor(identity) {
		if c.Send(frame) {
			sent++
			continue
		}
		failed++
		r.Unregister(c)
	}
	return sent, failed
}
