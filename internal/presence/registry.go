// Package presence tracks which identities currently hold an open
// connection to the relay.
package presence

import (
	"sort"
	"sync"
)

type entry[C any] struct {
	identity string
	conn     C
}

// Registry is the bidirectional mapping between identities and active
// connections. A connection id appears at most once; an identity resolves
// to the connection registered for it most recently.
//
// All methods are safe for concurrent use.
type Registry[C any] struct {
	mu         sync.RWMutex
	byConn     map[string]entry[C]
	byIdentity map[string]string
}

// New returns an empty Registry.
func New[C any]() *Registry[C] {
	return &Registry[C]{
		byConn:     make(map[string]entry[C]),
		byIdentity: make(map[string]string),
	}
}

// Register inserts or replaces the entry for connID and points identity
// at it, overwriting any earlier connection registered for identity.
func (r *Registry[C]) Register(connID, identity string, conn C) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.byConn[connID]; ok && prev.identity != identity {
		if r.byIdentity[prev.identity] == connID {
			delete(r.byIdentity, prev.identity)
		}
	}

	r.byConn[connID] = entry[C]{identity: identity, conn: conn}
	r.byIdentity[identity] = connID
}

// Remove deletes the entry for connID and reports the identity it held.
// The identity lookup is cleared only if it still points at connID, so a
// stale disconnect never evicts a newer connection for the same identity.
// Removing an unknown connID is a no-op that returns false.
func (r *Registry[C]) Remove(connID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.byConn[connID]
	if !ok {
		return "", false
	}
	delete(r.byConn, connID)

	if r.byIdentity[e.identity] == connID {
		delete(r.byIdentity, e.identity)
	}
	return e.identity, true
}

// Lookup returns the current connection for identity.
func (r *Registry[C]) Lookup(identity string) (C, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var zero C
	connID, ok := r.byIdentity[identity]
	if !ok {
		return zero, false
	}
	e, ok := r.byConn[connID]
	if !ok {
		return zero, false
	}
	return e.conn, true
}

// Identity returns the identity registered for connID.
func (r *Registry[C]) Identity(connID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.byConn[connID]
	return e.identity, ok
}

// Identities returns the distinct identities with at least one registered
// connection, sorted.
func (r *Registry[C]) Identities() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{}, len(r.byConn))
	identities := make([]string, 0, len(r.byConn))
	for _, e := range r.byConn {
		if _, ok := seen[e.identity]; ok {
			continue
		}
		seen[e.identity] = struct{}{}
		identities = append(identities, e.identity)
	}
	sort.Strings(identities)
	return identities
}

// Conns returns a snapshot of every registered connection.
func (r *Registry[C]) Conns() []C {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]C, 0, len(r.byConn))
	for _, e := range r.byConn {
		conns = append(conns, e.conn)
	}
	return conns
}

// Len returns the number of registered connections.
func (r *Registry[C]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byConn)
}
