package internal

import (
	"sort"
	"sync"

	"github.com/samber/lo"
)

// Registry maps an identity to its single live connection. A newer
// connection for the same identity replaces the older one.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]*Conn
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]*Conn)}
}

// Register inserts or overwrites the handle for userID. The superseded
// handle, if any, is left untouched.
func (r *Registry) Register(userID string, conn *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[userID] = conn
}

// Unregister removes userID only while conn is still the registered handle,
// so a late disconnect from a replaced connection cannot erase a newer one.
func (r *Registry) Unregister(userID string, conn *Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.conns[userID]; ok && current == conn {
		delete(r.conns, userID)
		return true
	}
	return false
}

func (r *Registry) Lookup(userID string) (*Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.conns[userID]
	return conn, ok
}

// Online reports whether userID currently has a registered connection.
func (r *Registry) Online(userID string) bool {
	_, ok := r.Lookup(userID)
	return ok
}

// SnapshotIDs returns the registered ids in ascending order.
func (r *Registry) SnapshotIDs() []string {
	r.mu.RLock()
	ids := lo.Keys(r.conns)
	r.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
