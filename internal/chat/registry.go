// Package chat implements the realtime core: the connection registry, the
// authenticated websocket gate, the delivery engine, and presence fan-out.
package chat

import (
	"context"
	"sync"
	"time"
)

// Registry is the single source of truth for presence: an in-memory mapping
// from user ID to that user's live connections. All mutation is synchronized;
// reads return snapshots so callers never hold the lock across I/O.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]map[*Conn]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]map[*Conn]struct{})}
}

// Register adds a connection under a user ID. Returns true when this is the
// user's first live connection (an offline -> online transition).
func (r *Registry) Register(userID string, c *Conn) (first bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.conns[userID]
	if !ok {
		set = make(map[*Conn]struct{})
		r.conns[userID] = set
	}
	first = len(set) == 0
	set[c] = struct{}{}
	return first
}

// Unregister removes a connection. Removing a connection that is not present
// is a no-op, not an error: duplicate close signals are expected under
// concurrent shutdown paths. Returns whether this was the user's last
// connection (an online -> offline transition) and whether anything was
// actually removed.
func (r *Registry) Unregister(userID string, c *Conn) (last, removed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.conns[userID]
	if !ok {
		return false, false
	}
	if _, ok := set[c]; !ok {
		return false, false
	}
	delete(set, c)
	if len(set) == 0 {
		delete(r.conns, userID)
		return true, true
	}
	return false, true
}

// Lookup returns a snapshot of the user's live connections, safe to iterate
// and push to without holding the registry's lock.
func (r *Registry) Lookup(userID string) []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.conns[userID]
	if len(set) == 0 {
		return nil
	}
	snapshot := make([]*Conn, 0, len(set))
	for c := range set {
		snapshot = append(snapshot, c)
	}
	return snapshot
}

// IsOnline reports whether the user has at least one live connection.
func (r *Registry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns[userID]) > 0
}

// OnlineCount returns the number of users with at least one live connection.
func (r *Registry) OnlineCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// ConnectionCount returns the total number of live connections.
func (r *Registry) ConnectionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	total := 0
	for _, set := range r.conns {
		total += len(set)
	}
	return total
}

// Drain closes every live connection and waits until each owner's teardown
// has unregistered it, so last-seen stamps and offline events are written
// before the process exits. Returns the context's error if teardowns do not
// finish in time.
func (r *Registry) Drain(ctx context.Context) error {
	r.mu.RLock()
	conns := make([]*Conn, 0)
	for _, set := range r.conns {
		for c := range set {
			conns = append(conns, c)
		}
	}
	r.mu.RUnlock()

	// Closing the transport ends each read loop, which runs the normal
	// teardown path outside the registry lock.
	for _, c := range conns {
		c.close()
	}

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		if r.ConnectionCount() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
