// Package registry tracks the live sessions of the process, keyed by
// identity.
package registry

import (
	"sort"
	"sync"
	"time"

	"github.com/botmesh/botmesh/internal/transport"
)

// Session is one open, registered connection.
type Session struct {
	Identity  string
	Conn      transport.Conn
	StartedAt time.Time
}

// Uptime returns how long the session has been open.
func (s *Session) Uptime() time.Duration {
	return time.Since(s.StartedAt)
}

// Registry is the process-wide table of live sessions. At most one session
// per identity exists at any time; TryRegister enforces it.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// TryRegister inserts the session only if the identity is absent. Returns
// false when an entry already exists; the caller must then abort its
// connection attempt rather than replace the live session.
func (r *Registry) TryRegister(identity string, session *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sessions[identity]; exists {
		return false
	}
	r.sessions[identity] = session
	return true
}

// Unregister removes the identity's session, if any.
func (r *Registry) Unregister(identity string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, identity)
}

// UnregisterIf removes the identity's session only when it is held by the
// given connection, and reports whether it did. A closing connection must
// use this form: it may never evict a session owned by another connection.
func (r *Registry) UnregisterIf(identity string, conn transport.Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[identity]
	if !ok || session.Conn != conn {
		return false
	}
	delete(r.sessions, identity)
	return true
}

// Get returns the session for the identity.
func (r *Registry) Get(identity string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	session, ok := r.sessions[identity]
	return session, ok
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Identities returns a sorted snapshot of the registered identities.
func (r *Registry) Identities() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	identities := make([]string, 0, len(r.sessions))
	for identity := range r.sessions {
		identities = append(identities, identity)
	}
	sort.Strings(identities)
	return identities
}

// CloseAll closes every live connection, best effort. Used on shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	for _, s := range sessions {
		_ = s.Conn.Close()
	}
}
