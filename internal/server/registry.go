package server

import "sync"

// registeredSession is the subset of dispatch.Session the registry reports
// on. Defined narrowly so registry.go does not need to import dispatch.
type registeredSession interface {
	ID() uint64
	RequestsServed() uint64
	ErrorsTotal() uint64
}

// SessionInfo is a point-in-time snapshot of one live session, safe to read
// after the session itself has moved on.
type SessionInfo struct {
	ID             uint64
	RequestsServed uint64
	ErrorsTotal    uint64
}

// SessionRegistry tracks currently connected sessions for administrative
// reporting only: it is never consulted by the wire protocol and nothing in
// it is persisted across restarts.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[uint64]registeredSession
}

// NewSessionRegistry constructs an empty registry.
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{sessions: make(map[uint64]registeredSession)}
}

func (r *SessionRegistry) add(s registeredSession) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID()] = s
}

func (r *SessionRegistry) remove(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// Count returns the number of currently connected sessions.
func (r *SessionRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Snapshot returns a point-in-time list of every connected session, ordered
// by no particular key.
func (r *SessionRegistry) Snapshot() []SessionInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]SessionInfo, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, SessionInfo{
			ID:             s.ID(),
			RequestsServed: s.RequestsServed(),
			ErrorsTotal:    s.ErrorsTotal(),
		})
	}
	return out
}
