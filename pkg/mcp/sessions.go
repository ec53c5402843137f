package mcp

import (
	"sort"
	"sync"
)

// SessionRegistry maps project IDs to the MCP sessions watching them.
// Populated by mabel.watch.
type SessionRegistry struct {
	mu       sync.RWMutex
	watchers map[string]map[string]struct{} // projectID → sessionIDs
}

// NewSessionRegistry creates a new empty SessionRegistry.
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{watchers: make(map[string]map[string]struct{})}
}

// Watch subscribes a session to a project. Watching twice is a no-op.
func (r *SessionRegistry) Watch(projectID, sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.watchers[projectID]
	if !ok {
		set = make(map[string]struct{})
		r.watchers[projectID] = set
	}
	set[sessionID] = struct{}{}
}

// Unwatch drops one session's subscription to a project.
func (r *SessionRegistry) Unwatch(projectID, sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if set, ok := r.watchers[projectID]; ok {
		delete(set, sessionID)
		if len(set) == 0 {
			delete(r.watchers, projectID)
		}
	}
}

// SessionsFor returns the sessions watching a project, sorted.
func (r *SessionRegistry) SessionsFor(projectID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := r.watchers[projectID]
	out := make([]string, 0, len(set))
	for sid := range set {
		out = append(out, sid)
	}
	sort.Strings(out)
	return out
}

// Forget drops every subscription to a project. Called when it is deleted.
func (r *SessionRegistry) Forget(projectID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.watchers, projectID)
}

// Remove deletes all subscriptions held by the given session.
// Called when a session disconnects.
func (r *SessionRegistry) Remove(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for pid, set := range r.watchers {
		delete(set, sessionID)
		if len(set) == 0 {
			delete(r.watchers, pid)
		}
	}
}
