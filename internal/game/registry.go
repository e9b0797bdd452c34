package game

import (
	"sync"

	"github.com/OikoumE/RAID-BATTLE-twitch-ext-BE/internal/metrics"
)

// Registry is the thread-safe map from channel ID to the channel's single
// live session. The registry lock only guards map membership; session
// internals are protected by each session's own mutex so unrelated channels
// never serialize on each other.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// GetOrCreate returns the channel's session, creating it via create if
// absent. Atomic with respect to concurrent callers: two simultaneous raids
// on one channel get the same session.
func (r *Registry) GetOrCreate(channelID string, create func() *Session) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[channelID]; ok {
		return s, false
	}
	s := create()
	r.sessions[channelID] = s
	metrics.ActiveSessions.Set(float64(len(r.sessions)))
	return s, true
}

// Get returns the channel's session if one is open.
func (r *Registry) Get(channelID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[channelID]
	return s, ok
}

// Remove evicts the channel's session. Safe to call for an already removed
// channel; stale timers firing after removal become no-ops upstream.
func (r *Registry) Remove(channelID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[channelID]; !ok {
		return false
	}
	delete(r.sessions, channelID)
	metrics.ActiveSessions.Set(float64(len(r.sessions)))
	return true
}

// Snapshot returns the currently open sessions. The slice is a copy; the
// registry lock is not held while callers touch the sessions.
func (r *Registry) Snapshot() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// Len returns the number of open sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
