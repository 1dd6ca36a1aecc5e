package pipeline

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agency-studio/content-pipeline/internal/apperrors"
)

// Registry keeps live sessions in memory, keyed by id.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	now      func() time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		now:      time.Now,
	}
}

// Start opens a new session in the briefing stage.
func (r *Registry) Start() *Session {
	s := newSession(uuid.New().String(), r.now())
	r.mu.Lock()
	r.sessions[s.id] = s
	r.mu.Unlock()
	return s
}

// Get returns the session with id.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, apperrors.NotFound("pipeline", id)
	}
	return s, nil
}

// Len returns the number of tracked sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Sweep forgets dispatched and abandoned sessions last touched before cutoff and returns
// how many were removed.
func (r *Registry) Sweep(cutoff time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, s := range r.sessions {
		s.mu.Lock()
		finished := s.status != StatusActive && !s.inFlight && s.updatedAt.Before(cutoff)
		s.mu.Unlock()
		if finished {
			delete(r.sessions, id)
			removed++
		}
	}
	return removed
}
