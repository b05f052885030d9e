package api

import (
	"sync"
	"time"

	"github.com/ignite/pixel-relay/internal/pixel"
	"github.com/ignite/pixel-relay/internal/pkg/logger"
	"github.com/ignite/pixel-relay/internal/sink"
)

// sessionEntry pairs a session with its memory sink when the memory
// backend is active; mem is nil on the redis backend.
type sessionEntry struct {
	session *pixel.Session
	mem     *sink.Memory
}

// Registry tracks live page-load sessions by id. Eviction by idle age is
// housekeeping only; it never affects a session's gate or buffer semantics.
type Registry struct {
	mu      sync.Mutex
	entries map[string]sessionEntry
	maxIdle time.Duration
}

// NewRegistry creates a registry evicting sessions idle longer than
// maxIdle.
func NewRegistry(maxIdle time.Duration) *Registry {
	return &Registry{
		entries: make(map[string]sessionEntry),
		maxIdle: maxIdle,
	}
}

// Put registers a session. Re-registering an id keeps the existing entry:
// a page load creates its session exactly once, so a duplicate create is a
// replayed request, not a new session.
func (r *Registry) Put(s *pixel.Session, mem *sink.Memory) *pixel.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.entries[s.ID]; ok {
		return existing.session
	}
	r.entries[s.ID] = sessionEntry{session: s, mem: mem}
	return s
}

// Get looks up a session by id.
func (r *Registry) Get(id string) (*pixel.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	return e.session, ok
}

// Records returns the data-layer snapshot for a memory-backed session.
func (r *Registry) Records(id string) ([]sink.Record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok || e.mem == nil {
		return nil, false
	}
	return e.mem.Records(), true
}

// Prune drops sessions idle longer than the registry's max idle age.
func (r *Registry) Prune() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := time.Now().Add(-r.maxIdle)
	dropped := 0
	for id, e := range r.entries {
		if e.session.LastSeen().Before(cutoff) {
			delete(r.entries, id)
			dropped++
		}
	}
	if dropped > 0 {
		logger.Debug("pruned idle sessions", "dropped", dropped)
	}
	return dropped
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
