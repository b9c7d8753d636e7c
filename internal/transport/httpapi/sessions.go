package httpapi

import (
	"regexp"
	"sync"

	"ytmp3convert/internal/service"
)

const (
	// DefaultSession is used when a request names no session.
	DefaultSession = "default"

	maxSessions = 10000
)

var sessionPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ValidSession reports whether id may be used as a session name.
func ValidSession(id string) bool {
	return sessionPattern.MatchString(id)
}

// OrchestratorFactory builds the orchestrator that serves one session.
type OrchestratorFactory func(session string) *service.Orchestrator

// Sessions maps a browser session to its own orchestrator, so a new
// submission only supersedes jobs from the same session.
type Sessions struct {
	mu      sync.Mutex
	byID    map[string]*service.Orchestrator
	factory OrchestratorFactory
}

// NewSessions creates an empty registry.
func NewSessions(factory OrchestratorFactory) *Sessions {
	return &Sessions{byID: make(map[string]*service.Orchestrator), factory: factory}
}

// Get returns the session's orchestrator without creating one.
func (s *Sessions) Get(id string) (*service.Orchestrator, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.byID[id]
	return o, ok
}

// Open returns the session's orchestrator, creating it on first use.
// It returns false when the registry is full.
func (s *Sessions) Open(id string) (*service.Orchestrator, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o, ok := s.byID[id]; ok {
		return o, true
	}
	if len(s.byID) >= maxSessions {
		s.evictIdleLocked()
		if len(s.byID) >= maxSessions {
			return nil, false
		}
	}
	o := s.factory(id)
	s.byID[id] = o
	return o, true
}

// Len reports the number of known sessions.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID)
}

// CancelAll abandons every running job.
func (s *Sessions) CancelAll() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, o := range s.byID {
		if o.Cancel() {
			n++
		}
	}
	return n
}

func (s *Sessions) evictIdleLocked() {
	for id, o := range s.byID {
		job, ok := o.Current()
		if !ok || job.State.Terminal() {
			delete(s.byID, id)
		}
	}
}
