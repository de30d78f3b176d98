package memory

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Sessions maps session ids to conversations. Idle sessions older than
// the TTL are dropped the next time the map is accessed.
type Sessions struct {
	mu    sync.Mutex
	convs map[string]*Conversation
	ttl   time.Duration
	now   func() time.Time
}

// SessionsOption configures Sessions.
type SessionsOption func(*Sessions)

// WithTTL sets the idle time after which a session is evicted. Zero keeps
// sessions for the life of the process.
func WithTTL(ttl time.Duration) SessionsOption {
	return func(s *Sessions) { s.ttl = ttl }
}

// WithClock overrides the time source used for eviction.
func WithClock(now func() time.Time) SessionsOption {
	return func(s *Sessions) { s.now = now }
}

// NewSessions creates an empty session registry.
func NewSessions(opts ...SessionsOption) *Sessions {
	s := &Sessions{
		convs: make(map[string]*Conversation),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the conversation for id, creating it on first use. An empty
// id starts a new session with a generated id.
func (s *Sessions) Get(id string) *Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.evictLocked(now)

	if id == "" {
		id = uuid.NewString()
	}
	c, ok := s.convs[id]
	if !ok {
		c = NewConversation(id)
		s.convs[id] = c
	}
	c.touch(now)
	return c
}

// Delete forgets a session. It reports whether the session existed.
func (s *Sessions) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.convs[id]
	delete(s.convs, id)
	return ok
}

// Len returns the number of live sessions.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evictLocked(s.now())
	return len(s.convs)
}

// Sweep evicts idle sessions now rather than on the next access and
// returns how many were dropped.
func (s *Sessions) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.evictLocked(s.now())
}

func (s *Sessions) evictLocked(now time.Time) int {
	if s.ttl <= 0 {
		return 0
	}
	n := 0
	for id, c := range s.convs {
		if now.Sub(c.idleSince()) > s.ttl {
			delete(s.convs, id)
			n++
		}
	}
	return n
}
