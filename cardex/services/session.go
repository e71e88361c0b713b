package services

import (
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru"
)

const maxSessions = 10000

type session struct {
	userID    string
	expiresAt time.Time
}

// SessionService issues and resolves bearer tokens. Sessions live in an
// in-process LRU with a TTL; eviction or restart just means logging in
// again, nothing durable depends on them.
type SessionService struct {
	sessions *lru.Cache
	ttl      time.Duration

	now func() time.Time
}

func NewSessionService(ttl time.Duration) *SessionService {
	cache, _ := lru.New(maxSessions)
	return &SessionService{
		sessions: cache,
		ttl:      ttl,
		now:      time.Now,
	}
}

// Issue creates a new token bound to userID.
func (s *SessionService) Issue(userID string) string {
	token := uuid.NewString()
	s.sessions.Add(token, session{
		userID:    userID,
		expiresAt: s.now().Add(s.ttl),
	})
	return token
}

// Resolve returns the user id behind a token, or false when the token is
// unknown or past its TTL. Expired entries are evicted on sight.
func (s *SessionService) Resolve(token string) (string, bool) {
	cached, ok := s.sessions.Get(token)
	if !ok {
		return "", false
	}

	sess := cached.(session)
	if s.now().After(sess.expiresAt) {
		s.sessions.Remove(token)
		return "", false
	}
	return sess.userID, true
}

// Revoke drops a token immediately.
func (s *SessionService) Revoke(token string) {
	s.sessions.Remove(token)
}
