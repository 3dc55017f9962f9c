package commands

import (
	"time"

	"github.com/google/uuid"
)

// defaultSessionTTL bounds how long a half-finished add flow stays valid.
const defaultSessionTTL = 10 * time.Minute

// Session carries the state between the room selection step and the
// threshold modal of the add flow.
type Session struct {
	UserID    string
	TenantID  string
	Rooms     []string
	createdAt time.Time
}

// SessionStore hands out opaque tokens for in-flight add flows. Tokens are
// single-use and expire after the TTL. Not safe for concurrent use; the app
// event loop is the single writer.
type SessionStore struct {
	ttl      time.Duration
	now      func() time.Time
	sessions map[string]Session
}

func NewSessionStore(ttl time.Duration) *SessionStore {
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	return &SessionStore{
		ttl:      ttl,
		now:      time.Now,
		sessions: map[string]Session{},
	}
}

// Put stores the session and returns its token. Expired sessions are pruned
// on the way in.
func (s *SessionStore) Put(sess Session) string {
	s.prune()
	sess.createdAt = s.now()
	token := uuid.NewString()
	s.sessions[token] = sess
	return token
}

// Peek returns the session for token if it is live and owned by userID.
func (s *SessionStore) Peek(token, userID string) (Session, bool) {
	sess, ok := s.sessions[token]
	if !ok || sess.UserID != userID || s.expired(sess) {
		return Session{}, false
	}
	return sess, true
}

// Take is Peek plus consumption: a taken token cannot be used again.
func (s *SessionStore) Take(token, userID string) (Session, bool) {
	sess, ok := s.Peek(token, userID)
	if ok {
		delete(s.sessions, token)
	}
	return sess, ok
}

func (s *SessionStore) Len() int { return len(s.sessions) }

func (s *SessionStore) expired(sess Session) bool {
	return s.now().Sub(sess.createdAt) > s.ttl
}

func (s *SessionStore) prune() {
	for token, sess := range s.sessions {
		if s.expired(sess) {
			delete(s.sessions, token)
		}
	}
}
