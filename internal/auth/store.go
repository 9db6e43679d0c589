package auth

import (
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"golang.org/x/oauth2"

	"github.com/drivepane/drivepane/internal/metrics"
	"github.com/drivepane/drivepane/pkg/protocol"
)

// Session is one signed-in browser or terminal client.
type Session struct {
	ID        string
	User      protocol.User
	Token     *oauth2.Token // provider token, nil for static logins
	CreatedAt time.Time
	ExpiresAt time.Time
}

// SessionStore keeps live sessions in memory until they expire or are
// revoked. Restarting the server signs everyone out.
type SessionStore struct {
	cache  *cache.Cache
	maxAge time.Duration
	now    func() time.Time
}

// NewSessionStore creates a store whose entries live for maxAge.
func NewSessionStore(maxAge time.Duration) *SessionStore {
	s := &SessionStore{
		cache:  cache.New(maxAge, 10*time.Minute),
		maxAge: maxAge,
		now:    time.Now,
	}
	s.cache.OnEvicted(func(string, interface{}) {
		metrics.SetActiveSessions(s.cache.ItemCount())
	})
	return s
}

// Create stores a new session for user.
func (s *SessionStore) Create(user protocol.User, token *oauth2.Token) Session {
	now := s.now()
	sess := Session{
		ID:        uuid.NewString(),
		User:      user,
		Token:     token,
		CreatedAt: now,
		ExpiresAt: now.Add(s.maxAge),
	}
	s.cache.Set(sess.ID, sess, s.maxAge)
	metrics.SetActiveSessions(s.cache.ItemCount())
	return sess
}

// Get returns a copy of the session with id.
func (s *SessionStore) Get(id string) (Session, bool) {
	v, ok := s.cache.Get(id)
	if !ok {
		return Session{}, false
	}
	return v.(Session), true
}

// UpdateToken replaces the provider token after a refresh, keeping the
// original expiry.
func (s *SessionStore) UpdateToken(id string, token *oauth2.Token) bool {
	sess, ok := s.Get(id)
	if !ok {
		return false
	}
	remaining := sess.ExpiresAt.Sub(s.now())
	if remaining <= 0 {
		s.Delete(id)
		return false
	}
	sess.Token = token
	s.cache.Set(id, sess, remaining)
	return true
}

// Delete revokes a session.
func (s *SessionStore) Delete(id string) {
	s.cache.Delete(id)
	metrics.SetActiveSessions(s.cache.ItemCount())
}

// Count returns the number of live sessions, including expired entries not
// yet swept.
func (s *SessionStore) Count() int {
	return s.cache.ItemCount()
}
