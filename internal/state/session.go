package state

import (
	"context"
	"log"
	"time"

	"neurogallery/server/internal/cache"
	"neurogallery/server/internal/interfaces"
)

const sessionKey = "user"

// Session keeps the signed-in user record in a cache slot, separate from the
// two primary collections. An absent or unreadable record means logged out.
type Session struct {
	cache cache.Cache
	ttl   time.Duration
}

func NewSession(c cache.Cache, ttl time.Duration) *Session {
	return &Session{cache: c, ttl: ttl}
}

// Load returns the stored user, or nil when logged out. A malformed stored
// record is discarded rather than surfaced as an error.
func (s *Session) Load(ctx context.Context) *interfaces.User {
	var user interfaces.User
	ok, err := s.cache.Get(ctx, cache.NamespaceSession, sessionKey, &user)
	if err != nil {
		log.Printf("[Session] Discarding unreadable session record: %v", err)
		_ = s.cache.Delete(ctx, cache.NamespaceSession, sessionKey)
		return nil
	}
	if !ok {
		return nil
	}
	return &user
}

// Set stores the user record; nil signs out.
func (s *Session) Set(ctx context.Context, user *interfaces.User) error {
	if user == nil {
		return s.cache.Delete(ctx, cache.NamespaceSession, sessionKey)
	}
	return s.cache.Set(ctx, cache.NamespaceSession, sessionKey, user, s.ttl, "")
}
