package web

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/avvaruyasaswini/Echo/internal/echo/session"
)

// sentinel errors returned by the session registry.
var (
	// ErrTokenNotFound is returned when the bearer token does not exist.
	ErrTokenNotFound = errors.New("web: token not found")
	// ErrTokenExpired is returned when the token's TTL has elapsed.
	ErrTokenExpired = errors.New("web: token expired")
)

// DefaultSessionTTL is the bearer token lifetime when none is configured.
const DefaultSessionTTL = 12 * time.Hour

// sessionEntry pairs a live session with its expiry.
type sessionEntry struct {
	sess      *session.Session
	expiresAt time.Time
}

// sessionRegistry maps bearer tokens to live sessions. Tokens are opaque
// random values; the registry is in-memory only, so a restart logs every
// user out. Cookie mechanics are deliberately out of scope.
type sessionRegistry struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]*sessionEntry
}

// newSessionRegistry creates a registry. Pass ttl == 0 to use
// DefaultSessionTTL.
func newSessionRegistry(ttl time.Duration) *sessionRegistry {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &sessionRegistry{
		ttl:     ttl,
		entries: make(map[string]*sessionEntry),
	}
}

// Issue creates a bearer token bound to a fresh session for the user.
func (r *sessionRegistry) Issue(userID, username string) (string, *session.Session, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", nil, fmt.Errorf("web: generate token entropy: %w", err)
	}
	token := base64.RawURLEncoding.EncodeToString(raw)

	sess := session.New(userID, username)

	r.mu.Lock()
	r.entries[token] = &sessionEntry{
		sess:      sess,
		expiresAt: time.Now().Add(r.ttl),
	}
	r.mu.Unlock()

	return token, sess, nil
}

// Lookup resolves a bearer token to its session. Expired tokens are removed
// on sight.
func (r *sessionRegistry) Lookup(token string) (*session.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[token]
	if !ok {
		return nil, ErrTokenNotFound
	}
	if time.Now().After(entry.expiresAt) {
		delete(r.entries, token)
		return nil, ErrTokenExpired
	}
	return entry.sess, nil
}

// Revoke removes a token. Revoking an unknown token is a no-op.
func (r *sessionRegistry) Revoke(token string) {
	r.mu.Lock()
	delete(r.entries, token)
	r.mu.Unlock()
}

// PruneExpired drops every expired entry. Intended for a background
// goroutine.
func (r *sessionRegistry) PruneExpired() {
	now := time.Now()
	r.mu.Lock()
	for token, entry := range r.entries {
		if now.After(entry.expiresAt) {
			delete(r.entries, token)
		}
	}
	r.mu.Unlock()
}
