package identity

import (
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Session holds the current authentication state of the agent: the
// bearer token handed over by the UI after login, and the namespace
// derived from it. A zero Session is a usable guest session.
//
// Sessions are safe for concurrent use; the local API may swap the token
// while a poll cycle is reading it.
type Session struct {
	mu        sync.RWMutex
	token     string
	expiresAt time.Time
}

// NewSession creates a session for the given token. An empty token
// yields a guest session.
func NewSession(token string) *Session {
	s := &Session{}
	s.SetToken(token)
	return s
}

// SetToken replaces the session token. Expiry is extracted from the
// token's JWT claims on a best-effort basis; tokens that are not JWTs
// (or carry no exp claim) are treated as opaque and never expire
// locally.
func (s *Session) SetToken(token string) {
	var expiresAt time.Time
	if token != "" {
		// Unverified parse: the agent is a token consumer, not the
		// issuer, and has no signing key. Expiry here only gates
		// local behavior; the backend still rejects bad tokens.
		parser := jwt.NewParser()
		if tok, _, err := parser.ParseUnverified(token, jwt.MapClaims{}); err == nil {
			if exp, err := tok.Claims.GetExpirationTime(); err == nil && exp != nil {
				expiresAt = exp.Time
			}
		}
	}

	s.mu.Lock()
	s.token = token
	s.expiresAt = expiresAt
	s.mu.Unlock()
}

// Clear drops the token, returning the session to guest state.
func (s *Session) Clear() {
	s.SetToken("")
}

// Token returns the current bearer token, or "" for a guest session.
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// Namespace returns the storage namespace for the current token.
func (s *Session) Namespace() string {
	return Namespace(s.Token())
}

// Expired reports whether the token carried an exp claim that has
// passed. Opaque tokens never report expired.
func (s *Session) Expired(now time.Time) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.expiresAt.IsZero() && now.After(s.expiresAt)
}
