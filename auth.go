package main

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const (
	sessionCookie = "ia_session"
	sessionTTL    = 24 * time.Hour
)

type sessionClaims struct {
	jwt.RegisteredClaims
	Identity string `json:"identity"`
}

// SessionManager owns the logged-in sessions and the signed cookie that maps
// a browser back to one. Dropping a session on logout leaves the identity's
// durable lock state untouched; it is re-read on the next login.
type SessionManager struct {
	secret []byte
	clock  Clock

	mu       sync.Mutex
	sessions map[string]*PlayerSession
	limiters map[string]*rate.Limiter
}

func newSessionManager(secret string, clock Clock) *SessionManager {
	if clock == nil {
		clock = time.Now
	}
	return &SessionManager{
		secret:   []byte(secret),
		clock:    clock,
		sessions: map[string]*PlayerSession{},
		limiters: map[string]*rate.Limiter{},
	}
}

func (m *SessionManager) put(s *PlayerSession) {
	m.mu.Lock()
	m.sessions[s.identity] = s
	m.mu.Unlock()
}

func (m *SessionManager) get(identity string) *PlayerSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[identity]
}

func (m *SessionManager) drop(identity string) {
	m.mu.Lock()
	delete(m.sessions, identity)
	delete(m.limiters, identity)
	m.mu.Unlock()
}

// limiter returns the per-identity limiter for mutating endpoints.
func (m *SessionManager) limiter(identity string) *rate.Limiter {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.limiters[identity]
	if !ok {
		l = rate.NewLimiter(5, 10)
		m.limiters[identity] = l
	}
	return l
}

func (m *SessionManager) issueToken(identity string) (string, error) {
	now := m.clock()
	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(sessionTTL)),
		},
		Identity: identity,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return signed, nil
}

func (m *SessionManager) parseToken(raw string) (string, error) {
	var claims sessionClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(token *jwt.Token) (any, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithTimeFunc(func() time.Time { return m.clock() }),
	)
	if err != nil {
		return "", fmt.Errorf("parse session token: %w", err)
	}
	if claims.Identity == "" {
		return "", fmt.Errorf("session token has no identity")
	}
	return claims.Identity, nil
}

// mapAuthError turns the identity provider's failure modes into messages a
// player can act on, mirroring how the backend reports them.
func mapAuthError(err error) (int, string) {
	var remoteErr *RemoteError
	if !errors.As(err, &remoteErr) {
		return http.StatusBadGateway, "Network error. Please check your connection."
	}
	switch remoteErr.Status {
	case http.StatusUnauthorized:
		return http.StatusUnauthorized, "No account found with these credentials."
	case http.StatusForbidden:
		return http.StatusForbidden, "Email not verified. Check your inbox first."
	case http.StatusConflict:
		return http.StatusConflict, "An account with this email already exists."
	case http.StatusTooManyRequests:
		return http.StatusTooManyRequests, "Too many attempts. Please try again later."
	}
	if remoteErr.Message != "" {
		return remoteErr.Status, remoteErr.Message
	}
	return remoteErr.Status, "Authentication failed. Please try again."
}
