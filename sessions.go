package platform

import (
	"context"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// Session is a validated cookie token resolved against the live account
// record. Holding a Session means the token checked out and the account
// still exists; it says nothing about active status or forced reset, which
// the caller inspects on User.
type Session struct {
	User   *User
	Claims *SessionClaims
}

func (s *Session) GetUserID() string {
	if s.Claims == nil {
		return ""
	}
	return s.Claims.UserID()
}

func (s *Session) GetUserUUID() (uuid.UUID, error) {
	return uuid.Parse(s.GetUserID())
}

// MustReset reports whether the account is being held at the forced
// password reset step.
func (s *Session) MustReset() bool {
	return s.User != nil && s.User.MustReset
}

// IsActive reports whether the account may use the application.
func (s *Session) IsActive() bool {
	return s.User != nil && s.User.IsActive
}

// IsAdmin reports whether the session may reach the admin surface.
func (s *Session) IsAdmin() bool {
	return CanAdminister(s.User)
}

// HomePath returns where a signed-in visitor lands: the admin dashboard
// for admins, the application for everyone else.
func (s *Session) HomePath() string {
	if s.IsAdmin() {
		return "/admin"
	}
	return "/app"
}

// ExpiresAt returns the token's expiry.
func (s *Session) ExpiresAt() time.Time {
	if s.Claims == nil {
		return time.Time{}
	}
	return s.Claims.Expires()
}

// UserGetter is the slice of the store the session layer needs.
type UserGetter interface {
	FindByID(ctx context.Context, id uuid.UUID) (*User, error)
}

// SessionManager issues, validates, and renews session tokens. Validation
// re-reads the account on every call: a deleted account invalidates its
// outstanding tokens immediately, and state flags are never served stale.
type SessionManager struct {
	tokens TokenService
	store  UserGetter
	logger Logger
}

func NewSessionManager(tokens TokenService, store UserGetter) *SessionManager {
	return &SessionManager{
		tokens: tokens,
		store:  store,
		logger: defLogger{},
	}
}

func (m *SessionManager) WithLogger(l Logger) *SessionManager {
	m.logger = normalizeLogger(l)
	return m
}

// Issue creates a fresh session token for the account.
func (m *SessionManager) Issue(user *User) (string, error) {
	return m.tokens.Generate(user)
}

// Validate resolves a raw token into a Session.
//
// The error taxonomy matters here: auth-category errors mean the session is
// definitively dead and the cookie should be evicted; anything else is a
// transient fault and the caller must leave the cookie alone.
func (m *SessionManager) Validate(ctx context.Context, raw string) (*Session, error) {
	if raw == "" {
		return nil, ErrSessionInvalid
	}

	claims, err := m.tokens.Validate(raw)
	if err != nil {
		return nil, err
	}

	id, err := uuid.Parse(claims.UserID())
	if err != nil {
		return nil, ErrSessionInvalid.WithMetadata(map[string]any{"cause": "token subject is not a valid id"})
	}

	user, err := m.store.FindByID(ctx, id)
	if err != nil {
		if errors.IsNotFound(err) {
			// The account backing the token is gone.
			return nil, ErrSessionInvalid
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to resolve session account")
	}

	return &Session{User: user, Claims: claims}, nil
}

// Renew reissues the token with a full lifetime, implementing the sliding
// thirty day window. The old token stays valid until its own expiry; only
// the cookie is replaced.
func (m *SessionManager) Renew(session *Session) (string, error) {
	if session == nil || session.User == nil {
		return "", ErrSessionInvalid
	}
	return m.tokens.Generate(session.User)
}
