package platform

import (
	"context"

	"github.com/goliatone/go-router"
)

var sessionCtxKey = &contextKey{"session"}

type contextKey struct {
	name string
}

// SessionLocalsKey is where the gatekeeper parks the resolved session on
// the router context.
const SessionLocalsKey = "session"

// WithSession sets the Session in the given context
func WithSession(ctx context.Context, session *Session) context.Context {
	return context.WithValue(ctx, sessionCtxKey, session)
}

// SessionFromContext finds the session from the context.
func SessionFromContext(ctx context.Context) (*Session, bool) {
	raw, ok := ctx.Value(sessionCtxKey).(*Session)
	return raw, ok
}

// SessionFromRouter extracts the session from the router context
func SessionFromRouter(ctx router.Context) (*Session, bool) {
	raw := ctx.Locals(SessionLocalsKey)
	if raw == nil {
		return nil, false
	}
	session, ok := raw.(*Session)
	return session, ok
}

// UserFromRouter resolves the account behind the current request, if any.
func UserFromRouter(ctx router.Context) (*User, bool) {
	session, ok := SessionFromRouter(ctx)
	if !ok || session.User == nil {
		return nil, false
	}
	return session.User, true
}
