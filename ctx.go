package shield

import (
	"context"
)

var sessionCtxKey = &contextKey{"session"}

type contextKey struct {
	name string
}

// Session is the authenticated caller: the user and the token presented.
type Session struct {
	User  *User
	Token ActiveToken
}

// WithSession stores the session in ctx.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionCtxKey, s)
}

// SessionFromContext returns the session stored by WithSession.
func SessionFromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(sessionCtxKey).(*Session)
	if !ok || s == nil || s.User == nil {
		return nil, false
	}
	return s, true
}

// UserFromContext returns the authenticated user, if any.
func UserFromContext(ctx context.Context) (*User, bool) {
	s, ok := SessionFromContext(ctx)
	if !ok {
		return nil, false
	}
	return s.User, true
}
