package access

import (
	"context"

	"github.com/goliatone/go-router"
)

var sessionCtxKey = &contextKey{"session"}

type contextKey struct {
	name string
}

// SessionLocalsKey is where the route guard stores the resolved session
// in the router locals.
const SessionLocalsKey = "access_session"

// WithContext sets the ResolvedSession in the given context
func WithContext(r context.Context, session *ResolvedSession) context.Context {
	return context.WithValue(r, sessionCtxKey, session)
}

// FromContext finds the resolved session from the context.
func FromContext(ctx context.Context) (*ResolvedSession, bool) {
	raw, ok := ctx.Value(sessionCtxKey).(*ResolvedSession)
	return raw, ok
}

// GetRouterSession extracts the resolved session from the router context
func GetRouterSession(ctx router.Context, key string) (*ResolvedSession, bool) {
	if key == "" {
		key = SessionLocalsKey
	}
	raw := ctx.Locals(key)
	if raw == nil {
		return nil, false
	}
	session, ok := raw.(*ResolvedSession)
	return session, ok
}

// AtLeastFromContext reports whether the session in the standard context
// is authorized and holds a role at or above min.
func AtLeastFromContext(ctx context.Context, min Role) bool {
	session, ok := FromContext(ctx)
	if !ok {
		return false
	}
	return session.AtLeast(min)
}

// AtLeastFromRouter is the router context counterpart of AtLeastFromContext.
func AtLeastFromRouter(ctx router.Context, min Role) bool {
	session, ok := GetRouterSession(ctx, "")
	if !ok {
		return false
	}
	return session.AtLeast(min)
}
