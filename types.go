package access

import (
	"context"
	"fmt"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// AuthIdentity holds the attributes the identity provider asserts about an
// authenticated principal. It lives only for the duration of an auth event;
// nothing in this package persists it.
type AuthIdentity struct {
	SubjectID      string
	Email          string
	EmailConfirmed bool
}

// AuthChangeType enumerates provider-driven auth transitions.
type AuthChangeType string

const (
	AuthChangeSignedIn       AuthChangeType = "SIGNED_IN"
	AuthChangeSignedOut      AuthChangeType = "SIGNED_OUT"
	AuthChangeTokenRefreshed AuthChangeType = "TOKEN_REFRESHED"
)

// AuthChange describes a single provider-driven auth transition.
type AuthChange struct {
	Type     AuthChangeType
	Identity *AuthIdentity
}

// IdentityStore is the external identity provider boundary. Implementations
// authenticate principals; they never decide authorization.
type IdentityStore interface {
	Authenticate(ctx context.Context, email, password string) (*AuthIdentity, error)
	CurrentIdentity(ctx context.Context) (*AuthIdentity, error)
	SignOut(ctx context.Context) error
	Subscribe(fn func(AuthChange)) (unsubscribe func())
}

// ProfileStore is the keyed authorization record store the Reconciler reads
// and repairs. A miss is reported as a nil profile with a nil error, or as a
// not-found error; both are treated the same.
type ProfileStore interface {
	GetByID(ctx context.Context, id string) (*Profile, error)
	GetByEmail(ctx context.Context, email string) (*Profile, error)

	// ReassignID updates the profile's id, filtered by email and the id the
	// caller observed, so a concurrent administrative edit cannot be
	// clobbered. It is idempotent: reassigning to an id the row already
	// carries succeeds without a write.
	ReassignID(ctx context.Context, email, oldID, newID string) error
}

// SessionReconciler produces a ResolvedSession for an identity. Satisfied by
// *Reconciler; kept narrow so resolvers can be tested against stubs.
type SessionReconciler interface {
	Resolve(ctx context.Context, identity AuthIdentity) (*ResolvedSession, error)
}

// Config holds the route guard options.
type Config interface {
	GetLoginRoute() string
	GetDeniedRoute() string
	GetRejectedRouteKey() string
	GetRejectedRouteDefault() string
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] ACCESS "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] ACCESS "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] ACCESS "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] ACCESS "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
