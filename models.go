package access

import (
	"time"

	"github.com/uptrace/bun"
)

// Profile is the authorization record keyed by an id expected to match the
// identity provider's subject id. Rows may be provisioned by an administrator
// before the owner's first sign-in, in which case the id diverges until the
// Reconciler repairs it.
type Profile struct {
	bun.BaseModel `bun:"table:admin_users,alias:adm"`
	ID            string     `bun:"id,pk" json:"id,omitempty"`
	Email         string     `bun:"email,notnull,unique" json:"email,omitempty"`
	FullName      string     `bun:"full_name" json:"full_name,omitempty"`
	Role          Role       `bun:"role,notnull" json:"role,omitempty"`
	IsActive      bool       `bun:"is_active" json:"is_active"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// WithID returns a copy of the profile carrying the given id. Used by the
// repair path so published sessions never alias the stored record.
func (p *Profile) WithID(id string) *Profile {
	if p == nil {
		return nil
	}
	clone := *p
	clone.ID = id
	return &clone
}

// SessionState is the resolution state of a session
type SessionState string

const (
	// StateUnresolved is the state before any resolution ran
	StateUnresolved SessionState = "unresolved"
	// StateResolving means a reconciliation is in flight
	StateResolving SessionState = "resolving"
	// StateActive means an active profile authorizes the identity
	StateActive SessionState = "active"
	// StateInactive means a profile exists but the account is deactivated
	StateInactive SessionState = "inactive"
	// StateUnauthorized means no profile exists for the identity at all
	StateUnauthorized SessionState = "unauthorized"
	// StateError means reconciliation failed; callers must fail closed
	StateError SessionState = "error"
)

// ResolvedSession is the immutable outcome of reconciling one identity.
// A new value is published on every re-resolution; fields are never mutated
// in place, so consumers cannot observe a half-updated session.
type ResolvedSession struct {
	Identity   *AuthIdentity
	Profile    *Profile
	Role       Role
	IsAdmin    bool
	State      SessionState
	Cause      error
	ResolvedAt time.Time
}

// HasIdentity reports whether the session was produced for an authenticated
// principal.
func (s *ResolvedSession) HasIdentity() bool {
	return s != nil && s.Identity != nil
}

// Authorized reports whether the session grants access at all.
func (s *ResolvedSession) Authorized() bool {
	return s != nil && s.State == StateActive
}

// HasRole checks if the session holds a specific role
func (s *ResolvedSession) HasRole(role Role) bool {
	return s.Authorized() && s.Role == role
}

// AtLeast checks if the session's role is at least the minimum required role
func (s *ResolvedSession) AtLeast(minRole Role) bool {
	return s.Authorized() && s.Role.AtLeast(minRole)
}

func newUnresolvedSession() *ResolvedSession {
	return &ResolvedSession{State: StateUnresolved, ResolvedAt: time.Now()}
}

func newResolvingSession(identity *AuthIdentity) *ResolvedSession {
	return &ResolvedSession{
		Identity:   identity,
		State:      StateResolving,
		ResolvedAt: time.Now(),
	}
}

func newActiveSession(identity *AuthIdentity, profile *Profile) *ResolvedSession {
	return &ResolvedSession{
		Identity:   identity,
		Profile:    profile,
		Role:       profile.Role,
		IsAdmin:    profile.Role == RoleAdmin,
		State:      StateActive,
		ResolvedAt: time.Now(),
	}
}

func newInactiveSession(identity *AuthIdentity, profile *Profile) *ResolvedSession {
	// role stays empty: a deactivated account grants nothing, whatever the
	// stored role says
	return &ResolvedSession{
		Identity: identity,
		Profile:  profile,
		State:    StateInactive,
		Cause: ErrProfileInactive.Clone().WithMetadata(map[string]any{
			"id":    profile.ID,
			"email": profile.Email,
		}),
		ResolvedAt: time.Now(),
	}
}

func newUnauthorizedSession(identity *AuthIdentity) *ResolvedSession {
	session := &ResolvedSession{
		Identity:   identity,
		State:      StateUnauthorized,
		ResolvedAt: time.Now(),
	}

	meta := map[string]any{}
	if identity != nil {
		meta["subject_id"] = identity.SubjectID
		meta["email"] = identity.Email
	}
	session.Cause = ErrProfileNotFound.Clone().WithMetadata(meta)

	return session
}

func newErrorSession(identity *AuthIdentity, cause error) *ResolvedSession {
	return &ResolvedSession{
		Identity:   identity,
		State:      StateError,
		Cause:      cause,
		ResolvedAt: time.Now(),
	}
}
