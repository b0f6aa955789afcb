package access

// Requirement describes what a protected operation demands of the session.
// A zero Requirement allows everything. MinRole implies authentication.
type Requirement struct {
	RequireAuth bool
	MinRole     Role
}

// DecisionKind is the gate's verdict category.
type DecisionKind string

const (
	// DecisionAllow lets the request through
	DecisionAllow DecisionKind = "allow"
	// DecisionWait is a transient signal while resolution is in flight;
	// callers render a loading affordance and re-evaluate on state change
	DecisionWait DecisionKind = "wait"
	// DecisionRedirectLogin sends the caller to sign-in, carrying the
	// originally requested destination
	DecisionRedirectLogin DecisionKind = "redirect_login"
	// DecisionRedirectDenied sends the caller to the denied surface
	DecisionRedirectDenied DecisionKind = "redirect_denied"
)

// Denial reasons surfaced with redirect decisions.
const (
	ReasonLoginRequired      = "authentication required"
	ReasonAccountDeactivated = "account deactivated"
	ReasonNotProvisioned     = "not provisioned"
	ReasonCheckFailed        = "authorization check failed"
	ReasonInsufficientRole   = "insufficient role"
)

// Decision is the gate's verdict for one evaluation.
type Decision struct {
	Kind     DecisionKind
	Reason   string
	ReturnTo string
}

// Allowed reports whether the request may proceed.
func (d Decision) Allowed() bool {
	return d.Kind == DecisionAllow
}

// AccessGate evaluates a resolved session against a route requirement.
// It holds no state and performs no I/O.
type AccessGate struct {
	logger Logger
}

// AccessGateOption customizes AccessGate construction.
type AccessGateOption func(*AccessGate)

// WithGateLogger overrides the logger.
func WithGateLogger(logger Logger) AccessGateOption {
	return func(g *AccessGate) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// NewAccessGate returns a new AccessGate.
func NewAccessGate(opts ...AccessGateOption) *AccessGate {
	g := &AccessGate{logger: defLogger{}}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	return g
}

// Evaluate decides whether the session satisfies the requirement.
// requestedPath is carried on login redirects so sign-in can resume the
// original destination.
//
// Redirecting while a resolution is in flight is forbidden: the wait verdict
// prevents redirect flicker on routes evaluated during sign-in.
func (g *AccessGate) Evaluate(session *ResolvedSession, req Requirement, requestedPath string) Decision {
	if session == nil {
		session = newUnresolvedSession()
	}

	if session.State == StateResolving {
		return Decision{Kind: DecisionWait}
	}

	needsAuth := req.RequireAuth || req.MinRole != ""
	if !needsAuth {
		return Decision{Kind: DecisionAllow}
	}

	if !session.HasIdentity() {
		return Decision{
			Kind:     DecisionRedirectLogin,
			Reason:   ReasonLoginRequired,
			ReturnTo: requestedPath,
		}
	}

	switch session.State {
	case StateInactive:
		return g.deny(session, ReasonAccountDeactivated)
	case StateUnauthorized:
		return g.deny(session, ReasonNotProvisioned)
	case StateError:
		return g.deny(session, ReasonCheckFailed)
	case StateActive:
		if req.MinRole != "" && !session.Role.AtLeast(req.MinRole) {
			return g.deny(session, ReasonInsufficientRole)
		}
		return Decision{Kind: DecisionAllow}
	default:
		// identity present but nothing resolved and nothing in flight;
		// fail closed and let sign-in restart resolution
		return Decision{
			Kind:     DecisionRedirectLogin,
			Reason:   ReasonLoginRequired,
			ReturnTo: requestedPath,
		}
	}
}

func (g *AccessGate) deny(session *ResolvedSession, reason string) Decision {
	subject := ""
	if session.Identity != nil {
		subject = session.Identity.SubjectID
	}
	g.logger.Debug("access denied for %s: state=%s reason=%s", subject, session.State, reason)
	return Decision{Kind: DecisionRedirectDenied, Reason: reason}
}
