package access

import (
	"context"
	"sync"

	goerrors "github.com/goliatone/go-errors"
)

// SessionResolver memoizes reconciliation per subject and exposes synchronous
// reads of the last resolved session. For a given subject id at most one
// Reconciler invocation is in flight; concurrent callers join it and receive
// the identical result, so a mismatch repair runs exactly once however many
// protected-route checks race it.
type SessionResolver struct {
	mu         sync.Mutex
	reconciler SessionReconciler
	logger     Logger
	current    *ResolvedSession
	subject    string
	inflight   map[string]*resolution
	publish    func(*ResolvedSession)
}

type resolution struct {
	done    chan struct{}
	session *ResolvedSession
	err     error
}

// SessionResolverOption customizes SessionResolver construction.
type SessionResolverOption func(*SessionResolver)

// WithResolverLogger overrides the logger.
func WithResolverLogger(logger Logger) SessionResolverOption {
	return func(s *SessionResolver) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithPublishHook registers a callback invoked with every session the
// resolver publishes as current, including the reset to unresolved.
func WithPublishHook(fn func(*ResolvedSession)) SessionResolverOption {
	return func(s *SessionResolver) {
		s.publish = fn
	}
}

// NewSessionResolver returns a resolver backed by the given reconciler.
func NewSessionResolver(reconciler SessionReconciler, opts ...SessionResolverOption) *SessionResolver {
	s := &SessionResolver{
		reconciler: reconciler,
		logger:     defLogger{},
		current:    newUnresolvedSession(),
		inflight:   map[string]*resolution{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	return s
}

// Current returns the last published session. Before any resolution it is
// unresolved; while one is in flight it is resolving.
func (s *SessionResolver) Current() *ResolvedSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Resolve reconciles the identity, collapsing concurrent calls for the same
// subject into one reconciler run. The in-flight work is tagged with the
// subject it was started for; if the current subject changed by completion
// time (sign-out, different sign-in) the result is returned to callers but
// never published as current.
func (s *SessionResolver) Resolve(ctx context.Context, identity AuthIdentity) (*ResolvedSession, error) {
	key := identity.SubjectID

	s.mu.Lock()
	s.subject = key
	if res, ok := s.inflight[key]; ok {
		s.mu.Unlock()
		select {
		case <-res.done:
			return res.session, res.err
		case <-ctx.Done():
			return nil, goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "cancelled while awaiting session resolution")
		}
	}

	res := &resolution{done: make(chan struct{})}
	s.inflight[key] = res
	s.current = newResolvingSession(&identity)
	s.mu.Unlock()

	session, err := s.reconciler.Resolve(ctx, identity)
	if session == nil {
		session = newErrorSession(&identity, err)
	}

	s.mu.Lock()
	delete(s.inflight, key)
	res.session, res.err = session, err
	stale := s.subject != key
	if !stale {
		s.current = session
	}
	s.mu.Unlock()
	close(res.done)

	if stale {
		s.logger.Debug("discarding stale resolution for %s in state %s", key, session.State)
	} else {
		s.notify(session)
	}

	return session, err
}

// Refresh re-resolves the current subject's identity, publishing a fresh
// session. No-op when signed out.
func (s *SessionResolver) Refresh(ctx context.Context) (*ResolvedSession, error) {
	s.mu.Lock()
	cur := s.current
	s.mu.Unlock()

	if !cur.HasIdentity() {
		return cur, nil
	}
	return s.Resolve(ctx, *cur.Identity)
}

// Reset discards the current session on sign-out. Any in-flight resolution
// for the old subject completes but its result is dropped rather than
// overwriting the fresh unresolved session.
func (s *SessionResolver) Reset() {
	s.mu.Lock()
	s.subject = ""
	session := newUnresolvedSession()
	s.current = session
	s.mu.Unlock()

	s.notify(session)
}

// Await blocks until any in-flight resolution for the current subject
// settles, then returns the current session. Returns immediately when
// nothing is resolving or when ctx expires.
func (s *SessionResolver) Await(ctx context.Context) *ResolvedSession {
	s.mu.Lock()
	res, ok := s.inflight[s.subject]
	cur := s.current
	s.mu.Unlock()

	if !ok {
		return cur
	}

	select {
	case <-res.done:
		return s.Current()
	case <-ctx.Done():
		return cur
	}
}

func (s *SessionResolver) notify(session *ResolvedSession) {
	if s.publish != nil {
		s.publish(session)
	}
}
