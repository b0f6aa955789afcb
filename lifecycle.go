package access

import (
	"context"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// SessionLifecycle drives the resolver from identity provider events. It
// authenticates; it never authorizes. Authorization is entirely the
// Reconciler's and AccessGate's job.
type SessionLifecycle struct {
	identities   IdentityStore
	resolver     *SessionResolver
	logger       Logger
	activitySink ActivitySink

	mu          sync.Mutex
	listeners   map[int]func(*ResolvedSession)
	nextID      int
	unsubscribe func()
}

// LifecycleOption customizes SessionLifecycle construction.
type LifecycleOption func(*SessionLifecycle)

// WithLifecycleLogger overrides the logger.
func WithLifecycleLogger(logger Logger) LifecycleOption {
	return func(l *SessionLifecycle) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithLifecycleActivitySink configures an ActivitySink for auth events.
func WithLifecycleActivitySink(sink ActivitySink) LifecycleOption {
	return func(l *SessionLifecycle) {
		l.activitySink = normalizeActivitySink(sink)
	}
}

// NewSessionLifecycle wires an identity store to a session resolver. The
// resolver's publish hook is claimed by the lifecycle so listeners observe
// every published session, including provider-driven refreshes.
func NewSessionLifecycle(identities IdentityStore, reconciler SessionReconciler, opts ...LifecycleOption) *SessionLifecycle {
	l := &SessionLifecycle{
		identities:   identities,
		logger:       defLogger{},
		activitySink: noopActivitySink{},
		listeners:    map[int]func(*ResolvedSession){},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}

	l.resolver = NewSessionResolver(
		reconciler,
		WithResolverLogger(l.logger),
		WithPublishHook(l.notifyChange),
	)

	return l
}

// Resolver exposes the session resolver to the UI/route layer.
func (l *SessionLifecycle) Resolver() *SessionResolver {
	return l.resolver
}

// Current returns the last resolved session.
func (l *SessionLifecycle) Current() *ResolvedSession {
	return l.resolver.Current()
}

// Start subscribes to provider push events (sign-in elsewhere, token
// refresh, sign-out). Call Close to detach.
func (l *SessionLifecycle) Start() {
	if l.identities == nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.unsubscribe != nil {
		return
	}
	l.unsubscribe = l.identities.Subscribe(l.handleChange)
}

// Close detaches from provider events.
func (l *SessionLifecycle) Close() {
	l.mu.Lock()
	unsub := l.unsubscribe
	l.unsubscribe = nil
	l.mu.Unlock()

	if unsub != nil {
		unsub()
	}
}

// SignIn authenticates the credentials and feeds the identity into the
// resolver. The returned error is an authentication failure only; the
// authorization outcome is read from Current. Authentication errors are
// surfaced as-is for user-facing messaging and never retried.
func (l *SessionLifecycle) SignIn(ctx context.Context, email, password string) (*AuthIdentity, error) {
	identity, err := l.identities.Authenticate(ctx, email, password)
	if err != nil {
		if IsEmailUnconfirmed(err) {
			if bypassed := l.tryUnconfirmedBypass(ctx, email, identity); bypassed != nil {
				return bypassed, nil
			}
		}

		l.logger.Error("sign-in authentication error for %s: %v", email, err)
		l.emit(ctx, ActivityEvent{
			EventType: ActivityEventSignInFailure,
			Actor:     ActorRef{Type: "unknown"},
			Email:     email,
			Metadata:  map[string]any{"error": err.Error()},
		})
		return nil, err
	}

	if identity == nil {
		err := ErrAuthUnknown.Clone().WithMetadata(map[string]any{"email": email})
		l.logger.Error("sign-in returned no identity for %s", email)
		return nil, err
	}

	l.emit(ctx, ActivityEvent{
		EventType: ActivityEventSignInSuccess,
		Actor:     ActorRef{ID: identity.SubjectID, Type: "user"},
		SubjectID: identity.SubjectID,
		Email:     identity.Email,
	})

	if _, rerr := l.resolver.Resolve(ctx, *identity); rerr != nil {
		// authentication succeeded; the authorization failure lives on the
		// published session where the gate fails closed
		l.logger.Warn("post-sign-in resolution failed for %s: %v", identity.SubjectID, rerr)
	}

	return identity, nil
}

// tryUnconfirmedBypass implements the pre-authorization policy: a provider
// rejection classified only as "email not confirmed" does not block
// resolution. When an active profile exists for the email the sign-in
// proceeds despite the unconfirmed flag.
func (l *SessionLifecycle) tryUnconfirmedBypass(ctx context.Context, email string, identity *AuthIdentity) *AuthIdentity {
	if identity == nil {
		identity = &AuthIdentity{Email: email}
	}
	identity.EmailConfirmed = false

	session, err := l.resolver.Resolve(ctx, *identity)
	if err != nil || !session.Authorized() {
		l.resolver.Reset()
		return nil
	}

	l.logger.Info("unconfirmed email bypassed by active profile for %s", email)
	l.emit(ctx, ActivityEvent{
		EventType: ActivityEventSignInSuccess,
		Actor:     ActorRef{ID: identity.SubjectID, Type: "user"},
		SubjectID: identity.SubjectID,
		Email:     email,
		Metadata:  map[string]any{"email_confirmed": false},
	})

	return identity
}

// SignOut invalidates the provider session and resets the resolver. An
// in-flight resolution for the old subject is abandoned; its late result is
// discarded by the resolver rather than merged into the empty session.
func (l *SessionLifecycle) SignOut(ctx context.Context) error {
	var signOutErr error
	if err := l.identities.SignOut(ctx); err != nil {
		signOutErr = goerrors.Wrap(err, goerrors.CategoryOperation, "provider sign-out failed")
		l.logger.Warn("provider sign-out error: %v", err)
	}

	current := l.resolver.Current()
	subject := ""
	if current.HasIdentity() {
		subject = current.Identity.SubjectID
	}

	l.resolver.Reset()

	l.emit(ctx, ActivityEvent{
		EventType:  ActivityEventSignOut,
		Actor:      ActorRef{ID: subject, Type: "user"},
		SubjectID:  subject,
		OccurredAt: time.Now(),
	})

	return signOutErr
}

// OnChange registers a callback fired on every published session transition:
// sign-in, sign-out, and provider-driven refreshes. The returned function
// removes the listener.
func (l *SessionLifecycle) OnChange(fn func(*ResolvedSession)) func() {
	if fn == nil {
		return func() {}
	}

	l.mu.Lock()
	id := l.nextID
	l.nextID++
	l.listeners[id] = fn
	l.mu.Unlock()

	return func() {
		l.mu.Lock()
		delete(l.listeners, id)
		l.mu.Unlock()
	}
}

func (l *SessionLifecycle) handleChange(change AuthChange) {
	ctx := context.Background()

	switch change.Type {
	case AuthChangeSignedOut:
		l.resolver.Reset()
	case AuthChangeSignedIn, AuthChangeTokenRefreshed:
		if change.Identity == nil {
			l.logger.Warn("auth change without identity: %s", change.Type)
			return
		}
		if _, err := l.resolver.Resolve(ctx, *change.Identity); err != nil {
			l.logger.Warn("resolution after auth change failed for %s: %v", change.Type, err)
		}
	default:
		l.logger.Debug("ignoring auth change %s", change.Type)
	}
}

func (l *SessionLifecycle) notifyChange(session *ResolvedSession) {
	l.mu.Lock()
	fns := make([]func(*ResolvedSession), 0, len(l.listeners))
	for _, fn := range l.listeners {
		fns = append(fns, fn)
	}
	l.mu.Unlock()

	for _, fn := range fns {
		fn(session)
	}
}

func (l *SessionLifecycle) emit(ctx context.Context, event ActivityEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}

	sink := normalizeActivitySink(l.activitySink)
	if err := sink.Record(ctx, event); err != nil {
		l.logger.Warn("lifecycle activity sink error: %v", err)
	}
}
