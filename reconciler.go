package access

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// Reconciler resolves an authenticated identity against the profile store,
// healing id divergence when a pre-provisioned profile matches by email. The
// algorithm is deterministic:
//
//  1. Look up the profile by the subject id. Inactive wins over everything;
//     active authorizes directly.
//  2. On a miss, look up by email. No row means unauthorized. An inactive
//     row still reports inactive, never a repairable mismatch.
//  3. An active row found only by email is a mismatch: repair the stored id
//     with one conditional update. A failed repair fails closed.
//
// Running it twice after a successful repair short-circuits at step 1 and
// performs no write.
type Reconciler struct {
	profiles     ProfileStore
	logger       Logger
	activitySink ActivitySink
	now          func() time.Time
}

// ReconcilerOption customizes Reconciler construction.
type ReconcilerOption func(*Reconciler)

// WithReconcilerLogger overrides the logger.
func WithReconcilerLogger(logger Logger) ReconcilerOption {
	return func(r *Reconciler) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithReconcilerActivitySink sets the ActivitySink used to publish repair and
// resolution events.
func WithReconcilerActivitySink(sink ActivitySink) ReconcilerOption {
	return func(r *Reconciler) {
		r.activitySink = normalizeActivitySink(sink)
	}
}

// WithReconcilerClock injects a custom clock (useful for tests).
func WithReconcilerClock(clock func() time.Time) ReconcilerOption {
	return func(r *Reconciler) {
		if clock != nil {
			r.now = clock
		}
	}
}

// NewReconciler returns a Reconciler backed by the provided profile store.
func NewReconciler(profiles ProfileStore, opts ...ReconcilerOption) *Reconciler {
	r := &Reconciler{
		profiles:     profiles,
		logger:       defLogger{},
		activitySink: noopActivitySink{},
		now:          time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}

	return r
}

// Resolve produces the ResolvedSession for the identity. The returned error
// is non-nil only when the session carries StateError; inactive and
// unauthorized outcomes are sessions, not errors.
func (r *Reconciler) Resolve(ctx context.Context, identity AuthIdentity) (*ResolvedSession, error) {
	// The email-confirmed flag is intentionally ignored here: internal
	// accounts can be pre-authorized before verification completes. The
	// provider-layer rejection is handled by the lifecycle, not by us.
	if identity.SubjectID != "" {
		profile, err := r.lookup(ctx, func(ctx context.Context) (*Profile, error) {
			return r.profiles.GetByID(ctx, identity.SubjectID)
		})
		if err != nil {
			return r.fail(ctx, identity, err, "profile lookup by id failed")
		}

		if profile != nil {
			return r.fromProfile(ctx, identity, profile), nil
		}
	}

	profile, err := r.lookup(ctx, func(ctx context.Context) (*Profile, error) {
		return r.profiles.GetByEmail(ctx, identity.Email)
	})
	if err != nil {
		return r.fail(ctx, identity, err, "profile lookup by email failed")
	}

	if profile == nil {
		r.logger.Debug("no profile provisioned for %s", identity.Email)
		return r.record(ctx, newUnauthorizedSession(&identity)), nil
	}

	if !profile.IsActive {
		// found-by-email but deactivated: report inactive, never repair
		return r.record(ctx, newInactiveSession(&identity, profile)), nil
	}

	if identity.SubjectID == "" || profile.ID == identity.SubjectID {
		// nothing to repair to, or the store healed underneath us
		return r.record(ctx, newActiveSession(&identity, profile)), nil
	}

	return r.repair(ctx, identity, profile)
}

// lookup performs a profile read, retrying exactly once on a transient
// failure. Not-found is a miss, never transient; it is normalized to
// (nil, nil) so the caller falls through to the next step.
func (r *Reconciler) lookup(ctx context.Context, get func(context.Context) (*Profile, error)) (*Profile, error) {
	profile, err := get(ctx)
	if err != nil && !IsProfileNotFound(err) {
		r.logger.Warn("transient profile read, retrying once: %v", err)
		profile, err = get(ctx)
	}

	if err != nil {
		if IsProfileNotFound(err) {
			return nil, nil
		}
		return nil, err
	}

	return profile, nil
}

func (r *Reconciler) fromProfile(ctx context.Context, identity AuthIdentity, profile *Profile) *ResolvedSession {
	if !profile.IsActive {
		return r.record(ctx, newInactiveSession(&identity, profile))
	}
	return r.record(ctx, newActiveSession(&identity, profile))
}

// repair rewrites the stored profile id to the subject id. The update is
// filtered by email plus the id we observed so a concurrent administrative
// edit of the same row is never clobbered.
func (r *Reconciler) repair(ctx context.Context, identity AuthIdentity, profile *Profile) (*ResolvedSession, error) {
	r.logger.Info(
		"profile id mismatch for %s, repairing %s -> %s",
		profile.Email,
		profile.ID,
		identity.SubjectID,
	)

	if err := r.profiles.ReassignID(ctx, profile.Email, profile.ID, identity.SubjectID); err != nil {
		return r.fail(ctx, identity, err, "profile id repair failed")
	}

	r.emit(ctx, ActivityEvent{
		EventType: ActivityEventProfileRepaired,
		Actor:     ActorRef{ID: identity.SubjectID, Type: "user"},
		SubjectID: identity.SubjectID,
		Email:     profile.Email,
		Metadata: map[string]any{
			"previous_id": profile.ID,
		},
	})

	return r.record(ctx, newActiveSession(&identity, profile.WithID(identity.SubjectID))), nil
}

func (r *Reconciler) fail(ctx context.Context, identity AuthIdentity, err error, msg string) (*ResolvedSession, error) {
	r.logger.Error("%s for %s: %v", msg, identity.SubjectID, err)

	cause := goerrors.Wrap(err, goerrors.CategoryInternal, msg).
		WithTextCode(textCodeReconciliationFailed).
		WithCode(goerrors.CodeInternal).
		WithMetadata(map[string]any{
			"subject_id": identity.SubjectID,
			"email":      identity.Email,
		})

	return r.record(ctx, newErrorSession(&identity, cause)), cause
}

func (r *Reconciler) record(ctx context.Context, session *ResolvedSession) *ResolvedSession {
	event := ActivityEvent{
		EventType: ActivityEventSessionResolved,
		State:     session.State,
	}
	if session.Identity != nil {
		event.Actor = ActorRef{ID: session.Identity.SubjectID, Type: "user"}
		event.SubjectID = session.Identity.SubjectID
		event.Email = session.Identity.Email
	}
	r.emit(ctx, event)
	return session
}

func (r *Reconciler) emit(ctx context.Context, event ActivityEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = r.now()
	}
	if event.Actor == (ActorRef{}) {
		event.Actor = ActorRef{Type: "system"}
	}

	sink := normalizeActivitySink(r.activitySink)
	if err := sink.Record(ctx, event); err != nil {
		r.logger.Warn("reconciler activity sink error: %v", err)
	}
}
