// Package access resolves authenticated external identities into authorized
// sessions. It sits between an identity provider (which authenticates by
// email/password and issues a stable subject id) and a locally owned profile
// table carrying each account's role and active flag.
//
// Reconciliation:
//   - Profiles are expected to share their id with the provider subject id,
//     but accounts provisioned by an administrator before the user's first
//     sign-in diverge. The Reconciler detects the divergence (id miss, email
//     hit) and repairs the stored id with a single conditional update. Repair
//     failures fail closed: the session surfaces an error state and is never
//     treated as authorized.
//
// Sessions:
//   - SessionResolver collapses concurrent resolutions for the same subject
//     into one Reconciler run and publishes immutable ResolvedSession values.
//     A sign-out invalidates in-flight work; late results are discarded, not
//     merged into the new session.
//
// Gating:
//   - AccessGate translates a resolved session plus a route requirement into
//     allow, wait, or redirect decisions. It never redirects while a
//     resolution is in flight, so consumers can render a loading affordance
//     without flapping.
//
// Activity sinks:
//   - ActivitySink is a light-weight audit emitter used by the lifecycle and
//     the Reconciler to describe sign-in, sign-out, resolution, repair, and
//     provisioning events. Sinks run best-effort (errors are logged) so you
//     can forward to a database or queue without blocking authentication.
package access
