package access

import (
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
)

const (
	textCodeInvalidCredentials   = "INVALID_CREDENTIALS"
	textCodeEmailUnconfirmed     = "EMAIL_UNCONFIRMED"
	textCodeRateLimited          = "RATE_LIMITED"
	textCodeAuthUnknown          = "AUTH_UNKNOWN"
	textCodeProfileNotFound      = "PROFILE_NOT_FOUND"
	textCodeProfileInactive      = "PROFILE_INACTIVE"
	textCodeReconciliationFailed = "RECONCILIATION_FAILED"
)

// Authentication layer errors. Surfaced to the caller of SignIn for
// user-facing messaging; never silently retried.
var (
	// ErrInvalidCredentials is returned when the provider rejects the email
	// or password.
	ErrInvalidCredentials = goerrors.New("invalid email or password", goerrors.CategoryAuth).
				WithTextCode(textCodeInvalidCredentials).
				WithCode(goerrors.CodeUnauthorized)

	// ErrEmailUnconfirmed is returned when the provider requires email
	// confirmation before sign-in.
	ErrEmailUnconfirmed = goerrors.New("email address not confirmed", goerrors.CategoryAuth).
				WithTextCode(textCodeEmailUnconfirmed).
				WithCode(goerrors.CodeUnauthorized)

	// ErrRateLimited is returned when the provider throttled the sign-in.
	ErrRateLimited = goerrors.New("too many sign-in attempts", goerrors.CategoryOperation).
			WithTextCode(textCodeRateLimited)

	// ErrAuthUnknown wraps provider failures we cannot classify.
	ErrAuthUnknown = goerrors.New("authentication failed", goerrors.CategoryAuth).
			WithTextCode(textCodeAuthUnknown).
			WithCode(goerrors.CodeUnauthorized)
)

// Authorization layer errors.
var (
	// ErrProfileNotFound means no profile row exists for the identity at all.
	ErrProfileNotFound = goerrors.New("no profile provisioned for identity", goerrors.CategoryAuthz).
				WithTextCode(textCodeProfileNotFound).
				WithCode(goerrors.CodeUnauthorized)

	// ErrProfileInactive means the profile exists but is deactivated.
	ErrProfileInactive = goerrors.New("profile is deactivated", goerrors.CategoryAuthz).
				WithTextCode(textCodeProfileInactive).
				WithCode(goerrors.CodeUnauthorized)

	// ErrReconciliationFailed means the identity could not be reconciled with
	// its profile. Callers must treat this as "cannot authorize".
	ErrReconciliationFailed = goerrors.New("could not reconcile identity with profile", goerrors.CategoryInternal).
				WithTextCode(textCodeReconciliationFailed).
				WithCode(goerrors.CodeInternal)
)

func hasTextCode(err error, code string) bool {
	if err == nil {
		return false
	}
	var rich *goerrors.Error
	if goerrors.As(err, &rich) {
		return rich.TextCode == code
	}
	return false
}

// IsInvalidCredentials will check for rejected credentials
func IsInvalidCredentials(err error) bool {
	return hasTextCode(err, textCodeInvalidCredentials)
}

// IsEmailUnconfirmed will check for the provider's unconfirmed-email rejection
func IsEmailUnconfirmed(err error) bool {
	return hasTextCode(err, textCodeEmailUnconfirmed)
}

// IsRateLimited will check for provider throttling
func IsRateLimited(err error) bool {
	return hasTextCode(err, textCodeRateLimited)
}

// IsProfileNotFound will check for a missing profile record. Repository
// misses carry their own category, so both not-found shapes are matched.
func IsProfileNotFound(err error) bool {
	return hasTextCode(err, textCodeProfileNotFound) ||
		goerrors.IsNotFound(err) ||
		repository.IsRecordNotFound(err)
}

// IsProfileInactive will check for a deactivated profile
func IsProfileInactive(err error) bool {
	return hasTextCode(err, textCodeProfileInactive)
}

// IsReconciliationFailed will check for failed reconciliations
func IsReconciliationFailed(err error) bool {
	return hasTextCode(err, textCodeReconciliationFailed)
}
