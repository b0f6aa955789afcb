package access_test

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/enoveri/go-access"
	"github.com/goliatone/go-router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTestController(t *testing.T, identities *MockIdentityStore, recon *stubReconciler) *access.AccessController {
	t.Helper()

	lifecycle := access.NewSessionLifecycle(identities, recon)
	guard, err := access.NewRouteGuard(lifecycle.Resolver(), newMockConfig())
	require.NoError(t, err)

	return access.NewAccessController(
		access.WithControllerLifecycle(lifecycle),
		access.WithControllerGuard(guard),
	)
}

func TestNewAccessControllerRequiresDependencies(t *testing.T) {
	assert.Panics(t, func() {
		access.NewAccessController()
	})

	assert.Panics(t, func() {
		recon := &stubReconciler{}
		lifecycle := access.NewSessionLifecycle(new(MockIdentityStore), recon)
		access.NewAccessController(access.WithControllerLifecycle(lifecycle))
	})
}

func TestLoginShow(t *testing.T) {
	ctrl := newTestController(t, new(MockIdentityStore), &stubReconciler{})

	mockCtx := new(MockContext)
	mockCtx.On("Render", ctrl.Views.Login, mock.Anything).Return(nil)

	require.NoError(t, ctrl.LoginShow(mockCtx))
	mockCtx.AssertExpectations(t)
}

func TestLoginPost(t *testing.T) {
	t.Run("successful sign-in redirects to stored route", func(t *testing.T) {
		identities := new(MockIdentityStore)
		identities.On("Authenticate", mock.Anything, "ann@pharmacy.test", "secret").
			Return(&access.AuthIdentity{SubjectID: "sub-1", Email: "ann@pharmacy.test", EmailConfirmed: true}, nil)

		recon := &stubReconciler{session: activeSessionFor("sub-1", access.RoleStaff)}
		ctrl := newTestController(t, identities, recon)

		mockCtx := new(MockContext)
		mockCtx.On("Context").Return(context.Background())
		mockCtx.On("Bind", mock.Anything).Run(func(args mock.Arguments) {
			payload := args.Get(0).(*access.LoginRequest)
			payload.Email = "ann@pharmacy.test"
			payload.Password = "secret"
		}).Return(nil)
		mockCtx.On("Cookies", "redirect_to").Return("/inventory")
		mockCtx.On("Cookie", mock.MatchedBy(func(c *router.Cookie) bool {
			return c.Name == "redirect_to" && c.Value == ""
		})).Return()
		mockCtx.On("Redirect", "/inventory", []int{router.StatusSeeOther}).Return(nil)

		require.NoError(t, ctrl.LoginPost(mockCtx))
		identities.AssertExpectations(t)
		mockCtx.AssertExpectations(t)

		current := ctrl.Lifecycle.Current()
		require.NotNil(t, current)
		assert.True(t, current.Authorized())
	})

	t.Run("invalid credentials render login with message", func(t *testing.T) {
		identities := new(MockIdentityStore)
		identities.On("Authenticate", mock.Anything, "ann@pharmacy.test", "wrong").
			Return(nil, access.ErrInvalidCredentials)

		ctrl := newTestController(t, identities, &stubReconciler{})

		mockCtx := new(MockContext)
		mockCtx.On("Context").Return(context.Background())
		mockCtx.On("Bind", mock.Anything).Run(func(args mock.Arguments) {
			payload := args.Get(0).(*access.LoginRequest)
			payload.Email = "ann@pharmacy.test"
			payload.Password = "wrong"
		}).Return(nil)
		mockCtx.On("Status", http.StatusUnauthorized).Return(mockCtx)
		mockCtx.On("Render", ctrl.Views.Login, mock.MatchedBy(func(vc router.ViewContext) bool {
			errs, ok := vc["errors"].(map[string]string)
			return ok && errs["authentication"] == "Invalid email or password"
		})).Return(nil)

		require.NoError(t, ctrl.LoginPost(mockCtx))
		mockCtx.AssertExpectations(t)
	})

	t.Run("rate limited maps to 429", func(t *testing.T) {
		identities := new(MockIdentityStore)
		identities.On("Authenticate", mock.Anything, "ann@pharmacy.test", "secret").
			Return(nil, access.ErrRateLimited)

		ctrl := newTestController(t, identities, &stubReconciler{})

		mockCtx := new(MockContext)
		mockCtx.On("Context").Return(context.Background())
		mockCtx.On("Bind", mock.Anything).Run(func(args mock.Arguments) {
			payload := args.Get(0).(*access.LoginRequest)
			payload.Email = "ann@pharmacy.test"
			payload.Password = "secret"
		}).Return(nil)
		mockCtx.On("Status", http.StatusTooManyRequests).Return(mockCtx)
		mockCtx.On("Render", ctrl.Views.Login, mock.Anything).Return(nil)

		require.NoError(t, ctrl.LoginPost(mockCtx))
		mockCtx.AssertExpectations(t)
	})
}

func TestLogOut(t *testing.T) {
	identities := new(MockIdentityStore)
	identities.On("SignOut", mock.Anything).Return(nil)

	ctrl := newTestController(t, identities, &stubReconciler{})

	mockCtx := new(MockContext)
	mockCtx.On("Context").Return(context.Background())
	mockCtx.On("Redirect", "/", []int{router.StatusTemporaryRedirect}).Return(nil)

	require.NoError(t, ctrl.LogOut(mockCtx))
	identities.AssertExpectations(t)
	mockCtx.AssertExpectations(t)
}

func TestDeniedShow(t *testing.T) {
	tests := []struct {
		name    string
		session *access.ResolvedSession
		reason  string
	}{
		{"signed out", nil, access.ReasonLoginRequired},
		{"deactivated", sessionInState(access.StateInactive, ""), access.ReasonAccountDeactivated},
		{"not provisioned", sessionInState(access.StateUnauthorized, ""), access.ReasonNotProvisioned},
		{"resolution error", sessionInState(access.StateError, ""), access.ReasonCheckFailed},
		{"active but lacking role", activeSessionFor("sub-1", access.RoleStaff), access.ReasonInsufficientRole},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recon := &stubReconciler{session: tt.session}
			ctrl := newTestController(t, new(MockIdentityStore), recon)

			if tt.session != nil {
				_, err := ctrl.Lifecycle.Resolver().Resolve(context.Background(), access.AuthIdentity{SubjectID: "sub-1"})
				require.NoError(t, err)
			}

			mockCtx := new(MockContext)
			mockCtx.On("Status", http.StatusForbidden).Return(mockCtx)
			mockCtx.On("Render", ctrl.Views.Denied, mock.MatchedBy(func(vc router.ViewContext) bool {
				return vc["reason"] == tt.reason
			})).Return(nil)

			require.NoError(t, ctrl.DeniedShow(mockCtx))
			mockCtx.AssertExpectations(t)
		})
	}
}

func TestLoginRequestValidate(t *testing.T) {
	assert.NoError(t, access.LoginRequest{Email: "ann@pharmacy.test", Password: "secret"}.Validate())
	assert.Error(t, access.LoginRequest{Email: "not-an-email", Password: "secret"}.Validate())
	assert.Error(t, access.LoginRequest{Email: "ann@pharmacy.test"}.Validate())
	assert.Error(t, access.LoginRequest{}.Validate())
}

func TestFormatValidationErrorToMap(t *testing.T) {
	err := access.LoginRequest{Email: "not-an-email"}.Validate()
	require.Error(t, err)

	out := access.FormatValidationErrorToMap(err)
	assert.NotEmpty(t, out["email"])
	assert.NotEmpty(t, out["password"])

	assert.Empty(t, access.FormatValidationErrorToMap(nil))

	plain := access.FormatValidationErrorToMap(errors.New("broken"))
	assert.Equal(t, "broken", plain["validation"])
}
