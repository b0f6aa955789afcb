package gotrue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/enoveri/go-access"
	goerrors "github.com/goliatone/go-errors"
)

// IdentityStore implements access.IdentityStore against a GoTrue server.
type IdentityStore struct {
	config    Config
	validator *TokenValidator

	mu          sync.Mutex
	session     *session
	subscribers map[int]func(access.AuthChange)
	nextID      int
}

type session struct {
	AccessToken  string
	RefreshToken string
	Identity     access.AuthIdentity
}

var _ access.IdentityStore = (*IdentityStore)(nil)

// NewIdentityStore creates a GoTrue-backed identity store.
func NewIdentityStore(cfg Config) (*IdentityStore, error) {
	if cfg.baseURL() == "" {
		return nil, fmt.Errorf("gotrue: server URL is required")
	}

	validator, err := NewTokenValidator(cfg)
	if err != nil {
		return nil, err
	}

	return &IdentityStore{
		config:      cfg,
		validator:   validator,
		subscribers: map[int]func(access.AuthChange){},
	}, nil
}

// tokenResponse is the body of a successful password grant.
type tokenResponse struct {
	AccessToken  string       `json:"access_token"`
	TokenType    string       `json:"token_type"`
	ExpiresIn    int          `json:"expires_in"`
	RefreshToken string       `json:"refresh_token"`
	User         userResponse `json:"user"`
}

type userResponse struct {
	ID               string `json:"id"`
	Email            string `json:"email"`
	EmailConfirmedAt string `json:"email_confirmed_at"`
	ConfirmedAt      string `json:"confirmed_at"`
}

func (u userResponse) identity() access.AuthIdentity {
	return access.AuthIdentity{
		SubjectID:      u.ID,
		Email:          strings.ToLower(strings.TrimSpace(u.Email)),
		EmailConfirmed: u.EmailConfirmedAt != "" || u.ConfirmedAt != "",
	}
}

// Authenticate performs the password grant.
func (s *IdentityStore) Authenticate(ctx context.Context, email, password string) (*access.AuthIdentity, error) {
	payload, err := json.Marshal(map[string]string{
		"email":    strings.ToLower(strings.TrimSpace(email)),
		"password": password,
	})
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to encode credentials")
	}

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		s.config.endpoint("token?grant_type=password"),
		bytes.NewReader(payload),
	)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to build token request")
	}
	s.decorate(req, "")

	res, err := s.config.client().Do(req)
	if err != nil {
		return nil, access.ErrAuthUnknown.Clone().WithMetadata(map[string]any{
			"provider": "gotrue",
			"cause":    err.Error(),
		})
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to read token response")
	}

	if res.StatusCode != http.StatusOK {
		var failure errorResponse
		_ = json.Unmarshal(body, &failure)
		return nil, classifyError(res.StatusCode, failure)
	}

	var grant tokenResponse
	if err := json.Unmarshal(body, &grant); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to decode token response")
	}

	identity := grant.User.identity()

	s.mu.Lock()
	s.session = &session{
		AccessToken:  grant.AccessToken,
		RefreshToken: grant.RefreshToken,
		Identity:     identity,
	}
	s.mu.Unlock()

	s.notify(access.AuthChange{Type: access.AuthChangeSignedIn, Identity: &identity})

	return &identity, nil
}

// CurrentIdentity returns the identity of the stored session, validating its
// access token so a tampered or expired token never yields an identity.
func (s *IdentityStore) CurrentIdentity(ctx context.Context) (*access.AuthIdentity, error) {
	s.mu.Lock()
	current := s.session
	s.mu.Unlock()

	if current == nil {
		return nil, nil
	}

	identity, err := s.validator.Validate(current.AccessToken)
	if err != nil {
		return nil, err
	}

	if identity.Email == "" {
		identity.Email = current.Identity.Email
	}
	identity.EmailConfirmed = current.Identity.EmailConfirmed

	return identity, nil
}

// Refresh exchanges the stored refresh token for a new session.
func (s *IdentityStore) Refresh(ctx context.Context) (*access.AuthIdentity, error) {
	s.mu.Lock()
	current := s.session
	s.mu.Unlock()

	if current == nil || current.RefreshToken == "" {
		return nil, access.ErrAuthUnknown.Clone().WithMetadata(map[string]any{
			"provider": "gotrue",
			"cause":    "no session to refresh",
		})
	}

	payload, err := json.Marshal(map[string]string{
		"refresh_token": current.RefreshToken,
	})
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to encode refresh request")
	}

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		s.config.endpoint("token?grant_type=refresh_token"),
		bytes.NewReader(payload),
	)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to build refresh request")
	}
	s.decorate(req, "")

	res, err := s.config.client().Do(req)
	if err != nil {
		return nil, access.ErrAuthUnknown.Clone().WithMetadata(map[string]any{
			"provider": "gotrue",
			"cause":    err.Error(),
		})
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to read refresh response")
	}

	if res.StatusCode != http.StatusOK {
		var failure errorResponse
		_ = json.Unmarshal(body, &failure)
		return nil, classifyError(res.StatusCode, failure)
	}

	var grant tokenResponse
	if err := json.Unmarshal(body, &grant); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to decode refresh response")
	}

	identity := grant.User.identity()

	s.mu.Lock()
	s.session = &session{
		AccessToken:  grant.AccessToken,
		RefreshToken: grant.RefreshToken,
		Identity:     identity,
	}
	s.mu.Unlock()

	s.notify(access.AuthChange{Type: access.AuthChangeTokenRefreshed, Identity: &identity})

	return &identity, nil
}

// SignOut revokes the session server side and always clears the local one.
func (s *IdentityStore) SignOut(ctx context.Context) error {
	s.mu.Lock()
	current := s.session
	s.session = nil
	s.mu.Unlock()

	defer s.notify(access.AuthChange{Type: access.AuthChangeSignedOut})

	if current == nil || current.AccessToken == "" {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.endpoint("logout"), nil)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to build logout request")
	}
	s.decorate(req, current.AccessToken)

	res, err := s.config.client().Do(req)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "logout request failed")
	}
	defer res.Body.Close()
	_, _ = io.Copy(io.Discard, res.Body)

	if res.StatusCode >= http.StatusBadRequest {
		return goerrors.New("logout rejected by server", goerrors.CategoryOperation).
			WithMetadata(map[string]any{"status": res.StatusCode})
	}

	return nil
}

// Subscribe registers a listener for auth changes.
func (s *IdentityStore) Subscribe(fn func(access.AuthChange)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	s.subscribers[id] = fn

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subscribers, id)
	}
}

func (s *IdentityStore) notify(change access.AuthChange) {
	s.mu.Lock()
	listeners := make([]func(access.AuthChange), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		listeners = append(listeners, fn)
	}
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(change)
	}
}

func (s *IdentityStore) decorate(req *http.Request, bearer string) {
	req.Header.Set("Content-Type", "application/json")
	if s.config.APIKey != "" {
		req.Header.Set("apikey", s.config.APIKey)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
}
