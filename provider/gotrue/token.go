package gotrue

import (
	"fmt"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/enoveri/go-access"
	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
)

// TokenValidator verifies GoTrue access tokens, either with the project
// JWT secret (HS256) or against a JWKS endpoint.
type TokenValidator struct {
	secret []byte
	jwks   *keyfunc.JWKS
}

// NewTokenValidator creates a validator from the config. One of JWTSecret
// or JWKSURL must be set.
func NewTokenValidator(cfg Config) (*TokenValidator, error) {
	if cfg.JWKSURL != "" {
		jwks, err := keyfunc.Get(cfg.JWKSURL, keyfunc.Options{})
		if err != nil {
			return nil, fmt.Errorf("gotrue: failed to load JWKS: %w", err)
		}
		return &TokenValidator{jwks: jwks}, nil
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("gotrue: a JWT secret or JWKS URL is required")
	}

	return &TokenValidator{secret: []byte(cfg.JWTSecret)}, nil
}

type accessTokenClaims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// Validate parses and verifies a token, returning the identity it asserts.
func (v *TokenValidator) Validate(tokenString string) (*access.AuthIdentity, error) {
	claims := &accessTokenClaims{}

	var token *jwt.Token
	var err error

	if v.jwks != nil {
		token, err = jwt.ParseWithClaims(tokenString, claims, v.jwks.Keyfunc)
	} else {
		token, err = jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return v.secret, nil
		})
	}

	if err != nil || token == nil || !token.Valid {
		return nil, goerrors.Wrap(err, goerrors.CategoryAuth, "invalid access token").
			WithTextCode("INVALID_TOKEN").
			WithCode(goerrors.CodeUnauthorized).
			WithMetadata(map[string]any{"provider": "gotrue"})
	}

	return &access.AuthIdentity{
		SubjectID: claims.Subject,
		Email:     claims.Email,
	}, nil
}
