// Package gotrue implements an identity store backed by a GoTrue
// authentication server, the API Supabase exposes for email and
// password sign in.
package gotrue

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Config holds GoTrue connection and token validation settings.
type Config struct {
	// URL is the GoTrue base URL (e.g., "https://project.supabase.co/auth/v1").
	URL string

	// APIKey is the anon key sent with every request.
	APIKey string

	// JWTSecret validates HS256 access tokens issued by GoTrue.
	JWTSecret string

	// JWKSURL enables asymmetric token validation via a JWKS endpoint
	// instead of a shared secret (optional).
	JWKSURL string

	// HTTPClient overrides the default client (optional).
	HTTPClient *http.Client

	// RequestTimeout bounds each call to the server.
	// Default: 10 seconds.
	RequestTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig(url, apiKey string) Config {
	return Config{
		URL:            url,
		APIKey:         apiKey,
		RequestTimeout: 10 * time.Second,
	}
}

func (c Config) baseURL() string {
	return strings.TrimSuffix(strings.TrimSpace(c.URL), "/")
}

func (c Config) endpoint(path string) string {
	return fmt.Sprintf("%s/%s", c.baseURL(), strings.TrimPrefix(path, "/"))
}

func (c Config) client() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}

	timeout := c.RequestTimeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	return &http.Client{Timeout: timeout}
}
