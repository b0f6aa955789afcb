package gotrue

import (
	"net/http"
	"strings"

	"github.com/enoveri/go-access"
)

// errorResponse is the error body GoTrue returns on failed requests.
// Older servers use error/error_description, newer ones msg/error_code.
type errorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	ErrorCode        string `json:"error_code"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
}

func (e errorResponse) text() string {
	for _, s := range []string{e.ErrorDescription, e.Msg, e.Message, e.Error} {
		if s != "" {
			return s
		}
	}
	return ""
}

// classifyError maps a GoTrue failure onto the access error taxonomy.
func classifyError(status int, body errorResponse) error {
	text := strings.ToLower(body.text())
	code := strings.ToLower(body.ErrorCode)

	switch {
	case status == http.StatusTooManyRequests,
		code == "over_request_rate_limit",
		strings.Contains(text, "rate limit"):
		return access.ErrRateLimited.Clone().WithMetadata(map[string]any{
			"provider": "gotrue",
			"status":   status,
			"cause":    body.text(),
		})
	case code == "email_not_confirmed",
		strings.Contains(text, "email not confirmed"):
		return access.ErrEmailUnconfirmed.Clone().WithMetadata(map[string]any{
			"provider": "gotrue",
			"status":   status,
			"cause":    body.text(),
		})
	case code == "invalid_credentials",
		strings.Contains(text, "invalid login credentials"),
		strings.Contains(text, "invalid grant"):
		return access.ErrInvalidCredentials.Clone().WithMetadata(map[string]any{
			"provider": "gotrue",
			"status":   status,
			"cause":    body.text(),
		})
	default:
		return access.ErrAuthUnknown.Clone().WithMetadata(map[string]any{
			"provider": "gotrue",
			"status":   status,
			"cause":    body.text(),
		})
	}
}
