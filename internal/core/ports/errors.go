package ports

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Fallback messages shown when neither the auth service nor the transport
// produced anything more specific.
const (
	MsgSendCodeFailed      = "failed to send verification code"
	MsgVerifyCodeFailed    = "verification code is invalid or expired"
	MsgSignupFailed        = "failed to sign up"
	MsgResetPasswordFailed = "failed to reset password"
	MsgFindUsernameFailed  = "failed to find username"
	MsgUpdateProfileFailed = "failed to update profile"
	MsgGetProfileFailed    = "failed to load profile"
)

// APIError is a non-2xx response from the auth service.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("auth api: HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("auth api: HTTP %d: %s", e.StatusCode, e.Message)
}

// ParseAPIError builds an APIError from a response body of the form
// {"message": "..."} or {"message": ["...", ...]}.
func ParseAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status}
	var payload struct {
		Message json.RawMessage `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || len(payload.Message) == 0 {
		return apiErr
	}
	var single string
	if err := json.Unmarshal(payload.Message, &single); err == nil {
		apiErr.Message = strings.TrimSpace(single)
		return apiErr
	}
	var list []string
	if err := json.Unmarshal(payload.Message, &list); err == nil && len(list) > 0 {
		apiErr.Message = strings.TrimSpace(list[0])
	}
	return apiErr
}

// ErrorMessage picks the text to show for a failed call: the auth service's
// structured message, then the transport error text, then fallback.
func ErrorMessage(err error, fallback string) string {
	if err == nil {
		return ""
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if apiErr.Message != "" {
			return apiErr.Message
		}
		return fallback
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		if msg := urlErr.Err.Error(); msg != "" {
			return msg
		}
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return fallback
}

var (
	// ErrUpstream marks an operation the auth service rejected or could not
	// be reached for. The flow carries the message to show.
	ErrUpstream = errors.New("auth service request failed")
	// ErrUnauthorized means the auth service did not accept the caller's session.
	ErrUnauthorized = errors.New("not signed in")
)
