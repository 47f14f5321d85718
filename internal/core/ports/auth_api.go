package ports

import (
	"context"
	"encoding/json"

	"github.com/goldkiwi/storefront/internal/core/domain/verification"
)

// SendCodeRequest asks the auth service to email a one-time code.
type SendCodeRequest struct {
	Email    string               `json:"email"`
	Purpose  verification.Purpose `json:"purpose,omitempty"`
	Username string               `json:"username,omitempty"`
	Name     string               `json:"name,omitempty"`
}

// VerifyCodeRequest checks a code without consuming it.
type VerifyCodeRequest struct {
	Email   string               `json:"email"`
	Code    string               `json:"code"`
	Purpose verification.Purpose `json:"purpose,omitempty"`
}

type SignupRequest struct {
	Username         string `json:"username"`
	Email            string `json:"email"`
	Password         string `json:"password"`
	Name             string `json:"name"`
	VerificationCode string `json:"verificationCode"`
}

// ID accepts both numeric and string identifiers from the auth service.
type ID string

func (id *ID) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*id = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*id = ID(n.String())
	return nil
}

// Account is the auth service's representation of a created user.
type Account struct {
	ID       ID     `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Name     string `json:"name"`
}

type ResetPasswordRequest struct {
	Email            string `json:"email"`
	VerificationCode string `json:"verificationCode"`
	NewPassword      string `json:"newPassword"`
}

type FindUsernameRequest struct {
	Email            string `json:"email"`
	VerificationCode string `json:"verificationCode"`
}

// UpdateProfileRequest finalizes an email change. Empty fields are omitted.
type UpdateProfileRequest struct {
	Name             string `json:"name,omitempty"`
	Email            string `json:"email,omitempty"`
	VerificationCode string `json:"verificationCode,omitempty"`
}

// Profile is the signed-in account.
type Profile struct {
	ID       ID     `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Name     string `json:"name"`
}

// AuthAPI is the external auth service as seen by the verification flows.
// Calls carry the caller's credentials; see the authapi package for how
// they travel on the context.
type AuthAPI interface {
	SendCode(ctx context.Context, req SendCodeRequest) error
	VerifyCode(ctx context.Context, req VerifyCodeRequest) error
	Signup(ctx context.Context, req SignupRequest) (*Account, error)
	ResetPassword(ctx context.Context, req ResetPasswordRequest) error
	FindUsername(ctx context.Context, req FindUsernameRequest) (string, error)
	UpdateProfile(ctx context.Context, req UpdateProfileRequest) (*Profile, error)
	GetProfile(ctx context.Context) (*Profile, error)
	Ping(ctx context.Context) error
}
