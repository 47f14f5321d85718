package flow

import (
	"fmt"
	"strings"

	"github.com/goldkiwi/storefront/internal/core/domain/verification"
)

// Kind is the credential workflow a flow runs.
type Kind string

const (
	KindSignup        Kind = "signup"
	KindPasswordReset Kind = "password_reset"
	KindEmailChange   Kind = "email_change"
	KindFindUsername  Kind = "find_username"
)

// ParseKind accepts both the underscore and the URL (hyphenated) form.
func ParseKind(raw string) (Kind, error) {
	k := Kind(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(raw)), "-", "_"))
	switch k {
	case KindSignup, KindPasswordReset, KindEmailChange, KindFindUsername:
		return k, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, raw)
}

func (k Kind) String() string {
	return string(k)
}

// Slug is the hyphenated form used in URLs.
func (k Kind) Slug() string {
	return strings.ReplaceAll(string(k), "_", "-")
}

// Purpose maps the flow to the purpose sent with its verification codes.
func (k Kind) Purpose() verification.Purpose {
	switch k {
	case KindSignup:
		return verification.PurposeSignup
	case KindPasswordReset:
		return verification.PurposePasswordReset
	case KindEmailChange:
		return verification.PurposeEmailChange
	default:
		return verification.PurposeFindUsername
	}
}

// RequiresVerify reports whether the code must be checked on its own before
// the finalize call. The other kinds hand the code straight to finalize.
func (k Kind) RequiresVerify() bool {
	return k == KindSignup || k == KindEmailChange
}

// Step is the coarse position of a flow.
type Step string

const (
	StepCollecting   Step = "collecting"
	StepAwaitingCode Step = "awaiting_code"
	StepCompleted    Step = "completed"
)

// Operation names a network call a flow can have outstanding.
type Operation string

const (
	OpSend     Operation = "send"
	OpVerify   Operation = "verify"
	OpFinalize Operation = "finalize"
)
