package verification

import (
	"strings"
	"time"
)

// Purpose identifies what an issued one-time code may be used for.
type Purpose string

const (
	PurposeSignup        Purpose = "signup"
	PurposePasswordReset Purpose = "password_reset"
	PurposeEmailChange   Purpose = "email_change"
	PurposeFindUsername  Purpose = "find_username"
)

func (p Purpose) String() string {
	return string(p)
}

func (p Purpose) IsValid() bool {
	switch p {
	case PurposeSignup, PurposePasswordReset, PurposeEmailChange, PurposeFindUsername:
		return true
	default:
		return false
	}
}

// Session is the client-side view of one outstanding one-time code.
// Code is always digits only and at most CodeLength long; Verified is only
// set after a successful server verify call and drops back to false whenever
// the email or code changes or the code expires.
type Session struct {
	Purpose  Purpose   `json:"purpose"`
	Email    string    `json:"email"`
	IssuedAt time.Time `json:"issued_at"`
	Code     string    `json:"code"`
	Verified bool      `json:"verified"`
}

// NewSession creates an empty session for purpose.
func NewSession(purpose Purpose) Session {
	return Session{Purpose: purpose}
}

// Issued reports whether a code has been sent for the current email.
func (s *Session) Issued() bool {
	return !s.IssuedAt.IsZero()
}

// SetEmail updates the target address. A different address invalidates any
// outstanding code; the return value reports whether that happened.
func (s *Session) SetEmail(email string) bool {
	if email == s.Email {
		return false
	}
	s.Email = email
	if !s.Issued() && s.Code == "" && !s.Verified {
		return false
	}
	s.Invalidate()
	return true
}

// SetCode normalises raw and stores it, resetting Verified when the value changes.
func (s *Session) SetCode(raw string) bool {
	code := NormalizeCode(raw)
	if code == s.Code {
		return false
	}
	s.Code = code
	s.Verified = false
	return true
}

// Issue records a freshly sent code.
func (s *Session) Issue(now time.Time) {
	s.IssuedAt = now
	s.Code = ""
	s.Verified = false
}

// Invalidate forgets the outstanding code entirely.
func (s *Session) Invalidate() {
	s.IssuedAt = time.Time{}
	s.Code = ""
	s.Verified = false
}

// Expire clears the entered code after the countdown ran out. IssuedAt is kept
// so the countdown keeps reporting expiry until a new code is sent.
func (s *Session) Expire() bool {
	if s.Code == "" && !s.Verified {
		return false
	}
	s.Code = ""
	s.Verified = false
	return true
}

// MarkVerified records a successful server-side check of the current code.
func (s *Session) MarkVerified() {
	s.Verified = true
}

// CodeComplete reports whether a full-length code has been entered.
func (s *Session) CodeComplete() bool {
	return len(s.Code) == CodeLength
}

// Countdown derives the remaining validity of the outstanding code.
func (s *Session) Countdown(active bool, now time.Time) CountdownState {
	return Compute(active, s.IssuedAt, now)
}

// TrimEmail normalises user supplied addresses before they are compared or sent.
func TrimEmail(email string) string {
	return strings.TrimSpace(email)
}
