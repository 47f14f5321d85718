package flow

import (
	"fmt"
	"strings"
	"time"

	"github.com/goldkiwi/storefront/internal/core/domain/verification"
)

const (
	msgEmailRequired      = "please enter your email"
	msgDetailsRequired    = "username and name are required"
	msgSameEmail          = "the new email is the same as your current email"
	msgCodeIncomplete     = "please enter the 6-digit verification code"
	msgCodeExpired        = "the verification code has expired, please request a new one"
	msgNotVerified        = "please verify your email first"
	msgPasswordTooShort   = "password must be a minimum 8 characters"
	msgPasswordMismatch   = "passwords do not match"
	msgRequestAbandoned   = "the request timed out, please try again"
	msgCodeSent           = "a verification code has been sent to your email"
	msgCodeVerified       = "your email has been verified"
	msgSignedUp           = "your account has been created"
	msgPasswordReset      = "your password has been reset"
	msgEmailChanged       = "your email has been changed"
	msgUsernameRecoveredF = "your username is %s"
)

// SendCommand describes the send-code call to perform.
type SendCommand struct {
	Epoch    int
	Purpose  verification.Purpose
	Email    string
	Username string
	Name     string
}

// VerifyCommand describes the non-consuming code check to perform.
type VerifyCommand struct {
	Epoch   int
	Purpose verification.Purpose
	Email   string
	Code    string
}

// FinalizeInput carries the values only known at submit time. Passwords
// never become part of the flow state.
type FinalizeInput struct {
	Password        string
	ConfirmPassword string
	Name            string
}

// FinalizeCommand describes the code-consuming call for the flow's kind.
type FinalizeCommand struct {
	Epoch    int
	Kind     Kind
	Email    string
	Code     string
	Username string
	Name     string
	Password string
}

// Outcome is the result of performing a command. Message is the normalised
// error text when Failed is set.
type Outcome struct {
	Failed    bool
	Message   string
	AccountID string
	Username  string
}

func Success() Outcome {
	return Outcome{}
}

func Failure(message string) Outcome {
	return Outcome{Failed: true, Message: message}
}

// BeginSend validates the collected fields and marks a send in flight.
// It serves both the first send and every resend.
func (f *Flow) BeginSend(now time.Time) (SendCommand, error) {
	if f.Step == StepCompleted {
		return SendCommand{}, ErrWrongStep
	}
	if f.Requests.Send.InFlight() {
		return SendCommand{}, ErrRequestInFlight
	}
	email := f.Session.Email
	if email == "" {
		return SendCommand{}, f.fail(now, msgEmailRequired)
	}
	switch f.Kind {
	case KindSignup:
		if f.Username == "" || f.Name == "" {
			return SendCommand{}, f.fail(now, msgDetailsRequired)
		}
	case KindEmailChange:
		if f.CurrentEmail != "" && strings.EqualFold(email, f.CurrentEmail) {
			return SendCommand{}, f.fail(now, msgSameEmail)
		}
	}

	f.start(now, OpSend)
	return SendCommand{
		Epoch:    f.Epoch,
		Purpose:  f.Kind.Purpose(),
		Email:    email,
		Username: f.Username,
		Name:     f.Name,
	}, nil
}

// CompleteSend applies the send result. A success moves to the awaiting step
// with a fresh issuance, which also invalidates every older outstanding
// response. It reports false when the result was stale and dropped.
func (f *Flow) CompleteSend(now time.Time, cmd SendCommand, out Outcome) bool {
	if cmd.Epoch != f.Epoch || !f.Requests.Send.InFlight() {
		return false
	}
	if out.Failed {
		f.finish(now, OpSend, out)
		return true
	}
	f.Step = StepAwaitingCode
	f.Session.Issue(now)
	f.Epoch++
	f.Requests = idleRequests()
	f.finish(now, OpSend, out)
	f.succeed(msgCodeSent)
	return true
}

// BeginVerify guards and starts the standalone code check.
func (f *Flow) BeginVerify(now time.Time) (VerifyCommand, error) {
	if !f.Kind.RequiresVerify() {
		return VerifyCommand{}, ErrNotSupported
	}
	if f.Step != StepAwaitingCode {
		return VerifyCommand{}, ErrWrongStep
	}
	if f.Requests.Verify.InFlight() {
		return VerifyCommand{}, ErrRequestInFlight
	}
	if err := f.checkCode(now); err != nil {
		return VerifyCommand{}, err
	}

	f.start(now, OpVerify)
	return VerifyCommand{
		Epoch:   f.Epoch,
		Purpose: f.Kind.Purpose(),
		Email:   f.Session.Email,
		Code:    f.Session.Code,
	}, nil
}

// CompleteVerify applies the check result unless the issuance or the entered
// code changed since the command was issued.
func (f *Flow) CompleteVerify(now time.Time, cmd VerifyCommand, out Outcome) bool {
	if cmd.Epoch != f.Epoch || cmd.Code != f.Session.Code || !f.Requests.Verify.InFlight() {
		return false
	}
	if !out.Failed {
		f.Session.MarkVerified()
	}
	f.finish(now, OpVerify, out)
	if !out.Failed {
		f.succeed(msgCodeVerified)
	}
	return true
}

// BeginFinalize runs the per-kind validation and starts the code-consuming call.
func (f *Flow) BeginFinalize(now time.Time, in FinalizeInput) (FinalizeCommand, error) {
	if f.Step != StepAwaitingCode {
		return FinalizeCommand{}, ErrWrongStep
	}
	if f.Requests.Finalize.InFlight() {
		return FinalizeCommand{}, ErrRequestInFlight
	}
	if err := f.checkCode(now); err != nil {
		return FinalizeCommand{}, err
	}
	if f.Kind.RequiresVerify() && !f.Session.Verified {
		return FinalizeCommand{}, f.fail(now, msgNotVerified)
	}

	name := f.Name
	if n := strings.TrimSpace(in.Name); n != "" {
		name = n
	}
	switch f.Kind {
	case KindPasswordReset:
		if len(in.Password) < MinPasswordLength {
			return FinalizeCommand{}, f.fail(now, msgPasswordTooShort)
		}
		if in.Password != in.ConfirmPassword {
			return FinalizeCommand{}, f.fail(now, msgPasswordMismatch)
		}
	case KindSignup:
		if f.Username == "" || name == "" {
			return FinalizeCommand{}, f.fail(now, msgDetailsRequired)
		}
		if len(in.Password) < MinPasswordLength {
			return FinalizeCommand{}, f.fail(now, msgPasswordTooShort)
		}
		if in.ConfirmPassword != "" && in.Password != in.ConfirmPassword {
			return FinalizeCommand{}, f.fail(now, msgPasswordMismatch)
		}
	case KindEmailChange:
		if f.CurrentEmail != "" && strings.EqualFold(f.Session.Email, f.CurrentEmail) {
			return FinalizeCommand{}, f.fail(now, msgSameEmail)
		}
	}

	f.Name = name
	f.start(now, OpFinalize)
	cmd := FinalizeCommand{
		Epoch:    f.Epoch,
		Kind:     f.Kind,
		Email:    f.Session.Email,
		Code:     f.Session.Code,
		Username: f.Username,
		Name:     name,
	}
	if f.Kind == KindSignup || f.Kind == KindPasswordReset {
		cmd.Password = in.Password
	}
	return cmd, nil
}

// CompleteFinalize applies the finalize result. A success completes the flow
// and records what it produced; a failure leaves the flow awaiting the code.
func (f *Flow) CompleteFinalize(now time.Time, cmd FinalizeCommand, out Outcome) bool {
	if cmd.Epoch != f.Epoch || !f.Requests.Finalize.InFlight() {
		return false
	}
	f.finish(now, OpFinalize, out)
	if out.Failed {
		return true
	}

	res := &Result{Email: cmd.Email}
	text := ""
	switch f.Kind {
	case KindSignup:
		res.AccountID = out.AccountID
		res.Username = cmd.Username
		res.RedirectTo = LoginPath
		text = msgSignedUp
	case KindPasswordReset:
		res.RedirectTo = LoginPath
		res.RedirectAfter = PasswordResetRedirectDelay
		text = msgPasswordReset
	case KindFindUsername:
		res.Username = out.Username
		text = fmt.Sprintf(msgUsernameRecoveredF, out.Username)
	case KindEmailChange:
		f.CurrentEmail = cmd.Email
		text = msgEmailChanged
	}
	f.Result = res
	f.Step = StepCompleted
	f.Session.Invalidate()
	f.Epoch++
	f.succeed(text)
	return true
}

func (f *Flow) checkCode(now time.Time) error {
	if f.expired(now) {
		f.Tick(now)
		return f.fail(now, msgCodeExpired)
	}
	if !f.Session.CodeComplete() {
		return f.fail(now, msgCodeIncomplete)
	}
	return nil
}

func (f *Flow) start(now time.Time, op Operation) {
	*f.Requests.state(op) = RequestState{Status: RequestInFlight, StartedAt: now}
	f.Message = nil
	f.UpdatedAt = now
}

func (f *Flow) finish(now time.Time, op Operation, out Outcome) {
	r := f.Requests.state(op)
	if out.Failed {
		*r = RequestState{Status: RequestFailed, Message: out.Message}
		f.Message = &Message{Type: MessageError, Text: out.Message}
	} else {
		*r = RequestState{Status: RequestSucceeded}
	}
	f.UpdatedAt = now
}
