package flow

import (
	"strings"
	"time"

	"github.com/goldkiwi/storefront/internal/core/domain/verification"
	"github.com/google/uuid"
)

const (
	MinPasswordLength = 8

	// PasswordResetRedirectDelay is how long the success message stays up
	// before the browser is sent to the login page.
	PasswordResetRedirectDelay = 1500 * time.Millisecond
	LoginPath                  = "/login"
)

// RequestStatus is the lifecycle of one network call.
type RequestStatus string

const (
	RequestIdle      RequestStatus = "idle"
	RequestInFlight  RequestStatus = "in_flight"
	RequestSucceeded RequestStatus = "succeeded"
	RequestFailed    RequestStatus = "failed"
)

// RequestState tracks the latest call of one operation.
type RequestState struct {
	Status    RequestStatus `json:"status"`
	Message   string        `json:"message,omitempty"`
	StartedAt time.Time     `json:"started_at,omitempty"`
}

func (r RequestState) InFlight() bool {
	return r.Status == RequestInFlight
}

// Requests holds the request state per operation.
type Requests struct {
	Send     RequestState `json:"send"`
	Verify   RequestState `json:"verify"`
	Finalize RequestState `json:"finalize"`
}

func idleRequests() Requests {
	return Requests{
		Send:     RequestState{Status: RequestIdle},
		Verify:   RequestState{Status: RequestIdle},
		Finalize: RequestState{Status: RequestIdle},
	}
}

func (r *Requests) state(op Operation) *RequestState {
	switch op {
	case OpSend:
		return &r.Send
	case OpVerify:
		return &r.Verify
	default:
		return &r.Finalize
	}
}

type MessageType string

const (
	MessageSuccess MessageType = "success"
	MessageError   MessageType = "error"
)

// Message is the user-visible feedback line.
type Message struct {
	Type MessageType `json:"type"`
	Text string      `json:"text"`
}

// Result is what a completed flow produced.
type Result struct {
	Username      string        `json:"username,omitempty"`
	AccountID     string        `json:"account_id,omitempty"`
	Email         string        `json:"email,omitempty"`
	RedirectTo    string        `json:"redirect_to,omitempty"`
	RedirectAfter time.Duration `json:"redirect_after,omitempty"`
}

// Flow is one running verification workflow. All methods are pure: the
// caller passes the current time and performs the network calls described by
// the Begin* commands.
type Flow struct {
	ID           uuid.UUID            `json:"id"`
	Kind         Kind                 `json:"kind"`
	Step         Step                 `json:"step"`
	Session      verification.Session `json:"session"`
	Username     string               `json:"username,omitempty"`
	Name         string               `json:"name,omitempty"`
	CurrentEmail string               `json:"current_email,omitempty"`
	Epoch        int                  `json:"epoch"`
	Message      *Message             `json:"message,omitempty"`
	Requests     Requests             `json:"requests"`
	Result       *Result              `json:"result,omitempty"`
	CreatedAt    time.Time            `json:"created_at"`
	UpdatedAt    time.Time            `json:"updated_at"`
	// Version counts saves. The repository only writes a flow whose stored
	// version still matches.
	Version      int64                `json:"version"`
}

// New creates a flow in the collecting step.
func New(kind Kind, now time.Time) *Flow {
	return &Flow{
		ID:        uuid.New(),
		Kind:      kind,
		Step:      StepCollecting,
		Session:   verification.NewSession(kind.Purpose()),
		Requests:  idleRequests(),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Resume creates a flow hydrated from navigation state. A resumable set of
// params opens the flow directly in the awaiting-code step.
func Resume(kind Kind, params verification.ResumeParams, now time.Time) *Flow {
	f := New(kind, now)
	f.Session.Email = params.Email
	f.Username = params.Username
	f.Name = params.Name
	if params.IsResumable() {
		f.Step = StepAwaitingCode
		f.Session.IssuedAt = params.IssuedAt(now)
	}
	return f
}

// SetProfile records the signed-in account for the email-change flow.
func (f *Flow) SetProfile(email, name string) {
	f.CurrentEmail = email
	if f.Name == "" {
		f.Name = name
	}
}

// SetEmail updates the target address. A different address drops any issued
// code together with its verification and returns to collecting.
func (f *Flow) SetEmail(now time.Time, email string) error {
	if f.Step == StepCompleted {
		return ErrWrongStep
	}
	email = verification.TrimEmail(email)
	if email == f.Session.Email {
		return nil
	}
	f.Session.SetEmail(email)
	f.Epoch++
	f.Requests = idleRequests()
	f.Message = nil
	if f.Step == StepAwaitingCode {
		f.Step = StepCollecting
	}
	f.UpdatedAt = now
	return nil
}

// SetCode stores the normalised code. It is rejected outside the awaiting
// step and once the code has expired.
func (f *Flow) SetCode(now time.Time, raw string) error {
	if f.Step != StepAwaitingCode {
		return ErrWrongStep
	}
	if f.expired(now) {
		f.Tick(now)
		return f.fail(now, msgCodeExpired)
	}
	if f.Session.SetCode(raw) {
		if f.Requests.Verify.InFlight() {
			f.Requests.Verify = RequestState{Status: RequestIdle}
		}
		f.UpdatedAt = now
	}
	return nil
}

// SetDetails updates the account details collected alongside the email.
// Empty values leave the current ones untouched.
func (f *Flow) SetDetails(now time.Time, username, name string) error {
	if f.Step == StepCompleted {
		return ErrWrongStep
	}
	if u := strings.TrimSpace(username); u != "" {
		f.Username = u
	}
	if n := strings.TrimSpace(name); n != "" {
		f.Name = n
	}
	f.UpdatedAt = now
	return nil
}

// Tick applies expiry: once the countdown reached zero the entered code and
// its verification are dropped. It reports whether anything changed.
func (f *Flow) Tick(now time.Time) bool {
	if !f.expired(now) {
		return false
	}
	if !f.Session.Expire() {
		return false
	}
	f.UpdatedAt = now
	return true
}

// Back returns from the awaiting step to collecting and forgets the code.
func (f *Flow) Back(now time.Time) error {
	if f.Step != StepAwaitingCode {
		return ErrWrongStep
	}
	f.Step = StepCollecting
	f.Session.Invalidate()
	f.Epoch++
	f.Requests = idleRequests()
	f.Message = nil
	f.UpdatedAt = now
	return nil
}

// ReleaseAbandoned marks requests that have been in flight for longer than
// after as failed so the operation can be issued again. The request for
// keep is left alone; its caller is about to complete it.
func (f *Flow) ReleaseAbandoned(now time.Time, after time.Duration, keep Operation) bool {
	released := false
	for _, op := range []Operation{OpSend, OpVerify, OpFinalize} {
		if op == keep {
			continue
		}
		r := f.Requests.state(op)
		if r.InFlight() && now.Sub(r.StartedAt) >= after {
			*r = RequestState{Status: RequestFailed, Message: msgRequestAbandoned}
			released = true
		}
	}
	if released {
		f.Message = &Message{Type: MessageError, Text: msgRequestAbandoned}
		f.UpdatedAt = now
	}
	return released
}

// Countdown derives the code validity for the current step.
func (f *Flow) Countdown(now time.Time) verification.CountdownState {
	return f.Session.Countdown(f.Step == StepAwaitingCode, now)
}

func (f *Flow) expired(now time.Time) bool {
	return f.Countdown(now).Expired
}

func (f *Flow) fail(now time.Time, text string) error {
	f.Message = &Message{Type: MessageError, Text: text}
	f.UpdatedAt = now
	return &ValidationError{Message: text}
}

func (f *Flow) succeed(text string) {
	f.Message = &Message{Type: MessageSuccess, Text: text}
}
