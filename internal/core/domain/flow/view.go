package flow

import (
	"time"

	"github.com/goldkiwi/storefront/internal/core/domain/verification"
	"github.com/google/uuid"
)

// Actions lists what the user may do next.
type Actions struct {
	CanSend      bool `json:"can_send"`
	CanResend    bool `json:"can_resend"`
	CanVerify    bool `json:"can_verify"`
	CanSubmit    bool `json:"can_submit"`
	CanBack      bool `json:"can_back"`
	CodeEditable bool `json:"code_editable"`
}

// CountdownView is the countdown as shown next to the code input.
type CountdownView struct {
	verification.CountdownState
	Display string `json:"display"`
}

// ResultView mirrors Result with the delay in milliseconds.
type ResultView struct {
	Username        string `json:"username,omitempty"`
	AccountID       string `json:"account_id,omitempty"`
	Email           string `json:"email,omitempty"`
	RedirectTo      string `json:"redirect_to,omitempty"`
	RedirectAfterMS int64  `json:"redirect_after_ms,omitempty"`
}

// View is the read model of a flow at a point in time.
type View struct {
	ID           uuid.UUID     `json:"id"`
	Kind         Kind          `json:"kind"`
	Step         Step          `json:"step"`
	Email        string        `json:"email"`
	Username     string        `json:"username,omitempty"`
	Name         string        `json:"name,omitempty"`
	CurrentEmail string        `json:"current_email,omitempty"`
	Code         string        `json:"code"`
	Verified     bool          `json:"verified"`
	IssuedAt     *time.Time    `json:"issued_at,omitempty"`
	Countdown    CountdownView `json:"countdown"`
	Message      *Message      `json:"message,omitempty"`
	Requests     Requests      `json:"requests"`
	Actions      Actions       `json:"actions"`
	Result       *ResultView   `json:"result,omitempty"`
	ResumeQuery  string        `json:"resume_query,omitempty"`
}

// View derives the read model. It does not modify the flow; callers that
// want expiry applied call Tick first.
func (f *Flow) View(now time.Time) View {
	cd := f.Countdown(now)
	awaiting := f.Step == StepAwaitingCode
	codeReady := awaiting && f.Session.CodeComplete() && !cd.Expired

	v := View{
		ID:           f.ID,
		Kind:         f.Kind,
		Step:         f.Step,
		Email:        f.Session.Email,
		Username:     f.Username,
		Name:         f.Name,
		CurrentEmail: f.CurrentEmail,
		Code:         f.Session.Code,
		Verified:     f.Session.Verified,
		Countdown:    CountdownView{CountdownState: cd, Display: cd.Formatted()},
		Message:      f.Message,
		Requests:     f.Requests,
		Actions: Actions{
			CanSend:      f.Step == StepCollecting && f.Session.Email != "" && !f.Requests.Send.InFlight(),
			CanResend:    awaiting && !f.Requests.Send.InFlight(),
			CanVerify:    f.Kind.RequiresVerify() && codeReady && !f.Requests.Verify.InFlight(),
			CanSubmit:    codeReady && (!f.Kind.RequiresVerify() || f.Session.Verified) && !f.Requests.Finalize.InFlight(),
			CanBack:      awaiting,
			CodeEditable: awaiting && !cd.Expired,
		},
	}
	if f.Session.Issued() {
		issued := f.Session.IssuedAt
		v.IssuedAt = &issued
	}
	if f.Result != nil {
		v.Result = &ResultView{
			Username:        f.Result.Username,
			AccountID:       f.Result.AccountID,
			Email:           f.Result.Email,
			RedirectTo:      f.Result.RedirectTo,
			RedirectAfterMS: f.Result.RedirectAfter.Milliseconds(),
		}
	}
	if awaiting {
		v.ResumeQuery = f.ResumeParams().Query().Encode()
	}
	return v
}

// ResumeParams captures the navigation state needed to reopen the flow in
// its current awaiting step.
func (f *Flow) ResumeParams() verification.ResumeParams {
	return verification.ResumeParams{
		Email:    f.Session.Email,
		SentAt:   f.Session.IssuedAt,
		Username: f.Username,
		Name:     f.Name,
	}
}
