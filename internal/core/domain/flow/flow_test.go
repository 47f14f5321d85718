package flow_test

import (
	"testing"
	"time"

	"github.com/goldkiwi/storefront/internal/core/domain/flow"
	"github.com/goldkiwi/storefront/internal/core/domain/verification"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func sent(t *testing.T, f *flow.Flow, now time.Time) {
	t.Helper()
	cmd, err := f.BeginSend(now)
	require.NoError(t, err)
	require.True(t, f.CompleteSend(now, cmd, flow.Success()))
	require.Equal(t, flow.StepAwaitingCode, f.Step)
}

func TestParseKind(t *testing.T) {
	k, err := flow.ParseKind("password-reset")
	require.NoError(t, err)
	require.Equal(t, flow.KindPasswordReset, k)
	require.Equal(t, "password-reset", k.Slug())

	k, err = flow.ParseKind("find_username")
	require.NoError(t, err)
	require.Equal(t, verification.PurposeFindUsername, k.Purpose())

	_, err = flow.ParseKind("login")
	require.ErrorIs(t, err, flow.ErrUnknownKind)
}

func TestSignupScenario(t *testing.T) {
	f := flow.New(flow.KindSignup, t0)
	require.NoError(t, f.SetEmail(t0, "a@x.com"))
	require.NoError(t, f.SetDetails(t0, "kim", "Kim"))
	require.True(t, f.View(t0).Actions.CanSend)

	sent(t, f, t0)
	require.Equal(t, flow.MessageSuccess, f.Message.Type)

	require.NoError(t, f.SetCode(t0.Add(5*time.Second), "12a3456"))
	require.Equal(t, "123456", f.Session.Code)

	at170 := t0.Add(170 * time.Second)
	v := f.View(at170)
	require.Equal(t, "0:10", v.Countdown.Display)
	require.True(t, v.Actions.CanVerify)
	require.False(t, v.Actions.CanSubmit)

	at181 := t0.Add(181 * time.Second)
	require.True(t, f.Tick(at181))
	require.False(t, f.Tick(at181))
	v = f.View(at181)
	require.True(t, v.Countdown.Expired)
	require.Empty(t, v.Code)
	require.False(t, v.Verified)
	require.False(t, v.Actions.CanVerify)
	require.False(t, v.Actions.CanSubmit)
	require.False(t, v.Actions.CodeEditable)
	require.True(t, v.Actions.CanResend)

	err := f.SetCode(at181, "123456")
	require.True(t, flow.IsValidation(err))

	// resend re-arms from the full duration
	sent(t, f, at181)
	require.Equal(t, 180, f.View(at181).Countdown.RemainingSeconds)
}

func TestSignupVerifyThenSubmit(t *testing.T) {
	f := flow.New(flow.KindSignup, t0)
	require.NoError(t, f.SetEmail(t0, "a@x.com"))
	require.NoError(t, f.SetDetails(t0, "kim", "Kim"))
	sent(t, f, t0)
	require.NoError(t, f.SetCode(t0, "123456"))

	_, err := f.BeginFinalize(t0, flow.FinalizeInput{Password: "longenough"})
	require.True(t, flow.IsValidation(err))

	vc, err := f.BeginVerify(t0)
	require.NoError(t, err)
	_, err = f.BeginVerify(t0)
	require.ErrorIs(t, err, flow.ErrRequestInFlight)
	require.True(t, f.CompleteVerify(t0, vc, flow.Success()))
	require.True(t, f.Session.Verified)
	require.True(t, f.View(t0).Actions.CanSubmit)

	_, err = f.BeginFinalize(t0, flow.FinalizeInput{Password: "short"})
	require.EqualError(t, err, "password must be a minimum 8 characters")

	fc, err := f.BeginFinalize(t0, flow.FinalizeInput{Password: "longenough", ConfirmPassword: "longenough"})
	require.NoError(t, err)
	require.Equal(t, "kim", fc.Username)
	require.Equal(t, "longenough", fc.Password)

	require.True(t, f.CompleteFinalize(t0, fc, flow.Outcome{AccountID: "42"}))
	require.Equal(t, flow.StepCompleted, f.Step)
	require.Equal(t, "/login", f.Result.RedirectTo)
	require.Equal(t, "42", f.Result.AccountID)
	require.False(t, f.Session.Issued())
	require.Empty(t, f.Session.Code)
}

func TestEmailChangeScenario(t *testing.T) {
	f := flow.New(flow.KindEmailChange, t0)
	f.SetProfile("old@x.com", "Kim")
	require.NoError(t, f.SetEmail(t0, "old@x.com"))
	_, err := f.BeginSend(t0)
	require.True(t, flow.IsValidation(err))
	require.Equal(t, flow.MessageError, f.Message.Type)

	require.NoError(t, f.SetEmail(t0, "a@x.com"))
	sent(t, f, t0)
	require.NoError(t, f.SetCode(t0, "654321"))
	vc, err := f.BeginVerify(t0)
	require.NoError(t, err)
	require.True(t, f.CompleteVerify(t0, vc, flow.Success()))
	require.True(t, f.Session.Verified)

	epoch := f.Epoch
	require.NoError(t, f.SetEmail(t0, "b@x.com"))
	require.Equal(t, flow.StepCollecting, f.Step)
	require.False(t, f.Session.Issued())
	require.Empty(t, f.Session.Code)
	require.False(t, f.Session.Verified)
	require.Greater(t, f.Epoch, epoch)
}

func TestStaleVerifyResultIgnored(t *testing.T) {
	f := flow.New(flow.KindEmailChange, t0)
	require.NoError(t, f.SetEmail(t0, "a@x.com"))
	sent(t, f, t0)
	require.NoError(t, f.SetCode(t0, "111111"))
	vc, err := f.BeginVerify(t0)
	require.NoError(t, err)

	require.NoError(t, f.SetCode(t0, "222222"))
	require.False(t, f.CompleteVerify(t0, vc, flow.Success()))
	require.False(t, f.Session.Verified)

	vc, err = f.BeginVerify(t0)
	require.NoError(t, err)
	require.NoError(t, f.SetEmail(t0, "b@x.com"))
	require.False(t, f.CompleteVerify(t0, vc, flow.Success()))
}

func TestVerifyFailureKeepsUnverified(t *testing.T) {
	f := flow.New(flow.KindSignup, t0)
	f.SetEmail(t0, "a@x.com")
	f.SetDetails(t0, "kim", "Kim")
	sent(t, f, t0)
	f.SetCode(t0, "123456")
	vc, err := f.BeginVerify(t0)
	require.NoError(t, err)
	require.True(t, f.CompleteVerify(t0, vc, flow.Failure("invalid code")))
	require.False(t, f.Session.Verified)
	require.Equal(t, flow.RequestFailed, f.Requests.Verify.Status)
	require.Equal(t, "invalid code", f.Message.Text)
}

func TestPasswordResetRejectsShortPasswordBeforeSending(t *testing.T) {
	f := flow.New(flow.KindPasswordReset, t0)
	f.SetEmail(t0, "a@x.com")
	sent(t, f, t0)
	require.NoError(t, f.SetCode(t0, "123456"))

	_, err := f.BeginFinalize(t0, flow.FinalizeInput{Password: "short", ConfirmPassword: "short"})
	require.EqualError(t, err, "password must be a minimum 8 characters")
	require.Equal(t, flow.RequestIdle, f.Requests.Finalize.Status)
	require.Equal(t, flow.StepAwaitingCode, f.Step)

	_, err = f.BeginFinalize(t0, flow.FinalizeInput{Password: "longenough", ConfirmPassword: "different"})
	require.True(t, flow.IsValidation(err))

	_, err = f.BeginVerify(t0)
	require.ErrorIs(t, err, flow.ErrNotSupported)

	fc, err := f.BeginFinalize(t0, flow.FinalizeInput{Password: "longenough", ConfirmPassword: "longenough"})
	require.NoError(t, err)
	require.True(t, f.CompleteFinalize(t0, fc, flow.Failure("code mismatch")))
	require.Equal(t, flow.StepAwaitingCode, f.Step)

	fc, err = f.BeginFinalize(t0, flow.FinalizeInput{Password: "longenough", ConfirmPassword: "longenough"})
	require.NoError(t, err)
	require.True(t, f.CompleteFinalize(t0, fc, flow.Success()))
	require.Equal(t, flow.StepCompleted, f.Step)
	require.Equal(t, int64(1500), f.View(t0).Result.RedirectAfterMS)
}

func TestFindUsername(t *testing.T) {
	f := flow.New(flow.KindFindUsername, t0)
	_, err := f.BeginSend(t0)
	require.True(t, flow.IsValidation(err))

	f.SetEmail(t0, "a@x.com")
	sent(t, f, t0)
	f.SetCode(t0, "123456")
	fc, err := f.BeginFinalize(t0, flow.FinalizeInput{})
	require.NoError(t, err)
	require.Empty(t, fc.Password)
	require.True(t, f.CompleteFinalize(t0, fc, flow.Outcome{Username: "kim"}))
	require.Equal(t, "kim", f.Result.Username)
	require.Contains(t, f.Message.Text, "kim")
}

func TestResumeAfterRedirect(t *testing.T) {
	now := t0.Add(30 * time.Second)
	p := verification.ResumeParams{Email: "a@x.com", SentAt: t0}
	f := flow.Resume(flow.KindPasswordReset, p, now)
	require.Equal(t, flow.StepAwaitingCode, f.Step)

	v := f.View(now)
	require.Equal(t, 150, v.Countdown.RemainingSeconds)
	require.Equal(t, "2:30", v.Countdown.Display)
	require.Contains(t, v.ResumeQuery, "email=a%40x.com")

	f = flow.Resume(flow.KindPasswordReset, verification.ResumeParams{}, now)
	require.Equal(t, flow.StepCollecting, f.Step)
	require.Empty(t, f.View(now).ResumeQuery)
}

func TestBack(t *testing.T) {
	f := flow.New(flow.KindFindUsername, t0)
	require.ErrorIs(t, f.Back(t0), flow.ErrWrongStep)
	f.SetEmail(t0, "a@x.com")
	sent(t, f, t0)
	f.SetCode(t0, "123")
	require.NoError(t, f.Back(t0))
	require.Equal(t, flow.StepCollecting, f.Step)
	require.False(t, f.Session.Issued())
	require.Empty(t, f.Session.Code)
	require.Equal(t, "a@x.com", f.Session.Email)
}

func TestIncompleteCodeBlocksVerifyAndSubmit(t *testing.T) {
	f := flow.New(flow.KindSignup, t0)
	f.SetEmail(t0, "a@x.com")
	f.SetDetails(t0, "kim", "Kim")
	sent(t, f, t0)
	for _, code := range []string{"", "1", "12345"} {
		f.SetCode(t0, code)
		v := f.View(t0)
		require.False(t, v.Actions.CanVerify)
		require.False(t, v.Actions.CanSubmit)
		_, err := f.BeginVerify(t0)
		require.True(t, flow.IsValidation(err))
	}
}

func TestSendFailureAndStaleSend(t *testing.T) {
	f := flow.New(flow.KindFindUsername, t0)
	f.SetEmail(t0, "a@x.com")
	cmd, err := f.BeginSend(t0)
	require.NoError(t, err)
	_, err = f.BeginSend(t0)
	require.ErrorIs(t, err, flow.ErrRequestInFlight)
	require.False(t, f.View(t0).Actions.CanSend)

	require.True(t, f.CompleteSend(t0, cmd, flow.Failure("mail server down")))
	require.Equal(t, flow.StepCollecting, f.Step)
	require.Equal(t, "mail server down", f.Message.Text)

	cmd, err = f.BeginSend(t0)
	require.NoError(t, err)
	f.SetEmail(t0, "b@x.com")
	require.False(t, f.CompleteSend(t0, cmd, flow.Success()))
	require.Equal(t, flow.StepCollecting, f.Step)
}

func TestReleaseAbandoned(t *testing.T) {
	f := flow.New(flow.KindFindUsername, t0)
	f.SetEmail(t0, "a@x.com")
	_, err := f.BeginSend(t0)
	require.NoError(t, err)

	require.False(t, f.ReleaseAbandoned(t0.Add(5*time.Second), 10*time.Second, ""))
	require.True(t, f.ReleaseAbandoned(t0.Add(10*time.Second), 10*time.Second, ""))
	require.Equal(t, flow.RequestFailed, f.Requests.Send.Status)
	require.NotNil(t, f.Message)
	require.Equal(t, flow.MessageError, f.Message.Type)
	require.Equal(t, "the request timed out, please try again", f.Message.Text)
	_, err = f.BeginSend(t0.Add(10 * time.Second))
	require.NoError(t, err)
}

func TestReleaseAbandoned_KeepsCompletingRequest(t *testing.T) {
	f := flow.New(flow.KindFindUsername, t0)
	f.SetEmail(t0, "a@x.com")
	cmd, err := f.BeginSend(t0)
	require.NoError(t, err)

	require.False(t, f.ReleaseAbandoned(t0.Add(time.Minute), 10*time.Second, flow.OpSend))
	require.Nil(t, f.Message)
	require.True(t, f.CompleteSend(t0.Add(time.Minute), cmd, flow.Success()))
	require.Equal(t, flow.StepAwaitingCode, f.Step)
}
