package services_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	impl "github.com/goldkiwi/storefront/internal/application/services"
	"github.com/goldkiwi/storefront/internal/core/domain/flow"
	"github.com/goldkiwi/storefront/internal/core/domain/verification"
	"github.com/goldkiwi/storefront/internal/core/ports"
	"github.com/goldkiwi/storefront/internal/infrastructure/memory"
	"github.com/goldkiwi/storefront/internal/infrastructure/repositories"
	"github.com/goldkiwi/storefront/test/mocks"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	svc     *impl.FlowService
	api     *mocks.AuthAPIMock
	metrics *mocks.FlowMetricsMock
	clock   *clock
	repo    ports.FlowRepository
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clk := &clock{t: time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)}
	api := &mocks.AuthAPIMock{}
	metrics := &mocks.FlowMetricsMock{}
	repo := repositories.NewFlowCacheRepository(memory.NewCache())
	svc := impl.NewFlowService(repo, api, metrics, &impl.FlowServiceConfig{
		FlowTTL:        time.Hour,
		RequestTimeout: 10 * time.Second,
		Now:            clk.Now,
	}, nil)
	return &fixture{svc: svc, api: api, metrics: metrics, clock: clk, repo: repo}
}

func strp(s string) *string { return &s }

func TestFlowService_SignupScenario(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	var sent ports.SendCodeRequest
	fx.api.SendCodeFn = func(ctx context.Context, req ports.SendCodeRequest) error {
		sent = req
		return nil
	}

	f, err := fx.svc.Start(ctx, flow.KindSignup, verification.ResumeParams{})
	require.NoError(t, err)
	require.Equal(t, flow.StepCollecting, f.Step)

	f, err = fx.svc.Update(ctx, f.ID, ports.FieldChanges{Email: strp("a@x.com"), Username: strp("kim"), Name: strp("Kim")})
	require.NoError(t, err)

	f, err = fx.svc.SendCode(ctx, f.ID)
	require.NoError(t, err)
	require.Equal(t, flow.StepAwaitingCode, f.Step)
	require.Equal(t, verification.PurposeSignup, sent.Purpose)
	require.Equal(t, "kim", sent.Username)

	f, err = fx.svc.Update(ctx, f.ID, ports.FieldChanges{Code: strp("12-34-56")})
	require.NoError(t, err)
	require.Equal(t, "123456", f.Session.Code)

	fx.clock.Advance(170 * time.Second)
	f, err = fx.svc.Get(ctx, f.ID)
	require.NoError(t, err)
	require.Equal(t, "0:10", f.View(fx.clock.Now()).Countdown.Display)

	fx.clock.Advance(11 * time.Second)
	f, err = fx.svc.Get(ctx, f.ID)
	require.NoError(t, err)
	v := f.View(fx.clock.Now())
	require.True(t, v.Countdown.Expired)
	require.Empty(t, v.Code)
	require.False(t, v.Actions.CanVerify)

	_, err = fx.svc.VerifyCode(ctx, f.ID)
	require.True(t, flow.IsValidation(err))
	require.Equal(t, 0, fx.api.Calls("VerifyCode"))
}

func TestFlowService_VerifyAndSubmitSignup(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	var signup ports.SignupRequest
	fx.api.SignupFn = func(ctx context.Context, req ports.SignupRequest) (*ports.Account, error) {
		signup = req
		return &ports.Account{ID: "99"}, nil
	}

	f, _ := fx.svc.Start(ctx, flow.KindSignup, verification.ResumeParams{Email: "a@x.com", Username: "kim", Name: "Kim"})
	require.Equal(t, flow.StepAwaitingCode, f.Step)
	_, err := fx.svc.Update(ctx, f.ID, ports.FieldChanges{Code: strp("123456")})
	require.NoError(t, err)

	_, err = fx.svc.Submit(ctx, f.ID, flow.FinalizeInput{Password: "longenough"})
	require.True(t, flow.IsValidation(err))
	require.Equal(t, 0, fx.api.Calls("Signup"))

	f, err = fx.svc.VerifyCode(ctx, f.ID)
	require.NoError(t, err)
	require.True(t, f.Session.Verified)

	f, err = fx.svc.Submit(ctx, f.ID, flow.FinalizeInput{Password: "longenough"})
	require.NoError(t, err)
	require.Equal(t, flow.StepCompleted, f.Step)
	require.Equal(t, "99", f.Result.AccountID)
	require.Equal(t, "/login", f.Result.RedirectTo)
	require.Equal(t, "123456", signup.VerificationCode)
	require.Equal(t, "longenough", signup.Password)

	stored, err := fx.repo.Get(ctx, f.ID)
	require.NoError(t, err)
	require.Equal(t, flow.StepCompleted, stored.Step)
}

func TestFlowService_PasswordResetShortPasswordNeverCallsAPI(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	f, _ := fx.svc.Start(ctx, flow.KindPasswordReset, verification.ResumeParams{Email: "a@x.com"})
	_, err := fx.svc.Update(ctx, f.ID, ports.FieldChanges{Code: strp("123456")})
	require.NoError(t, err)

	f, err = fx.svc.Submit(ctx, f.ID, flow.FinalizeInput{Password: "short", ConfirmPassword: "short"})
	require.EqualError(t, err, "password must be a minimum 8 characters")
	require.NotNil(t, f)
	require.Equal(t, "password must be a minimum 8 characters", f.Message.Text)
	require.Equal(t, 0, fx.api.TotalCalls())
	require.Contains(t, fx.metrics.Snapshot(), "password_reset/finalize/invalid")
}

func TestFlowService_UpstreamFailure(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	fx.api.SendCodeFn = func(ctx context.Context, req ports.SendCodeRequest) error {
		return &ports.APIError{StatusCode: 429, Message: "too many requests"}
	}

	f, _ := fx.svc.Start(ctx, flow.KindFindUsername, verification.ResumeParams{})
	_, _ = fx.svc.Update(ctx, f.ID, ports.FieldChanges{Email: strp("a@x.com")})
	f, err := fx.svc.SendCode(ctx, f.ID)
	require.ErrorIs(t, err, ports.ErrUpstream)
	require.Equal(t, flow.StepCollecting, f.Step)
	require.Equal(t, "too many requests", f.Message.Text)
	require.Equal(t, flow.RequestFailed, f.Requests.Send.Status)
	require.Contains(t, fx.metrics.Snapshot(), "find_username/send/failure")

	fx.api.SendCodeFn = func(ctx context.Context, req ports.SendCodeRequest) error { return &ports.APIError{StatusCode: 500} }
	f, err = fx.svc.SendCode(ctx, f.ID)
	require.ErrorIs(t, err, ports.ErrUpstream)
	require.Equal(t, ports.MsgSendCodeFailed, f.Message.Text)
}

func TestFlowService_EmailChangeLoadsProfile(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	fx.api.GetProfileFn = func(ctx context.Context) (*ports.Profile, error) {
		return &ports.Profile{Email: "old@x.com", Name: "Kim"}, nil
	}
	var updated ports.UpdateProfileRequest
	fx.api.UpdateProfileFn = func(ctx context.Context, req ports.UpdateProfileRequest) (*ports.Profile, error) {
		updated = req
		return &ports.Profile{Email: req.Email}, nil
	}

	f, err := fx.svc.Start(ctx, flow.KindEmailChange, verification.ResumeParams{})
	require.NoError(t, err)
	require.Equal(t, "old@x.com", f.CurrentEmail)

	_, _ = fx.svc.Update(ctx, f.ID, ports.FieldChanges{Email: strp("old@x.com")})
	_, err = fx.svc.SendCode(ctx, f.ID)
	require.True(t, flow.IsValidation(err))

	_, _ = fx.svc.Update(ctx, f.ID, ports.FieldChanges{Email: strp("new@x.com")})
	_, err = fx.svc.SendCode(ctx, f.ID)
	require.NoError(t, err)
	_, _ = fx.svc.Update(ctx, f.ID, ports.FieldChanges{Code: strp("123456")})
	f, err = fx.svc.VerifyCode(ctx, f.ID)
	require.NoError(t, err)
	require.True(t, f.Session.Verified)

	f, err = fx.svc.Update(ctx, f.ID, ports.FieldChanges{Email: strp("other@x.com")})
	require.NoError(t, err)
	require.False(t, f.Session.Verified)
	require.False(t, f.Session.Issued())
	require.Equal(t, flow.StepCollecting, f.Step)

	_, _ = fx.svc.Update(ctx, f.ID, ports.FieldChanges{Email: strp("new@x.com")})
	_, _ = fx.svc.SendCode(ctx, f.ID)
	_, _ = fx.svc.Update(ctx, f.ID, ports.FieldChanges{Code: strp("654321")})
	_, err = fx.svc.VerifyCode(ctx, f.ID)
	require.NoError(t, err)
	f, err = fx.svc.Submit(ctx, f.ID, flow.FinalizeInput{})
	require.NoError(t, err)
	require.Equal(t, flow.StepCompleted, f.Step)
	require.Equal(t, "new@x.com", updated.Email)
	require.Equal(t, "654321", updated.VerificationCode)
	require.Equal(t, "Kim", updated.Name)
}

func TestFlowService_EmailChangeRequiresSession(t *testing.T) {
	fx := newFixture(t)
	fx.api.GetProfileFn = func(ctx context.Context) (*ports.Profile, error) {
		return nil, &ports.APIError{StatusCode: 401, Message: "Unauthorized"}
	}
	_, err := fx.svc.Start(context.Background(), flow.KindEmailChange, verification.ResumeParams{})
	require.ErrorIs(t, err, ports.ErrUnauthorized)
}

func TestFlowService_DuplicateSendsAreCoalesced(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	release := make(chan struct{})
	started := make(chan struct{}, 4)
	fx.api.SendCodeFn = func(ctx context.Context, req ports.SendCodeRequest) error {
		started <- struct{}{}
		<-release
		return nil
	}

	f, _ := fx.svc.Start(ctx, flow.KindFindUsername, verification.ResumeParams{})
	_, _ = fx.svc.Update(ctx, f.ID, ports.FieldChanges{Email: strp("a@x.com")})

	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, errs[0] = fx.svc.SendCode(ctx, f.ID)
	}()
	<-started

	wg.Add(1)
	go func() {
		defer wg.Done()
		_, errs[1] = fx.svc.SendCode(ctx, f.ID)
	}()
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	require.Equal(t, 1, fx.api.Calls("SendCode"))
	for _, err := range errs {
		if err != nil {
			require.ErrorIs(t, err, flow.ErrRequestInFlight)
		}
	}
	got, err := fx.svc.Get(ctx, f.ID)
	require.NoError(t, err)
	require.Equal(t, flow.StepAwaitingCode, got.Step)
}

func TestFlowService_PersistedInFlightRejectsAndExpires(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	// another replica has a send in flight
	f := flow.New(flow.KindFindUsername, fx.clock.Now())
	require.NoError(t, f.SetEmail(fx.clock.Now(), "a@x.com"))
	_, err := f.BeginSend(fx.clock.Now())
	require.NoError(t, err)
	require.NoError(t, fx.repo.Save(ctx, f, time.Hour))

	_, err = fx.svc.SendCode(ctx, f.ID)
	require.ErrorIs(t, err, flow.ErrRequestInFlight)
	require.Equal(t, 0, fx.api.Calls("SendCode"))

	// released only well past the call timeout
	fx.clock.Advance(20 * time.Second)
	_, err = fx.svc.SendCode(ctx, f.ID)
	require.ErrorIs(t, err, flow.ErrRequestInFlight)

	fx.clock.Advance(5 * time.Second)
	got, err := fx.svc.SendCode(ctx, f.ID)
	require.NoError(t, err)
	require.Equal(t, flow.StepAwaitingCode, got.Step)
}

func TestFlowService_DiscardDropsLateResult(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	release := make(chan struct{})
	started := make(chan struct{})
	fx.api.SendCodeFn = func(ctx context.Context, req ports.SendCodeRequest) error {
		close(started)
		<-release
		return nil
	}
	f, _ := fx.svc.Start(ctx, flow.KindFindUsername, verification.ResumeParams{})
	_, _ = fx.svc.Update(ctx, f.ID, ports.FieldChanges{Email: strp("a@x.com")})

	done := make(chan error, 1)
	go func() {
		_, err := fx.svc.SendCode(ctx, f.ID)
		done <- err
	}()
	<-started
	require.NoError(t, fx.svc.Discard(ctx, f.ID))
	close(release)
	require.ErrorIs(t, <-done, flow.ErrNotFound)

	_, err := fx.repo.Get(ctx, f.ID)
	require.ErrorIs(t, err, flow.ErrNotFound)
	require.Contains(t, fx.metrics.Snapshot(), "find_username/send/stale")
}

func TestFlowService_EmailEditDuringVerifyIgnoresResult(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	release := make(chan struct{})
	started := make(chan struct{})
	fx.api.VerifyCodeFn = func(ctx context.Context, req ports.VerifyCodeRequest) error {
		close(started)
		<-release
		return nil
	}
	f, _ := fx.svc.Start(ctx, flow.KindSignup, verification.ResumeParams{Email: "a@x.com", Username: "kim", Name: "Kim"})
	_, _ = fx.svc.Update(ctx, f.ID, ports.FieldChanges{Code: strp("123456")})

	done := make(chan *flow.Flow, 1)
	go func() {
		got, _ := fx.svc.VerifyCode(ctx, f.ID)
		done <- got
	}()
	<-started
	_, err := fx.svc.Update(ctx, f.ID, ports.FieldChanges{Email: strp("b@x.com")})
	require.NoError(t, err)
	close(release)

	got := <-done
	require.NotNil(t, got)
	require.False(t, got.Session.Verified)
	require.Equal(t, flow.StepCollecting, got.Step)
}

func TestFlowService_BackAndNotFound(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	f, _ := fx.svc.Start(ctx, flow.KindPasswordReset, verification.ResumeParams{Email: "a@x.com"})
	f, err := fx.svc.Back(ctx, f.ID)
	require.NoError(t, err)
	require.Equal(t, flow.StepCollecting, f.Step)
	require.Equal(t, 0, fx.api.TotalCalls())

	_, err = fx.svc.Back(ctx, f.ID)
	require.ErrorIs(t, err, flow.ErrWrongStep)

	_, err = fx.svc.Get(ctx, uuid.New())
	require.ErrorIs(t, err, flow.ErrNotFound)
	_, err = fx.svc.SendCode(ctx, uuid.New())
	require.True(t, errors.Is(err, flow.ErrNotFound))
}

func TestFlowService_FindUsername(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	fx.api.FindUsernameFn = func(ctx context.Context, req ports.FindUsernameRequest) (string, error) {
		require.Equal(t, "123456", req.VerificationCode)
		return "kim", nil
	}
	f, _ := fx.svc.Start(ctx, flow.KindFindUsername, verification.ResumeParams{Email: "a@x.com"})
	_, _ = fx.svc.Update(ctx, f.ID, ports.FieldChanges{Code: strp("123456")})
	f, err := fx.svc.Submit(ctx, f.ID, flow.FinalizeInput{})
	require.NoError(t, err)
	require.Equal(t, "kim", f.Result.Username)
}

func TestFlowService_TimedOutSendReportsFailure(t *testing.T) {
	api := &mocks.AuthAPIMock{}
	svc := impl.NewFlowService(repositories.NewFlowCacheRepository(memory.NewCache()), api, nil,
		&impl.FlowServiceConfig{RequestTimeout: 50 * time.Millisecond}, nil)
	ctx := context.Background()
	api.SendCodeFn = func(ctx context.Context, req ports.SendCodeRequest) error {
		<-ctx.Done()
		return ctx.Err()
	}

	f, _ := svc.Start(ctx, flow.KindFindUsername, verification.ResumeParams{})
	_, _ = svc.Update(ctx, f.ID, ports.FieldChanges{Email: strp("a@x.com")})
	f, err := svc.SendCode(ctx, f.ID)
	require.ErrorIs(t, err, ports.ErrUpstream)
	require.NotNil(t, f)
	require.Equal(t, flow.StepCollecting, f.Step)
	require.Equal(t, flow.RequestFailed, f.Requests.Send.Status)
	require.NotNil(t, f.Message)
	require.Equal(t, flow.MessageError, f.Message.Type)
	require.Equal(t, context.DeadlineExceeded.Error(), f.Message.Text)

	// a success that lands just before the deadline is kept
	api.SendCodeFn = func(ctx context.Context, req ports.SendCodeRequest) error {
		time.Sleep(40 * time.Millisecond)
		return nil
	}
	f, err = svc.SendCode(ctx, f.ID)
	require.NoError(t, err)
	require.Equal(t, flow.StepAwaitingCode, f.Step)
	require.Equal(t, flow.RequestSucceeded, f.Requests.Send.Status)
}

// slowCache adds read latency in front of a shared store, as a network
// round trip to Redis would.
func slowCache(store *memory.Cache) *mocks.CacheMock {
	return &mocks.CacheMock{
		GetFn: func(ctx context.Context, key string) ([]byte, bool, error) {
			time.Sleep(10 * time.Millisecond)
			return store.Get(ctx, key)
		},
		SetFn: store.Set,
		UpdateFn: func(ctx context.Context, key string, ttl time.Duration, fn func([]byte, bool) ([]byte, error)) error {
			return store.Update(ctx, key, ttl, fn)
		},
		DeleteFn: store.Delete,
	}
}

func TestFlowService_SharedStoreAllowsOneSendAcrossInstances(t *testing.T) {
	store := memory.NewCache()
	api := &mocks.AuthAPIMock{}
	release := make(chan struct{})
	api.SendCodeFn = func(ctx context.Context, req ports.SendCodeRequest) error {
		<-release
		return nil
	}
	newInstance := func() *impl.FlowService {
		return impl.NewFlowService(repositories.NewFlowCacheRepository(slowCache(store)), api, nil,
			&impl.FlowServiceConfig{RequestTimeout: 5 * time.Second}, nil)
	}
	a, b := newInstance(), newInstance()
	ctx := context.Background()

	f, err := a.Start(ctx, flow.KindFindUsername, verification.ResumeParams{})
	require.NoError(t, err)
	_, err = a.Update(ctx, f.ID, ports.FieldChanges{Email: strp("a@x.com")})
	require.NoError(t, err)

	results := make(chan error, 2)
	for _, svc := range []*impl.FlowService{a, b} {
		svc := svc
		go func() {
			_, err := svc.SendCode(ctx, f.ID)
			results <- err
		}()
	}

	// the loser returns while the winner's call is still held
	require.ErrorIs(t, <-results, flow.ErrRequestInFlight)
	close(release)
	require.NoError(t, <-results)
	require.Equal(t, 1, api.Calls("SendCode"))

	got, err := b.Get(ctx, f.ID)
	require.NoError(t, err)
	require.Equal(t, flow.StepAwaitingCode, got.Step)
}

func TestFlowService_SharedStoreKeepsConcurrentEdits(t *testing.T) {
	store := memory.NewCache()
	newInstance := func() *impl.FlowService {
		return impl.NewFlowService(repositories.NewFlowCacheRepository(slowCache(store)), &mocks.AuthAPIMock{}, nil, nil, nil)
	}
	a, b := newInstance(), newInstance()
	ctx := context.Background()

	f, err := a.Start(ctx, flow.KindSignup, verification.ResumeParams{})
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, errs[0] = a.Update(ctx, f.ID, ports.FieldChanges{Username: strp("kim")})
	}()
	go func() {
		defer wg.Done()
		_, errs[1] = b.Update(ctx, f.ID, ports.FieldChanges{Name: strp("Kim")})
	}()
	wg.Wait()
	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	got, err := a.Get(ctx, f.ID)
	require.NoError(t, err)
	require.Equal(t, "kim", got.Username)
	require.Equal(t, "Kim", got.Name)
}

func TestFlowService_DifferentSubmissionsAreNotShared(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	release := make(chan struct{})
	var passwords []string
	var mu sync.Mutex
	fx.api.ResetPasswordFn = func(ctx context.Context, req ports.ResetPasswordRequest) error {
		mu.Lock()
		passwords = append(passwords, req.NewPassword)
		mu.Unlock()
		<-release
		return nil
	}

	f, _ := fx.svc.Start(ctx, flow.KindPasswordReset, verification.ResumeParams{Email: "a@x.com"})
	_, err := fx.svc.Update(ctx, f.ID, ports.FieldChanges{Code: strp("123456")})
	require.NoError(t, err)

	results := make(chan error, 2)
	go func() {
		_, err := fx.svc.Submit(ctx, f.ID, flow.FinalizeInput{Password: "firstpass1", ConfirmPassword: "firstpass1"})
		results <- err
	}()
	require.Eventually(t, func() bool { return fx.api.Calls("ResetPassword") == 1 }, time.Second, 5*time.Millisecond)

	go func() {
		_, err := fx.svc.Submit(ctx, f.ID, flow.FinalizeInput{Password: "secondpass2", ConfirmPassword: "secondpass2"})
		results <- err
	}()
	require.ErrorIs(t, <-results, flow.ErrRequestInFlight)
	close(release)
	require.NoError(t, <-results)

	require.Equal(t, []string{"firstpass1"}, passwords)
}
