package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/goldkiwi/storefront/internal/core/domain/flow"
	"github.com/goldkiwi/storefront/internal/core/domain/verification"
	"github.com/goldkiwi/storefront/internal/core/ports"
	"github.com/google/uuid"
)

// AuthAPIMock is a lightweight mock for ports.AuthAPI. Calls are counted per
// method so tests can assert that nothing was sent.
type AuthAPIMock struct {
	SendCodeFn      func(ctx context.Context, req ports.SendCodeRequest) error
	VerifyCodeFn    func(ctx context.Context, req ports.VerifyCodeRequest) error
	SignupFn        func(ctx context.Context, req ports.SignupRequest) (*ports.Account, error)
	ResetPasswordFn func(ctx context.Context, req ports.ResetPasswordRequest) error
	FindUsernameFn  func(ctx context.Context, req ports.FindUsernameRequest) (string, error)
	UpdateProfileFn func(ctx context.Context, req ports.UpdateProfileRequest) (*ports.Profile, error)
	GetProfileFn    func(ctx context.Context) (*ports.Profile, error)
	PingFn          func(ctx context.Context) error

	mu    sync.Mutex
	calls map[string]int
}

func (m *AuthAPIMock) record(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.calls == nil {
		m.calls = make(map[string]int)
	}
	m.calls[name]++
}

// Calls returns how often method was invoked.
func (m *AuthAPIMock) Calls(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[method]
}

// TotalCalls returns the number of network calls of any kind.
func (m *AuthAPIMock) TotalCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		n += c
	}
	return n
}

func (m *AuthAPIMock) SendCode(ctx context.Context, req ports.SendCodeRequest) error {
	m.record("SendCode")
	if m.SendCodeFn != nil {
		return m.SendCodeFn(ctx, req)
	}
	return nil
}
func (m *AuthAPIMock) VerifyCode(ctx context.Context, req ports.VerifyCodeRequest) error {
	m.record("VerifyCode")
	if m.VerifyCodeFn != nil {
		return m.VerifyCodeFn(ctx, req)
	}
	return nil
}
func (m *AuthAPIMock) Signup(ctx context.Context, req ports.SignupRequest) (*ports.Account, error) {
	m.record("Signup")
	if m.SignupFn != nil {
		return m.SignupFn(ctx, req)
	}
	return &ports.Account{ID: "1", Username: req.Username, Email: req.Email, Name: req.Name}, nil
}
func (m *AuthAPIMock) ResetPassword(ctx context.Context, req ports.ResetPasswordRequest) error {
	m.record("ResetPassword")
	if m.ResetPasswordFn != nil {
		return m.ResetPasswordFn(ctx, req)
	}
	return nil
}
func (m *AuthAPIMock) FindUsername(ctx context.Context, req ports.FindUsernameRequest) (string, error) {
	m.record("FindUsername")
	if m.FindUsernameFn != nil {
		return m.FindUsernameFn(ctx, req)
	}
	return "user", nil
}
func (m *AuthAPIMock) UpdateProfile(ctx context.Context, req ports.UpdateProfileRequest) (*ports.Profile, error) {
	m.record("UpdateProfile")
	if m.UpdateProfileFn != nil {
		return m.UpdateProfileFn(ctx, req)
	}
	return &ports.Profile{Email: req.Email, Name: req.Name}, nil
}
func (m *AuthAPIMock) GetProfile(ctx context.Context) (*ports.Profile, error) {
	m.record("GetProfile")
	if m.GetProfileFn != nil {
		return m.GetProfileFn(ctx)
	}
	return &ports.Profile{ID: "1", Email: "current@example.com", Name: "Current"}, nil
}
func (m *AuthAPIMock) Ping(ctx context.Context) error {
	if m.PingFn != nil {
		return m.PingFn(ctx)
	}
	return nil
}

// CacheMock is a lightweight mock for ports.Cache.
type CacheMock struct {
	GetFn    func(ctx context.Context, key string) ([]byte, bool, error)
	SetFn    func(ctx context.Context, key string, value []byte, ttl time.Duration) error
	UpdateFn func(ctx context.Context, key string, ttl time.Duration, fn func(current []byte, ok bool) ([]byte, error)) error
	DeleteFn func(ctx context.Context, key string) error
}

func (m *CacheMock) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if m.GetFn != nil {
		return m.GetFn(ctx, key)
	}
	return nil, false, nil
}
func (m *CacheMock) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if m.SetFn != nil {
		return m.SetFn(ctx, key, value, ttl)
	}
	return nil
}
// Update falls back to Get then Set when UpdateFn is not set.
func (m *CacheMock) Update(ctx context.Context, key string, ttl time.Duration, fn func(current []byte, ok bool) ([]byte, error)) error {
	if m.UpdateFn != nil {
		return m.UpdateFn(ctx, key, ttl, fn)
	}
	current, ok, err := m.Get(ctx, key)
	if err != nil {
		return err
	}
	next, err := fn(current, ok)
	if err != nil {
		return err
	}
	return m.Set(ctx, key, next, ttl)
}
func (m *CacheMock) Delete(ctx context.Context, key string) error {
	if m.DeleteFn != nil {
		return m.DeleteFn(ctx, key)
	}
	return nil
}

// RateLimitRepositoryMock is a lightweight mock for ports.RateLimitRepository.
type RateLimitRepositoryMock struct {
	IncrementWindowFn func(ctx context.Context, key string, window time.Duration, keyPrefix string, ttl time.Duration) (int, time.Time, error)
}

func (m *RateLimitRepositoryMock) IncrementWindow(ctx context.Context, key string, window time.Duration, keyPrefix string, ttl time.Duration) (int, time.Time, error) {
	if m.IncrementWindowFn != nil {
		return m.IncrementWindowFn(ctx, key, window, keyPrefix, ttl)
	}
	return 1, time.Now().Truncate(window), nil
}

// RateLimiterServiceMock is a lightweight mock for ports.RateLimiterService.
type RateLimiterServiceMock struct {
	AllowFn func(ctx context.Context, key string) (bool, int, int, time.Time, error)
}

func (m *RateLimiterServiceMock) Allow(ctx context.Context, key string) (bool, int, int, time.Time, error) {
	if m.AllowFn != nil {
		return m.AllowFn(ctx, key)
	}
	return true, 1, 1, time.Now().Add(time.Minute), nil
}

// FlowServiceMock is a lightweight mock for ports.FlowService.
type FlowServiceMock struct {
	StartFn      func(ctx context.Context, kind flow.Kind, resume verification.ResumeParams) (*flow.Flow, error)
	GetFn        func(ctx context.Context, id uuid.UUID) (*flow.Flow, error)
	UpdateFn     func(ctx context.Context, id uuid.UUID, changes ports.FieldChanges) (*flow.Flow, error)
	SendCodeFn   func(ctx context.Context, id uuid.UUID) (*flow.Flow, error)
	VerifyCodeFn func(ctx context.Context, id uuid.UUID) (*flow.Flow, error)
	SubmitFn     func(ctx context.Context, id uuid.UUID, in flow.FinalizeInput) (*flow.Flow, error)
	BackFn       func(ctx context.Context, id uuid.UUID) (*flow.Flow, error)
	DiscardFn    func(ctx context.Context, id uuid.UUID) error
	NowFn        func() time.Time
}

func (m *FlowServiceMock) Start(ctx context.Context, kind flow.Kind, resume verification.ResumeParams) (*flow.Flow, error) {
	if m.StartFn != nil {
		return m.StartFn(ctx, kind, resume)
	}
	return flow.Resume(kind, resume, m.Now()), nil
}
func (m *FlowServiceMock) Get(ctx context.Context, id uuid.UUID) (*flow.Flow, error) {
	if m.GetFn != nil {
		return m.GetFn(ctx, id)
	}
	return nil, flow.ErrNotFound
}
func (m *FlowServiceMock) Update(ctx context.Context, id uuid.UUID, changes ports.FieldChanges) (*flow.Flow, error) {
	if m.UpdateFn != nil {
		return m.UpdateFn(ctx, id, changes)
	}
	return nil, flow.ErrNotFound
}
func (m *FlowServiceMock) SendCode(ctx context.Context, id uuid.UUID) (*flow.Flow, error) {
	if m.SendCodeFn != nil {
		return m.SendCodeFn(ctx, id)
	}
	return nil, flow.ErrNotFound
}
func (m *FlowServiceMock) VerifyCode(ctx context.Context, id uuid.UUID) (*flow.Flow, error) {
	if m.VerifyCodeFn != nil {
		return m.VerifyCodeFn(ctx, id)
	}
	return nil, flow.ErrNotFound
}
func (m *FlowServiceMock) Submit(ctx context.Context, id uuid.UUID, in flow.FinalizeInput) (*flow.Flow, error) {
	if m.SubmitFn != nil {
		return m.SubmitFn(ctx, id, in)
	}
	return nil, flow.ErrNotFound
}
func (m *FlowServiceMock) Back(ctx context.Context, id uuid.UUID) (*flow.Flow, error) {
	if m.BackFn != nil {
		return m.BackFn(ctx, id)
	}
	return nil, flow.ErrNotFound
}
func (m *FlowServiceMock) Discard(ctx context.Context, id uuid.UUID) error {
	if m.DiscardFn != nil {
		return m.DiscardFn(ctx, id)
	}
	return nil
}
func (m *FlowServiceMock) Now() time.Time {
	if m.NowFn != nil {
		return m.NowFn()
	}
	return time.Now()
}

// FlowMetricsMock records observed operations.
type FlowMetricsMock struct {
	mu       sync.Mutex
	Observed []string
}

func (m *FlowMetricsMock) ObserveOperation(kind flow.Kind, op string, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Observed = append(m.Observed, string(kind)+"/"+op+"/"+outcome)
}

// Snapshot returns a copy of the observations so far.
func (m *FlowMetricsMock) Snapshot() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.Observed...)
}
