package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/goldkiwi/storefront/internal/core/domain/flow"
	"github.com/goldkiwi/storefront/internal/core/domain/verification"
	"github.com/goldkiwi/storefront/internal/core/ports"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

const (
	lockStripes = 256
	// saveAttempts bounds the reload-and-retry loop when another process
	// saved the flow between our load and our save.
	saveAttempts = 5
	// abandonGrace is added on top of twice the request timeout before an
	// in-flight request is treated as abandoned.
	abandonGrace = 5 * time.Second
)

// Operation outcomes reported to ports.FlowMetrics.
const (
	OutcomeSuccess  = "success"
	OutcomeFailure  = "failure"
	OutcomeInvalid  = "invalid"
	OutcomeConflict = "conflict"
	OutcomeStale    = "stale"
)

// FlowServiceConfig groups the tunables of FlowService.
type FlowServiceConfig struct {
	FlowTTL        time.Duration
	RequestTimeout time.Duration
	Now            func() time.Time
}

// FlowService drives flow state machines against the auth service. State
// lives in the FlowRepository; a per-flow lock covers each load-modify-save
// and is never held across a network call.
type FlowService struct {
	repo    ports.FlowRepository
	api     ports.AuthAPI
	metrics ports.FlowMetrics
	logger  *logrus.Logger

	ttl            time.Duration
	requestTimeout time.Duration
	abandonAfter   time.Duration
	now            func() time.Time

	locks [lockStripes]sync.Mutex
	group singleflight.Group
}

var _ ports.FlowService = (*FlowService)(nil)

func NewFlowService(repo ports.FlowRepository, api ports.AuthAPI, metrics ports.FlowMetrics, cfg *FlowServiceConfig, logger *logrus.Logger) *FlowService {
	// Apply defaults
	ttl := 30 * time.Minute
	rt := 15 * time.Second
	now := time.Now
	if cfg != nil {
		if cfg.FlowTTL > 0 {
			ttl = cfg.FlowTTL
		}
		if cfg.RequestTimeout > 0 {
			rt = cfg.RequestTimeout
		}
		if cfg.Now != nil {
			now = cfg.Now
		}
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &FlowService{
		repo:           repo,
		api:            api,
		metrics:        metrics,
		logger:         logger,
		ttl:            ttl,
		requestTimeout: rt,
		abandonAfter:   2*rt + abandonGrace,
		now:            now,
	}
}

func (s *FlowService) Now() time.Time {
	return s.now()
}

// Start creates a flow, hydrated once from resume. The email-change flow
// loads the signed-in profile first so the current address can be rejected.
func (s *FlowService) Start(ctx context.Context, kind flow.Kind, resume verification.ResumeParams) (*flow.Flow, error) {
	f := flow.Resume(kind, resume, s.now())
	if kind == flow.KindEmailChange {
		callCtx, cancel := s.callContext(ctx)
		p, err := s.api.GetProfile(callCtx)
		cancel()
		if err != nil {
			s.observe(kind, "start", OutcomeFailure)
			var apiErr *ports.APIError
			if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized {
				return nil, fmt.Errorf("%w: %s", ports.ErrUnauthorized, ports.ErrorMessage(err, ports.MsgGetProfileFailed))
			}
			return nil, fmt.Errorf("%w: %s", ports.ErrUpstream, ports.ErrorMessage(err, ports.MsgGetProfileFailed))
		}
		f.SetProfile(p.Email, p.Name)
	}
	if err := s.repo.Save(ctx, f, s.ttl); err != nil {
		return nil, err
	}
	s.observe(kind, "start", OutcomeSuccess)
	s.logger.WithFields(logrus.Fields{"flow_id": f.ID, "kind": kind, "step": f.Step}).Info("flow started")
	return f, nil
}

// Get loads a flow with expiry applied.
func (s *FlowService) Get(ctx context.Context, id uuid.UUID) (*flow.Flow, error) {
	return s.mutate(ctx, id, func(f *flow.Flow, now time.Time) error { return nil })
}

// Update applies field edits: the email first, since a new address resets
// the code, then details and code.
func (s *FlowService) Update(ctx context.Context, id uuid.UUID, changes ports.FieldChanges) (*flow.Flow, error) {
	return s.mutate(ctx, id, func(f *flow.Flow, now time.Time) error {
		if changes.Email != nil {
			if err := f.SetEmail(now, *changes.Email); err != nil {
				return err
			}
		}
		if changes.Username != nil || changes.Name != nil {
			var username, name string
			if changes.Username != nil {
				username = *changes.Username
			}
			if changes.Name != nil {
				name = *changes.Name
			}
			if err := f.SetDetails(now, username, name); err != nil {
				return err
			}
		}
		if changes.Code != nil {
			return f.SetCode(now, *changes.Code)
		}
		return nil
	})
}

// SendCode sends or resends the verification code.
func (s *FlowService) SendCode(ctx context.Context, id uuid.UUID) (*flow.Flow, error) {
	return s.run(ctx, id, flow.OpSend, "", func(f *flow.Flow, now time.Time) (*pending, error) {
		cmd, err := f.BeginSend(now)
		if err != nil {
			return nil, err
		}
		return &pending{
			call: func(ctx context.Context) flow.Outcome {
				err := s.api.SendCode(ctx, ports.SendCodeRequest{
					Email:    cmd.Email,
					Purpose:  cmd.Purpose,
					Username: cmd.Username,
					Name:     cmd.Name,
				})
				return outcome(err, ports.MsgSendCodeFailed)
			},
			complete: func(f *flow.Flow, now time.Time, out flow.Outcome) bool {
				return f.CompleteSend(now, cmd, out)
			},
		}, nil
	})
}

// VerifyCode checks the entered code without consuming it.
func (s *FlowService) VerifyCode(ctx context.Context, id uuid.UUID) (*flow.Flow, error) {
	return s.run(ctx, id, flow.OpVerify, "", func(f *flow.Flow, now time.Time) (*pending, error) {
		cmd, err := f.BeginVerify(now)
		if err != nil {
			return nil, err
		}
		return &pending{
			call: func(ctx context.Context) flow.Outcome {
				err := s.api.VerifyCode(ctx, ports.VerifyCodeRequest{Email: cmd.Email, Code: cmd.Code, Purpose: cmd.Purpose})
				return outcome(err, ports.MsgVerifyCodeFailed)
			},
			complete: func(f *flow.Flow, now time.Time, out flow.Outcome) bool {
				return f.CompleteVerify(now, cmd, out)
			},
		}, nil
	})
}

// Submit performs the kind's code-consuming call.
func (s *FlowService) Submit(ctx context.Context, id uuid.UUID, in flow.FinalizeInput) (*flow.Flow, error) {
	// Only identical submissions share a call. A different one reaches
	// BeginFinalize and is rejected while the first is in flight.
	inputKey := uuid.NewSHA1(id, []byte(in.Password+"\x00"+in.ConfirmPassword+"\x00"+in.Name)).String()
	return s.run(ctx, id, flow.OpFinalize, inputKey, func(f *flow.Flow, now time.Time) (*pending, error) {
		cmd, err := f.BeginFinalize(now, in)
		if err != nil {
			return nil, err
		}
		return &pending{
			call: func(ctx context.Context) flow.Outcome {
				return s.finalize(ctx, cmd)
			},
			complete: func(f *flow.Flow, now time.Time, out flow.Outcome) bool {
				return f.CompleteFinalize(now, cmd, out)
			},
		}, nil
	})
}

func (s *FlowService) finalize(ctx context.Context, cmd flow.FinalizeCommand) flow.Outcome {
	switch cmd.Kind {
	case flow.KindSignup:
		acc, err := s.api.Signup(ctx, ports.SignupRequest{
			Username:         cmd.Username,
			Email:            cmd.Email,
			Password:         cmd.Password,
			Name:             cmd.Name,
			VerificationCode: cmd.Code,
		})
		if err != nil {
			return outcome(err, ports.MsgSignupFailed)
		}
		return flow.Outcome{AccountID: string(acc.ID)}
	case flow.KindPasswordReset:
		err := s.api.ResetPassword(ctx, ports.ResetPasswordRequest{
			Email:            cmd.Email,
			VerificationCode: cmd.Code,
			NewPassword:      cmd.Password,
		})
		return outcome(err, ports.MsgResetPasswordFailed)
	case flow.KindFindUsername:
		username, err := s.api.FindUsername(ctx, ports.FindUsernameRequest{Email: cmd.Email, VerificationCode: cmd.Code})
		if err != nil {
			return outcome(err, ports.MsgFindUsernameFailed)
		}
		return flow.Outcome{Username: username}
	default:
		_, err := s.api.UpdateProfile(ctx, ports.UpdateProfileRequest{
			Name:             cmd.Name,
			Email:            cmd.Email,
			VerificationCode: cmd.Code,
		})
		return outcome(err, ports.MsgUpdateProfileFailed)
	}
}

// Back leaves the awaiting-code step without any network call.
func (s *FlowService) Back(ctx context.Context, id uuid.UUID) (*flow.Flow, error) {
	return s.mutate(ctx, id, func(f *flow.Flow, now time.Time) error {
		return f.Back(now)
	})
}

// Discard drops the flow. Results of calls still in flight are ignored.
func (s *FlowService) Discard(ctx context.Context, id uuid.UUID) error {
	mu := s.lockFor(id)
	mu.Lock()
	defer mu.Unlock()
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.WithField("flow_id", id).Debug("flow discarded")
	return nil
}

// pending is a started operation: the network call to make and how to fold
// its outcome back into the flow.
type pending struct {
	call     func(ctx context.Context) flow.Outcome
	complete func(f *flow.Flow, now time.Time, out flow.Outcome) bool
}

// run executes begin, call and complete for one operation. Concurrent
// identical operations on the same flow in this process share one call;
// inputKey distinguishes operations that carry caller input.
func (s *FlowService) run(ctx context.Context, id uuid.UUID, op flow.Operation, inputKey string, begin func(f *flow.Flow, now time.Time) (*pending, error)) (*flow.Flow, error) {
	key := id.String() + ":" + string(op)
	if inputKey != "" {
		key += ":" + inputKey
	}
	v, err, shared := s.group.Do(key, func() (interface{}, error) {
		return s.execute(context.WithoutCancel(ctx), id, op, begin)
	})
	if shared {
		s.logger.WithFields(logrus.Fields{"flow_id": id, "operation": op}).Debug("coalesced duplicate operation")
	}
	f, _ := v.(*flow.Flow)
	return f, err
}

func (s *FlowService) execute(ctx context.Context, id uuid.UUID, op flow.Operation, begin func(f *flow.Flow, now time.Time) (*pending, error)) (*flow.Flow, error) {
	var p *pending
	f, err := s.mutate(ctx, id, func(f *flow.Flow, now time.Time) error {
		var err error
		p, err = begin(f, now)
		return err
	})
	if err != nil {
		if f != nil {
			s.observe(f.Kind, string(op), outcomeOf(err))
		}
		return f, err
	}
	kind := f.Kind
	log := s.logger.WithFields(logrus.Fields{"flow_id": id, "kind": kind, "operation": op})

	callCtx, cancel := s.callContext(ctx)
	out := p.call(callCtx)
	cancel()

	applied := false
	f, err = s.update(ctx, id, op, func(f *flow.Flow, now time.Time) error {
		applied = p.complete(f, now, out)
		return nil
	})
	if errors.Is(err, flow.ErrNotFound) {
		log.Debug("flow discarded while request was in flight; dropping result")
		s.observe(kind, string(op), OutcomeStale)
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	if !applied {
		log.Debug("dropping stale result")
		s.observe(kind, string(op), OutcomeStale)
		return f, nil
	}
	if out.Failed {
		log.WithField("message", out.Message).Warn("auth service rejected operation")
		s.observe(kind, string(op), OutcomeFailure)
		return f, fmt.Errorf("%w: %s", ports.ErrUpstream, out.Message)
	}
	log.Info("operation succeeded")
	s.observe(kind, string(op), OutcomeSuccess)
	return f, nil
}

// mutate loads the flow under its lock, applies pending expiry and abandoned
// requests, runs fn and saves. The flow is saved even when fn fails, since
// validation failures record a message.
func (s *FlowService) mutate(ctx context.Context, id uuid.UUID, fn func(f *flow.Flow, now time.Time) error) (*flow.Flow, error) {
	return s.update(ctx, id, "", fn)
}

// update is mutate for the completion of op, whose own request is never
// released as abandoned. When another process saved the flow first, the
// flow is reloaded and fn runs again on the fresh copy.
func (s *FlowService) update(ctx context.Context, id uuid.UUID, op flow.Operation, fn func(f *flow.Flow, now time.Time) error) (*flow.Flow, error) {
	mu := s.lockFor(id)
	mu.Lock()
	defer mu.Unlock()

	var err error
	for attempt := 1; attempt <= saveAttempts; attempt++ {
		var f *flow.Flow
		f, err = s.repo.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		now := s.now()
		if f.ReleaseAbandoned(now, s.abandonAfter, op) {
			s.logger.WithField("flow_id", id).Warn("released abandoned in-flight request")
		}
		f.Tick(now)
		fnErr := fn(f, now)
		err = s.repo.Save(ctx, f, s.ttl)
		if err == nil {
			return f, fnErr
		}
		if !errors.Is(err, ports.ErrCacheConflict) {
			return nil, err
		}
		s.logger.WithFields(logrus.Fields{"flow_id": id, "attempt": attempt}).Debug("flow changed concurrently; retrying")
	}
	return nil, err
}

func (s *FlowService) lockFor(id uuid.UUID) *sync.Mutex {
	return &s.locks[int(id[15])%lockStripes]
}

func (s *FlowService) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.requestTimeout)
}

func (s *FlowService) observe(kind flow.Kind, op, outcome string) {
	if s.metrics != nil {
		s.metrics.ObserveOperation(kind, op, outcome)
	}
}

func outcome(err error, fallback string) flow.Outcome {
	if err == nil {
		return flow.Success()
	}
	return flow.Failure(ports.ErrorMessage(err, fallback))
}

func outcomeOf(err error) string {
	switch {
	case flow.IsValidation(err):
		return OutcomeInvalid
	case errors.Is(err, flow.ErrRequestInFlight), errors.Is(err, flow.ErrWrongStep), errors.Is(err, flow.ErrNotSupported):
		return OutcomeConflict
	default:
		return OutcomeFailure
	}
}
