package ports

import (
	"context"
	"time"

	"github.com/goldkiwi/storefront/internal/core/domain/flow"
	"github.com/goldkiwi/storefront/internal/core/domain/verification"
	"github.com/google/uuid"
)

// FlowRepository stores flow instances between requests.
type FlowRepository interface {
	// Get returns flow.ErrNotFound when the flow does not exist or expired.
	Get(ctx context.Context, id uuid.UUID) (*flow.Flow, error)
	Save(ctx context.Context, f *flow.Flow, ttl time.Duration) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// FieldChanges is a partial edit of a flow's inputs. Nil fields are untouched.
type FieldChanges struct {
	Email    *string
	Code     *string
	Username *string
	Name     *string
}

// FlowService runs verification flows on behalf of a page.
type FlowService interface {
	Start(ctx context.Context, kind flow.Kind, resume verification.ResumeParams) (*flow.Flow, error)
	Get(ctx context.Context, id uuid.UUID) (*flow.Flow, error)
	Update(ctx context.Context, id uuid.UUID, changes FieldChanges) (*flow.Flow, error)
	SendCode(ctx context.Context, id uuid.UUID) (*flow.Flow, error)
	VerifyCode(ctx context.Context, id uuid.UUID) (*flow.Flow, error)
	Submit(ctx context.Context, id uuid.UUID, in flow.FinalizeInput) (*flow.Flow, error)
	Back(ctx context.Context, id uuid.UUID) (*flow.Flow, error)
	Discard(ctx context.Context, id uuid.UUID) error
	Now() time.Time
}

// FlowMetrics records the outcome of flow operations.
type FlowMetrics interface {
	ObserveOperation(kind flow.Kind, op string, outcome string)
}
