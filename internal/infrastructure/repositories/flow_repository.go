package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/goldkiwi/storefront/internal/core/domain/flow"
	"github.com/goldkiwi/storefront/internal/core/ports"
	"github.com/google/uuid"
)

const flowKeyPrefix = "flow:"

// FlowCacheRepository stores flows as JSON documents in a ports.Cache, so
// the same code runs on Redis or in memory.
type FlowCacheRepository struct {
	cache ports.Cache
}

var _ ports.FlowRepository = (*FlowCacheRepository)(nil)

func NewFlowCacheRepository(cache ports.Cache) *FlowCacheRepository {
	return &FlowCacheRepository{cache: cache}
}

func flowKey(id uuid.UUID) string {
	return flowKeyPrefix + id.String()
}

func (r *FlowCacheRepository) Get(ctx context.Context, id uuid.UUID) (*flow.Flow, error) {
	data, ok, err := r.cache.Get(ctx, flowKey(id))
	if err != nil {
		return nil, fmt.Errorf("load flow %s: %w", id, err)
	}
	if !ok {
		return nil, flow.ErrNotFound
	}
	var f flow.Flow
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode flow %s: %w", id, err)
	}
	return &f, nil
}

// Save writes f if the stored copy is still at f.Version, then bumps
// f.Version. A flow with version zero must not exist yet. Any other stored
// version, or a missing flow that was loaded before, yields
// ports.ErrCacheConflict.
func (r *FlowCacheRepository) Save(ctx context.Context, f *flow.Flow, ttl time.Duration) error {
	expected := f.Version
	next := *f
	next.Version = expected + 1
	data, err := json.Marshal(&next)
	if err != nil {
		return fmt.Errorf("encode flow %s: %w", f.ID, err)
	}
	err = r.cache.Update(ctx, flowKey(f.ID), ttl, func(current []byte, ok bool) ([]byte, error) {
		stored, err := storedVersion(current, ok)
		if err != nil {
			return nil, err
		}
		if stored != expected {
			return nil, ports.ErrCacheConflict
		}
		return data, nil
	})
	if err != nil {
		if errors.Is(err, ports.ErrCacheConflict) {
			return fmt.Errorf("save flow %s at version %d: %w", f.ID, expected, err)
		}
		return fmt.Errorf("save flow %s: %w", f.ID, err)
	}
	f.Version = next.Version
	return nil
}

func storedVersion(data []byte, ok bool) (int64, error) {
	if !ok {
		return 0, nil
	}
	var doc struct {
		Version int64 `json:"version"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return 0, fmt.Errorf("decode stored flow: %w", err)
	}
	return doc.Version, nil
}

func (r *FlowCacheRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if err := r.cache.Delete(ctx, flowKey(id)); err != nil {
		return fmt.Errorf("delete flow %s: %w", id, err)
	}
	return nil
}
