package memory

import (
	"context"
	"sync"
	"time"
)

type window struct {
	count   int
	expires time.Time
}

// RateLimitRepository keeps fixed-window counters in process memory. It
// backs the send limiter when no Redis is configured.
type RateLimitRepository struct {
	mu      sync.Mutex
	windows map[string]window
	now     func() time.Time
}

func NewRateLimitRepository() *RateLimitRepository {
	return &RateLimitRepository{windows: make(map[string]window), now: time.Now}
}

func (r *RateLimitRepository) IncrementWindow(ctx context.Context, key string, win time.Duration, keyPrefix string, ttl time.Duration) (int, time.Time, error) {
	_ = ctx
	now := r.now().UTC()
	windowStart := now.Truncate(win)
	k := keyPrefix + ":" + key + ":" + windowStart.Format(time.RFC3339)

	r.mu.Lock()
	defer r.mu.Unlock()
	for wk, w := range r.windows {
		if !now.Before(w.expires) {
			delete(r.windows, wk)
		}
	}
	w := r.windows[k]
	w.count++
	w.expires = now.Add(ttl)
	r.windows[k] = w
	return w.count, windowStart, nil
}
