package ports

import (
	"context"
	"errors"
	"time"
)

// ErrCacheConflict is returned by Cache.Update when another writer changed
// the key between the read and the write.
var ErrCacheConflict = errors.New("cache: concurrent update")

// Cache is the byte store behind FlowRepository. Redis backs it in the
// server and an in-process map in tests and single-user tools.
type Cache interface {
	// Get returns the stored bytes; ok is false for a missing or expired key.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	// Set stores value for key. A ttl of zero or less keeps it until deleted.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Update stores what fn returns for the current value of key, or fails
	// with ErrCacheConflict if key changed meanwhile. An error from fn aborts
	// the write and is returned as is.
	Update(ctx context.Context, key string, ttl time.Duration, fn func(current []byte, ok bool) ([]byte, error)) error
	// Delete removes key. A missing key is not an error.
	Delete(ctx context.Context, key string) error
}
