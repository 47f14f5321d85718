package ports

import "context"

// HealthChecker probes one dependency for /health. Check returns an error
// while the dependency is unavailable.
type HealthChecker interface {
	Name() string
	Check(ctx context.Context) error
}
