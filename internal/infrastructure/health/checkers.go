package health

import (
	"context"

	"github.com/goldkiwi/storefront/internal/core/ports"
	"github.com/go-redis/redis/v8"
)

// redisHealthChecker wraps the redis client for health checks.
type redisHealthChecker struct{ client redis.Cmdable }

func (r *redisHealthChecker) Name() string                    { return "redis" }
func (r *redisHealthChecker) Check(ctx context.Context) error { return r.client.Ping(ctx).Err() }

// authAPIHealthChecker probes the external auth service.
type authAPIHealthChecker struct{ api ports.AuthAPI }

func (a *authAPIHealthChecker) Name() string                    { return "auth_api" }
func (a *authAPIHealthChecker) Check(ctx context.Context) error { return a.api.Ping(ctx) }

// NewRedisHealthChecker creates a health checker for Redis.
func NewRedisHealthChecker(client redis.Cmdable) ports.HealthChecker {
	return &redisHealthChecker{client: client}
}

// NewAuthAPIHealthChecker creates a health checker for the auth service.
func NewAuthAPIHealthChecker(api ports.AuthAPI) ports.HealthChecker {
	return &authAPIHealthChecker{api: api}
}
