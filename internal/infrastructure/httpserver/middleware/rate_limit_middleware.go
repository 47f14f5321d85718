package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/goldkiwi/storefront/internal/core/ports"
)

const msgTooManyRequests = "too many verification code requests, please try again later"

// RateLimitMiddleware limits code sends per client IP. Limiter errors let
// the request through.
type RateLimitMiddleware struct {
	rateLimiter ports.RateLimiterService
	logger      *logrus.Logger
	now         func() time.Time
}

func NewRateLimitMiddleware(rateLimiter ports.RateLimiterService, logger *logrus.Logger) *RateLimitMiddleware {
	return &RateLimitMiddleware{rateLimiter: rateLimiter, logger: logger, now: time.Now}
}

func (r *RateLimitMiddleware) Handler() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if r.rateLimiter == nil {
				return next(c)
			}
			ip := c.RealIP()
			allowed, remaining, limit, reset, err := r.rateLimiter.Allow(c.Request().Context(), ip)
			if err != nil {
				if r.logger != nil {
					r.logger.WithError(err).WithField("client_ip", ip).Warn("rate limiter error; allowing request (fail-open)")
				}
				return next(c)
			}

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))
			if allowed {
				return next(c)
			}

			wait := int(reset.Sub(r.now()).Seconds() + 0.5)
			if wait < 1 {
				wait = 1
			}
			h.Set("Retry-After", strconv.Itoa(wait))
			if r.logger != nil {
				r.logger.WithField("client_ip", ip).Info("code send rate limited")
			}
			return echo.NewHTTPError(http.StatusTooManyRequests, msgTooManyRequests)
		}
	}
}
