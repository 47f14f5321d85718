package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/sync/errgroup"
)

const healthCheckTimeout = 2 * time.Second

type dependencyHealth struct {
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
}

// healthCheck probes every dependency in parallel. Any failure degrades the
// service and answers 503.
func (s *Server) healthCheck(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), healthCheckTimeout)
	defer cancel()

	results := make([]dependencyHealth, len(s.healthCheckers))
	var g errgroup.Group
	for i, hc := range s.healthCheckers {
		if hc == nil {
			continue
		}
		i, hc := i, hc
		g.Go(func() error {
			start := time.Now()
			err := hc.Check(ctx)
			results[i] = dependencyHealth{Status: "healthy", LatencyMS: time.Since(start).Milliseconds()}
			if err != nil {
				s.logger.WithError(err).WithField("dependency", hc.Name()).Warn("health check failed")
				results[i].Status = "unhealthy"
				results[i].Error = err.Error()
			}
			return nil
		})
	}
	_ = g.Wait()

	deps := make(map[string]dependencyHealth, len(results))
	overall := "healthy"
	for i, hc := range s.healthCheckers {
		if hc == nil {
			continue
		}
		deps[hc.Name()] = results[i]
		if results[i].Status != "healthy" {
			overall = "degraded"
		}
	}

	code := http.StatusOK
	if overall != "healthy" {
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, map[string]interface{}{
		"status":       overall,
		"timestamp":    time.Now().UTC().Format(time.RFC3339),
		"version":      "1.0.0",
		"service":      "storefront",
		"dependencies": deps,
	})
}
