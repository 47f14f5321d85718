package httpserver

import (
	"github.com/labstack/echo/v4/middleware"
)

func (s *Server) setupRoutes() {
	s.echo.GET("/health", s.healthCheck)
	s.echo.GET("/metrics", s.metricsEndpoint)

	flows := s.echo.Group("/flows")
	flows.POST("/:kind", s.startFlow)
	flows.GET("/:id", s.getFlow)
	flows.PATCH("/:id", s.updateFlow)
	flows.DELETE("/:id", s.discardFlow)
	flows.POST("/:id/send", s.sendCode, s.middleware.RateLimit.Handler())
	flows.POST("/:id/verify", s.verifyCode)
	flows.POST("/:id/submit", s.submitFlow)
	flows.POST("/:id/back", s.backFlow)

	// Everything under /api goes to the auth service with the prefix stripped.
	s.echo.Group("/api", middleware.ProxyWithConfig(middleware.ProxyConfig{
		Balancer: middleware.NewRoundRobinBalancer([]*middleware.ProxyTarget{{URL: s.authAPI}}),
		Rewrite:  map[string]string{"/api/*": "/$1"},
	}))
}
