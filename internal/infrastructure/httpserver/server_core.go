package httpserver

import (
	"fmt"
	"net/url"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/goldkiwi/storefront/internal/core/ports"
	customMiddleware "github.com/goldkiwi/storefront/internal/infrastructure/httpserver/middleware"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

type ServerConfig struct {
	Host           string
	Port           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	TLSCertFile    string
	TLSKeyFile     string
	AllowedOrigins []string
	Environment    string
}

type ServerDeps struct {
	FlowService        ports.FlowService
	RateLimiterService ports.RateLimiterService
	HealthCheckers     []ports.HealthChecker
	// Metrics may be shared with the flow service. Nil gets a private registry.
	Metrics *Metrics
	// AuthAPIURL is where /api/* is proxied to.
	AuthAPIURL string
}

type Server struct {
	echo           *echo.Echo
	config         *ServerConfig
	logger         *logrus.Logger
	flows          ports.FlowService
	authAPI        *url.URL
	metrics        *Metrics
	middleware     *customMiddleware.MiddlewareCollection
	healthCheckers []ports.HealthChecker
}

// requestValidator adapts go-playground/validator to echo.Validator.
type requestValidator struct {
	validate *validator.Validate
}

func (v *requestValidator) Validate(i interface{}) error {
	return v.validate.Struct(i)
}

func NewServer(serverConfig *ServerConfig, logger *logrus.Logger, deps ServerDeps) (*Server, error) {
	target, err := url.Parse(deps.AuthAPIURL)
	if err != nil || target.Scheme == "" || target.Host == "" {
		return nil, fmt.Errorf("invalid auth api url %q", deps.AuthAPIURL)
	}
	if logger == nil {
		logger = logrus.New()
	}

	metrics := deps.Metrics
	if metrics == nil {
		metrics = NewMetrics(nil)
	}

	e := echo.New()
	e.HideBanner = true
	e.Validator = &requestValidator{validate: validator.New()}

	server := &Server{
		echo:           e,
		config:         serverConfig,
		logger:         logger,
		flows:          deps.FlowService,
		authAPI:        target,
		metrics:        metrics,
		healthCheckers: deps.HealthCheckers,
		middleware:     customMiddleware.NewMiddlewareCollection(deps.RateLimiterService, logger, metrics),
	}

	server.setupMiddleware()
	server.setupRoutes()

	return server, nil
}
