package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	config "github.com/goldkiwi/storefront/configs"
	"github.com/goldkiwi/storefront/internal/application/services"
	"github.com/goldkiwi/storefront/internal/core/ports"
	"github.com/goldkiwi/storefront/internal/infrastructure/authapi"
	"github.com/goldkiwi/storefront/internal/infrastructure/health"
	"github.com/goldkiwi/storefront/internal/infrastructure/httpserver"
	"github.com/goldkiwi/storefront/internal/infrastructure/memory"
	"github.com/goldkiwi/storefront/internal/infrastructure/redis"
	"github.com/goldkiwi/storefront/internal/infrastructure/repositories"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	logger := newLogger(&cfg.Log)
	logger.Info("Starting storefront server...")

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Flow store and send rate-limit counters
	var (
		flowCache      ports.Cache
		rateLimitRepo  ports.RateLimitRepository
		healthCheckers []ports.HealthChecker
	)
	switch cfg.Flow.Store {
	case config.FlowStoreMemory:
		mem := memory.NewCache()
		go mem.RunSweeper(ctx, time.Minute)
		flowCache = mem
		rateLimitRepo = memory.NewRateLimitRepository()
		logger.Warn("Using in-memory flow store; flows are lost on restart and not shared between instances")
	default:
		redisClient, err := redis.NewRedisClient(&cfg.Redis)
		if err != nil {
			logger.Fatal("Failed to connect to Redis:", err)
		}
		defer redisClient.Close()
		logger.Info("Connected to Redis successfully")

		flowCache = redis.NewCache(redisClient, cfg.Flow.KeyPrefix)
		rateLimitRepo = repositories.NewRateLimitRedisRepository(redisClient)
		healthCheckers = append(healthCheckers, health.NewRedisHealthChecker(redisClient))
	}

	authClient, err := authapi.NewClient(&cfg.AuthAPI, logger)
	if err != nil {
		logger.Fatal("Failed to initialize auth API client:", err)
	}
	healthCheckers = append(healthCheckers, health.NewAuthAPIHealthChecker(authClient))

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := httpserver.NewMetrics(registry)

	flowService := services.NewFlowService(
		repositories.NewFlowCacheRepository(flowCache),
		authClient,
		metrics,
		&services.FlowServiceConfig{
			FlowTTL:        cfg.Flow.TTL,
			RequestTimeout: cfg.Flow.RequestTimeout,
		},
		logger,
	)

	rateLimiterService := services.NewRateLimiterService(rateLimitRepo, &services.RateLimiterConfig{
		RequestsPerWindow: cfg.RateLimit.SendRequestsPerWindow,
		BurstMultiplier:   cfg.RateLimit.BurstMultiplier,
		Window:            cfg.RateLimit.Window,
		KeyPrefix:         cfg.RateLimit.KeyPrefix,
	}, logger)

	serverConfig := &httpserver.ServerConfig{
		Host:           cfg.Server.Host,
		Port:           cfg.Server.Port,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		IdleTimeout:    cfg.Server.IdleTimeout,
		TLSCertFile:    cfg.Server.TLSCertFile,
		TLSKeyFile:     cfg.Server.TLSKeyFile,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Environment:    cfg.Server.Environment,
	}

	server, err := httpserver.NewServer(serverConfig, logger, httpserver.ServerDeps{
		FlowService:        flowService,
		RateLimiterService: rateLimiterService,
		HealthCheckers:     healthCheckers,
		Metrics:            metrics,
		AuthAPIURL:         authClient.BaseURL(),
	})
	if err != nil {
		logger.Fatal("Failed to create server:", err)
	}

	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server:", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("Server forced to shutdown:", err)
	}

	logger.Info("Server exited")
}

func newLogger(cfg *config.LogConfig) *logrus.Logger {
	logger := logrus.New()
	if cfg.Format == "text" {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		logger.SetLevel(logrus.InfoLevel)
	} else {
		logger.SetLevel(level)
	}
	return logger
}
