package configs

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	FlowStoreRedis  = "redis"
	FlowStoreMemory = "memory"
)

type Config struct {
	Server    ServerConfig
	AuthAPI   AuthAPIConfig
	Redis     RedisConfig
	Flow      FlowConfig
	Log       LogConfig
	RateLimit RateLimitConfig
}

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

// AuthAPIConfig points at the external auth service. The same base URL backs
// the typed client and the /api reverse proxy.
type AuthAPIConfig struct {
	BaseURL string
	Timeout time.Duration
	// CookieJar keeps auth cookies inside the client. Only for single-user
	// processes; the server forwards each browser's cookies instead.
	CookieJar bool
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	// Pool and timeout settings
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolTimeout  time.Duration
	IdleTimeout  time.Duration
}

type FlowConfig struct {
	Store          string // redis or memory
	KeyPrefix      string
	TTL            time.Duration
	RequestTimeout time.Duration // per auth API call; also when an in-flight marker counts as abandoned
}

type LogConfig struct {
	Level  string
	Format string // json or text
}

// RateLimitConfig bounds how many code emails a single client can trigger.
type RateLimitConfig struct {
	SendRequestsPerWindow int
	BurstMultiplier       float64
	Window                time.Duration
	KeyPrefix             string
}

func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Host:           getEnv("SERVER_HOST", "0.0.0.0"),
			Port:           getEnv("SERVER_PORT", "8080"),
			ReadTimeout:    getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:   getDurationEnv("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:    getDurationEnv("SERVER_IDLE_TIMEOUT", 120*time.Second),
			TLSCertFile:    getEnv("TLS_CERT_FILE", ""),
			TLSKeyFile:     getEnv("TLS_KEY_FILE", ""),
			AllowedOrigins: getListEnv("ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
			Environment:    getEnv("ENVIRONMENT", "development"),
		},
		AuthAPI: AuthAPIConfig{
			BaseURL: strings.TrimRight(getEnv("AUTH_API_URL", "http://localhost:3001"), "/"),
			Timeout: getDurationEnv("AUTH_API_TIMEOUT", 10*time.Second),
		},
		Redis: RedisConfig{
			Host:         getEnv("REDIS_HOST", "localhost"),
			Port:         getEnv("REDIS_PORT", "6379"),
			Password:     getEnv("REDIS_PASSWORD", ""),
			DB:           getIntEnv("REDIS_DB", 0),
			PoolSize:     getIntEnv("REDIS_POOL_SIZE", 10),
			MinIdleConns: getIntEnv("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  getDurationEnv("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getDurationEnv("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getDurationEnv("REDIS_WRITE_TIMEOUT", 3*time.Second),
			PoolTimeout:  getDurationEnv("REDIS_POOL_TIMEOUT", 4*time.Second),
			IdleTimeout:  getDurationEnv("REDIS_IDLE_TIMEOUT", 5*time.Minute),
		},
		Flow: FlowConfig{
			Store:          strings.ToLower(getEnv("FLOW_STORE", FlowStoreRedis)),
			KeyPrefix:      getEnv("FLOW_KEY_PREFIX", "storefront"),
			TTL:            getDurationEnv("FLOW_TTL", 30*time.Minute),
			RequestTimeout: getDurationEnv("FLOW_REQUEST_TIMEOUT", 15*time.Second),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		RateLimit: RateLimitConfig{
			SendRequestsPerWindow: getIntEnv("RATE_LIMIT_SEND_RPM", 5),
			BurstMultiplier:       getFloatEnv("RATE_LIMIT_BURST", 1.0),
			Window:                getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),
			KeyPrefix:             getEnv("RATE_LIMIT_KEY_PREFIX", "ratelimit:send"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Flow.Store {
	case FlowStoreRedis, FlowStoreMemory:
	default:
		return fmt.Errorf("invalid FLOW_STORE %q: want %s or %s", c.Flow.Store, FlowStoreRedis, FlowStoreMemory)
	}
	u, err := url.Parse(c.AuthAPI.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid AUTH_API_URL %q", c.AuthAPI.BaseURL)
	}
	if c.Flow.TTL <= 0 {
		return fmt.Errorf("FLOW_TTL must be positive")
	}
	if c.Flow.RequestTimeout <= 0 {
		return fmt.Errorf("FLOW_REQUEST_TIMEOUT must be positive")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getListEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}
