package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"market-feedv1/internal/model"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Subscription
	Symbol   string
	Interval string

	// Venue transport
	WSURLs      string // comma-separated failover list; empty = venue defaults
	RESTBaseURL string

	// Session policy
	MaxReconnectAttempts int // full endpoint-list rotations before giving up; 0 = retry forever
	ThrottleMs           int
	SeedLimit            int
	WorkerDepth          int

	// Infrastructure
	RedisAddr     string
	RedisPassword string
	RedisEnabled  bool
	MetricsAddr   string
	GatewayAddr   string

	LogLevel string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		Symbol:   getEnv("SYMBOL", "BTC-USDT"),
		Interval: getEnv("INTERVAL", "1m"),

		WSURLs:      getEnv("WS_URLS", ""),
		RESTBaseURL: getEnv("REST_BASE_URL", ""),

		MaxReconnectAttempts: getEnvInt("MAX_RECONNECT_ATTEMPTS", 0),
		ThrottleMs:           getEnvInt("THROTTLE_MS", 100),
		SeedLimit:            getEnvInt("SEED_LIMIT", 100),
		WorkerDepth:          getEnvInt("WORKER_DEPTH", 64),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisEnabled:  getEnvBool("REDIS_ENABLED", false),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9090"),
		GatewayAddr:   getEnv("GATEWAY_ADDR", ":8080"),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}

// Target builds the initial subscription target.
func (c *Config) Target() model.SubscriptionTarget {
	return model.SubscriptionTarget{
		Symbol:   c.Symbol,
		Interval: model.Interval(c.Interval),
	}
}

// Endpoints parses the WS_URLS list into the ordered failover list. An empty
// value selects the venue defaults.
func (c *Config) Endpoints() []model.Endpoint {
	if strings.TrimSpace(c.WSURLs) == "" {
		return model.DefaultEndpoints()
	}
	parts := strings.Split(c.WSURLs, ",")
	eps := make([]model.Endpoint, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		eps = append(eps, model.ParseEndpoint(p))
	}
	if len(eps) == 0 {
		return model.DefaultEndpoints()
	}
	return eps
}

// ThrottleWindow returns the sink coalescing window.
func (c *Config) ThrottleWindow() time.Duration {
	if c.ThrottleMs <= 0 {
		return 100 * time.Millisecond
	}
	return time.Duration(c.ThrottleMs) * time.Millisecond
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %d", key, v, fallback)
		return fallback
	}
	return n
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %v", key, v, fallback)
		return fallback
	}
	return b
}
