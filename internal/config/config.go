// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// devFallbackSecret is used when HMAC_SECRET is unset. Main logs a
// warning when it is in effect.
const devFallbackSecret = "fallback-dev-key-change-in-production"

// Config holds all application configuration. Protocol tunables live
// in engine.Params; this covers deployment-level knobs only.
type Config struct {
	Port         string
	StoreBackend string // "redis", "sqlite" or "memory"
	RedisURL     string
	DBPath       string
	HMACSecret   string
	SessionTTL   time.Duration

	AllowedOrigins []string

	// Per-route rate limits, requests per minute per client IP.
	SessionRateLimit int
	RespondRateLimit int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:             getEnv("PORT", "8080"),
		StoreBackend:     strings.ToLower(getEnv("STORE_BACKEND", "redis")),
		RedisURL:         getEnv("REDIS_URL", "redis://localhost:6379"),
		DBPath:           getEnv("DB_PATH", "./data/paradox.db"),
		HMACSecret:       getEnv("HMAC_SECRET", devFallbackSecret),
		SessionTTL:       time.Duration(getEnvInt("SESSION_TTL_SECONDS", 600)) * time.Second,
		AllowedOrigins:   strings.Split(getEnv("ALLOWED_ORIGINS", "*"), ","),
		SessionRateLimit: getEnvInt("SESSION_RATE_LIMIT", 5),
		RespondRateLimit: getEnvInt("RESPOND_RATE_LIMIT", 10),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that all required configuration fields are sane.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	switch c.StoreBackend {
	case "redis", "sqlite", "memory":
	default:
		return fmt.Errorf("STORE_BACKEND must be redis, sqlite or memory, got %q", c.StoreBackend)
	}
	if c.StoreBackend == "redis" && c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL cannot be empty")
	}
	if c.StoreBackend == "sqlite" && c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL_SECONDS must be > 0")
	}
	if c.SessionRateLimit <= 0 || c.RespondRateLimit <= 0 {
		return fmt.Errorf("rate limits must be > 0")
	}
	return nil
}

// UsingDevSecret reports whether the fallback development secret is in
// effect.
func (c *Config) UsingDevSecret() bool {
	return c.HMACSecret == devFallbackSecret
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}
