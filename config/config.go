// Package config binds every environment variable spec.md §6 names to a
// real field, via the teacher's caarlos0/env-based loader.
package config

import (
	"strings"
	"time"
)

// Config is the gateway's full runtime configuration.
type Config struct {
	DatabaseURL string `env:"DATABASE_URL,required"`
	RedisURL    string `env:"REDIS_URL,required"`

	JWTSecretKey             string `env:"JWT_SECRET_KEY,required"`
	JWTAlgorithm             string `env:"JWT_ALGORITHM" envDefault:"HS256"`
	AccessTokenExpireMinutes int    `env:"ACCESS_TOKEN_EXPIRE_MINUTES" envDefault:"60"`

	RateLimitMaxRequests     int `env:"RATE_LIMIT_MAX_REQUESTS" envDefault:"100"`
	RateLimitWindowSeconds   int `env:"RATE_LIMIT_WINDOW_SECONDS" envDefault:"60"`
	ReplayProtectionWindowS  int `env:"REPLAY_PROTECTION_WINDOW_SECONDS" envDefault:"300"`
	ForwardingTimeoutSeconds int `env:"FORWARDING_TIMEOUT_SECONDS" envDefault:"10"`
	MaxPayloadSizeBytes      int `env:"MAX_PAYLOAD_SIZE_BYTES" envDefault:"1000000"`

	CORSOrigins string `env:"CORS_ORIGINS" envDefault:""`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	Debug       bool   `env:"DEBUG" envDefault:"false"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	HTTPAddr           string        `env:"HTTP_ADDR" envDefault:":8080"`
	MaxForwardConcurr  int64         `env:"MAX_FORWARD_CONCURRENCY" envDefault:"50"`
	ShutdownGracePeriod time.Duration `env:"SHUTDOWN_GRACE_PERIOD" envDefault:"30s"`

	MigrationsPath string `env:"MIGRATIONS_PATH" envDefault:"migrations"`
}

// RateLimitWindow is RateLimitWindowSeconds as a time.Duration.
func (c *Config) RateLimitWindow() time.Duration {
	return time.Duration(c.RateLimitWindowSeconds) * time.Second
}

// ReplayProtectionWindow is ReplayProtectionWindowS as a time.Duration.
func (c *Config) ReplayProtectionWindow() time.Duration {
	return time.Duration(c.ReplayProtectionWindowS) * time.Second
}

// ForwardingTimeout is ForwardingTimeoutSeconds as a time.Duration.
func (c *Config) ForwardingTimeout() time.Duration {
	return time.Duration(c.ForwardingTimeoutSeconds) * time.Second
}

// CORSOriginList splits CORSOrigins on commas, trimming whitespace and
// dropping empty entries.
func (c *Config) CORSOriginList() []string {
	if strings.TrimSpace(c.CORSOrigins) == "" {
		return nil
	}
	parts := strings.Split(c.CORSOrigins, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
