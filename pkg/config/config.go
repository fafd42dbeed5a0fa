// Package config loads application configuration from environment
// variables with CANON_* keys.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/lectio/canon/pkg/observability"
	"github.com/lectio/canon/pkg/storage"
)

// Config holds all application configuration
type Config struct {
	Server  ServerConfig
	Storage storage.Config
	Auth    AuthConfig
	Redis   RedisConfig

	LogLevel observability.LogLevel
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for probes)
	HealthPort string
}

// AuthConfig holds credential settings
type AuthConfig struct {
	JWTSecret string
	JWTIssuer string
	TokenTTL  time.Duration
}

// RedisConfig holds the login rate limiter backend settings.
// An empty Addr disables rate limiting.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("CANON_HOST", "0.0.0.0"),
			Port:            getEnv("CANON_PORT", "8080"),
			ReadTimeout:     getEnvDuration("CANON_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("CANON_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvDuration("CANON_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("CANON_SHUTDOWN_TIMEOUT", 30*time.Second),
			HealthPort:      getEnv("CANON_HEALTH_PORT", "9090"),
		},
		Storage: storage.Config{
			Host:            getEnv("CANON_POSTGRES_HOST", "localhost"),
			Port:            getEnvInt("CANON_POSTGRES_PORT", 5432),
			User:            getEnv("CANON_POSTGRES_USER", "canon"),
			Password:        getEnv("CANON_POSTGRES_PASSWORD", ""),
			Database:        getEnv("CANON_POSTGRES_DB", "canon"),
			SSLMode:         getEnv("CANON_POSTGRES_SSLMODE", "disable"),
			MaxOpenConns:    getEnvInt("CANON_POSTGRES_MAX_CONNS", 25),
			MaxIdleConns:    getEnvInt("CANON_POSTGRES_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("CANON_POSTGRES_CONN_LIFETIME", 30*time.Minute),
			AcquireTimeout:  getEnvDuration("CANON_POSTGRES_ACQUIRE_TIMEOUT", storage.DefaultAcquireTimeout),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("CANON_JWT_SECRET", ""),
			JWTIssuer: getEnv("CANON_JWT_ISSUER", "canon"),
			TokenTTL:  getEnvDuration("CANON_TOKEN_TTL", time.Hour),
		},
		Redis: RedisConfig{
			Addr:     getEnv("CANON_REDIS_ADDR", ""),
			Password: getEnv("CANON_REDIS_PASSWORD", ""),
			DB:       getEnvInt("CANON_REDIS_DB", 0),
		},
		LogLevel: observability.ParseLevel(getEnv("CANON_LOG_LEVEL", "info")),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("CANON_JWT_SECRET is required")
	}
	if c.Storage.Host == "" {
		return fmt.Errorf("postgres host is required")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
