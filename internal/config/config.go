// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir  string // Base directory for the ledger database (always absolute)
	Port     int
	LogLevel string
	DevMode  bool

	// Price oracle tuning
	QuoteTTL     time.Duration // How long a cached quote counts as fresh
	HistoryTTL   time.Duration // How long a cached history series counts as fresh
	FetchTimeout time.Duration // Per-call bound on provider requests

	// Snapshot computation
	SnapshotTimeout   time.Duration // Wall-clock bound on a whole snapshot fan-in
	LookupConcurrency int           // Concurrent price lookups per snapshot

	// Market data provider
	ProviderRateLimit float64 // Requests per second allowed against the provider

	// Background refresh of held symbols ("" disables the job)
	RefreshSchedule string
}

// Load reads configuration from environment variables, with an optional .env
// file for local development.
func Load() (*Config, error) {
	_ = godotenv.Load()

	dataDir := getEnv("LEDGERVIEW_DATA_DIR", "./data")
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:           absDataDir,
		Port:              getEnvAsInt("PORT", 8080),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		DevMode:           getEnvAsBool("DEV_MODE", false),
		QuoteTTL:          getEnvAsDuration("QUOTE_TTL", 60*time.Second),
		HistoryTTL:        getEnvAsDuration("HISTORY_TTL", 15*time.Minute),
		FetchTimeout:      getEnvAsDuration("FETCH_TIMEOUT", 5*time.Second),
		SnapshotTimeout:   getEnvAsDuration("SNAPSHOT_TIMEOUT", 15*time.Second),
		LookupConcurrency: getEnvAsInt("LOOKUP_CONCURRENCY", 8),
		ProviderRateLimit: getEnvAsFloat("PROVIDER_RATE_LIMIT", 5),
		RefreshSchedule:   getEnv("REFRESH_SCHEDULE", "@every 5m"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the configuration is internally consistent
func (c *Config) Validate() error {
	if c.QuoteTTL <= 0 {
		return fmt.Errorf("quote TTL must be positive, got %s", c.QuoteTTL)
	}
	if c.FetchTimeout <= 0 {
		return fmt.Errorf("fetch timeout must be positive, got %s", c.FetchTimeout)
	}
	if c.SnapshotTimeout < c.FetchTimeout {
		return fmt.Errorf("snapshot timeout %s must not be shorter than fetch timeout %s",
			c.SnapshotTimeout, c.FetchTimeout)
	}
	if c.LookupConcurrency < 1 {
		return fmt.Errorf("lookup concurrency must be at least 1, got %d", c.LookupConcurrency)
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
