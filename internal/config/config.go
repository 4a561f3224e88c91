package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	Port         int
	DevMode      bool
	DatabasePath string
	LogLevel     string

	// SchedulerToken authenticates external scheduler triggers.
	// An empty token permanently disables the trigger endpoints.
	SchedulerToken string

	// MarketTimezone is the fixed reporting timezone all dispatch
	// decisions are made in.
	MarketTimezone string

	// InternalScheduler runs the cron-driven in-process timer instead of
	// relying on an external one hitting the trigger endpoint.
	InternalScheduler bool

	// FetchDelay is the pause between successive upstream quote requests.
	FetchDelay time.Duration

	// VacationCacheTTL bounds how long the cached vacation flag is trusted.
	VacationCacheTTL time.Duration
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Port:              getEnvAsInt("PORT", 8010),
		DevMode:           getEnvAsBool("DEV_MODE", false),
		DatabasePath:      getEnv("DATABASE_PATH", "./data/market.db"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		SchedulerToken:    getEnv("SCHEDULER_TOKEN", ""),
		MarketTimezone:    getEnv("MARKET_TIMEZONE", "Asia/Seoul"),
		InternalScheduler: getEnvAsBool("INTERNAL_SCHEDULER", false),
		FetchDelay:        getEnvAsDuration("FETCH_DELAY", 1500*time.Millisecond),
		VacationCacheTTL:  getEnvAsDuration("VACATION_CACHE_TTL", 30*time.Minute),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.DatabasePath == "" {
		return fmt.Errorf("DATABASE_PATH is required")
	}
	if _, err := time.LoadLocation(c.MarketTimezone); err != nil {
		return fmt.Errorf("invalid MARKET_TIMEZONE %q: %w", c.MarketTimezone, err)
	}
	if c.FetchDelay < 0 {
		return fmt.Errorf("FETCH_DELAY must not be negative")
	}
	return nil
}

// Location resolves the configured market timezone.
// Validate guarantees this cannot fail after Load.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.MarketTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
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
