// Package config provides configuration management for the JanSahayak
// service.
//
// This package handles loading configuration from environment variables,
// validating required settings, and providing sensible defaults for
// optional parameters. Configuration is loaded once at startup and remains
// immutable during runtime for thread-safety.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (highest priority)
//  2. .env file in the working directory
//  3. Hard-coded defaults (lowest priority)
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all service configuration.
//
// This struct is immutable after creation to ensure thread-safety. All
// duration and timeout values are configurable via environment variables
// to allow tuning for different network conditions.
type Config struct {
	// HTTP server
	ListenPort string // Port the API server listens on

	// Storage
	DatabasePath string // SQLite file for the complaint store

	// Gemini collaborators (API key required)
	GeminiAPIKey string // API key shared by vision, planner and translator
	VisionModel  string // Vision model name
	PlannerModel string // Planning model name

	// Pipeline timing
	VisionTimeout time.Duration // Per-attempt vision call timeout
	PlanTimeout   time.Duration // Per-attempt planner call timeout
	RetryDelay    time.Duration // Delay before the single collaborator retry

	// Recurrence matching
	RecurrenceRadiusMeters float64       // Spatial match radius
	RecurrenceLookback     time.Duration // Match time window; 0 = unlimited

	// Plan backfill
	BackfillInterval time.Duration // Time between plan backfill sweeps

	// Telegram notifications (optional)
	TelegramBotToken string // Telegram bot API token
	TelegramChatID   string // Telegram chat ID for notifications

	// Daily digest
	DigestInterval time.Duration // Time between queue digest images

	// Debug mode - skips outbound notification calls for testing
	DebugMode bool
}

// LoadConfig loads configuration from environment variables with defaults.
//
// Loading process:
//  1. Try to load a .env file (optional, env vars still win)
//  2. Read environment variables
//  3. Apply hard-coded defaults for any missing optional values
//  4. Validate that all required fields are present
//
// Returns:
//   - *Config: Fully populated configuration struct
//   - error: Validation error if required fields are missing
func LoadConfig() (*Config, error) {
	// Optional .env file; real environment variables take precedence.
	_ = godotenv.Load()

	cfg := &Config{
		ListenPort:   getEnvOrDefault("LISTEN_PORT", "8080"),
		DatabasePath: getEnvOrDefault("DATABASE_PATH", "jansahayak.db"),

		// Gemini - key REQUIRED, models overridable
		GeminiAPIKey: os.Getenv("GEMINI_API_KEY"),
		VisionModel:  getEnvOrDefault("VISION_MODEL", "gemini-2.0-flash"),
		PlannerModel: getEnvOrDefault("PLANNER_MODEL", "gemini-2.0-flash"),

		// Timing - tuned for typical model response times
		VisionTimeout: getEnvDuration("VISION_TIMEOUT", 30*time.Second),
		PlanTimeout:   getEnvDuration("PLAN_TIMEOUT", 30*time.Second),
		RetryDelay:    getEnvDuration("RETRY_DELAY", 2*time.Second),

		// Recurrence - 100 m radius, unlimited lookback by default
		RecurrenceRadiusMeters: getEnvFloat("RECURRENCE_RADIUS_METERS", 100),
		RecurrenceLookback:     getEnvDuration("RECURRENCE_LOOKBACK", 0),

		// Backfill - sweep every 15 minutes
		BackfillInterval: getEnvDuration("BACKFILL_INTERVAL", 15*time.Minute),

		// Telegram - optional, notifications disabled if not set
		TelegramBotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramChatID:   os.Getenv("TELEGRAM_CHAT_ID"),

		// Digest - daily summary image
		DigestInterval: getEnvDuration("DIGEST_INTERVAL", 24*time.Hour),

		// Debug mode - default false (production mode)
		DebugMode: getEnvOrDefault("DEBUG_MODE", "false") == "true",
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that required configuration is present and values are
// sensible.
//
// Validation rules:
//   - GEMINI_API_KEY must be non-empty (both collaborators need it)
//   - Listen port and database path must be non-empty
//   - Radius and timeouts must be positive
//
// Returns:
//   - error: Descriptive error if validation fails, nil if all checks pass
func (c *Config) Validate() error {
	if c.GeminiAPIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY environment variable is required")
	}
	if c.ListenPort == "" {
		return fmt.Errorf("LISTEN_PORT cannot be empty")
	}
	if c.DatabasePath == "" {
		return fmt.Errorf("DATABASE_PATH cannot be empty")
	}
	if c.RecurrenceRadiusMeters <= 0 {
		return fmt.Errorf("RECURRENCE_RADIUS_METERS must be positive, got %v", c.RecurrenceRadiusMeters)
	}
	if c.VisionTimeout <= 0 {
		return fmt.Errorf("VISION_TIMEOUT must be positive, got %v", c.VisionTimeout)
	}
	if c.PlanTimeout <= 0 {
		return fmt.Errorf("PLAN_TIMEOUT must be positive, got %v", c.PlanTimeout)
	}
	return nil
}

// Helper functions for environment variable parsing

// getEnvOrDefault returns the environment variable value or a default if not set
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvFloat returns the environment variable as a float or a default if not set/invalid
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration returns the environment variable as a duration or a default if not set/invalid.
//
// Accepts standard Go duration strings like "5s", "10m", "1h30m"
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
