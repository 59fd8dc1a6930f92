package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
// Supports environment variables with sensible defaults
//
// Environment Variables:
// Supadata Configuration:
// - SUPADATA_API_URL: Transcript API base URL (default: https://api.supadata.ai/v1/transcript)
// - SUPADATA_TIMEOUT: Request timeout in seconds (default: 30)
// - SUPADATA_POLL_INTERVAL: Async job poll interval (default: 1s)
// - SUPADATA_MAX_POLLS: Async job poll ceiling (default: 90)
//
// Gemini Configuration:
// - GEMINI_API_KEY: Gemini API key (optional, actions report API_KEYS_MISSING without it)
// - GEMINI_API_URL: Gemini API base URL (default: https://generativelanguage.googleapis.com/v1beta)
// - GEMINI_MODEL: Model name (default: gemini-2.5-flash-lite)
// - GEMINI_TIMEOUT: Request timeout in seconds (default: 120)
// - SUMMARY_LANGUAGE: Response language, "auto" or a BCP 47 code (default: auto)
//
// Cache Configuration:
// - CACHE_TTL: Transcript cache entry lifetime (default: 6h)
// - CACHE_MAX_ENTRIES: Per-tier capacity (default: 20)
// - CACHE_SWEEP_CRON: Persisted-tier sweep schedule (default: @every 10m)
//
// System Configuration:
// - DB_PATH: SQLite database path (default: data/smartube.db)
// - HTTP_ADDR: HTTP listen address (default: :8787)
// - LOG_LEVEL: debug/info/warn/error (default: info)
// - LOG_FILE: Log file path, stdout when empty

type Config struct {
	Supadata SupadataConfig `json:"supadata"`
	Gemini   GeminiConfig   `json:"gemini"`
	Cache    CacheConfig    `json:"cache"`
	System   SystemConfig   `json:"system"`
}

// SupadataConfig holds the transcript provider settings
type SupadataConfig struct {
	APIURL       string        `json:"api_url"`
	Timeout      int           `json:"timeout"`
	PollInterval time.Duration `json:"poll_interval"`
	MaxPolls     int           `json:"max_polls"`
}

// GeminiConfig holds the LLM provider settings
type GeminiConfig struct {
	APIKey          string `json:"api_key"`
	APIURL          string `json:"api_url"`
	Model           string `json:"model"`
	Timeout         int    `json:"timeout"`
	SummaryLanguage string `json:"summary_language"`
}

// CacheConfig holds the transcript cache settings
type CacheConfig struct {
	TTL        time.Duration `json:"ttl"`
	MaxEntries int           `json:"max_entries"`
	SweepCron  string        `json:"sweep_cron"`
}

// SystemConfig holds the system configuration
type SystemConfig struct {
	DBPath   string `json:"db_path"`
	HTTPAddr string `json:"http_addr"`
	LogLevel string `json:"log_level"`
	LogFile  string `json:"log_file"`
}

// Option is a function type for configuring Config
type Option func(*Config)

// WithDBPath overrides the SQLite database path
func WithDBPath(path string) Option {
	return func(c *Config) { c.System.DBPath = path }
}

// NewFromEnv creates a new Config instance with values from environment variables and options
func NewFromEnv(opts ...Option) (*Config, error) {
	config := &Config{
		Supadata: SupadataConfig{
			APIURL:       getEnvString("SUPADATA_API_URL", "https://api.supadata.ai/v1/transcript"),
			Timeout:      getEnvInt("SUPADATA_TIMEOUT", 30),
			PollInterval: getEnvDuration("SUPADATA_POLL_INTERVAL", time.Second),
			MaxPolls:     getEnvInt("SUPADATA_MAX_POLLS", 90),
		},
		Gemini: GeminiConfig{
			APIKey:          getEnvString("GEMINI_API_KEY", ""),
			APIURL:          getEnvString("GEMINI_API_URL", "https://generativelanguage.googleapis.com/v1beta"),
			Model:           getEnvString("GEMINI_MODEL", "gemini-2.5-flash-lite"),
			Timeout:         getEnvInt("GEMINI_TIMEOUT", 120),
			SummaryLanguage: getEnvString("SUMMARY_LANGUAGE", "auto"),
		},
		Cache: CacheConfig{
			TTL:        getEnvDuration("CACHE_TTL", 6*time.Hour),
			MaxEntries: getEnvInt("CACHE_MAX_ENTRIES", 20),
			SweepCron:  getEnvString("CACHE_SWEEP_CRON", "@every 10m"),
		},
		System: SystemConfig{
			DBPath:   getEnvString("DB_PATH", "data/smartube.db"),
			HTTPAddr: getEnvString("HTTP_ADDR", ":8787"),
			LogLevel: getEnvString("LOG_LEVEL", "info"),
			LogFile:  getEnvString("LOG_FILE", ""),
		},
	}

	// Apply custom options
	for _, opt := range opts {
		opt(config)
	}

	// Validate required configuration
	if err := config.validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// validate checks if all required configuration is properly set
func (c *Config) validate() error {
	if c.Supadata.APIURL == "" {
		return fmt.Errorf("SUPADATA_API_URL is required")
	}
	if c.Supadata.PollInterval <= 0 {
		return fmt.Errorf("SUPADATA_POLL_INTERVAL must be positive")
	}
	if c.Supadata.MaxPolls <= 0 {
		return fmt.Errorf("SUPADATA_MAX_POLLS must be positive")
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("CACHE_TTL must be positive")
	}
	if c.Cache.MaxEntries <= 0 {
		return fmt.Errorf("CACHE_MAX_ENTRIES must be positive")
	}
	if c.System.HTTPAddr == "" {
		return fmt.Errorf("HTTP_ADDR is required")
	}
	return nil
}

// getEnvString gets a string value from environment variables with default
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer value from environment variables with default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvDuration gets a duration value from environment variables with default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
