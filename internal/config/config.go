// Package config loads process settings from the environment and handler
// definitions from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Region filter
	TargetRegion string
	RegionsPath  string

	// Handlers
	HandlersConfigPath string
	PollInterval       time.Duration
	CycleTimeout       time.Duration
	RetryAttempts      int
	RetryDelay         time.Duration

	// Snapshot storage
	SnapshotBackend string // file | sqlite | postgres
	SnapshotDir     string
	SQLitePath      string
	DatabaseURL     string

	// Telegram settings
	TelegramToken       string
	TelegramChatID      string
	NotifyRatePerMinute int

	WebhookURL string

	// Region resolver memo; zero disables it
	ResolverCacheTTL time.Duration

	// Browser
	BrowserRemoteURL string
	BrowserHeadless  bool

	// Monitoring
	EnableMonitoring bool
	MonitoringPort   string

	// App settings
	Debug     bool
	LogFormat string
}

// Load reads .env when present, then the environment, and validates.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config: .env: %w", err)
	}

	cfg := &Config{
		TargetRegion:       getEnvOrDefault("TARGET_REGION", "Zurich"),
		RegionsPath:        getEnvOrDefault("REGIONS_PATH", "configs/cantons.csv"),
		HandlersConfigPath: getEnvOrDefault("HANDLERS_CONFIG_PATH", "configs/handlers.yaml"),
		PollInterval:       getEnvDurationOrDefault("POLL_INTERVAL", 5*time.Minute),
		CycleTimeout:       getEnvDurationOrDefault("CYCLE_TIMEOUT", 2*time.Minute),
		RetryAttempts:      getEnvIntOrDefault("RETRY_ATTEMPTS", 2),
		RetryDelay:         getEnvDurationOrDefault("RETRY_DELAY", 5*time.Second),

		SnapshotBackend: strings.ToLower(getEnvOrDefault("SNAPSHOT_BACKEND", "file")),
		SnapshotDir:     getEnvOrDefault("SNAPSHOT_DIR", "."),
		SQLitePath:      getEnvOrDefault("SQLITE_PATH", "roomwatch.db"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),

		TelegramToken:       os.Getenv("TELEGRAM_TOKEN"),
		TelegramChatID:      os.Getenv("TELEGRAM_CHAT_ID"),
		NotifyRatePerMinute: getEnvIntOrDefault("NOTIFY_RATE_PER_MINUTE", 20),
		WebhookURL:          os.Getenv("WEBHOOK_URL"),

		ResolverCacheTTL: getEnvDurationOrDefault("RESOLVER_CACHE_TTL", time.Hour),

		BrowserRemoteURL: os.Getenv("BROWSER_REMOTE_URL"),
		BrowserHeadless:  getEnvBoolOrDefault("BROWSER_HEADLESS", true),

		EnableMonitoring: getEnvBoolOrDefault("ENABLE_HTTP_MONITORING", false),
		MonitoringPort:   getEnvOrDefault("MONITORING_PORT", "8080"),

		Debug:     getEnvBoolOrDefault("DEBUG", false),
		LogFormat: strings.ToLower(getEnvOrDefault("LOG_FORMAT", "text")),
	}

	return cfg, cfg.Validate()
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvDurationOrDefault accepts Go durations ("90s", "5m") or a plain
// number of seconds.
func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.TargetRegion) == "" {
		return fmt.Errorf("TARGET_REGION is required")
	}
	if (c.TelegramToken == "") != (c.TelegramChatID == "") {
		return fmt.Errorf("TELEGRAM_TOKEN and TELEGRAM_CHAT_ID must be set together")
	}
	switch c.SnapshotBackend {
	case "file", "sqlite":
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for SNAPSHOT_BACKEND=postgres")
		}
	default:
		return fmt.Errorf("SNAPSHOT_BACKEND must be 'file', 'sqlite' or 'postgres'")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("POLL_INTERVAL must be positive")
	}
	if c.CycleTimeout <= 0 {
		return fmt.Errorf("CYCLE_TIMEOUT must be positive")
	}
	if c.RetryAttempts < 1 {
		return fmt.Errorf("RETRY_ATTEMPTS must be at least 1")
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("LOG_FORMAT must be 'text' or 'json'")
	}
	return nil
}
