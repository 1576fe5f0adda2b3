package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// HTTP Server
	Port string

	// Database
	SQLiteDBPath string

	// Ledger input and report output
	LedgerDir          string
	OutputDir          string
	OutputBucket       string
	OutputPrefix       string
	GCSCredentialsFile string

	// Scheduler
	PollEnabled   bool
	PollInterval  time.Duration
	PollBatchSize int

	// AMQP (optional completion notifications)
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Cycle lock
	RedisAddress string
	LockKey      string
	LockTTL      time.Duration

	// Logging
	LogLevel  string
	LogFormat string
}

func Load() *Config {
	cfg := &Config{
		Port:         getEnv("PORT", "8080"),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/reports.db"),

		LedgerDir:          getEnv("LEDGER_DIR", "tmp"),
		OutputDir:          getEnv("OUTPUT_DIR", "out"),
		OutputBucket:       getEnv("OUTPUT_BUCKET", ""),
		OutputPrefix:       getEnv("OUTPUT_PREFIX", ""),
		GCSCredentialsFile: getEnv("GCS_CREDENTIALS_FILE", ""),

		PollEnabled:   getEnvBool("POLL_ENABLED", true),
		PollInterval:  getEnvDuration("POLL_INTERVAL", 60*time.Second),
		PollBatchSize: getEnvInt("POLL_BATCH_SIZE", 10),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "reports"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "report_events"),

		RedisAddress: getEnv("REDIS_ADDRESS", ""),
		LockKey:      getEnv("LOCK_KEY", "reports:poll-cycle"),
		LockTTL:      getEnvDuration("LOCK_TTL", 10*time.Minute),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
	}

	return cfg
}

// UsesGCS reports whether finished reports go to a bucket instead of OutputDir.
func (c *Config) UsesGCS() bool {
	return c.OutputBucket != ""
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	// Validate port
	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if c.SQLiteDBPath == "" {
		errors = append(errors, "SQLite database path cannot be empty")
	} else {
		dir := filepath.Dir(c.SQLiteDBPath)
		if dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0755); err != nil {
					errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
				}
			}
		}
	}

	if c.LedgerDir == "" {
		errors = append(errors, "ledger directory cannot be empty")
	}

	if c.UsesGCS() {
		if strings.HasPrefix(c.OutputPrefix, "/") {
			errors = append(errors, fmt.Sprintf("invalid output prefix '%s': must not start with '/'", c.OutputPrefix))
		}
		if c.GCSCredentialsFile != "" {
			if _, err := os.Stat(c.GCSCredentialsFile); os.IsNotExist(err) {
				errors = append(errors, fmt.Sprintf("GCS credentials file does not exist: %s", c.GCSCredentialsFile))
			}
		}
	} else if c.OutputDir == "" {
		errors = append(errors, "output directory cannot be empty when no output bucket is set")
	}

	// Validate AMQP URL if provided
	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.RedisAddress != "" {
		if c.LockKey == "" {
			errors = append(errors, "lock key cannot be empty when Redis address is provided")
		}
		if c.LockTTL < time.Second {
			errors = append(errors, fmt.Sprintf("invalid lock TTL %v: must be at least 1 second", c.LockTTL))
		}
	}

	// Validate scheduler configuration
	if c.PollBatchSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid poll batch size %d: must be at least 1", c.PollBatchSize))
	} else if c.PollBatchSize > 1000 {
		errors = append(errors, fmt.Sprintf("invalid poll batch size %d: must be at most 1000", c.PollBatchSize))
	}

	if c.PollInterval < time.Second {
		errors = append(errors, fmt.Sprintf("invalid poll interval %v: must be at least 1 second", c.PollInterval))
	} else if c.PollInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid poll interval %v: must be at most 24 hours", c.PollInterval))
	}

	validLevels := []string{"debug", "info", "warn", "error"}
	if !slices.Contains(validLevels, strings.ToLower(c.LogLevel)) {
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be one of %v", c.LogLevel, validLevels))
	}
	validFormats := []string{"text", "json"}
	if !slices.Contains(validFormats, strings.ToLower(c.LogFormat)) {
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be one of %v", c.LogFormat, validFormats))
	}

	// Return combined errors
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
