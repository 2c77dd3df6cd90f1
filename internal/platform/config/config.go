package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"leaveflow/internal/domain/leave"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

type Config struct {
	Addr               string
	Environment        string
	LogLevel           string
	StoreDriver        string
	DatabaseURL        string
	SQLitePath         string
	RunMigrations      bool
	JWTSecret          string
	CORSAllowedOrigins []string
	MaxBodyBytes       int64
	RateLimitPerMinute int
	EmailFrom          string
	EmailEnabled       bool
	EmailDomain        string
	SMTPHost           string
	SMTPPort           int
	SMTPUser           string
	SMTPPassword       string
	SMTPUseTLS         bool
	NotifyWorkers      int
	NotifyQueueSize    int
	CacheMaxEntries    int
	LeaveAllowances    string
	MetricsEnabled     bool
}

func Load() Config {
	return Config{
		Addr:               getEnv("APP_ADDR", ":8080"),
		Environment:        getEnv("APP_ENV", "development"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		StoreDriver:        strings.ToLower(getEnv("STORE_DRIVER", DriverPostgres)),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		SQLitePath:         getEnv("SQLITE_PATH", "leave.db"),
		RunMigrations:      getEnvBool("RUN_MIGRATIONS", true),
		JWTSecret:          getEnv("JWT_SECRET", ""),
		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS"),
		MaxBodyBytes:       int64(getEnvInt("MAX_BODY_BYTES", 1048576)),
		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 120),
		EmailFrom:          getEnv("EMAIL_FROM", "no-reply@example.com"),
		EmailEnabled:       getEnvBool("EMAIL_ENABLED", false),
		EmailDomain:        getEnv("EMAIL_DOMAIN", ""),
		SMTPHost:           getEnv("SMTP_HOST", ""),
		SMTPPort:           getEnvInt("SMTP_PORT", 587),
		SMTPUser:           getEnv("SMTP_USER", ""),
		SMTPPassword:       getEnv("SMTP_PASSWORD", ""),
		SMTPUseTLS:         getEnvBool("SMTP_USE_TLS", true),
		NotifyWorkers:      getEnvInt("NOTIFY_WORKERS", 2),
		NotifyQueueSize:    getEnvInt("NOTIFY_QUEUE_SIZE", 128),
		CacheMaxEntries:    getEnvInt("CACHE_MAX_ENTRIES", 1024),
		LeaveAllowances:    getEnv("LEAVE_ALLOWANCES", "Annual=20,Sick=10,Casual=7"),
		MetricsEnabled:     getEnvBool("METRICS_ENABLED", true),
	}
}

// Allowances parses LeaveAllowances into the dashboard table.
func (c Config) Allowances() (leave.AllowanceTable, error) {
	return leave.ParseAllowances(c.LeaveAllowances)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (c Config) Validate() error {
	switch c.StoreDriver {
	case DriverPostgres:
		if strings.TrimSpace(c.DatabaseURL) == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE_DRIVER is postgres")
		}
	case DriverSQLite:
		if strings.TrimSpace(c.SQLitePath) == "" {
			return fmt.Errorf("SQLITE_PATH is required when STORE_DRIVER is sqlite")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("STORE_DRIVER must be one of postgres, sqlite, memory")
	}
	if c.Environment == "production" {
		if strings.TrimSpace(c.JWTSecret) == "" {
			return fmt.Errorf("JWT_SECRET must be set to a strong value in production")
		}
		if c.StoreDriver == DriverMemory {
			return fmt.Errorf("STORE_DRIVER memory is not allowed in production")
		}
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error")
	}
	if c.MaxBodyBytes < 1024 {
		return fmt.Errorf("MAX_BODY_BYTES must be at least 1024")
	}
	if c.RateLimitPerMinute <= 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE must be positive")
	}
	if c.EmailEnabled && c.SMTPHost == "" {
		return fmt.Errorf("SMTP_HOST must be set when EMAIL_ENABLED is true")
	}
	if c.NotifyWorkers <= 0 {
		return fmt.Errorf("NOTIFY_WORKERS must be positive")
	}
	if c.NotifyQueueSize <= 0 {
		return fmt.Errorf("NOTIFY_QUEUE_SIZE must be positive")
	}
	if c.CacheMaxEntries <= 0 {
		return fmt.Errorf("CACHE_MAX_ENTRIES must be positive")
	}
	if _, err := c.Allowances(); err != nil {
		return fmt.Errorf("LEAVE_ALLOWANCES: %w", err)
	}
	return nil
}
