package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port            string
	SecretKey       string
	SessionTTL      time.Duration
	SecureCookie    bool
	CommuteCategory string

	LogLevel  string
	LogFormat string

	DB DBConfig
}

type DBConfig struct {
	Driver string // sqlite or postgres
	Path   string

	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Load reads the configuration from the environment. A .env file in the
// working directory is loaded first when present; real environment
// variables take precedence over it.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port:            getEnv("PORT", "8080"),
		SecretKey:       os.Getenv("SECRET_KEY"),
		SessionTTL:      getEnvDuration("SESSION_TTL", 24*time.Hour),
		SecureCookie:    getEnvBool("SECURE_COOKIE", false),
		CommuteCategory: getEnv("COMMUTE_CATEGORY", "commute"),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),

		DB: DBConfig{
			Driver:   getEnv("DB_DRIVER", DriverSQLite),
			Path:     getEnv("DB_PATH", "kakeibo.db"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     os.Getenv("DB_USER"),
			Password: os.Getenv("DB_PASSWORD"),
			Name:     os.Getenv("DB_NAME"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),

			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
		},
	}
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if c.SecretKey == "" {
		errors = append(errors, "SECRET_KEY is required for session signing")
	}

	if c.SessionTTL < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid session ttl %v: must be at least 1 minute", c.SessionTTL))
	}

	if c.LogFormat != "text" && c.LogFormat != "json" {
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be text or json", c.LogFormat))
	}

	switch c.DB.Driver {
	case DriverSQLite:
		if c.DB.Path == "" {
			errors = append(errors, "DB_PATH cannot be empty when using sqlite driver")
		}
	case DriverPostgres:
		if c.DB.Host == "" {
			errors = append(errors, "DB_HOST is required when using postgres driver")
		}
		if c.DB.User == "" {
			errors = append(errors, "DB_USER is required when using postgres driver")
		}
		if c.DB.Name == "" {
			errors = append(errors, "DB_NAME is required when using postgres driver")
		}
		if port, err := strconv.Atoi(c.DB.Port); err != nil || port < 1 || port > 65535 {
			errors = append(errors, fmt.Sprintf("invalid database port '%s'", c.DB.Port))
		}
	default:
		errors = append(errors, fmt.Sprintf("invalid database driver '%s': must be one of [%s %s]", c.DB.Driver, DriverSQLite, DriverPostgres))
	}

	if c.DB.MaxOpenConns < 1 {
		errors = append(errors, fmt.Sprintf("invalid max open conns %d: must be at least 1", c.DB.MaxOpenConns))
	}
	if c.DB.MaxIdleConns < 0 {
		errors = append(errors, fmt.Sprintf("invalid max idle conns %d: must not be negative", c.DB.MaxIdleConns))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

const sqlitePragmas = "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"

// DSN returns the connection string for the configured driver.
func (d DBConfig) DSN() string {
	if d.Driver == DriverPostgres {
		return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
	}
	if strings.Contains(d.Path, "?") {
		return d.Path
	}
	// Pooled connections wait for each other instead of failing with SQLITE_BUSY
	return d.Path + sqlitePragmas
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
