// Package config loads server settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store backends accepted in STORE.
const (
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

var validStores = []string{StoreSQLite, StorePostgres, StoreMemory}

type Config struct {
	// HTTP server
	Port            string
	SecureCookie    bool
	ShutdownTimeout time.Duration

	// Storage
	Store       string
	DBPath      string
	DatabaseDSN string

	// Accounts
	AllowRegistration bool
	AdminUser         string
	AdminPassword     string

	SessionCleanupInterval time.Duration

	// Logging
	LogLevel  string
	LogFormat string
}

// Load reads .env when present and then the process environment. A missing
// .env file is not an error; the returned bool reports whether one was read.
func Load() (*Config, bool) {
	loaded := godotenv.Load() == nil
	return FromEnv(), loaded
}

// FromEnv builds a Config from the process environment only.
func FromEnv() *Config {
	return &Config{
		Port:            getEnv("PORT", "8080"),
		SecureCookie:    getEnvBool("SECURE_COOKIE", false),
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 15*time.Second),

		Store:       strings.ToLower(getEnv("STORE", StoreSQLite)),
		DBPath:      getEnv("DB_PATH", "expenses.db"),
		DatabaseDSN: getEnv("DATABASE_DSN", ""),

		AllowRegistration: getEnvBool("ALLOW_REGISTRATION", true),
		AdminUser:         getEnv("ADMIN_USER", ""),
		AdminPassword:     getEnv("ADMIN_PASSWORD", ""),

		SessionCleanupInterval: getEnvDuration("SESSION_CLEANUP_INTERVAL", time.Hour),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "console"),
	}
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return ":" + c.Port
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errs []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errs = append(errs, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errs = append(errs, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if !slices.Contains(validStores, c.Store) {
		errs = append(errs, fmt.Sprintf("invalid store '%s': must be one of %v", c.Store, validStores))
	}
	switch c.Store {
	case StoreSQLite:
		if c.DBPath == "" {
			errs = append(errs, "DB_PATH cannot be empty when using the sqlite store")
		}
	case StorePostgres:
		if c.DatabaseDSN == "" {
			errs = append(errs, "DATABASE_DSN is required when using the postgres store")
		}
	}

	if (c.AdminUser == "") != (c.AdminPassword == "") {
		errs = append(errs, "ADMIN_USER and ADMIN_PASSWORD must be set together")
	}

	if c.SessionCleanupInterval < time.Minute {
		errs = append(errs, fmt.Sprintf("invalid session cleanup interval %v: must be at least 1 minute", c.SessionCleanupInterval))
	}
	if c.ShutdownTimeout <= 0 {
		errs = append(errs, fmt.Sprintf("invalid shutdown timeout %v: must be positive", c.ShutdownTimeout))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errs, "\n- "))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
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
