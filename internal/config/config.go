// Package config reads process configuration from the environment.
//
// An optional .env file in the working directory is loaded first; variables
// already set in the environment take precedence over it.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/mmynk/splitledger/pkg/logging"
)

// Storage drivers accepted by DB_DRIVER.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config holds the server and worker settings.
type Config struct {
	Port                   int
	DBDriver               string
	DBPath                 string
	DatabaseURL            string
	RedisURL               string
	MaterializeInterval    time.Duration
	MaterializeConcurrency int
	DefaultCurrency        string
	LogLevel               slog.Level
	LogFormat              logging.Format
}

// Load reads .env (when present) and the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a variable lookup, applying defaults and
// validating every value.
func FromEnv(getenv func(string) string) (*Config, error) {
	get := func(key, fallback string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return fallback
	}

	cfg := &Config{
		DBDriver:        strings.ToLower(get("DB_DRIVER", DriverSQLite)),
		DBPath:          get("DB_PATH", "./data/ledger.db"),
		DatabaseURL:     get("DATABASE_URL", ""),
		RedisURL:        get("REDIS_URL", ""),
		DefaultCurrency: strings.ToUpper(get("DEFAULT_CURRENCY", "USD")),
	}

	var err error
	if cfg.Port, err = strconv.Atoi(get("PORT", "8080")); err != nil || cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid PORT %q", getenv("PORT"))
	}
	if cfg.MaterializeInterval, err = time.ParseDuration(get("MATERIALIZE_INTERVAL", "5m")); err != nil || cfg.MaterializeInterval <= 0 {
		return nil, fmt.Errorf("invalid MATERIALIZE_INTERVAL %q", getenv("MATERIALIZE_INTERVAL"))
	}
	if cfg.MaterializeConcurrency, err = strconv.Atoi(get("MATERIALIZE_CONCURRENCY", "4")); err != nil || cfg.MaterializeConcurrency <= 0 {
		return nil, fmt.Errorf("invalid MATERIALIZE_CONCURRENCY %q", getenv("MATERIALIZE_CONCURRENCY"))
	}

	if cfg.LogLevel, err = logging.ParseLevel(get("LOG_LEVEL", "info")); err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}
	if cfg.LogFormat, err = logging.ParseFormat(get("LOG_FORMAT", "text")); err != nil {
		return nil, fmt.Errorf("invalid LOG_FORMAT: %w", err)
	}

	switch cfg.DBDriver {
	case DriverSQLite, DriverMemory:
	case DriverPostgres:
		if cfg.DatabaseURL == "" {
			return nil, errors.New("DATABASE_URL is required when DB_DRIVER=postgres")
		}
	default:
		return nil, fmt.Errorf("unknown DB_DRIVER %q", cfg.DBDriver)
	}

	return cfg, nil
}
