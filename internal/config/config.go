// Package config defines process configuration and how it is loaded.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// Config contains process configuration shared by every binary.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the handler: "text" (colored) or "json".
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// DBPath is the SQLite database file.
	DBPath string `koanf:"db_path"`

	// CacheSize bounds the number of memoized projections.
	CacheSize int `koanf:"cache_size"`

	// IngestMaxRaces caps how many races one ingest run stores. Zero means
	// no cap.
	IngestMaxRaces int `koanf:"ingest_max_races"`

	// BusyTimeoutMS is how long a writer waits on a locked database.
	BusyTimeoutMS int `koanf:"busy_timeout_ms"`
}

// New returns a Config holding the defaults.
func New() *Config {
	return &Config{
		LogLevel:       "info",
		LogFormat:      "text",
		Addr:           ":8080",
		DBPath:         "./data/cyclear.db",
		CacheSize:      1024,
		IngestMaxRaces: 0,
		BusyTimeoutMS:  5000,
	}
}

// Level parses LogLevel. Validate rejects unknown levels.
func (c *Config) Level() slog.Level {
	level, _ := parseLevel(c.LogLevel)
	return level
}

// BusyTimeout returns BusyTimeoutMS as a duration.
func (c *Config) BusyTimeout() time.Duration {
	return time.Duration(c.BusyTimeoutMS) * time.Millisecond
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if _, ok := parseLevel(c.LogLevel); !ok {
		return fmt.Errorf("log_level %q: %w", c.LogLevel, ErrInvalidConfig)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("log_format %q: %w", c.LogFormat, ErrInvalidConfig)
	}
	if c.Addr == "" {
		return fmt.Errorf("addr must not be empty: %w", ErrInvalidConfig)
	}
	if c.DBPath == "" {
		return fmt.Errorf("db_path must not be empty: %w", ErrInvalidConfig)
	}
	if c.CacheSize < 0 || c.IngestMaxRaces < 0 || c.BusyTimeoutMS < 0 {
		return fmt.Errorf("cache_size, ingest_max_races and busy_timeout_ms must not be negative: %w", ErrInvalidConfig)
	}
	return nil
}

func parseLevel(s string) (slog.Level, bool) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, true
	case "info", "":
		return slog.LevelInfo, true
	case "warn":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	}
	return slog.LevelInfo, false
}
