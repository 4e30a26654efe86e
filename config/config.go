// Package config loads service configuration from the environment and .env files.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store backends.
const (
	BackendFile   = ""
	BackendGCS    = "gcs"
	BackendLocal  = "local"
	BackendSQLite = "sqlite"
)

const defaultHost = "https://sandbox.d4sign.com.br/api/v1"

// Config holds all configuration for the service.
type Config struct {
	D4SignHost          string
	TokenAPI            string
	CryptKey            string
	Port                string
	StoreBackend        string
	StorageBucket       string
	CredentialsJSON     string
	LocalStorage        string
	SQLitePath          string
	DownloadsFile       string
	LogLevel            string
	LogFormat           string
	ListCacheTTL        time.Duration
	TimelineCacheTTL    time.Duration
	AutoRefreshInterval time.Duration
	ArchiveTimeout      time.Duration
	ArchiveConcurrency  int
}

// Load reads configuration from environment variables, applying defaults and
// validating required fields. A .env file in the working directory or one of
// its parents is loaded first; variables already set take precedence.
func Load() (*Config, error) {
	loadDotEnv()

	cfg := &Config{
		D4SignHost:      strings.TrimRight(getEnv("D4SIGN_HOST", getEnv("HOST_D4SIGN", defaultHost)), "/"),
		TokenAPI:        getEnv("D4SIGN_TOKEN_API", os.Getenv("TOKEN_API")),
		CryptKey:        getEnv("D4SIGN_CRYPT_KEY", os.Getenv("CRYPT_KEY")),
		Port:            getEnv("PORT", "8080"),
		StoreBackend:    strings.ToLower(strings.TrimSpace(os.Getenv("STORE_BACKEND"))),
		StorageBucket:   os.Getenv("STORAGE_BUCKET"),
		CredentialsJSON: os.Getenv("GOOGLE_CREDENTIALS_JSON"),
		LocalStorage:    getEnv("LOCAL_STORAGE", "./data/store"),
		SQLitePath:      getEnv("SQLITE_PATH", "./data/signvault.db"),
		DownloadsFile:   getEnv("DOWNLOADS_FILE", "./data/downloads.json"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		LogFormat:       getEnv("LOG_FORMAT", "json"),
	}

	var err error
	if cfg.ListCacheTTL, err = getDuration("LIST_CACHE_TTL", time.Minute); err != nil {
		return nil, err
	}
	if cfg.TimelineCacheTTL, err = getDuration("TIMELINE_CACHE_TTL", time.Hour); err != nil {
		return nil, err
	}
	if cfg.AutoRefreshInterval, err = getDuration("AUTO_REFRESH_INTERVAL", 0); err != nil {
		return nil, err
	}
	if cfg.AutoRefreshInterval == 0 {
		// Older deployments set the interval in seconds under this name.
		if cfg.AutoRefreshInterval, err = getDuration("D4SIGN_AUTO_REFRESH_INTERVAL", 0); err != nil {
			return nil, err
		}
	}
	if cfg.ArchiveTimeout, err = getDuration("ARCHIVE_TIMEOUT", 5*time.Minute); err != nil {
		return nil, err
	}

	concurrency := getEnv("ARCHIVE_CONCURRENCY", "4")
	cfg.ArchiveConcurrency, err = strconv.Atoi(concurrency)
	if err != nil {
		return nil, fmt.Errorf("ARCHIVE_CONCURRENCY must be a valid integer: %w", err)
	}
	if cfg.ArchiveConcurrency <= 0 {
		return nil, errors.New("ARCHIVE_CONCURRENCY must be greater than 0")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required fields and backend settings.
func (c *Config) Validate() error {
	if c.TokenAPI == "" {
		return errors.New("D4SIGN_TOKEN_API is required")
	}
	if c.CryptKey == "" {
		return errors.New("D4SIGN_CRYPT_KEY is required")
	}

	switch c.StoreBackend {
	case BackendFile:
	case BackendGCS:
		if c.StorageBucket == "" {
			return errors.New("STORAGE_BUCKET is required when STORE_BACKEND=gcs")
		}
	case BackendLocal:
		if c.LocalStorage == "" {
			return errors.New("LOCAL_STORAGE is required when STORE_BACKEND=local")
		}
	case BackendSQLite:
		if c.SQLitePath == "" {
			return errors.New("SQLITE_PATH is required when STORE_BACKEND=sqlite")
		}
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}
	return nil
}

// Logger builds the service logger from LOG_LEVEL and LOG_FORMAT.
func (c *Config) Logger() *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.LogFormat, "text") {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func loadDotEnv() {
	wd, err := os.Getwd()
	if err != nil {
		return
	}
	dir := wd
	for range 5 {
		envPath := filepath.Join(dir, ".env")
		if _, err := os.Stat(envPath); err == nil {
			_ = godotenv.Load(envPath)
			return
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return
		}
		dir = parent
	}
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getDuration accepts Go durations ("90s", "1h") or a bare number of seconds.
func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		if secs < 0 {
			return 0, fmt.Errorf("%s must not be negative", key)
		}
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration: %w", key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s must not be negative", key)
	}
	return d, nil
}
