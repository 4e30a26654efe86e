package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

var envVars = []string{
	"D4SIGN_HOST", "HOST_D4SIGN", "D4SIGN_TOKEN_API", "TOKEN_API", "D4SIGN_CRYPT_KEY", "CRYPT_KEY",
	"PORT", "STORE_BACKEND", "STORAGE_BUCKET", "GOOGLE_CREDENTIALS_JSON", "LOCAL_STORAGE",
	"SQLITE_PATH", "DOWNLOADS_FILE", "LOG_LEVEL", "LOG_FORMAT",
	"LIST_CACHE_TTL", "TIMELINE_CACHE_TTL", "AUTO_REFRESH_INTERVAL", "D4SIGN_AUTO_REFRESH_INTERVAL",
	"ARCHIVE_TIMEOUT", "ARCHIVE_CONCURRENCY",
}

// isolate clears every variable Load reads and moves into an empty directory
// so no .env file is picked up.
func isolate(t *testing.T) {
	t.Helper()
	for _, key := range envVars {
		t.Setenv(key, "")
		// An empty but set variable would still block .env values.
		_ = os.Unsetenv(key)
	}
	t.Chdir(t.TempDir())
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name        string
		env         map[string]string
		wantErr     bool
		checkConfig func(*Config) bool
	}{
		{
			name: "defaults",
			env:  map[string]string{"D4SIGN_TOKEN_API": "token", "D4SIGN_CRYPT_KEY": "key"},
			checkConfig: func(cfg *Config) bool {
				return cfg.D4SignHost == defaultHost &&
					cfg.Port == "8080" &&
					cfg.StoreBackend == BackendFile &&
					cfg.ListCacheTTL == time.Minute &&
					cfg.TimelineCacheTTL == time.Hour &&
					cfg.AutoRefreshInterval == 0 &&
					cfg.ArchiveTimeout == 5*time.Minute &&
					cfg.ArchiveConcurrency == 4 &&
					cfg.DownloadsFile == "./data/downloads.json"
			},
		},
		{
			name: "legacy variable names",
			env: map[string]string{
				"HOST_D4SIGN": "https://secure.d4sign.com.br/api/v1/", "TOKEN_API": "t", "CRYPT_KEY": "k",
				"D4SIGN_AUTO_REFRESH_INTERVAL": "3600",
			},
			checkConfig: func(cfg *Config) bool {
				return cfg.D4SignHost == "https://secure.d4sign.com.br/api/v1" &&
					cfg.TokenAPI == "t" && cfg.CryptKey == "k" &&
					cfg.AutoRefreshInterval == time.Hour
			},
		},
		{
			name: "durations and sqlite backend",
			env: map[string]string{
				"D4SIGN_TOKEN_API": "token", "D4SIGN_CRYPT_KEY": "key",
				"STORE_BACKEND": "SQLite", "LIST_CACHE_TTL": "90s", "AUTO_REFRESH_INTERVAL": "15m",
				"ARCHIVE_CONCURRENCY": "8",
			},
			checkConfig: func(cfg *Config) bool {
				return cfg.StoreBackend == BackendSQLite &&
					cfg.ListCacheTTL == 90*time.Second &&
					cfg.AutoRefreshInterval == 15*time.Minute &&
					cfg.ArchiveConcurrency == 8
			},
		},
		{
			name:    "missing token",
			env:     map[string]string{"D4SIGN_CRYPT_KEY": "key"},
			wantErr: true,
		},
		{
			name:    "missing crypt key",
			env:     map[string]string{"D4SIGN_TOKEN_API": "token"},
			wantErr: true,
		},
		{
			name:    "gcs without bucket",
			env:     map[string]string{"D4SIGN_TOKEN_API": "token", "D4SIGN_CRYPT_KEY": "key", "STORE_BACKEND": "gcs"},
			wantErr: true,
		},
		{
			name:    "unknown backend",
			env:     map[string]string{"D4SIGN_TOKEN_API": "token", "D4SIGN_CRYPT_KEY": "key", "STORE_BACKEND": "redis"},
			wantErr: true,
		},
		{
			name:    "bad duration",
			env:     map[string]string{"D4SIGN_TOKEN_API": "token", "D4SIGN_CRYPT_KEY": "key", "LIST_CACHE_TTL": "soon"},
			wantErr: true,
		},
		{
			name:    "zero concurrency",
			env:     map[string]string{"D4SIGN_TOKEN_API": "token", "D4SIGN_CRYPT_KEY": "key", "ARCHIVE_CONCURRENCY": "0"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			cfg, err := Load()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Load() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && tt.checkConfig != nil && !tt.checkConfig(cfg) {
				t.Errorf("Load() config = %+v, failed validation", cfg)
			}
		})
	}
}

func TestLoadDotEnvFromParent(t *testing.T) {
	isolate(t)

	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}
	env := "D4SIGN_TOKEN_API=from-file\nD4SIGN_CRYPT_KEY=from-file\nPORT=9001\n"
	if err := os.WriteFile(filepath.Join(root, ".env"), []byte(env), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Chdir(nested)
	t.Setenv("PORT", "7000")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.TokenAPI != "from-file" {
		t.Errorf("TokenAPI = %q, want from-file", cfg.TokenAPI)
	}
	if cfg.Port != "7000" {
		t.Errorf("Port = %q, want the real environment to win over .env", cfg.Port)
	}
}

func TestGetDuration(t *testing.T) {
	tests := []struct {
		raw     string
		want    time.Duration
		wantErr bool
	}{
		{"", 30 * time.Second, false},
		{"120", 2 * time.Minute, false},
		{"1h30m", 90 * time.Minute, false},
		{"-5", 0, true},
		{"-1m", 0, true},
		{"later", 0, true},
	}
	for _, tt := range tests {
		t.Setenv("TEST_DURATION", tt.raw)
		got, err := getDuration("TEST_DURATION", 30*time.Second)
		if (err != nil) != tt.wantErr {
			t.Errorf("getDuration(%q) error = %v, wantErr %v", tt.raw, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("getDuration(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}
