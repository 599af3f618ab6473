package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfigDefaults(t *testing.T) {
	cfg := NewConfig()

	assert.Equal(t, "./data", cfg.DataDir)
	assert.Equal(t, 7, cfg.LoanDays)
	assert.Equal(t, "user123", cfg.DefaultUserPassword)
	assert.Equal(t, 10, cfg.BcryptCost)
	assert.True(t, cfg.RequireLogin)
	assert.Equal(t, "https://www.googleapis.com/books/v1", cfg.BaseURL)
	assert.Equal(t, 10*time.Second, cfg.Timeout)
	assert.Equal(t, 1.0, cfg.RatePerSecond)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, filepath.Join("data", "catalog_cache.db"), cfg.CachePath)
	assert.Equal(t, 24*time.Hour, cfg.CacheTTL)
	assert.Equal(t, "0 9 * * *", cfg.Schedule)
	assert.Equal(t, "info", cfg.Level)
	assert.Equal(t, "text", cfg.Format)
	assert.NoError(t, cfg.Validate())
}

func TestNewConfigFromEnvironment(t *testing.T) {
	t.Setenv("LIBRARY_DATA_DIR", "/srv/library")
	t.Setenv("LIBRARY_LOAN_DAYS", "14")
	t.Setenv("LIBRARY_REQUIRE_LOGIN", "false")
	t.Setenv("CATALOG_TIMEOUT", "3s")
	t.Setenv("CATALOG_CACHE_TTL", "90m")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("LOG_FORMAT", "json")

	cfg := NewConfig()
	assert.Equal(t, "/srv/library", cfg.DataDir)
	assert.Equal(t, 14, cfg.LoanDays)
	assert.False(t, cfg.RequireLogin)
	assert.Equal(t, 3*time.Second, cfg.Timeout)
	assert.Equal(t, 90*time.Minute, cfg.CacheTTL)
	assert.Equal(t, "/srv/library/catalog_cache.db", cfg.CachePath)
	assert.Equal(t, "debug", cfg.Level)
	assert.Equal(t, "json", cfg.Format)
	assert.NoError(t, cfg.Validate())
}

func TestSetDataDirMovesDefaultCache(t *testing.T) {
	cfg := NewConfig()
	cfg.SetDataDir("/tmp/lib")
	assert.Equal(t, "/tmp/lib/catalog_cache.db", cfg.CachePath)

	t.Setenv("CATALOG_CACHE_PATH", "/var/cache/catalog.db")
	cfg = NewConfig()
	cfg.SetDataDir("/tmp/lib")
	assert.Equal(t, "/var/cache/catalog.db", cfg.CachePath)
}

func TestLoadReadsEnvFile(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("LIBRARY_LOAN_DAYS=21\nOVERDUE_SCHEDULE=*/5 * * * *\n"), 0o644))
	t.Cleanup(func() {
		os.Unsetenv("LIBRARY_LOAN_DAYS")
		os.Unsetenv("OVERDUE_SCHEDULE")
	})

	cfg, err := Load(envFile)
	require.NoError(t, err)
	assert.Equal(t, 21, cfg.LoanDays)
	assert.Equal(t, "*/5 * * * *", cfg.Schedule)
}

func TestLoadMissingEnvFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.LoanDays)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"loan days", func(c *Config) { c.LoanDays = 0 }, "LIBRARY_LOAN_DAYS"},
		{"bcrypt cost", func(c *Config) { c.BcryptCost = 40 }, "LIBRARY_BCRYPT_COST"},
		{"rate", func(c *Config) { c.RatePerSecond = 0 }, "CATALOG_RATE_PER_SECOND"},
		{"retries", func(c *Config) { c.MaxRetries = -1 }, "CATALOG_MAX_RETRIES"},
		{"schedule", func(c *Config) { c.Schedule = "every day" }, "OVERDUE_SCHEDULE"},
		{"log level", func(c *Config) { c.Level = "loud" }, "LOG_LEVEL"},
		{"log format", func(c *Config) { c.Format = "xml" }, "LOG_FORMAT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
