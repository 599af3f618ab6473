package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

type (
	Config struct {
		Library
		Catalog
		Overdue
		Log
	}

	Library struct {
		DataDir             string
		LoanDays            int
		DefaultUserPassword string
		BcryptCost          int
		RequireLogin        bool
		AdminPassword       string // Read from the environment instead of prompting
	}
	Catalog struct {
		BaseURL       string
		Timeout       time.Duration
		RatePerSecond float64
		MaxRetries    int
		CachePath     string
		CacheTTL      time.Duration
	}
	Overdue struct {
		Schedule string // Cron format: "0 9 * * *" = daily at 09:00
	}
	Log struct {
		Level  string
		Format string
	}
)

var (
	validLogLevels  = []string{"trace", "debug", "info", "warn", "error", "fatal", "panic"}
	validLogFormats = []string{"text", "json"}
)

// Load reads envFile (if it exists) into the process environment and builds
// the configuration from environment variables and defaults. A missing
// envFile is not an error.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	return NewConfig(), nil
}

// NewConfig builds the configuration from the environment.
func NewConfig() *Config {
	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("library_data_dir", "./data")
	v.SetDefault("library_loan_days", 7)
	v.SetDefault("library_default_user_password", "user123")
	v.SetDefault("library_bcrypt_cost", 10)
	v.SetDefault("library_require_login", true)
	v.SetDefault("library_admin_password", "")

	v.SetDefault("catalog_base_url", "https://www.googleapis.com/books/v1")
	v.SetDefault("catalog_timeout", "10s")
	v.SetDefault("catalog_rate_per_second", 1.0)
	v.SetDefault("catalog_max_retries", 3)
	v.SetDefault("catalog_cache_path", "") // Derived from the data dir if empty
	v.SetDefault("catalog_cache_ttl", "24h")

	v.SetDefault("overdue_schedule", "0 9 * * *") // Daily at 09:00

	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")

	cfg := &Config{
		Library: Library{
			DataDir:             v.GetString("LIBRARY_DATA_DIR"),
			LoanDays:            v.GetInt("LIBRARY_LOAN_DAYS"),
			DefaultUserPassword: v.GetString("LIBRARY_DEFAULT_USER_PASSWORD"),
			BcryptCost:          v.GetInt("LIBRARY_BCRYPT_COST"),
			RequireLogin:        v.GetBool("LIBRARY_REQUIRE_LOGIN"),
			AdminPassword:       v.GetString("LIBRARY_ADMIN_PASSWORD"),
		},
		Catalog: Catalog{
			BaseURL:       v.GetString("CATALOG_BASE_URL"),
			Timeout:       v.GetDuration("CATALOG_TIMEOUT"),
			RatePerSecond: v.GetFloat64("CATALOG_RATE_PER_SECOND"),
			MaxRetries:    v.GetInt("CATALOG_MAX_RETRIES"),
			CachePath:     v.GetString("CATALOG_CACHE_PATH"),
			CacheTTL:      v.GetDuration("CATALOG_CACHE_TTL"),
		},
		Overdue: Overdue{
			Schedule: v.GetString("OVERDUE_SCHEDULE"),
		},
		Log: Log{
			Level:  strings.ToLower(v.GetString("LOG_LEVEL")),
			Format: strings.ToLower(v.GetString("LOG_FORMAT")),
		},
	}
	cfg.SetDataDir(cfg.DataDir)
	return cfg
}

// SetDataDir changes the data directory. The catalog cache follows it unless
// CATALOG_CACHE_PATH was set explicitly.
func (c *Config) SetDataDir(dir string) {
	oldDefault := filepath.Join(c.DataDir, "catalog_cache.db")
	c.DataDir = dir
	if c.Catalog.CachePath == "" || c.Catalog.CachePath == oldDefault {
		c.Catalog.CachePath = filepath.Join(dir, "catalog_cache.db")
	}
}

// Validate performs validation on the loaded configuration.
func (c *Config) Validate() error {
	var problems []string

	if c.LoanDays < 1 {
		problems = append(problems, "LIBRARY_LOAN_DAYS must be at least 1")
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		problems = append(problems, "LIBRARY_BCRYPT_COST must be between 4 and 31")
	}
	if c.RatePerSecond <= 0 {
		problems = append(problems, "CATALOG_RATE_PER_SECOND must be positive")
	}
	if c.MaxRetries < 0 {
		problems = append(problems, "CATALOG_MAX_RETRIES must not be negative")
	}
	if _, err := cron.ParseStandard(c.Schedule); err != nil {
		problems = append(problems, fmt.Sprintf("OVERDUE_SCHEDULE is not a valid cron expression: %v", err))
	}
	if !contains(validLogLevels, c.Level) {
		problems = append(problems, fmt.Sprintf("LOG_LEVEL must be one of: %s", strings.Join(validLogLevels, ", ")))
	}
	if !contains(validLogFormats, c.Format) {
		problems = append(problems, fmt.Sprintf("LOG_FORMAT must be one of: %s", strings.Join(validLogFormats, ", ")))
	}

	if len(problems) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(problems, "; "))
	}
	return nil
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
