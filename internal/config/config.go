package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"prospect-portal/internal/cleanup"
	"prospect-portal/internal/listing"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Search    SearchConfig    `yaml:"search"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Watcher   WatcherConfig   `yaml:"watcher"`
	Cleanup   CleanupConfig   `yaml:"cleanup"`
	Logging   LoggingConfig   `yaml:"logging"`
	Timezone  string          `yaml:"timezone"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port           string   `yaml:"port"`
	Mode           string   `yaml:"mode"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Type     string         `yaml:"type"`
	MySQL    MySQLConfig    `yaml:"mysql"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// MySQLConfig contains MySQL connection settings
type MySQLConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// PostgresConfig contains PostgreSQL connection settings
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"sslmode"`
}

// SearchConfig contains search engine settings
type SearchConfig struct {
	Meilisearch MeilisearchConfig `yaml:"meilisearch"`
}

// MeilisearchConfig contains Meilisearch connection settings
type MeilisearchConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	APIKey  string `yaml:"api_key"`
}

// RateLimitConfig contains API rate limiting settings, per client IP
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute"`
	RequestsPerHour   int  `yaml:"requests_per_hour"`
	RequestsPerDay    int  `yaml:"requests_per_day"`
}

// WatcherConfig contains listing price watch settings
type WatcherConfig struct {
	DailyRunEnabled     bool   `yaml:"daily_run_enabled"`
	DailyRunTime        string `yaml:"daily_run_time"`
	TimeoutSeconds      int    `yaml:"timeout_seconds"`
	MaxRetries          int    `yaml:"max_retries"`
	RetryDelaySeconds   int    `yaml:"retry_delay_seconds"`
	RequestDelaySeconds int    `yaml:"request_delay_seconds"`
	ConcurrentLimit     int    `yaml:"concurrent_limit"`
	StopOnError         bool   `yaml:"stop_on_error"`
	Headless            bool   `yaml:"headless"`
	ChromePath          string `yaml:"chrome_path"`
}

// CleanupConfig contains retention cleanup settings
type CleanupConfig struct {
	Enabled          bool   `yaml:"enabled"`
	DailyRunTime     string `yaml:"daily_run_time"`
	RetentionDays    int    `yaml:"retention_days"`
	MaxDeletionCount int    `yaml:"max_deletion_count"`
	DryRun           bool   `yaml:"dry_run"`
	DeleteFromSearch bool   `yaml:"delete_from_search"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level       string `yaml:"level"`
	Format      string `yaml:"format"`
	LogRequests bool   `yaml:"log_requests"`
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           "8080",
			Mode:           "release",
			AllowedOrigins: []string{"http://localhost:5173"},
		},
		Database: DatabaseConfig{
			Type: "mysql",
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerMinute: 120,
			RequestsPerHour:   3000,
			RequestsPerDay:    20000,
		},
		Watcher: WatcherConfig{
			DailyRunEnabled:     false,
			DailyRunTime:        "06:00",
			TimeoutSeconds:      30,
			MaxRetries:          3,
			RetryDelaySeconds:   2,
			RequestDelaySeconds: 3,
			ConcurrentLimit:     1,
			StopOnError:         false,
			Headless:            true,
		},
		Cleanup: CleanupConfig{
			Enabled:          false,
			DailyRunTime:     "03:00",
			RetentionDays:    180,
			MaxDeletionCount: 1000,
			DryRun:           false,
			DeleteFromSearch: true,
		},
		Logging: LoggingConfig{
			Level:       "info",
			Format:      "json",
			LogRequests: true,
		},
		Timezone: "UTC",
	}
}

// LoadConfig loads configuration from a YAML file
func LoadConfig(filepath string) (*Config, error) {
	// Start with default config
	config := DefaultConfig()

	// If file doesn't exist, return default config
	if _, err := os.Stat(filepath); os.IsNotExist(err) {
		return config, nil
	}

	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// LoadEnvFiles loads .env style files into the process environment without
// overriding variables that are already set. Missing files are ignored.
func LoadEnvFiles(paths ...string) error {
	for _, path := range paths {
		if err := godotenv.Load(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", path, err)
		}
	}
	return nil
}

// ApplyEnv fills settings left empty in the file from environment
// variables, then from built-in defaults
func (c *Config) ApplyEnv() {
	c.Server.Port = GetEnvOrConfig(os.Getenv("PORT"), "SERVER_PORT", c.Server.Port)
	if origins := GetEnv("ALLOWED_ORIGINS", ""); origins != "" {
		c.Server.AllowedOrigins = splitList(origins)
	}
	c.Database.Type = GetEnvOrConfig(c.Database.Type, "DB_TYPE", "mysql")

	my := &c.Database.MySQL
	my.Host = GetEnvOrConfig(my.Host, "DB_HOST", "mysql")
	my.Port = portOr(my.Port, "DB_PORT", 3306)
	my.User = GetEnvOrConfig(my.User, "DB_USER", "prospect_user")
	my.Password = GetEnvOrConfig(my.Password, "DB_PASSWORD", "prospect_pass")
	my.Database = GetEnvOrConfig(my.Database, "DB_NAME", "prospect_db")

	pg := &c.Database.Postgres
	pg.Host = GetEnvOrConfig(pg.Host, "DB_HOST", "db")
	pg.Port = portOr(pg.Port, "DB_PORT", 5432)
	pg.User = GetEnvOrConfig(pg.User, "DB_USER", "prospect_user")
	pg.Password = GetEnvOrConfig(pg.Password, "DB_PASSWORD", "prospect_pass")
	pg.Database = GetEnvOrConfig(pg.Database, "DB_NAME", "prospect_db")
	pg.SSLMode = GetEnvOrConfig(pg.SSLMode, "DB_SSLMODE", "disable")

	ms := &c.Search.Meilisearch
	ms.Host = GetEnvOrConfig(ms.Host, "MEILISEARCH_HOST", "")
	ms.APIKey = GetEnvOrConfig(ms.APIKey, "MEILISEARCH_KEY", "")
	if ms.Host != "" {
		ms.Enabled = true
	}

	c.Logging.Level = GetEnvOrConfig(os.Getenv("LOG_LEVEL"), "", c.Logging.Level)
	c.Timezone = GetEnvOrConfig(c.Timezone, "TZ", "UTC")
}

// Location resolves the configured time zone, falling back to UTC
func (c *Config) Location() *time.Location {
	if c.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// GetTimeout returns the fetch timeout as a duration
func (c *WatcherConfig) GetTimeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// GetRetryDelay returns the retry delay as a duration
func (c *WatcherConfig) GetRetryDelay() time.Duration {
	return time.Duration(c.RetryDelaySeconds) * time.Second
}

// GetRequestDelay returns the per-host request spacing as a duration
func (c *WatcherConfig) GetRequestDelay() time.Duration {
	return time.Duration(c.RequestDelaySeconds) * time.Second
}

// ToFetcherConfig builds the listing fetcher settings
func (c *WatcherConfig) ToFetcherConfig() listing.Config {
	cfg := listing.DefaultConfig()
	if c.TimeoutSeconds > 0 {
		cfg.Timeout = c.GetTimeout()
	}
	if c.MaxRetries > 0 {
		cfg.MaxRetries = c.MaxRetries
	}
	if c.RetryDelaySeconds > 0 {
		cfg.RetryDelay = c.GetRetryDelay()
	}
	if c.RequestDelaySeconds > 0 {
		cfg.HostDelay = c.GetRequestDelay()
	}
	if c.ConcurrentLimit > 0 {
		cfg.MaxInFlight = c.ConcurrentLimit
	}
	cfg.Headless = c.Headless
	cfg.ChromePath = c.ChromePath
	return cfg
}

// ToCleanupConfig builds the cleanup run settings
func (c *CleanupConfig) ToCleanupConfig() cleanup.Config {
	return cleanup.Config{
		RetentionDays:    c.RetentionDays,
		MaxDeletionCount: c.MaxDeletionCount,
		DryRun:           c.DryRun,
		DeleteFromSearch: c.DeleteFromSearch,
	}
}

// GetEnv returns the environment variable or defaultValue when unset
func GetEnv(key, defaultValue string) string {
	if key == "" {
		return defaultValue
	}
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// GetEnvOrConfig returns config value if set, otherwise falls back to environment variable, then default
func GetEnvOrConfig(configValue, envKey, defaultValue string) string {
	if configValue != "" {
		return configValue
	}
	return GetEnv(envKey, defaultValue)
}

func portOr(configValue int, envKey string, defaultValue int) int {
	if configValue > 0 {
		return configValue
	}
	if n, err := strconv.Atoi(GetEnv(envKey, "")); err == nil && n > 0 {
		return n
	}
	return defaultValue
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
