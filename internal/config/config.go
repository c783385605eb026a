// Package config loads the service configuration and the availability-window file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"schedulease/internal/models"
)

// EnvPath names the variable that overrides the config file location.
const EnvPath = "SCHEDULEASE_CONFIG"

type Config struct {
	App struct {
		Name     string `yaml:"name"`
		Timezone string `yaml:"timezone"`
	} `yaml:"app"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`

	Database struct {
		Driver        string `yaml:"driver"`
		Path          string `yaml:"path"`
		MongoURI      string `yaml:"mongo_uri"`
		MongoDatabase string `yaml:"mongo_database"`
	} `yaml:"database"`

	Redis struct {
		Address         string `yaml:"address"`
		Password        string `yaml:"password"`
		DB              int    `yaml:"db"`
		LockTTLSeconds  int    `yaml:"lock_ttl_seconds"`
		LockWaitMillis  int    `yaml:"lock_wait_ms"`
		CacheTTLSeconds int    `yaml:"cache_ttl_seconds"`
	} `yaml:"redis"`

	HTTP struct {
		Port           int      `yaml:"port"`
		AllowedOrigins []string `yaml:"allowed_origins"`
		RateLimitRPS   float64  `yaml:"rate_limit_rps"`
		RateLimitBurst int      `yaml:"rate_limit_burst"`
	} `yaml:"http"`

	Auth struct {
		JWTSecret     string `yaml:"jwt_secret"`
		TokenTTLHours int    `yaml:"token_ttl_hours"`
	} `yaml:"auth"`

	Booking struct {
		TrustedRoles        []string `yaml:"trusted_roles"`
		CheckSiblingOverlap *bool    `yaml:"check_sibling_overlap"`
		WindowsFile         string   `yaml:"windows_file"`
		WindowsPollSeconds  int      `yaml:"windows_poll_seconds"`
	} `yaml:"booking"`

	Email struct {
		Host          string  `yaml:"host"`
		Port          int     `yaml:"port"`
		Username      string  `yaml:"username"`
		Password      string  `yaml:"password"`
		FromName      string  `yaml:"from_name"`
		UseSSL        *bool   `yaml:"use_ssl"`
		MaxRetries    int     `yaml:"max_retries"`
		RetryDelaysMS []int   `yaml:"retry_delays_ms"`
		RatePerSecond float64 `yaml:"rate_per_second"`
		Burst         int     `yaml:"burst"`
	} `yaml:"email"`

	Telegram struct {
		BotToken    string `yaml:"bot_token"`
		AlertChatID int64  `yaml:"alert_chat_id"`
	} `yaml:"telegram"`

	Sheets struct {
		Enabled         bool   `yaml:"enabled"`
		CredentialsFile string `yaml:"credentials_file"`
		SpreadsheetID   string `yaml:"spreadsheet_id"`
		SheetName       string `yaml:"sheet_name"`
	} `yaml:"sheets"`

	Backup struct {
		Enabled       bool   `yaml:"enabled"`
		IntervalHours int    `yaml:"interval_hours"`
		Path          string `yaml:"path"`
		RetentionDays int    `yaml:"retention_days"`
	} `yaml:"backup"`

	Monitoring struct {
		HealthCheckPort   int  `yaml:"health_check_port"`
		GRPCHealthPort    int  `yaml:"grpc_health_port"`
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`
}

// Path resolves the config location from the flag value and environment.
func Path(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if p := os.Getenv(EnvPath); p != "" {
		return p
	}
	return "configs/config.yaml"
}

func Load(path string) (*Config, error) {
	if path == "" {
		path = Path("")
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Support ${ENV_VAR} placeholders in YAML config.
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Database.Driver == "sqlite" {
		if err = os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
			return nil, err
		}
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "SchedulEase"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.Path == "" {
		c.Database.Path = "data/schedulease.db"
	}
	if c.Database.MongoDatabase == "" {
		c.Database.MongoDatabase = "schedulease"
	}
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 5000
	}
	if len(c.Booking.TrustedRoles) == 0 {
		c.Booking.TrustedRoles = []string{string(models.RoleInternal)}
	}
	if c.Email.Host == "" {
		c.Email.Host = "smtp.gmail.com"
	}
	if c.Email.Port == 0 {
		c.Email.Port = 465
	}
	if c.Email.FromName == "" {
		c.Email.FromName = "SchedulEase"
	}
	if c.Sheets.SheetName == "" {
		c.Sheets.SheetName = "Appointments"
	}
	if c.Backup.Path == "" {
		c.Backup.Path = "data/backups"
	}
	if c.Monitoring.HealthCheckPort == 0 {
		c.Monitoring.HealthCheckPort = 8081
	}
	if c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite":
	case "mongo":
		if c.Database.MongoURI == "" {
			return fmt.Errorf("database.mongo_uri is required for the mongo driver")
		}
	default:
		return fmt.Errorf("database.driver: unknown driver %q", c.Database.Driver)
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: expected console or json, got %q", c.Logging.Format)
	}
	if _, err := time.LoadLocation(c.App.Timezone); err != nil {
		return fmt.Errorf("app.timezone: %w", err)
	}
	return nil
}

// Location is the timezone used for "today" and window expansion.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.App.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

func (c *Config) TrustedRoles() []models.Role {
	roles := make([]models.Role, 0, len(c.Booking.TrustedRoles))
	for _, r := range c.Booking.TrustedRoles {
		roles = append(roles, models.Role(r))
	}
	return roles
}

func (c *Config) CheckSiblingOverlap() bool {
	if c.Booking.CheckSiblingOverlap == nil {
		return true
	}
	return *c.Booking.CheckSiblingOverlap
}

func (c *Config) WindowsPoll() time.Duration {
	if c.Booking.WindowsPollSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Booking.WindowsPollSeconds) * time.Second
}

func (c *Config) LockTTL() time.Duration {
	if c.Redis.LockTTLSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.Redis.LockTTLSeconds) * time.Second
}

func (c *Config) LockWait() time.Duration {
	if c.Redis.LockWaitMillis <= 0 {
		return 3 * time.Second
	}
	return time.Duration(c.Redis.LockWaitMillis) * time.Millisecond
}

func (c *Config) AnalyticsCacheTTL() time.Duration {
	if c.Redis.CacheTTLSeconds < 0 {
		return 0
	}
	if c.Redis.CacheTTLSeconds == 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Redis.CacheTTLSeconds) * time.Second
}

func (c *Config) TokenTTL() time.Duration {
	if c.Auth.TokenTTLHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.Auth.TokenTTLHours) * time.Hour
}

// EmailRetryDelays returns the pauses between delivery attempts.
func (c *Config) EmailRetryDelays() []time.Duration {
	if len(c.Email.RetryDelaysMS) == 0 {
		return []time.Duration{500 * time.Millisecond, 2 * time.Second}
	}
	out := make([]time.Duration, len(c.Email.RetryDelaysMS))
	for i, ms := range c.Email.RetryDelaysMS {
		out[i] = time.Duration(ms) * time.Millisecond
	}
	return out
}

func (c *Config) EmailMaxRetries() int {
	if c.Email.MaxRetries <= 0 {
		return len(c.EmailRetryDelays())
	}
	return c.Email.MaxRetries
}

func (c *Config) EmailUseSSL() bool {
	if c.Email.UseSSL == nil {
		return c.Email.Port == 465
	}
	return *c.Email.UseSSL
}

// SMTPEnabled reports whether credentials for real delivery are present.
func (c *Config) SMTPEnabled() bool {
	return c.Email.Username != "" && c.Email.Password != ""
}

func (c *Config) BackupInterval() time.Duration {
	if c.Backup.IntervalHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.Backup.IntervalHours) * time.Hour
}
