// Package config loads holdtrack configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/holdtrack/holdtrack/internal/database"
)

// ServiceName identifies the bot process in logs and telemetry.
const ServiceName = "holdtrack-bot"

// Config holds all runtime settings. Keys map 1:1 to upper-case environment variables.
type Config struct {
	Env  string `koanf:"app_env" validate:"oneof=development staging production test"`
	Port int    `koanf:"app_port" validate:"min=1,max=65535"`

	// Telegram
	BotToken     string  `koanf:"bot_token" validate:"required"`
	AdminUserIDs []int64 `koanf:"admin_user_ids"`

	// Database. DatabaseURL wins over the discrete DB_* values when set.
	DatabaseURL       string        `koanf:"database_url"`
	DBHost            string        `koanf:"db_host"`
	DBPort            int           `koanf:"db_port" validate:"min=1,max=65535"`
	DBUser            string        `koanf:"db_user"`
	DBPassword        string        `koanf:"db_password"`
	DBName            string        `koanf:"db_name"`
	DBSSLMode         string        `koanf:"db_ssl_mode" validate:"oneof=disable allow prefer require verify-ca verify-full"`
	DBMaxOpenConns    int           `koanf:"db_max_open_conns" validate:"min=1"`
	DBMaxIdleConns    int           `koanf:"db_max_idle_conns" validate:"min=0,ltefield=DBMaxOpenConns"`
	DBConnMaxLifetime time.Duration `koanf:"db_conn_max_lifetime"`

	// Chain
	HeliusAPIKey  string `koanf:"helius_api_key" validate:"required"`
	HeliusURL     string `koanf:"helius_url" validate:"omitempty,url"`
	TokenMint     string `koanf:"token_contract_address" validate:"required"`
	TokenDecimals int    `koanf:"token_decimals" validate:"min=0,max=18"`

	// Health
	StartupDelay       time.Duration `koanf:"startup_delay" validate:"min=0"`
	HealthCheckTimeout time.Duration `koanf:"health_check_timeout" validate:"gt=0"`

	// Holder tracking
	SnapshotSchedule      string `koanf:"snapshot_schedule" validate:"required"`
	MinimumHoldDays       int    `koanf:"minimum_hold_days" validate:"min=0"`
	LeaderboardLimit      int    `koanf:"leaderboard_limit" validate:"min=1,max=200"`
	CleanupSchedule       string `koanf:"cleanup_schedule" validate:"required"`
	SnapshotRetentionDays int    `koanf:"snapshot_retention_days" validate:"min=1"`
	ValidateSchedule      string `koanf:"validate_schedule" validate:"required"`

	// Observability
	OTelEnabled  bool   `koanf:"otel_enabled"`
	OTLPEndpoint string `koanf:"otel_exporter_otlp_endpoint"`
	LogLevel     string `koanf:"log_level" validate:"oneof=trace debug info warn error"`
	LogFormat    string `koanf:"log_format" validate:"oneof=json console"`
	// LogFile, when set, also writes JSON logs to a size-rotated file.
	LogFile      string `koanf:"log_file"`
	RequireTLS   bool   `koanf:"require_tls"`
}

// Default returns the configuration used for any key the environment leaves unset.
func Default() Config {
	return Config{
		Env:                   "development",
		Port:                  8000,
		DBHost:                "localhost",
		DBPort:                5432,
		DBUser:                "holdtrack",
		DBName:                "holdtrack",
		DBSSLMode:             "disable",
		DBMaxOpenConns:        10,
		DBMaxIdleConns:        2,
		DBConnMaxLifetime:     5 * time.Minute,
		StartupDelay:          2 * time.Second,
		HealthCheckTimeout:    10 * time.Second,
		TokenDecimals:         6,
		SnapshotSchedule:      "0 0 * * *",
		MinimumHoldDays:       30,
		LeaderboardLimit:      50,
		CleanupSchedule:       "0 2 * * 0",
		SnapshotRetentionDays: 90,
		ValidateSchedule:      "0 */6 * * *",
		OTLPEndpoint:          "localhost:4317",
		LogLevel:              "info",
		LogFormat:             "json",
	}
}

// Load reads optional dotenv files (".env" when none are given), then the process
// environment, on top of Default. The result is validated before it is returned.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		// godotenv never overrides variables that are already set.
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if err := k.Load(env.Provider("", ".", strings.ToLower), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks field constraints and reports every failing field at once.
func (c *Config) Validate() error {
	err := validator.New().Struct(c)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return fmt.Errorf("validate config: %w", err)
	}

	msgs := make([]string, 0, len(validationErrors))
	for _, fe := range validationErrors {
		msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Field(), fe.Tag()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

// Database returns the connection settings for internal/database.
func (c *Config) Database() database.Config {
	return database.Config{
		URL:             c.DatabaseURL,
		Host:            c.DBHost,
		Port:            c.DBPort,
		User:            c.DBUser,
		Password:        c.DBPassword,
		Database:        c.DBName,
		SSLMode:         c.DBSSLMode,
		MaxOpenConns:    c.DBMaxOpenConns,
		MaxIdleConns:    c.DBMaxIdleConns,
		ConnMaxLifetime: c.DBConnMaxLifetime,
	}
}

// IsAdmin reports whether the Telegram user id is listed in ADMIN_USER_IDS.
func (c *Config) IsAdmin(userID int64) bool {
	for _, id := range c.AdminUserIDs {
		if id == userID {
			return true
		}
	}
	return false
}
