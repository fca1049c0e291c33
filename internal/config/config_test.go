package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holdtrack/holdtrack/internal/config"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("BOT_TOKEN", "123:abc")
	t.Setenv("HELIUS_API_KEY", "helius-key")
	t.Setenv("TOKEN_CONTRACT_ADDRESS", "So11111111111111111111111111111111111111112")
}

func missingEnvFile(t *testing.T) string {
	return filepath.Join(t.TempDir(), "missing.env")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := config.Load(missingEnvFile(t))
	require.NoError(t, err)

	assert.Equal(t, 8000, cfg.Port)
	assert.Equal(t, 2*time.Second, cfg.StartupDelay)
	assert.Equal(t, 10*time.Second, cfg.HealthCheckTimeout)
	assert.Equal(t, "0 0 * * *", cfg.SnapshotSchedule)
	assert.Equal(t, 30, cfg.MinimumHoldDays)
	assert.Equal(t, 50, cfg.LeaderboardLimit)
	assert.Equal(t, "0 2 * * 0", cfg.CleanupSchedule)
	assert.Equal(t, 90, cfg.SnapshotRetentionDays)
	assert.Equal(t, "0 */6 * * *", cfg.ValidateSchedule)
	assert.Empty(t, cfg.AdminUserIDs)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("APP_PORT", "9090")
	t.Setenv("ADMIN_USER_IDS", "111,222")
	t.Setenv("STARTUP_DELAY", "500ms")
	t.Setenv("HEALTH_CHECK_TIMEOUT", "3s")
	t.Setenv("OTEL_ENABLED", "true")
	t.Setenv("LOG_FORMAT", "console")

	cfg, err := config.Load(missingEnvFile(t))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, []int64{111, 222}, cfg.AdminUserIDs)
	assert.Equal(t, 500*time.Millisecond, cfg.StartupDelay)
	assert.Equal(t, 3*time.Second, cfg.HealthCheckTimeout)
	assert.True(t, cfg.OTelEnabled)
	assert.Equal(t, "console", cfg.LogFormat)
	assert.True(t, cfg.IsAdmin(222))
	assert.False(t, cfg.IsAdmin(333))
}

func TestLoad_DotEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(path, []byte("LEADERBOARD_LIMIT=25\n"), 0o600))
	setRequired(t)
	t.Cleanup(func() { os.Unsetenv("LEADERBOARD_LIMIT") })

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 25, cfg.LeaderboardLimit)
}

func TestLoad_MissingRequired(t *testing.T) {
	t.Setenv("BOT_TOKEN", "")
	t.Setenv("HELIUS_API_KEY", "")
	t.Setenv("TOKEN_CONTRACT_ADDRESS", "")

	_, err := config.Load(missingEnvFile(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BotToken")
	assert.Contains(t, err.Error(), "HeliusAPIKey")
}

func TestValidate_RejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		field  string
	}{
		{"port out of range", func(c *config.Config) { c.Port = 70000 }, "Port"},
		{"zero check timeout", func(c *config.Config) { c.HealthCheckTimeout = 0 }, "HealthCheckTimeout"},
		{"unknown log level", func(c *config.Config) { c.LogLevel = "loud" }, "LogLevel"},
		{"leaderboard too large", func(c *config.Config) { c.LeaderboardLimit = 500 }, "LeaderboardLimit"},
		{"zero retention", func(c *config.Config) { c.SnapshotRetentionDays = 0 }, "SnapshotRetentionDays"},
		{"missing cleanup schedule", func(c *config.Config) { c.CleanupSchedule = "" }, "CleanupSchedule"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.BotToken = "t"
			cfg.HeliusAPIKey = "k"
			cfg.TokenMint = "m"
			tt.mutate(&cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestDatabase_MapsFields(t *testing.T) {
	cfg := config.Default()
	cfg.DatabaseURL = "postgres://u:p@db:5432/x"

	db := cfg.Database()
	assert.Equal(t, "postgres://u:p@db:5432/x", db.URL)
	assert.Equal(t, 10, db.MaxOpenConns)
}
