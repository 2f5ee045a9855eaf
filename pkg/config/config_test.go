package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gormlogger "gorm.io/gorm/logger"

	"mahfaza/pkg/config"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "data", cfg.Data.Dir)
	assert.Equal(t, gormlogger.Warn, cfg.Data.LogLevel)
	assert.Equal(t, "8080", cfg.Server.Port)

	assert.Equal(t, 12, cfg.Auth.BcryptCost)
	assert.Equal(t, 7*24*time.Hour, cfg.Auth.SessionTTL)
	assert.Equal(t, 24*time.Hour, cfg.Auth.AdminSessionTTL)
	assert.Equal(t, 30*24*time.Hour, cfg.Auth.AdminRememberTTL)
	assert.Equal(t, 15*time.Minute, cfg.Auth.ResetCodeTTL)
	assert.Equal(t, 5, cfg.Auth.MaxSessionsPerUser)

	assert.Equal(t, 5, cfg.RateLimit.MaxAttempts)
	assert.Equal(t, 15*time.Minute, cfg.RateLimit.Window)
	assert.Equal(t, 30*time.Minute, cfg.RateLimit.Lockout)
	assert.Equal(t, 10000, cfg.RateLimit.CacheSize)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("APP_ENV", "production")
	t.Setenv("BCRYPT_COST", "10")
	t.Setenv("SESSION_TTL", "48h")
	t.Setenv("RATE_LIMIT_MAX_ATTEMPTS", "3")
	t.Setenv("DB_LOG_LEVEL", "silent")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "production", cfg.Server.Env)
	assert.True(t, cfg.Auth.SecureCookies)
	assert.Equal(t, 10, cfg.Auth.BcryptCost)
	assert.Equal(t, 48*time.Hour, cfg.Auth.SessionTTL)
	assert.Equal(t, 3, cfg.RateLimit.MaxAttempts)
	assert.Equal(t, gormlogger.Silent, cfg.Data.LogLevel)
}

func TestLoadIgnoresInvalidValues(t *testing.T) {
	t.Setenv("BCRYPT_COST", "not-a-number")
	t.Setenv("SESSION_TTL", "tomorrow")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, 12, cfg.Auth.BcryptCost)
	assert.Equal(t, 7*24*time.Hour, cfg.Auth.SessionTTL)
}
