package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gorm.io/gorm/logger"
)

// DataConfig holds storage configuration. Every tenant gets its own SQLite
// file under Dir next to the main database.
type DataConfig struct {
	Dir      string
	LogLevel logger.LogLevel
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port string
	Env  string
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	BcryptCost        int
	SessionTTL        time.Duration // tenant sessions
	AdminSessionTTL   time.Duration // admin sessions without remember-me
	AdminRememberTTL  time.Duration // admin sessions with remember-me
	CSRFTokenTTL      time.Duration // bootstrap CSRF cookie
	ResetCodeTTL      time.Duration // password reset OTP
	MaxSessionsPerUser int
	SecureCookies     bool
}

// RateLimitConfig holds login throttling configuration
type RateLimitConfig struct {
	MaxAttempts int
	Window      time.Duration
	Lockout     time.Duration
	CacheSize   int
}

// CleanupConfig holds the shared secret for the scheduled session sweep
type CleanupConfig struct {
	Secret string
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string
}

// MetricsConfig holds metrics configuration
type MetricsConfig struct {
	Prefix string
}

// Config holds all configuration
type Config struct {
	Data      DataConfig
	Server    ServerConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Cleanup   CleanupConfig
	Log       LogConfig
	Metrics   MetricsConfig
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		// Not returning error as .env file is optional
		fmt.Printf("Warning: .env file not found, using environment variables\n")
	}

	config := &Config{
		Data: DataConfig{
			Dir:      getEnv("DATA_DIR", "data"),
			LogLevel: getEnvAsLogLevel("DB_LOG_LEVEL", logger.Warn),
		},
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
			Env:  getEnv("APP_ENV", "development"),
		},
		Auth: AuthConfig{
			BcryptCost:         getEnvAsInt("BCRYPT_COST", 12),
			SessionTTL:         getEnvAsDuration("SESSION_TTL", 7*24*time.Hour),
			AdminSessionTTL:    getEnvAsDuration("ADMIN_SESSION_TTL", 24*time.Hour),
			AdminRememberTTL:   getEnvAsDuration("ADMIN_REMEMBER_TTL", 30*24*time.Hour),
			CSRFTokenTTL:       getEnvAsDuration("CSRF_TOKEN_TTL", 24*time.Hour),
			ResetCodeTTL:       getEnvAsDuration("RESET_CODE_TTL", 15*time.Minute),
			MaxSessionsPerUser: getEnvAsInt("MAX_SESSIONS_PER_USER", 5),
			SecureCookies:      getEnv("APP_ENV", "development") == "production",
		},
		RateLimit: RateLimitConfig{
			MaxAttempts: getEnvAsInt("RATE_LIMIT_MAX_ATTEMPTS", 5),
			Window:      getEnvAsDuration("RATE_LIMIT_WINDOW", 15*time.Minute),
			Lockout:     getEnvAsDuration("RATE_LIMIT_LOCKOUT", 30*time.Minute),
			CacheSize:   getEnvAsInt("RATE_LIMIT_CACHE_SIZE", 10000),
		},
		Cleanup: CleanupConfig{
			Secret: getEnv("CLEANUP_SECRET", "cleanup-secret-key"),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Metrics: MetricsConfig{
			Prefix: getEnv("METRICS_PREFIX", "mahfaza"),
		},
	}

	return config, nil
}

// LogConfig returns the configuration as a zap logger-friendly format
func (c *Config) LogConfig() []zap.Field {
	return []zap.Field{
		zap.String("environment", c.Server.Env),
		zap.String("data_dir", c.Data.Dir),
		zap.String("server_port", c.Server.Port),
	}
}

// Helper function to get environment variables with defaults
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// Helper function to get environment variables as integers
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// Helper function to get environment variables as durations
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// Helper function to get environment variables as log levels
func getEnvAsLogLevel(key string, defaultValue logger.LogLevel) logger.LogLevel {
	valueStr := getEnv(key, "")
	switch valueStr {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "warn":
		return logger.Warn
	case "info":
		return logger.Info
	default:
		return defaultValue
	}
}
