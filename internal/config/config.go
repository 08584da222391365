package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Store backend selectors.
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Store     string // postgres or memory
	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Server    ServerConfig
	Capture   CaptureConfig
	Retention RetentionConfig
	Slack     SlackConfig
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string //nolint:gosec // G117: DB connection config
	DBName   string
	SSLMode  string
	MaxConns int
}

// RedisConfig holds Redis connection settings for the live feed. An empty
// Addr disables the feed.
type RedisConfig struct {
	Addr     string
	Password string //nolint:gosec // G117: Redis connection config
	DB       int
}

// JWTConfig holds settings for validating platform-issued tokens.
type JWTConfig struct {
	Secret string //nolint:gosec // G117: JWT signing secret config
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	CORSOrigins  []string
}

// CaptureConfig tunes the write path.
type CaptureConfig struct {
	QueueSize        int
	MetadataMaxBytes int
}

// RetentionConfig holds the pruning window. Interval zero means retention is
// driven purely by an external scheduler calling the service.
type RetentionConfig struct {
	Days     int
	Interval time.Duration
}

// SlackConfig holds the optional security alert sink. Empty token or channel
// disables alerting.
type SlackConfig struct {
	BotToken     string
	AlertChannel string
}

// Load reads configuration from environment variables.
// Defaults are safe for local development only. In production,
// sensitive values (JWT secret, DB password) must be set explicitly.
func Load() (*Config, error) {
	dbPort, err := getEnvInt("TRAIL_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	dbMaxConns, err := getEnvInt("TRAIL_DB_MAX_CONNS", 25)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	redisDB, err := getEnvInt("TRAIL_REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	readTimeout, err := getEnvDuration("TRAIL_SERVER_READ_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	writeTimeout, err := getEnvDuration("TRAIL_SERVER_WRITE_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	queueSize, err := getEnvInt("TRAIL_CAPTURE_QUEUE_SIZE", 1024)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	metadataMax, err := getEnvInt("TRAIL_CAPTURE_METADATA_MAX_BYTES", 8192)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	retentionDays, err := getEnvInt("TRAIL_RETENTION_DAYS", 365)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	retentionInterval, err := getEnvDuration("TRAIL_RETENTION_INTERVAL", 0)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	corsOrigins := getEnvList("TRAIL_CORS_ORIGINS", []string{"http://localhost:5173"})

	cfg := &Config{
		Store: getEnv("TRAIL_STORE", StorePostgres),
		Database: DatabaseConfig{
			Host:     getEnv("TRAIL_DB_HOST", "localhost"),
			Port:     dbPort,
			User:     getEnv("TRAIL_DB_USER", "trail"),
			Password: getEnv("TRAIL_DB_PASSWORD", ""),
			DBName:   getEnv("TRAIL_DB_NAME", "trail_dev"),
			SSLMode:  getEnv("TRAIL_DB_SSLMODE", "disable"),
			MaxConns: dbMaxConns,
		},
		Redis: RedisConfig{
			Addr:     getEnv("TRAIL_REDIS_ADDR", ""),
			Password: getEnv("TRAIL_REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		JWT: JWTConfig{
			Secret: getEnv("TRAIL_JWT_SECRET", ""),
		},
		Server: ServerConfig{
			Addr:         getEnv("TRAIL_SERVER_ADDR", ":8080"),
			ReadTimeout:  readTimeout,
			WriteTimeout: writeTimeout,
			CORSOrigins:  corsOrigins,
		},
		Capture: CaptureConfig{
			QueueSize:        queueSize,
			MetadataMaxBytes: metadataMax,
		},
		Retention: RetentionConfig{
			Days:     retentionDays,
			Interval: retentionInterval,
		},
		Slack: SlackConfig{
			BotToken:     getEnv("TRAIL_SLACK_BOT_TOKEN", ""),
			AlertChannel: getEnv("TRAIL_SLACK_ALERT_CHANNEL", ""),
		},
	}

	err = cfg.validate()
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	return cfg, nil
}

// validate checks required fields and value bounds.
func (c *Config) validate() error {
	// JWT secret is required (no insecure default).
	if c.JWT.Secret == "" {
		return errors.New("TRAIL_JWT_SECRET is required")
	}
	if len(c.JWT.Secret) < 32 {
		return errors.New("TRAIL_JWT_SECRET must be at least 32 characters")
	}

	if c.Store != StorePostgres && c.Store != StoreMemory {
		return fmt.Errorf("TRAIL_STORE must be %q or %q, got %q", StorePostgres, StoreMemory, c.Store)
	}

	if c.Store == StorePostgres && c.Database.SSLMode == "disable" {
		log.Warn().Msg("TRAIL_DB_SSLMODE=disable is insecure for production; set to 'require' or 'verify-full'")
	}

	// Bounds checks.
	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("TRAIL_DB_PORT must be 1-65535, got %d", c.Database.Port)
	}
	if c.Database.MaxConns < 1 {
		return fmt.Errorf("TRAIL_DB_MAX_CONNS must be >= 1, got %d", c.Database.MaxConns)
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("TRAIL_SERVER_READ_TIMEOUT must be positive, got %s", c.Server.ReadTimeout)
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("TRAIL_SERVER_WRITE_TIMEOUT must be positive, got %s", c.Server.WriteTimeout)
	}
	if c.Capture.QueueSize < 1 {
		return fmt.Errorf("TRAIL_CAPTURE_QUEUE_SIZE must be >= 1, got %d", c.Capture.QueueSize)
	}
	if c.Capture.MetadataMaxBytes < 0 {
		return fmt.Errorf("TRAIL_CAPTURE_METADATA_MAX_BYTES must be >= 0, got %d", c.Capture.MetadataMaxBytes)
	}
	if c.Retention.Days < 1 {
		return fmt.Errorf("TRAIL_RETENTION_DAYS must be >= 1, got %d", c.Retention.Days)
	}
	if c.Retention.Interval < 0 {
		return fmt.Errorf("TRAIL_RETENTION_INTERVAL must be >= 0, got %s", c.Retention.Interval)
	}
	if (c.Slack.BotToken == "") != (c.Slack.AlertChannel == "") {
		return errors.New("TRAIL_SLACK_BOT_TOKEN and TRAIL_SLACK_ALERT_CHANNEL must be set together")
	}

	return nil
}

// DSN returns the PostgreSQL connection string.
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as int: %w", key, v, err)
	}
	return n, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as duration: %w", key, v, err)
	}
	return d, nil
}

func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
