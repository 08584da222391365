package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validSecret = "0123456789abcdef0123456789abcdef"

func TestLoad(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		t.Setenv("TRAIL_JWT_SECRET", validSecret)

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, StorePostgres, cfg.Store)
		assert.Equal(t, "localhost", cfg.Database.Host)
		assert.Equal(t, 5432, cfg.Database.Port)
		assert.Equal(t, ":8080", cfg.Server.Addr)
		assert.Equal(t, 1024, cfg.Capture.QueueSize)
		assert.Equal(t, 8192, cfg.Capture.MetadataMaxBytes)
		assert.Equal(t, 365, cfg.Retention.Days)
		assert.Equal(t, time.Duration(0), cfg.Retention.Interval)
		assert.Empty(t, cfg.Redis.Addr, "live feed is opt-in")
	})

	t.Run("overrides", func(t *testing.T) {
		t.Setenv("TRAIL_JWT_SECRET", validSecret)
		t.Setenv("TRAIL_STORE", StoreMemory)
		t.Setenv("TRAIL_RETENTION_DAYS", "90")
		t.Setenv("TRAIL_RETENTION_INTERVAL", "6h")
		t.Setenv("TRAIL_CORS_ORIGINS", "https://admin.example.edu, https://ops.example.edu")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, StoreMemory, cfg.Store)
		assert.Equal(t, 90, cfg.Retention.Days)
		assert.Equal(t, 6*time.Hour, cfg.Retention.Interval)
		assert.Equal(t, []string{"https://admin.example.edu", "https://ops.example.edu"}, cfg.Server.CORSOrigins)
	})

	t.Run("missing_jwt_secret", func(t *testing.T) {
		t.Setenv("TRAIL_JWT_SECRET", "")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "TRAIL_JWT_SECRET")
	})

	t.Run("short_jwt_secret", func(t *testing.T) {
		t.Setenv("TRAIL_JWT_SECRET", "tooshort")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "32 characters")
	})

	t.Run("unknown_store", func(t *testing.T) {
		t.Setenv("TRAIL_JWT_SECRET", validSecret)
		t.Setenv("TRAIL_STORE", "sqlite")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "TRAIL_STORE")
	})

	t.Run("bad_int", func(t *testing.T) {
		t.Setenv("TRAIL_JWT_SECRET", validSecret)
		t.Setenv("TRAIL_DB_PORT", "not-a-port")

		_, err := Load()
		require.Error(t, err)
	})

	t.Run("retention_days_must_be_positive", func(t *testing.T) {
		t.Setenv("TRAIL_JWT_SECRET", validSecret)
		t.Setenv("TRAIL_RETENTION_DAYS", "0")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "TRAIL_RETENTION_DAYS")
	})

	t.Run("slack_must_be_set_together", func(t *testing.T) {
		t.Setenv("TRAIL_JWT_SECRET", validSecret)
		t.Setenv("TRAIL_SLACK_BOT_TOKEN", "xoxb-test")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "TRAIL_SLACK")
	})
}

func TestDSN(t *testing.T) {
	t.Parallel()

	db := DatabaseConfig{
		Host: "db.internal", Port: 5433, User: "trail",
		Password: "secret", DBName: "trail_prod", SSLMode: "require",
	}
	assert.Equal(t,
		"host=db.internal port=5433 user=trail password=secret dbname=trail_prod sslmode=require",
		db.DSN())
}
