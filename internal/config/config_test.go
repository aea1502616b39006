package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigMethods(t *testing.T) {
	t.Run("Addr returns formatted port", func(t *testing.T) {
		cfg := &Config{Port: 3000}
		assert.Equal(t, ":3000", cfg.Addr())
	})

	t.Run("RetentionWindow converts days to duration", func(t *testing.T) {
		cfg := &Config{RetentionDays: 30}
		assert.Equal(t, 30*24*time.Hour, cfg.RetentionWindow())
	})

	t.Run("SweepInterval converts minutes to duration", func(t *testing.T) {
		cfg := &Config{SweepIntervalMinutes: 60}
		assert.Equal(t, time.Hour, cfg.SweepInterval())
	})
}

func TestValidate(t *testing.T) {
	t.Run("accepts sane values", func(t *testing.T) {
		cfg := &Config{RetentionDays: 30, SweepIntervalMinutes: 60}
		assert.NoError(t, cfg.Validate())
	})

	t.Run("rejects zero retention", func(t *testing.T) {
		cfg := &Config{RetentionDays: 0, SweepIntervalMinutes: 60}
		assert.Error(t, cfg.Validate())
	})

	t.Run("rejects zero sweep interval", func(t *testing.T) {
		cfg := &Config{RetentionDays: 30, SweepIntervalMinutes: 0}
		assert.Error(t, cfg.Validate())
	})
}

func TestLoad(t *testing.T) {
	originalEnv := map[string]string{
		"PORT":                   os.Getenv("PORT"),
		"DATABASE_URL":           os.Getenv("DATABASE_URL"),
		"REDIS_URL":              os.Getenv("REDIS_URL"),
		"RETENTION_DAYS":         os.Getenv("RETENTION_DAYS"),
		"SWEEP_INTERVAL_MINUTES": os.Getenv("SWEEP_INTERVAL_MINUTES"),
		"LOG_LEVEL":              os.Getenv("LOG_LEVEL"),
	}

	defer func() {
		for k, v := range originalEnv {
			if v == "" {
				os.Unsetenv(k)
			} else {
				os.Setenv(k, v)
			}
		}
	}()

	t.Run("loads config with defaults", func(t *testing.T) {
		os.Setenv("DATABASE_URL", "postgres://localhost/test")
		os.Setenv("REDIS_URL", "redis://localhost:6379")
		os.Unsetenv("PORT")
		os.Unsetenv("RETENTION_DAYS")
		os.Unsetenv("SWEEP_INTERVAL_MINUTES")
		os.Unsetenv("LOG_LEVEL")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, 8080, cfg.Port)
		assert.Equal(t, 30, cfg.RetentionDays)
		assert.Equal(t, 60, cfg.SweepIntervalMinutes)
		assert.Equal(t, "info", cfg.LogLevel)
	})

	t.Run("fails without required values", func(t *testing.T) {
		os.Unsetenv("DATABASE_URL")
		os.Setenv("REDIS_URL", "redis://localhost:6379")

		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("overrides retention window", func(t *testing.T) {
		os.Setenv("DATABASE_URL", "postgres://localhost/test")
		os.Setenv("REDIS_URL", "redis://localhost:6379")
		os.Setenv("RETENTION_DAYS", "7")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, 7*24*time.Hour, cfg.RetentionWindow())
	})
}
