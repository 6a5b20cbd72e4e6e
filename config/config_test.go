package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = strings.Repeat("s", 32)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://localhost/test")
	t.Setenv("REDIS_URL", "redis://localhost:6379")
	t.Setenv("JWT_SECRET_KEY", testSecret)
}

func TestLoad(t *testing.T) {
	t.Run("loads config with defaults", func(t *testing.T) {
		setRequired(t)

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, 8080, cfg.Port)
		assert.Equal(t, "info", cfg.LogLevel)
		assert.Equal(t, 30*time.Minute, cfg.SessionPeriod)
		assert.False(t, cfg.SessionSplitOnDateChange)
		assert.Equal(t, time.Hour, cfg.SessionCacheTTL)
		assert.Equal(t, 8, cfg.ProcessWorkers)
		assert.Equal(t, 1024, cfg.ProcessQueueDepth)
		assert.Zero(t, cfg.ProcessScheduleInterval)
		assert.Equal(t, "localhost:9000", cfg.ClickHouseAddr())
	})

	t.Run("loads custom values", func(t *testing.T) {
		setRequired(t)
		t.Setenv("PORT", "3000")
		t.Setenv("SESSION_PERIOD", "45m")
		t.Setenv("SESSION_SPLIT_ON_DATE_CHANGE", "true")
		t.Setenv("PROCESS_WORKERS", "2")
		t.Setenv("PROCESS_SCHEDULE_INTERVAL", "24h")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, ":3000", cfg.Addr())
		assert.Equal(t, 45*time.Minute, cfg.SessionPeriod)
		assert.True(t, cfg.SessionSplitOnDateChange)
		assert.Equal(t, 2, cfg.ProcessWorkers)
		assert.Equal(t, 24*time.Hour, cfg.ProcessScheduleInterval)
	})

	t.Run("fails without required DATABASE_URL", func(t *testing.T) {
		setRequired(t)
		t.Setenv("DATABASE_URL", "")

		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("fails on malformed duration", func(t *testing.T) {
		setRequired(t)
		t.Setenv("SESSION_PERIOD", "half an hour")

		_, err := Load()
		assert.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			JWTSecretKey:      testSecret,
			SessionPeriod:     30 * time.Minute,
			ProcessWorkers:    4,
			ProcessQueueDepth: 16,
		}
	}

	t.Run("accepts valid config", func(t *testing.T) {
		assert.NoError(t, valid().Validate())
	})

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"zero session period", func(c *Config) { c.SessionPeriod = 0 }, "SESSION_PERIOD"},
		{"zero workers", func(c *Config) { c.ProcessWorkers = 0 }, "PROCESS_WORKERS"},
		{"zero queue depth", func(c *Config) { c.ProcessQueueDepth = 0 }, "PROCESS_QUEUE_DEPTH"},
		{"negative schedule", func(c *Config) { c.ProcessScheduleInterval = -time.Second }, "PROCESS_SCHEDULE_INTERVAL"},
		{"short secret", func(c *Config) { c.JWTSecretKey = "secret" }, "JWT_SECRET_KEY"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
