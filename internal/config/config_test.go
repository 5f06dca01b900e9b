package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, DriverSQLite, cfg.Database.Driver)
	assert.Equal(t, 15*time.Minute, cfg.Cache.TTL)
	assert.Empty(t, cfg.Redis.Address)
	assert.Empty(t, cfg.Catalog.Path)
	assert.Nil(t, cfg.Server.AllowedOrigins)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("DATABASE_DRIVER", "postgres")
	t.Setenv("DATABASE_DSN", "postgres://gmfm@localhost/gmfm")
	t.Setenv("ALLOWED_ORIGINS", "https://clinic.example, ,https://reports.example")
	t.Setenv("RATE_LIMIT_RPS", "2.5")
	t.Setenv("SCORE_CACHE_TTL", "1h")
	t.Setenv("REDIS_DB", "not-a-number")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, DriverPostgres, cfg.Database.Driver)
	assert.Equal(t, []string{"https://clinic.example", "https://reports.example"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, 2.5, cfg.Server.RateLimitRPS)
	assert.Equal(t, time.Hour, cfg.Cache.TTL)
	assert.Equal(t, 0, cfg.Redis.DB, "unparsable values fall back to the default")

	level, err := ParseLevel(cfg.Log.Level)
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"bad port", map[string]string{"SERVER_PORT": "70000"}},
		{"postgres without dsn", map[string]string{"DATABASE_DRIVER": "postgres"}},
		{"unknown driver", map[string]string{"DATABASE_DRIVER": "mongo"}},
		{"empty sqlite path", map[string]string{"SQLITE_PATH": ""}},
		{"negative rate", map[string]string{"RATE_LIMIT_RPS": "-1"}},
		{"zero ttl", map[string]string{"SCORE_CACHE_TTL": "0s"}},
		{"bad log level", map[string]string{"LOG_LEVEL": "loud"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
