package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"GEMINI_API_KEY", "OPENAI_API_KEY", "WHATBEATS_DB", "WHATBEATS_ADDR", "WHATBEATS_LOG_LEVEL"} {
		t.Setenv(k, "")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "rock", cfg.Game.DefaultSeed)
	assert.Equal(t, 50, cfg.Game.MaxGuessLength)
	assert.Equal(t, time.Hour, cfg.GetCacheTTL())
	assert.Equal(t, 100, cfg.RateLimit.Limit)
	assert.Equal(t, time.Minute, cfg.GetRateLimitWindow())
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestConfig_SaveLoad(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "nested", "whatbeats.yaml")

	cfg := DefaultConfig()
	cfg.Oracle.Provider = "openai"
	cfg.Oracle.APIKey = "sk-test"
	cfg.Game.HistoryTail = 3
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "openai", loaded.Oracle.Provider)
	assert.Equal(t, "sk-test", loaded.Oracle.APIKey)
	assert.Equal(t, 3, loaded.Game.HistoryTail)
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "whatbeats.yaml")
	require.NoError(t, os.WriteFile(path, []byte("cache:\n  ttl: 30m\n"), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Minute, cfg.GetCacheTTL())
	assert.Equal(t, "sqlite", cfg.Cache.Backend)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "whatbeats.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [unterminated"), 0644))

	_, err := Load(path)
	assert.ErrorContains(t, err, "failed to parse config")
}

func TestEnvOverrides(t *testing.T) {
	t.Run("GEMINI_API_KEY wins over OPENAI_API_KEY", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("OPENAI_API_KEY", "oa")
		t.Setenv("GEMINI_API_KEY", "gem")

		cfg := &Config{}
		cfg.applyEnvOverrides()

		assert.Equal(t, "gem", cfg.Oracle.APIKey)
		assert.Equal(t, "gemini", cfg.Oracle.Provider)
	})

	t.Run("OPENAI_API_KEY alone selects openai", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("OPENAI_API_KEY", "oa")

		cfg := &Config{Oracle: OracleConfig{Provider: "gemini"}}
		cfg.applyEnvOverrides()

		assert.Equal(t, "openai", cfg.Oracle.Provider)
	})

	t.Run("paths and level", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("WHATBEATS_DB", "/tmp/x.db")
		t.Setenv("WHATBEATS_ADDR", ":9999")
		t.Setenv("WHATBEATS_LOG_LEVEL", "debug")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.Equal(t, "/tmp/x.db", cfg.Store.DatabasePath)
		assert.Equal(t, ":9999", cfg.Server.Addr)
		assert.Equal(t, "debug", cfg.Logging.Level)
	})
}

func TestDurationFallbacks(t *testing.T) {
	cfg := &Config{}
	cfg.Oracle.Timeout = "soon"
	cfg.Cache.TTL = "-5m"

	assert.Equal(t, 10*time.Second, cfg.GetOracleTimeout())
	assert.Equal(t, time.Hour, cfg.GetCacheTTL())
	assert.Equal(t, 10*time.Second, cfg.GetShutdownTimeout())
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := DefaultConfig()
		cfg.Oracle.APIKey = "k"
		return cfg
	}

	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing key", func(c *Config) { c.Oracle.APIKey = "" }, "API key"},
		{"bad provider", func(c *Config) { c.Oracle.Provider = "zai" }, "invalid oracle provider"},
		{"bad store", func(c *Config) { c.Store.Backend = "mongo" }, "invalid store backend"},
		{"sqlite cache on memory store", func(c *Config) { c.Store.Backend = "memory" }, "requires the sqlite store"},
		{"zero guess length", func(c *Config) { c.Game.MaxGuessLength = 0 }, "max_guess_length"},
		{"zero rate limit", func(c *Config) { c.RateLimit.Limit = 0 }, "rate_limit.limit"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}
}
