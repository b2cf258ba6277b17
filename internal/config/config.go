package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all whatbeats configuration.
type Config struct {
	Name string `yaml:"name"`

	// HTTP transport
	Server ServerConfig `yaml:"server"`

	// Upstream judge
	Oracle OracleConfig `yaml:"oracle"`

	// Session and tally persistence
	Store StoreConfig `yaml:"store"`

	// Verdict cache
	Cache CacheConfig `yaml:"cache"`

	// Per-client throttling
	RateLimit RateLimitConfig `yaml:"rate_limit"`

	// Game rules
	Game GameConfig `yaml:"game"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr              string `yaml:"addr"`
	ReadHeaderTimeout string `yaml:"read_header_timeout"`
	ShutdownTimeout   string `yaml:"shutdown_timeout"`
	MaxConnections    int    `yaml:"max_connections"` // 0 = unlimited
}

// OracleConfig configures the verdict provider.
type OracleConfig struct {
	Provider string `yaml:"provider"` // gemini, openai
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`
	Timeout  string `yaml:"timeout"`
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	Backend      string `yaml:"backend"` // memory, sqlite
	DatabasePath string `yaml:"database_path"`
}

// CacheConfig configures the verdict cache.
type CacheConfig struct {
	Backend       string `yaml:"backend"` // memory, sqlite
	TTL           string `yaml:"ttl"`
	Size          int    `yaml:"size"` // memory backend only
	SweepInterval string `yaml:"sweep_interval"`
}

// RateLimitConfig configures the fixed-window limiter.
type RateLimitConfig struct {
	Enabled bool   `yaml:"enabled"`
	Limit   int    `yaml:"limit"`
	Window  string `yaml:"window"`
}

// GameConfig holds the rules of play.
type GameConfig struct {
	DefaultSeed    string `yaml:"default_seed"`
	MaxGuessLength int    `yaml:"max_guess_length"`
	HistoryTail    int    `yaml:"history_tail"`
	DefaultPersona string `yaml:"default_persona"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level      string          `yaml:"level"`  // debug, info, warn, error
	Format     string          `yaml:"format"` // json, console
	Categories map[string]bool `yaml:"categories"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name: "whatbeats",

		Server: ServerConfig{
			Addr:              ":8000",
			ReadHeaderTimeout: "5s",
			ShutdownTimeout:   "10s",
			MaxConnections:    1024,
		},

		Oracle: OracleConfig{
			Provider: "gemini",
			Model:    "gemini-2.5-flash",
			Timeout:  "10s",
		},

		Store: StoreConfig{
			Backend:      "sqlite",
			DatabasePath: "data/whatbeats.db",
		},

		Cache: CacheConfig{
			Backend:       "sqlite",
			TTL:           "1h",
			Size:          10000,
			SweepInterval: "5m",
		},

		RateLimit: RateLimitConfig{
			Enabled: true,
			Limit:   100,
			Window:  "1m",
		},

		Game: GameConfig{
			DefaultSeed:    "rock",
			MaxGuessLength: 50,
			HistoryTail:    5,
			DefaultPersona: "serious",
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	// Later keys win, matching provider precedence gemini > openai.
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		c.Oracle.APIKey = key
		c.Oracle.Provider = "openai"
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.Oracle.APIKey = key
		c.Oracle.Provider = "gemini"
	}

	if path := os.Getenv("WHATBEATS_DB"); path != "" {
		c.Store.DatabasePath = path
	}
	if addr := os.Getenv("WHATBEATS_ADDR"); addr != "" {
		c.Server.Addr = addr
	}
	if lvl := os.Getenv("WHATBEATS_LOG_LEVEL"); lvl != "" {
		c.Logging.Level = lvl
	}
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// GetOracleTimeout returns the oracle call bound as a duration.
func (c *Config) GetOracleTimeout() time.Duration {
	return parseDuration(c.Oracle.Timeout, 10*time.Second)
}

// GetCacheTTL returns the verdict lifetime as a duration.
func (c *Config) GetCacheTTL() time.Duration {
	return parseDuration(c.Cache.TTL, time.Hour)
}

// GetSweepInterval returns how often expired cache rows are purged.
func (c *Config) GetSweepInterval() time.Duration {
	return parseDuration(c.Cache.SweepInterval, 5*time.Minute)
}

// GetRateLimitWindow returns the limiter window as a duration.
func (c *Config) GetRateLimitWindow() time.Duration {
	return parseDuration(c.RateLimit.Window, time.Minute)
}

// GetReadHeaderTimeout returns the HTTP header read bound.
func (c *Config) GetReadHeaderTimeout() time.Duration {
	return parseDuration(c.Server.ReadHeaderTimeout, 5*time.Second)
}

// GetShutdownTimeout returns the graceful shutdown bound.
func (c *Config) GetShutdownTimeout() time.Duration {
	return parseDuration(c.Server.ShutdownTimeout, 10*time.Second)
}

// ValidProviders lists all supported oracle providers.
var ValidProviders = []string{"gemini", "openai"}

// ValidBackends lists the supported store and cache backends.
var ValidBackends = []string{"memory", "sqlite"}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Oracle.APIKey == "" {
		return fmt.Errorf("oracle API key not configured (set GEMINI_API_KEY or OPENAI_API_KEY)")
	}
	if !slices.Contains(ValidProviders, c.Oracle.Provider) {
		return fmt.Errorf("invalid oracle provider: %s (valid: %v)", c.Oracle.Provider, ValidProviders)
	}
	if !slices.Contains(ValidBackends, c.Store.Backend) {
		return fmt.Errorf("invalid store backend: %s (valid: %v)", c.Store.Backend, ValidBackends)
	}
	if !slices.Contains(ValidBackends, c.Cache.Backend) {
		return fmt.Errorf("invalid cache backend: %s (valid: %v)", c.Cache.Backend, ValidBackends)
	}
	if c.Cache.Backend == "sqlite" && c.Store.Backend != "sqlite" {
		return fmt.Errorf("sqlite cache backend requires the sqlite store backend")
	}
	if c.Game.MaxGuessLength <= 0 {
		return fmt.Errorf("game.max_guess_length must be positive")
	}
	if c.RateLimit.Enabled && c.RateLimit.Limit <= 0 {
		return fmt.Errorf("rate_limit.limit must be positive when enabled")
	}
	return nil
}
