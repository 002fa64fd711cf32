// Package config handles configuration loading for commsentry.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"commsentry/internal/baseline"
	"commsentry/internal/engine"
	"commsentry/internal/enrich"
	"commsentry/internal/notify"
	"commsentry/internal/storage"
	"commsentry/internal/storage/s3"
)

// Config holds the complete application configuration.
type Config struct {
	Server     ServerConfig             `yaml:"server"`
	Auth       AuthConfig               `yaml:"auth"`
	Logging    LoggingConfig            `yaml:"logging"`
	ClickHouse storage.ClickHouseConfig `yaml:"clickhouse"`
	Baselines  BaselineConfig           `yaml:"baselines"`
	Engine     engine.Config            `yaml:"engine"`
	Enrichment enrich.Config            `yaml:"enrichment"`
	Kafka      notify.Config            `yaml:"kafka"`
	Archive    s3.Config                `yaml:"archive"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	ListenAddr      string        `yaml:"listen_addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// AuthConfig holds API authentication settings. Keys are stored as bcrypt
// hashes, never in the clear.
type AuthConfig struct {
	APIKeyHashes []string `yaml:"api_key_hashes"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// BaselineConfig selects and configures the baseline store backend.
type BaselineConfig struct {
	Backend string               `yaml:"backend"` // "redis" or "memory"
	Redis   baseline.RedisConfig `yaml:"redis"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr:      ":8080",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		ClickHouse: storage.DefaultClickHouseConfig(),
		Baselines: BaselineConfig{
			Backend: "redis",
			Redis:   baseline.DefaultRedisConfig(),
		},
		Engine:     engine.DefaultConfig(),
		Enrichment: enrich.DefaultConfig(),
		Kafka:      notify.DefaultConfig(),
		Archive:    s3.DefaultConfig(),
	}
}

// Load loads configuration from a file or returns defaults. The file path
// comes from SENTRY_CONFIG_PATH, falling back to configs/config.yaml. A
// missing file is not an error.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	configPath := os.Getenv("SENTRY_CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides. Secrets in
// particular should come from the environment rather than the file.
func (c *Config) applyEnvOverrides() {
	if addr := os.Getenv("SENTRY_LISTEN_ADDR"); addr != "" {
		c.Server.ListenAddr = addr
	}

	if level := os.Getenv("SENTRY_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}

	if hash := os.Getenv("SENTRY_API_KEY_HASH"); hash != "" {
		c.Auth.APIKeyHashes = append(c.Auth.APIKeyHashes, hash)
	}

	if host := os.Getenv("CLICKHOUSE_HOST"); host != "" {
		c.ClickHouse.Hosts = []string{host}
	}

	if db := os.Getenv("CLICKHOUSE_DATABASE"); db != "" {
		c.ClickHouse.Database = db
	}

	if user := os.Getenv("CLICKHOUSE_USER"); user != "" {
		c.ClickHouse.Username = user
	}

	if pass := os.Getenv("CLICKHOUSE_PASSWORD"); pass != "" {
		c.ClickHouse.Password = pass
	}

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		c.Baselines.Redis.Addr = addr
	}

	if pass := os.Getenv("REDIS_PASSWORD"); pass != "" {
		c.Baselines.Redis.Password = pass
	}

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		c.Kafka.Brokers = splitAndTrim(brokers, ",")
	}

	if endpoint := os.Getenv("SENTRY_ENRICH_ENDPOINT"); endpoint != "" {
		c.Enrichment.Endpoint = endpoint
	}

	if key := os.Getenv("SENTRY_ENRICH_API_KEY"); key != "" {
		c.Enrichment.APIKey = key
	}
}

// Validate checks the configuration for values the server cannot start with.
func (c *Config) Validate() error {
	if c.Server.ListenAddr == "" {
		return fmt.Errorf("server: listen_addr is required")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging: unknown level %q", c.Logging.Level)
	}

	switch c.Baselines.Backend {
	case "redis", "memory":
	default:
		return fmt.Errorf("baselines: unknown backend %q", c.Baselines.Backend)
	}

	if len(c.ClickHouse.Hosts) == 0 {
		return fmt.Errorf("clickhouse: at least one host is required")
	}

	if c.Engine.WindowDays <= 0 {
		return fmt.Errorf("engine: window_days must be positive")
	}
	if c.Engine.MaxEvents <= 0 {
		return fmt.Errorf("engine: max_events must be positive")
	}
	if c.Engine.Detectors.RecentWindowDays > c.Engine.Detectors.HistoricalWindowDays {
		return fmt.Errorf("engine: recent window cannot exceed historical window")
	}

	if err := c.Kafka.Validate(); err != nil {
		return fmt.Errorf("kafka: %w", err)
	}

	if err := c.Archive.Validate(); err != nil {
		return fmt.Errorf("archive: %w", err)
	}

	return nil
}

// splitAndTrim splits a string by separator and drops empty parts.
func splitAndTrim(s, sep string) []string {
	parts := make([]string, 0)
	for _, part := range strings.Split(s, sep) {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}
