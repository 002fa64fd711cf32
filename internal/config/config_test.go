package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg == nil {
		t.Fatal("DefaultConfig returned nil")
	}

	if cfg.Server.ListenAddr != ":8080" {
		t.Errorf("expected ListenAddr :8080, got %s", cfg.Server.ListenAddr)
	}
	if cfg.Server.ReadTimeout != 30*time.Second {
		t.Errorf("expected ReadTimeout 30s, got %v", cfg.Server.ReadTimeout)
	}

	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("unexpected logging defaults: %+v", cfg.Logging)
	}

	if cfg.ClickHouse.Database != "commsentry" {
		t.Errorf("expected database commsentry, got %s", cfg.ClickHouse.Database)
	}

	if cfg.Baselines.Backend != "redis" {
		t.Errorf("expected redis baseline backend, got %s", cfg.Baselines.Backend)
	}
	if cfg.Baselines.Redis.Addr != "localhost:6379" {
		t.Errorf("expected Redis addr localhost:6379, got %s", cfg.Baselines.Redis.Addr)
	}

	if cfg.Engine.WindowDays != 30 || cfg.Engine.MaxEvents != 500 {
		t.Errorf("unexpected engine defaults: %+v", cfg.Engine)
	}
	if cfg.Engine.Detectors.RecentWindowDays != 7 {
		t.Errorf("expected recent window 7 days, got %d", cfg.Engine.Detectors.RecentWindowDays)
	}

	if cfg.Enrichment.Endpoint != "" {
		t.Error("expected enrichment disabled by default")
	}
	if cfg.Kafka.Enabled {
		t.Error("expected Kafka disabled by default")
	}
	if cfg.Archive.Enabled {
		t.Error("expected archive disabled by default")
	}
}

func TestValidate_ValidConfig(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("DefaultConfig should be valid, got error: %v", err)
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty listen addr", func(c *Config) { c.Server.ListenAddr = "" }},
		{"unknown log level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"unknown baseline backend", func(c *Config) { c.Baselines.Backend = "dynamo" }},
		{"no clickhouse hosts", func(c *Config) { c.ClickHouse.Hosts = nil }},
		{"zero window", func(c *Config) { c.Engine.WindowDays = 0 }},
		{"zero max events", func(c *Config) { c.Engine.MaxEvents = 0 }},
		{"recent window exceeds historical", func(c *Config) {
			c.Engine.Detectors.RecentWindowDays = 60
		}},
		{"kafka enabled without brokers", func(c *Config) {
			c.Kafka.Enabled = true
			c.Kafka.Brokers = nil
		}},
		{"archive enabled without bucket", func(c *Config) {
			c.Archive.Enabled = true
			c.Archive.Bucket = ""
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() = nil, want error")
			}
		})
	}
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := []byte(`
server:
  listen_addr: ":9090"
clickhouse:
  database: sentry_test
engine:
  window_days: 14
  detectors:
    recent_window_days: 3
`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SENTRY_CONFIG_PATH", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.ListenAddr != ":9090" {
		t.Errorf("ListenAddr = %s, want :9090", cfg.Server.ListenAddr)
	}
	if cfg.ClickHouse.Database != "sentry_test" {
		t.Errorf("Database = %s, want sentry_test", cfg.ClickHouse.Database)
	}
	if cfg.Engine.WindowDays != 14 {
		t.Errorf("WindowDays = %d, want 14", cfg.Engine.WindowDays)
	}
	if cfg.Engine.Detectors.RecentWindowDays != 3 {
		t.Errorf("RecentWindowDays = %d, want 3", cfg.Engine.Detectors.RecentWindowDays)
	}

	// Values the file does not mention keep their defaults.
	if cfg.Engine.MaxEvents != 500 {
		t.Errorf("MaxEvents = %d, want default 500", cfg.Engine.MaxEvents)
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	t.Setenv("SENTRY_CONFIG_PATH", filepath.Join(t.TempDir(), "nope.yaml"))

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.ListenAddr != ":8080" {
		t.Errorf("ListenAddr = %s, want default :8080", cfg.Server.ListenAddr)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SENTRY_CONFIG_PATH", filepath.Join(t.TempDir(), "nope.yaml"))
	t.Setenv("SENTRY_LISTEN_ADDR", ":7070")
	t.Setenv("CLICKHOUSE_HOST", "ch1:9000")
	t.Setenv("CLICKHOUSE_PASSWORD", "secret")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("SENTRY_ENRICH_ENDPOINT", "https://llm.internal/v1/analyze")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.ListenAddr != ":7070" {
		t.Errorf("ListenAddr = %s, want :7070", cfg.Server.ListenAddr)
	}
	if len(cfg.ClickHouse.Hosts) != 1 || cfg.ClickHouse.Hosts[0] != "ch1:9000" {
		t.Errorf("Hosts = %v, want [ch1:9000]", cfg.ClickHouse.Hosts)
	}
	if cfg.ClickHouse.Password != "secret" {
		t.Error("CLICKHOUSE_PASSWORD override not applied")
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "k2:9092" {
		t.Errorf("Brokers = %v, want [k1:9092 k2:9092]", cfg.Kafka.Brokers)
	}
	if cfg.Enrichment.Endpoint != "https://llm.internal/v1/analyze" {
		t.Errorf("Enrichment.Endpoint = %s", cfg.Enrichment.Endpoint)
	}
}
