// Package config provides configuration management for Boswell.
// Settings come from three layers: built-in defaults, an optional YAML file
// (BOSWELL_CONFIG or ./boswell.yaml), and environment variables with the
// BOSWELL_ prefix. Environment variables win over the file; the file wins
// over defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML values can use Go duration syntax
// ("168h", "30m") rather than raw nanosecond counts.
type Duration time.Duration

// UnmarshalYAML parses either a duration string or a plain number of seconds.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if parsed, err := time.ParseDuration(value.Value); err == nil {
		*d = Duration(parsed)
		return nil
	}
	seconds, err := strconv.ParseFloat(value.Value, 64)
	if err != nil {
		return fmt.Errorf("invalid duration %q", value.Value)
	}
	*d = Duration(time.Duration(seconds * float64(time.Second)))
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config holds all configuration settings for the Boswell application.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Routing   RoutingConfig   `yaml:"routing"`
	Trails    TrailsConfig    `yaml:"trails"`
	Cache     CacheConfig     `yaml:"cache"`
	Nightly   NightlyConfig   `yaml:"nightly"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port int    `yaml:"port"` // default: 7474
	Host string `yaml:"host"` // default: 127.0.0.1
}

// StorageConfig contains database configuration.
type StorageConfig struct {
	Engine      string `yaml:"engine"`       // sqlite or postgres (default: sqlite)
	SQLitePath  string `yaml:"sqlite_path"`  // default: ./data/boswell.db
	PostgresDSN string `yaml:"postgres_dsn"` // required when engine=postgres
}

// EmbeddingConfig contains embedding provider configuration.
type EmbeddingConfig struct {
	Provider          string `yaml:"provider"`            // ollama or openai (default: ollama)
	OllamaURL         string `yaml:"ollama_url"`          // default: http://localhost:11434
	Model             string `yaml:"model"`               // default: nomic-embed-text
	OpenAIAPIKey      string `yaml:"openai_api_key"`      //
	RequestsPerMinute int    `yaml:"requests_per_minute"` // 0 disables rate limiting
}

// RoutingConfig tunes the branch-mismatch advisor.
type RoutingConfig struct {
	Threshold float64 `yaml:"threshold"` // minimum similarity for a suggestion (default: 0.15)
}

// TrailsConfig is the decay curve for the trail lifecycle.
type TrailsConfig struct {
	BaseStrength       float64  `yaml:"base_strength"`       // default: 1.0
	TraversalBoost     float64  `yaml:"traversal_boost"`     // default: 1.0
	MaxStrength        float64  `yaml:"max_strength"`        // default: 100
	FadingAfter        Duration `yaml:"fading_after"`        // default: 168h
	DormantAfter       Duration `yaml:"dormant_after"`       // default: 720h
	ArchivedAfter      Duration `yaml:"archived_after"`      // default: 2160h
	FadingMultiplier   float64  `yaml:"fading_multiplier"`   // default: 1.0
	DormantMultiplier  float64  `yaml:"dormant_multiplier"`  // default: 0.75
	ArchivedMultiplier float64  `yaml:"archived_multiplier"` // default: 0.5
	SweepBatchSize     int      `yaml:"sweep_batch_size"`    // default: 5000
}

// CacheConfig configures the TTL keyed store used for session checkpoints.
type CacheConfig struct {
	Backend       string   `yaml:"backend"`        // memory or redis (default: memory)
	RedisAddr     string   `yaml:"redis_addr"`     // default: localhost:6379
	RedisPassword string   `yaml:"redis_password"` //
	RedisDB       int      `yaml:"redis_db"`       //
	CheckpointTTL Duration `yaml:"checkpoint_ttl"` // default: 24h
}

// NightlyConfig configures the maintenance binary.
type NightlyConfig struct {
	// Tenants lists the tenant IDs the nightly run maintains.
	Tenants []string `yaml:"tenants"`
}

// Load builds the configuration from defaults, the optional YAML file and
// environment variables, in that order of precedence.
func Load() (*Config, error) {
	cfg := defaults()

	path := os.Getenv("BOSWELL_CONFIG")
	if path == "" {
		path = "boswell.yaml"
	}
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
		}
	} else if os.Getenv("BOSWELL_CONFIG") != "" {
		// An explicitly named file must exist.
		return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	applyEnv(cfg)
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port: 7474,
			Host: "127.0.0.1",
		},
		Storage: StorageConfig{
			Engine:     "sqlite",
			SQLitePath: "./data/boswell.db",
		},
		Embedding: EmbeddingConfig{
			Provider:  "ollama",
			OllamaURL: "http://localhost:11434",
			Model:     "nomic-embed-text",
		},
		Routing: RoutingConfig{
			Threshold: 0.15,
		},
		Trails: TrailsConfig{
			BaseStrength:       1.0,
			TraversalBoost:     1.0,
			MaxStrength:        100.0,
			FadingAfter:        Duration(7 * 24 * time.Hour),
			DormantAfter:       Duration(30 * 24 * time.Hour),
			ArchivedAfter:      Duration(90 * 24 * time.Hour),
			FadingMultiplier:   1.0,
			DormantMultiplier:  0.75,
			ArchivedMultiplier: 0.5,
			SweepBatchSize:     5000,
		},
		Cache: CacheConfig{
			Backend:       "memory",
			RedisAddr:     "localhost:6379",
			CheckpointTTL: Duration(24 * time.Hour),
		},
	}
}

func applyEnv(cfg *Config) {
	cfg.Server.Port = getEnvInt("BOSWELL_PORT", cfg.Server.Port)
	cfg.Server.Host = getEnv("BOSWELL_HOST", cfg.Server.Host)

	cfg.Storage.Engine = getEnv("BOSWELL_STORAGE_ENGINE", cfg.Storage.Engine)
	cfg.Storage.SQLitePath = getEnv("BOSWELL_SQLITE_PATH", cfg.Storage.SQLitePath)
	cfg.Storage.PostgresDSN = getEnv("BOSWELL_POSTGRES_DSN", cfg.Storage.PostgresDSN)

	cfg.Embedding.Provider = getEnv("BOSWELL_EMBEDDING_PROVIDER", cfg.Embedding.Provider)
	cfg.Embedding.OllamaURL = getEnv("BOSWELL_OLLAMA_URL", cfg.Embedding.OllamaURL)
	cfg.Embedding.Model = getEnv("BOSWELL_EMBEDDING_MODEL", cfg.Embedding.Model)
	cfg.Embedding.OpenAIAPIKey = getEnv("BOSWELL_OPENAI_API_KEY", cfg.Embedding.OpenAIAPIKey)
	cfg.Embedding.RequestsPerMinute = getEnvInt("BOSWELL_EMBEDDING_RPM", cfg.Embedding.RequestsPerMinute)

	cfg.Routing.Threshold = getEnvFloat("BOSWELL_ROUTING_THRESHOLD", cfg.Routing.Threshold)

	cfg.Trails.FadingAfter = getEnvDuration("BOSWELL_TRAIL_FADING_AFTER", cfg.Trails.FadingAfter)
	cfg.Trails.DormantAfter = getEnvDuration("BOSWELL_TRAIL_DORMANT_AFTER", cfg.Trails.DormantAfter)
	cfg.Trails.ArchivedAfter = getEnvDuration("BOSWELL_TRAIL_ARCHIVED_AFTER", cfg.Trails.ArchivedAfter)
	cfg.Trails.SweepBatchSize = getEnvInt("BOSWELL_TRAIL_SWEEP_BATCH", cfg.Trails.SweepBatchSize)

	cfg.Cache.Backend = getEnv("BOSWELL_CACHE_BACKEND", cfg.Cache.Backend)
	cfg.Cache.RedisAddr = getEnv("BOSWELL_REDIS_ADDR", cfg.Cache.RedisAddr)
	cfg.Cache.RedisPassword = getEnv("BOSWELL_REDIS_PASSWORD", cfg.Cache.RedisPassword)
	cfg.Cache.RedisDB = getEnvInt("BOSWELL_REDIS_DB", cfg.Cache.RedisDB)
	cfg.Cache.CheckpointTTL = getEnvDuration("BOSWELL_CHECKPOINT_TTL", cfg.Cache.CheckpointTTL)

	if tenants := getEnv("BOSWELL_TENANTS", ""); tenants != "" {
		cfg.Nightly.Tenants = splitTenants(tenants)
	}
}

// splitTenants parses a comma-separated tenant list, dropping empty entries.
func splitTenants(s string) []string {
	var tenants []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			tenants = append(tenants, part)
		}
	}
	return tenants
}

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default
// value when unset or unparseable.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat retrieves a float environment variable or returns a default
// value when unset or unparseable.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration retrieves a duration environment variable (Go duration
// syntax, e.g. "168h") or returns a default value.
func getEnvDuration(key string, defaultValue Duration) Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return Duration(d)
		}
	}
	return defaultValue
}
