package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const DefaultFile = "qagateway.yaml"

// Config holds all configuration for the gateway.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Cache     CacheConfig     `yaml:"cache"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Upstream  UpstreamConfig  `yaml:"upstream"`
	Redis     RedisConfig     `yaml:"redis"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig selects where question records live.
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // "sqlite", "bolt" or "redis"
	Path   string `yaml:"path"`
}

// CacheConfig holds the similarity and promotion gates.
type CacheConfig struct {
	SimilarityThreshold float32       `yaml:"similarity_threshold"`
	FrequencyThreshold  int           `yaml:"frequency_threshold"`
	ExactTTL            time.Duration `yaml:"exact_ttl"` // L1 answer cache, needs redis
}

type EmbeddingConfig struct {
	BaseURL    string        `yaml:"base_url"`
	APIKey     string        `yaml:"api_key"`
	Model      string        `yaml:"model"`
	Dimensions int           `yaml:"dimensions"`
	Timeout    time.Duration `yaml:"timeout"`
}

type UpstreamConfig struct {
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	Temperature float64       `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxRetries  int           `yaml:"max_retries"`
	SourceTag   string        `yaml:"source_tag"`
}

// RedisConfig is optional; an empty Addr disables every redis-backed feature
// except the redis store driver, which then fails to open.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type RateLimitConfig struct {
	Enabled bool          `yaml:"enabled"`
	Limit   int           `yaml:"limit"`
	Window  time.Duration `yaml:"window"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text" or "json"
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			Path:   "qa_database.db",
		},
		Cache: CacheConfig{
			SimilarityThreshold: 0.95,
			FrequencyThreshold:  3,
			ExactTTL:            24 * time.Hour,
		},
		Embedding: EmbeddingConfig{
			BaseURL:    "http://localhost:11434/v1",
			Model:      "all-minilm",
			Dimensions: 384,
			Timeout:    15 * time.Second,
		},
		Upstream: UpstreamConfig{
			BaseURL:     "https://api.groq.com/openai/v1",
			Model:       "openai/gpt-oss-120b",
			Temperature: 0.7,
			Timeout:     60 * time.Second,
			MaxRetries:  3,
			SourceTag:   "Grok API",
		},
		RateLimit: RateLimitConfig{
			Enabled: true,
			Limit:   5,
			Window:  60 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads the YAML file at path (a missing file yields defaults), loads
// .env into the process environment and applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrapf(err, "parse %s", path)
		}
	case os.IsNotExist(err):
	default:
		return nil, errors.Wrapf(err, "read %s", path)
	}

	// .env is optional
	_ = godotenv.Load()

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	str("ADDR", &c.Server.Addr)
	if port := os.Getenv("PORT"); port != "" && os.Getenv("ADDR") == "" {
		c.Server.Addr = ":" + port
	}
	str("DB_DRIVER", &c.Database.Driver)
	str("DB_PATH", &c.Database.Path)
	str("GROK_API_KEY", &c.Upstream.APIKey)
	str("UPSTREAM_URL", &c.Upstream.BaseURL)
	str("UPSTREAM_MODEL", &c.Upstream.Model)
	str("EMBEDDING_URL", &c.Embedding.BaseURL)
	str("EMBEDDING_API_KEY", &c.Embedding.APIKey)
	str("EMBEDDING_MODEL", &c.Embedding.Model)
	str("REDIS_ADDR", &c.Redis.Addr)
	str("REDIS_PASSWORD", &c.Redis.Password)
	str("LOG_LEVEL", &c.Logging.Level)
	str("LOG_FORMAT", &c.Logging.Format)

	if v := os.Getenv("EMBEDDING_DIMENSIONS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrap(err, "EMBEDDING_DIMENSIONS")
		}
		c.Embedding.Dimensions = n
	}
	return nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Cache.SimilarityThreshold <= 0 || c.Cache.SimilarityThreshold > 1 {
		return errors.Errorf("cache.similarity_threshold must be in (0, 1], got %v", c.Cache.SimilarityThreshold)
	}
	if c.Cache.FrequencyThreshold < 1 {
		return errors.Errorf("cache.frequency_threshold must be at least 1, got %d", c.Cache.FrequencyThreshold)
	}
	if c.Embedding.Dimensions <= 0 {
		return errors.Errorf("embedding.dimensions must be positive, got %d", c.Embedding.Dimensions)
	}
	switch strings.ToLower(c.Database.Driver) {
	case "sqlite", "bolt":
		if c.Database.Path == "" {
			return errors.New("database.path is required")
		}
	case "redis":
		if c.Redis.Addr == "" {
			return errors.New("database.driver redis needs redis.addr")
		}
	default:
		return errors.Errorf("unknown database.driver %q", c.Database.Driver)
	}
	if c.RateLimit.Enabled && (c.RateLimit.Limit <= 0 || c.RateLimit.Window < time.Second) {
		return errors.New("rate_limit needs a positive limit and a window of at least 1s")
	}
	if c.Upstream.MaxRetries < 0 {
		return errors.New("upstream.max_retries cannot be negative")
	}
	return nil
}

// RedisEnabled reports whether a redis server is configured.
func (c *Config) RedisEnabled() bool {
	return c.Redis.Addr != ""
}
