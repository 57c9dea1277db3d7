// Package config loads the docfill server configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is read when no --config flag is given. A missing file means
// defaults.
const DefaultPath = "docfill.yaml"

// Config holds all docfill configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Documents DocumentsConfig `yaml:"documents"`
	Render    RenderConfig    `yaml:"render"`
	Cache     CacheConfig     `yaml:"cache"`
	Objects   ObjectsConfig   `yaml:"objects"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr           string   `yaml:"addr"`
	RequestTimeout string   `yaml:"request_timeout"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	// Webhook routes share a token bucket refilled at WebhookRate per second.
	WebhookRate  float64 `yaml:"webhook_rate"`
	WebhookBurst int     `yaml:"webhook_burst"`
}

// DocumentsConfig locates templates and their zone and variable sets.
type DocumentsConfig struct {
	Dir string `yaml:"dir"`
}

// RenderConfig configures headless Chrome.
type RenderConfig struct {
	ChromeBin     string `yaml:"chrome_bin"`
	ControlURL    string `yaml:"control_url"` // attach to a running browser
	MaxConcurrent int64  `yaml:"max_concurrent"`
	Timeout       string `yaml:"timeout"`
}

// CacheConfig configures the Redis render cache. An empty address disables
// caching.
type CacheConfig struct {
	RedisAddr string `yaml:"redis_addr"`
	TTL       string `yaml:"ttl"`
}

// Object store backends.
const (
	BackendDir    = "dir"
	BackendGridFS = "gridfs"
)

// ObjectsConfig configures where published artifacts go.
type ObjectsConfig struct {
	Backend  string `yaml:"backend"` // dir, gridfs
	Dir      string `yaml:"dir"`
	BaseURL  string `yaml:"base_url"`
	MongoURI string `yaml:"mongo_uri"`
	Database string `yaml:"database"`
	Bucket   string `yaml:"bucket"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:           ":8080",
			RequestTimeout: "60s",
			AllowedOrigins: []string{"*"},
			WebhookRate:    10,
			WebhookBurst:   20,
		},
		Documents: DocumentsConfig{
			Dir: "documents",
		},
		Render: RenderConfig{
			MaxConcurrent: 2,
			Timeout:       "30s",
		},
		Cache: CacheConfig{
			TTL: "1h",
		},
		Objects: ObjectsConfig{
			Backend:  BackendDir,
			Dir:      "artifacts",
			BaseURL:  "http://localhost:8080/artifacts",
			Database: "docfill",
			Bucket:   "artifacts",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from a YAML file over the defaults, then applies
// environment overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parsing %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides applies DOCFILL_* environment variables.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("DOCFILL_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("DOCFILL_DOCUMENTS_DIR"); v != "" {
		c.Documents.Dir = v
	}
	if v := os.Getenv("DOCFILL_CHROME_BIN"); v != "" {
		c.Render.ChromeBin = v
	}
	if v := os.Getenv("DOCFILL_REDIS_ADDR"); v != "" {
		c.Cache.RedisAddr = v
	}
	// A Mongo URI implies the GridFS backend.
	if v := os.Getenv("DOCFILL_MONGO_URI"); v != "" {
		c.Objects.MongoURI = v
		c.Objects.Backend = BackendGridFS
	}
	if v := os.Getenv("DOCFILL_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// RequestTimeout returns the per-request deadline.
func (c *Config) RequestTimeout() time.Duration {
	return duration(c.Server.RequestTimeout, 60*time.Second)
}

// RenderTimeout returns the per-render deadline.
func (c *Config) RenderTimeout() time.Duration {
	return duration(c.Render.Timeout, 30*time.Second)
}

// CacheTTL returns how long rendered PDFs stay cached.
func (c *Config) CacheTTL() time.Duration {
	return duration(c.Cache.TTL, time.Hour)
}

func duration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// Validate checks the loaded values.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("config: server.addr is required")
	}
	if c.Documents.Dir == "" {
		return fmt.Errorf("config: documents.dir is required")
	}
	for key, v := range map[string]string{
		"server.request_timeout": c.Server.RequestTimeout,
		"render.timeout":         c.Render.Timeout,
		"cache.ttl":              c.Cache.TTL,
	} {
		if d, err := time.ParseDuration(v); err != nil || d <= 0 {
			return fmt.Errorf("config: %s must be a positive duration, got %q", key, v)
		}
	}
	if c.Render.MaxConcurrent < 1 {
		return fmt.Errorf("config: render.max_concurrent must be at least 1, got %d", c.Render.MaxConcurrent)
	}
	if c.Server.WebhookRate <= 0 || c.Server.WebhookBurst < 1 {
		return fmt.Errorf("config: server.webhook_rate and server.webhook_burst must be positive")
	}

	switch c.Objects.Backend {
	case BackendDir:
		if c.Objects.Dir == "" {
			return fmt.Errorf("config: objects.dir is required for the %s backend", BackendDir)
		}
	case BackendGridFS:
		if c.Objects.MongoURI == "" {
			return fmt.Errorf("config: objects.mongo_uri is required for the %s backend", BackendGridFS)
		}
	default:
		return fmt.Errorf("config: invalid objects.backend %q (valid: %s, %s)", c.Objects.Backend, BackendDir, BackendGridFS)
	}

	return c.Logging.validate()
}
