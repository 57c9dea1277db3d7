package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap/zapcore"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "docfill.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if diff := cmp.Diff(Default(), cfg); diff != "" {
		t.Errorf("config (-want +got):\n%s", diff)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoadYAML(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: ":9000"
  request_timeout: 15s
render:
  max_concurrent: 4
cache:
  redis_addr: localhost:6379
logging:
  level: debug
  development: true
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":9000" || cfg.RequestTimeout() != 15*time.Second {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Render.MaxConcurrent != 4 || cfg.RenderTimeout() != 30*time.Second {
		t.Errorf("render = %+v", cfg.Render)
	}
	if cfg.Cache.RedisAddr != "localhost:6379" {
		t.Errorf("cache = %+v", cfg.Cache)
	}
	// Unset keys keep their defaults.
	if cfg.Documents.Dir != "documents" || cfg.Objects.Backend != BackendDir {
		t.Errorf("defaults lost: %+v %+v", cfg.Documents, cfg.Objects)
	}
	if !cfg.Logging.Development || cfg.Logging.Level != "debug" {
		t.Errorf("logging = %+v", cfg.Logging)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	if _, err := Load(writeConfig(t, "server: [")); err == nil {
		t.Fatal("expected a parse error")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("DOCFILL_ADDR", ":7000")
	t.Setenv("DOCFILL_DOCUMENTS_DIR", "/srv/docs")
	t.Setenv("DOCFILL_CHROME_BIN", "/usr/bin/chromium")
	t.Setenv("DOCFILL_REDIS_ADDR", "redis:6379")
	t.Setenv("DOCFILL_MONGO_URI", "mongodb://mongo:27017")
	t.Setenv("DOCFILL_LOG_LEVEL", "warn")

	cfg, err := Load(writeConfig(t, "server:\n  addr: \":9000\"\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	got := []string{cfg.Server.Addr, cfg.Documents.Dir, cfg.Render.ChromeBin, cfg.Cache.RedisAddr, cfg.Objects.MongoURI, cfg.Objects.Backend, cfg.Logging.Level}
	want := []string{":7000", "/srv/docs", "/usr/bin/chromium", "redis:6379", "mongodb://mongo:27017", BackendGridFS, "warn"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("overrides (-want +got):\n%s", diff)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errHas string
	}{
		{"empty addr", func(c *Config) { c.Server.Addr = "" }, "server.addr"},
		{"bad timeout", func(c *Config) { c.Render.Timeout = "soon" }, "render.timeout"},
		{"negative ttl", func(c *Config) { c.Cache.TTL = "-1m" }, "cache.ttl"},
		{"no concurrency", func(c *Config) { c.Render.MaxConcurrent = 0 }, "render.max_concurrent"},
		{"no rate", func(c *Config) { c.Server.WebhookRate = 0 }, "webhook_rate"},
		{"unknown backend", func(c *Config) { c.Objects.Backend = "s3" }, "objects.backend"},
		{"gridfs without uri", func(c *Config) { c.Objects.Backend = BackendGridFS }, "mongo_uri"},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.errHas) {
				t.Errorf("Validate() = %v, want error mentioning %q", err, tt.errHas)
			}
		})
	}
}

func TestLogger(t *testing.T) {
	logger, err := LoggingConfig{Level: "warn"}.Logger(true)
	if err != nil {
		t.Fatalf("Logger: %v", err)
	}
	if !logger.Core().Enabled(zapcore.DebugLevel) {
		t.Error("verbose logger should enable debug")
	}
}
