package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		envNATSURL, envRedisURL, envHTTPAddr, envMetricsAddr, envJavaBaseURL,
		envCatalogPath, envCatalogTTL, envPreviewTimeout, envSessionIdle, envAPIKey, envEventsEnabled,
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg := Load()
	if cfg.NatsURL != defaultNATSURL {
		t.Fatalf("expected default nats url")
	}
	if cfg.RedisURL != defaultRedisURL {
		t.Fatalf("expected default redis url")
	}
	if cfg.HTTPAddr != defaultHTTPAddr || cfg.MetricsAddr != defaultMetricsAddr {
		t.Fatalf("expected default listen addrs, got %s %s", cfg.HTTPAddr, cfg.MetricsAddr)
	}
	if cfg.JavaBaseURL != defaultJavaBaseURL {
		t.Fatalf("expected default java base url")
	}
	if cfg.CatalogTTL != defaultCatalogTTL {
		t.Fatalf("expected default catalog ttl, got %s", cfg.CatalogTTL)
	}
	if cfg.PreviewTimeout != defaultPreviewTimeout || cfg.SessionIdle != defaultSessionIdle {
		t.Fatalf("expected default timeouts")
	}
	if cfg.APIKey != "" || cfg.CatalogPath != "" {
		t.Fatalf("expected empty optional values")
	}
	if !cfg.EventsEnabled {
		t.Fatalf("expected events enabled by default")
	}
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv(envNATSURL, "nats://example:4222")
	t.Setenv(envRedisURL, "redis://example:6379")
	t.Setenv(envHTTPAddr, ":9000")
	t.Setenv(envJavaBaseURL, "http://java:8080/")
	t.Setenv(envCatalogPath, "custom/catalog.yaml")
	t.Setenv(envCatalogTTL, "30s")
	t.Setenv(envAPIKey, "\"secret\"")
	t.Setenv(envEventsEnabled, "false")

	cfg := Load()
	if cfg.NatsURL != "nats://example:4222" {
		t.Fatalf("unexpected nats url")
	}
	if cfg.RedisURL != "redis://example:6379" {
		t.Fatalf("unexpected redis url")
	}
	if cfg.HTTPAddr != ":9000" {
		t.Fatalf("unexpected http addr")
	}
	if cfg.JavaBaseURL != "http://java:8080" {
		t.Fatalf("expected trailing slash trimmed, got %s", cfg.JavaBaseURL)
	}
	if cfg.CatalogPath != "custom/catalog.yaml" {
		t.Fatalf("unexpected catalog path")
	}
	if cfg.CatalogTTL != 30*time.Second {
		t.Fatalf("unexpected catalog ttl: %s", cfg.CatalogTTL)
	}
	if cfg.APIKey != "secret" {
		t.Fatalf("expected quotes stripped, got %q", cfg.APIKey)
	}
	if cfg.EventsEnabled {
		t.Fatalf("expected events disabled")
	}
}

func TestLoadFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "stageflow.yaml")
	data := []byte("redis_url: redis://file:6379\njava_base_url: http://file-java\npreview_timeout: 5s\n")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv(envRedisURL, "redis://env:6379")

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load file: %v", err)
	}
	if cfg.RedisURL != "redis://env:6379" {
		t.Fatalf("expected env to override file, got %s", cfg.RedisURL)
	}
	if cfg.JavaBaseURL != "http://file-java" {
		t.Fatalf("expected file value, got %s", cfg.JavaBaseURL)
	}
	if cfg.PreviewTimeout != 5*time.Second {
		t.Fatalf("unexpected preview timeout: %s", cfg.PreviewTimeout)
	}
}

func TestLoadFileMissing(t *testing.T) {
	clearEnv(t)
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("expected missing file to fall back to defaults: %v", err)
	}
	if cfg.RedisURL != defaultRedisURL {
		t.Fatalf("expected default redis url")
	}
}

func TestLoadFileRejectsUnknownKeys(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "stageflow.yaml")
	if err := os.WriteFile(path, []byte("redis_uri: typo\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadFile(path); err == nil {
		t.Fatalf("expected schema validation error")
	}
}
