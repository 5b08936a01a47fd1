package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	defaultNATSURL        = "nats://localhost:4222"
	defaultRedisURL       = "redis://localhost:6379"
	defaultHTTPAddr       = ":8081"
	defaultMetricsAddr    = ":9092"
	defaultJavaBaseURL    = "http://localhost:8080"
	defaultCatalogTTL     = 5 * time.Minute
	defaultPreviewTimeout = 30 * time.Second
	defaultSessionIdle    = 2 * time.Hour

	envNATSURL        = "NATS_URL"
	envRedisURL       = "REDIS_URL"
	envHTTPAddr       = "STAGEFLOW_HTTP_ADDR"
	envMetricsAddr    = "STAGEFLOW_METRICS_ADDR"
	envJavaBaseURL    = "JAVA_BASE_URL"
	envCatalogPath    = "STAGEFLOW_CATALOG_PATH"
	envCatalogTTL     = "STAGEFLOW_CATALOG_TTL"
	envPreviewTimeout = "STAGEFLOW_PREVIEW_TIMEOUT"
	envSessionIdle    = "STAGEFLOW_SESSION_IDLE"
	envAPIKey         = "STAGEFLOW_API_KEY"
	envEventsEnabled  = "STAGEFLOW_EVENTS"
)

const (
	keyNATSURL        = "nats_url"
	keyRedisURL       = "redis_url"
	keyHTTPAddr       = "http_addr"
	keyMetricsAddr    = "metrics_addr"
	keyJavaBaseURL    = "java_base_url"
	keyCatalogPath    = "catalog_path"
	keyCatalogTTL     = "catalog_ttl"
	keyPreviewTimeout = "preview_timeout"
	keySessionIdle    = "session_idle"
	keyAPIKey         = "api_key"
	keyEventsEnabled  = "events_enabled"
)

// Config holds runtime configuration for the gateway and CLI.
type Config struct {
	NatsURL        string
	RedisURL       string
	HTTPAddr       string
	MetricsAddr    string
	JavaBaseURL    string
	CatalogPath    string
	CatalogTTL     time.Duration
	PreviewTimeout time.Duration
	SessionIdle    time.Duration
	APIKey         string
	EventsEnabled  bool
}

// Load returns configuration using environment variables with sane defaults.
func Load() *Config {
	return fromViper(newViper())
}

// LoadFile reads a YAML config file and applies environment overrides on top.
// A missing file is not an error; defaults and env still apply.
func LoadFile(path string) (*Config, error) {
	v := newViper()
	if strings.TrimSpace(path) == "" {
		return fromViper(v), nil
	}
	// #nosec G304 -- config path is operator-provided.
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fromViper(v), nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := validateConfigSchema("stageflow", stageflowSchemaFile, data); err != nil {
		return nil, err
	}
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	return fromViper(v), nil
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetDefault(keyNATSURL, defaultNATSURL)
	v.SetDefault(keyRedisURL, defaultRedisURL)
	v.SetDefault(keyHTTPAddr, defaultHTTPAddr)
	v.SetDefault(keyMetricsAddr, defaultMetricsAddr)
	v.SetDefault(keyJavaBaseURL, defaultJavaBaseURL)
	v.SetDefault(keyCatalogPath, "")
	v.SetDefault(keyCatalogTTL, defaultCatalogTTL)
	v.SetDefault(keyPreviewTimeout, defaultPreviewTimeout)
	v.SetDefault(keySessionIdle, defaultSessionIdle)
	v.SetDefault(keyAPIKey, "")
	v.SetDefault(keyEventsEnabled, true)

	_ = v.BindEnv(keyNATSURL, envNATSURL)
	_ = v.BindEnv(keyRedisURL, envRedisURL)
	_ = v.BindEnv(keyHTTPAddr, envHTTPAddr)
	_ = v.BindEnv(keyMetricsAddr, envMetricsAddr)
	_ = v.BindEnv(keyJavaBaseURL, envJavaBaseURL)
	_ = v.BindEnv(keyCatalogPath, envCatalogPath)
	_ = v.BindEnv(keyCatalogTTL, envCatalogTTL)
	_ = v.BindEnv(keyPreviewTimeout, envPreviewTimeout)
	_ = v.BindEnv(keySessionIdle, envSessionIdle)
	_ = v.BindEnv(keyAPIKey, envAPIKey)
	_ = v.BindEnv(keyEventsEnabled, envEventsEnabled)
	return v
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		NatsURL:        strings.TrimSpace(v.GetString(keyNATSURL)),
		RedisURL:       strings.TrimSpace(v.GetString(keyRedisURL)),
		HTTPAddr:       strings.TrimSpace(v.GetString(keyHTTPAddr)),
		MetricsAddr:    strings.TrimSpace(v.GetString(keyMetricsAddr)),
		JavaBaseURL:    strings.TrimRight(strings.TrimSpace(v.GetString(keyJavaBaseURL)), "/"),
		CatalogPath:    strings.TrimSpace(v.GetString(keyCatalogPath)),
		CatalogTTL:     positiveDuration(v.GetDuration(keyCatalogTTL), defaultCatalogTTL),
		PreviewTimeout: positiveDuration(v.GetDuration(keyPreviewTimeout), defaultPreviewTimeout),
		SessionIdle:    positiveDuration(v.GetDuration(keySessionIdle), defaultSessionIdle),
		APIKey:         normalizeSecret(v.GetString(keyAPIKey)),
		EventsEnabled:  v.GetBool(keyEventsEnabled),
	}
}

func positiveDuration(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}

// Common .env mistake: quoting values (e.g. "super-secret-key").
func normalizeSecret(raw string) string {
	raw = strings.TrimSpace(raw)
	raw = strings.Trim(raw, "\"'")
	return strings.TrimSpace(raw)
}
