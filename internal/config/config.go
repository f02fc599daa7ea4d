package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	AgentPort          string
	StoreBaseURL       string
	StoreOrigin        string
	CORSAllowedOrigins []string

	SyncTimeout             time.Duration
	SyncBreakerMinRequests  int
	SyncBreakerFailureRatio float64
	SyncBreakerOpenFor      time.Duration
	RefreshRateLimit        string

	RedisURL             string
	PushQueuePrefix      string
	PushQueueConcurrency int
	PushQueueVisibility  time.Duration
	PushMaxAttempts      int
	PushDedupTTL         time.Duration
	PushDrainTimeout     time.Duration
	PushRateLimit        string
	ReplayRateMax        int
	ReplayRateWindow     time.Duration
	MetricsBucketsMS     []float64
	HealthTimeout        time.Duration

	LogFormat        string
	LogLevel         string
	MetricsNamespace string
	TracingEnabled   bool
	OTLPEndpoint     string
	TracingSampling  float64
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8081"),
		AgentPort:          valueOrDefault(k.String("AGENT_PORT"), "8082"),
		StoreBaseURL:       strings.TrimRight(strings.TrimSpace(k.String("STORE_BASE_URL")), "/"),
		StoreOrigin:        strings.TrimRight(strings.TrimSpace(k.String("STORE_ORIGIN")), "/"),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),

		SyncTimeout:             parseDuration(k.String("SYNC_TIMEOUT"), "5s"),
		SyncBreakerMinRequests:  parseInt(k.String("SYNC_BREAKER_MIN_REQUESTS"), 5),
		SyncBreakerFailureRatio: parseFloat(k.String("SYNC_BREAKER_FAILURE_RATIO"), 0.5),
		SyncBreakerOpenFor:      parseDuration(k.String("SYNC_BREAKER_OPEN_FOR"), "30s"),
		RefreshRateLimit:        valueOrDefault(k.String("REFRESH_RATE_LIMIT"), "10-S"),

		RedisURL:             strings.TrimSpace(k.String("REDIS_URL")),
		PushQueuePrefix:      valueOrDefault(k.String("PUSH_QUEUE_PREFIX"), "push"),
		PushQueueConcurrency: parseInt(k.String("PUSH_QUEUE_CONCURRENCY"), 2),
		PushQueueVisibility:  parseDuration(k.String("PUSH_QUEUE_VISIBILITY"), "30s"),
		PushMaxAttempts:      parseInt(k.String("PUSH_MAX_ATTEMPTS"), 5),
		PushDedupTTL:         parseDuration(k.String("PUSH_DEDUP_TTL"), "10m"),
		PushDrainTimeout:     parseDuration(k.String("PUSH_DRAIN_TIMEOUT"), "10s"),
		PushRateLimit:        valueOrDefault(k.String("PUSH_RATE_LIMIT"), "120-M"),
		ReplayRateMax:        parseInt(k.String("DLQ_REPLAY_RATE_MAX"), 10),
		ReplayRateWindow:     parseDuration(k.String("DLQ_REPLAY_RATE_WINDOW"), "1m"),
		MetricsBucketsMS:     parseBuckets(k.String("OBS_METRICS_BUCKETS_MS")),
		HealthTimeout:        parseDuration(k.String("HEALTH_READY_TIMEOUT"), "500ms"),

		LogFormat:        valueOrDefault(k.String("OBS_LOG_FORMAT"), "json"),
		LogLevel:         valueOrDefault(k.String("OBS_LOG_LEVEL"), "info"),
		MetricsNamespace: valueOrDefault(k.String("OBS_METRICS_NAMESPACE"), "printstore"),
		TracingEnabled:   parseBool(k.String("OBS_ENABLE_TRACING")),
		OTLPEndpoint:     strings.TrimSpace(k.String("OBS_OTLP_ENDPOINT")),
		TracingSampling:  parseFloat(k.String("OBS_TRACING_SAMPLING_RATIO"), 1),
	}

	if cfg.StoreBaseURL == "" {
		return nil, errors.New("STORE_BASE_URL is required")
	}
	if err := validateOrigin(cfg.StoreBaseURL); err != nil {
		return nil, fmt.Errorf("STORE_BASE_URL: %w", err)
	}
	if cfg.StoreOrigin == "" {
		cfg.StoreOrigin = cfg.StoreBaseURL
	} else if err := validateOrigin(cfg.StoreOrigin); err != nil {
		return nil, fmt.Errorf("STORE_ORIGIN: %w", err)
	}

	return cfg, nil
}

// RequireRedis reports an error when the push channel cannot be configured.
func (c *Config) RequireRedis() error {
	if strings.TrimSpace(c.RedisURL) == "" {
		return errors.New("REDIS_URL is required")
	}
	return nil
}

// HTTPAddr returns the address the widget surface should bind to.
func (c *Config) HTTPAddr() string {
	return bindAddr(c.Port, "8081")
}

// AgentAddr returns the address the notification agent surface should bind to.
func (c *Config) AgentAddr() string {
	return bindAddr(c.AgentPort, "8082")
}

func bindAddr(port, fallback string) string {
	port = strings.TrimSpace(port)
	if port == "" {
		port = fallback
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

func validateOrigin(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return errors.New("must be an http or https url")
	}
	if parsed.Host == "" {
		return errors.New("must include host")
	}
	return nil
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseInt(value string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func parseFloat(value string, fallback float64) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil || f <= 0 {
		return fallback
	}
	return f
}

func parseBuckets(value string) []float64 {
	var out []float64
	for _, part := range splitAndTrim(value) {
		f, err := strconv.ParseFloat(part, 64)
		if err != nil || f <= 0 {
			return nil
		}
		out = append(out, f)
	}
	return out
}

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
