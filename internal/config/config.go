package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/cart-totals/internal/pricing"
	"github.com/noah-isme/cart-totals/internal/promo"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	RedisURL           string
	CatalogKey         string
	ShippingCost       decimal.Decimal
	ExtraPromos        []promo.Params
	CORSAllowedOrigins []string

	LogFormat        string
	LogLevel         string
	MetricsNamespace string
	TracingEnabled   bool
	OTLPEndpoint     string
	TracingSampling  float64
	MetricsBuckets   string

	PromoRateLimit  int
	PromoRateWindow time.Duration
	StreamHeartbeat time.Duration

	BodyLimitBytes int64
	SecureHeaders  bool
	EnableHSTS     bool

	EventsQueueEnabled bool
	EventsQueuePrefix  string
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	shipping := pricing.DefaultShippingCost
	if raw := strings.TrimSpace(k.String("SHIPPING_COST")); raw != "" {
		v, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("SHIPPING_COST: %w", err)
		}
		if v.IsNegative() {
			return nil, fmt.Errorf("SHIPPING_COST must not be negative, got %s", v)
		}
		shipping = v
	}

	extra, err := promo.ParseEntries(k.String("PROMO_CODES"))
	if err != nil {
		return nil, fmt.Errorf("PROMO_CODES: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		RedisURL:           strings.TrimSpace(k.String("REDIS_URL")),
		CatalogKey:         valueOrDefault(k.String("CATALOG_KEY"), "catalog:seed"),
		ShippingCost:       shipping,
		ExtraPromos:        extra,
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		LogFormat:          valueOrDefault(k.String("OBS_LOG_FORMAT"), "json"),
		LogLevel:           valueOrDefault(k.String("OBS_LOG_LEVEL"), "info"),
		MetricsNamespace:   valueOrDefault(k.String("OBS_METRICS_NAMESPACE"), "cart"),
		TracingEnabled:     parseBool(k.String("OBS_ENABLE_TRACING")),
		OTLPEndpoint:       strings.TrimSpace(k.String("OBS_OTLP_ENDPOINT")),
		TracingSampling:    parseFloat(k.String("OBS_TRACING_SAMPLING_RATIO"), 1.0),
		PromoRateLimit:     parseInt(k.String("PROMO_RATE_LIMIT"), 10),
		PromoRateWindow:    parseDuration(k.String("PROMO_RATE_WINDOW"), "1m"),
		StreamHeartbeat:    parseDuration(k.String("STREAM_HEARTBEAT"), "15s"),
		MetricsBuckets:     strings.TrimSpace(k.String("OBS_METRICS_BUCKETS_MS")),
		BodyLimitBytes:     int64(parseInt(k.String("SECURE_BODY_LIMIT_BYTES"), 64<<10)),
		SecureHeaders:      parseBoolDefault(k.String("SECURE_HEADERS_ENABLED"), true),
		EnableHSTS:         parseBool(k.String("SECURE_HSTS_ENABLED")),
		EventsQueueEnabled: parseBoolDefault(k.String("EVENTS_QUEUE_ENABLED"), true),
		EventsQueuePrefix:  valueOrDefault(k.String("EVENTS_QUEUE_PREFIX"), "cart"),
	}
	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

// Promos returns the built-in promo codes followed by configured extras.
func (c *Config) Promos() []promo.Params {
	return append(promo.Defaults(), c.ExtraPromos...)
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
	if err != nil || d <= 0 {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func parseBoolDefault(value string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func parseInt(value string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func parseFloat(value string, fallback float64) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

// MustLoad behaves like Load but panics on error. Useful for tests and command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
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
