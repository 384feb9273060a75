package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/Devmainman/kurosadmin/internal/resource"
	pkgconfig "github.com/Devmainman/kurosadmin/pkg/config"
)

// Credential store backends.
const (
	CredentialsFile   = "file"
	CredentialsRedis  = "redis"
	CredentialsMemory = "memory"
)

// Config holds all configuration for the console. Every variable is read
// with the KUROS_ prefix, e.g. KUROS_API_BASE_URL.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat   string `env:"LOG_FORMAT" envDefault:"json"`
	HTTPPort    int    `env:"HTTP_PORT" envDefault:"8090"`

	// Admin API
	APIBaseURL        string        `env:"API_BASE_URL" envDefault:"http://localhost:5000/api"`
	APITimeout        time.Duration `env:"API_TIMEOUT" envDefault:"15s"`
	APIRequestsPerSec float64       `env:"API_REQUESTS_PER_SECOND" envDefault:"20"`
	APIBurst          int           `env:"API_BURST" envDefault:"40"`

	// Resource cache
	CacheStaleAfter     time.Duration            `env:"CACHE_STALE_AFTER" envDefault:"5m"`
	CacheStaleAfterType map[string]time.Duration `env:"CACHE_STALE_AFTER_BY_TYPE" envSeparator:"," envKeyValSeparator:":"`
	CacheRetention      time.Duration            `env:"CACHE_RETENTION" envDefault:"5m"`
	CacheRetryDelay     time.Duration            `env:"CACHE_RETRY_DELAY" envDefault:"500ms"`

	// Session
	TwoFactorTTL     time.Duration `env:"SESSION_TWO_FACTOR_TTL" envDefault:"10m"`
	GuardHoldTimeout time.Duration `env:"GUARD_HOLD_TIMEOUT" envDefault:"3s"`

	// Credential store
	CredentialBackend string `env:"CREDENTIALS_BACKEND" envDefault:"file"`
	CredentialsFile   string `env:"CREDENTIALS_FILE"`
	CredentialsKey    string `env:"CREDENTIALS_REDIS_KEY" envDefault:"kurosadmin:token"`

	// Redis
	RedisHost     string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort     int    `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	// Kafka notice sink; disabled when no brokers are set.
	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`

	// Tracing
	OTelEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTelEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTelInsecure   bool    `env:"OTEL_INSECURE" envDefault:"true"`
	OTelSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`

	// Console rate limiting
	RateLimitRPS   int `env:"RATE_LIMIT_RPS" envDefault:"50"`
	RateLimitBurst int `env:"RATE_LIMIT_BURST" envDefault:"100"`

	// Console HTTP surface
	CORSAllowedOrigins  []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:5173"`
	MetricsAllowedCIDRs []string `env:"METRICS_ALLOWED_CIDRS" envSeparator:"," envDefault:"127.0.0.0/8,::1/128"`

	// Notification feed
	NoticeFeedSize int `env:"NOTICE_FEED_SIZE" envDefault:"100"`
}

// Load reads configuration from KUROS_-prefixed environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.LoadPrefixed(cfg, pkgconfig.Prefix); err != nil {
		return nil, fmt.Errorf("load console config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	u, err := url.Parse(c.APIBaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("API_BASE_URL must be an absolute http(s) URL, got %q", c.APIBaseURL)
	}
	if c.Environment != "development" && u.Scheme != "https" {
		return fmt.Errorf("API_BASE_URL must use https in %s environment", c.Environment)
	}

	switch c.CredentialBackend {
	case CredentialsFile, CredentialsRedis:
	case CredentialsMemory:
		if c.Environment != "development" {
			return fmt.Errorf("CREDENTIALS_BACKEND=memory loses the session on restart and is only allowed in development")
		}
	default:
		return fmt.Errorf("CREDENTIALS_BACKEND must be one of file, redis, memory, got %q", c.CredentialBackend)
	}

	if c.LogFormat != "json" && c.LogFormat != "text" {
		return fmt.Errorf("LOG_FORMAT must be json or text, got %q", c.LogFormat)
	}
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("HTTP_PORT out of range: %d", c.HTTPPort)
	}
	if c.CacheStaleAfter <= 0 || c.CacheRetention <= 0 {
		return fmt.Errorf("CACHE_STALE_AFTER and CACHE_RETENTION must be positive")
	}
	if c.TwoFactorTTL < 0 {
		return fmt.Errorf("SESSION_TWO_FACTOR_TTL must not be negative")
	}
	if c.OTelSampleRate < 0 || c.OTelSampleRate > 1 {
		return fmt.Errorf("OTEL_SAMPLE_RATE must be between 0 and 1, got %v", c.OTelSampleRate)
	}
	for name, d := range c.CacheStaleAfterType {
		if _, err := resource.ParseType(name); err != nil {
			return fmt.Errorf("CACHE_STALE_AFTER_BY_TYPE: %w", err)
		}
		if d <= 0 {
			return fmt.Errorf("CACHE_STALE_AFTER_BY_TYPE: %s must be positive", name)
		}
	}
	return nil
}

// StaleAfterByType returns the per-type staleness overrides.
func (c *Config) StaleAfterByType() map[resource.Type]time.Duration {
	out := make(map[resource.Type]time.Duration, len(c.CacheStaleAfterType))
	for name, d := range c.CacheStaleAfterType {
		if t, err := resource.ParseType(name); err == nil {
			out[t] = d
		}
	}
	return out
}

// KafkaEnabled reports whether notices are also published to Kafka.
func (c *Config) KafkaEnabled() bool {
	for _, b := range c.KafkaBrokers {
		if strings.TrimSpace(b) != "" {
			return true
		}
	}
	return false
}
