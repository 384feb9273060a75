package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Devmainman/kurosadmin/internal/resource"
)

func validConfig() *Config {
	return &Config{
		Environment:       "development",
		LogFormat:         "json",
		HTTPPort:          8090,
		APIBaseURL:        "http://localhost:5000/api",
		CacheStaleAfter:   5 * time.Minute,
		CacheRetention:    5 * time.Minute,
		TwoFactorTTL:      10 * time.Minute,
		CredentialBackend: CredentialsFile,
		OTelSampleRate:    1,
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:5000/api", cfg.APIBaseURL)
	assert.Equal(t, 5*time.Minute, cfg.CacheStaleAfter)
	assert.Equal(t, 10*time.Minute, cfg.TwoFactorTTL)
	assert.Equal(t, CredentialsFile, cfg.CredentialBackend)
	assert.Equal(t, "kurosadmin:token", cfg.CredentialsKey)
	assert.False(t, cfg.KafkaEnabled())
}

func TestLoad_FromPrefixedEnvVars(t *testing.T) {
	t.Setenv("KUROS_API_BASE_URL", "https://api.kuros.dev/api")
	t.Setenv("KUROS_ENVIRONMENT", "production")
	t.Setenv("KUROS_CREDENTIALS_BACKEND", "redis")
	t.Setenv("KUROS_KAFKA_BROKERS", "kafka-1:9092,kafka-2:9092")
	t.Setenv("KUROS_CACHE_STALE_AFTER_BY_TYPE", "analytics:30s,contacts:1m")
	t.Setenv("KUROS_SESSION_TWO_FACTOR_TTL", "5m")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://api.kuros.dev/api", cfg.APIBaseURL)
	assert.Equal(t, CredentialsRedis, cfg.CredentialBackend)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers)
	assert.True(t, cfg.KafkaEnabled())
	assert.Equal(t, 5*time.Minute, cfg.TwoFactorTTL)
	assert.Equal(t, map[resource.Type]time.Duration{
		resource.Analytics: 30 * time.Second,
		resource.Contacts:  time.Minute,
	}, cfg.StaleAfterByType())
}

func TestLoad_UnprefixedVariablesAreIgnored(t *testing.T) {
	t.Setenv("API_BASE_URL", "not a url")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:5000/api", cfg.APIBaseURL)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "relative api url", mutate: func(c *Config) { c.APIBaseURL = "/api" }, wantErr: "API_BASE_URL"},
		{name: "plain http outside development", mutate: func(c *Config) { c.Environment = "production" }, wantErr: "https"},
		{name: "unknown backend", mutate: func(c *Config) { c.CredentialBackend = "cookie" }, wantErr: "CREDENTIALS_BACKEND"},
		{name: "memory backend in production", mutate: func(c *Config) {
			c.Environment = "production"
			c.APIBaseURL = "https://api.kuros.dev"
			c.CredentialBackend = CredentialsMemory
		}, wantErr: "only allowed in development"},
		{name: "memory backend in development", mutate: func(c *Config) { c.CredentialBackend = CredentialsMemory }},
		{name: "bad log format", mutate: func(c *Config) { c.LogFormat = "xml" }, wantErr: "LOG_FORMAT"},
		{name: "port out of range", mutate: func(c *Config) { c.HTTPPort = 70000 }, wantErr: "HTTP_PORT"},
		{name: "negative ttl", mutate: func(c *Config) { c.TwoFactorTTL = -time.Second }, wantErr: "SESSION_TWO_FACTOR_TTL"},
		{name: "sample rate", mutate: func(c *Config) { c.OTelSampleRate = 2 }, wantErr: "OTEL_SAMPLE_RATE"},
		{name: "unknown type override", mutate: func(c *Config) {
			c.CacheStaleAfterType = map[string]time.Duration{"widgets": time.Minute}
		}, wantErr: "unknown resource type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
