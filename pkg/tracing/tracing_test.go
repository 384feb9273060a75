package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestInitTracer_DisabledStillInstallsPropagator(t *testing.T) {
	shutdown, err := InitTracer(context.Background(), DefaultConfig("kurosadmin-console"))
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))

	fields := otel.GetTextMapPropagator().Fields()
	assert.Contains(t, fields, "traceparent")
	assert.Contains(t, fields, "baggage")
}

func TestInitTracer_Enabled(t *testing.T) {
	cfg := DefaultConfig("kurosadmin-console")
	cfg.OTLPEndpoint = "127.0.0.1:0"
	cfg.Enabled = true

	shutdown, err := InitTracer(context.Background(), cfg)
	require.NoError(t, err)

	_, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider)
	assert.True(t, ok, "expected SDK tracer provider, got %T", otel.GetTracerProvider())

	// The collector is unreachable so shutdown may report a flush error.
	_ = shutdown(context.Background())
}

func TestSampler(t *testing.T) {
	tests := []struct {
		rate float64
		want string
	}{
		{1.0, "AlwaysOnSampler"},
		{2.0, "AlwaysOnSampler"},
		{0.0, "AlwaysOffSampler"},
		{-1, "AlwaysOffSampler"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, sampler(tt.rate).Description())
	}
	assert.Contains(t, sampler(0.5).Description(), "TraceIDRatioBased")
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("kurosadmin-console")
	assert.Equal(t, "kurosadmin-console", cfg.ServiceName)
	assert.False(t, cfg.Enabled)
	assert.True(t, cfg.Insecure)
	assert.Equal(t, 1.0, cfg.SampleRate)
	assert.Equal(t, "localhost:4318", cfg.OTLPEndpoint)
}
