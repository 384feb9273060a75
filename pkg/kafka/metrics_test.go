package kafka

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProducerMetrics_Registered(t *testing.T) {
	ProducerMessagesPublished.WithLabelValues("test-topic")
	ProducerPublishErrors.WithLabelValues("test-topic")
	ProducerPublishDuration.WithLabelValues("test-topic")

	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	names := make(map[string]bool, len(families))
	for _, fam := range families {
		names[fam.GetName()] = true
	}

	for _, name := range []string{
		"kurosadmin_kafka_messages_published_total",
		"kurosadmin_kafka_publish_errors_total",
		"kurosadmin_kafka_publish_duration_seconds",
	} {
		assert.True(t, names[name], "expected metric %q to be registered", name)
	}
}
