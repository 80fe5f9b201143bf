package metrics

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"
)

func TestCollector(t *testing.T) {
	c := New(zap.NewNop(), noop.NewMeterProvider(), prometheus.NewRegistry())

	t.Run("RecordCompletionTokens reported source", func(t *testing.T) {
		c.RecordCompletionTokens("anthropic", "claude-opus-4", 42, false)
		got := testutil.ToFloat64(c.completionTokens.WithLabelValues("anthropic", "claude-opus-4", "reported"))
		assert.Equal(t, float64(42), got)
	})

	t.Run("RecordCompletionTokens estimated source", func(t *testing.T) {
		c.RecordCompletionTokens("openai", "gpt-4o", 10, true)
		got := testutil.ToFloat64(c.completionTokens.WithLabelValues("openai", "gpt-4o", "estimated"))
		assert.Equal(t, float64(10), got)
	})

	t.Run("RecordCooldownTrip increments counter", func(t *testing.T) {
		c.RecordCooldownTrip(context.Background(), "gemini", "gemini-2.5-pro")
		got := testutil.ToFloat64(c.cooldownTrips.WithLabelValues("gemini", "gemini-2.5-pro"))
		assert.Equal(t, float64(1), got)
	})
}
