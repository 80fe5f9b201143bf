// Package metrics exposes the gateway's observability surface: Prometheus
// counters for cooldown trips, account rotations and retry attempts, backed
// by an OTel meter provider mirroring the same instruments.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// Collector holds every Prometheus instrument the dispatch engine emits.
type Collector struct {
	cooldownTrips     *prometheus.CounterVec
	accountRotations  *prometheus.CounterVec
	retryAttempts     *prometheus.CounterVec
	retryOutcomes     *prometheus.CounterVec
	upstreamDuration  *prometheus.HistogramVec
	completionTokens  *prometheus.CounterVec
	otelCooldownTrips metric.Int64Counter
	logger            *zap.Logger
}

// New builds a Collector registering instruments under namespace "llmux"
// with reg (nil falls back to the process-default registerer).
// meterProvider may be nil, in which case OTel mirroring is skipped.
func New(logger *zap.Logger, meterProvider metric.MeterProvider, reg prometheus.Registerer) *Collector {
	const ns = "llmux"
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
		cooldownTrips: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "cooldown_trips_total",
			Help:      "Number of times a provider:model key entered cooldown",
		}, []string{"provider", "model"}),
		accountRotations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "account_rotations_total",
			Help:      "Number of times an account index was rotated for a provider",
		}, []string{"provider"}),
		retryAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "retry_attempts_total",
			Help:      "Number of retry-loop iterations per provider/model",
		}, []string{"provider", "model"}),
		retryOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "retry_outcomes_total",
			Help:      "Terminal outcome of a retry loop",
		}, []string{"outcome"}),
		upstreamDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "upstream_request_duration_seconds",
			Help:      "Upstream request duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"provider", "model", "status"}),
		completionTokens: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "completion_tokens_total",
			Help:      "Completion tokens observed or estimated per provider/model",
		}, []string{"provider", "model", "source"}),
	}

	if meterProvider != nil {
		meter := meterProvider.Meter(ns)
		if ctr, err := meter.Int64Counter("llmux_cooldown_trips_total"); err == nil {
			c.otelCooldownTrips = ctr
		} else {
			c.logger.Warn("failed to register otel cooldown counter", zap.Error(err))
		}
	}

	return c
}

// RecordCooldownTrip records that provider:model entered cooldown.
func (c *Collector) RecordCooldownTrip(ctx context.Context, provider, model string) {
	c.cooldownTrips.WithLabelValues(provider, model).Inc()
	if c.otelCooldownTrips != nil {
		c.otelCooldownTrips.Add(ctx, 1, metric.WithAttributes())
	}
}

// RecordAccountRotation records a rotation event for provider.
func (c *Collector) RecordAccountRotation(provider string) {
	c.accountRotations.WithLabelValues(provider).Inc()
}

// RecordRetryAttempt records a single retry-loop iteration.
func (c *Collector) RecordRetryAttempt(provider, model string) {
	c.retryAttempts.WithLabelValues(provider, model).Inc()
}

// RecordRetryOutcome records the retry loop's terminal outcome
// ("success", "all-cooldown", "throw", "surrender").
func (c *Collector) RecordRetryOutcome(outcome string) {
	c.retryOutcomes.WithLabelValues(outcome).Inc()
}

// RecordUpstreamRequest records one upstream HTTP round trip.
func (c *Collector) RecordUpstreamRequest(provider, model, status string, d time.Duration) {
	c.upstreamDuration.WithLabelValues(provider, model, status).Observe(d.Seconds())
}

// RecordCompletionTokens records a completion's token count, labeling
// source as "reported" when the provider's own usage event supplied it or
// "estimated" when StreamTransform fell back to tiktoken.
func (c *Collector) RecordCompletionTokens(provider, model string, tokens int, estimated bool) {
	source := "reported"
	if estimated {
		source = "estimated"
	}
	c.completionTokens.WithLabelValues(provider, model, source).Add(float64(tokens))
}
