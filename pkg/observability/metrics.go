// Package observability exposes Prometheus metrics and health endpoints for
// the generation service.
package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	generationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "logoforge_generations_total",
			Help: "Total number of generation runs",
		},
		[]string{"outcome"},
	)

	generationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "logoforge_generation_duration_seconds",
			Help:    "End-to-end generation run duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		},
	)

	stageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "logoforge_stage_duration_seconds",
			Help:    "Pipeline stage duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage"},
	)

	agentExecutionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "logoforge_agent_execution_duration_seconds",
			Help:    "Agent execution duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"agent"},
	)

	agentRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "logoforge_agent_retries_total",
			Help: "Total number of agent retry attempts",
		},
		[]string{"agent"},
	)

	streamMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "logoforge_stream_messages_total",
			Help: "Total number of stream protocol messages written",
		},
		[]string{"type"},
	)

	cacheLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "logoforge_cache_lookups_total",
			Help: "Total number of result cache lookups",
		},
		[]string{"result"},
	)

	activeGenerations = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "logoforge_active_generations",
			Help: "Number of generation runs currently in flight",
		},
	)

	initOnce sync.Once
)

// InitMetrics registers all metrics with the default registry. Safe to call
// more than once.
func InitMetrics() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			generationsTotal,
			generationDuration,
			stageDuration,
			agentExecutionDuration,
			agentRetriesTotal,
			streamMessagesTotal,
			cacheLookupsTotal,
			activeGenerations,
		)
	})
}

// MetricsHandler returns an HTTP handler for Prometheus scraping.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// RecordGeneration records one finished run.
func RecordGeneration(outcome string, duration time.Duration) {
	generationsTotal.WithLabelValues(outcome).Inc()
	generationDuration.Observe(duration.Seconds())
}

// RecordStageDuration records one settled stage.
func RecordStageDuration(stage string, duration time.Duration) {
	stageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// RecordAgentExecution records one agent execution attempt.
func RecordAgentExecution(agent string, duration time.Duration) {
	agentExecutionDuration.WithLabelValues(agent).Observe(duration.Seconds())
}

// RecordAgentRetry records one retry of a failed agent.
func RecordAgentRetry(agent string) {
	agentRetriesTotal.WithLabelValues(agent).Inc()
}

// RecordStreamMessage records one protocol message written to a stream.
func RecordStreamMessage(msgType string) {
	streamMessagesTotal.WithLabelValues(msgType).Inc()
}

// RecordCacheLookup records a result cache lookup ("hit" or "miss").
func RecordCacheLookup(result string) {
	cacheLookupsTotal.WithLabelValues(result).Inc()
}

// GenerationStarted increments the in-flight gauge and returns a done func.
func GenerationStarted() func() {
	activeGenerations.Inc()
	return activeGenerations.Dec
}
