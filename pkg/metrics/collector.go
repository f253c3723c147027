// Package metrics exposes Prometheus metrics for provider calls, comparisons
// and tool invocations.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jdgilhuly/go_second_opinion/pkg/provider"
)

const namespace = "second_opinion"

// OutcomeOK labels a successful provider call.
const OutcomeOK = "ok"

// Collector implements dispatch.Observer and tools.Observer on its own
// Prometheus registry.
type Collector struct {
	registry *prometheus.Registry

	providerCalls    *prometheus.CounterVec
	providerLatency  *prometheus.HistogramVec
	comparisons      prometheus.Counter
	compareDuration  prometheus.Histogram
	compareProviders prometheus.Histogram
	toolCalls        *prometheus.CounterVec
	toolDuration     *prometheus.HistogramVec
	inFlightTools    prometheus.Gauge
}

// NewCollector creates a collector with a fresh registry that also carries
// the Go runtime and process collectors.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,
		providerCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_calls_total",
				Help:      "Total number of provider calls by outcome",
			},
			[]string{"provider", "outcome"},
		),
		providerLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "provider_call_duration_seconds",
				Help:      "Provider call latency in seconds",
				Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 20, 30, 60},
			},
			[]string{"provider"},
		),
		comparisons: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "comparisons_total",
				Help:      "Total number of comparisons",
			},
		),
		compareDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "comparison_duration_seconds",
				Help:      "Wall time of a comparison in seconds",
				Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
			},
		),
		compareProviders: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "comparison_providers",
				Help:      "Number of ready providers taking part in a comparison",
				Buckets:   []float64{0, 1, 2, 3, 4},
			},
		),
		toolCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tool_calls_total",
				Help:      "Total number of tool calls by status",
			},
			[]string{"tool", "status"},
		),
		toolDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "tool_duration_seconds",
				Help:      "Tool call duration in seconds",
				Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"tool"},
		),
		inFlightTools: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "tool_calls_in_flight",
				Help:      "Number of tool calls currently running",
			},
		),
	}
}

// ObserveCall records one provider call. An empty kind counts as success.
func (c *Collector) ObserveCall(name string, kind provider.Kind, elapsed time.Duration) {
	outcome := string(kind)
	if outcome == "" {
		outcome = OutcomeOK
	}
	c.providerCalls.WithLabelValues(name, outcome).Inc()
	if elapsed > 0 {
		c.providerLatency.WithLabelValues(name).Observe(elapsed.Seconds())
	}
}

// ObserveCompare records a finished comparison.
func (c *Collector) ObserveCompare(participants int, elapsed time.Duration) {
	c.comparisons.Inc()
	c.compareDuration.Observe(elapsed.Seconds())
	c.compareProviders.Observe(float64(participants))
}

// ToolStarted marks a tool call as in flight.
func (c *Collector) ToolStarted(string) {
	c.inFlightTools.Inc()
}

// ToolFinished records a completed tool call.
func (c *Collector) ToolFinished(tool string, isError bool, elapsed time.Duration) {
	c.inFlightTools.Dec()
	status := "ok"
	if isError {
		status = "error"
	}
	c.toolCalls.WithLabelValues(tool, status).Inc()
	c.toolDuration.WithLabelValues(tool).Observe(elapsed.Seconds())
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}
