// Package metrics exposes Prometheus collectors for crawl cycles.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector records per-cycle telemetry. A nil *Collector is a valid no-op.
type Collector struct {
	registry *prometheus.Registry

	cycles        *prometheus.CounterVec
	cycleLatency  prometheus.Histogram
	lastSuccess   prometheus.Gauge
	cadence       prometheus.Gauge
	strategyHits  *prometheus.CounterVec
	rowsPersisted prometheus.Counter
	fallbacks     prometheus.Counter
}

// NewCollector creates a collector backed by its own registry.
func NewCollector(namespace string) *Collector {
	if namespace == "" {
		namespace = "netflow"
	}

	c := &Collector{registry: prometheus.NewRegistry()}

	c.cycles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "crawler",
			Name:      "cycles_total",
			Help:      "Completed fetch cycles by outcome and final phase",
		},
		[]string{"outcome", "phase"},
	)

	c.cycleLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "crawler",
			Name:      "cycle_duration_seconds",
			Help:      "Wall time of a fetch cycle",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 8), // 0.5s to ~64s
		},
	)

	c.lastSuccess = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "crawler",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last persisted row",
		},
	)

	c.cadence = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "crawler",
			Name:      "estimated_interval_minutes",
			Help:      "Estimated refresh cadence of the source page",
		},
	)

	c.strategyHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "locator",
			Name:      "strategy_hits_total",
			Help:      "Row lookups resolved per strategy",
		},
		[]string{"strategy"},
	)

	c.rowsPersisted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "rows_total",
			Help:      "Rows appended to the primary store",
		},
	)

	c.fallbacks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "record",
			Name:      "raw_fallbacks_total",
			Help:      "Values kept verbatim because normalization failed",
		},
	)

	c.registry.MustRegister(
		c.cycles,
		c.cycleLatency,
		c.lastSuccess,
		c.cadence,
		c.strategyHits,
		c.rowsPersisted,
		c.fallbacks,
	)

	return c
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// RecordCycle records a finished cycle.
func (c *Collector) RecordCycle(phase string, ok bool, duration time.Duration) {
	if c == nil {
		return
	}
	outcome := "failure"
	if ok {
		outcome = "success"
		c.lastSuccess.SetToCurrentTime()
		c.rowsPersisted.Inc()
	}
	c.cycles.WithLabelValues(outcome, phase).Inc()
	c.cycleLatency.Observe(duration.Seconds())
}

// RecordCadence sets the estimated refresh interval.
func (c *Collector) RecordCadence(minutes int) {
	if c == nil {
		return
	}
	c.cadence.Set(float64(minutes))
}

// RecordStrategyHit counts a successful lookup strategy.
func (c *Collector) RecordStrategyHit(strategy string) {
	if c == nil {
		return
	}
	c.strategyHits.WithLabelValues(strategy).Inc()
}

// RecordFallbacks counts raw-token fallbacks in a built record.
func (c *Collector) RecordFallbacks(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.fallbacks.Add(float64(n))
}
