// Package observe holds the Prometheus collectors shared by the store, the
// upload path and the HTTP layer. A nil *Metrics is a valid no-op.
package observe

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "vibecheck"

// Metrics bundles every collector.
type Metrics struct {
	registry *prometheus.Registry

	sessionsActive  prometheus.Gauge
	sessionsCreated prometheus.Counter
	sessionsEvicted *prometheus.CounterVec
	parseFailures   prometheus.Counter
	reportDuration  prometheus.Histogram
	reportsComputed prometheus.Counter
	uploadBytes     prometheus.Histogram
	rateLimited     prometheus.Counter
	scorerFallbacks *prometheus.CounterVec
}

// New registers the collectors on reg. A nil reg gets a fresh registry with
// the Go and process collectors.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	m := &Metrics{
		registry: reg,
		sessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Sessions currently held in memory.",
		}),
		sessionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_created_total",
			Help:      "Sessions created from uploaded transcripts.",
		}),
		sessionsEvicted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_evicted_total",
			Help:      "Sessions removed, by reason.",
		}, []string{"reason"}),
		parseFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "parse_failures_total",
			Help:      "Uploads rejected because no message line was found.",
		}),
		reportDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "report_compute_seconds",
			Help:      "Time spent computing a full report.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}),
		reportsComputed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_computed_total",
			Help:      "Reports computed; cached reads are not counted.",
		}),
		uploadBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upload_bytes",
			Help:      "Size of accepted transcript uploads after decoding.",
			Buckets:   prometheus.ExponentialBuckets(1024, 4, 8),
		}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the upload rate limiter.",
		}),
		scorerFallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "vibe_scorer_fallbacks_total",
			Help:      "LLM sentiment calls answered by the lexicon instead, by reason.",
		}, []string{"reason"}),
	}

	reg.MustRegister(
		m.sessionsActive, m.sessionsCreated, m.sessionsEvicted, m.parseFailures,
		m.reportDuration, m.reportsComputed, m.uploadBytes, m.rateLimited, m.scorerFallbacks,
	)
	return m
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) SessionCreated(active int) {
	if m == nil {
		return
	}
	m.sessionsCreated.Inc()
	m.sessionsActive.Set(float64(active))
}

func (m *Metrics) SessionEvicted(reason string, active int) {
	if m == nil {
		return
	}
	m.sessionsEvicted.WithLabelValues(reason).Inc()
	m.sessionsActive.Set(float64(active))
}

func (m *Metrics) ParseFailed() {
	if m == nil {
		return
	}
	m.parseFailures.Inc()
}

func (m *Metrics) ReportComputed(d time.Duration) {
	if m == nil {
		return
	}
	m.reportsComputed.Inc()
	m.reportDuration.Observe(d.Seconds())
}

func (m *Metrics) UploadAccepted(bytes int) {
	if m == nil {
		return
	}
	m.uploadBytes.Observe(float64(bytes))
}

func (m *Metrics) RateLimited() {
	if m == nil {
		return
	}
	m.rateLimited.Inc()
}

func (m *Metrics) ScorerFallback(reason string) {
	if m == nil {
		return
	}
	m.scorerFallbacks.WithLabelValues(reason).Inc()
}
