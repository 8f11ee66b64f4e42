package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service's Prometheus collectors on a private registry
type Metrics struct {
	registry        *prometheus.Registry
	scrapeAttempts  *prometheus.CounterVec
	scrapeDuration  *prometheus.HistogramVec
	compareRequests *prometheus.CounterVec
}

// New creates and registers all collectors
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	m := &Metrics{
		registry: registry,
		scrapeAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pricepulse",
			Name:      "scrape_attempts_total",
			Help:      "Per-site search attempts by outcome.",
		}, []string{"site", "outcome"}),
		scrapeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pricepulse",
			Name:      "scrape_duration_seconds",
			Help:      "Duration of a single per-site search attempt.",
			Buckets:   []float64{0.5, 1, 2, 3, 5, 10, 20, 30},
		}, []string{"site"}),
		compareRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pricepulse",
			Name:      "compare_requests_total",
			Help:      "Comparison requests by method and result.",
		}, []string{"method", "result"}),
	}

	registry.MustRegister(m.scrapeAttempts, m.scrapeDuration, m.compareRequests)
	return m
}

// ObserveAttempt records one search attempt against a site
func (m *Metrics) ObserveAttempt(site, outcome string, d time.Duration) {
	m.scrapeAttempts.WithLabelValues(site, outcome).Inc()
	m.scrapeDuration.WithLabelValues(site).Observe(d.Seconds())
}

// ObserveCompare records the result of a comparison request
func (m *Metrics) ObserveCompare(method, result string) {
	m.compareRequests.WithLabelValues(method, result).Inc()
}

// Handler exposes the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
