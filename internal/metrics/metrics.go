// Package metrics exposes crawl counters for Prometheus scraping. The
// listener is optional; a crawl without one still records into its own
// registry so the counters can be logged at the end of the run.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector records crawl progress.
type Collector struct {
	registry *prometheus.Registry

	discovered *prometheus.CounterVec
	checks     *prometheus.CounterVec
	probes     *prometheus.CounterVec
	errors     *prometheus.CounterVec
}

// NewCollector builds a collector with its own registry.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		discovered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mugak_discovered_total",
			Help: "Content slugs discovered, by platform.",
		}, []string{"platform"}),
		checks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mugak_checks_total",
			Help: "Geo-restriction checks, by platform and verdict.",
		}, []string{"platform", "verdict"}),
		probes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mugak_probes_total",
			Help: "Network probes, by method.",
		}, []string{"method"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mugak_errors_total",
			Help: "Errors during the crawl, by kind.",
		}, []string{"kind"}),
	}
	c.registry.MustRegister(c.discovered, c.checks, c.probes, c.errors)
	return c
}

func (c *Collector) RecordDiscovered(platform string) {
	c.discovered.WithLabelValues(platform).Inc()
}

func (c *Collector) RecordCheck(platform, verdict string) {
	c.checks.WithLabelValues(platform, verdict).Inc()
}

func (c *Collector) RecordProbe(method string) {
	c.probes.WithLabelValues(method).Inc()
}

func (c *Collector) RecordError(kind string) {
	c.errors.WithLabelValues(kind).Inc()
}

// Handler returns the /metrics scrape handler for this collector's registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Serve starts a metrics listener on addr. Returns the server so the caller
// can shut it down; errors from the listener go to errFn.
func (c *Collector) Serve(addr string, errFn func(error)) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errFn(err)
		}
	}()
	return srv
}
