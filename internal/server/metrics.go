package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metricsRegistry struct {
	registry           *prometheus.Registry
	mintRequestsTotal  *prometheus.CounterVec
	statusQueriesTotal *prometheus.CounterVec
	cacheDegradedTotal *prometheus.CounterVec
}

func newMetricsRegistry() *metricsRegistry {
	mints := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mintgate_mint_requests_total",
		Help: "Total number of mint submissions",
	}, []string{"outcome"})

	statuses := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mintgate_status_queries_total",
		Help: "Total number of minting status queries",
	}, []string{"status"})

	degraded := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mintgate_hint_cache_degraded_total",
		Help: "Hint cache operations that failed and were degraded to no-ops",
	}, []string{"op"})

	r := prometheus.NewRegistry()
	r.MustRegister(mints, statuses, degraded)

	return &metricsRegistry{
		registry:           r,
		mintRequestsTotal:  mints,
		statusQueriesTotal: statuses,
		cacheDegradedTotal: degraded,
	}
}

func (m *metricsRegistry) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *metricsRegistry) incMint(outcome string) {
	m.mintRequestsTotal.WithLabelValues(outcome).Inc()
}

func (m *metricsRegistry) incStatus(status string) {
	m.statusQueriesTotal.WithLabelValues(status).Inc()
}

func (m *metricsRegistry) incCacheDegraded(op string) {
	m.cacheDegradedTotal.WithLabelValues(op).Inc()
}
