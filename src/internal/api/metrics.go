package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wpsim/hairpin/src/internal/service"
)

var identityStatuses = []service.IdentityStatus{
	service.StatusProvisioned,
	service.StatusAlreadyConverged,
	service.StatusPending,
	service.StatusDegradedNoLease,
	service.StatusDegradedInterface,
	service.StatusDegradedConflict,
}

// Metrics holds the Prometheus collectors of the status server.
type Metrics struct {
	registry *prometheus.Registry

	identities *prometheus.GaugeVec
	mutations  prometheus.Counter
	runs       *prometheus.CounterVec
	lastRun    prometheus.Gauge
	requests   *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		identities: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "hairpin",
			Name:      "identities",
			Help:      "Number of identities per status, as of the last run or status check.",
		}, []string{"status"}),
		mutations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hairpin",
			Name:      "kernel_mutations_total",
			Help:      "Kernel mutations performed by reconcile runs.",
		}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hairpin",
			Name:      "runs_total",
			Help:      "Reconcile runs by outcome.",
		}, []string{"outcome"}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "hairpin",
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time of the last reconcile run.",
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hairpin",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"route", "code"}),
	}

	m.registry.MustRegister(m.identities, m.mutations, m.runs, m.lastRun, m.requests)
	return m
}

// ObserveIdentities sets the identity gauges from a report.
func (m *Metrics) ObserveIdentities(report *service.Report) {
	counts := report.Counts()
	for _, status := range identityStatuses {
		m.identities.WithLabelValues(string(status)).Set(float64(counts[status]))
	}
}

// ObserveRun records a finished reconcile run.
func (m *Metrics) ObserveRun(report *service.Report) {
	m.ObserveIdentities(report)
	m.mutations.Add(float64(report.Mutations))
	m.runs.WithLabelValues(string(report.Outcome)).Inc()
	m.lastRun.SetToCurrentTime()
}

// Handler serves the metrics in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
