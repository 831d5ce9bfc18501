package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns the service's Prometheus registry, the HTTP server exposing
// it, and the engine's domain metrics.
type Metrics struct {
	// Server serves /metrics.
	Server *http.Server

	// Registry holds every collector of this service only.
	Registry *prometheus.Registry

	queriesTotal     *prometheus.CounterVec
	queryDuration    *prometheus.HistogramVec
	jobRunsTotal     *prometheus.CounterVec
	jobPhaseDuration *prometheus.HistogramVec
	progressEvents   *prometheus.CounterVec
}

// NewMetrics creates the registry, registers the domain metrics (and the
// default collectors when enabled) under a constant service label, and
// prepares the HTTP server. The server is started by the fx lifecycle.
func NewMetrics(cfg Config) *Metrics {
	if cfg.Address == "" {
		cfg.Address = DefaultMetricsAddress
	}

	registry := prometheus.NewRegistry()
	wrapped := prometheus.WrapRegistererWith(prometheus.Labels{"service": cfg.ServiceName}, registry)

	m := &Metrics{Registry: registry}
	m.queriesTotal = createCounterVec(cfg.Namespace, "annotation_queries_total",
		"Attribute queries executed, by entity kind and outcome", []string{"kind", "status"})
	m.queryDuration = createHistogramVec(cfg.Namespace, "annotation_query_duration_seconds",
		"Attribute query latency", []string{"kind"}, prometheus.DefBuckets)
	m.jobRunsTotal = createCounterVec(cfg.Namespace, "job_runs_total",
		"Finished job runs, by job kind and result", []string{"kind", "result"})
	m.jobPhaseDuration = createHistogramVec(cfg.Namespace, "job_phase_duration_seconds",
		"Wall time of each algorithm phase", []string{"phase"}, prometheus.ExponentialBuckets(1, 2, 14))
	m.progressEvents = createCounterVec(cfg.Namespace, "progress_events_total",
		"Progress messages broadcast, by state", []string{"state"})

	wrapped.MustRegister(m.queriesTotal, m.queryDuration, m.jobRunsTotal, m.jobPhaseDuration, m.progressEvents)

	if cfg.EnableDefaultCollectors {
		wrapped.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			collectors.NewBuildInfoCollector(),
		)
	}

	m.Server = &http.Server{
		Addr:    cfg.Address,
		Handler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	}
	return m
}
