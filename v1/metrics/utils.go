package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Query outcome labels.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// ObserveQuery counts one query of kind and records its latency since start.
func (m *Metrics) ObserveQuery(kind string, start time.Time, err error) {
	status := StatusSuccess
	if err != nil {
		status = StatusError
	}
	m.queriesTotal.WithLabelValues(kind, status).Inc()
	m.queryDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
}

// ObserveJobRun counts a finished run of kind ("algorithm", "packager").
func (m *Metrics) ObserveJobRun(kind, result string) {
	m.jobRunsTotal.WithLabelValues(kind, result).Inc()
}

// ObservePhase records how long an algorithm phase ran.
func (m *Metrics) ObservePhase(phase string, d time.Duration) {
	m.jobPhaseDuration.WithLabelValues(phase).Observe(d.Seconds())
}

// ObserveProgress counts one broadcast progress message.
func (m *Metrics) ObserveProgress(state string) {
	m.progressEvents.WithLabelValues(state).Inc()
}

// CreateCounter registers an additional CounterVec.
func (m *Metrics) CreateCounter(name, help string, labels []string) *prometheus.CounterVec {
	counter := createCounterVec("", name, help, labels)
	m.Registry.MustRegister(counter)
	return counter
}

func createCounterVec(namespace, name, help string, labels []string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		},
		labels,
	)
}

func createHistogramVec(namespace, name, help string, labels []string, buckets []float64) *prometheus.HistogramVec {
	return prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
			Buckets:   buckets,
		},
		labels,
	)
}
