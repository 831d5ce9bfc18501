package jobs

import (
	"context"
	"time"

	"github.com/Aleph-Alpha/annotation-engine/v1/kube"
	"github.com/Aleph-Alpha/annotation-engine/v1/metrics"
	"github.com/Aleph-Alpha/annotation-engine/v1/minio"
	"github.com/Aleph-Alpha/annotation-engine/v1/tracer"
)

// Logger is the logging surface of the runner.
type Logger interface {
	Debug(msg string, err error, fields ...map[string]interface{})
	Info(msg string, err error, fields ...map[string]interface{})
	Warn(msg string, err error, fields ...map[string]interface{})
	Error(msg string, err error, fields ...map[string]interface{})
}

// Runner executes algorithm runs and packaging runs. Each run is
// independent; the Runner itself holds only shared clients.
type Runner struct {
	cfg       Config
	kube      kube.Client
	namespace string
	store     Store
	objects   minio.Client
	reporters ReporterFactory
	logger    Logger
	tracer    *tracer.Tracer
	metrics   metrics.JobRecorder
	now       func() time.Time
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithTracer wraps every phase in a span.
func WithTracer(t *tracer.Tracer) RunnerOption {
	return func(r *Runner) { r.tracer = t }
}

// WithMetrics reports run outcomes and phase durations.
func WithMetrics(m metrics.JobRecorder) RunnerOption {
	return func(r *Runner) { r.metrics = m }
}

func WithNamespace(ns string) RunnerOption {
	return func(r *Runner) { r.namespace = ns }
}

// WithClock replaces the clock used for result timestamps.
func WithClock(now func() time.Time) RunnerOption {
	return func(r *Runner) { r.now = now }
}

func NewRunner(cfg Config, kc kube.Client, store Store, objects minio.Client, reporters ReporterFactory, logger Logger, opts ...RunnerOption) *Runner {
	r := &Runner{
		cfg:       cfg.withDefaults(),
		kube:      kc,
		namespace: kube.DefaultNamespace,
		store:     store,
		objects:   objects,
		reporters: reporters,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// traced continues the trace a command was published under, if any.
func (r *Runner) traced(ctx context.Context, carrier map[string]string) context.Context {
	if r.tracer == nil || len(carrier) == 0 {
		return ctx
	}
	return r.tracer.SetCarrierOnContext(ctx, carrier)
}

func (r *Runner) observeRun(kind, result string) {
	if r.metrics != nil {
		r.metrics.ObserveJobRun(kind, result)
	}
}

func (r *Runner) observePhase(phase string, start time.Time) {
	if r.metrics != nil {
		r.metrics.ObservePhase(phase, time.Since(start))
	}
}
