// Package metrics exposes the engine's Prometheus metrics.
//
// A dedicated registry carries a constant service label and the domain
// metrics: query counts and latency per entity kind, job run results,
// algorithm phase durations and broadcast progress events. Components depend
// on the narrow recorder interfaces (QueryRecorder, JobRecorder,
// ProgressRecorder) rather than on *Metrics.
//
//	m := metrics.NewMetrics(metrics.Config{ServiceName: "annotation-engine"})
//	start := time.Now()
//	ids, err := engine.AnnotationIDs(ctx, project, models.KindState, params)
//	m.ObserveQuery("state", start, err)
//
// Under fx, metrics.FXModule starts the /metrics server on OnStart and shuts
// it down on OnStop.
package metrics
