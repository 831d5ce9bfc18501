// Package logger provides the structured logger shared by the query engine,
// the job runner and the progress broadcaster.
//
// All methods take a message, an optional error and any number of field maps:
//
//	log := logger.NewLoggerClient(logger.Config{Level: logger.Debug})
//	log.Info("query compiled", nil, map[string]interface{}{"casts": 3})
//	log.Error("phase failed", err, map[string]interface{}{"phase": "main"})
//
// The *WithContext variants add trace_id and span_id when Config.EnableTracing
// is set and ctx carries a sampled OpenTelemetry span.
//
// Packages that log declare their own narrow Logger interface with this
// method set, so tests can substitute a gomock mock.
package logger
