package metrics

import "time"

// QueryRecorder is what the query engine reports to.
type QueryRecorder interface {
	ObserveQuery(kind string, start time.Time, err error)
}

// JobRecorder is what the job runner reports to.
type JobRecorder interface {
	ObserveJobRun(kind, result string)
	ObservePhase(phase string, d time.Duration)
}

// ProgressRecorder is what the progress producer reports to.
type ProgressRecorder interface {
	ObserveProgress(state string)
}

var (
	_ QueryRecorder    = (*Metrics)(nil)
	_ JobRecorder      = (*Metrics)(nil)
	_ ProgressRecorder = (*Metrics)(nil)
)
