package jobs

import (
	"context"

	"github.com/Aleph-Alpha/annotation-engine/v1/progress"
)

// Reporter is the progress surface of one run.
type Reporter interface {
	Queued(ctx context.Context, msg string) error
	Progress(ctx context.Context, msg string, pct int) error
	Failed(ctx context.Context, msg string) error
	Finished(ctx context.Context, msg string, aux map[string]interface{}) error
}

// ReporterFactory returns the reporter for one run.
type ReporterFactory func(h progress.Header) Reporter

// BroadcasterReporters adapts a progress.Broadcaster.
func BroadcasterReporters(b *progress.Broadcaster) ReporterFactory {
	return func(h progress.Header) Reporter { return b.Producer(h) }
}
