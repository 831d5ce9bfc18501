package progress

import (
	"time"

	"github.com/Aleph-Alpha/annotation-engine/v1/metrics"
)

// Broadcaster owns the shared Redis connection. Producers and consumers are
// cheap views over it.
type Broadcaster struct {
	store    Store
	logger   Logger
	recorder metrics.ProgressRecorder
	now      func() time.Time
}

type Option func(*Broadcaster)

// WithRecorder counts every broadcast event by state.
func WithRecorder(r metrics.ProgressRecorder) Option {
	return func(b *Broadcaster) { b.recorder = r }
}

// WithClock replaces the clock used for the sw_latest timestamps.
func WithClock(now func() time.Time) Option {
	return func(b *Broadcaster) { b.now = now }
}

func NewBroadcaster(store Store, logger Logger, opts ...Option) *Broadcaster {
	b := &Broadcaster{store: store, logger: logger, now: nowUTC}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Header identifies one unit of work inside a group.
type Header struct {
	Prefix    string
	ProjectID int64
	GID       string
	UID       string
	Name      string
	User      string
	// Aux is merged into every message this producer sends.
	Aux map[string]interface{}
}

// Producer returns a producer for the unit of work h describes.
func (b *Broadcaster) Producer(h Header) *Producer {
	header := Message{
		"type":       "progress",
		"project_id": h.ProjectID,
		"uid":        h.UID,
		"uid_gid":    h.GID,
		"prefix":     h.Prefix,
		"name":       h.Name,
		"user":       h.User,
	}
	for k, v := range h.Aux {
		header[k] = v
	}
	return &Producer{
		b:       b,
		gid:     h.GID,
		uid:     h.UID,
		channel: ProgChannel(h.Prefix, h.ProjectID),
		latest:  LatestKey(h.Prefix, h.ProjectID),
		header:  header,
		group: Message{
			"type":   "progress",
			"gid":    h.GID,
			"prefix": h.Prefix,
			"name":   h.Name,
		},
	}
}

// Consumer returns a consumer that delivers every message to sink.
func (b *Broadcaster) Consumer(sink Sink) *Consumer {
	return &Consumer{b: b, sink: sink}
}

func (b *Broadcaster) observe(state string) {
	if b.recorder != nil {
		b.recorder.ObserveProgress(state)
	}
}
