package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	goredis "github.com/redis/go-redis/v9"

	"github.com/Aleph-Alpha/annotation-engine/v1/models"
)

// Command channels.
const (
	ChannelAlgorithm = "algorithm"
	ChannelPackager  = "packager"
)

const (
	CommandStart = "start"
	CommandStop  = "stop"
)

var ErrUnknownRun = errors.New("unknown run")

// Executor runs the work a start command asks for. *Runner implements it.
type Executor interface {
	RunAlgorithm(ctx context.Context, stop Stopper, req AlgorithmRequest) *models.AlgorithmResult
	RunPackager(ctx context.Context, stop Stopper, req PackageRequest) *models.Package
}

var _ Executor = (*Runner)(nil)

// Membership joins and leaves pub/sub channels. *redis.PubSub implements it.
type Membership interface {
	Subscribe(ctx context.Context, channels ...string) error
	Unsubscribe(ctx context.Context, channels ...string) error
}

type envelope struct {
	Type   string `json:"type"`
	RunUID string `json:"run_uid"`
}

// Dispatcher turns commands into tasks. A started run joins its run_uid
// channel so that a stop published there reaches it.
type Dispatcher struct {
	exec    Executor
	members Membership
	logger  Logger

	mu      sync.Mutex
	tasks   map[string]*Task
	joined  map[string]bool
	closing bool
}

func NewDispatcher(exec Executor, members Membership, logger Logger) *Dispatcher {
	return &Dispatcher{
		exec:    exec,
		members: members,
		logger:  logger,
		tasks:   map[string]*Task{},
		joined:  map[string]bool{},
	}
}

// Run handles messages until ctx ends or msgs closes. Handler errors are
// logged and do not stop the loop.
func (d *Dispatcher) Run(ctx context.Context, msgs <-chan *goredis.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			if err := d.Handle(ctx, msg.Channel, msg.Payload); err != nil {
				d.logger.Warn("Failed to handle command", err, map[string]interface{}{"channel": msg.Channel})
			}
		}
	}
}

// Handle dispatches one command received on channel.
func (d *Dispatcher) Handle(ctx context.Context, channel, payload string) error {
	var env envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		return fmt.Errorf("malformed command: %w", err)
	}
	if env.RunUID == "" {
		return fmt.Errorf("command %q without run_uid", env.Type)
	}

	switch env.Type {
	case CommandStop:
		return d.Stop(ctx, env.RunUID)
	case CommandStart:
	default:
		return fmt.Errorf("unknown command %q", env.Type)
	}

	switch channel {
	case ChannelAlgorithm:
		var req AlgorithmRequest
		if err := json.Unmarshal([]byte(payload), &req); err != nil {
			return fmt.Errorf("malformed algorithm request: %w", err)
		}
		return d.start(ctx, req.RunUID, func(ctx context.Context, t *Task) {
			d.exec.RunAlgorithm(ctx, t, req)
		})
	case ChannelPackager:
		var req PackageRequest
		if err := json.Unmarshal([]byte(payload), &req); err != nil {
			return fmt.Errorf("malformed package request: %w", err)
		}
		return d.start(ctx, req.RunUID, func(ctx context.Context, t *Task) {
			d.exec.RunPackager(ctx, t, req)
		})
	}
	return fmt.Errorf("start command on %q ignored", channel)
}

func (d *Dispatcher) start(ctx context.Context, uid string, fn func(context.Context, *Task)) error {
	runCtx := context.WithoutCancel(ctx)

	// The lock is held across the join so that a run which finishes at once
	// cannot leave the channel before it was joined.
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closing {
		return fmt.Errorf("run %s rejected: shutting down", uid)
	}
	if _, running := d.tasks[uid]; running {
		return fmt.Errorf("run %s already started", uid)
	}
	joinErr := d.members.Subscribe(ctx, uid)
	d.joined[uid] = joinErr == nil
	d.tasks[uid] = Go(func(t *Task) {
		defer d.finished(runCtx, uid)
		defer func() {
			if p := recover(); p != nil {
				d.logger.Error("Run panicked", fmt.Errorf("%v", p), map[string]interface{}{"run_uid": uid})
			}
		}()
		fn(runCtx, t)
	})

	d.logger.Info("Started run", nil, map[string]interface{}{"run_uid": uid})
	if joinErr != nil {
		return fmt.Errorf("failed to join %s: %w", uid, joinErr)
	}
	return nil
}

// Stop raises the stop flag of a run and leaves its channel. The run
// finishes its cleanup in the background.
func (d *Dispatcher) Stop(ctx context.Context, uid string) error {
	d.mu.Lock()
	t, ok := d.tasks[uid]
	joined := d.joined[uid]
	delete(d.joined, uid)
	d.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownRun, uid)
	}

	d.logger.Info("Received abort signal", nil, map[string]interface{}{"run_uid": uid})
	t.Stop()
	if joined {
		return d.members.Unsubscribe(ctx, uid)
	}
	return nil
}

func (d *Dispatcher) finished(ctx context.Context, uid string) {
	d.mu.Lock()
	delete(d.tasks, uid)
	joined := d.joined[uid]
	delete(d.joined, uid)
	d.mu.Unlock()

	if joined {
		if err := d.members.Unsubscribe(ctx, uid); err != nil {
			d.logger.Warn("Failed to leave run channel", err, map[string]interface{}{"run_uid": uid})
		}
	}
}

// Active returns the uids of unfinished runs, sorted.
func (d *Dispatcher) Active() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	uids := make([]string, 0, len(d.tasks))
	for uid := range d.tasks {
		uids = append(uids, uid)
	}
	sort.Strings(uids)
	return uids
}

// Shutdown refuses new runs, stops every run and waits for their cleanup or
// ctx. The membership must stay open until it returns so runs can leave
// their channels.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	d.closing = true
	tasks := make([]*Task, 0, len(d.tasks))
	for _, t := range d.tasks {
		tasks = append(tasks, t)
	}
	d.mu.Unlock()

	for _, t := range tasks {
		t.Stop()
	}
	for _, t := range tasks {
		select {
		case <-t.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
