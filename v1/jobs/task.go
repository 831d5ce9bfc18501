package jobs

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Stopper is the cooperative cancellation flag a worker polls at safe
// points.
type Stopper interface {
	Stopped() bool
}

// Task runs one worker on its own goroutine. Stop only raises a flag; the
// worker decides when to honour it.
type Task struct {
	stopped  atomic.Bool
	done     chan struct{}
	stopOnce sync.Once
	err      error
}

// Go starts fn on a new goroutine. A panic in fn ends the task instead of
// the process and is reported by Err.
func Go(fn func(t *Task)) *Task {
	t := &Task{done: make(chan struct{})}
	go func() {
		defer close(t.done)
		defer func() {
			if p := recover(); p != nil {
				t.err = fmt.Errorf("task panicked: %v", p)
			}
		}()
		fn(t)
	}()
	return t
}

// Err is the panic that ended the worker, if any. It is only meaningful
// once Done is closed.
func (t *Task) Err() error {
	return t.err
}

func (t *Task) Stop() {
	t.stopOnce.Do(func() { t.stopped.Store(true) })
}

func (t *Task) Stopped() bool {
	return t.stopped.Load()
}

// Done is closed when the worker returns.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

func (t *Task) Wait() {
	<-t.done
}
