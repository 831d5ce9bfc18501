package jobs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTask(t *testing.T) {
	started := make(chan struct{})
	task := Go(func(w *Task) {
		close(started)
		for !w.Stopped() {
			time.Sleep(time.Millisecond)
		}
	})
	<-started

	assert.False(t, task.Stopped())
	select {
	case <-task.Done():
		t.Fatal("task returned before it was stopped")
	default:
	}

	task.Stop()
	task.Stop()
	task.Wait()
	assert.True(t, task.Stopped())
}

func TestTaskPanic(t *testing.T) {
	task := Go(func(*Task) { panic("boom") })
	task.Wait()

	require.Error(t, task.Err())
	assert.Contains(t, task.Err().Error(), "boom")

	clean := Go(func(*Task) {})
	clean.Wait()
	assert.NoError(t, clean.Err())
}
