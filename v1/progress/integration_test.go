package progress

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/Aleph-Alpha/annotation-engine/v1/logger"
	"github.com/Aleph-Alpha/annotation-engine/v1/redis"
)

func TestBroadcasterWithRedis(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	defer func() {
		if err := c.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	}()

	host, err := c.Host(ctx)
	require.NoError(t, err)
	port, err := c.MappedPort(ctx, "6379")
	require.NoError(t, err)

	client, err := redis.NewClient(redis.Config{Host: host, Port: port.Int()}, logger.NewNop())
	require.NoError(t, err)
	defer client.Close()
	require.NoError(t, client.Ping(ctx))

	b := NewBroadcaster(client, logger.NewNop())
	early := b.Producer(header("early"))
	require.NoError(t, early.Queued(ctx, "Queued..."))

	var (
		mu  sync.Mutex
		got []Message
	)
	joinCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() {
		done <- b.Consumer(func(m Message) error {
			mu.Lock()
			defer mu.Unlock()
			got = append(got, m)
			return nil
		}).Join(joinCtx, []int64{3})
	}()

	seen := func(pred func(Message) bool) func() bool {
		return func() bool {
			mu.Lock()
			defer mu.Unlock()
			for _, m := range got {
				if pred(m) {
					return true
				}
			}
			return false
		}
	}

	t.Run("late joiners replay the mirror", func(t *testing.T) {
		assert.Eventually(t, seen(func(m Message) bool {
			return m["uid"] == "early" && m["state"] == StateStarted
		}), 5*time.Second, 50*time.Millisecond)
		assert.Eventually(t, seen(func(m Message) bool {
			return m["gid"] == "group-1" && m["num_procs"] == float64(1)
		}), 5*time.Second, 50*time.Millisecond)
	})

	t.Run("live messages are forwarded", func(t *testing.T) {
		require.NoError(t, early.Progress(ctx, "Executing...", 60))
		assert.Eventually(t, seen(func(m Message) bool {
			return m["progress"] == float64(60)
		}), 5*time.Second, 50*time.Millisecond)
	})

	t.Run("finishing the group removes its bookkeeping", func(t *testing.T) {
		require.NoError(t, early.Finished(ctx, "Algorithm complete!", nil))
		n, err := client.Exists(ctx, "group-1:started", "group-1:done", LatestKey(PrefixAlgorithm, 3))
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Join did not return after cancel")
	}
}
