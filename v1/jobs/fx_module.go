package jobs

import (
	"context"

	"go.uber.org/fx"

	"github.com/Aleph-Alpha/annotation-engine/v1/kube"
	"github.com/Aleph-Alpha/annotation-engine/v1/logger"
	"github.com/Aleph-Alpha/annotation-engine/v1/metrics"
	"github.com/Aleph-Alpha/annotation-engine/v1/minio"
	"github.com/Aleph-Alpha/annotation-engine/v1/postgres"
	"github.com/Aleph-Alpha/annotation-engine/v1/progress"
	"github.com/Aleph-Alpha/annotation-engine/v1/redis"
	"github.com/Aleph-Alpha/annotation-engine/v1/tracer"
)

// FXModule provides the Runner and runs a Dispatcher on the command
// channels for the lifetime of the app.
var FXModule = fx.Module("jobs",
	fx.Provide(
		func(p *postgres.Postgres) Store { return NewStore(p) },
		NewRunnerWithDI,
	),
	fx.Invoke(RegisterDispatcherLifecycle),
)

type RunnerParams struct {
	fx.In

	Config      Config
	KubeConfig  kube.Config
	Kube        kube.Client
	Store       Store
	Objects     minio.Client
	Broadcaster *progress.Broadcaster
	Logger      *logger.Logger      `optional:"true"`
	Tracer      *tracer.Tracer      `optional:"true"`
	Metrics     metrics.JobRecorder `optional:"true"`
}

func NewRunnerWithDI(params RunnerParams) *Runner {
	opts := []RunnerOption{
		WithNamespace(params.KubeConfig.NamespaceOrDefault()),
		WithTracer(params.Tracer),
	}
	if params.Metrics != nil {
		opts = append(opts, WithMetrics(params.Metrics))
	}
	log := params.Logger
	if log == nil {
		log = logger.NewNop()
	}
	return NewRunner(params.Config, params.Kube, params.Store, params.Objects,
		BroadcasterReporters(params.Broadcaster), log, opts...)
}

type DispatcherLifecycleParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Runner    *Runner
	Redis     redis.Client
	Logger    *logger.Logger `optional:"true"`
}

// RegisterDispatcherLifecycle subscribes to the command channels on start.
// On stop it stops every run and waits for their cleanup, then closes the
// subscription.
func RegisterDispatcherLifecycle(params DispatcherLifecycleParams) {
	log := params.Logger
	if log == nil {
		log = logger.NewNop()
	}
	var (
		dispatcher *Dispatcher
		cancel     context.CancelFunc
		done       = make(chan struct{})
	)
	params.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			pubsub := params.Redis.Subscribe(ctx, ChannelAlgorithm, ChannelPackager)
			if _, err := pubsub.Receive(ctx); err != nil {
				pubsub.Close()
				return err
			}
			dispatcher = NewDispatcher(params.Runner, pubsub, log)

			var runCtx context.Context
			runCtx, cancel = context.WithCancel(context.Background())
			go func() {
				defer close(done)
				defer pubsub.Close()
				dispatcher.Run(runCtx, pubsub.Channel())
			}()
			log.Info("Listening for commands", nil, map[string]interface{}{
				"channels": []string{ChannelAlgorithm, ChannelPackager},
			})
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if cancel == nil {
				return nil
			}
			err := dispatcher.Shutdown(ctx)
			cancel()
			<-done
			return err
		},
	})
}
