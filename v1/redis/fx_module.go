package redis

import (
	"context"

	"go.uber.org/fx"

	"github.com/Aleph-Alpha/annotation-engine/v1/logger"
)

// FXModule provides *RedisClient and the Client interface, pings on start
// and closes on stop.
var FXModule = fx.Module("redis",
	fx.Provide(
		NewClientWithDI,
		func(c *RedisClient) Client { return c },
	),
	fx.Invoke(RegisterRedisLifecycle),
)

type RedisParams struct {
	fx.In

	Config Config
	Logger *logger.Logger `optional:"true"`
}

func NewClientWithDI(params RedisParams) (*RedisClient, error) {
	if params.Logger == nil {
		return NewClient(params.Config, nil)
	}
	return NewClient(params.Config, params.Logger)
}

type RedisLifecycleParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Client    *RedisClient
}

func RegisterRedisLifecycle(params RedisLifecycleParams) {
	params.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := params.Client.Ping(ctx); err != nil {
				params.Client.warn("failed to ping redis on startup", err, nil)
				return err
			}
			params.Client.info("redis client started and healthy", nil)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return params.Client.Close()
		},
	})
}
