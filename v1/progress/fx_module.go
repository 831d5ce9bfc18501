package progress

import (
	"go.uber.org/fx"

	"github.com/Aleph-Alpha/annotation-engine/v1/logger"
	"github.com/Aleph-Alpha/annotation-engine/v1/metrics"
	"github.com/Aleph-Alpha/annotation-engine/v1/redis"
)

var FXModule = fx.Module("progress",
	fx.Provide(NewBroadcasterWithDI),
)

type BroadcasterParams struct {
	fx.In

	Client   redis.Client
	Logger   *logger.Logger           `optional:"true"`
	Recorder metrics.ProgressRecorder `optional:"true"`
}

func NewBroadcasterWithDI(params BroadcasterParams) *Broadcaster {
	var opts []Option
	if params.Recorder != nil {
		opts = append(opts, WithRecorder(params.Recorder))
	}
	if params.Logger == nil {
		return NewBroadcaster(params.Client, nil, opts...)
	}
	return NewBroadcaster(params.Client, params.Logger, opts...)
}
