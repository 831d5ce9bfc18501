package tracer

import (
	"context"

	"go.uber.org/fx"

	"github.com/Aleph-Alpha/annotation-engine/v1/logger"
)

// FXModule provides the *Tracer and flushes it on shutdown.
var FXModule = fx.Module("tracer",
	fx.Provide(NewTracerWithDI),
	fx.Invoke(RegisterTracerLifecycle),
)

// TracerParams groups the tracer's dependencies.
type TracerParams struct {
	fx.In

	Config Config
	Logger *logger.Logger
}

// NewTracerWithDI builds the tracer from the fx graph.
func NewTracerWithDI(p TracerParams) (*Tracer, error) {
	return NewClient(p.Config, p.Logger)
}

// RegisterTracerLifecycle shuts the provider down when the app stops.
func RegisterTracerLifecycle(lc fx.Lifecycle, t *Tracer, log *logger.Logger) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			log.Info("shutting down tracer", nil)
			return t.Shutdown(ctx)
		},
	})
}
