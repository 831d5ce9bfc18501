package config

import (
	"go.uber.org/fx"

	"github.com/Aleph-Alpha/annotation-engine/v1/jobs"
	"github.com/Aleph-Alpha/annotation-engine/v1/kube"
	"github.com/Aleph-Alpha/annotation-engine/v1/logger"
	"github.com/Aleph-Alpha/annotation-engine/v1/metrics"
	"github.com/Aleph-Alpha/annotation-engine/v1/minio"
	"github.com/Aleph-Alpha/annotation-engine/v1/postgres"
	"github.com/Aleph-Alpha/annotation-engine/v1/redis"
	"github.com/Aleph-Alpha/annotation-engine/v1/tracer"
)

// Sections spreads a Config over the fx graph so each module receives only
// its own section.
type Sections struct {
	fx.Out

	Logger   logger.Config
	Tracer   tracer.Config
	Metrics  metrics.Config
	Postgres postgres.Config
	Redis    redis.Config
	Minio    minio.Config
	Kube     kube.Config
	Jobs     jobs.Config
}

func Split(cfg Config) Sections {
	return Sections{
		Logger:   cfg.Logger,
		Tracer:   cfg.Tracer,
		Metrics:  cfg.Metrics,
		Postgres: cfg.Postgres,
		Redis:    cfg.Redis,
		Minio:    cfg.Minio,
		Kube:     cfg.Kube,
		Jobs:     cfg.Jobs,
	}
}

// FXModule supplies every section of cfg.
func FXModule(cfg Config) fx.Option {
	return fx.Module("config",
		fx.Supply(cfg),
		fx.Provide(Split),
	)
}
