package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"github.com/Aleph-Alpha/annotation-engine/v1/config"
	"github.com/Aleph-Alpha/annotation-engine/v1/jobs"
	"github.com/Aleph-Alpha/annotation-engine/v1/kube"
	"github.com/Aleph-Alpha/annotation-engine/v1/logger"
	"github.com/Aleph-Alpha/annotation-engine/v1/metrics"
	"github.com/Aleph-Alpha/annotation-engine/v1/minio"
	"github.com/Aleph-Alpha/annotation-engine/v1/postgres"
	"github.com/Aleph-Alpha/annotation-engine/v1/progress"
	"github.com/Aleph-Alpha/annotation-engine/v1/redis"
	"github.com/Aleph-Alpha/annotation-engine/v1/tracer"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Consume algorithm and packager commands until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), newServeApp(cfg))
		},
	}
}

func newServeApp(cfg config.Config, extra ...fx.Option) *fx.App {
	opts := []fx.Option{
		fx.NopLogger,
		config.FXModule(cfg),
		logger.FXModule,
		fx.Provide(func(l *logger.Logger) postgres.Logger { return l }),
		tracer.FXModule,
		metrics.FXModule,
		postgres.FXModule,
		redis.FXModule,
		minio.FXModule,
		kube.FXModule,
		progress.FXModule,
		jobs.FXModule,
	}
	return fx.New(append(opts, extra...)...)
}

// serve blocks until the app receives a shutdown signal or ctx ends.
func serve(ctx context.Context, app *fx.App) error {
	if err := app.Err(); err != nil {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}

	startCtx, cancel := context.WithTimeout(ctx, app.StartTimeout())
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		return fmt.Errorf("start: %w", err)
	}

	var exit int
	select {
	case sig := <-app.Wait():
		exit = sig.ExitCode
	case <-ctx.Done():
	}

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), app.StopTimeout())
	defer cancel()
	if err := app.Stop(stopCtx); err != nil {
		return fmt.Errorf("stop: %w", err)
	}
	if exit != 0 {
		return fmt.Errorf("exited with code %d", exit)
	}
	return ctx.Err()
}
