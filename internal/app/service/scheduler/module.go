package scheduler

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/qhomebase/contract-renewal/pkg/config"
)

var Module = fx.Options(
	fx.Provide(NewJobs, NewRunner),
	fx.Invoke(registerLifecycle),
)

func registerLifecycle(lc fx.Lifecycle, cfg *config.Config, r *Runner, log *zap.SugaredLogger) {
	if !cfg.Scheduler.Enabled {
		log.Infow("scheduler disabled, jobs run only on manual trigger")
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				r.Run(ctx)
			}()
			log.Infow("scheduler started", "tick_interval", r.cfg.TickInterval, "timezone", cfg.Location().String())
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
			case <-stopCtx.Done():
				return stopCtx.Err()
			}
			return nil
		},
	})
}
