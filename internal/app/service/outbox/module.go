package outbox

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/qhomebase/contract-renewal/pkg/config"
)

// Module exposes the outbox service and dispatcher via Fx.
var Module = fx.Options(
	fx.Provide(NewService, NewDispatcher),
	fx.Invoke(registerLifecycle),
)

func registerLifecycle(lc fx.Lifecycle, cfg *config.Config, d *Dispatcher, log *zap.SugaredLogger) {
	if !cfg.Outbox.Enabled {
		log.Infow("outbox dispatcher disabled")
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				d.Run(ctx)
			}()
			log.Infow("outbox dispatcher started", "poll_interval", d.cfg.PollInterval)
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
