package sideeffect

import (
	"go.uber.org/fx"

	"github.com/qhomebase/contract-renewal/internal/app/service/outbox"
	"github.com/qhomebase/contract-renewal/internal/platform/baseclient"
)

// Module registers the side effect handlers on the outbox dispatcher.
var Module = fx.Options(
	fx.Provide(
		func(c *baseclient.Client) Collaborators { return c },
		NewHandlers,
	),
	fx.Invoke(func(h *Handlers, d *outbox.Dispatcher) { h.Register(d) }),
)
