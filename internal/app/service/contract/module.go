package contract

import (
	"go.uber.org/fx"

	"github.com/qhomebase/contract-renewal/internal/platform/baseclient"
	"github.com/qhomebase/contract-renewal/internal/platform/vnpay"
)

// Module exposes the contract service via Fx.
var Module = fx.Options(
	fx.Provide(
		func(c *baseclient.Client) UnitDirectory { return c },
		func(c *vnpay.Client) PaymentGateway { return c },
		NewService,
	),
)
