package app

import (
	"time"

	"go.uber.org/fx"

	"github.com/qhomebase/contract-renewal/internal/app/api/server"
	"github.com/qhomebase/contract-renewal/internal/app/service/contract"
	notificationlog "github.com/qhomebase/contract-renewal/internal/app/service/notification_log"
	"github.com/qhomebase/contract-renewal/internal/app/service/outbox"
	"github.com/qhomebase/contract-renewal/internal/app/service/payment"
	"github.com/qhomebase/contract-renewal/internal/app/service/scheduler"
	"github.com/qhomebase/contract-renewal/internal/app/service/sideeffect"
	"github.com/qhomebase/contract-renewal/internal/app/service/statistics"
	"github.com/qhomebase/contract-renewal/internal/platform/baseclient"
	"github.com/qhomebase/contract-renewal/internal/platform/db"
	"github.com/qhomebase/contract-renewal/internal/platform/events"
	"github.com/qhomebase/contract-renewal/internal/platform/vnpay"
	"github.com/qhomebase/contract-renewal/pkg/config"
	"github.com/qhomebase/contract-renewal/pkg/logger"
	"github.com/qhomebase/contract-renewal/pkg/metrics"
	"github.com/qhomebase/contract-renewal/pkg/tool"
)

const (
	DefaultStartTimeout = 15 * time.Second
	DefaultStopTimeout  = 10 * time.Second
)

// ClockModule provides the wall clock in the scheduler time zone.
var ClockModule = fx.Options(
	fx.Provide(func(cfg *config.Config) tool.Clock { return tool.NewSystemClock(cfg.Location()) }),
)

// CoreModule is everything except the HTTP server. The CLI runs on it.
var CoreModule = fx.Options(
	logger.Module,
	config.Module,
	ClockModule,
	db.Module,
	metrics.Module,
	baseclient.Module,
	vnpay.Module,
	events.Module,
	outbox.Module,
	sideeffect.Module,
	contract.Module,
	notificationlog.Module,
	payment.Module,
	statistics.Module,
	scheduler.Module,
)

var Module = fx.Options(
	CoreModule,
	server.Module,
)
