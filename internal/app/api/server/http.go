package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/qhomebase/contract-renewal/docs"
	"github.com/qhomebase/contract-renewal/internal/app/api/handlers"
	mw "github.com/qhomebase/contract-renewal/internal/app/api/middleware"
	"github.com/qhomebase/contract-renewal/internal/app/service/contract"
	"github.com/qhomebase/contract-renewal/internal/app/service/outbox"
	"github.com/qhomebase/contract-renewal/internal/app/service/payment"
	"github.com/qhomebase/contract-renewal/internal/app/service/scheduler"
	"github.com/qhomebase/contract-renewal/internal/app/service/statistics"
	cfgpkg "github.com/qhomebase/contract-renewal/pkg/config"
	"github.com/qhomebase/contract-renewal/pkg/metrics"
)

func newEngine(cfg *cfgpkg.Config, p *metrics.Prometheus) *gin.Engine {
	if cfg.Env == cfgpkg.EnvProd {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	// Add request tracing middleware only; request logger & access log are attached per group in registerRoutes
	r.Use(mw.TraceMiddleware())
	if cfg.MetricsAddr != "" {
		p.Use(r)
	}
	return r
}

// Routes holds everything the HTTP surface dispatches to.
type Routes struct {
	fx.In

	Log        *zap.SugaredLogger
	DB         *gorm.DB
	Auth       *mw.Authenticator
	Contracts  *contract.Service
	Payments   *payment.Service
	Statistics *statistics.Service
	Runner     *scheduler.Runner
	Outbox     *outbox.Service
}

func registerRoutes(r *gin.Engine, d Routes) {
	log := d.Log
	// Public group: request logger + access log
	pub := r.Group("/")
	pub.Use(mw.RequestLoggerMiddleware(log), mw.AccessLogMiddleware(log))
	handlers.RegisterHealthRoutes(pub, d.DB)
	// Swagger UI
	docs.SwaggerInfo.BasePath = "/"
	pub.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	apiV1 := r.Group("/api/v1")
	apiV1.Use(d.Auth.Authenticate(), mw.RequestLoggerMiddleware(log), mw.AccessLogMiddleware(log))

	contracts := apiV1.Group("/contracts")
	handlers.RegisterPaymentRoutes(contracts, d.Payments, log, d.Auth.RequireAdmin())
	handlers.RegisterContractRoutes(contracts.Group("", d.Auth.RequireUser()), d.Contracts, log)

	handlers.RegisterAdminRoutes(apiV1.Group("/admin", d.Auth.RequireAdmin()), handlers.AdminDeps{
		Contracts:  d.Contracts,
		Statistics: d.Statistics,
		Runner:     d.Runner,
		Outbox:     d.Outbox,
		Log:        log,
	})
}

func runServer(lc fx.Lifecycle, log *zap.SugaredLogger, cfg *cfgpkg.Config, r *gin.Engine, shutdowner fx.Shutdowner) {
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 5 * time.Second}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Infow("starting HTTP server", "addr", addr)
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Errorw("server error", "err", err)
					_ = shutdowner.Shutdown(fx.ExitCode(1))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Infow("stopping HTTP server")
			shutdownCtx, cancel := context.WithTimeout(ctx, 120*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

var Module = fx.Options(
	fx.Provide(mw.NewAuthenticator),
	fx.Provide(newEngine),
	fx.Invoke(registerRoutes),
	fx.Invoke(runServer),
)
