package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/qhomebase/contract-renewal/pkg/config"
)

const defaultMetricPath = "/metrics"

var reqCnt = &Metric{
	ID:          "reqCnt",
	Name:        "requests_total",
	Description: "How many HTTP requests processed, partitioned by status code and HTTP method.",
	Type:        "counter_vec",
	Args:        []string{"code", "method", "url"},
}

var reqDur = &Metric{
	ID:          "reqDur",
	Name:        "request_duration_ms",
	Description: "The HTTP request latencies in milliseconds.",
	Type:        "histogram_vec",
	Args:        []string{"code", "method", "url"},
}

// Prometheus holds the HTTP collectors and the dedicated metrics listener.
type Prometheus struct {
	reqCnt *prometheus.CounterVec
	reqDur *prometheus.HistogramVec

	registry      *prometheus.Registry
	listenAddress string
	server        *http.Server
	log           *zap.SugaredLogger
}

// NewRegistry returns a registry preloaded with the Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

// NewPrometheus registers HTTP collectors on reg. An empty listen address disables the listener.
func NewPrometheus(reg *prometheus.Registry, listenAddress string, log *zap.SugaredLogger) *Prometheus {
	p := &Prometheus{
		reqCnt:        NewMetric(reqCnt, "http").(*prometheus.CounterVec),
		reqDur:        NewMetric(reqDur, "http").(*prometheus.HistogramVec),
		registry:      reg,
		listenAddress: listenAddress,
		log:           log,
	}
	reg.MustRegister(p.reqCnt, p.reqDur)
	return p
}

// HandlerFunc records request count and latency labelled by route template.
func (p *Prometheus) HandlerFunc() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		url := c.FullPath()
		if url == "" {
			url = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		p.reqDur.WithLabelValues(status, c.Request.Method, url).Observe(float64(time.Since(start).Milliseconds()))
		p.reqCnt.WithLabelValues(status, c.Request.Method, url).Inc()
	}
}

// Handler exposes the registry in the Prometheus text format.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{Registry: p.registry})
}

// Use attaches the middleware to e.
func (p *Prometheus) Use(e *gin.Engine) {
	e.Use(p.HandlerFunc())
}

func (p *Prometheus) start() {
	if p.listenAddress == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle(defaultMetricPath, p.Handler())
	p.server = &http.Server{Addr: p.listenAddress, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := p.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			p.log.Errorw("metrics server error", "err", err)
		}
	}()
	p.log.Infow("metrics started", "addr", p.listenAddress)
}

func (p *Prometheus) stop(ctx context.Context) error {
	if p.server == nil {
		return nil
	}
	return p.server.Shutdown(ctx)
}

func newPrometheus(reg *prometheus.Registry, cfg *config.Config, log *zap.SugaredLogger) *Prometheus {
	return NewPrometheus(reg, cfg.MetricsAddr, log)
}

func registerLifecycle(lc fx.Lifecycle, p *Prometheus) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			p.start()
			return nil
		},
		OnStop: p.stop,
	})
}

var Module = fx.Options(
	fx.Provide(NewRegistry),
	fx.Provide(newPrometheus),
	fx.Provide(func(reg *prometheus.Registry) *Business { return NewBusiness(reg) }),
	fx.Invoke(registerLifecycle),
)
