package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/songgift/internal/config"
	"github.com/smallbiznis/songgift/internal/delivery"
	"github.com/smallbiznis/songgift/internal/observability"
	obsmiddleware "github.com/smallbiznis/songgift/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/songgift/internal/observability/metrics"
	obstracing "github.com/smallbiznis/songgift/internal/observability/tracing"
	orderdomain "github.com/smallbiznis/songgift/internal/order/domain"
	eventdomain "github.com/smallbiznis/songgift/internal/orderevent/domain"
	templatedomain "github.com/smallbiznis/songgift/internal/prompttemplate/domain"
	"github.com/smallbiznis/songgift/internal/ratelimit"
	"github.com/smallbiznis/songgift/internal/scheduler"
	settingsdomain "github.com/smallbiznis/songgift/internal/settings/domain"
	"github.com/smallbiznis/songgift/internal/webhook"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	webhook.Module,
	ratelimit.Module,
	fx.Provide(registerGin),
	fx.Provide(func(s *scheduler.Scheduler) OrderOperator { return s }),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

// OrderOperator runs operator actions under the per-order locks.
type OrderOperator interface {
	RetryOrder(ctx context.Context, id string) (orderdomain.Order, error)
	ResendOrder(ctx context.Context, id string, opts delivery.DeliverOptions) (delivery.DeliverResult, error)
}

// MusicWebhook applies music provider callbacks.
type MusicWebhook interface {
	HandleMusicCallback(ctx context.Context, body []byte, headers http.Header) (webhook.Result, error)
}

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine      *gin.Engine
	cfg         config.Config
	db          *gorm.DB
	log         *zap.Logger
	orderSvc    orderdomain.Service
	eventSvc    eventdomain.Service
	settingsSvc settingsdomain.Service
	templateSvc templatedomain.Service
	operator    OrderOperator
	webhook     MusicWebhook
	limiter     *ratelimit.IntakeLimiter
}

type ServerParams struct {
	fx.In

	Gin         *gin.Engine
	Cfg         config.Config
	DB          *gorm.DB
	Log         *zap.Logger
	OrderSvc    orderdomain.Service
	EventSvc    eventdomain.Service
	SettingsSvc settingsdomain.Service
	TemplateSvc templatedomain.Service
	Operator    OrderOperator
	Webhook     *webhook.Service
	Limiter     *ratelimit.IntakeLimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:      p.Gin,
		cfg:         p.Cfg,
		db:          p.DB,
		log:         p.Log.Named("http"),
		orderSvc:    p.OrderSvc,
		eventSvc:    p.EventSvc,
		settingsSvc: p.SettingsSvc,
		templateSvc: p.TemplateSvc,
		operator:    p.Operator,
		webhook:     p.Webhook,
		limiter:     p.Limiter,
	}

	svc.registerRoutes()
	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerRoutes() {
	api := s.engine.Group("/api")

	// -------- Public intake --------
	api.POST("/orders", s.IntakeRateLimit(), s.CreateOrder)
	api.POST("/orders/:id/confirm", s.ConfirmOrder)
	api.GET("/orders/:id", s.GetOrderStatus)

	// -------- Provider callbacks --------
	api.POST("/webhooks/music", s.HandleMusicWebhook)

	// -------- Admin --------
	admin := api.Group("/admin", s.AdminRequired())
	{
		admin.GET("/orders", s.ListOrders)
		admin.GET("/orders/:id", s.GetOrderByID)
		admin.POST("/orders/:id/retry", s.RetryOrder)
		admin.POST("/orders/:id/resend", s.ResendOrder)
		admin.GET("/orders/:id/events", s.ListOrderEvents)

		admin.GET("/settings", s.GetSettings)
		admin.PUT("/settings", s.UpdateSettings)

		admin.GET("/templates/:type", s.ListTemplateVersions)
		admin.PUT("/templates/:type", s.PublishTemplate)
	}

	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
