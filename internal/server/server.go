package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/subkit/internal/account"
	accountdomain "github.com/smallbiznis/subkit/internal/account/domain"
	"github.com/smallbiznis/subkit/internal/billing"
	billingdomain "github.com/smallbiznis/subkit/internal/billing/domain"
	"github.com/smallbiznis/subkit/internal/config"
	"github.com/smallbiznis/subkit/internal/notification"
	"github.com/smallbiznis/subkit/internal/observability"
	obslogger "github.com/smallbiznis/subkit/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/subkit/internal/observability/metrics"
	obstracing "github.com/smallbiznis/subkit/internal/observability/tracing"
	"github.com/smallbiznis/subkit/internal/paymenthistory"
	paymenthistorydomain "github.com/smallbiznis/subkit/internal/paymenthistory/domain"
	"github.com/smallbiznis/subkit/internal/plan"
	plandomain "github.com/smallbiznis/subkit/internal/plan/domain"
	"github.com/smallbiznis/subkit/internal/ratelimit"
	"github.com/smallbiznis/subkit/internal/subscription"
	"github.com/smallbiznis/subkit/internal/webhook"
	webhookdomain "github.com/smallbiznis/subkit/internal/webhook/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	account.Module,
	plan.Module,
	subscription.Module,
	paymenthistory.Module,
	notification.Module,
	billing.Module,
	webhook.Module,
	ratelimit.Module,
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{
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

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	port := strings.TrimSpace(cfg.HTTPPort)
	if port == "" {
		port = "8080"
	}
	srv := &http.Server{
		Addr:              ":" + port,
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
			log.Info("http server listening", zap.String("addr", srv.Addr))
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
	engine       *gin.Engine
	cfg          config.Config
	log          *zap.Logger
	accountSvc   accountdomain.Service
	planSvc      plandomain.Service
	billingSvc   billingdomain.Service
	historySvc   paymenthistorydomain.Service
	webhookSvc   webhookdomain.Service
	loginLimiter *ratelimit.LoginLimiter
	obsMetrics   *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin          *gin.Engine
	Cfg          config.Config
	Log          *zap.Logger
	AccountSvc   accountdomain.Service
	PlanSvc      plandomain.Service
	BillingSvc   billingdomain.Service
	HistorySvc   paymenthistorydomain.Service
	WebhookSvc   webhookdomain.Service
	LoginLimiter *ratelimit.LoginLimiter `optional:"true"`
	ObsMetrics   *obsmetrics.Metrics     `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:       p.Gin,
		cfg:          p.Cfg,
		log:          p.Log.Named("http.server"),
		accountSvc:   p.AccountSvc,
		planSvc:      p.PlanSvc,
		billingSvc:   p.BillingSvc,
		historySvc:   p.HistorySvc,
		webhookSvc:   p.WebhookSvc,
		loginLimiter: p.LoginLimiter,
		obsMetrics:   p.ObsMetrics,
	}

	svc.registerAuthRoutes()
	svc.registerSubscriptionRoutes()
	svc.registerWebhookRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAuthRoutes() {
	auth := s.engine.Group("/auth")

	auth.POST("/register", s.Register)
	auth.POST("/login", s.Login)
	auth.POST("/logout", s.Logout)

	authed := auth.Group("", s.AuthRequired())
	{
		authed.GET("/profile", s.Profile)
		authed.PATCH("/profile", s.UpdateProfile)
		authed.POST("/change-password", s.ChangePassword)
	}
}

func (s *Server) registerSubscriptionRoutes() {
	subs := s.engine.Group("/subscriptions")

	subs.GET("/plans", s.ListPlans)

	authed := subs.Group("", s.AuthRequired())
	{
		authed.POST("/create", s.CreateSubscription)
		authed.GET("/status", s.SubscriptionStatus)
		authed.POST("/cancel", s.CancelSubscription)
		authed.POST("/reactivate", s.ReactivateSubscription)
		authed.GET("/payments", s.ListPayments)
	}
}

func (s *Server) registerWebhookRoutes() {
	s.engine.POST("/webhooks/processor", s.HandleProcessorWebhook)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
