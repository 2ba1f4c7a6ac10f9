package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/logoforge/internal/auth"
	"github.com/smallbiznis/logoforge/internal/config"
	"github.com/smallbiznis/logoforge/internal/consumption"
	consumptiondomain "github.com/smallbiznis/logoforge/internal/consumption/domain"
	"github.com/smallbiznis/logoforge/internal/entitlement"
	entitlementdomain "github.com/smallbiznis/logoforge/internal/entitlement/domain"
	"github.com/smallbiznis/logoforge/internal/generation"
	generationdomain "github.com/smallbiznis/logoforge/internal/generation/domain"
	"github.com/smallbiznis/logoforge/internal/inference"
	"github.com/smallbiznis/logoforge/internal/observability"
	obsmiddleware "github.com/smallbiznis/logoforge/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/logoforge/internal/observability/metrics"
	obstracing "github.com/smallbiznis/logoforge/internal/observability/tracing"
	"github.com/smallbiznis/logoforge/internal/payment"
	paymentdomain "github.com/smallbiznis/logoforge/internal/payment/domain"
	"github.com/smallbiznis/logoforge/internal/ratelimit"
	"github.com/smallbiznis/logoforge/internal/storage"
	"github.com/smallbiznis/logoforge/internal/transaction"
	transactiondomain "github.com/smallbiznis/logoforge/internal/transaction/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	auth.Module,
	entitlement.Module,
	generation.Module,
	transaction.Module,
	payment.Module,
	inference.Module,
	storage.Module,
	consumption.Module,
	ratelimit.Module,
	fx.Provide(NewServer),
	fx.Invoke(run),
)

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

func registerGin(cfg config.Config, obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, s *Server, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           s.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
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
	engine            *gin.Engine
	cfg               config.Config
	credits           *config.CreditsConfigHolder
	verifier          *auth.Verifier
	consumptionSvc    consumptiondomain.Service
	entitlementSvc    entitlementdomain.Service
	generationSvc     generationdomain.Service
	transactionSvc    transactiondomain.Service
	webhookSvc        paymentdomain.WebhookService
	checkoutSvc       paymentdomain.CheckoutService
	store             storage.ObjectStore
	generationLimiter *ratelimit.GenerationLimiter
	assetClient       *http.Client
}

type ServerParams struct {
	fx.In

	Gin               *gin.Engine
	Cfg               config.Config
	Credits           *config.CreditsConfigHolder
	Verifier          *auth.Verifier
	ConsumptionSvc    consumptiondomain.Service
	EntitlementSvc    entitlementdomain.Service
	GenerationSvc     generationdomain.Service
	TransactionSvc    transactiondomain.Service
	WebhookSvc        paymentdomain.WebhookService
	CheckoutSvc       paymentdomain.CheckoutService
	Store             storage.ObjectStore
	GenerationLimiter *ratelimit.GenerationLimiter `optional:"true"`
	AssetClient       *http.Client                 `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	assetClient := p.AssetClient
	if assetClient == nil {
		assetClient = &http.Client{Timeout: 60 * time.Second}
	}
	svc := &Server{
		engine:            p.Gin,
		cfg:               p.Cfg,
		credits:           p.Credits,
		verifier:          p.Verifier,
		consumptionSvc:    p.ConsumptionSvc,
		entitlementSvc:    p.EntitlementSvc,
		generationSvc:     p.GenerationSvc,
		transactionSvc:    p.TransactionSvc,
		webhookSvc:        p.WebhookSvc,
		checkoutSvc:       p.CheckoutSvc,
		store:             p.Store,
		generationLimiter: p.GenerationLimiter,
		assetClient:       assetClient,
	}

	svc.registerAPIRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	api.POST("/payments/webhook", s.HandlePaymentWebhook)

	user := api.Group("", s.AuthRequired())
	{
		user.GET("/entitlement", s.GetEntitlement)
		user.GET("/transactions", s.ListTransactions)

		user.GET("/generations", s.ListGenerations)
		user.POST("/generations", s.GenerationRateLimit(), s.CreateGeneration)
		user.GET("/generations/:id/download", s.DownloadGeneration)

		user.POST("/checkout", s.CreateCheckout)
	}
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
