package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/tollgate/internal/apikey"
	apikeydomain "github.com/smallbiznis/tollgate/internal/apikey/domain"
	"github.com/smallbiznis/tollgate/internal/auth"
	authdomain "github.com/smallbiznis/tollgate/internal/auth/domain"
	"github.com/smallbiznis/tollgate/internal/config"
	"github.com/smallbiznis/tollgate/internal/gateway"
	gatewaydomain "github.com/smallbiznis/tollgate/internal/gateway/domain"
	"github.com/smallbiznis/tollgate/internal/observability"
	obsmiddleware "github.com/smallbiznis/tollgate/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/tollgate/internal/observability/metrics"
	obstracing "github.com/smallbiznis/tollgate/internal/observability/tracing"
	"github.com/smallbiznis/tollgate/internal/payment"
	paymentdomain "github.com/smallbiznis/tollgate/internal/payment/domain"
	"github.com/smallbiznis/tollgate/internal/provider"
	"github.com/smallbiznis/tollgate/internal/ratelimit"
	"github.com/smallbiznis/tollgate/internal/wallet"
	walletdomain "github.com/smallbiznis/tollgate/internal/wallet/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	auth.Module,
	apikey.Module,
	wallet.Module,
	payment.Module,
	provider.Module,
	ratelimit.Module,
	gateway.Module,
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

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if !obsCfg.Debug() {
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
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
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
	engine     *gin.Engine
	log        *zap.Logger
	authsvc    authdomain.Service
	apiKeySvc  apikeydomain.Service
	walletSvc  walletdomain.Service
	paymentSvc paymentdomain.Service
	gatewaySvc gatewaydomain.Service
}

type ServerParams struct {
	fx.In

	Gin        *gin.Engine
	Log        *zap.Logger
	Authsvc    authdomain.Service
	APIKeySvc  apikeydomain.Service
	WalletSvc  walletdomain.Service
	PaymentSvc paymentdomain.Service
	GatewaySvc gatewaydomain.Service
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:     p.Gin,
		log:        p.Log.Named("http.server"),
		authsvc:    p.Authsvc,
		apiKeySvc:  p.APIKeySvc,
		walletSvc:  p.WalletSvc,
		paymentSvc: p.PaymentSvc,
		gatewaySvc: p.GatewaySvc,
	}

	svc.registerAuthRoutes()
	svc.registerAPIRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAuthRoutes() {
	s.engine.POST("/register", s.Register)
	s.engine.POST("/login", s.Login)
	s.engine.POST("/refresh", s.Refresh)
	s.engine.POST("/logout", s.AccessTokenRequired(), s.Logout)
}

func (s *Server) registerAPIRoutes() {
	session := s.engine.Group("", s.AccessTokenRequired())
	{
		session.POST("/secret", s.CreateSecret)
		session.GET("/secret", s.ListSecrets)
		session.DELETE("/secret/:key_id", s.RevokeSecret)
		session.POST("/deposit", s.Deposit)
	}

	metered := s.engine.Group("", s.AccessTokenOrAPIKey())
	{
		metered.POST("/generate", s.Generate)
		metered.GET("/usage", s.ListUsage)
		metered.GET("/wallet", s.GetWallet)
	}
}
