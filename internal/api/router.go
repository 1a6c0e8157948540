package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/leozw/quota-guardian/internal/api/handlers"
	"github.com/leozw/quota-guardian/internal/api/middleware"
	"github.com/leozw/quota-guardian/internal/config"
)

type Server struct {
	Config  *config.Config
	Router  *gin.Engine
	handler *handlers.Handler
	metrics http.Handler
	logger  *zap.Logger
}

// NewServer wires the routes. metricsHandler serves the collector registry on /metrics.
func NewServer(cfg *config.Config, handler *handlers.Handler, metricsHandler http.Handler, logger *zap.Logger) *Server {
	gin.SetMode(cfg.Server.Mode)
	router := gin.New()

	router.Use(middleware.Logger(logger))
	router.Use(gin.Recovery())
	router.Use(middleware.CORS())

	server := &Server{
		Config:  cfg,
		Router:  router,
		handler: handler,
		metrics: metricsHandler,
		logger:  logger,
	}

	server.setupRoutes()
	return server
}

func (s *Server) setupRoutes() {
	s.Router.GET("/health", s.handler.Health)
	s.Router.GET("/ready", s.handler.Ready)
	if s.metrics != nil {
		s.Router.GET("/metrics", gin.WrapH(s.metrics))
	}

	limiter := middleware.NewRateLimiter(s.Config.RateLimit.RequestsPerSecond, s.Config.RateLimit.Burst)

	api := s.Router.Group("/api/v1")
	api.Use(middleware.AuthRequired(s.Config.Auth.JWTSecret))
	api.Use(limiter.Middleware())

	{
		api.POST("/quotas/evaluate", s.handler.EvaluateQuotas)
		api.GET("/quotas", s.handler.ListQuotas)
		api.GET("/tenants/:id/quota", s.handler.GetTenantQuota)
		api.GET("/tenants/:id/alerts", s.handler.GetTenantAlerts)
	}

	{
		api.GET("/dashboard", s.handler.GetDashboard)
		api.POST("/dashboard/consolidate", s.handler.ConsolidateDashboard)
	}

	api.GET("/alerts", s.handler.ListOpenAlerts)
}
