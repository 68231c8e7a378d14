package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/peercall/broker/internal/v1/auth"
	"github.com/peercall/broker/internal/v1/config"
	"github.com/peercall/broker/internal/v1/health"
	"github.com/peercall/broker/internal/v1/middleware"
	"github.com/peercall/broker/internal/v1/ratelimit"
	"github.com/peercall/broker/internal/v1/session"
)

// RouterDeps bundles everything the HTTP router mounts.
type RouterDeps struct {
	Config   *config.Config
	Handler  *Handler
	Auth     auth.TokenValidator
	Hub      *session.Hub
	Health   *health.Handler
	Limiters *ratelimit.RateLimiter
}

// NewRouter assembles the gin engine: middleware chain, REST routes, the
// WebSocket upgrade path, and the operational endpoints.
func NewRouter(deps RouterDeps) *gin.Engine {
	if !deps.Config.DevelopmentMode() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CorrelationID())
	if deps.Config.TracingEnabled {
		router.Use(otelgin.Middleware("peercall-broker"))
	}

	corsConfig := cors.DefaultConfig()
	if deps.Config.CORSOrigin == "*" {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = []string{deps.Config.CORSOrigin}
		corsConfig.AllowCredentials = true
	}
	corsConfig.AllowHeaders = append(corsConfig.AllowHeaders, "Authorization", "X-Correlation-ID")
	router.Use(cors.New(corsConfig))

	api := router.Group("/api")
	api.Use(deps.Limiters.RESTMiddleware())
	{
		api.POST("/auth/register", deps.Handler.Register)
		api.POST("/auth/login", deps.Handler.Login)
		api.GET("/auth/me", auth.RequireAuth(deps.Auth), deps.Handler.Me)

		api.POST("/rooms", auth.RequireAuth(deps.Auth), deps.Handler.CreateRoom)
		api.GET("/rooms/:roomId", auth.OptionalAuth(deps.Auth), deps.Handler.GetRoom)

		api.POST("/webhook", deps.Limiters.WebhookMiddleware(), deps.Handler.Webhook)
	}

	router.GET("/ws", deps.Hub.ServeWs)

	router.GET("/health", deps.Health.Summary)
	router.GET("/health/live", deps.Health.Liveness)
	router.GET("/health/ready", deps.Health.Readiness)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return router
}
