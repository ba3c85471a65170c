package management

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"eventrouter/internal/config"
	"eventrouter/internal/logger"
	"eventrouter/pkg/health"
	"eventrouter/pkg/middleware"
	"eventrouter/pkg/ratelimit"
	"eventrouter/pkg/tracing"
)

type RouterOptions struct {
	ServiceName string
	Tracing     bool
	RateLimit   config.RateLimitConfig
	Health      *health.CheckerRegistry
	Swagger     bool
}

// NewRouter builds the gin engine with middleware and every route. ctx bounds
// background work such as rate limiter cleanup.
func NewRouter(ctx context.Context, h *Handler, opts RouterOptions, log logger.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	if opts.Tracing {
		router.Use(tracing.GinMiddleware(opts.ServiceName))
	}
	router.Use(middleware.RecoveryMiddleware(log))
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.LoggerMiddleware(log))

	if opts.RateLimit.Enabled {
		rl := ratelimit.FromConfig(opts.RateLimit)
		router.Use(ratelimit.RateLimitMiddleware(ctx, rl))
		log.Infow("Rate limiting enabled", "rps", rl.RPS, "burst", rl.Burst)
	}

	h.RegisterRoutes(router)

	if opts.Health != nil {
		router.GET("/health", healthHandler(opts.Health))
	}
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	if opts.Swagger {
		router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	return router
}

func healthHandler(reg *health.CheckerRegistry) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := reg.Check(c.Request.Context())
		status := http.StatusOK
		if h.Status == health.StatusUnhealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, h)
	}
}
