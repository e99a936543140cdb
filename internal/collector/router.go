package collector

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"hitqueue/internal/config"
	"hitqueue/internal/logger"
	"hitqueue/pkg/health"
	"hitqueue/pkg/middleware"
	"hitqueue/pkg/ratelimit"
	"hitqueue/pkg/tracing"
)

const serviceName = "hitqueue-collector"

// NewRouter wires the collector routes with health and metrics
// endpoints. stop ends background work started by the middleware.
func NewRouter(cfg *config.Config, engines Engines, checks *health.CheckerRegistry, log logger.Logger, stop <-chan struct{}) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware(serviceName, nil))
	}

	router.Use(middleware.RecoveryMiddleware(log))
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.LoggerMiddleware(log))

	router.GET("/health", func(c *gin.Context) {
		h := checks.Check(c.Request.Context())
		statusCode := http.StatusOK
		if h.Status == health.StatusUnhealthy {
			statusCode = http.StatusServiceUnavailable
		}
		c.JSON(statusCode, h)
	})

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("")
	if cfg.Collector.RateLimit.Enabled {
		rl := ratelimit.FromConfig(cfg.Collector.RateLimit)
		api.Use(ratelimit.RateLimitMiddleware(rl, stop))
		log.Infow("Rate limiting enabled", "rps", rl.RPS, "burst", rl.Burst)
	}

	NewHandler(engines, log).registerRoutes(api)
	return router
}
