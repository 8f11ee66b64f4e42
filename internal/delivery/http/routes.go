package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/pricepulse/backend/config"
)

// SetupRouter creates and configures the Gin router. metrics may be nil.
func SetupRouter(cfg *config.Config, handler *Handler, metrics http.Handler) *gin.Engine {
	// Set Gin mode based on environment
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Forwarding headers are ignored unless the peer is a listed proxy
	if err := router.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
		log.Error().Err(err).Msg("Invalid trusted proxies, ignoring forwarding headers")
		_ = router.SetTrustedProxies(nil)
	}

	// Global middleware
	router.Use(RequestIDMiddleware())
	router.Use(LoggerMiddleware())
	router.Use(RecoveryMiddleware())
	router.Use(CORSMiddleware(cfg.Server.AllowedOrigins))

	router.GET("/", handler.Index)
	router.GET("/health", handler.HealthCheck)
	if metrics != nil {
		router.GET("/metrics", gin.WrapH(metrics))
	}

	// Comparison endpoints share one per-IP budget
	compare := []gin.HandlerFunc{}
	if cfg.RateLimit.PerIP > 0 {
		compare = append(compare, RateLimitMiddleware(NewRateLimiter(cfg.RateLimit.PerIP, cfg.RateLimit.Burst)))
	}
	compare = append(compare, handler.Compare)

	router.GET("/compare", compare...)

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		v1.GET("/compare", compare...)
	}

	return router
}
