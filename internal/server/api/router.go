package api

import (
	"reel/internal/server/config"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// SetupRouter creates and configures the echo router with all routes and middleware.
func SetupRouter(handler *Handler, cfg *config.Config) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	// Global middleware
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Content-Type", "Authorization", "Range"},
	}))
	e.Use(RequestLogger())

	// Rate limiter on write endpoints only
	uploadLimiter := NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)

	// Health & stats
	e.GET("/health", handler.HandleHealth)
	e.GET("/api/stats", handler.HandleStats)

	// Whole-file ingest (rate-limited)
	e.POST("/upload", handler.HandleUpload, uploadLimiter.Middleware())
	e.DELETE("/upload/:videoId", handler.HandleCancel)
	e.POST("/upload/cleanup", handler.HandleCleanup)

	// Client-driven chunked sessions (rate-limited on session creation)
	e.POST("/upload/sessions", handler.HandleCreateSession, uploadLimiter.Middleware())
	e.PUT("/upload/sessions/:videoId/chunks/:index", handler.HandleUploadChunk)
	e.POST("/upload/sessions/:videoId/complete", handler.HandleCompleteSession)

	// Playback with byte-range support
	e.GET("/video/:id", handler.HandleStream)

	return e
}
