package server

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"
)

// RegisterRoutes configures all API routes, middleware, and error handlers
func RegisterRoutes(e *echo.Echo, h *Handlers, cfg ServerConfig) {
	e.HTTPErrorHandler = NotFoundJSON()

	// Scraped by Prometheus; stays outside auth and the JSON middleware.
	if h.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(h.Metrics))
	}

	v1 := e.Group("/v1")
	v1.Use(SetJSONContentType)
	v1.Use(SetNoCacheHeaders)

	if cfg.APIKey != "" {
		v1.Use(middleware.KeyAuthWithConfig(middleware.KeyAuthConfig{
			KeyLookup: "header:X-API-Key",
			Validator: func(key string, c echo.Context) (bool, error) {
				return key == cfg.APIKey, nil
			},
		}))
	}

	v1.GET("/health", h.Health)
	v1.GET("/attempts", h.Attempts)
	v1.GET("/attempts/:pool", h.Attempt)
	v1.GET("/outcomes/recent", h.RecentOutcomes)
	v1.GET("/price/sol", h.SOLPrice)
	v1.GET("/fees", h.Fees)

	// Writes flip live trading behaviour; keep them slow.
	limiter := middleware.RateLimiter(middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(1),
		Burst:     5,
		ExpiresIn: 2 * time.Minute,
	}))

	v1.POST("/pause", h.PauseTrading, limiter)
	v1.POST("/resume", h.ResumeTrading, limiter)

	flagGroup := v1.Group("/flags")
	flagGroup.GET("", h.FlagsList)
	flagGroup.GET("/:key", h.FlagsGet)
	flagGroup.PUT("/:key", h.FlagsSet, limiter)
	flagGroup.DELETE("/:key", h.FlagsDelete, limiter)

	e.RouteNotFound("/*", func(c echo.Context) error {
		return c.JSON(http.StatusNotFound, ErrorResponse{Error: "not found", Code: http.StatusNotFound})
	})
}
