// Package routes provides HTTP route configuration for the presentation layer.
package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AtRiskMedia/storykeep-go/internal/application/container"
	"github.com/AtRiskMedia/storykeep-go/internal/presentation/http/handlers"
	"github.com/AtRiskMedia/storykeep-go/internal/presentation/http/middleware"
	"github.com/AtRiskMedia/storykeep-go/pkg/config"
)

// SetupRoutes configures all HTTP routes and middleware with dependency injection.
func SetupRoutes(container *container.Container) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.CORSMiddleware(config.AllowedOrigins))

	analyticsHandlers := handlers.NewAnalyticsHandlers(container.Dashboards, container.Logger, container.PerfTracker)
	streamHandlers := handlers.NewStreamHandlers(container.Hub, config.AllowedOrigins, container.Logger)
	systemHandlers := handlers.NewSystemHandlers(container.Dashboards, container.Logger)
	limiter := middleware.NewRateLimiter(config.ConsoleRateLimit, config.ConsoleRateBurst)

	r.GET("/healthz", systemHandlers.HandleHealth)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1/storykeep")
	api.Use(middleware.TenantMiddleware(container.TenantManager, container.PerfTracker))
	api.Use(middleware.AdminAuthMiddleware(container.Logger))
	{
		api.GET("/ws", streamHandlers.HandleWebSocket)
		api.GET("/leads/download", analyticsHandlers.HandleLeadsDownload)

		logs := api.Group("/logs")
		{
			logs.GET("/levels", systemHandlers.GetLogLevels)
			logs.PUT("/levels", systemHandlers.SetLogLevel)
		}

		analytics := api.Group("/analytics")
		analytics.Use(limiter.Middleware())
		{
			analytics.GET("", analyticsHandlers.HandleGetDashboard)
			analytics.DELETE("", analyticsHandlers.HandleCloseDashboard)
			analytics.POST("/init", analyticsHandlers.HandleInitialize)
			analytics.PUT("/visitor-type", analyticsHandlers.HandleSetVisitorType)
			analytics.PUT("/user", analyticsHandlers.HandleSelectUser)
			analytics.GET("/users", analyticsHandlers.HandleUserCounts)
			analytics.PUT("/filters", analyticsHandlers.HandleApplyFilter)
			analytics.DELETE("/filters", analyticsHandlers.HandleClearFilters)

			analytics.PUT("/range/form", analyticsHandlers.HandleEditRange)
			analytics.POST("/range/preset", analyticsHandlers.HandleSelectPreset)
			analytics.POST("/range/apply", analyticsHandlers.HandleApplyRange)
			analytics.POST("/range/cancel", analyticsHandlers.HandleCancelRange)
			analytics.POST("/refresh", analyticsHandlers.HandleRefresh)

			analytics.GET("/timeline", analyticsHandlers.HandleTimeline)
			analytics.GET("/timeline.png", analyticsHandlers.HandleTimelineImage)
			analytics.GET("/content-summary", analyticsHandlers.HandleContentSummary)

			analytics.GET("/epinet/:id/sankey", analyticsHandlers.HandleEpinetSankey)
			analytics.GET("/epinet/:id/sankey.png", analyticsHandlers.HandleEpinetSankeyImage)
			analytics.GET("/epinet/:id/sankey.webp", analyticsHandlers.HandleEpinetSankeyImage)
		}
	}

	return r
}
