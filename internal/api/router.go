package api

import (
	"github.com/frostdev-ops/pma-solar-go/internal/adapters/homeassistant"
	"github.com/frostdev-ops/pma-solar-go/internal/api/handlers"
	"github.com/frostdev-ops/pma-solar-go/internal/api/middleware"
	"github.com/frostdev-ops/pma-solar-go/internal/config"
	"github.com/frostdev-ops/pma-solar-go/internal/core/solar"
	"github.com/frostdev-ops/pma-solar-go/internal/database"
	"github.com/frostdev-ops/pma-solar-go/internal/websocket"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// NewRouter creates and configures the main HTTP router
func NewRouter(cfg *config.Config, repos *database.Repositories, logger *logrus.Logger, wsHub *websocket.Hub, engine *solar.Engine, ha *homeassistant.RESTClient) *gin.Engine {
	if cfg.Server.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()

	// Global middleware
	router.Use(middleware.ErrorHandlingMiddleware(logger))
	router.Use(middleware.LoggingMiddleware(logger))
	router.Use(middleware.CORSMiddleware())

	h := handlers.NewHandlers(cfg, repos, logger, wsHub, engine, ha)

	router.GET("/health", h.Health)
	router.GET("/ws", h.WebSocketHandler(wsHub))

	api := router.Group("/api/v1")
	{
		solarGroup := api.Group("/solar")
		{
			solarGroup.GET("/metrics", h.GetMetrics)
			solarGroup.GET("/snapshot", h.GetSnapshot)
			solarGroup.GET("/events", h.GetEvents)
			solarGroup.POST("/persist", h.PersistNow)
			solarGroup.POST("/rebootstrap", h.Rebootstrap)

			reset := solarGroup.Group("/reset")
			{
				reset.POST("/grid-import", h.ResetGridImport)
				reset.POST("/benchmark", h.ResetBenchmark)
				reset.POST("/strings", h.ResetStrings)
			}
		}

		ws := api.Group("/websocket")
		{
			ws.GET("/stats", h.GetWebSocketStats(wsHub))
		}
	}

	return router
}
