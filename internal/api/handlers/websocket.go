package handlers

import (
	"github.com/frostdev-ops/pma-solar-go/internal/websocket"
	"github.com/frostdev-ops/pma-solar-go/pkg/utils"
	"github.com/gin-gonic/gin"
)

// WebSocketHandler upgrades the connection and registers it with the hub.
func (h *Handlers) WebSocketHandler(hub *websocket.Hub) gin.HandlerFunc {
	return websocket.HandleWebSocketGin(hub)
}

// GetWebSocketStats returns hub connection statistics.
func (h *Handlers) GetWebSocketStats(hub *websocket.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		utils.SendSuccess(c, hub.Stats())
	}
}
