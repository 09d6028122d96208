package handlers

import (
	"time"

	"github.com/frostdev-ops/pma-solar-go/pkg/utils"
	"github.com/gin-gonic/gin"
)

// Health returns the health status of the service
func (h *Handlers) Health(c *gin.Context) {
	haReachable := true
	if err := h.ha.CheckAPI(c.Request.Context()); err != nil {
		haReachable = false
	}

	health := gin.H{
		"status":         "healthy",
		"timestamp":      time.Now().Format(time.RFC3339),
		"service":        "pma-solar-go",
		"version":        "1.0.0",
		"home_assistant": haReachable,
		"state_restored": h.engine.Restored(),
		"websocket":      h.wsHub.Stats(),
	}

	utils.SendSuccess(c, health)
}
