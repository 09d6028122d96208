package handlers

import (
	"net/http"
	"strconv"

	"github.com/frostdev-ops/pma-solar-go/pkg/utils"
	"github.com/gin-gonic/gin"
)

const defaultEventLimit = 50

// GetEvents returns the most recent fired notification events.
func (h *Handlers) GetEvents(c *gin.Context) {
	limit := defaultEventLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			utils.SendError(c, http.StatusBadRequest, "Invalid limit parameter")
			return
		}
		limit = parsed
	}

	entries, err := h.repos.EventLog.Recent(c.Request.Context(), h.cfg.Solar.Instance, limit)
	if err != nil {
		h.log.WithError(err).Error("Failed to load event log")
		utils.SendError(c, http.StatusInternalServerError, "Failed to load event log")
		return
	}

	utils.SendSuccess(c, gin.H{"events": entries, "count": len(entries)})
}
