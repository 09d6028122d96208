package handlers

import (
	"net/http"

	"github.com/frostdev-ops/pma-solar-go/pkg/utils"
	"github.com/gin-gonic/gin"
)

// GetMetrics returns the full derived metrics report.
func (h *Handlers) GetMetrics(c *gin.Context) {
	report := h.engine.Report(c.Request.Context())
	utils.SendSuccess(c, report)
}

// GetSnapshot returns the raw persisted accumulator state, useful when
// debugging restore issues.
func (h *Handlers) GetSnapshot(c *gin.Context) {
	utils.SendSuccess(c, h.engine.Snapshot())
}

// ResetGridImport clears the grid import tracking window so quota accounting
// restarts from the current meter reading.
func (h *Handlers) ResetGridImport(c *gin.Context) {
	h.engine.ResetGridImportTracking()
	h.log.Info("Grid import tracking reset via API")
	utils.SendSuccess(c, gin.H{"reset": "grid_import"})
}

// ResetBenchmark restarts the production benchmark window.
func (h *Handlers) ResetBenchmark(c *gin.Context) {
	h.engine.ResetBenchmarkTracking()
	h.log.Info("Benchmark tracking reset via API")
	utils.SendSuccess(c, gin.H{"reset": "benchmark"})
}

// ResetStrings clears per-string energy accumulation and peak history.
func (h *Handlers) ResetStrings(c *gin.Context) {
	h.engine.ResetStringTracking()
	h.log.Info("String tracking reset via API")
	utils.SendSuccess(c, gin.H{"reset": "strings"})
}

// Rebootstrap re-seeds the savings baseline from current meter totals and
// re-arms the notification latches.
func (h *Handlers) Rebootstrap(c *gin.Context) {
	h.engine.Rebootstrap(c.Request.Context())
	h.log.Info("Engine rebootstrapped via API")
	utils.SendSuccess(c, gin.H{"rebootstrapped": true})
}

// PersistNow forces an immediate snapshot save.
func (h *Handlers) PersistNow(c *gin.Context) {
	if err := h.engine.SaveSnapshot(c.Request.Context()); err != nil {
		h.log.WithError(err).Error("Manual snapshot save failed")
		utils.SendError(c, http.StatusInternalServerError, "Failed to save snapshot")
		return
	}
	utils.SendSuccess(c, gin.H{"persisted": true})
}
