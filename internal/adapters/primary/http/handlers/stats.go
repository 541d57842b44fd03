package handlers

import (
	"fmt"
	"net/http"

	"spatialization-module/internal/adapters/primary/http/dto"
	"spatialization-module/internal/core/domain"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

func (h *Handler) RasterStats(c *gin.Context) {
	var req dto.RasterStatsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sums, err := h.statsSvc.Summarize(c.Request.Context(), req.Path)
	if err != nil {
		mapDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToRasterStatsResponse(req.Path, sums))
}

// RunStats summarizes one asset over the region trees of a finished run.
// Regions whose raster cannot be read are listed under errors; the others
// are still returned.
func (h *Handler) RunStats(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run id"})
		return
	}
	asset := c.Query("asset")
	if asset == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "asset query parameter is required"})
		return
	}

	run, err := h.runSvc.Get(c.Request.Context(), id)
	if err != nil {
		mapDomainError(c, err)
		return
	}
	if run.Report == nil {
		mapDomainError(c, fmt.Errorf("run %s is %s: %w", run.ID, run.Status, domain.ErrRunHasNoReport))
		return
	}

	sums, err := h.statsSvc.SummarizeRun(c.Request.Context(), run.Report, asset)
	if err != nil {
		log.WithError(err).WithField("run_id", run.ID).Warn("run stats incomplete")
	}

	c.JSON(http.StatusOK, dto.ToRunStatsResponse(run.ID, asset, sums, err))
}
