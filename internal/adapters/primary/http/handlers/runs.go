package handlers

import (
	"net/http"

	"spatialization-module/internal/adapters/primary/http/dto"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

func (h *Handler) SubmitRun(c *gin.Context) {
	var req dto.SubmitRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	run, err := h.runSvc.Submit(c.Request.Context(), dto.ToPipelineRequest(&req, h.defaults.Options, h.defaults.FlatSubdir))
	if err != nil {
		log.WithError(err).Warn("submit run rejected")
		mapDomainError(c, err)
		return
	}

	c.Header("Location", "runs/"+run.ID.String())
	c.JSON(http.StatusAccepted, dto.ToRunResponse(run))
}

func (h *Handler) ListRuns(c *gin.Context) {
	runs, err := h.runSvc.List(c.Request.Context())
	if err != nil {
		log.WithError(err).Error("list runs failed")
		mapDomainError(c, err)
		return
	}

	items := make([]dto.RunResponse, 0, len(runs))
	for _, r := range runs {
		items = append(items, dto.ToRunResponse(r))
	}

	c.JSON(http.StatusOK, dto.ListRunsResponse{Items: items, Total: len(items)})
}

func (h *Handler) GetRun(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run id"})
		return
	}

	run, err := h.runSvc.Get(c.Request.Context(), id)
	if err != nil {
		mapDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToRunResponse(run))
}
