package handlers

import (
	"net/http"

	"spatialization-module/internal/adapters/primary/http/dto"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// FitRegional answers 200 even when the solver did not converge; the body
// carries success=false and the solver message. Without a tolerance in the
// request the configured pipeline tolerance applies.
func (h *Handler) FitRegional(c *gin.Context) {
	var req dto.RegionalFitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	in := dto.ToRegionalFitInput(&req)
	if in.TolerancePercentage == nil {
		in.TolerancePercentage = h.defaults.Options.TolerancePercentage
	}

	res, err := h.regionalSvc.Fit(c.Request.Context(), in)
	if err != nil {
		log.WithError(err).WithField("name", req.Name).Error("regional fit failed")
		mapDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToRegionalFitResponse(res))
}

// FitCurve fits the curve family named by the kind path parameter.
func (h *Handler) FitCurve(c *gin.Context) {
	var req dto.CurveFitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	kind := c.Param("kind")
	res, err := h.curveSvc.Fit(c.Request.Context(), dto.ToCurveFitInput(kind, &req))
	if err != nil {
		log.WithError(err).WithFields(log.Fields{"name": req.Name, "kind": kind}).Error("curve fit failed")
		mapDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToCurveFitResponse(res))
}
