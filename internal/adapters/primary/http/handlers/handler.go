package handlers

import (
	"context"

	"spatialization-module/internal/core/domain"
	"spatialization-module/internal/core/services"

	"github.com/gin-gonic/gin"
)

// Pinger reports whether a backing dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RunDefaults fill in what a submitted run leaves out.
type RunDefaults struct {
	Options    domain.RunOptions
	FlatSubdir string
}

type Handler struct {
	runSvc      *services.RunService
	regionalSvc *services.RegionalFitService
	curveSvc    *services.CurveFitService
	statsSvc    *services.RasterStatsService
	defaults    RunDefaults
	db          Pinger
}

func New(
	runSvc *services.RunService,
	regionalSvc *services.RegionalFitService,
	curveSvc *services.CurveFitService,
	statsSvc *services.RasterStatsService,
	defaults RunDefaults,
	db Pinger,
) *Handler {
	return &Handler{
		runSvc:      runSvc,
		regionalSvc: regionalSvc,
		curveSvc:    curveSvc,
		statsSvc:    statsSvc,
		defaults:    defaults,
		db:          db,
	}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	// Pipeline runs
	r.POST("/runs", h.SubmitRun)
	r.GET("/runs", h.ListRuns)
	r.GET("/runs/:id", h.GetRun)
	r.GET("/runs/:id/stats", h.RunStats)

	// Fits
	r.POST("/fits/regional", h.FitRegional)
	r.POST("/fits/:kind", h.FitCurve)

	// Raster statistics
	r.POST("/stats", h.RasterStats)
}
