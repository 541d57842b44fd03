package handlers

import (
	"errors"
	"io/fs"
	"net/http"

	"spatialization-module/internal/core/domain"

	"github.com/gin-gonic/gin"
)

func mapDomainError(c *gin.Context, err error) {
	switch {
	// Not found errors
	case errors.Is(err, domain.ErrRunNotFound),
		errors.Is(err, domain.ErrAssetNotFound),
		errors.Is(err, domain.ErrUnitNotFound),
		errors.Is(err, fs.ErrNotExist):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})

	// Bad request / validation errors
	case errors.Is(err, domain.ErrInvalidRunRequest),
		errors.Is(err, domain.ErrInvalidJobMode),
		errors.Is(err, domain.ErrInvalidConcurrencyMode),
		errors.Is(err, domain.ErrInvalidWorkerCount),
		errors.Is(err, domain.ErrUnsupportedBoundarySource),
		errors.Is(err, domain.ErrInvalidFitInput),
		errors.Is(err, domain.ErrAssetKindMismatch),
		errors.Is(err, domain.ErrInvalidAssetKind),
		errors.Is(err, domain.ErrNotRaster):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})

	// Conflicts with the run state
	case errors.Is(err, domain.ErrRunHasNoReport):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})

	// Unprocessable inputs
	case errors.Is(err, domain.ErrUnsupportedRaster):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})

	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
