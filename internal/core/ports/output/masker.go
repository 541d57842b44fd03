package ports

import (
	"context"

	"spatialization-module/internal/core/domain"
)

// RasterMasker clips one raster asset by one polygon.
type RasterMasker interface {
	Mask(ctx context.Context, job domain.MaskJob) (*domain.MaskResult, error)
}
