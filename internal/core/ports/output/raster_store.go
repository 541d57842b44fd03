package ports

import (
	"context"

	"spatialization-module/internal/core/domain"
)

// RasterStore opens and writes georeferenced rasters.
type RasterStore interface {
	Open(ctx context.Context, path string) (RasterDataset, error)
	// Write stores block under path atomically. An existing file is replaced.
	Write(ctx context.Context, path string, meta domain.RasterMeta, block *domain.RasterBlock) error
}

// RasterDataset is an open raster. Callers must Close it.
type RasterDataset interface {
	Meta() domain.RasterMeta
	ReadWindow(ctx context.Context, w domain.Window) (*domain.RasterBlock, error)
	Close() error
}
