package ports

import (
	"context"

	"spatialization-module/internal/core/domain"
)

// BoundarySource loads a boundary dataset.
type BoundarySource interface {
	Load(ctx context.Context) (*domain.BoundarySet, error)
}

// BoundaryResolver maps a BoundarySpec onto a concrete source.
type BoundaryResolver interface {
	Resolve(spec domain.BoundarySpec) (BoundarySource, error)
}
