package services

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"

	"spatialization-module/internal/core/domain"
	"spatialization-module/internal/core/ports/output"
)

// BuildRequest is one level of partitioning: the boundary rows and the columns
// linking a subregion to its parent.
type BuildRequest struct {
	Boundaries      *domain.BoundarySet
	SubregionColumn string
	ParentColumn    string
	Overwrite       bool
}

func (r BuildRequest) validate() error {
	if r.Boundaries == nil {
		return fmt.Errorf("no boundaries: %w", domain.ErrInvalidRunRequest)
	}
	if strings.TrimSpace(r.SubregionColumn) == "" || strings.TrimSpace(r.ParentColumn) == "" {
		return fmt.Errorf("subregion and parent columns are required: %w", domain.ErrInvalidRunRequest)
	}
	return nil
}

// LevelSpec is a loaded boundary level of a tree build.
type LevelSpec struct {
	Boundaries      *domain.BoundarySet
	SubregionColumn string
	ParentColumn    string
}

type RegionTreeBuilder struct {
	masker ports.RasterMasker
}

func NewRegionTreeBuilder(masker ports.RasterMasker) *RegionTreeBuilder {
	return &RegionTreeBuilder{masker: masker}
}

// SubregionPath is the deterministic output location of asset clipped to child:
// <asset dir>/<parent id>/subregions/<child id><ext>.
func SubregionPath(asset domain.GeoAsset, parentID, childID string) string {
	return filepath.Join(asset.Dir(), domain.SafeFileName(parentID), "subregions", domain.SafeFileName(childID)+asset.Ext())
}

// Build appends one child to node per boundary row whose parent column equals
// node.ID, in row order, and masks every raster asset of node into each child.
// Per-item failures are returned as outcomes; the error is reserved for an
// unusable request.
func (b *RegionTreeBuilder) Build(ctx context.Context, node *domain.RegionNode, req BuildRequest) ([]domain.MaskOutcome, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	logger := log.WithFields(log.Fields{"region": node.ID, "level": node.Level})
	rows := req.Boundaries.ChildrenOf(req.ParentColumn, node.ID)
	if len(rows) == 0 {
		logger.Debug("No subregions found")
		return nil, nil
	}

	// a repeated id would share its sibling's output path
	seen := make(map[string]bool, len(rows)+len(node.Children))
	for _, c := range node.Children {
		seen[c.ID] = true
	}

	var outcomes []domain.MaskOutcome
	for _, row := range rows {
		id := strings.TrimSpace(row.Attr(req.SubregionColumn))
		if id == "" {
			outcomes = append(outcomes, b.failed(node, id, "", "", domain.ErrMissingRegionID))
			logger.WithField("column", req.SubregionColumn).Warn("Skipping boundary row without identifier")
			continue
		}
		if seen[id] {
			outcomes = append(outcomes, b.failed(node, id, "", "", domain.ErrDuplicateRegion))
			logger.WithField("subregion", id).Warn("Skipping repeated subregion")
			continue
		}
		seen[id] = true

		child, err := node.NewChild(id, row.Geometry, req.Boundaries.CRS)
		if err != nil {
			outcomes = append(outcomes, b.failed(node, id, "", "", err))
			logger.WithError(err).WithField("subregion", id).Warn("Skipping subregion")
			continue
		}

		for _, asset := range node.Assets {
			if !asset.IsRaster() {
				logger.WithField("asset", asset.Name).Debug("Vector asset is not propagated")
				continue
			}
			outcomes = append(outcomes, b.maskInto(ctx, node, child, asset, req))
		}
	}
	return outcomes, nil
}

func (b *RegionTreeBuilder) maskInto(ctx context.Context, parent, child *domain.RegionNode, asset domain.GeoAsset, req BuildRequest) domain.MaskOutcome {
	out := SubregionPath(asset, parent.ID, child.ID)
	res, err := b.masker.Mask(ctx, domain.MaskJob{
		Source:     asset,
		Polygon:    child.Geometry,
		PolygonCRS: child.CRS,
		OutputPath: out,
		Overwrite:  req.Overwrite,
		Level:      child.Level,
	})
	if err != nil {
		log.WithError(err).WithFields(log.Fields{
			"region": child.ID,
			"parent": parent.ID,
			"asset":  asset.Name,
		}).Warn("Masking failed")
		return b.failed(parent, child.ID, asset.Name, out, err)
	}

	if err := child.AttachAsset(res.Asset); err != nil {
		return b.failed(parent, child.ID, asset.Name, out, err)
	}

	status := domain.OutcomeSuccess
	if res.Cached {
		status = domain.OutcomeSkippedCached
	}
	return domain.MaskOutcome{
		RegionID:   child.ID,
		ParentID:   parent.ID,
		AssetName:  asset.Name,
		OutputPath: out,
		Status:     status,
	}
}

func (b *RegionTreeBuilder) failed(parent *domain.RegionNode, regionID, assetName, out string, err error) domain.MaskOutcome {
	o := domain.FailedOutcome(regionID, assetName, out, err)
	o.ParentID = parent.ID
	return o
}

// BuildTree partitions root with levels[0], then every new child with
// levels[1], and so on. The tree depth is bounded by len(levels).
func (b *RegionTreeBuilder) BuildTree(ctx context.Context, root *domain.RegionNode, levels []LevelSpec, overwrite bool) ([]domain.MaskOutcome, error) {
	if len(levels) == 0 {
		return nil, nil
	}
	lvl := levels[0]
	outcomes, err := b.Build(ctx, root, BuildRequest{
		Boundaries:      lvl.Boundaries,
		SubregionColumn: lvl.SubregionColumn,
		ParentColumn:    lvl.ParentColumn,
		Overwrite:       overwrite,
	})
	if err != nil {
		return outcomes, err
	}

	for _, child := range root.Children {
		sub, err := b.BuildTree(ctx, child, levels[1:], overwrite)
		outcomes = append(outcomes, sub...)
		if err != nil {
			return outcomes, err
		}
	}
	return outcomes, nil
}
