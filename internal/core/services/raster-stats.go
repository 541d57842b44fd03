package services

import (
	"context"
	"errors"
	"fmt"
	"math"

	log "github.com/sirupsen/logrus"

	"spatialization-module/internal/core/domain"
	"spatialization-module/internal/core/ports/output"
)

// RasterStatsService aggregates pixel values of masked rasters.
type RasterStatsService struct {
	store ports.RasterStore
}

func NewRasterStatsService(store ports.RasterStore) *RasterStatsService {
	return &RasterStatsService{store: store}
}

// Summarize returns one summary per band. NoData and NaN pixels are ignored.
func (s *RasterStatsService) Summarize(ctx context.Context, path string) ([]domain.RasterSummary, error) {
	ds, err := s.store.Open(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer ds.Close()

	meta := ds.Meta()
	block, err := ds.ReadWindow(ctx, domain.Window{Width: meta.Width, Height: meta.Height})
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	out := make([]domain.RasterSummary, block.Bands())
	for b, band := range block.Data {
		sum := domain.RasterSummary{Path: path, Band: b}
		for _, v := range band {
			if math.IsNaN(v) || meta.IsNoData(v) {
				continue
			}
			sum.Sum += v
			sum.ValidPixels++
		}
		sum.Area = float64(sum.ValidPixels) * meta.PixelArea()
		out[b] = sum
	}
	return out, nil
}

// SummarizeTree summarizes band 0 of the named asset on every node holding it.
// Nodes with children also carry the total of their summarized children.
// Nodes that cannot be read are skipped and reported in the joined error.
func (s *RasterStatsService) SummarizeTree(ctx context.Context, root *domain.RegionNode, assetName string) ([]domain.NodeSummary, error) {
	var (
		out  []domain.NodeSummary
		errs []error
	)
	sums := make(map[*domain.RegionNode]float64)
	_ = root.Walk(func(n *domain.RegionNode) error {
		asset, ok := n.Asset(assetName)
		if !ok || !asset.IsRaster() {
			return nil
		}
		bands, err := s.Summarize(ctx, asset.Path)
		if err != nil {
			log.WithError(err).WithField("region", n.ID).Warn("Raster summary failed")
			errs = append(errs, fmt.Errorf("region %s: %w", n.ID, err))
			return nil
		}
		if len(bands) == 0 {
			return nil
		}
		sums[n] = bands[0].Sum
		out = append(out, domain.NodeSummary{
			RegionID: n.ID,
			Level:    n.Level,
			Asset:    assetName,
			Summary:  bands[0],
		})
		return nil
	})

	i := 0
	_ = root.Walk(func(n *domain.RegionNode) error {
		if _, ok := sums[n]; !ok {
			return nil
		}
		if n.HasChildren() {
			var total float64
			var found bool
			for _, c := range n.Children {
				if v, ok := sums[c]; ok {
					total += v
					found = true
				}
			}
			if found {
				out[i].ChildrenSum = &total
			}
		}
		i++
		return nil
	})
	return out, errors.Join(errs...)
}

// SummarizeRun summarizes the named asset across every unit tree of a run.
func (s *RasterStatsService) SummarizeRun(ctx context.Context, report *domain.RunReport, assetName string) ([]domain.NodeSummary, error) {
	var (
		out  []domain.NodeSummary
		errs []error
	)
	for _, root := range report.Roots {
		if root == nil {
			continue
		}
		sums, err := s.SummarizeTree(ctx, root, assetName)
		out = append(out, sums...)
		if joined, ok := err.(interface{ Unwrap() []error }); ok {
			errs = append(errs, joined.Unwrap()...)
		} else if err != nil {
			errs = append(errs, err)
		}
	}
	return out, errors.Join(errs...)
}
