package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/ctessum/geom"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"spatialization-module/internal/core/domain"
	"spatialization-module/internal/core/ports/output"
)

type RasterMaskService struct {
	fs          afero.Fs
	store       ports.RasterStore
	reprojector ports.Reprojector
	metrics     ports.MetricsRecorder
}

// NewRasterMaskService creates the masker. reprojector and metrics may be nil;
// without a reprojector any CRS mismatch fails the job.
func NewRasterMaskService(fs afero.Fs, store ports.RasterStore, reprojector ports.Reprojector, metrics ports.MetricsRecorder) *RasterMaskService {
	return &RasterMaskService{
		fs:          fs,
		store:       store,
		reprojector: reprojector,
		metrics:     metrics,
	}
}

// Mask clips job.Source to the bounding window of job.Polygon and blanks the
// pixels whose centre lies outside the polygon. An existing output is reused
// unless job.Overwrite is set.
func (s *RasterMaskService) Mask(ctx context.Context, job domain.MaskJob) (*domain.MaskResult, error) {
	start := time.Now()
	res, err := s.mask(ctx, job)

	status := domain.OutcomeSuccess
	switch {
	case err != nil:
		status = domain.OutcomeFailed
	case res.Cached:
		status = domain.OutcomeSkippedCached
	}
	if s.metrics != nil {
		s.metrics.ObserveMask(status, time.Since(start))
	}
	return res, err
}

func (s *RasterMaskService) mask(ctx context.Context, job domain.MaskJob) (*domain.MaskResult, error) {
	if !job.Source.IsRaster() {
		return nil, fmt.Errorf("%s: %w", job.Source.Path, domain.ErrNotRaster)
	}
	if polygonEmpty(job.Polygon) {
		return nil, domain.ErrEmptyPolygon
	}

	exists, err := afero.Exists(s.fs, job.OutputPath)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w: %w", job.OutputPath, domain.ErrIOFailure, err)
	}
	if exists && !job.Overwrite {
		asset, err := s.newOutputAsset(job)
		if err != nil {
			return nil, err
		}
		return &domain.MaskResult{Asset: asset, Cached: true}, nil
	}

	ds, err := s.store.Open(ctx, job.Source.Path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", job.Source.Path, err)
	}
	defer ds.Close()

	meta := ds.Meta()
	rasterCRS := job.Source.CRS
	if rasterCRS == "" {
		rasterCRS = meta.CRS
	}

	poly, err := s.reconcile(job.Polygon, job.PolygonCRS, rasterCRS)
	if err != nil {
		return nil, err
	}

	win, ok := meta.WindowFor(poly.Bounds())
	if !ok {
		return nil, fmt.Errorf("%s: %w", job.Source.Path, domain.ErrEmptyIntersection)
	}

	block, err := ds.ReadWindow(ctx, win)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", job.Source.Path, err)
	}

	out := meta
	out.Width, out.Height = win.Width, win.Height
	out.Transform = meta.Transform.Offset(win.Col, win.Row)
	out.CRS = rasterCRS

	inside := RasterizePolygon(poly, out.Transform, win.Width, win.Height)
	if applyMask(block, inside, out.Fill()) == 0 {
		return nil, fmt.Errorf("%s: no pixel centre inside polygon: %w", job.Source.Path, domain.ErrEmptyIntersection)
	}

	if err := s.fs.MkdirAll(filepath.Dir(job.OutputPath), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w: %w", filepath.Dir(job.OutputPath), domain.ErrIOFailure, err)
	}
	if err := s.store.Write(ctx, job.OutputPath, out, block); err != nil {
		if errors.Is(err, domain.ErrIOFailure) {
			return nil, fmt.Errorf("write %s: %w", job.OutputPath, err)
		}
		return nil, fmt.Errorf("write %s: %w: %w", job.OutputPath, domain.ErrIOFailure, err)
	}

	log.WithFields(log.Fields{
		"source": job.Source.Path,
		"output": job.OutputPath,
		"window": fmt.Sprintf("%d,%d %dx%d", win.Col, win.Row, win.Width, win.Height),
	}).Debug("Raster masked")

	asset, err := s.newOutputAsset(job)
	if err != nil {
		return nil, err
	}
	return &domain.MaskResult{Asset: asset}, nil
}

func (s *RasterMaskService) newOutputAsset(job domain.MaskJob) (domain.GeoAsset, error) {
	asset, err := domain.NewGeoAsset(s.fs, job.OutputPath, domain.AssetKindRaster, job.Source.Name, job.Source.Year, job.Level)
	if err != nil {
		return domain.GeoAsset{}, err
	}
	return asset.WithCRS(job.Source.CRS), nil
}

// reconcile returns the polygon expressed in the raster CRS. The raster is
// never reprojected.
func (s *RasterMaskService) reconcile(poly geom.Polygonal, polyCRS, rasterCRS string) (geom.Polygonal, error) {
	if polyCRS == "" || rasterCRS == "" || domain.SameCRS(polyCRS, rasterCRS) {
		return poly, nil
	}
	if s.reprojector == nil {
		return nil, fmt.Errorf("%s -> %s: no reprojector: %w", polyCRS, rasterCRS, domain.ErrCRSReconciliation)
	}
	out, err := s.reprojector.Reproject(poly, polyCRS, rasterCRS)
	if err != nil {
		return nil, fmt.Errorf("%s -> %s: %w: %w", polyCRS, rasterCRS, domain.ErrCRSReconciliation, err)
	}
	if polygonEmpty(out) {
		return nil, fmt.Errorf("%s -> %s: empty result: %w", polyCRS, rasterCRS, domain.ErrCRSReconciliation)
	}
	return out, nil
}

func polygonEmpty(p geom.Polygonal) bool {
	if p == nil {
		return true
	}
	for _, poly := range p.Polygons() {
		for _, ring := range poly {
			if len(ring) >= 3 {
				return false
			}
		}
	}
	return true
}

// applyMask sets every pixel outside the mask to fill and returns the number
// of pixels kept.
func applyMask(block *domain.RasterBlock, inside []bool, fill float64) int {
	kept := 0
	for i, in := range inside {
		if in {
			kept++
			continue
		}
		for b := range block.Data {
			block.Data[b][i] = fill
		}
	}
	return kept
}

type pixelEdge struct {
	x0, y0, x1, y1 float64
}

// RasterizePolygon marks the pixels of a width x height grid, georeferenced by
// t, whose centre falls inside p. Rings are combined with the even-odd rule so
// holes are excluded.
func RasterizePolygon(p geom.Polygonal, t domain.GeoTransform, width, height int) []bool {
	inside := make([]bool, width*height)

	var edges []pixelEdge
	for _, poly := range p.Polygons() {
		for _, ring := range poly {
			n := len(ring)
			for i := 0; i < n; i++ {
				a, b := ring[i], ring[(i+1)%n]
				x0, y0 := t.WorldToPixel(a.X, a.Y)
				x1, y1 := t.WorldToPixel(b.X, b.Y)
				if y0 == y1 {
					continue
				}
				edges = append(edges, pixelEdge{x0, y0, x1, y1})
			}
		}
	}

	xs := make([]float64, 0, 16)
	for row := 0; row < height; row++ {
		yc := float64(row) + 0.5
		xs = xs[:0]
		for _, e := range edges {
			if (e.y0 <= yc) != (e.y1 <= yc) {
				xs = append(xs, e.x0+(yc-e.y0)*(e.x1-e.x0)/(e.y1-e.y0))
			}
		}
		if len(xs) == 0 {
			continue
		}
		sort.Float64s(xs)
		for col := 0; col < width; col++ {
			// crossings strictly left of the centre
			if sort.SearchFloat64s(xs, float64(col)+0.5)%2 == 1 {
				inside[row*width+col] = true
			}
		}
	}
	return inside
}
