package services

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"spatialization-module/internal/core/domain"
	"spatialization-module/internal/core/ports/output"
)

type PipelineService struct {
	fs       afero.Fs
	resolver ports.BoundaryResolver
	masker   ports.RasterMasker
	builder  *RegionTreeBuilder
	metrics  ports.MetricsRecorder
}

func NewPipelineService(fs afero.Fs, resolver ports.BoundaryResolver, masker ports.RasterMasker, metrics ports.MetricsRecorder) *PipelineService {
	return &PipelineService{
		fs:       fs,
		resolver: resolver,
		masker:   masker,
		builder:  NewRegionTreeBuilder(masker),
		metrics:  metrics,
	}
}

// Run builds one region tree per unit (or one flat clip per unit and asset)
// and reports every unit. The error is only set when the request itself is
// unusable; unit failures are part of the report.
func (s *PipelineService) Run(ctx context.Context, req domain.PipelineRequest) (*domain.RunReport, error) {
	if req.Mode == "" {
		req.Mode = domain.JobModeTree
	}
	if req.FlatSubdir == "" {
		req.FlatSubdir = domain.DefaultFlatSubdir
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	levels, err := s.loadLevels(ctx, req.Levels)
	if err != nil {
		return nil, err
	}

	driver, err := NewBatchDriver(req.Options, s.metrics)
	if err != nil {
		return nil, err
	}

	report := &domain.RunReport{
		ID:        uuid.New(),
		Mode:      req.Mode,
		Options:   req.Options,
		StartedAt: time.Now().UTC(),
		Roots:     make([]*domain.RegionNode, len(req.Units)),
	}
	index := make(map[string]int, len(req.Units))
	for i, u := range req.Units {
		index[u] = i
	}

	logger := log.WithFields(log.Fields{
		"run":     report.ID,
		"mode":    req.Mode,
		"units":   len(req.Units),
		"workers": req.Options.WorkerCount,
	})
	logger.Info("Pipeline run started")

	var process ProcessFunc
	switch req.Mode {
	case domain.JobModeTree:
		process = func(ctx context.Context, unit string) ([]domain.MaskOutcome, error) {
			root, outcomes := s.newRoot(unit, req.Assets)
			// each worker owns a distinct slot
			report.Roots[index[unit]] = root
			built, err := s.builder.BuildTree(ctx, root, levels, req.Options.Overwrite)
			return append(outcomes, built...), err
		}
	case domain.JobModeFlat:
		process = func(ctx context.Context, unit string) ([]domain.MaskOutcome, error) {
			root, outcomes, err := s.flatUnit(ctx, unit, levels[0], req)
			report.Roots[index[unit]] = root
			return outcomes, err
		}
	}

	report.Units = driver.Run(ctx, req.Units, process)
	report.FinishedAt = time.Now().UTC()

	counts := report.Counts()
	logger.WithFields(log.Fields{
		"success":        counts[domain.OutcomeSuccess],
		"skipped_cached": counts[domain.OutcomeSkippedCached],
		"failed":         counts[domain.OutcomeFailed],
		"elapsed":        report.FinishedAt.Sub(report.StartedAt),
	}).Info("Pipeline run finished")
	return report, nil
}

// loadLevels reads every boundary level once; the sets are shared read-only
// by all workers.
func (s *PipelineService) loadLevels(ctx context.Context, specs []domain.BoundarySpec) ([]LevelSpec, error) {
	levels := make([]LevelSpec, 0, len(specs))
	for i, spec := range specs {
		src, err := s.resolver.Resolve(spec)
		if err != nil {
			return nil, fmt.Errorf("level %d: %w", i, err)
		}
		set, err := src.Load(ctx)
		if err != nil {
			return nil, fmt.Errorf("level %d: load %s boundaries: %w", i, spec.Kind, err)
		}
		log.WithFields(log.Fields{
			"level":   i,
			"kind":    spec.Kind,
			"records": len(set.Records),
			"crs":     set.CRS,
		}).Debug("Boundaries loaded")
		levels = append(levels, LevelSpec{
			Boundaries:      set,
			SubregionColumn: spec.SubregionColumn,
			ParentColumn:    spec.ParentColumn,
		})
	}
	return levels, nil
}

// newRoot registers the unit's assets. A missing asset fails only its own
// registration.
func (s *PipelineService) newRoot(unit string, specs []domain.AssetSpec) (*domain.RegionNode, []domain.MaskOutcome) {
	root := domain.NewRootRegion(unit)
	var outcomes []domain.MaskOutcome
	for _, spec := range specs {
		asset, err := s.registerAsset(spec, unit)
		if err != nil {
			log.WithError(err).WithFields(log.Fields{"unit": unit, "asset": spec.Name}).Warn("Asset registration failed")
			outcomes = append(outcomes, domain.FailedOutcome(unit, spec.Name, "", err))
			continue
		}
		// level 0 matches the root by construction
		_ = root.AttachAsset(asset)
	}
	return root, outcomes
}

func (s *PipelineService) registerAsset(spec domain.AssetSpec, unit string) (domain.GeoAsset, error) {
	path := spec.PathFor(unit)
	kind, ok := domain.KindForPath(path)
	if !ok {
		return domain.GeoAsset{}, fmt.Errorf("%s: %w", path, domain.ErrAssetKindMismatch)
	}
	asset, err := domain.NewGeoAsset(s.fs, path, kind, spec.Name, spec.Year, 0)
	if err != nil {
		return domain.GeoAsset{}, err
	}
	return asset.WithCRS(spec.CRS), nil
}

// FlatPath is the output of a flat job: <asset dir>/<subdir>/<unit><ext>.
func FlatPath(asset domain.GeoAsset, subdir, unit string) string {
	return filepath.Join(asset.Dir(), subdir, domain.SafeFileName(unit)+asset.Ext())
}

// flatUnit clips every asset by the unit's own boundary row. The returned root
// holds the produced rasters, ready to seed a tree run.
func (s *PipelineService) flatUnit(ctx context.Context, unit string, level LevelSpec, req domain.PipelineRequest) (*domain.RegionNode, []domain.MaskOutcome, error) {
	rec, ok := level.Boundaries.Find(level.SubregionColumn, unit)
	if !ok {
		return nil, nil, fmt.Errorf("%s in column %s: %w", unit, level.SubregionColumn, domain.ErrUnitNotFound)
	}
	if rec.Geometry == nil {
		return nil, nil, fmt.Errorf("unit %s: %w", unit, domain.ErrInvalidGeometry)
	}

	root := domain.NewRootRegion(unit)
	root.Geometry = rec.Geometry
	root.CRS = level.Boundaries.CRS

	var outcomes []domain.MaskOutcome
	for _, spec := range req.Assets {
		source, err := s.registerAsset(spec, unit)
		if err != nil {
			outcomes = append(outcomes, domain.FailedOutcome(unit, spec.Name, "", err))
			continue
		}
		if !source.IsRaster() {
			continue
		}

		out := FlatPath(source, req.FlatSubdir, unit)
		res, err := s.masker.Mask(ctx, domain.MaskJob{
			Source:     source,
			Polygon:    rec.Geometry,
			PolygonCRS: root.CRS,
			OutputPath: out,
			Overwrite:  req.Options.Overwrite,
		})
		if err != nil {
			log.WithError(err).WithFields(log.Fields{"unit": unit, "asset": spec.Name}).Warn("Masking failed")
			outcomes = append(outcomes, domain.FailedOutcome(unit, spec.Name, out, err))
			continue
		}
		_ = root.AttachAsset(res.Asset)

		status := domain.OutcomeSuccess
		if res.Cached {
			status = domain.OutcomeSkippedCached
		}
		outcomes = append(outcomes, domain.MaskOutcome{
			RegionID:   unit,
			AssetName:  spec.Name,
			OutputPath: out,
			Status:     status,
		})
	}
	return root, outcomes, nil
}
