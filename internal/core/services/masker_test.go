package services

import (
	"context"
	"errors"
	"testing"

	"github.com/ctessum/geom"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"spatialization-module/internal/adapters/secondary/geotiff"
	"spatialization-module/internal/core/domain"
	"spatialization-module/internal/core/ports/output"
	"spatialization-module/internal/testutil"
)

const sourcePath = "/data/population.tif"

// countingStore counts how often a raster is opened.
type countingStore struct {
	ports.RasterStore
	opens int
}

func (s *countingStore) Open(ctx context.Context, path string) (ports.RasterDataset, error) {
	s.opens++
	return s.RasterStore.Open(ctx, path)
}

// newSourceRaster writes a 10x10 EPSG:4326 grid covering (0,0)-(10,10) whose
// pixel (row, col) holds row*10 + col + 1.
func newSourceRaster(t *testing.T) (afero.Fs, domain.GeoAsset) {
	t.Helper()
	fs := afero.NewMemMapFs()
	meta := testutil.WithNoData(testutil.GridMeta(10, 10, 0, 10, 1, "EPSG:4326"), -9999)
	testutil.WriteRaster(t, fs, sourcePath, meta, func(r, c int) float64 { return float64(r*10 + c + 1) })

	asset, err := domain.NewGeoAsset(fs, sourcePath, domain.AssetKindRaster, "population", 2020, 0)
	require.NoError(t, err)
	return fs, asset
}

func TestRasterMaskService_ClipsToBoundingWindow(t *testing.T) {
	fs, src := newSourceRaster(t)
	svc := NewRasterMaskService(fs, geotiff.NewStore(fs), nil, nil)

	res, err := svc.Mask(context.Background(), domain.MaskJob{
		Source:     src,
		Polygon:    testutil.Rect(2, 2, 6, 6),
		PolygonCRS: "EPSG:4326",
		OutputPath: "/data/AAA/subregions/R1.tif",
		Level:      1,
	})
	require.NoError(t, err)
	assert.False(t, res.Cached)
	assert.Equal(t, "/data/AAA/subregions/R1.tif", res.Asset.Path)
	assert.Equal(t, "population", res.Asset.Name)
	assert.Equal(t, 2020, res.Asset.Year)
	assert.Equal(t, 1, res.Asset.Level)

	meta, block := testutil.ReadRaster(t, fs, res.Asset.Path)
	assert.Equal(t, 4, meta.Width)
	assert.Equal(t, 4, meta.Height)
	assert.Equal(t, domain.GeoTransform{2, 1, 0, 6, 0, -1}, meta.Transform)
	assert.Equal(t, "EPSG:4326", meta.CRS)
	require.NotNil(t, meta.NoData)
	assert.Equal(t, -9999.0, *meta.NoData)

	// window starts at source row 4, col 2
	assert.Equal(t, 43.0, block.At(0, 0, 0))
	assert.Equal(t, 76.0, block.At(0, 3, 3))
}

func TestRasterMaskService_BlanksPixelsOutsidePolygon(t *testing.T) {
	fs, src := newSourceRaster(t)
	svc := NewRasterMaskService(fs, geotiff.NewStore(fs), nil, nil)

	triangle := geom.Polygon{{{X: 2, Y: 2}, {X: 6, Y: 2}, {X: 2, Y: 6}, {X: 2, Y: 2}}}
	res, err := svc.Mask(context.Background(), domain.MaskJob{
		Source:     src,
		Polygon:    triangle,
		OutputPath: "/out/triangle.tif",
	})
	require.NoError(t, err)

	_, block := testutil.ReadRaster(t, fs, res.Asset.Path)
	// centre (2.5, 2.5) is inside, (5.5, 5.5) is not
	assert.Equal(t, 73.0, block.At(0, 3, 0))
	assert.Equal(t, -9999.0, block.At(0, 0, 3))
}

func TestRasterMaskService_ReusesExistingOutput(t *testing.T) {
	fs, src := newSourceRaster(t)
	store := &countingStore{RasterStore: geotiff.NewStore(fs)}
	svc := NewRasterMaskService(fs, store, nil, nil)

	job := domain.MaskJob{Source: src, Polygon: testutil.Rect(0, 0, 5, 5), OutputPath: "/out/R1.tif", Level: 1}

	first, err := svc.Mask(context.Background(), job)
	require.NoError(t, err)
	assert.False(t, first.Cached)
	assert.Equal(t, 1, store.opens)

	second, err := svc.Mask(context.Background(), job)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Asset, second.Asset)
	assert.Equal(t, 1, store.opens, "cached output must not touch the source")

	job.Overwrite = true
	third, err := svc.Mask(context.Background(), job)
	require.NoError(t, err)
	assert.False(t, third.Cached)
	assert.Equal(t, 2, store.opens)
}

func TestRasterMaskService_Rejects(t *testing.T) {
	fs, src := newSourceRaster(t)
	svc := NewRasterMaskService(fs, geotiff.NewStore(fs), nil, nil)
	ctx := context.Background()

	t.Run("vector source", func(t *testing.T) {
		vec := domain.GeoAsset{Path: "/data/regions.shp", Kind: domain.AssetKindVector, Name: "regions"}
		_, err := svc.Mask(ctx, domain.MaskJob{Source: vec, Polygon: testutil.Rect(0, 0, 1, 1), OutputPath: "/out/v.shp"})
		assert.ErrorIs(t, err, domain.ErrNotRaster)
	})

	t.Run("empty polygon", func(t *testing.T) {
		_, err := svc.Mask(ctx, domain.MaskJob{Source: src, OutputPath: "/out/empty.tif"})
		assert.ErrorIs(t, err, domain.ErrEmptyPolygon)

		_, err = svc.Mask(ctx, domain.MaskJob{Source: src, Polygon: geom.Polygon{}, OutputPath: "/out/empty.tif"})
		assert.ErrorIs(t, err, domain.ErrEmptyPolygon)
	})

	t.Run("no overlap", func(t *testing.T) {
		_, err := svc.Mask(ctx, domain.MaskJob{Source: src, Polygon: testutil.Rect(100, 100, 110, 110), OutputPath: "/out/far.tif"})
		assert.ErrorIs(t, err, domain.ErrEmptyIntersection)

		exists, _ := afero.Exists(fs, "/out/far.tif")
		assert.False(t, exists)
	})

	t.Run("sliver between pixel centres", func(t *testing.T) {
		_, err := svc.Mask(ctx, domain.MaskJob{Source: src, Polygon: testutil.Rect(3.1, 3.1, 3.4, 3.4), OutputPath: "/out/sliver.tif"})
		assert.ErrorIs(t, err, domain.ErrEmptyIntersection)
	})

	t.Run("missing source", func(t *testing.T) {
		gone := src
		gone.Path = "/data/gone.tif"
		_, err := svc.Mask(ctx, domain.MaskJob{Source: gone, Polygon: testutil.Rect(0, 0, 1, 1), OutputPath: "/out/gone.tif"})
		assert.ErrorIs(t, err, domain.ErrIOFailure)
	})
}

func TestRasterMaskService_ReprojectsPolygonIntoRasterCRS(t *testing.T) {
	fs, src := newSourceRaster(t)
	reproj := new(testutil.MockReprojector)
	svc := NewRasterMaskService(fs, geotiff.NewStore(fs), reproj, nil)

	mercator := testutil.Rect(222638, 222684, 667917, 669141)
	reproj.On("Reproject", mercator, "EPSG:3857", "EPSG:4326").Return(testutil.Rect(2, 2, 6, 6), nil)

	res, err := svc.Mask(context.Background(), domain.MaskJob{
		Source:     src,
		Polygon:    mercator,
		PolygonCRS: "EPSG:3857",
		OutputPath: "/out/reprojected.tif",
	})
	require.NoError(t, err)
	reproj.AssertExpectations(t)

	meta, _ := testutil.ReadRaster(t, fs, res.Asset.Path)
	assert.Equal(t, 4, meta.Width)
	assert.Equal(t, "EPSG:4326", meta.CRS, "the raster keeps its own CRS")
}

func TestRasterMaskService_CRSReconciliationFailures(t *testing.T) {
	fs, src := newSourceRaster(t)
	job := domain.MaskJob{Source: src, Polygon: testutil.Rect(2, 2, 6, 6), PolygonCRS: "EPSG:3857", OutputPath: "/out/x.tif"}

	_, err := NewRasterMaskService(fs, geotiff.NewStore(fs), nil, nil).Mask(context.Background(), job)
	assert.ErrorIs(t, err, domain.ErrCRSReconciliation)

	reproj := new(testutil.MockReprojector)
	reproj.On("Reproject", mock.Anything, "EPSG:3857", "EPSG:4326").Return(nil, errors.New("unknown projection"))
	_, err = NewRasterMaskService(fs, geotiff.NewStore(fs), reproj, nil).Mask(context.Background(), job)
	assert.ErrorIs(t, err, domain.ErrCRSReconciliation)
}

func TestRasterMaskService_AssetCRSOverridesFile(t *testing.T) {
	fs, src := newSourceRaster(t)
	svc := NewRasterMaskService(fs, geotiff.NewStore(fs), nil, nil)

	res, err := svc.Mask(context.Background(), domain.MaskJob{
		Source:     src.WithCRS("EPSG:3857"),
		Polygon:    testutil.Rect(2, 2, 6, 6),
		PolygonCRS: "epsg:3857",
		OutputPath: "/out/override.tif",
	})
	require.NoError(t, err)
	assert.Equal(t, "EPSG:3857", res.Asset.CRS)
}

func TestRasterMaskService_RecordsMetrics(t *testing.T) {
	fs, src := newSourceRaster(t)
	metrics := new(testutil.MockMetrics)
	metrics.On("ObserveMask", domain.OutcomeSuccess, mock.Anything).Once()
	metrics.On("ObserveMask", domain.OutcomeSkippedCached, mock.Anything).Once()
	metrics.On("ObserveMask", domain.OutcomeFailed, mock.Anything).Once()
	svc := NewRasterMaskService(fs, geotiff.NewStore(fs), nil, metrics)

	job := domain.MaskJob{Source: src, Polygon: testutil.Rect(0, 0, 5, 5), OutputPath: "/out/m.tif"}
	_, err := svc.Mask(context.Background(), job)
	require.NoError(t, err)
	_, err = svc.Mask(context.Background(), job)
	require.NoError(t, err)
	_, err = svc.Mask(context.Background(), domain.MaskJob{Source: src, OutputPath: "/out/n.tif"})
	require.Error(t, err)

	metrics.AssertExpectations(t)
}

func TestRasterizePolygon_ExcludesHoles(t *testing.T) {
	withHole := geom.Polygon{
		{{X: 0, Y: 0}, {X: 4, Y: 0}, {X: 4, Y: 4}, {X: 0, Y: 4}, {X: 0, Y: 0}},
		{{X: 1, Y: 1}, {X: 3, Y: 1}, {X: 3, Y: 3}, {X: 1, Y: 3}, {X: 1, Y: 1}},
	}
	inside := RasterizePolygon(withHole, domain.GeoTransform{0, 1, 0, 4, 0, -1}, 4, 4)

	count := 0
	for _, in := range inside {
		if in {
			count++
		}
	}
	assert.Equal(t, 12, count)
	assert.False(t, inside[1*4+1])
	assert.True(t, inside[0])
}

func TestRasterizePolygon_MatchesWithin(t *testing.T) {
	concave := geom.Polygon{
		{{X: 0.3, Y: 0.2}, {X: 9.7, Y: 0.4}, {X: 9.2, Y: 9.6}, {X: 5.1, Y: 4.3}, {X: 0.6, Y: 9.8}, {X: 0.3, Y: 0.2}},
		{{X: 6.2, Y: 1.1}, {X: 8.3, Y: 1.4}, {X: 7.1, Y: 3.2}, {X: 6.2, Y: 1.1}},
	}
	tr := domain.GeoTransform{0, 1, 0, 10, 0, -1}
	inside := RasterizePolygon(concave, tr, 10, 10)

	for row := 0; row < 10; row++ {
		for col := 0; col < 10; col++ {
			x, y := tr.PixelToWorld(float64(col)+0.5, float64(row)+0.5)
			status := geom.Point{X: x, Y: y}.Within(concave)
			if status == geom.OnEdge {
				continue
			}
			assert.Equal(t, status == geom.Inside, inside[row*10+col], "pixel %d,%d", row, col)
		}
	}
}

func TestRasterizePolygon_MultiPolygon(t *testing.T) {
	two := geom.MultiPolygon{
		testutil.Rect(0, 0, 1, 1),
		testutil.Rect(3, 3, 4, 4),
	}
	inside := RasterizePolygon(two, domain.GeoTransform{0, 1, 0, 4, 0, -1}, 4, 4)
	assert.Equal(t, []bool{
		false, false, false, true,
		false, false, false, false,
		false, false, false, false,
		true, false, false, false,
	}, inside)
}
