package services

import (
	"context"
	"errors"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spatialization-module/internal/adapters/secondary/geotiff"
	"spatialization-module/internal/core/domain"
	"spatialization-module/internal/testutil"
)

// newWorld writes one shared 40x10 raster spanning two countries: AAA on
// x in [0,30) and BBB on x in [30,40).
func newWorld(t *testing.T) (afero.Fs, testutil.StaticResolver) {
	t.Helper()
	fs := afero.NewMemMapFs()
	meta := testutil.WithNoData(testutil.GridMeta(40, 10, 0, 10, 1, "EPSG:3035"), -1)
	testutil.WriteRaster(t, fs, "/data/world/population.tif", meta, func(int, int) float64 { return 2 })

	resolver := testutil.StaticResolver{
		"countries.shp": {
			CRS: "EPSG:3035",
			Records: []domain.BoundaryRecord{
				testutil.Record(testutil.Rect(0, 0, 30, 10), "iso3", "AAA"),
				testutil.Record(testutil.Rect(30, 0, 40, 10), "iso3", "BBB"),
				testutil.Record(nil, "iso3", "CCC"),
			},
		},
		"regions.shp": {
			CRS: "EPSG:3035",
			Records: []domain.BoundaryRecord{
				testutil.Record(testutil.Rect(0, 0, 10, 10), "code", "R1", "iso3", "AAA"),
				testutil.Record(testutil.Rect(10, 0, 20, 10), "code", "R2", "iso3", "AAA"),
				testutil.Record(testutil.Rect(20, 0, 30, 10), "code", "R3", "iso3", "AAA"),
				testutil.Record(testutil.Rect(30, 0, 40, 10), "code", "B1", "iso3", "BBB"),
			},
		},
	}
	return fs, resolver
}

func newPipeline(fs afero.Fs, resolver testutil.StaticResolver) *PipelineService {
	return NewPipelineService(fs, resolver, NewRasterMaskService(fs, geotiff.NewStore(fs), nil, nil), nil)
}

func flatRequest(units ...string) domain.PipelineRequest {
	return domain.PipelineRequest{
		Units:  units,
		Mode:   domain.JobModeFlat,
		Levels: []domain.BoundarySpec{{Path: "countries.shp", SubregionColumn: "iso3"}},
		Assets: []domain.AssetSpec{{Name: "population", Year: 2020, Path: "/data/world/population.tif"}},
		Options: sequential(),
	}
}

func treeRequest(units ...string) domain.PipelineRequest {
	return domain.PipelineRequest{
		Units:  units,
		Levels: []domain.BoundarySpec{{Path: "regions.shp", SubregionColumn: "code", ParentColumn: "iso3"}},
		Assets: []domain.AssetSpec{{Name: "population", Year: 2020, Path: "/data/world/subregions/{unit}.tif"}},
		Options: pool(2),
	}
}

func TestPipelineService_FlatThenTree(t *testing.T) {
	fs, resolver := newWorld(t)
	p := newPipeline(fs, resolver)

	flat, err := p.Run(context.Background(), flatRequest("AAA", "BBB"))
	require.NoError(t, err)
	assert.Equal(t, domain.JobModeFlat, flat.Mode)
	assert.False(t, flat.Failed())
	require.Len(t, flat.Units, 2)

	root, ok := flat.Root("AAA")
	require.True(t, ok)
	a, ok := root.Asset("population")
	require.True(t, ok)
	assert.Equal(t, "/data/world/subregions/AAA.tif", a.Path)
	_, block := testutil.ReadRaster(t, fs, a.Path)
	assert.Equal(t, 30, block.Width)

	tree, err := p.Run(context.Background(), treeRequest("AAA", "BBB"))
	require.NoError(t, err)
	assert.Equal(t, domain.JobModeTree, tree.Mode)
	assert.False(t, tree.Failed())

	aaa, ok := tree.Root("AAA")
	require.True(t, ok)
	require.Len(t, aaa.Children, 3)
	assert.NoError(t, domain.ValidateTree(aaa))
	r2, _ := aaa.Children[1].Asset("population")
	assert.Equal(t, "/data/world/subregions/AAA/subregions/R2.tif", r2.Path)

	bbb, ok := tree.Root("BBB")
	require.True(t, ok)
	require.Len(t, bbb.Children, 1)
	assert.Equal(t, "B1", bbb.Children[0].ID)

	// second run reuses every output
	again, err := p.Run(context.Background(), treeRequest("AAA", "BBB"))
	require.NoError(t, err)
	for _, u := range again.Units {
		assert.Equal(t, domain.OutcomeSkippedCached, u.Status, u.UnitID)
	}
}

func TestPipelineService_FlatUnitErrors(t *testing.T) {
	fs, resolver := newWorld(t)

	report, err := newPipeline(fs, resolver).Run(context.Background(), flatRequest("AAA", "ZZZ", "CCC"))
	require.NoError(t, err)
	require.Len(t, report.Units, 3)

	assert.Equal(t, domain.OutcomeSuccess, report.Units[0].Status)
	assert.Equal(t, domain.OutcomeFailed, report.Units[1].Status)
	assert.Contains(t, report.Units[1].Reason, domain.ErrUnitNotFound.Error())
	assert.Equal(t, domain.OutcomeFailed, report.Units[2].Status)
	assert.Contains(t, report.Units[2].Reason, domain.ErrInvalidGeometry.Error())
	assert.True(t, report.Failed())
}

func TestPipelineService_MissingUnitAssetFailsOnlyThatUnit(t *testing.T) {
	fs, resolver := newWorld(t)
	p := newPipeline(fs, resolver)

	_, err := p.Run(context.Background(), flatRequest("AAA"))
	require.NoError(t, err)

	// BBB was never clipped, so its {unit} raster does not exist
	report, err := p.Run(context.Background(), treeRequest("AAA", "BBB"))
	require.NoError(t, err)

	assert.Equal(t, domain.OutcomeSuccess, report.Units[0].Status)
	assert.Equal(t, domain.OutcomeFailed, report.Units[1].Status)
	failures := report.Units[1].Failures()
	require.Len(t, failures, 1)
	assert.ErrorIs(t, failures[0].Err, domain.ErrAssetNotFound)
	assert.Equal(t, "population", failures[0].AssetName)

	counts := report.Counts()
	assert.Equal(t, 1, counts[domain.OutcomeSuccess])
	assert.Equal(t, 1, counts[domain.OutcomeFailed])
}

func TestPipelineService_RejectsRequest(t *testing.T) {
	fs, resolver := newWorld(t)
	p := newPipeline(fs, resolver)

	dup := treeRequest("AAA", "AAA")
	_, err := p.Run(context.Background(), dup)
	assert.ErrorIs(t, err, domain.ErrInvalidRunRequest)

	badMode := treeRequest("AAA")
	badMode.Mode = "spiral"
	_, err = p.Run(context.Background(), badMode)
	assert.ErrorIs(t, err, domain.ErrInvalidJobMode)

	noWorkers := treeRequest("AAA")
	noWorkers.Options = pool(0)
	_, err = p.Run(context.Background(), noWorkers)
	assert.ErrorIs(t, err, domain.ErrInvalidWorkerCount)
}

func TestPipelineService_BoundaryFailureIsFatal(t *testing.T) {
	fs, _ := newWorld(t)

	_, err := newPipeline(fs, testutil.StaticResolver{}).Run(context.Background(), treeRequest("AAA"))
	assert.ErrorIs(t, err, domain.ErrUnsupportedBoundarySource)

	src := new(testutil.MockBoundarySource)
	src.On("Load", context.Background()).Return(nil, errors.New("connection refused"))
	resolver := new(testutil.MockBoundaryResolver)
	resolver.On("Resolve", treeRequest().Levels[0]).Return(src, nil)

	p := NewPipelineService(fs, resolver, new(testutil.MockMasker), nil)
	_, err = p.Run(context.Background(), treeRequest("AAA"))
	assert.ErrorContains(t, err, "connection refused")
	resolver.AssertExpectations(t)
}

func TestFlatPath(t *testing.T) {
	asset := domain.GeoAsset{Path: "/data/world/pop.tif"}
	assert.Equal(t, "/data/world/subregions/AAA.tif", FlatPath(asset, "subregions", "AAA"))
}
