package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"spatialization-module/internal/config"
	"spatialization-module/internal/core/domain"
	"spatialization-module/internal/testutil"
)

func rectFeature(minX, maxX float64, props string) string {
	return fmt.Sprintf(`{"type":"Feature","properties":%s,"geometry":{"type":"Polygon","coordinates":[[[%g,0],[%g,0],[%g,10],[%g,10],[%g,0]]]}}`,
		props, minX, maxX, maxX, minX, minX)
}

func collection(features ...string) string {
	out := `{"type":"FeatureCollection","crs":{"type":"name","properties":{"name":"urn:ogc:def:crs:EPSG::3035"}},"features":[`
	for i, f := range features {
		if i > 0 {
			out += ","
		}
		out += f
	}
	return out + "]}"
}

// newWorkspace writes a 40x10 raster and country/region boundaries for AAA
// (x in [0,30), three regions) and BBB (x in [30,40), one region).
func newWorkspace(t *testing.T) string {
	t.Helper()
	t.Setenv(config.FileEnv, "")
	dir := t.TempDir()

	meta := testutil.WithNoData(testutil.GridMeta(40, 10, 0, 10, 1, "EPSG:3035"), -1)
	testutil.WriteRaster(t, afero.NewOsFs(), filepath.Join(dir, "population.tif"), meta, func(int, int) float64 { return 1 })

	countries := collection(
		rectFeature(0, 30, `{"iso3":"AAA"}`),
		rectFeature(30, 40, `{"iso3":"BBB"}`),
	)
	regions := collection(
		rectFeature(0, 10, `{"code":"R1","iso3":"AAA"}`),
		rectFeature(10, 20, `{"code":"R2","iso3":"AAA"}`),
		rectFeature(20, 30, `{"code":"R3","iso3":"AAA"}`),
		rectFeature(30, 40, `{"code":"B1","iso3":"BBB"}`),
	)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "countries.geojson"), []byte(countries), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "regions.geojson"), []byte(regions), 0o644))
	return dir
}

func writeRequest(t *testing.T, dir, name string, req domain.PipelineRequest) string {
	t.Helper()
	b, err := yaml.Marshal(req)
	require.NoError(t, err)
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, b, 0o644))
	return path
}

func TestRun_Usage(t *testing.T) {
	var stdout, stderr bytes.Buffer

	assert.Equal(t, exitUsage, run(context.Background(), nil, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "usage:")

	assert.Equal(t, exitUsage, run(context.Background(), []string{"mask"}, &stdout, &stderr))
	assert.Equal(t, exitOK, run(context.Background(), []string{"help"}, &stdout, &stderr))
	assert.Equal(t, exitUsage, run(context.Background(), []string{"run"}, &stdout, &stderr))
	assert.Equal(t, exitUsage, run(context.Background(), []string{"run", "-f", "xml", "req.yaml"}, &stdout, &stderr))
}

func TestRunPipeline_FlatThenTree(t *testing.T) {
	dir := newWorkspace(t)

	flat := writeRequest(t, dir, "flat.yaml", domain.PipelineRequest{
		Units:  []string{"AAA", "BBB"},
		Mode:   domain.JobModeFlat,
		Levels: []domain.BoundarySpec{{Path: filepath.Join(dir, "countries.geojson"), SubregionColumn: "iso3"}},
		Assets: []domain.AssetSpec{{Name: "population", Year: 2020, Path: filepath.Join(dir, "population.tif")}},
	})

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"run", "--log-level", "error", flat}, &stdout, &stderr)
	require.Equal(t, exitOK, code, stderr.String())

	var report domain.RunReport
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &report))
	assert.Equal(t, domain.JobModeFlat, report.Mode)
	require.Len(t, report.Units, 2)
	assert.FileExists(t, filepath.Join(dir, "subregions", "AAA.tif"))
	assert.FileExists(t, filepath.Join(dir, "subregions", "BBB.tif"))

	tree := writeRequest(t, dir, "tree.yaml", domain.PipelineRequest{
		Units:  []string{"AAA", "BBB"},
		Levels: []domain.BoundarySpec{{Path: filepath.Join(dir, "regions.geojson"), SubregionColumn: "code", ParentColumn: "iso3"}},
		Assets: []domain.AssetSpec{{Name: "population", Year: 2020, Path: filepath.Join(dir, "subregions", "{unit}.tif")}},
	})
	reportPath := filepath.Join(dir, "report.yaml")

	stdout.Reset()
	code = run(context.Background(), []string{"run", "--concurrency", "bounded-pool", "--workers", "2", "-f", "yaml", "-o", reportPath, tree}, &stdout, &stderr)
	require.Equal(t, exitOK, code, stderr.String())
	assert.Empty(t, stdout.String())

	for _, r := range []string{"R1", "R2", "R3"} {
		assert.FileExists(t, filepath.Join(dir, "subregions", "AAA", "subregions", r+".tif"))
	}
	assert.FileExists(t, filepath.Join(dir, "subregions", "BBB", "subregions", "B1.tif"))

	b, err := os.ReadFile(reportPath)
	require.NoError(t, err)
	var fromYAML domain.RunReport
	require.NoError(t, yaml.Unmarshal(b, &fromYAML))
	assert.Equal(t, domain.JobModeTree, fromYAML.Mode)
	assert.Equal(t, domain.ConcurrencyBoundedPool, fromYAML.Options.ConcurrencyMode)
	assert.Equal(t, 2, fromYAML.Options.WorkerCount)
	for _, u := range fromYAML.Units {
		assert.Equal(t, domain.OutcomeSuccess, u.Status, u.UnitID)
	}
}

func TestRunPipeline_Summarize(t *testing.T) {
	dir := newWorkspace(t)
	flat := writeRequest(t, dir, "flat.yaml", domain.PipelineRequest{
		Units:  []string{"AAA"},
		Mode:   domain.JobModeFlat,
		Levels: []domain.BoundarySpec{{Path: filepath.Join(dir, "countries.geojson"), SubregionColumn: "iso3"}},
		Assets: []domain.AssetSpec{{Name: "population", Path: filepath.Join(dir, "population.tif")}},
	})
	var stdout, stderr bytes.Buffer
	require.Equal(t, exitOK, run(context.Background(), []string{"run", "--log-level", "error", flat}, &stdout, &stderr), stderr.String())

	var plain map[string]interface{}
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &plain))
	assert.NotContains(t, plain, "summaries")
	assert.NotContains(t, plain, "regions")

	tree := writeRequest(t, dir, "tree.yaml", domain.PipelineRequest{
		Units:  []string{"AAA"},
		Levels: []domain.BoundarySpec{{Path: filepath.Join(dir, "regions.geojson"), SubregionColumn: "code", ParentColumn: "iso3"}},
		Assets: []domain.AssetSpec{{Name: "population", Path: filepath.Join(dir, "subregions", "{unit}.tif")}},
	})
	stdout.Reset()
	code := run(context.Background(), []string{"run", "--log-level", "error", "--summarize", "population", tree}, &stdout, &stderr)
	require.Equal(t, exitOK, code, stderr.String())

	var out runOutput
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &out))
	assert.Equal(t, domain.JobModeTree, out.Mode)
	require.Len(t, out.Regions, 1)
	assert.Len(t, out.Regions[0].Children, 3)

	require.Len(t, out.Summaries, 4)
	assert.Equal(t, "AAA", out.Summaries[0].RegionID)
	assert.Equal(t, 300.0, out.Summaries[0].Summary.Sum)
	require.NotNil(t, out.Summaries[0].ChildrenSum)
	assert.InDelta(t, 300.0, *out.Summaries[0].ChildrenSum, 1e-9)
	for _, s := range out.Summaries[1:] {
		assert.Equal(t, 100.0, s.Summary.Sum, s.RegionID)
	}
}

func TestRunPipeline_FailedUnitExitsNonZero(t *testing.T) {
	dir := newWorkspace(t)
	req := writeRequest(t, dir, "flat.yaml", domain.PipelineRequest{
		Units:  []string{"AAA", "ZZZ"},
		Mode:   domain.JobModeFlat,
		Levels: []domain.BoundarySpec{{Path: filepath.Join(dir, "countries.geojson"), SubregionColumn: "iso3"}},
		Assets: []domain.AssetSpec{{Name: "population", Path: filepath.Join(dir, "population.tif")}},
	})

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"run", "--log-level", "error", req}, &stdout, &stderr)
	assert.Equal(t, exitFailed, code)

	// every unit is still processed and reported
	var report domain.RunReport
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &report))
	require.Len(t, report.Units, 2)
	assert.Equal(t, domain.OutcomeSuccess, report.Units[0].Status)
	assert.Equal(t, domain.OutcomeFailed, report.Units[1].Status)
	assert.FileExists(t, filepath.Join(dir, "subregions", "AAA.tif"))
}

func TestRunPipeline_BadRequestFile(t *testing.T) {
	dir := newWorkspace(t)
	path := filepath.Join(dir, "typo.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"unitz":["AAA"]}`), 0o644))

	var stdout, stderr bytes.Buffer
	assert.Equal(t, exitFailed, run(context.Background(), []string{"run", "--log-level", "error", path}, &stdout, &stderr))
	assert.Equal(t, exitFailed, run(context.Background(), []string{"run", "--log-level", "error", filepath.Join(dir, "none.yaml")}, &stdout, &stderr))
	assert.Empty(t, stdout.String())
}

func TestResolveOptions(t *testing.T) {
	t.Setenv(config.FileEnv, "")

	fs := newRunFlags()
	cfg, err := config.LoadWithFlags(fs)
	require.NoError(t, err)
	assert.Equal(t, cfg.Pipeline.RunOptions(), resolveOptions(fs, cfg, domain.RunOptions{}))

	fromFile := domain.RunOptions{ConcurrencyMode: domain.ConcurrencyBoundedPool, Overwrite: true}
	got := resolveOptions(fs, cfg, fromFile)
	assert.Equal(t, domain.ConcurrencyBoundedPool, got.ConcurrencyMode)
	assert.True(t, got.Overwrite)
	assert.Equal(t, 4, got.WorkerCount, "worker count falls back to configuration")

	flags := newRunFlags()
	require.NoError(t, flags.Parse([]string{"--concurrency", "sequential"}))
	cfg, err = config.LoadWithFlags(flags)
	require.NoError(t, err)
	got = resolveOptions(flags, cfg, fromFile)
	assert.Equal(t, domain.ConcurrencySequential, got.ConcurrencyMode, "flags beat the request file")
	assert.True(t, got.Overwrite)

	assert.Nil(t, newRunFlags().Lookup("tolerance"), "run has no tolerance flag")
	tol := 2.5
	got = resolveOptions(fs, cfg, domain.RunOptions{ConcurrencyMode: domain.ConcurrencySequential, TolerancePercentage: &tol})
	require.NotNil(t, got.TolerancePercentage)
	assert.Equal(t, 2.5, *got.TolerancePercentage, "the request file keeps its tolerance")
}

func TestRunFit(t *testing.T) {
	if testing.Short() {
		t.Skip("runs the numerical solver")
	}
	t.Setenv(config.FileEnv, "")

	truth := domain.LogisticParams{Scale: 100, Rate: 0.0004, Midpoint: 17000}
	tol := 5.0
	in := domain.RegionalFitInput{Name: "AAA", Weights: []float64{1}, TolerancePercentage: &tol}
	for x := 10000.0; x <= 30000; x += 2000 {
		in.ParentX = append(in.ParentX, x)
		in.ParentY = append(in.ParentY, truth.Eval(x))
	}
	in.DataX = [][]float64{{14000, 20000}}
	in.DataY = [][]float64{{truth.Eval(14000), truth.Eval(20000)}}

	b, err := json.Marshal(in)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "fit.json")
	require.NoError(t, os.WriteFile(path, b, 0o644))

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"fit", "--log-level", "error", path}, &stdout, &stderr)
	require.Equal(t, exitOK, code, stderr.String())

	var res domain.RegionalFitResult
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &res))
	assert.True(t, res.Success)
	require.Len(t, res.Params, 1)
	assert.Less(t, res.Stats.RMSE, 1.0)
}

func TestRunFit_InvalidInput(t *testing.T) {
	t.Setenv(config.FileEnv, "")
	path := filepath.Join(t.TempDir(), "fit.yaml")
	require.NoError(t, os.WriteFile(path, []byte("parent_x: [1, 2]\nparent_y: [1]\nweights: [1]\ndata_x: [[1]]\ndata_y: [[1]]\n"), 0o644))

	var stdout, stderr bytes.Buffer
	assert.Equal(t, exitFailed, run(context.Background(), []string{"fit", "--log-level", "error", path}, &stdout, &stderr))
	assert.Empty(t, stdout.String())
}
