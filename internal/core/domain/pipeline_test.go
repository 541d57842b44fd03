package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func validRequest() PipelineRequest {
	return PipelineRequest{
		Units:   []string{"AAA", "BBB"},
		Levels:  []BoundarySpec{{Kind: "shapefile", Path: "/b/regions.shp", SubregionColumn: "code", ParentColumn: "iso3"}},
		Assets:  []AssetSpec{{Name: "population", Path: "/data/{unit}/pop.tif"}},
		Mode:    JobModeTree,
		Options: RunOptions{ConcurrencyMode: ConcurrencySequential},
	}
}

func TestPipelineRequest_Validate(t *testing.T) {
	assert.NoError(t, validRequest().Validate())

	tests := []struct {
		name   string
		mutate func(r *PipelineRequest)
		want   error
	}{
		{"no units", func(r *PipelineRequest) { r.Units = nil }, ErrInvalidRunRequest},
		{"blank unit", func(r *PipelineRequest) { r.Units = []string{" "} }, ErrInvalidRunRequest},
		{"duplicate unit", func(r *PipelineRequest) { r.Units = []string{"AAA", "AAA"} }, ErrInvalidRunRequest},
		{"no assets", func(r *PipelineRequest) { r.Assets = nil }, ErrInvalidRunRequest},
		{"duplicate asset", func(r *PipelineRequest) { r.Assets = append(r.Assets, r.Assets[0]) }, ErrInvalidRunRequest},
		{"unnamed asset", func(r *PipelineRequest) { r.Assets[0].Name = "" }, ErrInvalidRunRequest},
		{"no levels", func(r *PipelineRequest) { r.Levels = nil }, ErrInvalidRunRequest},
		{"no subregion column", func(r *PipelineRequest) { r.Levels[0].SubregionColumn = "" }, ErrInvalidRunRequest},
		{"tree without parent column", func(r *PipelineRequest) { r.Levels[0].ParentColumn = "" }, ErrInvalidRunRequest},
		{"bad mode", func(r *PipelineRequest) { r.Mode = "grid" }, ErrInvalidJobMode},
		{"bad options", func(r *PipelineRequest) { r.Options.ConcurrencyMode = "threads" }, ErrInvalidConcurrencyMode},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := validRequest()
			tt.mutate(&r)
			assert.ErrorIs(t, r.Validate(), tt.want)
		})
	}

	flat := validRequest()
	flat.Mode = JobModeFlat
	flat.Levels[0].ParentColumn = ""
	assert.NoError(t, flat.Validate())
}

func TestAssetSpec_PathFor(t *testing.T) {
	a := AssetSpec{Path: "/data/subregions/{unit}.tif"}
	assert.Equal(t, "/data/subregions/AAA.tif", a.PathFor("AAA"))
	assert.Equal(t, "/data/subregions/a_b.tif", a.PathFor("a/b"))
	assert.Equal(t, "/data/pop.tif", AssetSpec{Path: "/data/pop.tif"}.PathFor("AAA"))
}

func TestBoundarySet(t *testing.T) {
	set := &BoundarySet{Records: []BoundaryRecord{
		{Attributes: map[string]string{"code": "R1", "iso3": "AAA"}},
		{Attributes: map[string]string{"code": "X1", "iso3": "BBB"}},
		{Attributes: map[string]string{"code": "R2", "iso3": "AAA"}},
	}}
	children := set.ChildrenOf("iso3", "AAA")
	assert.Len(t, children, 2)
	assert.Equal(t, "R2", children[1].Attr("code"))

	rec, ok := set.Find("code", "X1")
	assert.True(t, ok)
	assert.Equal(t, "BBB", rec.Attr("iso3"))
	_, ok = set.Find("code", "nope")
	assert.False(t, ok)
}

func TestSameCRS(t *testing.T) {
	assert.True(t, SameCRS("EPSG:4326", "epsg:4326"))
	assert.True(t, SameCRS("+proj=longlat  +datum=WGS84", "+proj=longlat +datum=WGS84"))
	assert.False(t, SameCRS("EPSG:4326", "EPSG:3857"))
	assert.False(t, SameCRS("", ""))
}
