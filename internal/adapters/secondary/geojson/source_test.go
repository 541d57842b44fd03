package geojson

import (
	"context"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spatialization-module/internal/core/domain"
)

const collection = `{
  "type": "FeatureCollection",
  "crs": {"type": "name", "properties": {"name": "urn:ogc:def:crs:EPSG::3035"}},
  "features": [
    {"type": "Feature", "properties": {"code": "R1", "iso3": "AAA", "pop": 12},
     "geometry": {"type": "Polygon", "coordinates": [[[0,0],[10,0],[10,10],[0,10],[0,0]]]}},
    {"type": "Feature", "properties": {"code": "R2", "iso3": "AAA"},
     "geometry": {"type": "Point", "coordinates": [5,5]}},
    {"type": "Feature", "properties": {"code": "R3", "iso3": "BBB"}, "geometry": null}
  ]
}`

func TestParse(t *testing.T) {
	set, err := Parse([]byte(collection), "")
	require.NoError(t, err)

	assert.Equal(t, "EPSG:3035", set.CRS)
	require.Len(t, set.Records, 3)

	r1 := set.Records[0]
	assert.Equal(t, "R1", r1.Attr("code"))
	assert.Equal(t, "12", r1.Attr("pop"))
	require.NotNil(t, r1.Geometry)
	b := r1.Geometry.Bounds()
	assert.Equal(t, 10.0, b.Max.X)

	assert.Nil(t, set.Records[1].Geometry, "points are not boundaries")
	assert.Nil(t, set.Records[2].Geometry)

	children := set.ChildrenOf("iso3", "AAA")
	assert.Len(t, children, 2)
}

func TestParse_CRSOverrideAndDefault(t *testing.T) {
	set, err := Parse([]byte(`{"type":"FeatureCollection","features":[]}`), "")
	require.NoError(t, err)
	assert.Equal(t, DefaultCRS, set.CRS)

	set, err = Parse([]byte(collection), "EPSG:2154")
	require.NoError(t, err)
	assert.Equal(t, "EPSG:2154", set.CRS)
}

func TestParse_RejectsOtherTypes(t *testing.T) {
	_, err := Parse([]byte(`{"type":"Feature"}`), "")
	assert.Error(t, err)

	_, err = Parse([]byte(`not json`), "")
	assert.Error(t, err)
}

func TestNormalizeCRSName(t *testing.T) {
	assert.Equal(t, "EPSG:3035", NormalizeCRSName("urn:ogc:def:crs:EPSG::3035"))
	assert.Equal(t, "EPSG:4326", NormalizeCRSName("urn:ogc:def:crs:OGC:1.3:CRS84"))
	assert.Equal(t, "EPSG:2154", NormalizeCRSName("EPSG:2154"))
	assert.Equal(t, "custom", NormalizeCRSName("custom"))
}

func TestSource_Load(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/b/regions.geojson", []byte(collection), 0o644))

	set, err := NewSource(fs, domain.BoundarySpec{Path: "/b/regions.geojson"}).Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, set.Records, 3)

	_, err = NewSource(fs, domain.BoundarySpec{Path: "/b/missing.geojson"}).Load(context.Background())
	assert.Error(t, err)
}
