package projection

import (
	"testing"

	"github.com/ctessum/geom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefinition(t *testing.T) {
	tests := []struct {
		crs     string
		want    string
		wantErr bool
	}{
		{crs: "EPSG:4326", want: epsgDefs["EPSG:4326"]},
		{crs: "epsg:3857", want: epsgDefs["EPSG:3857"]},
		{crs: "EPSG:32631", want: "+proj=utm +zone=31 +datum=WGS84 +units=m +no_defs"},
		{crs: "EPSG:32733", want: "+proj=utm +zone=33 +south +datum=WGS84 +units=m +no_defs"},
		{crs: "+proj=longlat", want: "+proj=longlat"},
		{crs: "EPSG:999999", wantErr: true},
		{crs: "World_Mollweide", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.crs, func(t *testing.T) {
			got, err := Definition(tt.crs)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReproject_LonLatToWebMercator(t *testing.T) {
	r := NewReprojector()
	square := geom.Polygon{{{X: -1, Y: -1}, {X: 1, Y: -1}, {X: 1, Y: 1}, {X: -1, Y: 1}}}

	out, err := r.Reproject(square, "EPSG:4326", "EPSG:3857")
	require.NoError(t, err)

	b := out.Bounds()
	// one degree of longitude at the equator on the spherical mercator
	assert.InDelta(t, -111319.49, b.Min.X, 1)
	assert.InDelta(t, 111319.49, b.Max.X, 1)
	assert.InDelta(t, 0, (b.Min.Y+b.Max.Y)/2, 1)

	// cached transform is reused
	_, err = r.Reproject(square, "EPSG:4326", "EPSG:3857")
	require.NoError(t, err)
	assert.Len(t, r.transforms, 1)
}

func TestReproject_UnknownCRS(t *testing.T) {
	r := NewReprojector()
	square := geom.Polygon{{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}}}
	_, err := r.Reproject(square, "EPSG:4326", "LOCAL:1")
	assert.Error(t, err)
}
