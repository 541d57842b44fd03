package domain

import (
	"math"
	"testing"

	"github.com/ctessum/geom"
	"github.com/stretchr/testify/assert"
)

func grid(width, height int) RasterMeta {
	return RasterMeta{Width: width, Height: height, Bands: 1, DataType: DataTypeFloat32, Transform: GeoTransform{100, 10, 0, 500, 0, -10}}
}

func TestGeoTransform_RoundTrip(t *testing.T) {
	tr := GeoTransform{100, 10, 2, 500, 1, -10}
	x, y := tr.PixelToWorld(3.5, 7.25)
	col, row := tr.WorldToPixel(x, y)
	assert.InDelta(t, 3.5, col, 1e-9)
	assert.InDelta(t, 7.25, row, 1e-9)

	col, _ = GeoTransform{}.WorldToPixel(1, 1)
	assert.True(t, math.IsNaN(col))

	assert.Equal(t, GeoTransform{120, 10, 0, 470, 0, -10}, GeoTransform{100, 10, 0, 500, 0, -10}.Offset(2, 3))
	assert.False(t, tr.IsNorthUp())
}

func TestRasterMeta_Bounds(t *testing.T) {
	b := grid(4, 3).Bounds()
	assert.Equal(t, geom.Point{X: 100, Y: 470}, b.Min)
	assert.Equal(t, geom.Point{X: 140, Y: 500}, b.Max)
	assert.Equal(t, 100.0, grid(4, 3).PixelArea())
}

func TestRasterMeta_WindowFor(t *testing.T) {
	m := grid(4, 3)

	w, ok := m.WindowFor(&geom.Bounds{Min: geom.Point{X: 115, Y: 475}, Max: geom.Point{X: 125, Y: 485}})
	assert.True(t, ok)
	assert.Equal(t, Window{Col: 1, Row: 1, Width: 2, Height: 2}, w)

	// edges on pixel boundaries do not pull in a neighbour
	w, ok = m.WindowFor(&geom.Bounds{Min: geom.Point{X: 110, Y: 480}, Max: geom.Point{X: 130, Y: 490}})
	assert.True(t, ok)
	assert.Equal(t, Window{Col: 1, Row: 1, Width: 2, Height: 1}, w)

	// clipped to the raster
	w, ok = m.WindowFor(&geom.Bounds{Min: geom.Point{X: 0, Y: 0}, Max: geom.Point{X: 1000, Y: 1000}})
	assert.True(t, ok)
	assert.Equal(t, Window{Width: 4, Height: 3}, w)

	_, ok = m.WindowFor(&geom.Bounds{Min: geom.Point{X: 200, Y: 0}, Max: geom.Point{X: 300, Y: 10}})
	assert.False(t, ok)
	_, ok = m.WindowFor(nil)
	assert.False(t, ok)
}

func TestRasterMeta_NoData(t *testing.T) {
	m := grid(1, 1)
	assert.Equal(t, 0.0, m.Fill())
	assert.False(t, m.IsNoData(0))

	nd := -9999.0
	m.NoData = &nd
	assert.Equal(t, -9999.0, m.Fill())
	assert.True(t, m.IsNoData(-9999))

	nan := math.NaN()
	m.NoData = &nan
	assert.True(t, m.IsNoData(math.NaN()))
	assert.False(t, m.IsNoData(1))
}

func TestRasterBlock(t *testing.T) {
	b := NewRasterBlock(3, 2, 2)
	b.Set(1, 1, 2, 7)
	assert.Equal(t, 7.0, b.At(1, 1, 2))
	assert.Equal(t, 2, b.Bands())

	meta := grid(3, 2)
	meta.Bands = 2
	assert.NoError(t, b.Validate(meta))
	meta.Bands = 1
	assert.ErrorIs(t, b.Validate(meta), ErrUnsupportedRaster)
}

func TestDataType(t *testing.T) {
	assert.Equal(t, "float32", DataTypeFloat32.String())
	assert.Equal(t, 2, DataTypeInt16.Size())
	assert.True(t, DataTypeFloat64.IsFloat())
	assert.False(t, DataTypeUInt16.IsFloat())
	assert.Equal(t, "unknown", DataTypeUnknown.String())
}
