package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/ctessum/geom"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"spatialization-module/internal/adapters/secondary/geotiff"
	"spatialization-module/internal/core/domain"
)

// GridMeta describes a single band north-up float32 grid whose top-left corner
// is (originX, originY) with square pixels of size pixel.
func GridMeta(width, height int, originX, originY, pixel float64, crs string) domain.RasterMeta {
	return domain.RasterMeta{
		Width:     width,
		Height:    height,
		Bands:     1,
		DataType:  domain.DataTypeFloat32,
		Transform: domain.GeoTransform{originX, pixel, 0, originY, 0, -pixel},
		CRS:       crs,
	}
}

// WithNoData returns meta with nodata set to v.
func WithNoData(meta domain.RasterMeta, v float64) domain.RasterMeta {
	meta.NoData = &v
	return meta
}

// WriteRaster stores a GeoTIFF at path whose band 0 holds fill(row, col).
func WriteRaster(t testing.TB, fs afero.Fs, path string, meta domain.RasterMeta, fill func(row, col int) float64) {
	t.Helper()
	require.NoError(t, fs.MkdirAll(filepath.Dir(path), 0o755))
	block := domain.NewRasterBlock(meta.Width, meta.Height, meta.Bands)
	for b := 0; b < meta.Bands; b++ {
		for r := 0; r < meta.Height; r++ {
			for c := 0; c < meta.Width; c++ {
				block.Set(b, r, c, fill(r, c))
			}
		}
	}
	require.NoError(t, geotiff.NewStore(fs).Write(context.Background(), path, meta, block))
}

// ReadRaster loads the whole raster at path.
func ReadRaster(t testing.TB, fs afero.Fs, path string) (domain.RasterMeta, *domain.RasterBlock) {
	t.Helper()
	ds, err := geotiff.NewStore(fs).Open(context.Background(), path)
	require.NoError(t, err)
	defer ds.Close()

	meta := ds.Meta()
	block, err := ds.ReadWindow(context.Background(), domain.Window{Width: meta.Width, Height: meta.Height})
	require.NoError(t, err)
	return meta, block
}

// Rect returns an axis-aligned rectangle polygon.
func Rect(minX, minY, maxX, maxY float64) geom.Polygon {
	return geom.Polygon{{
		{X: minX, Y: minY},
		{X: maxX, Y: minY},
		{X: maxX, Y: maxY},
		{X: minX, Y: maxY},
		{X: minX, Y: minY},
	}}
}

// Record builds a boundary row with the given geometry and attributes.
func Record(g geom.Polygonal, attrs ...string) domain.BoundaryRecord {
	rec := domain.BoundaryRecord{Geometry: g, Attributes: map[string]string{}}
	for i := 0; i+1 < len(attrs); i += 2 {
		rec.Attributes[attrs[i]] = attrs[i+1]
	}
	return rec
}
