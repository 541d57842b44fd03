package domain

import (
	"fmt"
	"math"

	"github.com/ctessum/geom"
)

type DataType int

const (
	DataTypeUnknown DataType = iota
	DataTypeByte
	DataTypeInt8
	DataTypeUInt16
	DataTypeInt16
	DataTypeUInt32
	DataTypeInt32
	DataTypeFloat32
	DataTypeFloat64
)

var dataTypeNames = map[DataType]string{
	DataTypeByte:    "uint8",
	DataTypeInt8:    "int8",
	DataTypeUInt16:  "uint16",
	DataTypeInt16:   "int16",
	DataTypeUInt32:  "uint32",
	DataTypeInt32:   "int32",
	DataTypeFloat32: "float32",
	DataTypeFloat64: "float64",
}

func (d DataType) String() string {
	if s, ok := dataTypeNames[d]; ok {
		return s
	}
	return "unknown"
}

// Size returns the sample size in bytes.
func (d DataType) Size() int {
	switch d {
	case DataTypeByte, DataTypeInt8:
		return 1
	case DataTypeUInt16, DataTypeInt16:
		return 2
	case DataTypeUInt32, DataTypeInt32, DataTypeFloat32:
		return 4
	case DataTypeFloat64:
		return 8
	}
	return 0
}

func (d DataType) IsFloat() bool {
	return d == DataTypeFloat32 || d == DataTypeFloat64
}

func (d DataType) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// GeoTransform is an affine pixel-to-world transform in GDAL order:
// x = T[0] + col*T[1] + row*T[2], y = T[3] + col*T[4] + row*T[5].
type GeoTransform [6]float64

func (t GeoTransform) PixelToWorld(col, row float64) (float64, float64) {
	return t[0] + col*t[1] + row*t[2], t[3] + col*t[4] + row*t[5]
}

// WorldToPixel inverts the transform. It returns NaN for a degenerate transform.
func (t GeoTransform) WorldToPixel(x, y float64) (float64, float64) {
	det := t[1]*t[5] - t[2]*t[4]
	if det == 0 {
		return math.NaN(), math.NaN()
	}
	dx, dy := x-t[0], y-t[3]
	col := (t[5]*dx - t[2]*dy) / det
	row := (-t[4]*dx + t[1]*dy) / det
	return col, row
}

// Offset returns the transform of a grid whose origin is pixel (col, row) of t.
func (t GeoTransform) Offset(col, row int) GeoTransform {
	x, y := t.PixelToWorld(float64(col), float64(row))
	out := t
	out[0], out[3] = x, y
	return out
}

func (t GeoTransform) IsNorthUp() bool {
	return t[2] == 0 && t[4] == 0
}

// GeoKeys carries the GeoTIFF key directory and its parameter tags unchanged
// from source to output.
type GeoKeys struct {
	Directory []uint16  `json:"directory,omitempty"`
	Doubles   []float64 `json:"doubles,omitempty"`
	ASCII     string    `json:"ascii,omitempty"`
}

func (k GeoKeys) Empty() bool {
	return len(k.Directory) == 0
}

type RasterMeta struct {
	Width     int          `json:"width"`
	Height    int          `json:"height"`
	Bands     int          `json:"bands"`
	DataType  DataType     `json:"dtype"`
	NoData    *float64     `json:"nodata,omitempty"`
	Transform GeoTransform `json:"transform"`
	CRS       string       `json:"crs,omitempty"`
	GeoKeys   GeoKeys      `json:"-"`
}

// Bounds returns the world extent covered by the raster.
func (m RasterMeta) Bounds() *geom.Bounds {
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, c := range [][2]float64{{0, 0}, {float64(m.Width), 0}, {0, float64(m.Height)}, {float64(m.Width), float64(m.Height)}} {
		x, y := m.Transform.PixelToWorld(c[0], c[1])
		minX, maxX = math.Min(minX, x), math.Max(maxX, x)
		minY, maxY = math.Min(minY, y), math.Max(maxY, y)
	}
	return &geom.Bounds{Min: geom.Point{X: minX, Y: minY}, Max: geom.Point{X: maxX, Y: maxY}}
}

// PixelArea returns the absolute area of one pixel in CRS units.
func (m RasterMeta) PixelArea() float64 {
	return math.Abs(m.Transform[1]*m.Transform[5] - m.Transform[2]*m.Transform[4])
}

// Fill is the value written outside a mask: nodata, or 0 when undefined.
func (m RasterMeta) Fill() float64 {
	if m.NoData != nil {
		return *m.NoData
	}
	return 0
}

// IsNoData reports whether v is the nodata value of m.
func (m RasterMeta) IsNoData(v float64) bool {
	if m.NoData == nil {
		return false
	}
	if math.IsNaN(*m.NoData) {
		return math.IsNaN(v)
	}
	return v == *m.NoData
}

// Window is a rectangle of pixels in a raster grid.
type Window struct {
	Col    int `json:"col"`
	Row    int `json:"row"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (w Window) Empty() bool {
	return w.Width <= 0 || w.Height <= 0
}

// snapEps absorbs floating point noise when bounds fall on pixel edges.
const snapEps = 1e-9

func snap(v float64) float64 {
	if r := math.Round(v); math.Abs(v-r) < snapEps {
		return r
	}
	return v
}

// WindowFor returns the smallest window of m, aligned to its grid, that covers b.
// The second result is false when b does not overlap the raster.
func (m RasterMeta) WindowFor(b *geom.Bounds) (Window, bool) {
	if b == nil {
		return Window{}, false
	}
	minCol, minRow := math.Inf(1), math.Inf(1)
	maxCol, maxRow := math.Inf(-1), math.Inf(-1)
	for _, p := range []geom.Point{b.Min, b.Max, {X: b.Min.X, Y: b.Max.Y}, {X: b.Max.X, Y: b.Min.Y}} {
		c, r := m.Transform.WorldToPixel(p.X, p.Y)
		if math.IsNaN(c) || math.IsNaN(r) {
			return Window{}, false
		}
		minCol, maxCol = math.Min(minCol, c), math.Max(maxCol, c)
		minRow, maxRow = math.Min(minRow, r), math.Max(maxRow, r)
	}

	c0 := int(math.Max(math.Floor(snap(minCol)), 0))
	r0 := int(math.Max(math.Floor(snap(minRow)), 0))
	c1 := int(math.Min(math.Ceil(snap(maxCol)), float64(m.Width)))
	r1 := int(math.Min(math.Ceil(snap(maxRow)), float64(m.Height)))

	w := Window{Col: c0, Row: r0, Width: c1 - c0, Height: r1 - r0}
	if w.Empty() {
		return Window{}, false
	}
	return w, true
}

// RasterBlock holds decoded samples of a window, one row-major slice per band.
type RasterBlock struct {
	Width  int
	Height int
	Data   [][]float64
}

func NewRasterBlock(width, height, bands int) *RasterBlock {
	data := make([][]float64, bands)
	for i := range data {
		data[i] = make([]float64, width*height)
	}
	return &RasterBlock{Width: width, Height: height, Data: data}
}

func (b *RasterBlock) Bands() int {
	return len(b.Data)
}

func (b *RasterBlock) At(band, row, col int) float64 {
	return b.Data[band][row*b.Width+col]
}

func (b *RasterBlock) Set(band, row, col int, v float64) {
	b.Data[band][row*b.Width+col] = v
}

// Validate checks that the block matches the shape declared by meta.
func (b *RasterBlock) Validate(meta RasterMeta) error {
	if b.Width != meta.Width || b.Height != meta.Height || len(b.Data) != meta.Bands {
		return fmt.Errorf("block %dx%dx%d does not match meta %dx%dx%d: %w",
			b.Width, b.Height, len(b.Data), meta.Width, meta.Height, meta.Bands, ErrUnsupportedRaster)
	}
	for i, band := range b.Data {
		if len(band) != b.Width*b.Height {
			return fmt.Errorf("band %d has %d samples, want %d: %w", i, len(band), b.Width*b.Height, ErrUnsupportedRaster)
		}
	}
	return nil
}
