package geotiff

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"sync"

	"spatialization-module/internal/core/domain"
)

// layout is the pixel organisation of the first image of a TIFF file.
type layout struct {
	order       binary.ByteOrder
	width       int
	height      int
	bands       int
	sampleSize  int
	format      uint16
	compression uint16
	predictor   uint16
	planar      uint16

	// strips are handled as tiles as wide as the image
	tiled          bool
	chunkW, chunkH int
	across, down   int
	offsets        []uint64
	counts         []uint64
}

// Dataset is an open GeoTIFF. Only the first image of the file is used.
type Dataset struct {
	mu     sync.Mutex
	r      io.ReaderAt
	closer io.Closer
	lay    layout
	meta   domain.RasterMeta
}

// NewDataset parses the header and first IFD of r. closer may be nil.
func NewDataset(r io.ReaderAt, closer io.Closer) (*Dataset, error) {
	var hdr [8]byte
	if err := readFullAt(r, hdr[:], 0); err != nil {
		return nil, fmt.Errorf("read header: %w: %w", domain.ErrIOFailure, err)
	}

	var order binary.ByteOrder
	switch string(hdr[:2]) {
	case "II":
		order = binary.LittleEndian
	case "MM":
		order = binary.BigEndian
	default:
		return nil, fmt.Errorf("not a tiff file: %w", domain.ErrUnsupportedRaster)
	}
	switch order.Uint16(hdr[2:]) {
	case 42:
	case 43:
		return nil, fmt.Errorf("bigtiff: %w", domain.ErrUnsupportedRaster)
	default:
		return nil, fmt.Errorf("bad tiff magic: %w", domain.ErrUnsupportedRaster)
	}

	dir, err := readIFD(r, order, int64(order.Uint32(hdr[4:])))
	if err != nil {
		return nil, err
	}
	lay, err := parseLayout(dir, order)
	if err != nil {
		return nil, err
	}
	meta, err := parseMeta(dir, order, lay)
	if err != nil {
		return nil, err
	}
	return &Dataset{r: r, closer: closer, lay: lay, meta: meta}, nil
}

// readFullAt accepts io.EOF when the buffer was filled up to the end of r.
func readFullAt(r io.ReaderAt, buf []byte, off int64) error {
	n, err := r.ReadAt(buf, off)
	if n == len(buf) && errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func readIFD(r io.ReaderAt, order binary.ByteOrder, offset int64) (ifd, error) {
	var n [2]byte
	if err := readFullAt(r, n[:], offset); err != nil {
		return nil, fmt.Errorf("read ifd: %w: %w", domain.ErrIOFailure, err)
	}
	count := int(order.Uint16(n[:]))
	buf := make([]byte, 12*count)
	if err := readFullAt(r, buf, offset+2); err != nil {
		return nil, fmt.Errorf("read ifd entries: %w: %w", domain.ErrIOFailure, err)
	}

	dir := make(ifd, count)
	for i := 0; i < count; i++ {
		b := buf[12*i : 12*i+12]
		e := entry{tag: order.Uint16(b), typ: order.Uint16(b[2:]), count: order.Uint32(b[4:])}
		size, ok := typeSizes[e.typ]
		if !ok {
			// unknown field types are skipped
			continue
		}
		n := size * int(e.count)
		if n <= 4 {
			e.raw = append([]byte(nil), b[8:8+n]...)
		} else {
			e.raw = make([]byte, n)
			if err := readFullAt(r, e.raw, int64(order.Uint32(b[8:]))); err != nil {
				return nil, fmt.Errorf("read tag %d: %w: %w", e.tag, domain.ErrIOFailure, err)
			}
		}
		dir[e.tag] = e
	}
	return dir, nil
}

func parseLayout(dir ifd, order binary.ByteOrder) (layout, error) {
	lay := layout{order: order}
	get := func(tag uint16, def uint64) int {
		v, _ := dir.uint(order, tag, def)
		return int(v)
	}

	lay.width = get(tagImageWidth, 0)
	lay.height = get(tagImageLength, 0)
	lay.bands = get(tagSamplesPerPixel, 1)
	lay.compression = uint16(get(tagCompression, compressionNone))
	lay.predictor = uint16(get(tagPredictor, predictorNone))
	lay.planar = uint16(get(tagPlanarConfig, planarChunky))
	if lay.width <= 0 || lay.height <= 0 || lay.bands <= 0 {
		return lay, fmt.Errorf("image %dx%dx%d: %w", lay.width, lay.height, lay.bands, domain.ErrUnsupportedRaster)
	}

	bits, err := dir.uintSlice(order, tagBitsPerSample)
	if err != nil {
		return lay, err
	}
	if len(bits) == 0 {
		bits = []uint64{1}
	}
	for _, b := range bits[1:] {
		if b != bits[0] {
			return lay, fmt.Errorf("mixed bits per sample: %w", domain.ErrUnsupportedRaster)
		}
	}
	if bits[0]%8 != 0 || bits[0] == 0 || bits[0] > 64 {
		return lay, fmt.Errorf("%d bits per sample: %w", bits[0], domain.ErrUnsupportedRaster)
	}
	lay.sampleSize = int(bits[0] / 8)

	formats, err := dir.uintSlice(order, tagSampleFormat)
	if err != nil {
		return lay, err
	}
	lay.format = sampleFormatUint
	if len(formats) > 0 {
		lay.format = uint16(formats[0])
	}
	if _, err := lay.dataType(); err != nil {
		return lay, err
	}

	switch lay.predictor {
	case predictorNone:
	case predictorHorizontal:
		if lay.format == sampleFormatFloat {
			return lay, fmt.Errorf("horizontal predictor on float samples: %w", domain.ErrUnsupportedRaster)
		}
	default:
		return lay, fmt.Errorf("predictor %d: %w", lay.predictor, domain.ErrUnsupportedRaster)
	}
	if lay.planar != planarChunky && lay.planar != planarSeparate {
		return lay, fmt.Errorf("planar configuration %d: %w", lay.planar, domain.ErrUnsupportedRaster)
	}

	if _, lay.tiled = dir[tagTileWidth]; lay.tiled {
		lay.chunkW = get(tagTileWidth, 0)
		lay.chunkH = get(tagTileLength, 0)
		if lay.offsets, err = dir.uintSlice(order, tagTileOffsets); err != nil {
			return lay, err
		}
		if lay.counts, err = dir.uintSlice(order, tagTileByteCounts); err != nil {
			return lay, err
		}
	} else {
		lay.chunkW = lay.width
		lay.chunkH = get(tagRowsPerStrip, uint64(lay.height))
		if lay.chunkH > lay.height {
			lay.chunkH = lay.height
		}
		if lay.offsets, err = dir.uintSlice(order, tagStripOffsets); err != nil {
			return lay, err
		}
		if lay.counts, err = dir.uintSlice(order, tagStripByteCounts); err != nil {
			return lay, err
		}
	}
	if lay.chunkW <= 0 || lay.chunkH <= 0 {
		return lay, fmt.Errorf("chunk size %dx%d: %w", lay.chunkW, lay.chunkH, domain.ErrUnsupportedRaster)
	}

	lay.across = (lay.width + lay.chunkW - 1) / lay.chunkW
	lay.down = (lay.height + lay.chunkH - 1) / lay.chunkH
	want := lay.across * lay.down
	if lay.planar == planarSeparate {
		want *= lay.bands
	}
	if len(lay.offsets) < want || len(lay.counts) < want {
		return lay, fmt.Errorf("%d chunks listed, want %d: %w", len(lay.offsets), want, domain.ErrUnsupportedRaster)
	}
	return lay, nil
}

func (l layout) dataType() (domain.DataType, error) {
	switch {
	case l.format == sampleFormatUint && l.sampleSize == 1:
		return domain.DataTypeByte, nil
	case l.format == sampleFormatUint && l.sampleSize == 2:
		return domain.DataTypeUInt16, nil
	case l.format == sampleFormatUint && l.sampleSize == 4:
		return domain.DataTypeUInt32, nil
	case l.format == sampleFormatInt && l.sampleSize == 1:
		return domain.DataTypeInt8, nil
	case l.format == sampleFormatInt && l.sampleSize == 2:
		return domain.DataTypeInt16, nil
	case l.format == sampleFormatInt && l.sampleSize == 4:
		return domain.DataTypeInt32, nil
	case l.format == sampleFormatFloat && l.sampleSize == 4:
		return domain.DataTypeFloat32, nil
	case l.format == sampleFormatFloat && l.sampleSize == 8:
		return domain.DataTypeFloat64, nil
	}
	return domain.DataTypeUnknown, fmt.Errorf("sample format %d with %d bytes: %w", l.format, l.sampleSize, domain.ErrUnsupportedRaster)
}

func parseMeta(dir ifd, order binary.ByteOrder, lay layout) (domain.RasterMeta, error) {
	dtype, _ := lay.dataType()
	meta := domain.RasterMeta{
		Width:     lay.width,
		Height:    lay.height,
		Bands:     lay.bands,
		DataType:  dtype,
		Transform: domain.GeoTransform{0, 1, 0, 0, 0, 1},
	}

	if e, ok := dir[tagGeoKeyDirectory]; ok {
		keys, err := e.uints(order)
		if err != nil {
			return meta, err
		}
		meta.GeoKeys.Directory = make([]uint16, len(keys))
		for i, k := range keys {
			meta.GeoKeys.Directory[i] = uint16(k)
		}
		if meta.GeoKeys.Doubles, err = dir.floatSlice(order, tagGeoDoubleParams); err != nil {
			return meta, err
		}
		if e, ok := dir[tagGeoASCIIParams]; ok {
			meta.GeoKeys.ASCII = e.ascii()
		}
	}

	transform, err := dir.floatSlice(order, tagModelTransform)
	if err != nil {
		return meta, err
	}
	scale, err := dir.floatSlice(order, tagModelPixelScale)
	if err != nil {
		return meta, err
	}
	tie, err := dir.floatSlice(order, tagModelTiepoint)
	if err != nil {
		return meta, err
	}
	switch {
	case len(transform) >= 16:
		meta.Transform = domain.GeoTransform{transform[3], transform[0], transform[1], transform[7], transform[4], transform[5]}
	case len(scale) >= 2 && len(tie) >= 6:
		meta.Transform = domain.GeoTransform{
			tie[3] - tie[0]*scale[0], scale[0], 0,
			tie[4] + tie[1]*scale[1], 0, -scale[1],
		}
	}

	// PixelIsPoint tiepoints name pixel centres; shift to corners and record
	// the grid as PixelIsArea so a rewrite stays consistent.
	if rt, ok := geoKeyValue(meta.GeoKeys.Directory, keyRasterType); ok && rt == rasterPixelIsPoint {
		t := meta.Transform
		meta.Transform[0] = t[0] - 0.5*t[1] - 0.5*t[2]
		meta.Transform[3] = t[3] - 0.5*t[4] - 0.5*t[5]
		setGeoKey(meta.GeoKeys.Directory, keyRasterType, rasterPixelIsArea)
	}
	meta.CRS = crsFromGeoKeys(meta.GeoKeys)

	if e, ok := dir[tagGDALNoData]; ok {
		s := strings.TrimSpace(e.ascii())
		if v, err := strconv.ParseFloat(s, 64); err == nil {
			meta.NoData = &v
		}
	}
	return meta, nil
}

func (d *Dataset) Meta() domain.RasterMeta {
	return d.meta
}

// ReadWindow decodes the chunks overlapping w and returns its samples.
func (d *Dataset) ReadWindow(ctx context.Context, w domain.Window) (*domain.RasterBlock, error) {
	if w.Empty() || w.Col < 0 || w.Row < 0 || w.Col+w.Width > d.meta.Width || w.Row+w.Height > d.meta.Height {
		return nil, fmt.Errorf("window %+v outside %dx%d raster: %w", w, d.meta.Width, d.meta.Height, domain.ErrEmptyIntersection)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	lay := d.lay
	block := domain.NewRasterBlock(w.Width, w.Height, lay.bands)
	planes := 1
	if lay.planar == planarSeparate {
		planes = lay.bands
	}

	for cy := w.Row / lay.chunkH; cy <= (w.Row+w.Height-1)/lay.chunkH; cy++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for cx := w.Col / lay.chunkW; cx <= (w.Col+w.Width-1)/lay.chunkW; cx++ {
			for plane := 0; plane < planes; plane++ {
				if err := d.copyChunk(block, w, cx, cy, plane); err != nil {
					return nil, err
				}
			}
		}
	}
	return block, nil
}

func (d *Dataset) copyChunk(block *domain.RasterBlock, w domain.Window, cx, cy, plane int) error {
	lay := d.lay
	idx := plane*lay.across*lay.down + cy*lay.across + cx

	// strips may be short at the bottom; tiles are always padded
	rows := lay.chunkH
	if !lay.tiled && (cy+1)*lay.chunkH > lay.height {
		rows = lay.height - cy*lay.chunkH
	}
	spp := lay.bands
	if lay.planar == planarSeparate {
		spp = 1
	}
	size := lay.chunkW * rows * spp * lay.sampleSize

	raw := make([]byte, lay.counts[idx])
	if err := readFullAt(d.r, raw, int64(lay.offsets[idx])); err != nil {
		return fmt.Errorf("read chunk %d: %w: %w", idx, domain.ErrIOFailure, err)
	}
	buf, err := decompress(lay.compression, raw, size)
	if err != nil {
		return fmt.Errorf("chunk %d: %w", idx, err)
	}
	if lay.predictor == predictorHorizontal {
		if err := undoHorizontalPredictor(buf, lay.order, lay.chunkW, rows, spp, lay.sampleSize); err != nil {
			return err
		}
	}

	x0, y0 := cx*lay.chunkW, cy*lay.chunkH
	colFrom, colTo := max(w.Col, x0), min(w.Col+w.Width, x0+lay.chunkW, lay.width)
	rowFrom, rowTo := max(w.Row, y0), min(w.Row+w.Height, y0+rows)

	for row := rowFrom; row < rowTo; row++ {
		for col := colFrom; col < colTo; col++ {
			px := ((row-y0)*lay.chunkW + (col - x0)) * spp
			for s := 0; s < spp; s++ {
				band := s
				if lay.planar == planarSeparate {
					band = plane
				}
				off := (px + s) * lay.sampleSize
				block.Set(band, row-w.Row, col-w.Col, lay.sample(buf[off:]))
			}
		}
	}
	return nil
}

func (l layout) sample(b []byte) float64 {
	o := l.order
	switch l.format {
	case sampleFormatFloat:
		if l.sampleSize == 4 {
			return float64(math.Float32frombits(o.Uint32(b)))
		}
		return math.Float64frombits(o.Uint64(b))
	case sampleFormatInt:
		switch l.sampleSize {
		case 1:
			return float64(int8(b[0]))
		case 2:
			return float64(int16(o.Uint16(b)))
		default:
			return float64(int32(o.Uint32(b)))
		}
	default:
		switch l.sampleSize {
		case 1:
			return float64(b[0])
		case 2:
			return float64(o.Uint16(b))
		default:
			return float64(o.Uint32(b))
		}
	}
}

func (d *Dataset) Close() error {
	if d.closer == nil {
		return nil
	}
	return d.closer.Close()
}
