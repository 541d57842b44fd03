package geotiff

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"

	"spatialization-module/internal/core/domain"
)

// targetStripBytes bounds the uncompressed size of one written strip.
const targetStripBytes = 64 << 10

var le = binary.LittleEndian

type outEntry struct {
	tag   uint16
	typ   uint16
	count uint32
	data  []byte
}

// Encode writes block as a little-endian, deflate-compressed, striped GeoTIFF.
func Encode(w io.Writer, meta domain.RasterMeta, block *domain.RasterBlock) error {
	if err := block.Validate(meta); err != nil {
		return err
	}
	size := meta.DataType.Size()
	if size == 0 {
		return fmt.Errorf("data type %s: %w", meta.DataType, domain.ErrUnsupportedRaster)
	}

	rowBytes := meta.Width * meta.Bands * size
	rowsPerStrip := max(1, targetStripBytes/rowBytes)
	rowsPerStrip = min(rowsPerStrip, meta.Height)

	var strips [][]byte
	for y := 0; y < meta.Height; y += rowsPerStrip {
		rows := min(rowsPerStrip, meta.Height-y)
		raw := make([]byte, rows*rowBytes)
		for r := 0; r < rows; r++ {
			for c := 0; c < meta.Width; c++ {
				for b := 0; b < meta.Bands; b++ {
					off := r*rowBytes + (c*meta.Bands+b)*size
					putSample(raw[off:], meta.DataType, block.At(b, y+r, c))
				}
			}
		}
		z, err := deflate(raw)
		if err != nil {
			return fmt.Errorf("compress strip: %w", err)
		}
		strips = append(strips, z)
	}

	entries := baseEntries(meta, rowsPerStrip, len(strips))
	entries = append(entries, geoEntries(meta)...)
	sort.Slice(entries, func(i, j int) bool { return entries[i].tag < entries[j].tag })

	// header | strips | ifd | out-of-line values
	offset := uint32(8)
	stripOffsets := make([]uint32, len(strips))
	stripCounts := make([]uint32, len(strips))
	for i, s := range strips {
		stripOffsets[i] = offset
		stripCounts[i] = uint32(len(s))
		offset += uint32(len(s))
	}
	if offset%2 == 1 {
		offset++
	}
	ifdOffset := offset
	for i := range entries {
		switch entries[i].tag {
		case tagStripOffsets:
			entries[i].data = longs(stripOffsets...)
		case tagStripByteCounts:
			entries[i].data = longs(stripCounts...)
		}
	}

	bw := bufio.NewWriter(w)
	var hdr [8]byte
	copy(hdr[:], "II")
	le.PutUint16(hdr[2:], 42)
	le.PutUint32(hdr[4:], ifdOffset)
	if _, err := bw.Write(hdr[:]); err != nil {
		return err
	}
	for _, s := range strips {
		if _, err := bw.Write(s); err != nil {
			return err
		}
	}
	// word alignment of the ifd
	if ifdOffset != 8+sumLen(strips) {
		if err := bw.WriteByte(0); err != nil {
			return err
		}
	}

	extra := ifdOffset + 2 + 12*uint32(len(entries)) + 4
	var tail []byte
	ifdBuf := make([]byte, 2, 2+12*len(entries)+4)
	le.PutUint16(ifdBuf, uint16(len(entries)))
	for _, e := range entries {
		var ent [12]byte
		le.PutUint16(ent[0:], e.tag)
		le.PutUint16(ent[2:], e.typ)
		le.PutUint32(ent[4:], e.count)
		if len(e.data) <= 4 {
			copy(ent[8:], e.data)
		} else {
			le.PutUint32(ent[8:], extra+uint32(len(tail)))
			tail = append(tail, e.data...)
			if len(tail)%2 == 1 {
				tail = append(tail, 0)
			}
		}
		ifdBuf = append(ifdBuf, ent[:]...)
	}
	ifdBuf = append(ifdBuf, 0, 0, 0, 0)

	if _, err := bw.Write(ifdBuf); err != nil {
		return err
	}
	if _, err := bw.Write(tail); err != nil {
		return err
	}
	return bw.Flush()
}

func sumLen(chunks [][]byte) uint32 {
	n := 0
	for _, c := range chunks {
		n += len(c)
	}
	return uint32(n)
}

func baseEntries(meta domain.RasterMeta, rowsPerStrip, strips int) []outEntry {
	bits := make([]uint16, meta.Bands)
	formats := make([]uint16, meta.Bands)
	for i := range bits {
		bits[i] = uint16(meta.DataType.Size() * 8)
		formats[i] = sampleFormat(meta.DataType)
	}

	entries := []outEntry{
		{tagImageWidth, typeLong, 1, longs(uint32(meta.Width))},
		{tagImageLength, typeLong, 1, longs(uint32(meta.Height))},
		{tagBitsPerSample, typeShort, uint32(meta.Bands), shorts(bits...)},
		{tagCompression, typeShort, 1, shorts(compressionDeflate)},
		{tagPhotometric, typeShort, 1, shorts(photometricMinIsBlack)},
		{tagStripOffsets, typeLong, uint32(strips), nil},
		{tagSamplesPerPixel, typeShort, 1, shorts(uint16(meta.Bands))},
		{tagRowsPerStrip, typeLong, 1, longs(uint32(rowsPerStrip))},
		{tagStripByteCounts, typeLong, uint32(strips), nil},
		{tagPlanarConfig, typeShort, 1, shorts(planarChunky)},
		{tagSampleFormat, typeShort, uint32(meta.Bands), shorts(formats...)},
	}
	if meta.Bands > 1 {
		extra := make([]uint16, meta.Bands-1)
		for i := range extra {
			extra[i] = extraSampleUnspecified
		}
		entries = append(entries, outEntry{tagExtraSamples, typeShort, uint32(len(extra)), shorts(extra...)})
	}
	if meta.NoData != nil {
		s := formatNoData(*meta.NoData) + "\x00"
		entries = append(entries, outEntry{tagGDALNoData, typeASCII, uint32(len(s)), []byte(s)})
	}
	return entries
}

func geoEntries(meta domain.RasterMeta) []outEntry {
	var entries []outEntry
	t := meta.Transform
	if t.IsNorthUp() && t[5] < 0 {
		entries = append(entries,
			outEntry{tagModelPixelScale, typeDouble, 3, doubles(t[1], -t[5], 0)},
			outEntry{tagModelTiepoint, typeDouble, 6, doubles(0, 0, 0, t[0], t[3], 0)},
		)
	} else {
		entries = append(entries, outEntry{tagModelTransform, typeDouble, 16, doubles(
			t[1], t[2], 0, t[0],
			t[4], t[5], 0, t[3],
			0, 0, 0, 0,
			0, 0, 0, 1,
		)})
	}

	keys := meta.GeoKeys
	if keys.Empty() {
		keys = geoKeysForCRS(meta.CRS)
	}
	if keys.Empty() {
		return entries
	}
	entries = append(entries, outEntry{tagGeoKeyDirectory, typeShort, uint32(len(keys.Directory)), shorts(keys.Directory...)})
	if len(keys.Doubles) > 0 {
		entries = append(entries, outEntry{tagGeoDoubleParams, typeDouble, uint32(len(keys.Doubles)), doubles(keys.Doubles...)})
	}
	if keys.ASCII != "" {
		s := keys.ASCII + "\x00"
		entries = append(entries, outEntry{tagGeoASCIIParams, typeASCII, uint32(len(s)), []byte(s)})
	}
	return entries
}

func formatNoData(v float64) string {
	switch {
	case math.IsNaN(v):
		return "nan"
	case math.IsInf(v, 1):
		return "inf"
	case math.IsInf(v, -1):
		return "-inf"
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func sampleFormat(dt domain.DataType) uint16 {
	switch dt {
	case domain.DataTypeInt8, domain.DataTypeInt16, domain.DataTypeInt32:
		return sampleFormatInt
	case domain.DataTypeFloat32, domain.DataTypeFloat64:
		return sampleFormatFloat
	}
	return sampleFormatUint
}

func putSample(b []byte, dt domain.DataType, v float64) {
	switch dt {
	case domain.DataTypeByte:
		b[0] = uint8(math.Round(v))
	case domain.DataTypeInt8:
		b[0] = uint8(int8(math.Round(v)))
	case domain.DataTypeUInt16:
		le.PutUint16(b, uint16(math.Round(v)))
	case domain.DataTypeInt16:
		le.PutUint16(b, uint16(int16(math.Round(v))))
	case domain.DataTypeUInt32:
		le.PutUint32(b, uint32(math.Round(v)))
	case domain.DataTypeInt32:
		le.PutUint32(b, uint32(int32(math.Round(v))))
	case domain.DataTypeFloat32:
		le.PutUint32(b, math.Float32bits(float32(v)))
	case domain.DataTypeFloat64:
		le.PutUint64(b, math.Float64bits(v))
	}
}

func shorts(v ...uint16) []byte {
	out := make([]byte, 2*len(v))
	for i, x := range v {
		le.PutUint16(out[2*i:], x)
	}
	return out
}

func longs(v ...uint32) []byte {
	out := make([]byte, 4*len(v))
	for i, x := range v {
		le.PutUint32(out[4*i:], x)
	}
	return out
}

func doubles(v ...float64) []byte {
	out := make([]byte, 8*len(v))
	for i, x := range v {
		le.PutUint64(out[8*i:], math.Float64bits(x))
	}
	return out
}
