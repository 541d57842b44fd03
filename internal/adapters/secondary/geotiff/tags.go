package geotiff

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"spatialization-module/internal/core/domain"
)

const (
	tagImageWidth      = 256
	tagImageLength     = 257
	tagBitsPerSample   = 258
	tagCompression     = 259
	tagPhotometric     = 262
	tagStripOffsets    = 273
	tagSamplesPerPixel = 277
	tagRowsPerStrip    = 278
	tagStripByteCounts = 279
	tagPlanarConfig    = 284
	tagPredictor       = 317
	tagTileWidth       = 322
	tagTileLength      = 323
	tagTileOffsets     = 324
	tagTileByteCounts  = 325
	tagExtraSamples    = 338
	tagSampleFormat    = 339
	tagModelPixelScale = 33550
	tagModelTiepoint   = 33922
	tagModelTransform  = 34264
	tagGeoKeyDirectory = 34735
	tagGeoDoubleParams = 34736
	tagGeoASCIIParams  = 34737
	tagGDALNoData      = 42113
)

// field types
const (
	typeByte      = 1
	typeASCII     = 2
	typeShort     = 3
	typeLong      = 4
	typeRational  = 5
	typeSByte     = 6
	typeUndefined = 7
	typeSShort    = 8
	typeSLong     = 9
	typeSRational = 10
	typeFloat     = 11
	typeDouble    = 12
)

var typeSizes = map[uint16]int{
	typeByte: 1, typeASCII: 1, typeShort: 2, typeLong: 4, typeRational: 8,
	typeSByte: 1, typeUndefined: 1, typeSShort: 2, typeSLong: 4, typeSRational: 8,
	typeFloat: 4, typeDouble: 8,
}

const (
	compressionNone        = 1
	compressionLZW         = 5
	compressionDeflate     = 8
	compressionDeflateOld  = 32946
	predictorNone          = 1
	predictorHorizontal    = 2
	planarChunky           = 1
	planarSeparate         = 2
	sampleFormatUint       = 1
	sampleFormatInt        = 2
	sampleFormatFloat      = 3
	photometricMinIsBlack  = 1
	extraSampleUnspecified = 0
)

// geokeys
const (
	keyModelType      = 1024
	keyRasterType     = 1025
	keyCitation       = 1026
	keyGeographicType = 2048
	keyProjectedType  = 3072
	keyPCSCitation    = 3073

	modelTypeProjected   = 1
	modelTypeGeographic  = 2
	modelTypeUserDefined = 32767
	rasterPixelIsArea    = 1
	rasterPixelIsPoint   = 2
	userDefined          = 32767
)

type entry struct {
	tag   uint16
	typ   uint16
	count uint32
	raw   []byte
}

func (e entry) uints(order binary.ByteOrder) ([]uint64, error) {
	out := make([]uint64, e.count)
	for i := range out {
		switch e.typ {
		case typeByte, typeUndefined:
			out[i] = uint64(e.raw[i])
		case typeShort:
			out[i] = uint64(order.Uint16(e.raw[2*i:]))
		case typeLong:
			out[i] = uint64(order.Uint32(e.raw[4*i:]))
		default:
			return nil, fmt.Errorf("tag %d: type %d is not an unsigned integer: %w", e.tag, e.typ, domain.ErrUnsupportedRaster)
		}
	}
	return out, nil
}

func (e entry) floats(order binary.ByteOrder) ([]float64, error) {
	out := make([]float64, e.count)
	for i := range out {
		switch e.typ {
		case typeDouble:
			out[i] = math.Float64frombits(order.Uint64(e.raw[8*i:]))
		case typeFloat:
			out[i] = float64(math.Float32frombits(order.Uint32(e.raw[4*i:])))
		default:
			u, err := e.uints(order)
			if err != nil {
				return nil, err
			}
			out[i] = float64(u[i])
		}
	}
	return out, nil
}

func (e entry) ascii() string {
	return strings.TrimRight(string(e.raw), "\x00")
}

// ifd is a decoded image file directory keyed by tag.
type ifd map[uint16]entry

func (d ifd) uint(order binary.ByteOrder, tag uint16, def uint64) (uint64, error) {
	e, ok := d[tag]
	if !ok || e.count == 0 {
		return def, nil
	}
	v, err := e.uints(order)
	if err != nil {
		return 0, err
	}
	return v[0], nil
}

func (d ifd) uintSlice(order binary.ByteOrder, tag uint16) ([]uint64, error) {
	e, ok := d[tag]
	if !ok {
		return nil, nil
	}
	return e.uints(order)
}

func (d ifd) floatSlice(order binary.ByteOrder, tag uint16) ([]float64, error) {
	e, ok := d[tag]
	if !ok {
		return nil, nil
	}
	return e.floats(order)
}

// geoKeyValue returns the short value of key, or false when absent or stored
// out of line.
func geoKeyValue(dir []uint16, key uint16) (uint16, bool) {
	if len(dir) < 4 {
		return 0, false
	}
	n := int(dir[3])
	for i := 0; i < n && 4+4*i+3 < len(dir); i++ {
		k := dir[4+4*i:]
		if k[0] == key && k[1] == 0 {
			return k[3], true
		}
	}
	return 0, false
}

// geoKeyASCII returns the GeoAsciiParams slice referenced by key.
func geoKeyASCII(keys domain.GeoKeys, key uint16) (string, bool) {
	dir := keys.Directory
	if len(dir) < 4 {
		return "", false
	}
	n := int(dir[3])
	for i := 0; i < n && 4+4*i+3 < len(dir); i++ {
		k := dir[4+4*i:]
		if k[0] != key || k[1] != tagGeoASCIIParams {
			continue
		}
		start, end := int(k[3]), int(k[3])+int(k[2])
		if end > len(keys.ASCII) {
			return "", false
		}
		return strings.TrimRight(keys.ASCII[start:end], "|\x00"), true
	}
	return "", false
}

// setGeoKey replaces the inline value of key in place.
func setGeoKey(dir []uint16, key, value uint16) {
	if len(dir) < 4 {
		return
	}
	n := int(dir[3])
	for i := 0; i < n && 4+4*i+3 < len(dir); i++ {
		k := dir[4+4*i:]
		if k[0] == key && k[1] == 0 {
			k[3] = value
			return
		}
	}
}

// crsFromGeoKeys names the reference system as EPSG:<code> when the keys carry
// a registered code, else falls back to the citation.
func crsFromGeoKeys(keys domain.GeoKeys) string {
	model, _ := geoKeyValue(keys.Directory, keyModelType)
	if code, ok := geoKeyValue(keys.Directory, keyProjectedType); ok && code > 0 && code != userDefined {
		return fmt.Sprintf("EPSG:%d", code)
	}
	if model != modelTypeProjected {
		if code, ok := geoKeyValue(keys.Directory, keyGeographicType); ok && code > 0 && code != userDefined {
			return fmt.Sprintf("EPSG:%d", code)
		}
	}
	for _, key := range []uint16{keyPCSCitation, keyCitation} {
		if s, ok := geoKeyASCII(keys, key); ok && s != "" {
			return s
		}
	}
	return ""
}

var geographicCodes = map[int]bool{4326: true, 4258: true, 4269: true, 4267: true, 4171: true, 4283: true}

// geoKeysForCRS synthesizes a key directory for a CRS identifier. EPSG codes
// map to registered keys; anything else is kept as a citation.
func geoKeysForCRS(crs string) domain.GeoKeys {
	crs = strings.TrimSpace(crs)
	if crs == "" {
		return domain.GeoKeys{}
	}

	var code int
	if _, err := fmt.Sscanf(strings.ToUpper(crs), "EPSG:%d", &code); err == nil && code > 0 && code < userDefined {
		model, key := uint16(modelTypeProjected), uint16(keyProjectedType)
		if geographicCodes[code] {
			model, key = modelTypeGeographic, keyGeographicType
		}
		return domain.GeoKeys{Directory: []uint16{
			1, 1, 0, 3,
			keyModelType, 0, 1, model,
			keyRasterType, 0, 1, rasterPixelIsArea,
			key, 0, 1, uint16(code),
		}}
	}

	ascii := crs + "|"
	return domain.GeoKeys{
		Directory: []uint16{
			1, 1, 0, 3,
			keyModelType, 0, 1, modelTypeUserDefined,
			keyRasterType, 0, 1, rasterPixelIsArea,
			keyCitation, tagGeoASCIIParams, uint16(len(ascii)), 0,
		},
		ASCII: ascii,
	}
}
