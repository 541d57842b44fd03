package geotiff

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
	"golang.org/x/image/tiff/lzw"

	"spatialization-module/internal/core/domain"
)

// decompress inflates one chunk into exactly size bytes.
func decompress(compression uint16, raw []byte, size int) ([]byte, error) {
	var r io.Reader
	switch compression {
	case compressionNone:
		if len(raw) < size {
			return nil, fmt.Errorf("chunk has %d bytes, want %d: %w", len(raw), size, domain.ErrIOFailure)
		}
		return raw[:size], nil
	case compressionLZW:
		lr := lzw.NewReader(bytes.NewReader(raw), lzw.MSB, 8)
		defer lr.Close()
		r = lr
	case compressionDeflate, compressionDeflateOld:
		zr, err := zlib.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("deflate: %w: %w", domain.ErrIOFailure, err)
		}
		defer zr.Close()
		r = zr
	default:
		return nil, fmt.Errorf("compression %d: %w", compression, domain.ErrUnsupportedRaster)
	}

	buf := make([]byte, size)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("decode chunk: %w: %w", domain.ErrIOFailure, err)
	}
	return buf, nil
}

func deflate(raw []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw, err := zlib.NewWriterLevel(&buf, zlib.DefaultCompression)
	if err != nil {
		return nil, err
	}
	if _, err := zw.Write(raw); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// undoHorizontalPredictor reverses horizontal differencing in place. Samples
// wrap around at their integer width.
func undoHorizontalPredictor(buf []byte, order binary.ByteOrder, width, rows, samplesPerPixel, sampleSize int) error {
	rowLen := width * samplesPerPixel * sampleSize
	for r := 0; r < rows; r++ {
		row := buf[r*rowLen : (r+1)*rowLen]
		for i := samplesPerPixel; i < width*samplesPerPixel; i++ {
			cur, prev := i*sampleSize, (i-samplesPerPixel)*sampleSize
			switch sampleSize {
			case 1:
				row[cur] += row[prev]
			case 2:
				order.PutUint16(row[cur:], order.Uint16(row[cur:])+order.Uint16(row[prev:]))
			case 4:
				order.PutUint32(row[cur:], order.Uint32(row[cur:])+order.Uint32(row[prev:]))
			case 8:
				order.PutUint64(row[cur:], order.Uint64(row[cur:])+order.Uint64(row[prev:]))
			default:
				return fmt.Errorf("predictor on %d-byte samples: %w", sampleSize, domain.ErrUnsupportedRaster)
			}
		}
	}
	return nil
}
