package psd

import (
	"bytes"
	"compress/zlib"
	"crypto/sha256"
	"encoding/binary"
	stderrors "errors"
	"fmt"
	"image"
	"io"

	"github.com/hpungsan/layerdeck/internal/binreader"
	"github.com/hpungsan/layerdeck/internal/errors"
)

const (
	compRaw        = 0
	compRLE        = 1
	compZip        = 2
	compZipPredict = 3

	// A PackBits run of two bytes expands to at most 128.
	maxPackBitsRatio = 128
	// Deflate cannot exceed roughly 1032:1.
	maxDeflateRatio = 1032
)

var (
	errRunOverflow = stderrors.New("PackBits run exceeds row or input")
	errShortRow    = stderrors.New("PackBits row shorter than layer width")
)

func (d *decoder) readChannelData(r *binreader.Reader, rec *record) error {
	w, h := rec.width(), rec.height()
	decode := rec.dropErr == nil && rec.wantsRaster() && w > 0 && h > 0
	if decode && w*h > d.opts.maxLayerPixels {
		rec.dropErr = errors.NewChannelDecode(0, fmt.Errorf("layer area %dx%d exceeds limit of %d pixels", w, h, d.opts.maxLayerPixels))
		decode = false
	}

	planes := make(map[int16][]byte, len(rec.channels))
	for _, ch := range rec.channels {
		start := r.Pos()
		data, err := r.Sub(ch.length)
		if err != nil {
			return errors.NewTruncatedInput(fmt.Sprintf("channel %d of layer %d", ch.id, rec.index), start, err)
		}
		// User and vector mask channels are not part of the raster.
		if !decode || rec.dropErr != nil || ch.id < -1 {
			continue
		}
		plane, err := decodeChannel(data, w, h, d.hdr.Depth, d.hdr.Large())
		if err != nil {
			rec.dropErr = errors.NewChannelDecode(int(ch.id), err)
			continue
		}
		planes[ch.id] = plane
	}

	if decode && rec.dropErr == nil {
		rec.raster = assemble(planes, w, h, d.hdr.ColorMode)
	}
	return nil
}

// decodeChannel returns one 8-bit sample per pixel.
func decodeChannel(r *binreader.Reader, w, h, depth int, large bool) ([]byte, error) {
	comp, err := r.Uint16()
	if err != nil {
		return nil, fmt.Errorf("compression tag: %w", err)
	}
	bps := depth / 8
	rowBytes := w * bps
	size := rowBytes * h

	var plane []byte
	switch comp {
	case compRaw:
		plane, err = r.Bytes(size)
		if err != nil {
			return nil, fmt.Errorf("raw data: %w", err)
		}
	case compRLE:
		plane, err = unpackRLE(r, rowBytes, h, large)
		if err != nil {
			return nil, err
		}
	case compZip, compZipPredict:
		plane, err = inflate(r, size)
		if err != nil {
			return nil, err
		}
		if comp == compZipPredict {
			unpredict(plane, w, h, bps)
		}
	default:
		return nil, fmt.Errorf("unknown compression %d", comp)
	}

	if bps == 2 {
		out := make([]byte, w*h)
		for i := range out {
			out[i] = plane[2*i]
		}
		return out, nil
	}
	return plane, nil
}

func unpackRLE(r *binreader.Reader, rowBytes, rows int, large bool) ([]byte, error) {
	countSize := 2
	if large {
		countSize = 4
	}
	if rows*countSize > r.Len() {
		return nil, fmt.Errorf("row byte counts need %d bytes, have %d", rows*countSize, r.Len())
	}
	counts := make([]int, rows)
	total := 0
	for i := range counts {
		if large {
			v, _ := r.Uint32()
			counts[i] = int(v)
		} else {
			v, _ := r.Uint16()
			counts[i] = int(v)
		}
		total += counts[i]
	}
	if total > r.Len() {
		return nil, fmt.Errorf("row byte counts total %d, channel has %d", total, r.Len())
	}
	if rowBytes*rows > total*maxPackBitsRatio {
		return nil, fmt.Errorf("%d compressed bytes cannot expand to %d", total, rowBytes*rows)
	}

	out := make([]byte, rowBytes*rows)
	for y, n := range counts {
		src, _ := r.Bytes(n)
		if err := unpackBits(out[y*rowBytes:(y+1)*rowBytes], src); err != nil {
			return nil, fmt.Errorf("row %d: %w", y, err)
		}
	}
	return out, nil
}

// unpackBits decodes one PackBits row into dst, which must be filled exactly.
func unpackBits(dst, src []byte) error {
	o, i := 0, 0
	for i < len(src) {
		n := int(int8(src[i]))
		i++
		switch {
		case n >= 0:
			count := n + 1
			if i+count > len(src) || o+count > len(dst) {
				return errRunOverflow
			}
			copy(dst[o:], src[i:i+count])
			i += count
			o += count
		case n > -128:
			count := 1 - n
			if i >= len(src) || o+count > len(dst) {
				return errRunOverflow
			}
			b := src[i]
			i++
			for k := 0; k < count; k++ {
				dst[o+k] = b
			}
			o += count
		}
	}
	if o != len(dst) {
		return errShortRow
	}
	return nil
}

func inflate(r *binreader.Reader, size int) ([]byte, error) {
	src, _ := r.Bytes(r.Len())
	if size > len(src)*maxDeflateRatio {
		return nil, fmt.Errorf("%d compressed bytes cannot expand to %d", len(src), size)
	}
	zr, err := zlib.NewReader(bytes.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("zip: %w", err)
	}
	defer zr.Close()
	out := make([]byte, size)
	if _, err := io.ReadFull(zr, out); err != nil {
		return nil, fmt.Errorf("zip: %w", err)
	}
	return out, nil
}

// unpredict reverses per-row delta encoding in place.
func unpredict(plane []byte, w, h, bps int) {
	rowBytes := w * bps
	for y := 0; y < h; y++ {
		row := plane[y*rowBytes : (y+1)*rowBytes]
		if bps == 2 {
			for x := 1; x < w; x++ {
				prev := binary.BigEndian.Uint16(row[(x-1)*2:])
				cur := binary.BigEndian.Uint16(row[x*2:])
				binary.BigEndian.PutUint16(row[x*2:], cur+prev)
			}
			continue
		}
		for x := 1; x < w; x++ {
			row[x] += row[x-1]
		}
	}
}

// assemble merges decoded planes into an NRGBA raster. Missing colour
// planes read as empty; a missing alpha plane reads as opaque.
func assemble(planes map[int16][]byte, w, h int, mode ColorMode) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	alpha := planes[-1]
	for i := 0; i < w*h; i++ {
		var r, g, b byte
		switch mode {
		case ColorGrayscale:
			v := sample(planes[0], i, 0)
			r, g, b = v, v, v
		case ColorCMYK:
			// Stored inverted: 255 means no ink.
			k := uint16(sample(planes[3], i, 255))
			r = byte(uint16(sample(planes[0], i, 255)) * k / 255)
			g = byte(uint16(sample(planes[1], i, 255)) * k / 255)
			b = byte(uint16(sample(planes[2], i, 255)) * k / 255)
		default:
			r = sample(planes[0], i, 0)
			g = sample(planes[1], i, 0)
			b = sample(planes[2], i, 0)
		}
		px := img.Pix[i*4 : i*4+4 : i*4+4]
		px[0], px[1], px[2], px[3] = r, g, b, sample(alpha, i, 255)
	}
	return img
}

func sample(p []byte, i int, def byte) byte {
	if p == nil {
		return def
	}
	return p[i]
}

// locatorFor returns the content address of a raster.
func locatorFor(img *image.NRGBA) string {
	h := sha256.New()
	var dims [8]byte
	binary.BigEndian.PutUint32(dims[:4], uint32(img.Rect.Dx()))
	binary.BigEndian.PutUint32(dims[4:], uint32(img.Rect.Dy()))
	h.Write(dims[:])
	h.Write(img.Pix)
	return fmt.Sprintf("sha256:%x", h.Sum(nil))
}
