package psd

import (
	"fmt"

	"github.com/hpungsan/layerdeck/internal/binreader"
	"github.com/hpungsan/layerdeck/internal/errors"
)

// ColorMode is the document colour model.
type ColorMode uint16

const (
	ColorGrayscale ColorMode = 1
	ColorRGB       ColorMode = 3
	ColorCMYK      ColorMode = 4
)

func (m ColorMode) String() string {
	switch m {
	case ColorGrayscale:
		return "grayscale"
	case ColorRGB:
		return "rgb"
	case ColorCMYK:
		return "cmyk"
	default:
		return fmt.Sprintf("mode(%d)", uint16(m))
	}
}

// MarshalText renders the mode by name.
func (m ColorMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// Header is the fixed 26-byte file header.
type Header struct {
	Version   int       `json:"version"`
	Channels  int       `json:"channels"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	Depth     int       `json:"depth"`
	ColorMode ColorMode `json:"color_mode"`
}

// Large reports whether the document uses PSB 64-bit lengths.
func (h Header) Large() bool {
	return h.Version == 2
}

const (
	signature   = "8BPS"
	headerSize  = 26
	maxChannels = 56
	maxDimPSD   = 30000
	maxDimPSB   = 300000
)

func readHeader(r *binreader.Reader) (Header, error) {
	sig, err := r.FourCC()
	if err != nil {
		return Header{}, errors.NewFormat("file too short for a header")
	}
	if sig != signature {
		return Header{}, errors.NewFormat(fmt.Sprintf("bad signature %q", sig))
	}

	// The rest of the header is fixed size; check once, then read.
	if r.Len() < headerSize-4 {
		return Header{}, errors.NewFormat("file too short for a header")
	}
	version, _ := r.Uint16()
	if version != 1 && version != 2 {
		return Header{}, errors.NewFormat(fmt.Sprintf("unsupported version %d", version))
	}
	h := Header{Version: int(version)}
	_ = r.Skip(6)
	channels, _ := r.Uint16()
	height, _ := r.Uint32()
	width, _ := r.Uint32()
	depth, _ := r.Uint16()
	mode, _ := r.Uint16()

	if channels < 1 || channels > maxChannels {
		return Header{}, errors.NewFormat(fmt.Sprintf("channel count %d out of range", channels))
	}
	maxDim := uint32(maxDimPSD)
	if h.Large() {
		maxDim = maxDimPSB
	}
	if width < 1 || height < 1 || width > maxDim || height > maxDim {
		return Header{}, errors.NewFormat(fmt.Sprintf("dimensions %dx%d out of range", width, height))
	}
	if depth != 8 && depth != 16 {
		return Header{}, errors.NewFormat(fmt.Sprintf("unsupported depth %d", depth))
	}
	switch ColorMode(mode) {
	case ColorGrayscale, ColorRGB, ColorCMYK:
	default:
		return Header{}, errors.NewFormat(fmt.Sprintf("unsupported color mode %d", mode))
	}

	h.Channels = int(channels)
	h.Width = int(width)
	h.Height = int(height)
	h.Depth = int(depth)
	h.ColorMode = ColorMode(mode)
	return h, nil
}

var resourceSignatures = map[string]bool{
	"8BIM": true,
	"MeSa": true,
	"AgHg": true,
	"PHUT": true,
	"DCSR": true,
}

// skipResources walks the image resource blocks without interpreting them.
func skipResources(r *binreader.Reader) error {
	for r.Len() > 0 {
		start := r.Pos()
		sig, err := r.FourCC()
		if err != nil {
			return errors.NewTruncatedInput("image resources", start, err)
		}
		if !resourceSignatures[sig] {
			return errors.NewFormat(fmt.Sprintf("bad image resource signature %q at offset %d", sig, start))
		}
		if _, err := r.Uint16(); err != nil {
			return errors.NewTruncatedInput("image resources", start, err)
		}
		if _, err := r.PascalString(2); err != nil {
			return errors.NewTruncatedInput("image resources", start, err)
		}
		size, err := r.Length(false)
		if err != nil {
			return errors.NewTruncatedInput("image resources", start, err)
		}
		if err := r.Skip(size); err != nil {
			return errors.NewTruncatedInput("image resources", start, err)
		}
		// Data is padded to even; a missing final pad byte is tolerated.
		if size%2 == 1 && r.Len() > 0 {
			_ = r.Skip(1)
		}
	}
	return nil
}
