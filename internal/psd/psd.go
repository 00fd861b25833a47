// Package psd decodes layered PSD/PSB design files into slides.
//
// Decoding is sequential and holds no shared state; any number of Decode
// calls may run in parallel. Per-layer problems are reported as warnings
// and the layer is dropped or degraded; only malformed headers and
// truncated sections fail the whole decode.
package psd

import (
	"image"

	"github.com/hpungsan/layerdeck/internal/errors"
	"github.com/hpungsan/layerdeck/internal/layer"
)

// DefaultMaxLayerPixels bounds the pixel area of one decoded layer raster.
const DefaultMaxLayerPixels = 1 << 27

// Severity grades a decode warning.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
)

// Warning describes a non-fatal problem found while decoding.
// LayerIndex is the record position, or -1 for document-level warnings.
type Warning struct {
	Code       errors.ErrorCode `json:"code"`
	Severity   Severity         `json:"severity"`
	LayerIndex int              `json:"layer_index"`
	LayerName  string           `json:"layer_name,omitempty"`
	Message    string           `json:"message"`
}

// Document is the result of one decode.
type Document struct {
	Header   Header                  `json:"header"`
	Slides   []layer.Slide           `json:"slides"`
	Warnings []Warning               `json:"warnings"`
	Rasters  map[string]*image.NRGBA `json:"-"`
}

// Option configures Decode.
type Option func(*options)

type options struct {
	maxLayerPixels int
	slideID        string
}

// WithMaxLayerPixels bounds the pixel area of a single layer raster.
// Layers above the bound are dropped with a channel decode warning.
func WithMaxLayerPixels(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxLayerPixels = n
		}
	}
}

// WithSlideID sets the ID of the emitted slide. Default "slide-0".
func WithSlideID(id string) Option {
	return func(o *options) {
		if id != "" {
			o.slideID = id
		}
	}
}

// Decode parses data as a PSD (version 1) or PSB (version 2) document.
// It returns a FORMAT_ERROR or TRUNCATED_INPUT error, and no document,
// when the file cannot be decoded at all.
func Decode(data []byte, opts ...Option) (*Document, error) {
	o := options{maxLayerPixels: DefaultMaxLayerPixels, slideID: "slide-0"}
	for _, opt := range opts {
		opt(&o)
	}

	d := newDecoder(data, o)
	if err := d.run(); err != nil {
		return nil, err
	}
	return d.doc, nil
}
