package compose

import (
	"math"

	"github.com/hpungsan/layerdeck/internal/errors"
	"github.com/hpungsan/layerdeck/internal/fonts"
	"github.com/hpungsan/layerdeck/internal/layer"
)

// RenderTree is the composited form of one slide at one scale. Elements are
// in paint order, bottom first.
type RenderTree struct {
	SlideID    string    `json:"slideId"`
	Scale      float64   `json:"scale"`
	Width      float64   `json:"width"`
	Height     float64   `json:"height"`
	Elements   []Element `json:"elements"`
	Incomplete bool      `json:"incomplete,omitempty"`
}

// Warnings collects element warnings in paint order.
func (t *RenderTree) Warnings() []Warning {
	var out []Warning
	for _, e := range t.Elements {
		out = append(out, e.Warnings...)
	}
	return out
}

// Element is one visible layer placed in output coordinates.
type Element struct {
	LayerID   string     `json:"layerId"`
	Kind      layer.Kind `json:"kind"`
	X         float64    `json:"x"`
	Y         float64    `json:"y"`
	Width     float64    `json:"width"`
	Height    float64    `json:"height"`
	Rotation  float64    `json:"rotation"`
	Opacity   float64    `json:"opacity"`
	ZIndex    int        `json:"zIndex"`
	Transform Matrix     `json:"transform"`

	Text  *TextRun  `json:"text,omitempty"`
	Image *ImageRef `json:"image,omitempty"`
	Shape *ShapeRun `json:"shape,omitempty"`

	Warnings []Warning `json:"warnings,omitempty"`
}

// Warning is a non-fatal condition attached to an element.
type Warning struct {
	Code    errors.ErrorCode `json:"code"`
	LayerID string           `json:"layerId"`
	Message string           `json:"message"`
}

// TextRun is laid-out text. Line coordinates are element-local.
type TextRun struct {
	Content        string              `json:"content"`
	FontFamily     string              `json:"fontFamily"`
	ResolvedFamily string              `json:"resolvedFamily"`
	FontWeight     int                 `json:"fontWeight"`
	FontStyle      layer.FontStyle     `json:"fontStyle"`
	FontSize       float64             `json:"fontSize"`
	Color          string              `json:"color"`
	Align          layer.Align         `json:"align"`
	LineHeight     float64             `json:"lineHeight"`
	LetterSpacing  float64             `json:"letterSpacing"`
	Transform      layer.TextTransform `json:"textTransform"`
	Fallback       bool                `json:"fallback,omitempty"`
	Lines          []Line              `json:"lines"`

	Font *fonts.Handle `json:"-"`
}

// Line is one wrapped line. X is the aligned start, Baseline the y of the
// glyph baseline, both relative to the element's top-left.
type Line struct {
	Text     string  `json:"text"`
	X        float64 `json:"x"`
	Baseline float64 `json:"baseline"`
	Width    float64 `json:"width"`
}

// ImageRef carries an image layer's locator unresolved.
type ImageRef struct {
	Locator string `json:"locator"`
}

// ShapeRun is a shape payload with its stroke scaled.
type ShapeRun struct {
	Primitive   string            `json:"primitive"`
	Fill        string            `json:"fill,omitempty"`
	Stroke      string            `json:"stroke,omitempty"`
	StrokeWidth float64           `json:"strokeWidth,omitempty"`
	Extra       map[string]string `json:"extra,omitempty"`
}

// Matrix is a 2D affine transform:
//
//	x' = A*x + C*y + E
//	y' = B*x + D*y + F
type Matrix struct {
	A float64 `json:"a"`
	B float64 `json:"b"`
	C float64 `json:"c"`
	D float64 `json:"d"`
	E float64 `json:"e"`
	F float64 `json:"f"`
}

// Identity is the identity transform.
var Identity = Matrix{A: 1, D: 1}

// Apply maps a point through m.
func (m Matrix) Apply(x, y float64) (float64, float64) {
	return m.A*x + m.C*y + m.E, m.B*x + m.D*y + m.F
}

// placement maps element-local coordinates of a w×h box at (x, y) rotated
// by deg degrees about its centre.
func placement(x, y, w, h, deg float64) Matrix {
	if deg == 0 {
		return Matrix{A: 1, D: 1, E: x, F: y}
	}
	sin, cos := math.Sincos(deg * math.Pi / 180)
	cx, cy := w/2, h/2
	return Matrix{
		A: cos,
		B: sin,
		C: -sin,
		D: cos,
		E: x + cx - (cos*cx - sin*cy),
		F: y + cy - (sin*cx + cos*cy),
	}
}
