package layer

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/hpungsan/layerdeck/internal/errors"
)

// Fields is the loose form both producers fill before normalization.
// Nil pointers and empty strings mean "absent" and receive defaults.
type Fields struct {
	ID       string
	Name     string
	Kind     Kind
	X        float64
	Y        float64
	Width    float64
	Height   float64
	Rotation float64
	Opacity  *float64
	Visible  *bool
	Locked   bool
	ZIndex   int

	Text          string
	FontFamily    string
	FontSize      *float64
	FontWeight    *int
	FontStyle     string
	Color         string
	Align         string
	LineHeight    *float64
	LetterSpacing *float64
	TextTransform string

	Locator string

	Shape *Shape
}

// Normalize builds a canonical Layer from f. Opacity is clamped to [0,1];
// negative or non-finite sizes and non-finite positions are rejected.
func Normalize(f Fields) (Layer, error) {
	if strings.TrimSpace(f.ID) == "" {
		return Layer{}, errors.NewValidation("layer id is required")
	}
	kind := Kind(strings.ToLower(string(f.Kind)))
	if !kind.Valid() {
		return Layer{}, errors.NewValidation(fmt.Sprintf("layer %s: unknown kind %q", f.ID, f.Kind))
	}
	if err := checkGeometry(f); err != nil {
		return Layer{}, err
	}

	opacity := 1.0
	if f.Opacity != nil {
		if math.IsNaN(*f.Opacity) {
			return Layer{}, errors.NewValidation(fmt.Sprintf("layer %s: opacity is NaN", f.ID))
		}
		opacity = clamp(*f.Opacity, 0, 1)
	}
	visible := true
	if f.Visible != nil {
		visible = *f.Visible
	}

	l := Layer{
		ID:       f.ID,
		Name:     f.Name,
		Kind:     kind,
		X:        f.X,
		Y:        f.Y,
		Width:    f.Width,
		Height:   f.Height,
		Rotation: f.Rotation,
		Opacity:  opacity,
		Visible:  visible,
		Locked:   f.Locked,
		ZIndex:   f.ZIndex,
	}

	switch kind {
	case KindText:
		l.Text = normalizeText(f)
	case KindImage:
		l.Image = &Image{Locator: f.Locator}
	case KindShape:
		l.Shape = normalizeShape(f.Shape)
	}
	return l, nil
}

func checkGeometry(f Fields) error {
	coords := []struct {
		name string
		v    float64
	}{{"x", f.X}, {"y", f.Y}, {"rotation", f.Rotation}}
	for _, c := range coords {
		if math.IsNaN(c.v) || math.IsInf(c.v, 0) {
			return errors.NewGeometry(fmt.Sprintf("layer %s: %s is not finite", f.ID, c.name))
		}
	}
	if math.IsNaN(f.Width) || math.IsInf(f.Width, 0) || f.Width < 0 {
		return errors.NewGeometry(fmt.Sprintf("layer %s: invalid width %v", f.ID, f.Width))
	}
	if math.IsNaN(f.Height) || math.IsInf(f.Height, 0) || f.Height < 0 {
		return errors.NewGeometry(fmt.Sprintf("layer %s: invalid height %v", f.ID, f.Height))
	}
	return nil
}

func normalizeText(f Fields) *Text {
	t := &Text{
		Content:       f.Text,
		FontFamily:    strings.TrimSpace(f.FontFamily),
		FontSize:      DefaultFontSize,
		FontWeight:    DefaultFontWeight,
		FontStyle:     DefaultFontStyle,
		Color:         NormalizeColor(f.Color),
		Align:         DefaultAlign,
		LineHeight:    DefaultLineHeight,
		LetterSpacing: DefaultLetterSpacing,
		Transform:     DefaultTransform,
	}
	if f.FontSize != nil && *f.FontSize > 0 && !math.IsInf(*f.FontSize, 0) {
		t.FontSize = *f.FontSize
	}
	if f.FontWeight != nil && *f.FontWeight > 0 {
		t.FontWeight = min(*f.FontWeight, 1000)
	}
	if FontStyle(strings.ToLower(f.FontStyle)) == StyleItalic {
		t.FontStyle = StyleItalic
	}
	switch a := Align(strings.ToLower(f.Align)); a {
	case AlignLeft, AlignCenter, AlignRight, AlignJustify:
		t.Align = a
	}
	if f.LineHeight != nil && *f.LineHeight > 0 && !math.IsInf(*f.LineHeight, 0) {
		t.LineHeight = *f.LineHeight
	}
	if f.LetterSpacing != nil && !math.IsNaN(*f.LetterSpacing) && !math.IsInf(*f.LetterSpacing, 0) {
		t.LetterSpacing = *f.LetterSpacing
	}
	switch tt := TextTransform(strings.ToLower(f.TextTransform)); tt {
	case TransformNone, TransformUppercase, TransformLowercase, TransformCapitalize:
		t.Transform = tt
	}
	return t
}

func normalizeShape(s *Shape) *Shape {
	out := &Shape{Primitive: DefaultPrimitive}
	if s == nil {
		return out
	}
	if p := strings.TrimSpace(s.Primitive); p != "" {
		out.Primitive = p
	}
	out.Fill = shapeColor(s.Fill)
	out.Stroke = shapeColor(s.Stroke)
	if s.StrokeWidth > 0 && !math.IsInf(s.StrokeWidth, 0) {
		out.StrokeWidth = s.StrokeWidth
	}
	if len(s.Extra) > 0 {
		out.Extra = make(map[string]string, len(s.Extra))
		for k, v := range s.Extra {
			out.Extra[k] = v
		}
	}
	return out
}

var hexColorRegex = regexp.MustCompile(`^#?([0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

// NormalizeColor returns c as "#RRGGBB" in upper case, or DefaultColor
// when c is not a 3- or 6-digit hex colour.
func NormalizeColor(c string) string {
	m := hexColorRegex.FindStringSubmatch(strings.TrimSpace(c))
	if m == nil {
		return DefaultColor
	}
	hex := strings.ToUpper(m[1])
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	return "#" + hex
}

// shapeColor canonicalizes hex colours and keeps any other value verbatim,
// so shape paints such as "rgba(...)" survive storage. The painter decides
// what it can draw.
func shapeColor(c string) string {
	c = strings.TrimSpace(c)
	if c == "" || !hexColorRegex.MatchString(c) {
		return c
	}
	return NormalizeColor(c)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
