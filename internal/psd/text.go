package psd

import (
	"fmt"
	"math"
	"strings"

	"github.com/hpungsan/layerdeck/internal/binreader"
	"github.com/hpungsan/layerdeck/internal/layer"
)

// textStyle is what a type tool block contributes to a text layer.
type textStyle struct {
	content       string
	family        string
	fontSize      *float64
	weight        int
	style         layer.FontStyle
	color         string
	align         layer.Align
	lineHeight    *float64
	letterSpacing *float64
	transform     layer.TextTransform
	rotation      float64
}

// parseTypeTool reads a TySh block: version, 2x3 transform, text
// version, descriptor version, then the text descriptor.
func parseTypeTool(r *binreader.Reader) (*textStyle, error) {
	if _, err := r.Uint16(); err != nil {
		return nil, fmt.Errorf("type tool version: %w", err)
	}
	var m [6]float64
	for i := range m {
		v, err := r.Float64()
		if err != nil {
			return nil, fmt.Errorf("type tool transform: %w", err)
		}
		m[i] = v
	}
	if _, err := r.Uint16(); err != nil {
		return nil, fmt.Errorf("text version: %w", err)
	}
	if _, err := r.Uint32(); err != nil {
		return nil, fmt.Errorf("descriptor version: %w", err)
	}
	desc, err := readDescriptor(r, 0)
	if err != nil {
		return nil, err
	}

	ts := &textStyle{}
	if v, ok := desc.get("Txt "); ok {
		if s, ok := v.(string); ok {
			ts.content = normalizeNewlines(s)
		}
	}

	xx, xy, yx, yy := m[0], m[1], m[2], m[3]
	ts.rotation = math.Atan2(xy, xx) * 180 / math.Pi
	if math.Abs(ts.rotation) < 1e-9 {
		ts.rotation = 0
	}
	vscale := math.Hypot(yx, yy)
	if vscale == 0 || math.IsNaN(vscale) || math.IsInf(vscale, 0) {
		vscale = 1
	}

	if v, ok := desc.get("EngineData"); ok {
		raw, ok := v.(rawData)
		if !ok {
			return nil, fmt.Errorf("EngineData is %T, not raw data", v)
		}
		engine, err := parseEngineData(raw)
		if err != nil {
			return nil, err
		}
		ts.applyEngine(engine, vscale)
	}
	return ts, nil
}

func (ts *textStyle) applyEngine(engine map[string]any, vscale float64) {
	if ts.content == "" {
		if v, ok := lookup(engine, "EngineDict", "Editor", "Text"); ok {
			if s, ok := v.(string); ok {
				ts.content = normalizeNewlines(strings.TrimRight(s, "\r"))
			}
		}
	}

	sheet, _ := lookup(engine, "EngineDict", "StyleRun", "RunArray", 0, "StyleSheet", "StyleSheetData")
	style, _ := sheet.(map[string]any)

	if idx, ok := numberAt(style, "Font"); ok {
		if v, ok := lookup(engine, "ResourceDict", "FontSet", int(idx), "Name"); ok {
			if name, ok := v.(string); ok {
				ts.family, ts.weight, ts.style = layer.ParseFontName(name)
			}
		}
	}

	size := 0.0
	if v, ok := numberAt(style, "FontSize"); ok && v > 0 {
		size = v * vscale
		ts.fontSize = &size
	}

	if v, ok := lookup(style, "FillColor", "Values"); ok {
		if vals, ok := v.([]any); ok && len(vals) == 4 {
			var argb [4]float64
			for i, c := range vals {
				argb[i], _ = c.(float64)
			}
			ts.color = hexColor(argb[1]*255, argb[2]*255, argb[3]*255)
		}
	}

	if v, ok := numberAt(style, "Tracking"); ok && size > 0 {
		ls := v / 1000 * size
		ts.letterSpacing = &ls
	}

	auto := true
	if v, ok := style["AutoLeading"].(bool); ok {
		auto = v
	}
	if v, ok := numberAt(style, "Leading"); ok && !auto && size > 0 && v > 0 {
		lh := v * vscale / size
		ts.lineHeight = &lh
	}

	if v, ok := numberAt(style, "FontCaps"); ok && v == 2 {
		ts.transform = layer.TransformUppercase
	}
	if v, ok := style["FauxBold"].(bool); ok && v && ts.weight < 700 {
		ts.weight = 700
	}
	if v, ok := style["FauxItalic"].(bool); ok && v {
		ts.style = layer.StyleItalic
	}

	if v, ok := lookup(engine, "EngineDict", "ParagraphRun", "RunArray", 0, "ParagraphSheet", "Properties", "Justification"); ok {
		if j, ok := v.(float64); ok {
			switch {
			case j == 1:
				ts.align = layer.AlignRight
			case j == 2:
				ts.align = layer.AlignCenter
			case j >= 3:
				ts.align = layer.AlignJustify
			default:
				ts.align = layer.AlignLeft
			}
		}
	}
}

func numberAt(m map[string]any, key string) (float64, bool) {
	f, ok := m[key].(float64)
	return f, ok
}

func normalizeNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}

// parseSolidColor reads a SoCo block into "#RRGGBB". Anything unreadable
// gives the default colour.
func parseSolidColor(r *binreader.Reader) string {
	if _, err := r.Uint32(); err != nil {
		return layer.DefaultColor
	}
	desc, err := readDescriptor(r, 0)
	if err != nil {
		return layer.DefaultColor
	}
	v, ok := desc.get("Clr ")
	if !ok {
		return layer.DefaultColor
	}
	clr, ok := v.(*descriptor)
	if !ok {
		return layer.DefaultColor
	}
	component := func(key string) float64 {
		v, _ := clr.get(key)
		f, _ := number(v)
		return f
	}
	if clr.class == "Grsc" {
		g := (100 - component("Gry ")) * 255 / 100
		return hexColor(g, g, g)
	}
	return hexColor(component("Rd  "), component("Grn "), component("Bl  "))
}

func hexColor(r, g, b float64) string {
	c := func(v float64) int {
		return int(math.Round(math.Max(0, math.Min(255, v))))
	}
	return fmt.Sprintf("#%02X%02X%02X", c(r), c(g), c(b))
}
