package psd

import (
	"fmt"

	"github.com/hpungsan/layerdeck/internal/layer"
)

// buildLayers turns records into normalized layers in record order.
// Group dividers are consumed here; a hidden group hides its children.
func (d *decoder) buildLayers(records []*record) []layer.Layer {
	hidden := effectiveHidden(records)
	used := make(map[string]bool, len(records))
	layers := make([]layer.Layer, 0, len(records))

	for i, rec := range records {
		if rec.section != sectionNone {
			continue
		}
		if rec.dropErr != nil {
			d.warnErr(rec.index, rec.name, rec.dropErr)
			continue
		}
		if rec.textErr != nil {
			d.warnErr(rec.index, rec.name, rec.textErr)
		}

		f := d.fields(rec, !hidden[i])
		f.ID = uniqueID(used, rec)
		l, err := layer.Normalize(f)
		if err != nil {
			d.warnErr(rec.index, rec.name, err)
			continue
		}
		used[l.ID] = true
		if rec.raster != nil {
			d.doc.Rasters[l.Image.Locator] = rec.raster
		}
		layers = append(layers, l)
	}
	return layers
}

func (d *decoder) fields(rec *record, visible bool) layer.Fields {
	opacity := float64(rec.opacity) / 255
	f := layer.Fields{
		Name:    rec.name,
		X:       float64(rec.left),
		Y:       float64(rec.top),
		Width:   float64(rec.width()),
		Height:  float64(rec.height()),
		Opacity: &opacity,
		Visible: &visible,
		Locked:  rec.locked,
		ZIndex:  rec.index,
	}

	switch {
	case rec.text != nil:
		t := rec.text
		f.Kind = layer.KindText
		f.Rotation = t.rotation
		f.Text = t.content
		f.FontFamily = t.family
		f.FontSize = t.fontSize
		if t.weight > 0 {
			w := t.weight
			f.FontWeight = &w
		}
		f.FontStyle = string(t.style)
		f.Color = t.color
		f.Align = string(t.align)
		f.LineHeight = t.lineHeight
		f.LetterSpacing = t.letterSpacing
		f.TextTransform = string(t.transform)
	case rec.hasFill || rec.vectorMask:
		f.Kind = layer.KindShape
		fill := rec.fill
		if fill == "" {
			fill = layer.DefaultColor
		}
		f.Shape = &layer.Shape{Primitive: layer.DefaultPrimitive, Fill: fill}
	default:
		f.Kind = layer.KindImage
		if rec.raster != nil {
			f.Locator = locatorFor(rec.raster)
		}
	}
	return f
}

// effectiveHidden walks records top to bottom. A folder record opens a
// group above its children and its divider closes it below them.
func effectiveHidden(records []*record) []bool {
	hidden := make([]bool, len(records))
	var stack []bool
	for i := len(records) - 1; i >= 0; i-- {
		rec := records[i]
		parent := len(stack) > 0 && stack[len(stack)-1]
		own := rec.flags&flagHidden != 0
		switch rec.section {
		case sectionOpenFolder, sectionClosedFolder:
			stack = append(stack, parent || own)
		case sectionDivider:
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
		hidden[i] = parent || own
	}
	return hidden
}

func uniqueID(used map[string]bool, rec *record) string {
	base := fmt.Sprintf("layer-%d", rec.index)
	if rec.hasLayerID {
		base = fmt.Sprintf("layer-%d", rec.layerID)
	}
	id := base
	for n := 2; used[id]; n++ {
		id = fmt.Sprintf("%s-%d", base, n)
	}
	return id
}
