// Package paint rasterizes a RenderTree with gg. It is the presentation-
// side consumer of compose and the only place image locators are resolved.
package paint

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"io"
	"math"
	"strconv"

	"github.com/gogpu/gg"
	xdraw "golang.org/x/image/draw"

	"github.com/hpungsan/layerdeck/internal/assets"
	"github.com/hpungsan/layerdeck/internal/compose"
	"github.com/hpungsan/layerdeck/internal/errors"
	"github.com/hpungsan/layerdeck/internal/layer"
)

// PlaceholderColor fills image elements whose asset cannot be loaded.
const PlaceholderColor = "#C8C8C8"

// Painter draws render trees. Assets may be nil, in which case every image
// element becomes a placeholder.
type Painter struct {
	Assets     assets.Resolver
	Background string // "#RRGGBB"; empty means transparent
}

// Paint draws tree onto a canvas of ceil(tree.Width) x ceil(tree.Height).
// Element failures are reported as warnings; only cancellation aborts.
func (p *Painter) Paint(ctx context.Context, tree *compose.RenderTree) (image.Image, []compose.Warning, error) {
	w := max(1, int(math.Ceil(tree.Width-1e-9)))
	h := max(1, int(math.Ceil(tree.Height-1e-9)))

	dc := gg.NewContext(w, h)
	defer dc.Close()
	if p.Background != "" {
		dc.ClearWithColor(gg.Hex(layer.NormalizeColor(p.Background)))
	}

	var warnings []compose.Warning
	images := make(map[string]*gg.ImageBuf)

	for i, e := range tree.Elements {
		if err := ctx.Err(); err != nil {
			return nil, warnings, errors.NewCancelled(fmt.Sprintf("paint after %d of %d elements", i, len(tree.Elements)))
		}
		if e.Opacity <= 0 {
			continue
		}
		var err error
		switch {
		case e.Shape != nil:
			err = drawShape(dc, e, tree.Scale)
		case e.Image != nil:
			if werr := p.drawImage(ctx, dc, e, images); werr != nil {
				warnings = append(warnings, *werr)
			}
		case e.Text != nil:
			drawText(dc, e)
		}
		if err != nil {
			warnings = append(warnings, compose.Warning{Code: errors.ErrInternal, LayerID: e.LayerID, Message: err.Error()})
		}
	}

	if err := dc.FlushGPU(); err != nil {
		return nil, warnings, errors.NewInternal(err)
	}
	return dc.Image(), warnings, nil
}

// ggMatrix converts the column form used by compose to gg's row form.
func ggMatrix(m compose.Matrix) gg.Matrix {
	return gg.Matrix{A: m.A, B: m.C, C: m.E, D: m.B, E: m.D, F: m.F}
}

// setColor draws values that are not hex colours in layer.DefaultColor.
func setColor(dc *gg.Context, hex string, opacity float64) {
	c := gg.Hex(layer.NormalizeColor(hex))
	dc.SetRGBA(c.R, c.G, c.B, c.A*opacity)
}

// drawShape fills then strokes the primitive in element-local space. The
// "radius" extra of a rounded-rect is in slide pixels.
func drawShape(dc *gg.Context, e compose.Element, scale float64) error {
	s := e.Shape
	dc.Push()
	defer dc.Pop()
	dc.SetTransform(ggMatrix(e.Transform))

	outline := func() {
		switch s.Primitive {
		case "ellipse", "circle":
			dc.DrawEllipse(e.Width/2, e.Height/2, e.Width/2, e.Height/2)
		case "rounded-rect":
			r, _ := strconv.ParseFloat(s.Extra["radius"], 64)
			dc.DrawRoundedRectangle(0, 0, e.Width, e.Height, math.Max(0, r*scale))
		default:
			dc.DrawRectangle(0, 0, e.Width, e.Height)
		}
	}

	if s.Fill != "" {
		outline()
		setColor(dc, s.Fill, e.Opacity)
		if err := dc.Fill(); err != nil {
			return fmt.Errorf("fill %s: %w", e.LayerID, err)
		}
	}
	if s.Stroke != "" && s.StrokeWidth > 0 {
		outline()
		setColor(dc, s.Stroke, e.Opacity)
		dc.SetLineWidth(s.StrokeWidth)
		if err := dc.Stroke(); err != nil {
			return fmt.Errorf("stroke %s: %w", e.LayerID, err)
		}
	}
	return nil
}

// drawImage draws an image element axis-aligned at its box.
func (p *Painter) drawImage(ctx context.Context, dc *gg.Context, e compose.Element, cache map[string]*gg.ImageBuf) *compose.Warning {
	buf, ok := cache[e.Image.Locator]
	if !ok {
		var err error
		buf, err = p.load(ctx, e.Image.Locator)
		if err != nil {
			placeholder(dc, e)
			return &compose.Warning{Code: errors.CodeOf(err), LayerID: e.LayerID, Message: err.Error()}
		}
		cache[e.Image.Locator] = buf
	}
	if e.Width < 1 || e.Height < 1 {
		return nil
	}
	dc.DrawImageEx(buf, gg.DrawImageOptions{
		X:         e.X,
		Y:         e.Y,
		DstWidth:  e.Width,
		DstHeight: e.Height,
		Opacity:   e.Opacity,
	})
	return nil
}

func (p *Painter) load(ctx context.Context, locator string) (*gg.ImageBuf, error) {
	if p.Assets == nil {
		return nil, errors.NewAssetUnavailable(locator, fmt.Errorf("no asset resolver"))
	}
	if locator == "" {
		return nil, errors.NewAssetUnavailable(locator, fmt.Errorf("image layer has no pixels"))
	}
	rc, err := p.Assets.Resolve(ctx, locator)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	img, err := png.Decode(io.LimitReader(rc, maxAssetBytes))
	if err != nil {
		return nil, errors.NewAssetUnavailable(locator, err)
	}
	return gg.ImageBufFromImage(img), nil
}

const maxAssetBytes = 1 << 30

func placeholder(dc *gg.Context, e compose.Element) {
	dc.Push()
	defer dc.Pop()
	dc.SetTransform(ggMatrix(e.Transform))
	dc.DrawRectangle(0, 0, e.Width, e.Height)
	setColor(dc, PlaceholderColor, e.Opacity)
	_ = dc.Fill()
}

// drawText draws each laid-out line at its baseline. Glyphs are not rotated;
// line origins follow the element transform.
func drawText(dc *gg.Context, e compose.Element) {
	run := e.Text
	if run.Font == nil || run.FontSize <= 0 {
		return
	}
	dc.SetFont(run.Font.Face(run.FontSize))
	setColor(dc, run.Color, e.Opacity)
	for _, line := range run.Lines {
		if line.Text == "" {
			continue
		}
		x, y := e.Transform.Apply(line.X, line.Baseline)
		dc.DrawString(line.Text, x, y)
	}
}

// EncodePNG writes img as PNG.
func EncodePNG(w io.Writer, img image.Image) error {
	if err := png.Encode(w, img); err != nil {
		return fmt.Errorf("encode png: %w", err)
	}
	return nil
}

// Downscale resamples img to w x h with Catmull-Rom filtering. Painting a
// tree composed at a multiple of the target scale and downscaling it gives
// smoother small thumbnails than painting at the target scale directly.
func Downscale(img image.Image, w, h int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, max(1, w), max(1, h)))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), xdraw.Src, nil)
	return dst
}
