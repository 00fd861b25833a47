// Package compose turns a slide into a RenderTree at a given scale.
// Rendering is a pure function of the slide, the scale and the font
// capability; the package holds no state of its own.
package compose

import (
	"context"
	stderrors "errors"
	"math"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hpungsan/layerdeck/internal/errors"
	"github.com/hpungsan/layerdeck/internal/fonts"
	"github.com/hpungsan/layerdeck/internal/layer"
)

const (
	DefaultFontTimeout   = 2 * time.Second
	DefaultMaxConcurrent = 8
)

var (
	errNoResolver = stderrors.New("no font resolver configured")
	errNoFace     = stderrors.New("resolver returned no face")
)

// FontResolver supplies fonts for text layers.
type FontResolver interface {
	Resolve(ctx context.Context, family string, weight int, style layer.FontStyle) (*fonts.Handle, error)
}

// Compositor renders slides. The zero value renders every text layer with
// the built-in fallback font.
type Compositor struct {
	Fonts         FontResolver
	Fallback      *fonts.Handle
	FontTimeout   time.Duration
	MaxConcurrent int
}

// Render composites slide at scale. Layers with Visible=false are skipped;
// the rest are emitted in ascending ZIndex, ties in slide order.
//
// If ctx is cancelled while elements are being emitted, Render returns the
// elements emitted so far with Incomplete set, and a RENDER_CANCELLED error.
func (c *Compositor) Render(ctx context.Context, slide layer.Slide, scale float64) (*RenderTree, error) {
	if scale <= 0 || math.IsNaN(scale) || math.IsInf(scale, 0) {
		return nil, errors.NewInvalidScale(scale)
	}
	fallback, err := c.fallback()
	if err != nil {
		return nil, err
	}

	visible := make([]layer.Layer, 0, len(slide.Layers))
	for _, l := range slide.Layers {
		if l.Visible {
			visible = append(visible, l)
		}
	}
	sort.SliceStable(visible, func(i, j int) bool {
		return visible[i].ZIndex < visible[j].ZIndex
	})

	tree := &RenderTree{
		SlideID:  slide.ID,
		Scale:    scale,
		Width:    float64(slide.Width) * scale,
		Height:   float64(slide.Height) * scale,
		Elements: make([]Element, 0, len(visible)),
	}
	if err := ctx.Err(); err != nil {
		tree.Incomplete = true
		return tree, errors.NewRenderCancelled(0, len(visible), err)
	}

	resolved := c.resolveFonts(ctx, visible, fallback)

	for _, l := range visible {
		if err := ctx.Err(); err != nil {
			tree.Incomplete = true
			return tree, errors.NewRenderCancelled(len(tree.Elements), len(visible), err)
		}
		tree.Elements = append(tree.Elements, element(l, scale, resolved))
	}
	return tree, nil
}

func (c *Compositor) fallback() (*fonts.Handle, error) {
	if c.Fallback != nil {
		return c.Fallback, nil
	}
	h, err := fonts.Fallback()
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return h, nil
}

type fontKey struct {
	family string
	weight int
	style  layer.FontStyle
}

type fontResult struct {
	handle *fonts.Handle
	err    *errors.DeckError
}

// resolveFonts resolves each distinct text font once. Every resolution has
// its own timeout; a failed one does not affect the others.
func (c *Compositor) resolveFonts(ctx context.Context, layers []layer.Layer, fallback *fonts.Handle) map[fontKey]fontResult {
	var keys []fontKey
	seen := make(map[fontKey]bool)
	for _, l := range layers {
		if l.Kind != layer.KindText || l.Text == nil {
			continue
		}
		k := fontKey{family: l.Text.FontFamily, weight: l.Text.FontWeight, style: l.Text.FontStyle}
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}

	errs := make([]error, len(keys))
	handles := make([]*fonts.Handle, len(keys))
	if c.Fonts != nil {
		timeout := c.FontTimeout
		if timeout <= 0 {
			timeout = DefaultFontTimeout
		}
		limit := c.MaxConcurrent
		if limit <= 0 {
			limit = DefaultMaxConcurrent
		}

		var g errgroup.Group
		g.SetLimit(limit)
		for i, k := range keys {
			g.Go(func() error {
				rctx, cancel := context.WithTimeout(ctx, timeout)
				defer cancel()
				h, err := c.Fonts.Resolve(rctx, k.family, k.weight, k.style)
				if err == nil && h == nil {
					err = errNoFace
				}
				handles[i], errs[i] = h, err
				return nil
			})
		}
		_ = g.Wait()
	}

	out := make(map[fontKey]fontResult, len(keys))
	for i, k := range keys {
		err := errs[i]
		if c.Fonts == nil {
			err = errNoResolver
		}
		if err != nil {
			out[k] = fontResult{handle: fallback, err: fontError(k.family, err)}
			continue
		}
		out[k] = fontResult{handle: handles[i]}
	}
	return out
}

func fontError(family string, err error) *errors.DeckError {
	var de *errors.DeckError
	if stderrors.As(err, &de) && de.Code == errors.ErrFontResolution {
		return de
	}
	return errors.NewFontResolution(family, err)
}

func element(l layer.Layer, scale float64, resolved map[fontKey]fontResult) Element {
	x, y := l.X*scale, l.Y*scale
	w, h := l.Width*scale, l.Height*scale
	e := Element{
		LayerID:   l.ID,
		Kind:      l.Kind,
		X:         x,
		Y:         y,
		Width:     w,
		Height:    h,
		Rotation:  l.Rotation,
		Opacity:   l.Opacity,
		ZIndex:    l.ZIndex,
		Transform: placement(x, y, w, h, l.Rotation),
	}

	switch {
	case l.Kind == layer.KindText && l.Text != nil:
		r := resolved[fontKey{family: l.Text.FontFamily, weight: l.Text.FontWeight, style: l.Text.FontStyle}]
		e.Text = layoutText(*l.Text, r.handle, w, scale)
		if r.err != nil {
			e.Text.Fallback = true
			e.Warnings = append(e.Warnings, Warning{
				Code:    errors.ErrFontResolution,
				LayerID: l.ID,
				Message: r.err.Message,
			})
		}
	case l.Kind == layer.KindImage && l.Image != nil:
		e.Image = &ImageRef{Locator: l.Image.Locator}
	case l.Kind == layer.KindShape && l.Shape != nil:
		e.Shape = &ShapeRun{
			Primitive:   l.Shape.Primitive,
			Fill:        l.Shape.Fill,
			Stroke:      l.Shape.Stroke,
			StrokeWidth: l.Shape.StrokeWidth * scale,
			Extra:       l.Shape.Extra,
		}
	}
	return e
}
