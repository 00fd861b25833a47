package ops

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"math"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/hpungsan/layerdeck/internal/assets"
	"github.com/hpungsan/layerdeck/internal/compose"
	"github.com/hpungsan/layerdeck/internal/config"
	"github.com/hpungsan/layerdeck/internal/db"
	"github.com/hpungsan/layerdeck/internal/errors"
	"github.com/hpungsan/layerdeck/internal/fonts"
	"github.com/hpungsan/layerdeck/internal/paint"
	"github.com/hpungsan/layerdeck/internal/scale"
)

// Render output formats.
const (
	FormatJSON = "json"
	FormatPNG  = "png"
)

// DefaultBackground is the canvas colour of PNG renders.
const DefaultBackground = "#FFFFFF"

// MaxSupersample bounds RenderInput.Supersample.
const MaxSupersample = 4

// DefaultMaxRenderPixels bounds the painted canvas of one PNG render when
// the config leaves it unset.
const DefaultMaxRenderPixels = 1 << 26

// Renderer bundles the long-lived pieces a render needs. It is safe for
// concurrent use.
type Renderer struct {
	Scales     *scale.Adapter
	Compositor *compose.Compositor
	Painter    *paint.Painter
	Fonts      *fonts.Cache
	// MaxPixels caps width*height of the canvas a PNG render paints.
	// Zero means DefaultMaxRenderPixels.
	MaxPixels int
}

// NewRenderer scans the configured font directories and wires the scale
// adapter, compositor and painter. assetsResolver may be nil.
func NewRenderer(cfg *config.Config, assetsResolver assets.Resolver) (*Renderer, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	scales, err := scale.New(cfg.ScaleBudgets)
	if err != nil {
		return nil, err
	}

	registry := fonts.NewRegistry()
	scanned, err := registry.Scan(cfg.FontDirs...)
	if err != nil {
		return nil, errors.NewInternal(fmt.Errorf("scan fonts: %w", err))
	}
	logrus.WithFields(logrus.Fields{
		"dirs":     len(cfg.FontDirs),
		"loaded":   scanned.Loaded,
		"skipped":  scanned.Skipped,
		"families": len(registry.Families()),
	}).Info("fonts scanned")

	cache, err := fonts.NewCache(registry, cfg.FontCacheSize)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	fallback, err := fonts.Fallback()
	if err != nil {
		return nil, errors.NewInternal(err)
	}

	return &Renderer{
		Scales: scales,
		Compositor: &compose.Compositor{
			Fonts:       cache,
			Fallback:    fallback,
			FontTimeout: cfg.FontTimeout(),
		},
		Painter:   &paint.Painter{Assets: assetsResolver, Background: DefaultBackground},
		Fonts:     cache,
		MaxPixels: cfg.MaxRenderPixels,
	}, nil
}

// RenderInput contains parameters for the RenderSlide operation. Exactly
// one of Context and Scale selects the scale.
type RenderInput struct {
	SlideID string
	Context string  // display context name, e.g. "grid-small"
	Scale   float64 // explicit scale factor
	Format  string  // "json" (default) or "png"
	// Supersample paints PNGs at this multiple of the scale and downsamples.
	// 0 or 1 disables it.
	Supersample int
}

// RenderOutput contains the result of the RenderSlide operation. Tree is
// set for JSON renders, PNG for PNG renders.
type RenderOutput struct {
	SlideID    string              `json:"slide_id"`
	TemplateID string              `json:"template_id"`
	Scale      float64             `json:"scale"`
	Format     string              `json:"format"`
	Tree       *compose.RenderTree `json:"tree,omitempty"`
	PNG        []byte              `json:"-"`
	Width      int                 `json:"width"`
	Height     int                 `json:"height"`
	Warnings   []compose.Warning   `json:"warnings"`
}

// RenderSlide re-hydrates a stored slide and renders it.
func RenderSlide(ctx context.Context, database *sql.DB, r *Renderer, input RenderInput) (*RenderOutput, error) {
	if strings.TrimSpace(input.SlideID) == "" {
		return nil, errors.NewInvalidRequest("slide_id is required")
	}
	format := strings.ToLower(strings.TrimSpace(input.Format))
	if format == "" {
		format = FormatJSON
	}
	if format != FormatJSON && format != FormatPNG {
		return nil, errors.NewInvalidRequest("format must be one of: json, png")
	}
	if input.Context != "" && input.Scale != 0 {
		return nil, errors.NewInvalidRequest("specify either context or scale, not both")
	}
	if input.Supersample < 0 || input.Supersample > MaxSupersample {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("supersample must be between 0 and %d", MaxSupersample))
	}

	slide, rec, err := db.GetSlide(ctx, database, input.SlideID)
	if err != nil {
		return nil, err
	}

	factor := input.Scale
	if input.Context != "" || factor == 0 {
		name := input.Context
		if name == "" {
			name = string(scale.Interactive)
		}
		c, err := scale.Parse(name)
		if err != nil {
			return nil, err
		}
		factor, err = r.Scales.Factor(c, slide.Width, slide.Height)
		if err != nil {
			return nil, err
		}
	}

	out := &RenderOutput{
		SlideID:    slide.ID,
		TemplateID: rec.TemplateID,
		Scale:      factor,
		Format:     format,
		Width:      pixels(float64(slide.Width) * factor),
		Height:     pixels(float64(slide.Height) * factor),
	}

	if format == FormatJSON {
		tree, err := r.Compositor.Render(ctx, slide, factor)
		if err != nil {
			return nil, err
		}
		out.Tree = tree
		out.Warnings = nonNilRenderWarnings(tree.Warnings())
		return out, nil
	}

	ss := max(1, input.Supersample)
	if err := r.checkCanvas(slide.Width, slide.Height, factor*float64(ss)); err != nil {
		return nil, err
	}
	tree, err := r.Compositor.Render(ctx, slide, factor*float64(ss))
	if err != nil {
		return nil, err
	}
	img, paintWarnings, err := r.Painter.Paint(ctx, tree)
	if err != nil {
		return nil, err
	}
	if ss > 1 {
		img = paint.Downscale(img, out.Width, out.Height)
	}
	var buf bytes.Buffer
	if err := paint.EncodePNG(&buf, img); err != nil {
		return nil, errors.NewInternal(err)
	}
	out.PNG = buf.Bytes()
	out.Warnings = nonNilRenderWarnings(append(tree.Warnings(), paintWarnings...))

	logrus.WithFields(logrus.Fields{
		"slide_id": slide.ID,
		"scale":    factor,
		"bytes":    len(out.PNG),
		"warnings": len(out.Warnings),
	}).Debug("slide rendered")
	return out, nil
}

// ThumbnailSize returns the pixel size of a width x height slide rendered
// for display context c.
func (r *Renderer) ThumbnailSize(c scale.Context, width, height int) (int, int, error) {
	factor, err := r.Scales.Factor(c, width, height)
	if err != nil {
		return 0, 0, err
	}
	return pixels(float64(width) * factor), pixels(float64(height) * factor), nil
}

// checkCanvas rejects a paint whose canvas would exceed MaxPixels. Invalid
// factors pass through so the compositor reports them as INVALID_SCALE.
func (r *Renderer) checkCanvas(width, height int, factor float64) error {
	if factor <= 0 || math.IsNaN(factor) || math.IsInf(factor, 0) {
		return nil
	}
	limit := r.MaxPixels
	if limit <= 0 {
		limit = DefaultMaxRenderPixels
	}
	w := math.Ceil(float64(width)*factor - 1e-9)
	h := math.Ceil(float64(height)*factor - 1e-9)
	if area := w * h; area > float64(limit) {
		return errors.NewInvalidRequest(fmt.Sprintf(
			"render canvas %.0fx%.0f exceeds limit of %d pixels; lower the scale or supersample", w, h, limit))
	}
	return nil
}

func pixels(v float64) int {
	return max(1, int(math.Ceil(v-1e-9)))
}

func nonNilRenderWarnings(w []compose.Warning) []compose.Warning {
	if w == nil {
		return []compose.Warning{}
	}
	return w
}
