package ops

import (
	"bytes"
	"context"
	"image/color"
	"image/png"
	"testing"

	"github.com/hpungsan/layerdeck/internal/config"
	"github.com/hpungsan/layerdeck/internal/errors"
)

func newTestRenderer(t *testing.T, d importedDesign) *Renderer {
	t.Helper()
	r, err := NewRenderer(config.DefaultConfig(), d.store)
	if err != nil {
		t.Fatalf("NewRenderer failed: %v", err)
	}
	return r
}

func TestRenderSlide_JSONByContext(t *testing.T) {
	d := importTestDesign(t)
	r := newTestRenderer(t, d)

	out, err := RenderSlide(context.Background(), d.database, r, RenderInput{
		SlideID: d.out.SlideIDs[0],
		Context: "grid-small",
	})
	if err != nil {
		t.Fatalf("RenderSlide failed: %v", err)
	}
	if out.Format != FormatJSON || out.Tree == nil || out.PNG != nil {
		t.Fatalf("output = %+v, want JSON tree only", out)
	}
	if out.Scale != 0.8 {
		t.Errorf("Scale = %v, want 0.8 (160 / 200)", out.Scale)
	}
	if out.Width != 160 || out.Height != 80 {
		t.Errorf("size = %dx%d, want 160x80", out.Width, out.Height)
	}
	if out.TemplateID != d.out.TemplateID {
		t.Errorf("TemplateID = %q, want %q", out.TemplateID, d.out.TemplateID)
	}
	if len(out.Tree.Elements) != 3 {
		t.Fatalf("elements = %d, want 3", len(out.Tree.Elements))
	}

	// No font directories are configured, so the text layer falls back.
	found := false
	for _, w := range out.Warnings {
		if w.Code == errors.ErrFontResolution {
			found = true
		}
	}
	if !found {
		t.Errorf("warnings = %+v, want a FONT_RESOLUTION_FAILURE", out.Warnings)
	}
}

func TestRenderSlide_DefaultsToInteractive(t *testing.T) {
	d := importTestDesign(t)
	r := newTestRenderer(t, d)

	out, err := RenderSlide(context.Background(), d.database, r, RenderInput{SlideID: d.out.SlideIDs[0]})
	if err != nil {
		t.Fatalf("RenderSlide failed: %v", err)
	}
	if out.Scale != 1080.0/200 {
		t.Errorf("Scale = %v, want %v", out.Scale, 1080.0/200)
	}
}

func TestRenderSlide_PNG(t *testing.T) {
	d := importTestDesign(t)
	r := newTestRenderer(t, d)

	for _, ss := range []int{0, 2} {
		out, err := RenderSlide(context.Background(), d.database, r, RenderInput{
			SlideID:     d.out.SlideIDs[0],
			Scale:       1,
			Format:      "PNG",
			Supersample: ss,
		})
		if err != nil {
			t.Fatalf("RenderSlide(supersample %d) failed: %v", ss, err)
		}
		if out.Tree != nil {
			t.Error("PNG render returned a tree")
		}

		img, err := png.Decode(bytes.NewReader(out.PNG))
		if err != nil {
			t.Fatalf("decode png: %v", err)
		}
		if b := img.Bounds(); b.Dx() != 200 || b.Dy() != 100 {
			t.Fatalf("png size = %v, want 200x100", b)
		}

		photo := color.NRGBAModel.Convert(img.At(20, 20)).(color.NRGBA)
		if photo.R < 240 || photo.G > 15 || photo.B > 15 {
			t.Errorf("supersample %d: photo pixel = %v, want red", ss, photo)
		}
		bg := color.NRGBAModel.Convert(img.At(50, 90)).(color.NRGBA)
		if bg.B < 240 || bg.R > 15 {
			t.Errorf("supersample %d: background pixel = %v, want blue", ss, bg)
		}
	}
}

func TestRenderSlide_InvalidInput(t *testing.T) {
	d := importTestDesign(t)
	r := newTestRenderer(t, d)
	slideID := d.out.SlideIDs[0]

	tests := []struct {
		name  string
		input RenderInput
		code  errors.ErrorCode
	}{
		{"missing slide id", RenderInput{}, errors.ErrInvalidRequest},
		{"unknown slide", RenderInput{SlideID: "nope"}, errors.ErrNotFound},
		{"bad format", RenderInput{SlideID: slideID, Format: "svg"}, errors.ErrInvalidRequest},
		{"context and scale", RenderInput{SlideID: slideID, Context: "grid-small", Scale: 1}, errors.ErrInvalidRequest},
		{"unknown context", RenderInput{SlideID: slideID, Context: "billboard"}, errors.ErrInvalidRequest},
		{"negative scale", RenderInput{SlideID: slideID, Scale: -1}, errors.ErrInvalidScale},
		{"supersample too high", RenderInput{SlideID: slideID, Supersample: MaxSupersample + 1}, errors.ErrInvalidRequest},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := RenderSlide(context.Background(), d.database, r, tc.input)
			if !errors.Is(err, tc.code) {
				t.Errorf("err = %v, want %s", err, tc.code)
			}
		})
	}
}

func TestRenderSlide_CanvasLimit(t *testing.T) {
	d := importTestDesign(t)
	r := newTestRenderer(t, d)
	slideID := d.out.SlideIDs[0]

	for _, scale := range []float64{50, 1e4, 1e300} {
		_, err := RenderSlide(context.Background(), d.database, r, RenderInput{SlideID: slideID, Scale: scale, Format: FormatPNG})
		if !errors.Is(err, errors.ErrInvalidRequest) {
			t.Errorf("scale %g: err = %v, want INVALID_REQUEST", scale, err)
		}
	}

	// JSON trees are not painted, so the canvas limit does not apply.
	out, err := RenderSlide(context.Background(), d.database, r, RenderInput{SlideID: slideID, Scale: 1e3})
	if err != nil {
		t.Fatalf("JSON render at large scale failed: %v", err)
	}
	if out.Tree == nil {
		t.Fatal("JSON render returned no tree")
	}

	r.MaxPixels = 200 * 100
	if _, err := RenderSlide(context.Background(), d.database, r, RenderInput{SlideID: slideID, Scale: 1, Format: FormatPNG}); err != nil {
		t.Fatalf("render at the limit failed: %v", err)
	}
	_, err = RenderSlide(context.Background(), d.database, r, RenderInput{SlideID: slideID, Scale: 1, Format: FormatPNG, Supersample: 2})
	if !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("supersampled render err = %v, want INVALID_REQUEST", err)
	}
}

func TestRenderSlide_Cancelled(t *testing.T) {
	d := importTestDesign(t)
	r := newTestRenderer(t, d)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := RenderSlide(ctx, d.database, r, RenderInput{SlideID: d.out.SlideIDs[0]})
	if err == nil {
		t.Fatal("expected an error for a cancelled render")
	}
}

func TestNewRenderer_BadBudgets(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.ScaleBudgets = map[string]int{"poster": 100}
	if _, err := NewRenderer(cfg, nil); !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("err = %v, want INVALID_REQUEST", err)
	}
}

func TestRenderTemplate(t *testing.T) {
	d := importTestDesign(t)
	r := newTestRenderer(t, d)

	out, err := RenderTemplate(context.Background(), d.database, r, RenderTemplateInput{
		TemplateID: d.out.TemplateID,
		Context:    "list-small",
		Format:     FormatPNG,
	})
	if err != nil {
		t.Fatalf("RenderTemplate failed: %v", err)
	}
	if len(out.Items) != 1 || len(out.Errors) != 0 {
		t.Fatalf("output = %d items, %v errors", len(out.Items), out.Errors)
	}
	if out.Items[0].Width != 48 || out.Items[0].Height != 24 {
		t.Errorf("thumbnail = %dx%d, want 48x24", out.Items[0].Width, out.Items[0].Height)
	}

	// Per-slide failures are collected, not returned.
	out, err = RenderTemplate(context.Background(), d.database, r, RenderTemplateInput{
		TemplateID: d.out.TemplateID,
		Format:     "svg",
	})
	if err != nil {
		t.Fatalf("RenderTemplate failed: %v", err)
	}
	if len(out.Items) != 0 || len(out.Errors) != 1 || out.Errors[0].Code != string(errors.ErrInvalidRequest) {
		t.Errorf("output = %+v", out)
	}

	if _, err := RenderTemplate(context.Background(), d.database, r, RenderTemplateInput{TemplateID: "missing"}); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("missing template: err = %v, want NOT_FOUND", err)
	}
}
