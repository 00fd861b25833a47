package layer

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/hpungsan/layerdeck/internal/errors"
)

// Record mirrors one persisted layer row. Field names follow the storage
// schema; FromRecord and ToRecord are the only translation points.
type Record struct {
	ID            string   `json:"id"`
	SlideID       string   `json:"slide_id"`
	Position      int      `json:"position"`
	Name          string   `json:"name,omitempty"`
	Kind          string   `json:"kind"`
	X             float64  `json:"x"`
	Y             float64  `json:"y"`
	Width         float64  `json:"width"`
	Height        float64  `json:"height"`
	Rotation      float64  `json:"rotation"`
	Opacity       float64  `json:"opacity"`
	IsVisible     bool     `json:"is_visible"`
	IsLocked      bool     `json:"is_locked"`
	ZIndex        int      `json:"z_index"`
	TextContent   *string  `json:"text_content,omitempty"`
	FontFamily    *string  `json:"font_family,omitempty"`
	FontSize      *float64 `json:"font_size,omitempty"`
	FontWeight    *int     `json:"font_weight,omitempty"`
	FontStyle     *string  `json:"font_style,omitempty"`
	TextColor     *string  `json:"text_color,omitempty"`
	TextAlign     *string  `json:"text_align,omitempty"`
	LineHeight    *float64 `json:"line_height,omitempty"`
	LetterSpacing *float64 `json:"letter_spacing,omitempty"`
	TextTransform *string  `json:"text_transform,omitempty"`
	ImageLocator  *string  `json:"image_locator,omitempty"`
	ShapeJSON     *string  `json:"shape_json,omitempty"`
}

// SlideRecord mirrors one persisted slide row.
type SlideRecord struct {
	ID         string `json:"id"`
	TemplateID string `json:"template_id"`
	Position   int    `json:"position"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
}

// FromRecord re-hydrates a Layer from a stored row, applying the same
// defaults as a fresh decode.
func FromRecord(rec Record) (Layer, error) {
	opacity := rec.Opacity
	visible := rec.IsVisible
	f := Fields{
		ID:            rec.ID,
		Name:          rec.Name,
		Kind:          Kind(rec.Kind),
		X:             rec.X,
		Y:             rec.Y,
		Width:         rec.Width,
		Height:        rec.Height,
		Rotation:      rec.Rotation,
		Opacity:       &opacity,
		Visible:       &visible,
		Locked:        rec.IsLocked,
		ZIndex:        rec.ZIndex,
		Text:          deref(rec.TextContent),
		FontFamily:    deref(rec.FontFamily),
		FontSize:      rec.FontSize,
		FontWeight:    rec.FontWeight,
		FontStyle:     deref(rec.FontStyle),
		Color:         deref(rec.TextColor),
		Align:         deref(rec.TextAlign),
		LineHeight:    rec.LineHeight,
		LetterSpacing: rec.LetterSpacing,
		TextTransform: deref(rec.TextTransform),
		Locator:       deref(rec.ImageLocator),
	}
	if rec.ShapeJSON != nil && *rec.ShapeJSON != "" {
		var s Shape
		if err := json.Unmarshal([]byte(*rec.ShapeJSON), &s); err != nil {
			return Layer{}, errors.NewValidation(fmt.Sprintf("layer %s: invalid shape_json: %v", rec.ID, err))
		}
		f.Shape = &s
	}
	return Normalize(f)
}

// ToRecord flattens l into a storage row owned by slideID at the given position.
func ToRecord(slideID string, position int, l Layer) (Record, error) {
	rec := Record{
		ID:        l.ID,
		SlideID:   slideID,
		Position:  position,
		Name:      l.Name,
		Kind:      string(l.Kind),
		X:         l.X,
		Y:         l.Y,
		Width:     l.Width,
		Height:    l.Height,
		Rotation:  l.Rotation,
		Opacity:   l.Opacity,
		IsVisible: l.Visible,
		IsLocked:  l.Locked,
		ZIndex:    l.ZIndex,
	}
	switch {
	case l.Text != nil:
		t := *l.Text
		weight := t.FontWeight
		rec.TextContent = &t.Content
		rec.FontFamily = &t.FontFamily
		rec.FontSize = &t.FontSize
		rec.FontWeight = &weight
		rec.FontStyle = ptr(string(t.FontStyle))
		rec.TextColor = &t.Color
		rec.TextAlign = ptr(string(t.Align))
		rec.LineHeight = &t.LineHeight
		rec.LetterSpacing = &t.LetterSpacing
		rec.TextTransform = ptr(string(t.Transform))
	case l.Image != nil:
		rec.ImageLocator = ptr(l.Image.Locator)
	case l.Shape != nil:
		data, err := json.Marshal(l.Shape)
		if err != nil {
			return Record{}, errors.NewInternal(err)
		}
		rec.ShapeJSON = ptr(string(data))
	}
	return rec, nil
}

// FromRecords re-hydrates a Slide from its row and its layer rows.
// Layer rows are put back in storage position order before normalization.
func FromRecords(s SlideRecord, rows []Record) (Slide, error) {
	sorted := make([]Record, len(rows))
	copy(sorted, rows)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Position < sorted[j].Position })

	layers := make([]Layer, 0, len(sorted))
	for _, rec := range sorted {
		if rec.SlideID != "" && rec.SlideID != s.ID {
			return Slide{}, errors.NewValidation(fmt.Sprintf("layer %s belongs to slide %s, not %s", rec.ID, rec.SlideID, s.ID))
		}
		l, err := FromRecord(rec)
		if err != nil {
			return Slide{}, err
		}
		layers = append(layers, l)
	}
	return NewSlide(s.ID, s.Width, s.Height, layers)
}

// NewSlide validates dimensions and layer ID uniqueness and returns a
// Slide owning a copy of layers.
func NewSlide(id string, width, height int, layers []Layer) (Slide, error) {
	if id == "" {
		return Slide{}, errors.NewValidation("slide id is required")
	}
	if width <= 0 || height <= 0 {
		return Slide{}, errors.NewGeometry(fmt.Sprintf("slide %s: dimensions must be positive, got %dx%d", id, width, height))
	}
	seen := make(map[string]bool, len(layers))
	owned := make([]Layer, len(layers))
	for i, l := range layers {
		if seen[l.ID] {
			return Slide{}, errors.NewValidation(fmt.Sprintf("slide %s: duplicate layer id %q", id, l.ID))
		}
		seen[l.ID] = true
		owned[i] = l
	}
	return Slide{ID: id, Width: width, Height: height, Layers: owned}, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func ptr[T any](v T) *T {
	return &v
}
