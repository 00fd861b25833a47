package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/hpungsan/layerdeck/internal/errors"
	"github.com/hpungsan/layerdeck/internal/layer"
)

// Template is one imported design document.
type Template struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	SourceName string          `json:"source_name,omitempty"`
	SlideCount int             `json:"slide_count"`
	Warnings   json.RawMessage `json:"warnings,omitempty"`
	CreatedAt  int64           `json:"created_at"`
	UpdatedAt  int64           `json:"updated_at"`
}

// SlideTree is a slide row with its layer rows.
type SlideTree struct {
	Slide  layer.SlideRecord `json:"slide"`
	Layers []layer.Record    `json:"layers"`
}

// SlideFailure reports a slide that could not be written.
type SlideFailure struct {
	SlideID  string `json:"slide_id"`
	Position int    `json:"position"`
	Code     string `json:"code"`
	Message  string `json:"message"`
}

// InsertResult lists which slides of a template were written.
type InsertResult struct {
	Inserted []string       `json:"inserted"`
	Failed   []SlideFailure `json:"failed,omitempty"`
}

// InsertOptions controls InsertTemplate.
type InsertOptions struct {
	// Replace deletes an existing template with the same ID (and its
	// slides and layers) in the same transaction.
	Replace bool
}

// InsertTemplate writes t and its slides in one transaction. Each slide
// subtree gets its own savepoint: a slide that fails is rolled back and
// reported while the others are kept. t.SlideCount is set to the number of
// slides written.
func InsertTemplate(ctx context.Context, db *sql.DB, t *Template, slides []SlideTree, opts InsertOptions) (*InsertResult, error) {
	if t.CreatedAt == 0 {
		t.CreatedAt = time.Now().Unix()
	}
	if t.UpdatedAt == 0 {
		t.UpdatedAt = t.CreatedAt
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if opts.Replace {
		if _, err := tx.ExecContext(ctx, `DELETE FROM templates WHERE id = ?`, t.ID); err != nil {
			return nil, errors.NewInternal(err)
		}
	}

	var warnings sql.NullString
	if len(t.Warnings) > 0 {
		warnings = sql.NullString{String: string(t.Warnings), Valid: true}
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO templates (id, name, source_name, slide_count, warnings_json, created_at, updated_at)
		VALUES (?, ?, ?, 0, ?, ?, ?)
	`, t.ID, t.Name, toNullString(t.SourceName), warnings, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		if isUniqueConstraintError(err) {
			return nil, errors.NewConflict(fmt.Sprintf("template %s already exists", t.ID))
		}
		return nil, errors.NewInternal(err)
	}

	res := &InsertResult{Inserted: []string{}}
	for i, st := range slides {
		if err := ctx.Err(); err != nil {
			return nil, errors.NewCancelled("template insert")
		}
		savepoint := fmt.Sprintf("slide_%d", i)
		if _, err := tx.ExecContext(ctx, "SAVEPOINT "+savepoint); err != nil {
			return nil, errors.NewInternal(err)
		}
		if err := insertSlide(ctx, tx, t.ID, st); err != nil {
			if _, rbErr := tx.ExecContext(ctx, "ROLLBACK TO "+savepoint); rbErr != nil {
				return nil, errors.NewInternal(rbErr)
			}
			res.Failed = append(res.Failed, SlideFailure{
				SlideID:  st.Slide.ID,
				Position: st.Slide.Position,
				Code:     string(errors.CodeOf(err)),
				Message:  err.Error(),
			})
		} else {
			res.Inserted = append(res.Inserted, st.Slide.ID)
		}
		if _, err := tx.ExecContext(ctx, "RELEASE "+savepoint); err != nil {
			return nil, errors.NewInternal(err)
		}
	}

	if _, err := tx.ExecContext(ctx, `UPDATE templates SET slide_count = ? WHERE id = ?`, len(res.Inserted), t.ID); err != nil {
		return nil, errors.NewInternal(err)
	}
	if err := tx.Commit(); err != nil {
		return nil, errors.NewInternal(err)
	}
	committed = true
	t.SlideCount = len(res.Inserted)
	return res, nil
}

func insertSlide(ctx context.Context, q Querier, templateID string, st SlideTree) error {
	s := st.Slide
	_, err := q.ExecContext(ctx, `
		INSERT INTO slides (id, template_id, position, width, height)
		VALUES (?, ?, ?, ?, ?)
	`, s.ID, templateID, s.Position, s.Width, s.Height)
	if err != nil {
		if isUniqueConstraintError(err) {
			return errors.NewConflict(fmt.Sprintf("slide %s already exists", s.ID))
		}
		return errors.NewInternal(err)
	}

	for _, r := range st.Layers {
		if r.SlideID != "" && r.SlideID != s.ID {
			return errors.NewValidation(fmt.Sprintf("layer %s belongs to slide %s, not %s", r.ID, r.SlideID, s.ID))
		}
		_, err := q.ExecContext(ctx, `
			INSERT INTO layers (
				id, slide_id, position, name, kind, x, y, width, height, rotation,
				opacity, is_visible, is_locked, z_index, text_content, font_family,
				font_size, font_weight, font_style, text_color, text_align,
				line_height, letter_spacing, text_transform, image_locator, shape_json
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			r.ID, s.ID, r.Position, toNullString(r.Name), r.Kind, r.X, r.Y, r.Width, r.Height, r.Rotation,
			r.Opacity, r.IsVisible, r.IsLocked, r.ZIndex, r.TextContent, r.FontFamily,
			r.FontSize, r.FontWeight, r.FontStyle, r.TextColor, r.TextAlign,
			r.LineHeight, r.LetterSpacing, r.TextTransform, r.ImageLocator, r.ShapeJSON,
		)
		if err != nil {
			if isUniqueConstraintError(err) {
				return errors.NewConflict(fmt.Sprintf("slide %s: duplicate layer %s", s.ID, r.ID))
			}
			return errors.NewInternal(err)
		}
	}
	return nil
}

// isUniqueConstraintError checks if the error is a SQLite UNIQUE constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "PRIMARY KEY constraint failed")
}

const templateColumns = `id, name, source_name, slide_count, warnings_json, created_at, updated_at`

// GetTemplate retrieves a template by ID.
func GetTemplate(ctx context.Context, q Querier, id string) (*Template, error) {
	row := q.QueryRowContext(ctx, `SELECT `+templateColumns+` FROM templates WHERE id = ?`, id)
	t, err := scanTemplate(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("template", id)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return t, nil
}

// TemplateExists reports whether a template with id exists.
func TemplateExists(ctx context.Context, q Querier, id string) (bool, error) {
	var one int
	err := q.QueryRowContext(ctx, `SELECT 1 FROM templates WHERE id = ? LIMIT 1`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, errors.NewInternal(err)
	}
	return true, nil
}

// ListTemplates returns templates, most recently updated first.
func ListTemplates(ctx context.Context, q Querier, limit, offset int) ([]Template, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+templateColumns+`
		FROM templates
		ORDER BY updated_at DESC, id DESC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	out := []Template{}
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, errors.NewInternal(err)
		}
		out = append(out, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return out, nil
}

// CountTemplates returns the number of stored templates.
func CountTemplates(ctx context.Context, q Querier) (int, error) {
	var n int
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM templates`).Scan(&n); err != nil {
		return 0, errors.NewInternal(err)
	}
	return n, nil
}

// DeleteTemplate removes a template and, by cascade, its slides and layers.
func DeleteTemplate(ctx context.Context, q Querier, id string) error {
	result, err := q.ExecContext(ctx, `DELETE FROM templates WHERE id = ?`, id)
	if err != nil {
		return errors.NewInternal(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return errors.NewInternal(err)
	}
	if n == 0 {
		return errors.NewNotFound("template", id)
	}
	return nil
}

// StreamTemplateIDs calls fn for every template ID, oldest first. Iteration
// stops at the first error fn returns.
func StreamTemplateIDs(ctx context.Context, q Querier, fn func(id string) error) error {
	rows, err := q.QueryContext(ctx, `SELECT id FROM templates ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return errors.NewInternal(err)
	}
	defer rows.Close()

	// Collect first so fn may query on the same connection.
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return errors.NewInternal(err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return errors.NewInternal(err)
	}
	rows.Close()

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return errors.NewCancelled("template stream")
		}
		if err := fn(id); err != nil {
			return err
		}
	}
	return nil
}

// ListSlides returns the slide rows of a template in position order.
func ListSlides(ctx context.Context, q Querier, templateID string) ([]layer.SlideRecord, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, template_id, position, width, height
		FROM slides WHERE template_id = ?
		ORDER BY position ASC, id ASC
	`, templateID)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	out := []layer.SlideRecord{}
	for rows.Next() {
		var s layer.SlideRecord
		if err := rows.Scan(&s.ID, &s.TemplateID, &s.Position, &s.Width, &s.Height); err != nil {
			return nil, errors.NewInternal(err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return out, nil
}

// GetSlideRecord retrieves one slide row.
func GetSlideRecord(ctx context.Context, q Querier, slideID string) (*layer.SlideRecord, error) {
	var s layer.SlideRecord
	err := q.QueryRowContext(ctx, `
		SELECT id, template_id, position, width, height FROM slides WHERE id = ?
	`, slideID).Scan(&s.ID, &s.TemplateID, &s.Position, &s.Width, &s.Height)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("slide", slideID)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return &s, nil
}

// ListLayers returns the layer rows of a slide in position order.
func ListLayers(ctx context.Context, q Querier, slideID string) ([]layer.Record, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, slide_id, position, name, kind, x, y, width, height, rotation,
			opacity, is_visible, is_locked, z_index, text_content, font_family,
			font_size, font_weight, font_style, text_color, text_align,
			line_height, letter_spacing, text_transform, image_locator, shape_json
		FROM layers WHERE slide_id = ?
		ORDER BY position ASC
	`, slideID)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	out := []layer.Record{}
	for rows.Next() {
		r, err := scanLayer(rows)
		if err != nil {
			return nil, errors.NewInternal(err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return out, nil
}

// GetSlide re-hydrates a slide through the layer normalizer.
func GetSlide(ctx context.Context, q Querier, slideID string) (layer.Slide, *layer.SlideRecord, error) {
	rec, err := GetSlideRecord(ctx, q, slideID)
	if err != nil {
		return layer.Slide{}, nil, err
	}
	rows, err := ListLayers(ctx, q, slideID)
	if err != nil {
		return layer.Slide{}, nil, err
	}
	slide, err := layer.FromRecords(*rec, rows)
	if err != nil {
		return layer.Slide{}, nil, err
	}
	return slide, rec, nil
}

// GetTemplateTree loads a template with every slide and layer row.
func GetTemplateTree(ctx context.Context, q Querier, id string) (*Template, []SlideTree, error) {
	t, err := GetTemplate(ctx, q, id)
	if err != nil {
		return nil, nil, err
	}
	slides, err := ListSlides(ctx, q, id)
	if err != nil {
		return nil, nil, err
	}
	trees := make([]SlideTree, 0, len(slides))
	for _, s := range slides {
		layers, err := ListLayers(ctx, q, s.ID)
		if err != nil {
			return nil, nil, err
		}
		trees = append(trees, SlideTree{Slide: s, Layers: layers})
	}
	return t, trees, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTemplate(row rowScanner) (*Template, error) {
	var (
		t        Template
		source   sql.NullString
		warnings sql.NullString
	)
	if err := row.Scan(&t.ID, &t.Name, &source, &t.SlideCount, &warnings, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	t.SourceName = source.String
	if warnings.Valid && warnings.String != "" {
		t.Warnings = json.RawMessage(warnings.String)
	}
	return &t, nil
}

// scanLayer relies on database/sql setting pointer destinations to nil
// for NULL columns.
func scanLayer(row rowScanner) (layer.Record, error) {
	var (
		r    layer.Record
		name sql.NullString
	)
	err := row.Scan(
		&r.ID, &r.SlideID, &r.Position, &name, &r.Kind, &r.X, &r.Y, &r.Width, &r.Height, &r.Rotation,
		&r.Opacity, &r.IsVisible, &r.IsLocked, &r.ZIndex, &r.TextContent, &r.FontFamily,
		&r.FontSize, &r.FontWeight, &r.FontStyle, &r.TextColor, &r.TextAlign,
		&r.LineHeight, &r.LetterSpacing, &r.TextTransform, &r.ImageLocator, &r.ShapeJSON,
	)
	if err != nil {
		return layer.Record{}, err
	}
	r.Name = name.String
	return r, nil
}

// toNullString maps "" to NULL.
func toNullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
