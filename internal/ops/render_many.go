package ops

import (
	"context"
	"database/sql"
	"strings"

	"github.com/hpungsan/layerdeck/internal/db"
	"github.com/hpungsan/layerdeck/internal/errors"
)

// MaxRenderManySlides bounds one RenderTemplate call.
const MaxRenderManySlides = 50

// RenderTemplateInput contains parameters for the RenderTemplate operation.
// Context, Scale, Format and Supersample apply to every slide.
type RenderTemplateInput struct {
	TemplateID  string
	Context     string
	Scale       float64
	Format      string
	Supersample int
}

// RenderTemplateOutput contains the result of the RenderTemplate operation.
type RenderTemplateOutput struct {
	TemplateID string            `json:"template_id"`
	Items      []*RenderOutput   `json:"items"`
	Errors     []RenderManyError `json:"errors"`
}

// RenderManyError represents an error for a specific slide.
type RenderManyError struct {
	SlideID string `json:"slide_id"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// RenderTemplate renders every slide of a template in position order.
// Returns partial success with items and errors arrays; only a missing
// template or a cancelled context fails the whole call.
func RenderTemplate(ctx context.Context, database *sql.DB, r *Renderer, input RenderTemplateInput) (*RenderTemplateOutput, error) {
	id := strings.TrimSpace(input.TemplateID)
	if id == "" {
		return nil, errors.NewInvalidRequest("template_id is required")
	}
	if _, err := db.GetTemplate(ctx, database, id); err != nil {
		return nil, err
	}
	slides, err := db.ListSlides(ctx, database, id)
	if err != nil {
		return nil, err
	}
	if len(slides) > MaxRenderManySlides {
		return nil, errors.NewInvalidRequest("template has too many slides to render at once")
	}

	out := &RenderTemplateOutput{
		TemplateID: id,
		Items:      []*RenderOutput{},
		Errors:     []RenderManyError{},
	}
	for _, s := range slides {
		if err := ctx.Err(); err != nil {
			return nil, errors.NewCancelled("template render")
		}
		item, err := RenderSlide(ctx, database, r, RenderInput{
			SlideID:     s.ID,
			Context:     input.Context,
			Scale:       input.Scale,
			Format:      input.Format,
			Supersample: input.Supersample,
		})
		if err != nil {
			out.Errors = append(out.Errors, slideToError(s.ID, err))
			continue
		}
		out.Items = append(out.Items, item)
	}
	return out, nil
}

// slideToError converts a render error to a RenderManyError.
func slideToError(slideID string, err error) RenderManyError {
	var code, message string

	if dErr, ok := err.(*errors.DeckError); ok {
		code = string(dErr.Code)
		message = dErr.Message
	} else {
		code = string(errors.ErrInternal)
		message = err.Error()
	}

	return RenderManyError{
		SlideID: slideID,
		Code:    code,
		Message: message,
	}
}
