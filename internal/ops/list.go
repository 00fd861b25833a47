package ops

import (
	"context"
	"database/sql"

	"github.com/hpungsan/layerdeck/internal/db"
)

// ListInput contains parameters for the ListTemplates operation.
type ListInput struct {
	Limit  int // default: 20, max: 100
	Offset int // default: 0
}

// TemplateSummary is one row of a template listing.
type TemplateSummary struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	SourceName string `json:"source_name,omitempty"`
	SlideCount int    `json:"slide_count"`
	CreatedAt  int64  `json:"created_at"`
	UpdatedAt  int64  `json:"updated_at"`
}

// ListOutput contains the result of the ListTemplates operation.
type ListOutput struct {
	Items      []TemplateSummary `json:"items"`
	Pagination Pagination        `json:"pagination"`
	Sort       string            `json:"sort"`
}

// ListTemplates retrieves template summaries with pagination.
func ListTemplates(ctx context.Context, database *sql.DB, input ListInput) (*ListOutput, error) {
	limit, offset := clampPage(input.Limit, input.Offset)

	templates, err := db.ListTemplates(ctx, database, limit, offset)
	if err != nil {
		return nil, err
	}
	total, err := db.CountTemplates(ctx, database)
	if err != nil {
		return nil, err
	}

	items := make([]TemplateSummary, 0, len(templates))
	for _, t := range templates {
		items = append(items, TemplateSummary{
			ID:         t.ID,
			Name:       t.Name,
			SourceName: t.SourceName,
			SlideCount: t.SlideCount,
			CreatedAt:  t.CreatedAt,
			UpdatedAt:  t.UpdatedAt,
		})
	}

	return &ListOutput{
		Items: items,
		Pagination: Pagination{
			Limit:   limit,
			Offset:  offset,
			HasMore: offset+len(items) < total,
			Total:   total,
		},
		Sort: "updated_at_desc",
	}, nil
}
