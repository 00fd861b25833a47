package ops

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"github.com/hpungsan/layerdeck/internal/db"
	"github.com/hpungsan/layerdeck/internal/errors"
	"github.com/hpungsan/layerdeck/internal/layer"
	"github.com/hpungsan/layerdeck/internal/psd"
)

// FetchInput contains parameters for the FetchTemplate operation.
type FetchInput struct {
	ID            string
	IncludeLayers *bool // default: true (nil means default)
}

// FetchOutput contains the result of the FetchTemplate operation.
type FetchOutput struct {
	TemplateSummary
	Slides   []SlideSummary `json:"slides"`
	Warnings []psd.Warning  `json:"warnings"`
}

// FetchTemplate retrieves a template with its slides. Slides are
// re-hydrated through the layer normalizer.
func FetchTemplate(ctx context.Context, database *sql.DB, input FetchInput) (*FetchOutput, error) {
	id := strings.TrimSpace(input.ID)
	if id == "" {
		return nil, errors.NewInvalidRequest("id is required")
	}
	t, trees, err := db.GetTemplateTree(ctx, database, id)
	if err != nil {
		return nil, err
	}

	includeLayers := true
	if input.IncludeLayers != nil {
		includeLayers = *input.IncludeLayers
	}

	out := &FetchOutput{
		TemplateSummary: TemplateSummary{
			ID:         t.ID,
			Name:       t.Name,
			SourceName: t.SourceName,
			SlideCount: t.SlideCount,
			CreatedAt:  t.CreatedAt,
			UpdatedAt:  t.UpdatedAt,
		},
		Slides: make([]SlideSummary, 0, len(trees)),
	}
	for _, st := range trees {
		slide, err := layer.FromRecords(st.Slide, st.Layers)
		if err != nil {
			return nil, err
		}
		sum := summarize(slide)
		if !includeLayers {
			sum.Layers = []LayerSummary{}
		}
		out.Slides = append(out.Slides, sum)
	}

	out.Warnings, err = decodeWarnings(t.Warnings)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func decodeWarnings(raw json.RawMessage) ([]psd.Warning, error) {
	warnings := []psd.Warning{}
	if len(raw) == 0 {
		return warnings, nil
	}
	if err := json.Unmarshal(raw, &warnings); err != nil {
		return nil, errors.NewInternal(err)
	}
	if warnings == nil {
		warnings = []psd.Warning{}
	}
	return warnings, nil
}
