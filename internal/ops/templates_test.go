package ops

import (
	"context"
	"testing"

	"github.com/hpungsan/layerdeck/internal/assets"
	"github.com/hpungsan/layerdeck/internal/config"
	"github.com/hpungsan/layerdeck/internal/errors"
)

func TestListTemplates_Pagination(t *testing.T) {
	database := setupTestDB(t)
	store := assets.NewMemory()
	for i := 0; i < 3; i++ {
		if _, err := ImportDesign(context.Background(), database, store, config.DefaultConfig(), ImportDesignInput{
			DesignSource: DesignSource{Data: testDesign()},
		}); err != nil {
			t.Fatalf("ImportDesign %d failed: %v", i, err)
		}
	}

	out, err := ListTemplates(context.Background(), database, ListInput{Limit: 2})
	if err != nil {
		t.Fatalf("ListTemplates failed: %v", err)
	}
	if len(out.Items) != 2 {
		t.Errorf("items = %d, want 2", len(out.Items))
	}
	if !out.Pagination.HasMore || out.Pagination.Total != 3 || out.Pagination.Limit != 2 {
		t.Errorf("pagination = %+v", out.Pagination)
	}
	if out.Items[0].Name != "Untitled" || out.Items[0].SlideCount != 1 {
		t.Errorf("item = %+v", out.Items[0])
	}

	out, err = ListTemplates(context.Background(), database, ListInput{Limit: 2, Offset: 2})
	if err != nil {
		t.Fatalf("ListTemplates failed: %v", err)
	}
	if len(out.Items) != 1 || out.Pagination.HasMore {
		t.Errorf("page 2 = %d items, has_more %v", len(out.Items), out.Pagination.HasMore)
	}
}

func TestListTemplates_LimitBounds(t *testing.T) {
	database := setupTestDB(t)

	tests := []struct {
		in, want int
	}{
		{0, DefaultListLimit},
		{-5, DefaultListLimit},
		{MaxListLimit + 1, MaxListLimit},
		{7, 7},
	}
	for _, tc := range tests {
		out, err := ListTemplates(context.Background(), database, ListInput{Limit: tc.in, Offset: -1})
		if err != nil {
			t.Fatalf("ListTemplates failed: %v", err)
		}
		if out.Pagination.Limit != tc.want || out.Pagination.Offset != 0 {
			t.Errorf("limit %d: pagination = %+v, want limit %d offset 0", tc.in, out.Pagination, tc.want)
		}
		if out.Items == nil {
			t.Error("Items is nil, want empty slice")
		}
	}
}

func TestFetchTemplate(t *testing.T) {
	d := importTestDesign(t)

	out, err := FetchTemplate(context.Background(), d.database, FetchInput{ID: d.out.TemplateID})
	if err != nil {
		t.Fatalf("FetchTemplate failed: %v", err)
	}
	if out.ID != d.out.TemplateID || out.SourceName != "deck.psd" {
		t.Errorf("template = %+v", out.TemplateSummary)
	}
	if len(out.Slides) != 1 || len(out.Slides[0].Layers) != 3 {
		t.Fatalf("slides = %+v", out.Slides)
	}
	if out.Warnings == nil {
		t.Error("Warnings is nil, want empty slice")
	}

	noLayers := false
	out, err = FetchTemplate(context.Background(), d.database, FetchInput{ID: d.out.TemplateID, IncludeLayers: &noLayers})
	if err != nil {
		t.Fatalf("FetchTemplate failed: %v", err)
	}
	if len(out.Slides[0].Layers) != 0 {
		t.Errorf("layers = %d, want 0 with IncludeLayers=false", len(out.Slides[0].Layers))
	}
}

func TestFetchTemplate_Errors(t *testing.T) {
	database := setupTestDB(t)

	if _, err := FetchTemplate(context.Background(), database, FetchInput{ID: "  "}); !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("blank id: err = %v, want INVALID_REQUEST", err)
	}
	if _, err := FetchTemplate(context.Background(), database, FetchInput{ID: "missing"}); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("missing id: err = %v, want NOT_FOUND", err)
	}
}

func TestDeleteTemplate(t *testing.T) {
	d := importTestDesign(t)

	out, err := DeleteTemplate(context.Background(), d.database, DeleteInput{ID: d.out.TemplateID})
	if err != nil {
		t.Fatalf("DeleteTemplate failed: %v", err)
	}
	if !out.Deleted || out.ID != d.out.TemplateID {
		t.Errorf("output = %+v", out)
	}

	if _, err := FetchTemplate(context.Background(), d.database, FetchInput{ID: d.out.TemplateID}); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("fetch after delete: err = %v, want NOT_FOUND", err)
	}
	// Assets are content-addressed and kept.
	if d.store.Len() != 1 {
		t.Errorf("store has %d assets, want 1", d.store.Len())
	}

	if _, err := DeleteTemplate(context.Background(), d.database, DeleteInput{ID: d.out.TemplateID}); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("second delete: err = %v, want NOT_FOUND", err)
	}
	if _, err := DeleteTemplate(context.Background(), d.database, DeleteInput{}); !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("empty id: err = %v, want INVALID_REQUEST", err)
	}
}
