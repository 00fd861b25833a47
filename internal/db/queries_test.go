package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"reflect"
	"testing"

	"github.com/hpungsan/layerdeck/internal/errors"
	"github.com/hpungsan/layerdeck/internal/layer"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Init(t.TempDir())
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func floatPtr(f float64) *float64 { return &f }

// newSlideTree builds a slide with a text, an image and a shape layer.
func newSlideTree(t *testing.T, slideID string, position int) SlideTree {
	t.Helper()
	fields := []layer.Fields{
		{ID: "title", Name: "Title", Kind: layer.KindText, X: 10, Y: 20, Width: 300, Height: 40, Text: "Hello", FontFamily: "Inter", FontSize: floatPtr(24), Color: "#336699", ZIndex: 2},
		{ID: "photo", Kind: layer.KindImage, X: -5, Y: 0, Width: 100, Height: 80, Locator: "sha256:" + fmt.Sprintf("%064x", position), ZIndex: 1},
		{ID: "bg", Kind: layer.KindShape, Width: 640, Height: 360, Shape: &layer.Shape{Primitive: "rect", Fill: "#FFFFFF"}, ZIndex: 0},
	}
	st := SlideTree{Slide: layer.SlideRecord{ID: slideID, Position: position, Width: 640, Height: 360}}
	for i, f := range fields {
		l, err := layer.Normalize(f)
		if err != nil {
			t.Fatalf("Normalize(%s) failed: %v", f.ID, err)
		}
		rec, err := layer.ToRecord(slideID, i, l)
		if err != nil {
			t.Fatalf("ToRecord(%s) failed: %v", f.ID, err)
		}
		st.Layers = append(st.Layers, rec)
	}
	return st
}

func newTemplate(id string) *Template {
	return &Template{ID: id, Name: id + " deck", SourceName: id + ".psd"}
}

func TestInsertTemplate_AndGetTree(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	tmpl := newTemplate("T1")
	tmpl.Warnings = json.RawMessage(`[{"code":"UNKNOWN_RECORD"}]`)
	slides := []SlideTree{newSlideTree(t, "S1", 0), newSlideTree(t, "S2", 1)}

	res, err := InsertTemplate(ctx, db, tmpl, slides, InsertOptions{})
	if err != nil {
		t.Fatalf("InsertTemplate failed: %v", err)
	}
	if len(res.Inserted) != 2 || len(res.Failed) != 0 {
		t.Fatalf("result = %+v, want 2 inserted", res)
	}
	if tmpl.SlideCount != 2 {
		t.Errorf("SlideCount = %d, want 2", tmpl.SlideCount)
	}
	if tmpl.CreatedAt == 0 || tmpl.UpdatedAt != tmpl.CreatedAt {
		t.Errorf("timestamps not set: %+v", tmpl)
	}

	got, trees, err := GetTemplateTree(ctx, db, "T1")
	if err != nil {
		t.Fatalf("GetTemplateTree failed: %v", err)
	}
	if got.Name != "T1 deck" || got.SourceName != "T1.psd" || got.SlideCount != 2 {
		t.Errorf("template = %+v", got)
	}
	if string(got.Warnings) != `[{"code":"UNKNOWN_RECORD"}]` {
		t.Errorf("warnings = %s", got.Warnings)
	}
	if len(trees) != 2 || trees[0].Slide.ID != "S1" || trees[1].Slide.ID != "S2" {
		t.Fatalf("slides out of order: %+v", trees)
	}
	if trees[0].Slide.TemplateID != "T1" {
		t.Errorf("TemplateID = %q, want T1", trees[0].Slide.TemplateID)
	}
	if !reflect.DeepEqual(trees[0].Layers, slides[0].Layers) {
		t.Errorf("layers differ after round trip:\n got %+v\nwant %+v", trees[0].Layers, slides[0].Layers)
	}
}

func TestGetSlide_Rehydrates(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	st := newSlideTree(t, "S1", 0)
	if _, err := InsertTemplate(ctx, db, newTemplate("T1"), []SlideTree{st}, InsertOptions{}); err != nil {
		t.Fatalf("InsertTemplate failed: %v", err)
	}

	want, err := layer.FromRecords(st.Slide, st.Layers)
	if err != nil {
		t.Fatalf("FromRecords failed: %v", err)
	}
	got, rec, err := GetSlide(ctx, db, "S1")
	if err != nil {
		t.Fatalf("GetSlide failed: %v", err)
	}
	if rec.TemplateID != "T1" {
		t.Errorf("TemplateID = %q, want T1", rec.TemplateID)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("slide differs:\n got %+v\nwant %+v", got, want)
	}
	if got.Layers[0].Text == nil || got.Layers[0].Text.FontWeight != layer.DefaultFontWeight {
		t.Errorf("text defaults not restored: %+v", got.Layers[0].Text)
	}
}

func TestGetSlide_NotFound(t *testing.T) {
	db := openTestDB(t)

	_, _, err := GetSlide(context.Background(), db, "missing")
	if !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("err = %v, want NOT_FOUND", err)
	}
}

func TestInsertTemplate_Conflict(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if _, err := InsertTemplate(ctx, db, newTemplate("T1"), nil, InsertOptions{}); err != nil {
		t.Fatalf("first insert failed: %v", err)
	}
	_, err := InsertTemplate(ctx, db, newTemplate("T1"), nil, InsertOptions{})
	if !errors.Is(err, errors.ErrConflict) {
		t.Errorf("err = %v, want CONFLICT", err)
	}
}

func TestInsertTemplate_Replace(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	slides := []SlideTree{newSlideTree(t, "S1", 0), newSlideTree(t, "S2", 1)}
	if _, err := InsertTemplate(ctx, db, newTemplate("T1"), slides, InsertOptions{}); err != nil {
		t.Fatalf("first insert failed: %v", err)
	}

	replacement := newTemplate("T1")
	replacement.Name = "renamed"
	if _, err := InsertTemplate(ctx, db, replacement, slides[:1], InsertOptions{Replace: true}); err != nil {
		t.Fatalf("replace failed: %v", err)
	}

	got, err := GetTemplate(ctx, db, "T1")
	if err != nil {
		t.Fatalf("GetTemplate failed: %v", err)
	}
	if got.Name != "renamed" || got.SlideCount != 1 {
		t.Errorf("template = %+v, want renamed with 1 slide", got)
	}
	if _, _, err := GetSlide(ctx, db, "S2"); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("old slide S2 survived replace: %v", err)
	}
}

func TestInsertTemplate_IsolatesFailingSlide(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	bad := newSlideTree(t, "S2", 1)
	bad.Layers = append(bad.Layers, bad.Layers[0]) // duplicate layer id

	slides := []SlideTree{newSlideTree(t, "S1", 0), bad, newSlideTree(t, "S3", 2)}
	res, err := InsertTemplate(ctx, db, newTemplate("T1"), slides, InsertOptions{})
	if err != nil {
		t.Fatalf("InsertTemplate failed: %v", err)
	}
	if !reflect.DeepEqual(res.Inserted, []string{"S1", "S3"}) {
		t.Errorf("Inserted = %v, want [S1 S3]", res.Inserted)
	}
	if len(res.Failed) != 1 || res.Failed[0].SlideID != "S2" || res.Failed[0].Code != string(errors.ErrConflict) {
		t.Fatalf("Failed = %+v, want S2 CONFLICT", res.Failed)
	}

	// Nothing of S2 remains, not even the layers written before the failure.
	layers, err := ListLayers(ctx, db, "S2")
	if err != nil {
		t.Fatalf("ListLayers failed: %v", err)
	}
	if len(layers) != 0 {
		t.Errorf("S2 has %d layers, want 0", len(layers))
	}
	got, err := GetTemplate(ctx, db, "T1")
	if err != nil {
		t.Fatalf("GetTemplate failed: %v", err)
	}
	if got.SlideCount != 2 {
		t.Errorf("SlideCount = %d, want 2", got.SlideCount)
	}
}

func TestInsertTemplate_ForeignSlideLayer(t *testing.T) {
	db := openTestDB(t)

	st := newSlideTree(t, "S1", 0)
	st.Layers[1].SlideID = "other"
	res, err := InsertTemplate(context.Background(), db, newTemplate("T1"), []SlideTree{st}, InsertOptions{})
	if err != nil {
		t.Fatalf("InsertTemplate failed: %v", err)
	}
	if len(res.Failed) != 1 || res.Failed[0].Code != string(errors.ErrValidation) {
		t.Errorf("Failed = %+v, want one VALIDATION failure", res.Failed)
	}
}

func TestListTemplates_OrderAndCount(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	for i, id := range []string{"A", "B", "C"} {
		tmpl := newTemplate(id)
		tmpl.CreatedAt = int64(100 + i)
		tmpl.UpdatedAt = int64(100 + i)
		if _, err := InsertTemplate(ctx, db, tmpl, nil, InsertOptions{}); err != nil {
			t.Fatalf("insert %s failed: %v", id, err)
		}
	}

	list, err := ListTemplates(ctx, db, 2, 0)
	if err != nil {
		t.Fatalf("ListTemplates failed: %v", err)
	}
	if len(list) != 2 || list[0].ID != "C" || list[1].ID != "B" {
		t.Errorf("page 1 = %+v, want [C B]", list)
	}

	list, err = ListTemplates(ctx, db, 2, 2)
	if err != nil {
		t.Fatalf("ListTemplates failed: %v", err)
	}
	if len(list) != 1 || list[0].ID != "A" {
		t.Errorf("page 2 = %+v, want [A]", list)
	}

	n, err := CountTemplates(ctx, db)
	if err != nil {
		t.Fatalf("CountTemplates failed: %v", err)
	}
	if n != 3 {
		t.Errorf("CountTemplates = %d, want 3", n)
	}
}

func TestDeleteTemplate_Cascades(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if _, err := InsertTemplate(ctx, db, newTemplate("T1"), []SlideTree{newSlideTree(t, "S1", 0)}, InsertOptions{}); err != nil {
		t.Fatalf("InsertTemplate failed: %v", err)
	}
	if err := DeleteTemplate(ctx, db, "T1"); err != nil {
		t.Fatalf("DeleteTemplate failed: %v", err)
	}

	exists, err := TemplateExists(ctx, db, "T1")
	if err != nil {
		t.Fatalf("TemplateExists failed: %v", err)
	}
	if exists {
		t.Error("template still exists after delete")
	}

	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM layers").Scan(&n); err != nil {
		t.Fatalf("count layers failed: %v", err)
	}
	if n != 0 {
		t.Errorf("%d layer rows survived delete", n)
	}

	if err := DeleteTemplate(ctx, db, "T1"); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("second delete err = %v, want NOT_FOUND", err)
	}
}

func TestStreamTemplateIDs(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	for i, id := range []string{"B", "A"} {
		tmpl := newTemplate(id)
		tmpl.CreatedAt = int64(i + 1)
		if _, err := InsertTemplate(ctx, db, tmpl, nil, InsertOptions{}); err != nil {
			t.Fatalf("insert %s failed: %v", id, err)
		}
	}

	var ids []string
	err := StreamTemplateIDs(ctx, db, func(id string) error {
		// Querying inside the callback must not deadlock.
		if _, err := GetTemplate(ctx, db, id); err != nil {
			return err
		}
		ids = append(ids, id)
		return nil
	})
	if err != nil {
		t.Fatalf("StreamTemplateIDs failed: %v", err)
	}
	if !reflect.DeepEqual(ids, []string{"B", "A"}) {
		t.Errorf("ids = %v, want [B A]", ids)
	}

	stop := fmt.Errorf("stop")
	calls := 0
	err = StreamTemplateIDs(ctx, db, func(string) error {
		calls++
		return stop
	})
	if err != stop || calls != 1 {
		t.Errorf("err = %v after %d calls, want stop after 1", err, calls)
	}
}

func TestIsUniqueConstraintError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{fmt.Errorf("UNIQUE constraint failed: templates.id"), true},
		{fmt.Errorf("constraint failed: PRIMARY KEY constraint failed"), true},
		{fmt.Errorf("disk I/O error"), false},
	}
	for _, tt := range tests {
		if got := isUniqueConstraintError(tt.err); got != tt.want {
			t.Errorf("isUniqueConstraintError(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
