package mcp

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/layerdeck/internal/assets"
	"github.com/hpungsan/layerdeck/internal/config"
	"github.com/hpungsan/layerdeck/internal/db"
	"github.com/hpungsan/layerdeck/internal/errors"
	"github.com/hpungsan/layerdeck/internal/ops"
	"github.com/hpungsan/layerdeck/internal/psd/psdtest"
)

type testEnv struct {
	db  *sql.DB
	cfg *config.Config
	h   *Handlers
	dir string
}

// testSetup creates a temporary database, asset store and renderer.
func testSetup(t *testing.T) *testEnv {
	t.Helper()

	tmpDir := t.TempDir()
	database, err := db.Init(tmpDir)
	if err != nil {
		t.Fatalf("failed to init db: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	cfg := config.DefaultConfig()
	cfg.AllowUnsafePaths = true // Allow temp dirs in tests

	store := assets.NewMemory()
	renderer, err := ops.NewRenderer(cfg, store)
	if err != nil {
		t.Fatalf("NewRenderer failed: %v", err)
	}

	return &testEnv{
		db:  database,
		cfg: cfg,
		h:   NewHandlers(database, cfg, store, renderer),
		dir: tmpDir,
	}
}

// writeDesign writes a 200x100 two-layer document and returns its path.
func (e *testEnv) writeDesign(t *testing.T, name string) string {
	t.Helper()
	b := psdtest.New(200, 100)
	b.Add(
		b.ShapeLayer("Background", 0, 0, 200, 100, 0, 0, 255),
		b.ImageLayer("Photo", 0, 0, 100, 50, color.NRGBA{R: 255, A: 255}, psdtest.RLE),
	)
	path := filepath.Join(e.dir, name)
	if err := os.WriteFile(path, b.Bytes(), 0600); err != nil {
		t.Fatalf("write design: %v", err)
	}
	return path
}

// importDesign runs design_import and returns the parsed output.
func (e *testEnv) importDesign(t *testing.T, name string) ops.ImportDesignOutput {
	t.Helper()
	result, err := e.h.HandleImport(context.Background(), makeRequest(map[string]any{
		"path": e.writeDesign(t, name),
	}))
	if err != nil {
		t.Fatalf("HandleImport error: %v", err)
	}
	if result.IsError {
		t.Fatalf("HandleImport returned error: %s", resultText(result))
	}
	var out ops.ImportDesignOutput
	parseOutput(t, result, &out)
	return out
}

// makeRequest creates a CallToolRequest with the given arguments.
func makeRequest(args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Arguments: args,
		},
	}
}

func TestServerRegistration(t *testing.T) {
	env := testSetup(t)
	s := NewServer(env.db, env.cfg, env.h.store, env.h.renderer, "test")

	tools := s.ListTools()
	if len(tools) != len(toolRegistry) {
		t.Fatalf("registered %d tools, want %d", len(tools), len(toolRegistry))
	}
	for _, name := range AllToolNames() {
		if _, ok := tools[name]; !ok {
			t.Errorf("tool %q not registered", name)
		}
	}
}

func TestServerRegistration_DisabledTools(t *testing.T) {
	env := testSetup(t)
	env.cfg.DisabledTools = []string{"template_delete", "template_restore", "no_such_tool"}
	s := NewServer(env.db, env.cfg, env.h.store, env.h.renderer, "test")

	tools := s.ListTools()
	if len(tools) != len(toolRegistry)-2 {
		t.Fatalf("registered %d tools, want %d", len(tools), len(toolRegistry)-2)
	}
	if _, ok := tools["template_delete"]; ok {
		t.Error("template_delete should be disabled")
	}
	if _, ok := tools["design_import"]; !ok {
		t.Error("design_import should stay registered")
	}
}

func TestValidateDisabledTools(t *testing.T) {
	tests := []struct {
		name     string
		disabled []string
		want     []string
	}{
		{"empty", nil, nil},
		{"known", []string{"slide_render"}, nil},
		{"unknown", []string{"slide_render", "teleport"}, []string{"teleport"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ValidateDisabledTools(tt.disabled)
			if fmt.Sprint(got) != fmt.Sprint(tt.want) {
				t.Errorf("ValidateDisabledTools(%v) = %v, want %v", tt.disabled, got, tt.want)
			}
		})
	}
}

func TestAllToolNames(t *testing.T) {
	names := AllToolNames()
	want := []string{
		"design_import", "design_inspect", "slide_render",
		"template_backup", "template_delete", "template_fetch",
		"template_list", "template_restore",
	}
	if len(names) != len(want) {
		t.Fatalf("got %d names, want %d", len(names), len(want))
	}
	for i := 1; i < len(names); i++ {
		if names[i-1] >= names[i] {
			t.Errorf("names not sorted: %q before %q", names[i-1], names[i])
		}
	}
	for _, w := range want {
		if _, ok := toolRegistry[w]; !ok {
			t.Errorf("missing tool %q", w)
		}
	}
}

func TestHandleImport(t *testing.T) {
	env := testSetup(t)
	out := env.importDesign(t, "Launch Deck.psd")

	if out.TemplateID == "" {
		t.Fatal("expected template_id")
	}
	if out.Name != "Launch Deck" {
		t.Errorf("name = %q, want %q", out.Name, "Launch Deck")
	}
	if len(out.SlideIDs) != 1 {
		t.Fatalf("slide_ids = %v, want 1 slide", out.SlideIDs)
	}
	if out.LayerCount != 2 {
		t.Errorf("layer_count = %d, want 2", out.LayerCount)
	}
	if out.AssetCount != 1 {
		t.Errorf("asset_count = %d, want 1", out.AssetCount)
	}
}

func TestHandleImport_Errors(t *testing.T) {
	env := testSetup(t)
	txt := filepath.Join(env.dir, "notes.txt")
	if err := os.WriteFile(txt, []byte("hello"), 0600); err != nil {
		t.Fatal(err)
	}
	garbage := filepath.Join(env.dir, "garbage.psd")
	if err := os.WriteFile(garbage, []byte("not a design"), 0600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		args map[string]any
		code errors.ErrorCode
	}{
		{"missing path", map[string]any{}, errors.ErrInvalidRequest},
		{"wrong extension", map[string]any{"path": txt}, errors.ErrInvalidRequest},
		{"missing file", map[string]any{"path": filepath.Join(env.dir, "gone.psd")}, errors.ErrNotFound},
		{"bad signature", map[string]any{"path": garbage}, errors.ErrFormat},
		{"bad arg type", map[string]any{"path": 12}, errors.ErrInvalidRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := env.h.HandleImport(context.Background(), makeRequest(tt.args))
			if err != nil {
				t.Fatalf("HandleImport error: %v", err)
			}
			assertErrorCode(t, result, tt.code)
		})
	}
}

func TestHandleInspect(t *testing.T) {
	env := testSetup(t)
	path := env.writeDesign(t, "deck.psd")

	result, err := env.h.HandleInspect(context.Background(), makeRequest(map[string]any{"path": path}))
	if err != nil {
		t.Fatalf("HandleInspect error: %v", err)
	}
	var out ops.InspectOutput
	parseOutput(t, result, &out)

	if out.Header.Width != 200 || out.Header.Height != 100 {
		t.Errorf("header size = %dx%d, want 200x100", out.Header.Width, out.Header.Height)
	}
	if len(out.Slides) != 1 || len(out.Slides[0].Layers) != 2 {
		t.Fatalf("slides = %+v, want one slide of two layers", out.Slides)
	}

	// Inspect stores nothing.
	list, err := env.h.HandleList(context.Background(), makeRequest(nil))
	if err != nil {
		t.Fatalf("HandleList error: %v", err)
	}
	var listed ops.ListOutput
	parseOutput(t, list, &listed)
	if len(listed.Items) != 0 {
		t.Errorf("inspect stored %d templates", len(listed.Items))
	}
}

func TestHandleRender_JSON(t *testing.T) {
	env := testSetup(t)
	imported := env.importDesign(t, "deck.psd")

	result, err := env.h.HandleRender(context.Background(), makeRequest(map[string]any{
		"slide_id": imported.SlideIDs[0],
		"context":  "grid-small",
	}))
	if err != nil {
		t.Fatalf("HandleRender error: %v", err)
	}
	var out struct {
		SlideID string          `json:"slide_id"`
		Scale   float64         `json:"scale"`
		Format  string          `json:"format"`
		Tree    json.RawMessage `json:"tree"`
	}
	parseOutput(t, result, &out)

	if out.SlideID != imported.SlideIDs[0] {
		t.Errorf("slide_id = %q", out.SlideID)
	}
	if out.Scale != 0.8 {
		t.Errorf("scale = %v, want 0.8", out.Scale)
	}
	if out.Format != ops.FormatJSON {
		t.Errorf("format = %q, want json", out.Format)
	}
	if len(out.Tree) == 0 {
		t.Error("expected a render tree")
	}
}

func TestHandleRender_PNG(t *testing.T) {
	env := testSetup(t)
	imported := env.importDesign(t, "deck.psd")

	result, err := env.h.HandleRender(context.Background(), makeRequest(map[string]any{
		"slide_id": imported.SlideIDs[0],
		"context":  "list-small",
		"format":   "png",
	}))
	if err != nil {
		t.Fatalf("HandleRender error: %v", err)
	}
	if result.IsError {
		t.Fatalf("HandleRender returned error: %s", resultText(result))
	}
	if len(result.Content) != 2 {
		t.Fatalf("content blocks = %d, want text and image", len(result.Content))
	}
	img, ok := result.Content[1].(mcp.ImageContent)
	if !ok {
		t.Fatalf("second block is %T, want ImageContent", result.Content[1])
	}
	if img.MIMEType != "image/png" {
		t.Errorf("mime type = %q", img.MIMEType)
	}
	raw, err := base64.StdEncoding.DecodeString(img.Data)
	if err != nil {
		t.Fatalf("image data not base64: %v", err)
	}
	cfg, err := png.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("image data not PNG: %v", err)
	}
	if cfg.Width != 48 || cfg.Height != 24 {
		t.Errorf("png = %dx%d, want 48x24", cfg.Width, cfg.Height)
	}
}

func TestHandleRender_Errors(t *testing.T) {
	env := testSetup(t)
	imported := env.importDesign(t, "deck.psd")
	slideID := imported.SlideIDs[0]

	tests := []struct {
		name string
		args map[string]any
		code errors.ErrorCode
	}{
		{"missing slide id", map[string]any{}, errors.ErrInvalidRequest},
		{"unknown slide", map[string]any{"slide_id": "01NOPE"}, errors.ErrNotFound},
		{"unknown context", map[string]any{"slide_id": slideID, "context": "billboard"}, errors.ErrInvalidRequest},
		{"negative scale", map[string]any{"slide_id": slideID, "scale": -1}, errors.ErrInvalidScale},
		{"unknown format", map[string]any{"slide_id": slideID, "format": "gif"}, errors.ErrInvalidRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := env.h.HandleRender(context.Background(), makeRequest(tt.args))
			if err != nil {
				t.Fatalf("HandleRender error: %v", err)
			}
			assertErrorCode(t, result, tt.code)
		})
	}
}

func TestHandleRender_NoRenderer(t *testing.T) {
	env := testSetup(t)
	h := NewHandlers(env.db, env.cfg, env.h.store, nil)

	result, err := h.HandleRender(context.Background(), makeRequest(map[string]any{"slide_id": "x"}))
	if err != nil {
		t.Fatalf("HandleRender error: %v", err)
	}
	assertErrorCode(t, result, errors.ErrInternal)
}

func TestHandleFetchListDelete(t *testing.T) {
	env := testSetup(t)
	first := env.importDesign(t, "first.psd")
	second := env.importDesign(t, "second.psd")

	result, err := env.h.HandleFetch(context.Background(), makeRequest(map[string]any{
		"id":             first.TemplateID,
		"include_layers": false,
	}))
	if err != nil {
		t.Fatalf("HandleFetch error: %v", err)
	}
	var fetched ops.FetchOutput
	parseOutput(t, result, &fetched)
	if fetched.ID != first.TemplateID || fetched.Name != "first" {
		t.Errorf("fetched %q/%q", fetched.ID, fetched.Name)
	}
	if len(fetched.Slides) != 1 {
		t.Fatalf("slides = %d, want 1", len(fetched.Slides))
	}
	if len(fetched.Slides[0].Layers) != 0 {
		t.Errorf("include_layers=false returned %d layers", len(fetched.Slides[0].Layers))
	}

	result, err = env.h.HandleList(context.Background(), makeRequest(map[string]any{"limit": 1}))
	if err != nil {
		t.Fatalf("HandleList error: %v", err)
	}
	var listed ops.ListOutput
	parseOutput(t, result, &listed)
	if len(listed.Items) != 1 || listed.Items[0].ID != second.TemplateID {
		t.Fatalf("list page = %+v, want newest template first", listed.Items)
	}
	if !listed.Pagination.HasMore || listed.Pagination.Total != 2 {
		t.Errorf("pagination = %+v", listed.Pagination)
	}

	result, err = env.h.HandleDelete(context.Background(), makeRequest(map[string]any{"id": first.TemplateID}))
	if err != nil {
		t.Fatalf("HandleDelete error: %v", err)
	}
	var deleted ops.DeleteOutput
	parseOutput(t, result, &deleted)
	if !deleted.Deleted {
		t.Error("expected deleted=true")
	}

	result, err = env.h.HandleFetch(context.Background(), makeRequest(map[string]any{"id": first.TemplateID}))
	if err != nil {
		t.Fatalf("HandleFetch error: %v", err)
	}
	assertErrorCode(t, result, errors.ErrNotFound)

	result, err = env.h.HandleDelete(context.Background(), makeRequest(map[string]any{"id": first.TemplateID}))
	if err != nil {
		t.Fatalf("HandleDelete error: %v", err)
	}
	assertErrorCode(t, result, errors.ErrNotFound)
}

func TestHandleBackupRestore(t *testing.T) {
	env := testSetup(t)
	imported := env.importDesign(t, "deck.psd")
	backupPath := filepath.Join(env.dir, "backup.jsonl")

	result, err := env.h.HandleBackup(context.Background(), makeRequest(map[string]any{
		"path":         backupPath,
		"template_ids": []any{imported.TemplateID},
	}))
	if err != nil {
		t.Fatalf("HandleBackup error: %v", err)
	}
	var backup ops.BackupOutput
	parseOutput(t, result, &backup)
	if backup.Count != 1 {
		t.Errorf("count = %d, want 1", backup.Count)
	}

	// Default mode refuses to overwrite and reports the collision.
	result, err = env.h.HandleRestore(context.Background(), makeRequest(map[string]any{"path": backupPath}))
	if err != nil {
		t.Fatalf("HandleRestore error: %v", err)
	}
	var refused ops.RestoreOutput
	parseOutput(t, result, &refused)
	if refused.Imported != 0 || len(refused.Errors) != 1 || refused.Errors[0].Code != string(errors.ErrConflict) {
		t.Errorf("restore = %+v, want one CONFLICT and nothing imported", refused)
	}

	result, err = env.h.HandleRestore(context.Background(), makeRequest(map[string]any{
		"path": backupPath,
		"mode": "skip",
	}))
	if err != nil {
		t.Fatalf("HandleRestore error: %v", err)
	}
	var restored ops.RestoreOutput
	parseOutput(t, result, &restored)
	if restored.Skipped != 1 || restored.Imported != 0 {
		t.Errorf("restore = %+v, want one skipped", restored)
	}

	result, err = env.h.HandleRestore(context.Background(), makeRequest(map[string]any{
		"path": backupPath,
		"mode": "merge",
	}))
	if err != nil {
		t.Fatalf("HandleRestore error: %v", err)
	}
	assertErrorCode(t, result, errors.ErrInvalidRequest)
}

func TestErrorResult_DeckError(t *testing.T) {
	r := errorResult(errors.NewNotFound("template", "abc"))
	if !r.IsError {
		t.Fatal("expected IsError=true")
	}
	errObj := errorObject(t, r)

	if errObj["code"] != string(errors.ErrNotFound) {
		t.Fatalf("code=%v, want %v", errObj["code"], errors.ErrNotFound)
	}
	if errObj["status"] != float64(404) {
		t.Errorf("status=%v, want 404", errObj["status"])
	}
	details, ok := errObj["details"].(map[string]any)
	if !ok {
		t.Fatalf("expected details, got %v", errObj["details"])
	}
	if details["identifier"] != "abc" {
		t.Errorf("details.identifier=%v, want abc", details["identifier"])
	}
}

func TestErrorResult_WrappedErrorPreservesContext(t *testing.T) {
	wrappedErr := fmt.Errorf("slide[2]: %w", errors.NewConflict("layer id already used"))

	errObj := errorObject(t, errorResult(wrappedErr))
	if errObj["code"] != string(errors.ErrConflict) {
		t.Errorf("code=%v, want %v", errObj["code"], errors.ErrConflict)
	}
	msg := errObj["message"].(string)
	if msg != "slide[2]: layer id already used" {
		t.Errorf("message = %q", msg)
	}
}

func TestErrorResult_InternalHidesDetails(t *testing.T) {
	for _, err := range []error{
		errors.NewInternal(fmt.Errorf("open /secret/path: denied")),
		fmt.Errorf("plain error"),
	} {
		errObj := errorObject(t, errorResult(err))
		if errObj["code"] != string(errors.ErrInternal) {
			t.Errorf("code=%v, want INTERNAL", errObj["code"])
		}
		if strings.Contains(errObj["message"].(string), "secret") {
			t.Errorf("internal message leaked: %v", errObj["message"])
		}
		if _, ok := errObj["details"]; ok {
			t.Error("internal errors must not carry details")
		}
	}
}

// Test helpers

func resultText(result *mcp.CallToolResult) string {
	if len(result.Content) == 0 {
		return ""
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		return ""
	}
	return tc.Text
}

func parseOutput(t *testing.T, result *mcp.CallToolResult, v any) {
	t.Helper()
	if result.IsError {
		t.Fatalf("unexpected error result: %s", resultText(result))
	}
	if err := json.Unmarshal([]byte(resultText(result)), v); err != nil {
		t.Fatalf("failed to parse output: %v", err)
	}
}

func errorObject(t *testing.T, result *mcp.CallToolResult) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal([]byte(resultText(result)), &payload); err != nil {
		t.Fatalf("failed to unmarshal error payload: %v", err)
	}
	errObj, ok := payload["error"].(map[string]any)
	if !ok {
		t.Fatalf("payload has no error object: %v", payload)
	}
	return errObj
}

func assertErrorCode(t *testing.T, result *mcp.CallToolResult, want errors.ErrorCode) {
	t.Helper()
	if !result.IsError {
		t.Fatalf("expected error %s, got success: %s", want, resultText(result))
	}
	errObj := errorObject(t, result)
	if errObj["code"] != string(want) {
		t.Errorf("code=%v, want %v (message: %v)", errObj["code"], want, errObj["message"])
	}
}
