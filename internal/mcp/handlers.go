package mcp

import (
	"context"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	stderrors "errors"
	"path/filepath"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/layerdeck/internal/assets"
	"github.com/hpungsan/layerdeck/internal/config"
	"github.com/hpungsan/layerdeck/internal/errors"
	"github.com/hpungsan/layerdeck/internal/ops"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	db       *sql.DB
	cfg      *config.Config
	store    assets.Store
	renderer *ops.Renderer
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(db *sql.DB, cfg *config.Config, store assets.Store, renderer *ops.Renderer) *Handlers {
	return &Handlers{db: db, cfg: cfg, store: store, renderer: renderer}
}

// ImportRequest represents the request for design_import.
type ImportRequest struct {
	Path string `json:"path"`
	Name string `json:"name,omitempty"`
}

// HandleImport handles the design_import tool.
func (h *Handlers) HandleImport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	r, err := decode[ImportRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if strings.TrimSpace(r.Path) == "" {
		return errorResult(errors.NewInvalidRequest("path is required")), nil
	}

	result, err := ops.ImportDesign(ctx, h.db, h.store, h.cfg, ops.ImportDesignInput{
		DesignSource: ops.DesignSource{Path: r.Path},
		Name:         r.Name,
		SourceName:   filepath.Base(r.Path),
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// InspectRequest represents the request for design_inspect.
type InspectRequest struct {
	Path string `json:"path"`
}

// HandleInspect handles the design_inspect tool.
func (h *Handlers) HandleInspect(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	r, err := decode[InspectRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if strings.TrimSpace(r.Path) == "" {
		return errorResult(errors.NewInvalidRequest("path is required")), nil
	}

	result, err := ops.Inspect(h.cfg, ops.DesignSource{Path: r.Path})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// RenderRequest represents the request for slide_render.
type RenderRequest struct {
	SlideID     string  `json:"slide_id"`
	Context     string  `json:"context,omitempty"`
	Scale       float64 `json:"scale,omitempty"`
	Format      string  `json:"format,omitempty"`
	Supersample int     `json:"supersample,omitempty"`
}

// HandleRender handles the slide_render tool. PNG renders come back as an
// image block after a JSON summary.
func (h *Handlers) HandleRender(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	r, err := decode[RenderRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if h.renderer == nil {
		return errorResult(errors.NewInternal(stderrors.New("renderer not configured"))), nil
	}

	result, err := ops.RenderSlide(ctx, h.db, h.renderer, ops.RenderInput{
		SlideID:     r.SlideID,
		Context:     r.Context,
		Scale:       r.Scale,
		Format:      r.Format,
		Supersample: r.Supersample,
	})
	if err != nil {
		return errorResult(err), nil
	}
	if result.Format != ops.FormatPNG {
		return successResult(result)
	}

	summary, err := json.Marshal(result)
	if err != nil {
		return errorResult(errors.NewInternal(err)), nil
	}
	return mcp.NewToolResultImage(string(summary), base64.StdEncoding.EncodeToString(result.PNG), "image/png"), nil
}

// FetchRequest represents the request for template_fetch.
type FetchRequest struct {
	ID            string `json:"id"`
	IncludeLayers *bool  `json:"include_layers,omitempty"`
}

// HandleFetch handles the template_fetch tool.
func (h *Handlers) HandleFetch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	r, err := decode[FetchRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.FetchTemplate(ctx, h.db, ops.FetchInput{
		ID:            r.ID,
		IncludeLayers: r.IncludeLayers,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// ListRequest represents the request for template_list.
type ListRequest struct {
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
}

// HandleList handles the template_list tool.
func (h *Handlers) HandleList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	r, err := decode[ListRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.ListTemplates(ctx, h.db, ops.ListInput{
		Limit:  r.Limit,
		Offset: r.Offset,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// DeleteRequest represents the request for template_delete.
type DeleteRequest struct {
	ID string `json:"id"`
}

// HandleDelete handles the template_delete tool.
func (h *Handlers) HandleDelete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	r, err := decode[DeleteRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.DeleteTemplate(ctx, h.db, ops.DeleteInput{ID: r.ID})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// BackupRequest represents the request for template_backup.
type BackupRequest struct {
	Path        string   `json:"path,omitempty"`
	TemplateIDs []string `json:"template_ids,omitempty"`
}

// HandleBackup handles the template_backup tool.
func (h *Handlers) HandleBackup(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	r, err := decode[BackupRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Backup(ctx, h.db, h.cfg, ops.BackupInput{
		Path:        r.Path,
		TemplateIDs: r.TemplateIDs,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// RestoreRequest represents the request for template_restore.
type RestoreRequest struct {
	Path string `json:"path"`
	Mode string `json:"mode,omitempty"`
}

// HandleRestore handles the template_restore tool.
func (h *Handlers) HandleRestore(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	r, err := decode[RestoreRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Restore(ctx, h.db, h.cfg, ops.RestoreInput{
		Path: r.Path,
		Mode: ops.RestoreMode(r.Mode),
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// errorResult creates an MCP error result from an error. A DeckError
// anywhere in the chain supplies the code; wrapping context is kept in the
// message.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	var deckErr *errors.DeckError
	if stderrors.As(err, &deckErr) && deckErr.Code != errors.ErrInternal {
		message := deckErr.Message
		if prefix := strings.TrimSuffix(err.Error(), deckErr.Error()); prefix != err.Error() {
			message = prefix + message
		}
		errorObj := map[string]any{
			"code":    deckErr.Code,
			"message": message,
			"status":  deckErr.Status,
		}
		if deckErr.Details != nil {
			errorObj["details"] = deckErr.Details
		}
		payload = map[string]any{"error": errorObj}
	} else {
		// Internal errors may carry file paths or SQL; keep them out.
		payload = map[string]any{
			"error": map[string]any{
				"code":    errors.ErrInternal,
				"message": "an internal error occurred",
				"status":  500,
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
