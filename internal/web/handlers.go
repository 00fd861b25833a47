package web

import (
	"database/sql"
	"net/http"
	"net/url"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/hpungsan/layerdeck/internal/errors"
	"github.com/hpungsan/layerdeck/internal/ops"
	"github.com/hpungsan/layerdeck/internal/scale"
)

// DefaultThumbnailContext is the display context of detail page thumbnails.
const DefaultThumbnailContext = scale.GridMedium

// Handlers contains HTTP route handlers for the web UI.
type Handlers struct {
	db     *sql.DB
	pages  *Renderer
	slides *ops.Renderer
}

// HandleList handles GET /templates.
func (h *Handlers) HandleList(w http.ResponseWriter, r *http.Request) {
	result, err := ops.ListTemplates(r.Context(), h.db, ops.ListInput{
		Limit:  parseIntParam(r, "limit", ops.DefaultListLimit),
		Offset: parseIntParam(r, "offset", 0),
	})
	if err != nil {
		h.pages.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, result)
		return
	}

	h.pages.renderPage(w, "list", ListPageData{
		PageData: PageData{
			Title:   "Templates",
			Version: h.pages.version,
			Nav:     "templates",
		},
		Items:      result.Items,
		Pagination: result.Pagination,
	})
}

// HandleDetail handles GET /templates/{id}: slide thumbnails for one display
// context and the decode report.
func (h *Handlers) HandleDetail(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.pages.renderError(w, r, errors.NewInvalidRequest("template ID is required"))
		return
	}

	ctxName := r.URL.Query().Get("context")
	if ctxName == "" {
		ctxName = string(DefaultThumbnailContext)
	}
	displayCtx, err := scale.Parse(ctxName)
	if err != nil {
		h.pages.renderError(w, r, err)
		return
	}

	tmpl, err := ops.FetchTemplate(r.Context(), h.db, ops.FetchInput{ID: id})
	if err != nil {
		h.pages.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, tmpl)
		return
	}

	thumbs := make([]Thumbnail, 0, len(tmpl.Slides))
	for _, s := range tmpl.Slides {
		tw, th, err := h.slides.ThumbnailSize(displayCtx, s.Width, s.Height)
		if err != nil {
			h.pages.renderError(w, r, err)
			return
		}
		thumbs = append(thumbs, Thumbnail{
			SlideID: s.ID,
			Src:     renderURL(s.ID, displayCtx),
			Width:   tw,
			Height:  th,
			Layers:  len(s.Layers),
		})
	}

	h.pages.renderPage(w, "detail", DetailPageData{
		PageData: PageData{
			Title:   tmpl.Name,
			Version: h.pages.version,
			Nav:     "templates",
		},
		Template:   tmpl,
		Context:    string(displayCtx),
		Contexts:   contextNames(),
		Thumbnails: thumbs,
		Report:     renderMarkdown(ops.DecodeReport(tmpl.Name, tmpl.Warnings)),
	})
}

// HandleDelete handles DELETE /templates/{id}.
func (h *Handlers) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.pages.renderError(w, r, errors.NewInvalidRequest("template ID is required"))
		return
	}

	result, err := ops.DeleteTemplate(r.Context(), h.db, ops.DeleteInput{ID: id})
	if err != nil {
		h.pages.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, result)
		return
	}
	http.Redirect(w, r, "/templates", http.StatusSeeOther)
}

// HandleRenderPNG handles GET /slides/{id}/render.png. The display context
// comes from ?context= (default interactive) or an explicit ?scale=.
func (h *Handlers) HandleRenderPNG(w http.ResponseWriter, r *http.Request) {
	input, err := renderInput(r, ops.FormatPNG)
	if err != nil {
		h.pages.renderError(w, r, err)
		return
	}

	out, err := ops.RenderSlide(r.Context(), h.db, h.slides, input)
	if err != nil {
		h.pages.renderError(w, r, err)
		return
	}
	if len(out.Warnings) > 0 {
		logrus.WithFields(logrus.Fields{
			"slide_id": out.SlideID,
			"warnings": len(out.Warnings),
		}).Debug("slide rendered with warnings")
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(out.PNG)))
	w.Header().Set("Cache-Control", "private, max-age=60")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out.PNG)
}

// HandleRenderJSON handles GET /slides/{id}/render.json: the positioned
// render tree.
func (h *Handlers) HandleRenderJSON(w http.ResponseWriter, r *http.Request) {
	input, err := renderInput(r, ops.FormatJSON)
	if err != nil {
		h.pages.renderError(w, r, err)
		return
	}

	out, err := ops.RenderSlide(r.Context(), h.db, h.slides, input)
	if err != nil {
		h.pages.renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, out)
}

func renderInput(r *http.Request, format string) (ops.RenderInput, error) {
	q := r.URL.Query()
	input := ops.RenderInput{
		SlideID: r.PathValue("id"),
		Context: q.Get("context"),
		Format:  format,
	}
	if s := q.Get("scale"); s != "" {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return input, errors.NewInvalidRequest("scale must be a number")
		}
		input.Scale = v
	}
	if s := q.Get("supersample"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil {
			return input, errors.NewInvalidRequest("supersample must be an integer")
		}
		input.Supersample = v
	}
	return input, nil
}

func renderURL(slideID string, c scale.Context) string {
	return "/slides/" + url.PathEscape(slideID) + "/render.png?context=" + url.QueryEscape(string(c))
}

// parseIntParam parses an integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	s := r.URL.Query().Get(name)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}
