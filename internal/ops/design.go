package ops

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/hpungsan/layerdeck/internal/assets"
	"github.com/hpungsan/layerdeck/internal/config"
	"github.com/hpungsan/layerdeck/internal/db"
	"github.com/hpungsan/layerdeck/internal/errors"
	"github.com/hpungsan/layerdeck/internal/layer"
	"github.com/hpungsan/layerdeck/internal/psd"
)

// MaxDesignBytes bounds how much of a design file is read.
const MaxDesignBytes int64 = 2 << 30

// DesignSource is a design file given either by path or by content.
type DesignSource struct {
	Path string // validated with ValidatePath and DesignExtensions
	Data []byte // used when Path is empty
}

// ImportDesignInput contains parameters for the ImportDesign operation.
type ImportDesignInput struct {
	DesignSource
	Name       string // default: file name without extension
	SourceName string // original file name, informational
}

// ImportDesignOutput contains the result of the ImportDesign operation.
type ImportDesignOutput struct {
	TemplateID string            `json:"template_id"`
	Name       string            `json:"name"`
	SlideIDs   []string          `json:"slide_ids"`
	LayerCount int               `json:"layer_count"`
	AssetCount int               `json:"asset_count"`
	Warnings   []psd.Warning     `json:"warnings"`
	Failed     []db.SlideFailure `json:"failed,omitempty"`
}

// ImportDesign decodes a design file, writes its rasters to store and
// persists the result as a new template.
func ImportDesign(ctx context.Context, database *sql.DB, store assets.Store, cfg *config.Config, input ImportDesignInput) (*ImportDesignOutput, error) {
	if store == nil {
		return nil, errors.NewInvalidRequest("asset store is required")
	}
	data, err := readDesign(input.DesignSource, cfg)
	if err != nil {
		return nil, err
	}

	sourceName := input.SourceName
	if sourceName == "" && input.Path != "" {
		sourceName = filepath.Base(input.Path)
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		name = strings.TrimSuffix(sourceName, filepath.Ext(sourceName))
	}
	if name == "" {
		name = "Untitled"
	}

	doc, err := psd.Decode(data, psd.WithMaxLayerPixels(maxLayerPixels(cfg)), psd.WithSlideID(newID()))
	if err != nil {
		return nil, err
	}
	logDecodeWarnings(sourceName, doc.Warnings)

	if err := putRasters(ctx, store, doc); err != nil {
		return nil, err
	}

	trees, layerCount, err := slideTrees(doc.Slides)
	if err != nil {
		return nil, err
	}

	warningsJSON, err := json.Marshal(doc.Warnings)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	tmpl := &db.Template{
		ID:         newID(),
		Name:       name,
		SourceName: sourceName,
		Warnings:   warningsJSON,
	}
	res, err := db.InsertTemplate(ctx, database, tmpl, trees, db.InsertOptions{})
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"template_id": tmpl.ID,
		"slides":      len(res.Inserted),
		"layers":      layerCount,
		"assets":      len(doc.Rasters),
		"warnings":    len(doc.Warnings),
	}).Info("design imported")

	return &ImportDesignOutput{
		TemplateID: tmpl.ID,
		Name:       tmpl.Name,
		SlideIDs:   res.Inserted,
		LayerCount: layerCount,
		AssetCount: len(doc.Rasters),
		Warnings:   nonNilWarnings(doc.Warnings),
		Failed:     res.Failed,
	}, nil
}

func readDesign(src DesignSource, cfg *config.Config) ([]byte, error) {
	if src.Path != "" && len(src.Data) > 0 {
		return nil, errors.NewInvalidRequest("specify either path or data, not both")
	}
	if src.Path == "" {
		if len(src.Data) == 0 {
			return nil, errors.NewInvalidRequest("path or data is required")
		}
		return src.Data, nil
	}

	if err := ValidatePath(src.Path, PathCheckRead, cfg, DesignExtensions...); err != nil {
		return nil, err
	}
	file, err := openFileNoFollowRead(src.Path)
	if err != nil {
		if _, ok := err.(*errors.DeckError); ok {
			return nil, err
		}
		return nil, errors.NewInternal(fmt.Errorf("failed to open design file: %w", err))
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, MaxDesignBytes+1))
	if err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to read design file: %w", err))
	}
	if int64(len(data)) > MaxDesignBytes {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("design file exceeds %d bytes", MaxDesignBytes))
	}
	return data, nil
}

func maxLayerPixels(cfg *config.Config) int {
	if cfg == nil {
		return 0
	}
	return cfg.MaxLayerPixels
}

// putRasters writes every decoded raster as PNG, in locator order.
func putRasters(ctx context.Context, store assets.Store, doc *psd.Document) error {
	locators := make([]string, 0, len(doc.Rasters))
	for loc := range doc.Rasters {
		locators = append(locators, loc)
	}
	sort.Strings(locators)

	for _, loc := range locators {
		if err := ctx.Err(); err != nil {
			return errors.NewCancelled("design import")
		}
		data, err := assets.EncodePNG(doc.Rasters[loc])
		if err != nil {
			return errors.NewInternal(err)
		}
		if err := store.Put(ctx, loc, assets.ContentTypePNG, data); err != nil {
			return err
		}
	}
	return nil
}

// slideTrees flattens decoded slides into storage rows. Slide positions
// follow decode order.
func slideTrees(slides []layer.Slide) ([]db.SlideTree, int, error) {
	trees := make([]db.SlideTree, 0, len(slides))
	count := 0
	for i, s := range slides {
		st := db.SlideTree{Slide: layer.SlideRecord{ID: s.ID, Position: i, Width: s.Width, Height: s.Height}}
		for pos, l := range s.Layers {
			rec, err := layer.ToRecord(s.ID, pos, l)
			if err != nil {
				return nil, 0, err
			}
			st.Layers = append(st.Layers, rec)
		}
		count += len(s.Layers)
		trees = append(trees, st)
	}
	return trees, count, nil
}

func logDecodeWarnings(source string, warnings []psd.Warning) {
	for _, w := range warnings {
		entry := logrus.WithFields(logrus.Fields{
			"source":      source,
			"code":        w.Code,
			"layer_index": w.LayerIndex,
			"layer_name":  w.LayerName,
		})
		if w.Severity == psd.SeverityInfo {
			entry.Debug(w.Message)
		} else {
			entry.Warn(w.Message)
		}
	}
}

func nonNilWarnings(w []psd.Warning) []psd.Warning {
	if w == nil {
		return []psd.Warning{}
	}
	return w
}

// InspectOutput summarises a design file without persisting it.
type InspectOutput struct {
	Header   psd.Header     `json:"header"`
	Slides   []SlideSummary `json:"slides"`
	Assets   int            `json:"asset_count"`
	Warnings []psd.Warning  `json:"warnings"`
}

// SlideSummary describes one decoded or stored slide.
type SlideSummary struct {
	ID     string         `json:"id"`
	Width  int            `json:"width"`
	Height int            `json:"height"`
	Layers []LayerSummary `json:"layers"`
}

// LayerSummary is the geometry and identity of one layer.
type LayerSummary struct {
	ID      string     `json:"id"`
	Name    string     `json:"name,omitempty"`
	Kind    layer.Kind `json:"kind"`
	X       float64    `json:"x"`
	Y       float64    `json:"y"`
	Width   float64    `json:"width"`
	Height  float64    `json:"height"`
	Visible bool       `json:"visible"`
	ZIndex  int        `json:"z_index"`
	Text    string     `json:"text,omitempty"`
}

// Inspect decodes a design file and reports its layers and warnings.
func Inspect(cfg *config.Config, src DesignSource) (*InspectOutput, error) {
	data, err := readDesign(src, cfg)
	if err != nil {
		return nil, err
	}
	doc, err := psd.Decode(data, psd.WithMaxLayerPixels(maxLayerPixels(cfg)))
	if err != nil {
		return nil, err
	}
	out := &InspectOutput{
		Header:   doc.Header,
		Slides:   make([]SlideSummary, 0, len(doc.Slides)),
		Assets:   len(doc.Rasters),
		Warnings: nonNilWarnings(doc.Warnings),
	}
	for _, s := range doc.Slides {
		out.Slides = append(out.Slides, summarize(s))
	}
	return out, nil
}

func summarize(s layer.Slide) SlideSummary {
	sum := SlideSummary{ID: s.ID, Width: s.Width, Height: s.Height, Layers: make([]LayerSummary, 0, len(s.Layers))}
	for _, l := range s.Layers {
		ls := LayerSummary{
			ID:      l.ID,
			Name:    l.Name,
			Kind:    l.Kind,
			X:       l.X,
			Y:       l.Y,
			Width:   l.Width,
			Height:  l.Height,
			Visible: l.Visible,
			ZIndex:  l.ZIndex,
		}
		if l.Text != nil {
			ls.Text = l.Text.Content
		}
		sum.Layers = append(sum.Layers, ls)
	}
	return sum
}
