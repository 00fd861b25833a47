package fonts

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/gogpu/gg/text"

	"github.com/hpungsan/layerdeck/internal/errors"
	"github.com/hpungsan/layerdeck/internal/layer"
)

var fontExts = map[string]bool{".ttf": true, ".otf": true}

// Registry indexes font files by family, weight and style.
// Safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[string][]*Handle
}

// ScanResult summarises a directory scan.
type ScanResult struct {
	Loaded  int      `json:"loaded"`
	Skipped []string `json:"skipped,omitempty"`
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string][]*Handle)}
}

// Scan walks dirs for .ttf and .otf files. Family, weight and style come
// from the file name ("Inter-SemiBoldItalic.ttf"). Files that do not parse
// are reported in Skipped; missing directories are ignored.
func (r *Registry) Scan(dirs ...string) (ScanResult, error) {
	var res ScanResult
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			continue
		}
		err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || !fontExts[strings.ToLower(filepath.Ext(path))] {
				return nil
			}
			src, err := text.NewFontSourceFromFile(path)
			if err != nil {
				res.Skipped = append(res.Skipped, path)
				return nil
			}
			base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
			family, weight, style := layer.ParseFontName(base)
			r.Add(family, weight, style, src)
			res.Loaded++
			return nil
		})
		if err != nil {
			return res, fmt.Errorf("scan font dir %s: %w", dir, err)
		}
	}
	return res, nil
}

// Add registers src under family/weight/style. A later source with the same
// key replaces the earlier one.
func (r *Registry) Add(family string, weight int, style layer.FontStyle, src *text.FontSource) {
	key := layer.FamilyKey(family)
	h := &Handle{Family: family, Weight: weight, Style: style, Source: src}

	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.entries[key]
	for i, e := range list {
		if e.Weight == weight && e.Style == style {
			list[i] = h
			return
		}
	}
	r.entries[key] = append(list, h)
}

// Families lists registered family names, sorted.
func (r *Registry) Families() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.entries))
	for _, list := range r.entries {
		out = append(out, list[0].Family)
	}
	sort.Strings(out)
	return out
}

// Resolve returns the registered face of family closest to the request.
// The style must match when the family has it; otherwise any style is used.
// Among candidates the nearest weight wins, ties going to the heavier face
// for weights of 400 and above and to the lighter one below.
func (r *Registry) Resolve(ctx context.Context, family string, weight int, style layer.FontStyle) (*Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.NewFontResolution(family, err)
	}

	r.mu.RLock()
	list := r.entries[layer.FamilyKey(family)]
	r.mu.RUnlock()
	if len(list) == 0 {
		return nil, errors.NewFontResolution(family, fmt.Errorf("family not registered"))
	}

	candidates := make([]*Handle, 0, len(list))
	for _, h := range list {
		if h.Style == style {
			candidates = append(candidates, h)
		}
	}
	if len(candidates) == 0 {
		candidates = list
	}

	var best *Handle
	for _, h := range candidates {
		if best == nil || closer(h.Weight, best.Weight, weight) {
			best = h
		}
	}
	return best, nil
}

func closer(a, b, want int) bool {
	da, db := abs(a-want), abs(b-want)
	if da != db {
		return da < db
	}
	if want >= 400 {
		return a > b
	}
	return a < b
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
