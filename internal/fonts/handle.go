// Package fonts resolves (family, weight, style) requests to gg font
// sources: a directory-backed Registry, a caller-owned LRU Cache in front
// of any resolver, and the built-in Go Regular fallback.
package fonts

import (
	"context"
	"sync"

	"github.com/gogpu/gg/text"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/hpungsan/layerdeck/internal/layer"
)

// FallbackFamily names the built-in fallback face.
const FallbackFamily = "Go"

// Handle is a resolved font.
type Handle struct {
	Family   string
	Weight   int
	Style    layer.FontStyle
	Source   *text.FontSource
	Fallback bool
}

// Face returns a face of the handle's source at size pixels.
func (h *Handle) Face(size float64) text.Face {
	return h.Source.Face(size)
}

// Resolver maps a font request to a Handle.
type Resolver interface {
	Resolve(ctx context.Context, family string, weight int, style layer.FontStyle) (*Handle, error)
}

var (
	fallbackOnce   sync.Once
	fallbackHandle *Handle
	fallbackErr    error
)

// Fallback returns the shared Go Regular handle.
func Fallback() (*Handle, error) {
	fallbackOnce.Do(func() {
		src, err := text.NewFontSource(goregular.TTF)
		if err != nil {
			fallbackErr = err
			return
		}
		fallbackHandle = &Handle{
			Family:   FallbackFamily,
			Weight:   layer.DefaultFontWeight,
			Style:    layer.StyleNormal,
			Source:   src,
			Fallback: true,
		}
	})
	return fallbackHandle, fallbackErr
}
