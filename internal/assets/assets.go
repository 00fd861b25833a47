// Package assets stores and resolves the rasters that image layers point at.
// Locators are content addresses of the form "sha256:<64 hex digits>".
package assets

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"io"
	"regexp"
	"strings"

	"github.com/hpungsan/layerdeck/internal/errors"
)

// ContentTypePNG is the only content type the decoder produces.
const ContentTypePNG = "image/png"

// Resolver opens the bytes behind a locator.
type Resolver interface {
	Resolve(ctx context.Context, locator string) (io.ReadCloser, error)
}

// Store is a Resolver that can also be written to. Put is idempotent for a
// given locator since locators are content addresses.
type Store interface {
	Resolver
	Put(ctx context.Context, locator, contentType string, data []byte) error
}

var locatorRegex = regexp.MustCompile(`^sha256:([0-9a-f]{64})$`)

// ParseLocator validates locator and returns its hex digest.
func ParseLocator(locator string) (string, error) {
	m := locatorRegex.FindStringSubmatch(strings.TrimSpace(locator))
	if m == nil {
		return "", errors.NewInvalidRequest(fmt.Sprintf("invalid asset locator %q", locator))
	}
	return m[1], nil
}

// EncodePNG encodes img losslessly.
func EncodePNG(img *image.NRGBA) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}
