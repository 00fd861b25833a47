package assets

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/hpungsan/layerdeck/internal/errors"
)

// Filesystem stores assets as <root>/sha256/<hex>.png.
type Filesystem struct {
	root string
}

// NewFilesystem creates root if needed.
func NewFilesystem(root string) (*Filesystem, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve asset root: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(abs, "sha256"), 0700); err != nil {
		return nil, fmt.Errorf("create asset root: %w", err)
	}
	return &Filesystem{root: abs}, nil
}

// Root returns the absolute asset directory.
func (f *Filesystem) Root() string {
	return f.root
}

func (f *Filesystem) path(locator string) (string, error) {
	hex, err := ParseLocator(locator)
	if err != nil {
		return "", err
	}
	p := filepath.Join(f.root, "sha256", hex+".png")
	if !strings.HasPrefix(p, f.root+string(filepath.Separator)) {
		return "", errors.NewInvalidRequest(fmt.Sprintf("asset locator %q escapes the asset root", locator))
	}
	return p, nil
}

// Put writes via a temp file and rename so readers never see partial data.
// An existing asset is left alone.
func (f *Filesystem) Put(ctx context.Context, locator, _ string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return errors.NewCancelled("asset put")
	}
	p, err := f.path(locator)
	if err != nil {
		return err
	}
	if _, err := os.Stat(p); err == nil {
		return nil
	}

	tmp, err := os.CreateTemp(filepath.Dir(p), ".asset-*")
	if err != nil {
		return errors.NewAssetUnavailable(locator, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.NewAssetUnavailable(locator, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.NewAssetUnavailable(locator, err)
	}
	if err := os.Rename(tmpName, p); err != nil {
		os.Remove(tmpName)
		return errors.NewAssetUnavailable(locator, err)
	}
	logrus.WithFields(logrus.Fields{"locator": locator, "bytes": len(data)}).Debug("asset stored")
	return nil
}

func (f *Filesystem) Resolve(ctx context.Context, locator string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.NewCancelled("asset resolve")
	}
	p, err := f.path(locator)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewNotFound("asset", locator)
		}
		return nil, errors.NewAssetUnavailable(locator, err)
	}
	return file, nil
}
