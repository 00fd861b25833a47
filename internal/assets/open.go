package assets

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/hpungsan/layerdeck/internal/config"
	"github.com/hpungsan/layerdeck/internal/errors"
)

// Open selects the backend named by cfg.AssetBackend. The filesystem
// backend lives under baseDir/assets.
func Open(ctx context.Context, cfg *config.Config, baseDir string) (Store, error) {
	fields := logrus.Fields{"backend": cfg.AssetBackend}
	var (
		store Store
		err   error
	)

	switch cfg.AssetBackend {
	case config.BackendMemory:
		store = NewMemory()
	case config.BackendS3:
		if cfg.S3Bucket == "" {
			return nil, errors.NewInvalidRequest("s3 asset backend requires s3_bucket")
		}
		fields["bucket"] = cfg.S3Bucket
		fields["prefix"] = cfg.S3Prefix
		store, err = DialS3(ctx, cfg.S3Bucket, cfg.S3Prefix)
	case config.BackendFilesystem, "":
		root := filepath.Join(baseDir, "assets")
		fields["backend"] = config.BackendFilesystem
		fields["root"] = root
		store, err = NewFilesystem(root)
	default:
		return nil, errors.NewInvalidRequest(fmt.Sprintf("unknown asset backend %q", cfg.AssetBackend))
	}
	if err != nil {
		return nil, err
	}

	logrus.WithFields(fields).Info("asset store ready")
	return store, nil
}
