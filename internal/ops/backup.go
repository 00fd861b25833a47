package ops

import (
	"bufio"
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/hpungsan/layerdeck/internal/config"
	"github.com/hpungsan/layerdeck/internal/db"
	"github.com/hpungsan/layerdeck/internal/errors"
)

// BackupSchemaVersion is written in the header line of every backup.
const BackupSchemaVersion = "1.0"

// BackupInput contains parameters for the Backup operation.
type BackupInput struct {
	Path        string   // optional, default: ~/.layerdeck/exports/layerdeck-<timestamp>.jsonl
	TemplateIDs []string // optional, default: every template
}

// BackupOutput contains the result of the Backup operation.
type BackupOutput struct {
	Path       string `json:"path"`
	Count      int    `json:"count"`
	ExportedAt int64  `json:"exported_at"`
}

// BackupHeader represents the header line in a JSONL backup file.
type BackupHeader struct {
	LayerdeckBackup bool   `json:"_layerdeck_backup"`
	SchemaVersion   string `json:"schema_version"`
	ExportedAt      int64  `json:"exported_at"`
}

// BackupRecord is one template line: the template row with its slide and
// layer rows nested under it.
type BackupRecord struct {
	db.Template
	Slides []db.SlideTree `json:"slides"`
}

// Backup writes templates to a JSONL file.
func Backup(ctx context.Context, database *sql.DB, cfg *config.Config, input BackupInput) (*BackupOutput, error) {
	now := time.Now()
	exportedAt := now.Unix()

	exportPath := input.Path
	if exportPath == "" {
		var err error
		exportPath, err = defaultBackupPath(now)
		if err != nil {
			return nil, err
		}
	}

	if err := ValidatePath(exportPath, PathCheckWrite, cfg, BackupExtensions...); err != nil {
		return nil, err
	}

	dir := filepath.Dir(exportPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to create export directory: %w", err))
	}

	// Write to temp file first, then atomic rename to preserve existing file on failure
	randBytes := make([]byte, 8)
	if _, err := rand.Read(randBytes); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to generate temp file name: %w", err))
	}
	tempPath := exportPath + "." + hex.EncodeToString(randBytes) + ".tmp"
	file, err := openFileNoFollow(tempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to create backup file: %w", err))
	}

	success := false
	defer func() {
		if file != nil {
			file.Close()
		}
		if !success {
			os.Remove(tempPath)
		}
	}()

	w := bufio.NewWriter(file)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(BackupHeader{
		LayerdeckBackup: true,
		SchemaVersion:   BackupSchemaVersion,
		ExportedAt:      exportedAt,
	}); err != nil {
		return nil, errors.NewInternal(err)
	}

	count := 0
	writeOne := func(id string) error {
		select {
		case <-ctx.Done():
			return errors.NewCancelled("backup")
		default:
		}
		t, trees, err := db.GetTemplateTree(ctx, database, id)
		if err != nil {
			return err
		}
		if err := enc.Encode(BackupRecord{Template: *t, Slides: trees}); err != nil {
			return errors.NewInternal(err)
		}
		count++
		return nil
	}

	if len(input.TemplateIDs) > 0 {
		for _, id := range input.TemplateIDs {
			if err := writeOne(id); err != nil {
				return nil, err
			}
		}
	} else if err := db.StreamTemplateIDs(ctx, database, writeOne); err != nil {
		return nil, err
	}

	if err := w.Flush(); err != nil {
		return nil, errors.NewInternal(err)
	}
	if err := file.Sync(); err != nil {
		return nil, errors.NewInternal(err)
	}

	// Close before atomic replace (required on Windows; fine elsewhere).
	if err := file.Close(); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to close backup file: %w", err))
	}
	file = nil

	// os.Rename would follow a symlink at the destination.
	if info, err := os.Lstat(exportPath); err == nil && info.Mode()&os.ModeSymlink != 0 {
		return nil, errors.NewInternal(fmt.Errorf("backup path is a symlink"))
	}

	// On Windows, os.Rename fails if the destination exists; the existing
	// file is kept in that case.
	if err := os.Rename(tempPath, exportPath); err != nil {
		if runtime.GOOS == "windows" {
			if _, statErr := os.Stat(exportPath); statErr == nil {
				return nil, errors.NewInvalidRequest("backup destination already exists; overwriting is not supported on Windows yet (choose a new path or delete the existing file)")
			}
		}
		return nil, errors.NewInternal(fmt.Errorf("failed to finalize backup: %w", err))
	}

	success = true
	logrus.WithFields(logrus.Fields{"path": exportPath, "templates": count}).Info("backup written")
	return &BackupOutput{
		Path:       exportPath,
		Count:      count,
		ExportedAt: exportedAt,
	}, nil
}

// defaultBackupPath generates ~/.layerdeck/exports/layerdeck-<timestamp>.jsonl.
func defaultBackupPath(now time.Time) (string, error) {
	dir, err := DefaultExportsDir()
	if err != nil {
		return "", err
	}
	filename := fmt.Sprintf("layerdeck-%s.jsonl", now.Format("2006-01-02T150405"))
	return filepath.Join(dir, filename), nil
}
