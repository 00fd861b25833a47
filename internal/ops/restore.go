package ops

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/hpungsan/layerdeck/internal/config"
	"github.com/hpungsan/layerdeck/internal/db"
	"github.com/hpungsan/layerdeck/internal/errors"
	"github.com/hpungsan/layerdeck/internal/layer"
)

// RestoreMode controls collision behavior during restore.
type RestoreMode string

const (
	RestoreModeError   RestoreMode = "error"   // fail on any collision, write nothing
	RestoreModeReplace RestoreMode = "replace" // overwrite on collision
	RestoreModeSkip    RestoreMode = "skip"    // keep the existing template
)

// MaxBackupLineBytes bounds one template line of a backup file.
const MaxBackupLineBytes = 64 << 20

// RestoreInput contains parameters for the Restore operation.
type RestoreInput struct {
	Path string      // required
	Mode RestoreMode // default: error
}

// RestoreOutput contains the result of the Restore operation.
type RestoreOutput struct {
	Imported int            `json:"imported"`
	Skipped  int            `json:"skipped"`
	Errors   []RestoreError `json:"errors"`
}

// RestoreError represents an error that occurred during restore. SlideID
// is set when only that slide was rejected.
type RestoreError struct {
	Line    int    `json:"line"`
	ID      string `json:"id,omitempty"`
	SlideID string `json:"slide_id,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type backupLine struct {
	line   int
	record BackupRecord
}

// Restore reads a backup file and writes its templates. Each template is
// written template -> slides -> layers; a slide that fails validation or
// insertion is reported and the rest of its template is kept.
func Restore(ctx context.Context, database *sql.DB, cfg *config.Config, input RestoreInput) (*RestoreOutput, error) {
	if input.Path == "" {
		return nil, errors.NewInvalidRequest("path is required")
	}
	if input.Mode == "" {
		input.Mode = RestoreModeError
	}
	if input.Mode != RestoreModeError && input.Mode != RestoreModeReplace && input.Mode != RestoreModeSkip {
		return nil, errors.NewInvalidRequest("mode must be one of: error, replace, skip")
	}

	if err := ValidatePath(input.Path, PathCheckRead, cfg, BackupExtensions...); err != nil {
		return nil, err
	}
	file, err := openFileNoFollowRead(input.Path)
	if err != nil {
		if _, ok := err.(*errors.DeckError); ok {
			return nil, err
		}
		return nil, errors.NewInternal(fmt.Errorf("failed to open backup file: %w", err))
	}
	defer file.Close()

	records, parseErrors := parseBackupFile(file)
	out := &RestoreOutput{Errors: parseErrors}
	if out.Errors == nil {
		out.Errors = []RestoreError{}
	}

	// For mode:error, any parse error or collision aborts before writing.
	if input.Mode == RestoreModeError {
		if len(parseErrors) > 0 {
			return out, nil
		}
		for _, r := range records {
			exists, err := db.TemplateExists(ctx, database, r.record.ID)
			if err != nil {
				return nil, err
			}
			if exists {
				out.Errors = append(out.Errors, RestoreError{
					Line:    r.line,
					ID:      r.record.ID,
					Code:    string(errors.ErrConflict),
					Message: fmt.Sprintf("template %s already exists", r.record.ID),
				})
			}
		}
		if len(out.Errors) > 0 {
			return out, nil
		}
	}

	for _, r := range records {
		if err := ctx.Err(); err != nil {
			return nil, errors.NewCancelled("restore")
		}
		if input.Mode == RestoreModeSkip {
			exists, err := db.TemplateExists(ctx, database, r.record.ID)
			if err != nil {
				return nil, err
			}
			if exists {
				out.Skipped++
				continue
			}
		}
		if err := restoreOne(ctx, database, r, input.Mode == RestoreModeReplace, out); err != nil {
			return nil, err
		}
	}

	logrus.WithFields(logrus.Fields{
		"path":     input.Path,
		"mode":     input.Mode,
		"imported": out.Imported,
		"skipped":  out.Skipped,
		"errors":   len(out.Errors),
	}).Info("backup restored")
	return out, nil
}

// restoreOne validates each slide of r, then writes the template with the
// slides that passed. Only infrastructure failures are returned as errors.
func restoreOne(ctx context.Context, database *sql.DB, r backupLine, replace bool, out *RestoreOutput) error {
	rec := r.record
	valid := make([]db.SlideTree, 0, len(rec.Slides))
	for _, st := range rec.Slides {
		if st.Slide.TemplateID != "" && st.Slide.TemplateID != rec.ID {
			out.Errors = append(out.Errors, slideError(r, st, errors.NewValidation(
				fmt.Sprintf("slide %s belongs to template %s", st.Slide.ID, st.Slide.TemplateID))))
			continue
		}
		// The normalizer is the validator for stored rows.
		if _, err := layer.FromRecords(st.Slide, st.Layers); err != nil {
			out.Errors = append(out.Errors, slideError(r, st, err))
			continue
		}
		valid = append(valid, st)
	}

	tmpl := rec.Template
	res, err := db.InsertTemplate(ctx, database, &tmpl, valid, db.InsertOptions{Replace: replace})
	if err != nil {
		if errors.Is(err, errors.ErrConflict) {
			out.Errors = append(out.Errors, RestoreError{
				Line:    r.line,
				ID:      rec.ID,
				Code:    string(errors.ErrConflict),
				Message: err.Error(),
			})
			return nil
		}
		return err
	}
	for _, f := range res.Failed {
		out.Errors = append(out.Errors, RestoreError{
			Line:    r.line,
			ID:      rec.ID,
			SlideID: f.SlideID,
			Code:    f.Code,
			Message: f.Message,
		})
	}
	out.Imported++
	return nil
}

func slideError(r backupLine, st db.SlideTree, err error) RestoreError {
	return RestoreError{
		Line:    r.line,
		ID:      r.record.ID,
		SlideID: st.Slide.ID,
		Code:    string(errors.CodeOf(err)),
		Message: err.Error(),
	}
}

// parseBackupFile parses a JSONL backup file into records. The header line
// is skipped wherever it appears.
func parseBackupFile(r io.Reader) ([]backupLine, []RestoreError) {
	var records []backupLine
	var parseErrors []RestoreError

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), MaxBackupLineBytes)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}

		var header BackupHeader
		if err := json.Unmarshal(line, &header); err == nil && header.LayerdeckBackup {
			continue
		}

		var record BackupRecord
		if err := json.Unmarshal(line, &record); err != nil {
			parseErrors = append(parseErrors, RestoreError{
				Line:    lineNum,
				Code:    "PARSE_ERROR",
				Message: fmt.Sprintf("invalid JSON: %v", err),
			})
			continue
		}

		if record.ID == "" {
			parseErrors = append(parseErrors, RestoreError{
				Line:    lineNum,
				Code:    "INVALID_RECORD",
				Message: "missing id field",
			})
			continue
		}
		if strings.TrimSpace(record.Name) == "" {
			parseErrors = append(parseErrors, RestoreError{
				Line:    lineNum,
				ID:      record.ID,
				Code:    "INVALID_RECORD",
				Message: "missing name field",
			})
			continue
		}

		records = append(records, backupLine{line: lineNum, record: record})
	}

	if err := scanner.Err(); err != nil {
		parseErrors = append(parseErrors, RestoreError{
			Line:    lineNum,
			Code:    "READ_ERROR",
			Message: fmt.Sprintf("failed to read file: %v", err),
		})
	}

	return records, parseErrors
}
