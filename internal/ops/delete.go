package ops

import (
	"context"
	"database/sql"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/hpungsan/layerdeck/internal/db"
	"github.com/hpungsan/layerdeck/internal/errors"
)

// DeleteInput contains parameters for the DeleteTemplate operation.
type DeleteInput struct {
	ID string
}

// DeleteOutput contains the result of the DeleteTemplate operation.
type DeleteOutput struct {
	Deleted bool   `json:"deleted"`
	ID      string `json:"id"`
}

// DeleteTemplate removes a template with its slides and layers. Stored
// assets are content-addressed and may be shared, so they are kept.
func DeleteTemplate(ctx context.Context, database *sql.DB, input DeleteInput) (*DeleteOutput, error) {
	id := strings.TrimSpace(input.ID)
	if id == "" {
		return nil, errors.NewInvalidRequest("id is required")
	}
	if err := db.DeleteTemplate(ctx, database, id); err != nil {
		return nil, err
	}
	logrus.WithField("template_id", id).Info("template deleted")
	return &DeleteOutput{Deleted: true, ID: id}, nil
}
