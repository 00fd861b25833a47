package ops

import (
	"context"
	"database/sql"
	"image/color"
	"testing"

	"github.com/hpungsan/layerdeck/internal/assets"
	"github.com/hpungsan/layerdeck/internal/config"
	"github.com/hpungsan/layerdeck/internal/db"
	"github.com/hpungsan/layerdeck/internal/psd/psdtest"
)

var (
	red  = color.NRGBA{R: 255, A: 255}
	blue = [3]float64{0, 0, 255}
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	database, err := db.Init(t.TempDir())
	if err != nil {
		t.Fatalf("db.Init failed: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return database
}

// testDesign is a 200x100 document: a blue background shape, a red image
// over the left half of the top and a text layer on the right.
func testDesign() []byte {
	b := psdtest.New(200, 100)
	b.Add(
		b.ShapeLayer("Background", 0, 0, 200, 100, blue[0], blue[1], blue[2]),
		b.ImageLayer("Photo", 0, 0, 100, 50, red, psdtest.RLE),
		b.TextLayer("Title", 110, 10, 190, 40, psdtest.Text{Content: "Hello", Font: "Inter-Bold", Size: 12}),
	)
	return b.Bytes()
}

type importedDesign struct {
	database *sql.DB
	store    *assets.Memory
	out      *ImportDesignOutput
}

func importTestDesign(t *testing.T) importedDesign {
	t.Helper()
	database := setupTestDB(t)
	store := assets.NewMemory()
	out, err := ImportDesign(context.Background(), database, store, config.DefaultConfig(), ImportDesignInput{
		DesignSource: DesignSource{Data: testDesign()},
		SourceName:   "deck.psd",
	})
	if err != nil {
		t.Fatalf("ImportDesign failed: %v", err)
	}
	return importedDesign{database: database, store: store, out: out}
}
