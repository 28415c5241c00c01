package snapshot

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	flatgeobuf "github.com/flatgeobuf/flatgeobuf/src/go"
	"github.com/paulmach/orb"

	"github.com/mohammed-shakir/geoportal/internal/core/model"
)

func fixture() *model.FeatureCollection {
	fc := &model.FeatureCollection{
		Columns: []model.Column{
			{Name: "name", Type: model.ColumnText},
			{Name: "count", Type: model.ColumnInteger},
			{Name: "depth", Type: model.ColumnReal},
			{Name: "ok", Type: model.ColumnBoolean},
			{Name: "visited", Type: model.ColumnTemporal},
		},
	}
	for i := 0; i < 10; i++ {
		fc.Features = append(fc.Features, model.Feature{
			Geometry: orb.Point{float64(i), float64(i * 2)},
			Properties: map[string]any{
				"name":    "p",
				"count":   int64(i),
				"depth":   float64(i) / 2,
				"ok":      i%2 == 0,
				"visited": time.Date(2024, 1, i+1, 0, 0, 0, 0, time.UTC),
			},
		})
	}
	return fc
}

func TestWriteFile_ReadBack(t *testing.T) {
	dir := t.TempDir()
	path, err := WriteFile(dir, "wells", fixture())
	if err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if path != filepath.Join(dir, "wells.fgb") {
		t.Fatalf("path=%s", path)
	}

	fgb, err := flatgeobuf.New(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	h := fgb.Header()
	if h.FeaturesCount() != 10 {
		t.Fatalf("features=%d", h.FeaturesCount())
	}
	if string(h.Name()) != "wells" || h.ColumnsLength() != 5 {
		t.Fatalf("name=%s columns=%d", h.Name(), h.ColumnsLength())
	}
	found, err := fgb.Search(-1, -1, 100, 100)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(found) != 10 {
		t.Fatalf("search found %d", len(found))
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Fatalf("temp files left behind: %v", entries)
	}
}

func TestWrite_MagicAndEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, "x", fixture()); err != nil {
		t.Fatalf("Write: %v", err)
	}
	magic := []byte{0x66, 0x67, 0x62, 0x03}
	if !bytes.HasPrefix(buf.Bytes(), magic) {
		t.Fatalf("missing magic bytes")
	}
	if err := Write(&buf, "x", &model.FeatureCollection{}); !errors.Is(err, ErrEmpty) {
		t.Fatalf("want ErrEmpty, got %v", err)
	}
}

func TestCollectionType_Mixed(t *testing.T) {
	fc := &model.FeatureCollection{Features: []model.Feature{
		{Geometry: orb.Point{0, 0}},
		{Geometry: orb.Polygon{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}}},
	}}
	var buf bytes.Buffer
	if err := Write(&buf, "mixed", fc); err != nil {
		t.Fatalf("Write: %v", err)
	}
}
