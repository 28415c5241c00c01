package projector

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/paulmach/orb"

	"github.com/mohammed-shakir/geoportal/internal/core/apperr"
	"github.com/mohammed-shakir/geoportal/internal/core/model"
	"github.com/mohammed-shakir/geoportal/internal/docstore"
	"github.com/mohammed-shakir/geoportal/internal/docstore/redisstore"
	h3mapper "github.com/mohammed-shakir/geoportal/internal/mapper/h3"
)

func newStore(t *testing.T) (*redisstore.Store, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	s, err := redisstore.New(context.Background(), mr.Addr())
	if err != nil {
		t.Fatalf("redisstore: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s, mr
}

func sample() *model.FeatureCollection {
	return &model.FeatureCollection{
		Columns: []model.Column{
			{Name: "name", Type: model.ColumnText},
			{Name: "depth", Type: model.ColumnReal},
			{Name: "visited", Type: model.ColumnTemporal},
		},
		Features: []model.Feature{
			{Geometry: orb.Point{-77.03, -12.04}, Properties: map[string]any{"name": "a", "depth": 1.5, "visited": time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC)}},
			{Geometry: orb.Point{-77.01, -12.02}, Properties: map[string]any{"name": "None", "depth": math.NaN(), "visited": nil}},
		},
	}
}

func TestProject_WritesRowsAndColumns(t *testing.T) {
	s, _ := newStore(t)
	p := New(s, Options{H3Res: 8, Mapper: h3mapper.New()})
	ctx := context.Background()

	res, err := p.Project(ctx, "wells", sample(), map[string]string{"name": "F_name"})
	if err != nil {
		t.Fatalf("Project: %v", err)
	}
	if res.Collection != "geo_wells" || res.Rows != 2 {
		t.Fatalf("result=%+v", res)
	}

	rows, err := s.Rows(ctx, "geo_wells")
	if err != nil {
		t.Fatalf("Rows: %v", err)
	}
	if rows[0]["depth"] != "1.5" || rows[0]["visited"] != "2023-05-01" {
		t.Fatalf("row0=%v", rows[0])
	}
	if rows[1]["name"] != nil || rows[1]["depth"] != nil || rows[1]["visited"] != nil {
		t.Fatalf("null-like values not nulled: %v", rows[1])
	}
	geom, ok := rows[0]["geometry"].(map[string]any)
	if !ok || geom["type"] != "Point" {
		t.Fatalf("geometry=%#v", rows[0]["geometry"])
	}
	if c, _ := rows[0][CellField].(string); c == "" {
		t.Fatalf("missing h3 cell: %v", rows[0])
	}

	meta, err := s.Columns(ctx, "wells")
	if err != nil {
		t.Fatalf("Columns: %v", err)
	}
	if len(meta.Enabled()) != 3 || meta.PrefixedName("depth") != "F_depth" || meta.PrefixedName("name") != "F_name" {
		t.Fatalf("meta=%+v", meta)
	}
}

func TestProject_EmptyCollectionWritesNoRows(t *testing.T) {
	s, mr := newStore(t)
	p := New(s, Options{})
	fc := &model.FeatureCollection{Columns: []model.Column{{Name: "a"}}}
	res, err := p.Project(context.Background(), "empty", fc, nil)
	if err != nil {
		t.Fatalf("Project: %v", err)
	}
	if res.Rows != 0 || mr.Exists("geoportal:geo_empty") {
		t.Fatalf("empty projection wrote rows")
	}
}

func TestProject_StoreFailureIsDocumentStage(t *testing.T) {
	s, _ := newStore(t)
	p := New(s, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Project(ctx, "wells", sample(), nil)
	if !errors.Is(err, apperr.ErrDocumentWrite) {
		t.Fatalf("want document storage write, got %v", err)
	}
	if errors.Is(err, apperr.ErrRelationalWrite) {
		t.Fatalf("document failure matched relational stage")
	}
}

func TestStringify(t *testing.T) {
	cases := []struct {
		in   any
		want any
	}{
		{nil, nil},
		{"nan", nil},
		{"NaT", nil},
		{"x", "x"},
		{int64(42), "42"},
		{2.25, "2.25"},
		{math.Inf(1), nil},
		{true, "true"},
		{time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), "2024-01-02 03:04:05"},
	}
	for _, c := range cases {
		if got := Stringify(c.in); got != c.want {
			t.Fatalf("Stringify(%v)=%v want %v", c.in, got, c.want)
		}
	}
}

var _ docstore.Store = (*redisstore.Store)(nil)
