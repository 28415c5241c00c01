package layers

import (
	"context"
	"errors"
	"fmt"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/paulmach/orb"

	"github.com/mohammed-shakir/geoportal/internal/core/apperr"
	"github.com/mohammed-shakir/geoportal/internal/core/model"
	"github.com/mohammed-shakir/geoportal/internal/docstore/redisstore"
	h3mapper "github.com/mohammed-shakir/geoportal/internal/mapper/h3"
	"github.com/mohammed-shakir/geoportal/internal/projector"
)

type lookup map[string]model.RegisteredLayer

func (l lookup) Get(_ context.Context, code string) (model.RegisteredLayer, error) {
	if v, ok := l[code]; ok {
		return v, nil
	}
	return model.RegisteredLayer{}, apperr.New(apperr.KindNotFound, "layer %q", code)
}

// newService projects twelve points: ten "well" rows and two "spring" rows along latitude 10.
func newService(t *testing.T) *Service {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	ctx := context.Background()
	store, err := redisstore.New(ctx, mr.Addr())
	if err != nil {
		t.Fatalf("redisstore: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	fc := &model.FeatureCollection{
		Columns: []model.Column{
			{Name: "name", Type: model.ColumnText},
			{Name: "kind", Type: model.ColumnText},
			{Name: "depth", Type: model.ColumnReal},
		},
		GeometryColumn: model.GeometryColumn,
		SRID:           model.SRID,
	}
	for i := 0; i < 12; i++ {
		kind := "well"
		if i >= 10 {
			kind = "spring"
		}
		fc.Features = append(fc.Features, model.Feature{
			Geometry:   orb.Point{float64(i) * 0.1, 10},
			Properties: map[string]any{"name": fmt.Sprintf("site-%02d", i), "kind": kind, "depth": float64(i) + 0.5},
		})
	}
	m := h3mapper.New()
	p := projector.New(store, projector.Options{H3Res: 7, Mapper: m})
	aliases := map[string]string{"name": "F_name", "kind": "F_kind", "depth": "F_depth"}
	if _, err := p.Project(ctx, "wells", fc, aliases); err != nil {
		t.Fatalf("project: %v", err)
	}
	layers := lookup{"wells": {Code: "wells", DocumentCollection: "geo_wells"}}
	return New(layers, store, m, 7)
}

func TestTable_ColumnsRowsAndFilters(t *testing.T) {
	s := newService(t)
	tb, err := s.Table(context.Background(), "wells")
	if err != nil {
		t.Fatalf("Table: %v", err)
	}
	if len(tb.Columns) != 3 || tb.Columns[0] != (ColumnMapping{Name: "F_name", Original: "name"}) {
		t.Fatalf("columns=%+v", tb.Columns)
	}
	if len(tb.Data) != 12 {
		t.Fatalf("rows=%d", len(tb.Data))
	}
	if _, ok := tb.Data[0]["_id"]; !ok {
		t.Fatalf("row without _id: %v", tb.Data[0])
	}
	if _, ok := tb.Data[0]["geometry"]; ok {
		t.Fatalf("geometry leaked into table row")
	}
	if len(tb.Filters) != 1 {
		t.Fatalf("filters=%+v", tb.Filters)
	}
	f := tb.Filters[0]
	if f.Name != "kind" || f.Label != "F_kind" || len(f.Options) != 2 || f.Options[0].ID != "spring" || f.Options[1].ID != "well" {
		t.Fatalf("filter=%+v", f)
	}
}

func TestSetColumns_HidesDisabledColumn(t *testing.T) {
	s := newService(t)
	ctx := context.Background()

	meta, err := s.SetColumns(ctx, "wells", map[string]bool{"F_name": false})
	if err != nil {
		t.Fatalf("SetColumns: %v", err)
	}
	if meta.ColumnsStatus["name"] {
		t.Fatalf("name still enabled")
	}

	tb, err := s.Table(ctx, "wells")
	if err != nil {
		t.Fatalf("Table: %v", err)
	}
	if len(tb.Columns) != 2 {
		t.Fatalf("columns=%+v", tb.Columns)
	}
	if _, ok := tb.Data[0]["name"]; ok {
		t.Fatalf("disabled column in table row")
	}

	fc, err := s.Row(ctx, "wells", "0")
	if err != nil {
		t.Fatalf("Row: %v", err)
	}
	if len(fc.Features) != 1 {
		t.Fatalf("features=%d", len(fc.Features))
	}
	props := fc.Features[0].Properties
	if _, ok := props["F_name"]; ok {
		t.Fatalf("disabled column in row: %v", props)
	}
	if props["F_kind"] != "well" {
		t.Fatalf("props=%v", props)
	}

	if _, err := s.SetColumns(ctx, "wells", map[string]bool{"missing": true}); !errors.Is(err, apperr.ErrInvalidRequest) {
		t.Fatalf("unknown column err=%v", err)
	}
}

func TestFilter_SubstringAndBBox(t *testing.T) {
	s := newService(t)
	ctx := context.Background()

	fc, err := s.Filter(ctx, "wells", FilterRequest{Values: map[string]string{"F_kind": "WEL", "name": ""}})
	if err != nil {
		t.Fatalf("Filter: %v", err)
	}
	if len(fc.Features) != 10 {
		t.Fatalf("substring matches=%d", len(fc.Features))
	}

	bb := &model.BBox{X1: -0.05, Y1: 9.5, X2: 0.35, Y2: 10.5, SRID: "EPSG:4326"}
	fc, err = s.Filter(ctx, "wells", FilterRequest{BBox: bb})
	if err != nil {
		t.Fatalf("Filter bbox: %v", err)
	}
	if len(fc.Features) != 4 {
		t.Fatalf("bbox matches=%d", len(fc.Features))
	}

	fc, err = s.Filter(ctx, "wells", FilterRequest{Values: map[string]string{"kind": "spring"}, BBox: bb})
	if err != nil {
		t.Fatalf("Filter both: %v", err)
	}
	if len(fc.Features) != 0 {
		t.Fatalf("combined matches=%d", len(fc.Features))
	}

	if _, err := s.Filter(ctx, "wells", FilterRequest{Values: map[string]string{"nope": "x"}}); !errors.Is(err, apperr.ErrInvalidRequest) {
		t.Fatalf("unknown column err=%v", err)
	}
}

func TestDisabledColumn_NotFilterable(t *testing.T) {
	s := newService(t)
	ctx := context.Background()
	if _, err := s.SetColumns(ctx, "wells", map[string]bool{"kind": false}); err != nil {
		t.Fatalf("SetColumns: %v", err)
	}

	tb, err := s.Table(ctx, "wells")
	if err != nil {
		t.Fatalf("Table: %v", err)
	}
	if len(tb.Filters) != 0 {
		t.Fatalf("disabled column offered as filter: %+v", tb.Filters)
	}
	sum, err := s.Summary(ctx, "wells")
	if err != nil || len(sum) != 0 {
		t.Fatalf("summary=%+v err=%v", sum, err)
	}
	for _, key := range []string{"kind", "F_kind"} {
		if _, err := s.Filter(ctx, "wells", FilterRequest{Values: map[string]string{key: "well"}}); !errors.Is(err, apperr.ErrInvalidRequest) {
			t.Fatalf("filter on disabled %s err=%v", key, err)
		}
	}

	if _, err := s.SetColumns(ctx, "wells", map[string]bool{"F_kind": true}); err != nil {
		t.Fatalf("re-enable: %v", err)
	}
	fc, err := s.Filter(ctx, "wells", FilterRequest{Values: map[string]string{"kind": "spring"}})
	if err != nil || len(fc.Features) != 2 {
		t.Fatalf("after re-enable features=%v err=%v", fc, err)
	}
}

func TestSummary_CountsDistinctValues(t *testing.T) {
	s := newService(t)
	sums, err := s.Summary(context.Background(), "wells")
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if len(sums) != 1 || sums[0].Name != "F_kind" || sums[0].Value != 2 {
		t.Fatalf("summaries=%+v", sums)
	}
	if sums[0].Description != "Number of unique categories for F_kind: 2" {
		t.Fatalf("description=%q", sums[0].Description)
	}
}

func TestUnknownLayerAndRow(t *testing.T) {
	s := newService(t)
	ctx := context.Background()
	if _, err := s.Table(ctx, "absent"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("Table err=%v", err)
	}
	if _, err := s.Row(ctx, "wells", "999"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("Row err=%v", err)
	}
	if _, err := s.Columns(ctx, "absent"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("Columns err=%v", err)
	}
}
