package shapefile

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	shp "github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"

	"github.com/mohammed-shakir/geoportal/internal/core/apperr"
	"github.com/mohammed-shakir/geoportal/internal/core/model"
	"github.com/mohammed-shakir/geoportal/internal/crs"
	"github.com/mohammed-shakir/geoportal/internal/shapefile/shapetest"
)

var parcelFields = []shp.Field{
	shp.StringField("NOMBRE", 30),
	shp.NumberField("POBLACION", 10),
	shp.FloatField("AREA_HA", 12, 3),
	shp.DateField("FECHA"),
}

func TestLoad_WGS84Attributes(t *testing.T) {
	dir := t.TempDir()
	path := shapetest.Write(t, dir, "parcelas", shp.POLYGON, parcelFields, shapetest.PRJWGS84, []shapetest.Feature{
		{Shape: shapetest.Square(-70, -12, 0.5), Attrs: []any{"Parcela Norte", 120, 12.5, "20230115"}},
		{Shape: shapetest.Square(-69.5, -12, 0.5), Attrs: []any{"Parcela Sur", nil, 3.25, nil}},
	})

	fc, err := NewLoader(Options{}).Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if fc.Len() != 2 {
		t.Fatalf("features=%d want 2", fc.Len())
	}
	if fc.GeometryColumn != model.GeometryColumn || fc.SRID != 4326 {
		t.Fatalf("geometry column/srid = %q/%d", fc.GeometryColumn, fc.SRID)
	}

	wantTypes := map[string]model.ColumnType{
		"NOMBRE": model.ColumnText, "POBLACION": model.ColumnInteger,
		"AREA_HA": model.ColumnReal, "FECHA": model.ColumnTemporal,
	}
	for _, c := range fc.Columns {
		if wantTypes[c.Name] != c.Type {
			t.Fatalf("column %s type=%v want %v", c.Name, c.Type, wantTypes[c.Name])
		}
	}

	first := fc.Features[0].Properties
	if first["NOMBRE"] != "Parcela Norte" || first["POBLACION"] != int64(120) || first["AREA_HA"] != 12.5 {
		t.Fatalf("unexpected attributes: %#v", first)
	}
	if d, ok := first["FECHA"].(time.Time); !ok || !d.Equal(time.Date(2023, 1, 15, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("FECHA=%#v", first["FECHA"])
	}
	second := fc.Features[1].Properties
	if second["POBLACION"] != nil || second["FECHA"] != nil {
		t.Fatalf("blank DBF values must load as nil: %#v", second)
	}
	if _, ok := fc.Features[0].Geometry.(orb.Polygon); !ok {
		t.Fatalf("geometry type %T want orb.Polygon", fc.Features[0].Geometry)
	}
}

func TestLoad_ProjectedMatchesPreTransformed(t *testing.T) {
	utm, err := crs.FromEPSG(32719)
	if err != nil {
		t.Fatalf("FromEPSG: %v", err)
	}
	lonlat := []orb.Point{{-69.8, -12.3}, {-68.4, -11.1}}

	dirA, dirB := t.TempDir(), t.TempDir()
	var projected, canonical []shapetest.Feature
	for _, p := range lonlat {
		g := utm.FromWGS84(orb.Point{p[0], p[1]}).(orb.Point)
		projected = append(projected, shapetest.Feature{Shape: shapetest.Point(g[0], g[1])})
		canonical = append(canonical, shapetest.Feature{Shape: shapetest.Point(p[0], p[1])})
	}
	pathA := shapetest.Write(t, dirA, "pts", shp.POINT, nil, shapetest.PRJUTM19S, projected)
	pathB := shapetest.Write(t, dirB, "pts", shp.POINT, nil, shapetest.PRJWGS84, canonical)

	l := NewLoader(Options{})
	a, err := l.Load(context.Background(), pathA)
	if err != nil {
		t.Fatalf("Load projected: %v", err)
	}
	b, err := l.Load(context.Background(), pathB)
	if err != nil {
		t.Fatalf("Load canonical: %v", err)
	}
	for i := range lonlat {
		pa := a.Features[i].Geometry.(orb.Point)
		pb := b.Features[i].Geometry.(orb.Point)
		if math.Abs(pa[0]-pb[0]) > 1e-6 || math.Abs(pa[1]-pb[1]) > 1e-6 {
			t.Fatalf("feature %d: projected %v vs canonical %v", i, pa, pb)
		}
	}
}

func TestLoad_EmptyDataset(t *testing.T) {
	path := shapetest.Write(t, t.TempDir(), "empty", shp.POLYGON, parcelFields, shapetest.PRJWGS84, nil)
	_, err := NewLoader(Options{}).Load(context.Background(), path)
	if !errors.Is(err, apperr.ErrEmptyDataset) {
		t.Fatalf("err=%v want EmptyDataset", err)
	}
}

func TestLoad_MissingPRJ(t *testing.T) {
	path := shapetest.Write(t, t.TempDir(), "noprj", shp.POINT, nil, "", []shapetest.Feature{
		{Shape: shapetest.Point(-70, -12)},
	})

	if _, err := NewLoader(Options{}).Load(context.Background(), path); !errors.Is(err, apperr.ErrUnknownProjection) {
		t.Fatalf("err=%v want UnknownProjection", err)
	}

	fc, err := NewLoader(Options{DefaultSRID: 4326}).Load(context.Background(), path)
	if err != nil {
		t.Fatalf("explicit default SRID must load: %v", err)
	}
	if fc.Len() != 1 {
		t.Fatalf("features=%d", fc.Len())
	}
}

func TestLoad_RenamesAttributeCollidingWithGeometry(t *testing.T) {
	path := shapetest.Write(t, t.TempDir(), "clash", shp.POINT,
		[]shp.Field{shp.StringField("GEOMETRY", 10)}, shapetest.PRJWGS84,
		[]shapetest.Feature{{Shape: shapetest.Point(1, 1), Attrs: []any{"x"}}},
	)
	fc, err := NewLoader(Options{}).Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if fc.Columns[0].Name != "geometry_attr" {
		t.Fatalf("column=%q want geometry_attr", fc.Columns[0].Name)
	}
	if fc.Features[0].Properties["geometry_attr"] != "x" {
		t.Fatalf("properties=%#v", fc.Features[0].Properties)
	}
}
