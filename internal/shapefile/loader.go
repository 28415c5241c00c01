// Package shapefile loads ESRI shapefiles into normalized feature collections in EPSG:4326.
package shapefile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	shp "github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"

	"github.com/mohammed-shakir/geoportal/internal/core/apperr"
	"github.com/mohammed-shakir/geoportal/internal/core/model"
	"github.com/mohammed-shakir/geoportal/internal/crs"
	"github.com/mohammed-shakir/geoportal/internal/geo"
)

// renamed attribute when a DBF field collides with the canonical geometry column
const collidingAttr = "geometry_attr"

type Options struct {
	// DefaultSRID is used when the bundle has no .prj; 0 rejects such bundles.
	DefaultSRID int
	Logger      *slog.Logger
}

type Loader struct {
	defaultSRID int
	logger      *slog.Logger
}

func NewLoader(opts Options) *Loader {
	l := opts.Logger
	if l == nil {
		l = slog.New(slog.DiscardHandler)
	}
	return &Loader{defaultSRID: opts.DefaultSRID, logger: l}
}

// Load reads the shapefile at path into a FeatureCollection in EPSG:4326.
func (l *Loader) Load(ctx context.Context, path string) (*model.FeatureCollection, error) {
	base := strings.TrimSuffix(path, ".shp")
	if _, err := os.Stat(base + ".dbf"); err != nil {
		l.logger.WarnContext(ctx, "shapefile has no attribute table", "path", path)
	}

	r, err := shp.Open(path)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInvalidFormat, err, "open shapefile")
	}
	defer func() { _ = r.Close() }()

	fields := r.Fields()
	columns, colIdx := buildColumns(fields)
	latin1 := needsLatin1(base)

	type record struct {
		shape shp.Shape
		attrs map[string]any
	}
	var records []record
	for r.Next() {
		if len(records)%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		n, shape := r.Shape()
		attrs := make(map[string]any, len(columns))
		for i := range fields {
			raw := strings.TrimSpace(strings.Trim(r.ReadAttribute(n, i), "\x00"))
			if latin1 || !utf8.ValidString(raw) {
				raw = decodeLatin1(raw)
			}
			attrs[columns[colIdx[i]].Name] = parseValue(raw, fields[i])
		}
		records = append(records, record{shape: shape, attrs: attrs})
	}
	if err := r.Err(); err != nil && !errors.Is(err, io.EOF) {
		return nil, apperr.Wrap(apperr.KindInvalidFormat, err, "read shapefile")
	}

	if len(records) == 0 {
		return nil, apperr.New(apperr.KindEmptyDataset, "shapefile %s has no features", baseName(path))
	}
	if r.GeometryType == shp.NULL {
		return nil, apperr.New(apperr.KindMissingGeometry, "shapefile %s has no geometry", baseName(path))
	}

	src, err := l.sourceCRS(base)
	if err != nil {
		return nil, err
	}

	fc := &model.FeatureCollection{
		Columns:        columns,
		Features:       make([]model.Feature, 0, len(records)),
		GeometryColumn: model.GeometryColumn,
		SRID:           model.SRID,
	}
	dropped := 0
	for _, rec := range records {
		g := toOrb(rec.shape)
		if g != nil && !src.IsCanonical() {
			g = src.ToWGS84(g)
		}
		g = geo.Repair(g)
		if g == nil {
			dropped++
			continue
		}
		fc.Features = append(fc.Features, model.Feature{Geometry: g, Properties: rec.attrs})
	}
	if dropped > 0 {
		l.logger.WarnContext(ctx, "features without usable geometry dropped", "dropped", dropped, "kept", len(fc.Features))
	}
	if len(fc.Features) == 0 {
		return nil, apperr.New(apperr.KindEmptyDataset, "shapefile %s has no features with usable geometry", baseName(path))
	}

	l.logger.DebugContext(ctx, "shapefile loaded",
		"features", len(fc.Features),
		"columns", len(fc.Columns),
		"source_crs", src.Name,
		"source_epsg", src.EPSG,
	)
	return fc, nil
}

func (l *Loader) sourceCRS(base string) (crs.CRS, error) {
	for _, ext := range []string{".prj", ".PRJ"} {
		b, err := os.ReadFile(base + ext)
		if err == nil {
			return crs.ParsePRJ(string(b))
		}
		if !os.IsNotExist(err) {
			return crs.CRS{}, fmt.Errorf("read %s%s: %w", base, ext, err)
		}
	}
	if l.defaultSRID != 0 {
		return crs.FromEPSG(l.defaultSRID)
	}
	return crs.CRS{}, apperr.New(apperr.KindUnknownProjection, "bundle has no .prj and no default source SRID is configured")
}

func buildColumns(fields []shp.Field) ([]model.Column, []int) {
	cols := make([]model.Column, 0, len(fields))
	idx := make([]int, len(fields))
	seen := map[string]int{}
	for i, f := range fields {
		name := strings.TrimSpace(f.String())
		if strings.EqualFold(name, model.GeometryColumn) {
			name = collidingAttr
		}
		if n, dup := seen[name]; dup {
			seen[name] = n + 1
			name = name + "_" + strconv.Itoa(n+1)
		} else {
			seen[name] = 0
		}
		idx[i] = len(cols)
		cols = append(cols, model.Column{Name: name, Type: columnType(f)})
	}
	return cols, idx
}

func columnType(f shp.Field) model.ColumnType {
	switch f.Fieldtype {
	case 'N':
		if f.Precision == 0 {
			return model.ColumnInteger
		}
		return model.ColumnReal
	case 'F', 'O':
		return model.ColumnReal
	case 'D':
		return model.ColumnTemporal
	case 'L':
		return model.ColumnBoolean
	default:
		return model.ColumnText
	}
}

func parseValue(raw string, f shp.Field) any {
	if raw == "" {
		return nil
	}
	switch columnType(f) {
	case model.ColumnInteger:
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return n
		}
		if x, err := strconv.ParseFloat(raw, 64); err == nil {
			return int64(x)
		}
		return nil
	case model.ColumnReal:
		if x, err := strconv.ParseFloat(raw, 64); err == nil {
			return x
		}
		return nil
	case model.ColumnTemporal:
		if t, err := time.Parse("20060102", raw); err == nil {
			return t
		}
		return nil
	case model.ColumnBoolean:
		switch raw {
		case "T", "t", "Y", "y":
			return true
		case "F", "f", "N", "n":
			return false
		}
		return nil
	default:
		return raw
	}
}

// needsLatin1 reports whether the .cpg sidecar declares a single byte western code page.
func needsLatin1(base string) bool {
	b, err := os.ReadFile(base + ".cpg")
	if err != nil {
		return false
	}
	switch strings.ToUpper(strings.TrimSpace(string(b))) {
	case "1252", "ANSI 1252", "CP1252", "WINDOWS-1252", "ISO-8859-1", "ISO88591", "LATIN1", "8859_1":
		return true
	}
	return false
}

func decodeLatin1(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		b.WriteRune(rune(s[i]))
	}
	return b.String()
}

func baseName(path string) string {
	if i := strings.LastIndexAny(path, `/\`); i >= 0 {
		return path[i+1:]
	}
	return path
}

func toOrb(s shp.Shape) orb.Geometry {
	switch v := s.(type) {
	case *shp.Point:
		return orb.Point{v.X, v.Y}
	case *shp.PointZ:
		return orb.Point{v.X, v.Y}
	case *shp.PointM:
		return orb.Point{v.X, v.Y}
	case *shp.MultiPoint:
		return multiPoint(v.Points)
	case *shp.MultiPointZ:
		return multiPoint(v.Points)
	case *shp.MultiPointM:
		return multiPoint(v.Points)
	case *shp.PolyLine:
		return lines(v.Parts, v.Points)
	case *shp.PolyLineZ:
		return lines(v.Parts, v.Points)
	case *shp.PolyLineM:
		return lines(v.Parts, v.Points)
	case *shp.Polygon:
		return polygons(v.Parts, v.Points)
	case *shp.PolygonZ:
		return polygons(v.Parts, v.Points)
	case *shp.PolygonM:
		return polygons(v.Parts, v.Points)
	}
	return nil
}

func multiPoint(pts []shp.Point) orb.Geometry {
	if len(pts) == 0 {
		return nil
	}
	mp := make(orb.MultiPoint, len(pts))
	for i, p := range pts {
		mp[i] = orb.Point{p.X, p.Y}
	}
	return mp
}

func split(parts []int32, pts []shp.Point) [][]orb.Point {
	out := make([][]orb.Point, 0, len(parts))
	for i, start := range parts {
		end := len(pts)
		if i+1 < len(parts) {
			end = int(parts[i+1])
		}
		if int(start) >= end || end > len(pts) {
			continue
		}
		seg := make([]orb.Point, 0, end-int(start))
		for _, p := range pts[start:end] {
			seg = append(seg, orb.Point{p.X, p.Y})
		}
		out = append(out, seg)
	}
	return out
}

func lines(parts []int32, pts []shp.Point) orb.Geometry {
	segs := split(parts, pts)
	switch len(segs) {
	case 0:
		return nil
	case 1:
		return orb.LineString(segs[0])
	}
	mls := make(orb.MultiLineString, len(segs))
	for i, s := range segs {
		mls[i] = orb.LineString(s)
	}
	return mls
}

func polygons(parts []int32, pts []shp.Point) orb.Geometry {
	segs := split(parts, pts)
	rings := make([]orb.Ring, len(segs))
	for i, s := range segs {
		rings[i] = orb.Ring(s)
	}
	return geo.AssemblePolygons(rings)
}
