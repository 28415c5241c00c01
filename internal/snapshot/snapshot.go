// Package snapshot exports a normalized feature collection as a FlatGeobuf file.
package snapshot

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/flatgeobuf/flatgeobuf/src/go/flattypes"
	"github.com/flatgeobuf/flatgeobuf/src/go/writer"
	flatbuffers "github.com/google/flatbuffers/go"
	"github.com/paulmach/orb"

	"github.com/mohammed-shakir/geoportal/internal/core/model"
)

var ErrEmpty = errors.New("snapshot: no features")

// WriteFile writes fc to <dir>/<code>.fgb through a temp file renamed into place.
func WriteFile(dir, code string, fc *model.FeatureCollection) (string, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, code+"-*.fgb.tmp")
	if err != nil {
		return "", fmt.Errorf("create snapshot: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	werr := Write(tmp, code, fc)
	if cerr := tmp.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		return "", werr
	}
	dst := filepath.Join(dir, code+".fgb")
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return "", fmt.Errorf("rename snapshot: %w", err)
	}
	return dst, nil
}

// Write encodes fc with a packed R-tree index and EPSG:4326 CRS.
func Write(w io.Writer, name string, fc *model.FeatureCollection) error {
	if fc == nil || len(fc.Features) == 0 {
		return ErrEmpty
	}

	builder := flatbuffers.NewBuilder(4096)
	header := writer.NewHeader(builder)
	header.SetName(name)
	header.SetGeometryType(collectionType(fc))

	columns := make([]*writer.Column, 0, len(fc.Columns))
	for _, c := range fc.Columns {
		col := writer.NewColumn(builder)
		col.SetName(c.Name)
		col.SetTitle(c.Name)
		col.SetType(columnType(c.Type))
		col.SetNullable(true)
		columns = append(columns, col)
	}
	if len(columns) > 0 {
		header.SetColumns(columns)
	}

	crs := writer.NewCrs(builder)
	crs.SetOrg("EPSG")
	crs.SetCode(model.SRID)
	crs.SetName("WGS 84")
	header.SetCrs(crs)

	gen := &generator{fc: fc}
	if _, err := writer.NewWriter(header, true, gen, nil).Write(w); err != nil {
		return fmt.Errorf("write flatgeobuf: %w", err)
	}
	return nil
}

func collectionType(fc *model.FeatureCollection) flattypes.GeometryType {
	t := geometryType(fc.Features[0].Geometry)
	for _, f := range fc.Features[1:] {
		if geometryType(f.Geometry) != t {
			return flattypes.GeometryTypeUnknown
		}
	}
	return t
}

func geometryType(g orb.Geometry) flattypes.GeometryType {
	switch g.(type) {
	case orb.Point:
		return flattypes.GeometryTypePoint
	case orb.MultiPoint:
		return flattypes.GeometryTypeMultiPoint
	case orb.LineString:
		return flattypes.GeometryTypeLineString
	case orb.MultiLineString:
		return flattypes.GeometryTypeMultiLineString
	case orb.Polygon:
		return flattypes.GeometryTypePolygon
	case orb.MultiPolygon:
		return flattypes.GeometryTypeMultiPolygon
	case orb.Collection:
		return flattypes.GeometryTypeGeometryCollection
	default:
		return flattypes.GeometryTypeUnknown
	}
}

func columnType(t model.ColumnType) flattypes.ColumnType {
	switch t {
	case model.ColumnInteger:
		return flattypes.ColumnTypeLong
	case model.ColumnReal:
		return flattypes.ColumnTypeDouble
	case model.ColumnBoolean:
		return flattypes.ColumnTypeBool
	case model.ColumnTemporal:
		return flattypes.ColumnTypeDateTime
	default:
		return flattypes.ColumnTypeString
	}
}

type generator struct {
	fc  *model.FeatureCollection
	idx int
}

func (g *generator) Generate() *writer.Feature {
	for g.idx < len(g.fc.Features) {
		f := g.fc.Features[g.idx]
		g.idx++

		builder := flatbuffers.NewBuilder(1024)
		geom := encodeGeometry(f.Geometry, builder)
		if geom == nil {
			continue
		}
		feature := writer.NewFeature(builder)
		feature.SetGeometry(geom)
		if props := encodeProperties(g.fc.Columns, f.Properties); len(props) > 0 {
			feature.SetProperties(props)
		}
		return feature
	}
	return nil
}

func encodeGeometry(geom orb.Geometry, builder *flatbuffers.Builder) *writer.Geometry {
	g := writer.NewGeometry(builder)
	switch v := geom.(type) {
	case orb.Point:
		g.SetType(flattypes.GeometryTypePoint)
		g.SetXY([]float64{v[0], v[1]})
	case orb.MultiPoint:
		g.SetType(flattypes.GeometryTypeMultiPoint)
		g.SetXY(flatten(v))
	case orb.LineString:
		g.SetType(flattypes.GeometryTypeLineString)
		g.SetXY(flatten(v))
	case orb.MultiLineString:
		g.SetType(flattypes.GeometryTypeMultiLineString)
		parts := make([][]orb.Point, len(v))
		for i, ls := range v {
			parts[i] = ls
		}
		xy, ends := flattenParts(parts)
		g.SetXY(xy)
		g.SetEnds(ends)
	case orb.Polygon:
		g.SetType(flattypes.GeometryTypePolygon)
		xy, ends := polygonXY(v)
		g.SetXY(xy)
		g.SetEnds(ends)
	case orb.MultiPolygon:
		g.SetType(flattypes.GeometryTypeMultiPolygon)
		parts := make([]writer.Geometry, 0, len(v))
		for _, poly := range v {
			pg := writer.NewGeometry(builder)
			pg.SetType(flattypes.GeometryTypePolygon)
			xy, ends := polygonXY(poly)
			pg.SetXY(xy)
			pg.SetEnds(ends)
			parts = append(parts, *pg)
		}
		g.SetParts(parts)
	case orb.Collection:
		g.SetType(flattypes.GeometryTypeGeometryCollection)
		parts := make([]writer.Geometry, 0, len(v))
		for _, child := range v {
			if cg := encodeGeometry(child, builder); cg != nil {
				parts = append(parts, *cg)
			}
		}
		g.SetParts(parts)
	default:
		return nil
	}
	return g
}

func flatten(pts []orb.Point) []float64 {
	xy := make([]float64, 0, len(pts)*2)
	for _, p := range pts {
		xy = append(xy, p[0], p[1])
	}
	return xy
}

// flattenParts returns the interleaved coordinates and the cumulative end index of each part.
func flattenParts(parts [][]orb.Point) ([]float64, []uint32) {
	var xy []float64
	ends := make([]uint32, 0, len(parts))
	var n uint32
	for _, p := range parts {
		xy = append(xy, flatten(p)...)
		n += uint32(len(p))
		ends = append(ends, n)
	}
	return xy, ends
}

func polygonXY(poly orb.Polygon) ([]float64, []uint32) {
	parts := make([][]orb.Point, len(poly))
	for i, r := range poly {
		parts[i] = r
	}
	return flattenParts(parts)
}

// encodeProperties writes [uint16 column index][value] pairs; nil values are omitted.
func encodeProperties(cols []model.Column, props map[string]any) []byte {
	var buf bytes.Buffer
	for i, c := range cols {
		v := props[c.Name]
		if v == nil {
			continue
		}
		var val bytes.Buffer
		if !encodeValue(&val, c.Type, v) {
			continue
		}
		_ = binary.Write(&buf, binary.LittleEndian, uint16(i))
		buf.Write(val.Bytes())
	}
	return buf.Bytes()
}

func encodeValue(buf *bytes.Buffer, t model.ColumnType, v any) bool {
	switch t {
	case model.ColumnInteger:
		n, ok := v.(int64)
		if !ok {
			return false
		}
		_ = binary.Write(buf, binary.LittleEndian, n)
	case model.ColumnReal:
		f, ok := v.(float64)
		if !ok || math.IsNaN(f) {
			return false
		}
		_ = binary.Write(buf, binary.LittleEndian, math.Float64bits(f))
	case model.ColumnBoolean:
		b, ok := v.(bool)
		if !ok {
			return false
		}
		if b {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
	case model.ColumnTemporal:
		tm, ok := v.(time.Time)
		if !ok {
			return false
		}
		writeString(buf, tm.Format(time.RFC3339))
	default:
		s, ok := v.(string)
		if !ok {
			s = fmt.Sprint(v)
		}
		writeString(buf, s)
	}
	return true
}

// strings are length prefixed (uint32) per the FlatGeobuf property encoding
func writeString(buf *bytes.Buffer, s string) {
	_ = binary.Write(buf, binary.LittleEndian, uint32(len(s)))
	buf.WriteString(s)
}
