// Package model defines core domain types shared across the service.
package model

import (
	"fmt"
	"time"

	"github.com/paulmach/orb"
)

const (
	// GeometryColumn is the canonical name of the geometry column in every store.
	GeometryColumn = "geometry"
	// SRID every published layer is stored in.
	SRID = 4326
)

type BBox struct {
	X1, Y1 float64
	X2, Y2 float64
	SRID   string
}

// String representation matching wfs/wms bbox format
func (b BBox) String() string {
	return fmt.Sprintf("%.6f,%.6f,%.6f,%.6f,%s", b.X1, b.Y1, b.X2, b.Y2, b.SRID)
}

func (b BBox) Bound() orb.Bound {
	return orb.Bound{Min: orb.Point{b.X1, b.Y1}, Max: orb.Point{b.X2, b.Y2}}
}

type Cells []string

type ColumnType int

const (
	ColumnText ColumnType = iota
	ColumnInteger
	ColumnReal
	ColumnBoolean
	ColumnTemporal
)

func (t ColumnType) String() string {
	switch t {
	case ColumnInteger:
		return "integer"
	case ColumnReal:
		return "real"
	case ColumnBoolean:
		return "boolean"
	case ColumnTemporal:
		return "temporal"
	default:
		return "text"
	}
}

type Column struct {
	Name string
	Type ColumnType
}

// Feature attribute values are string, int64, float64, bool, time.Time or nil.
type Feature struct {
	Geometry   orb.Geometry
	Properties map[string]any
}

type FeatureCollection struct {
	Columns        []Column
	Features       []Feature
	GeometryColumn string
	SRID           int
}

func (fc *FeatureCollection) Len() int { return len(fc.Features) }

func (fc *FeatureCollection) ColumnNames() []string {
	out := make([]string, len(fc.Columns))
	for i, c := range fc.Columns {
		out[i] = c.Name
	}
	return out
}

// Bound is the union of all feature bounds.
func (fc *FeatureCollection) Bound() orb.Bound {
	var b orb.Bound
	for i, f := range fc.Features {
		if i == 0 {
			b = f.Geometry.Bound()
			continue
		}
		b = b.Union(f.Geometry.Bound())
	}
	return b
}

type RegisteredLayer struct {
	Code               string    `json:"code"`
	Name               string    `json:"name,omitempty"`
	Description        string    `json:"description,omitempty"`
	SchemaName         string    `json:"schema_name"`
	TableName          string    `json:"table_name"`
	ViewName           string    `json:"view_name"`
	DocumentCollection string    `json:"document_collection"`
	WMSURL             string    `json:"wms_url,omitempty"`
	WFSURL             string    `json:"wfs_url,omitempty"`
	LegendURL          string    `json:"legend_url,omitempty"`
	FeatureCount       int       `json:"feature_count"`
	CreatedAt          time.Time `json:"created_at"`
}

// ColumnMetadata is the per-layer column visibility document.
type ColumnMetadata struct {
	Code              string          `json:"code" bson:"code"`
	Columns           []string        `json:"columns" bson:"columns"`
	ColumnsWithPrefix []string        `json:"columns_with_prefix" bson:"columns_with_prefix"`
	ColumnsStatus     map[string]bool `json:"columns_status" bson:"columns_status"`
}

// PrefixedName returns the prefixed name for a raw column, "" if unknown.
func (m ColumnMetadata) PrefixedName(col string) string {
	for i, c := range m.Columns {
		if c == col && i < len(m.ColumnsWithPrefix) {
			return m.ColumnsWithPrefix[i]
		}
	}
	return ""
}

// Enabled lists raw column names whose status is true, in column order.
func (m ColumnMetadata) Enabled() []string {
	out := make([]string, 0, len(m.Columns))
	for _, c := range m.Columns {
		if m.ColumnsStatus[c] {
			out = append(out, c)
		}
	}
	return out
}
