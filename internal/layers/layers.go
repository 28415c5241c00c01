// Package layers serves the tabular and GeoJSON views of published layers from the document store.
package layers

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/paulmach/orb/geojson"

	"github.com/mohammed-shakir/geoportal/internal/core/apperr"
	"github.com/mohammed-shakir/geoportal/internal/core/model"
	"github.com/mohammed-shakir/geoportal/internal/docstore"
	"github.com/mohammed-shakir/geoportal/internal/geo"
	"github.com/mohammed-shakir/geoportal/internal/keys"
	"github.com/mohammed-shakir/geoportal/internal/mapper"
	"github.com/mohammed-shakir/geoportal/internal/projector"
)

// a text column offers filter options once any of its values repeats this often
const filterThreshold = 10

type LayerLookup interface {
	Get(ctx context.Context, code string) (model.RegisteredLayer, error)
}

type Service struct {
	layers LayerLookup
	docs   docstore.Store
	mapper mapper.Interface
	h3Res  int
}

// New builds the query service; m may be nil, in which case bbox filters scan every row.
func New(layers LayerLookup, docs docstore.Store, m mapper.Interface, h3Res int) *Service {
	if m == nil {
		h3Res = 0
	}
	return &Service{layers: layers, docs: docs, mapper: m, h3Res: h3Res}
}

type ColumnMapping struct {
	Name     string `json:"name"`
	Original string `json:"original"`
}

type Option struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

type Filter struct {
	Label   string   `json:"label"`
	Name    string   `json:"name"`
	Options []Option `json:"options"`
}

type Table struct {
	Columns []ColumnMapping  `json:"columns"`
	Data    []map[string]any `json:"data"`
	Filters []Filter         `json:"filters"`
}

type Summary struct {
	Name        string `json:"name"`
	Value       int    `json:"value"`
	Description string `json:"description"`
}

// FilterRequest matches rows whose columns contain every value, case-insensitively.
// Keys may be raw or prefixed column names. BBox keeps rows whose representative point
// falls inside it.
type FilterRequest struct {
	Values map[string]string `json:"values"`
	BBox   *model.BBox       `json:"bbox,omitempty"`
}

type layerData struct {
	layer model.RegisteredLayer
	meta  model.ColumnMetadata
	rows  []docstore.Document
}

func (s *Service) load(ctx context.Context, code string, withRows bool) (layerData, error) {
	l, err := s.layers.Get(ctx, code)
	if err != nil {
		return layerData{}, err
	}
	meta, err := s.docs.Columns(ctx, code)
	if err != nil {
		return layerData{}, err
	}
	ld := layerData{layer: l, meta: meta}
	if withRows {
		if ld.rows, err = s.docs.Rows(ctx, collection(l)); err != nil {
			return layerData{}, fmt.Errorf("read rows of %s: %w", code, err)
		}
	}
	return ld, nil
}

func collection(l model.RegisteredLayer) string {
	if l.DocumentCollection != "" {
		return l.DocumentCollection
	}
	return keys.Collection(l.Code)
}

func enabledMappings(meta model.ColumnMetadata) []ColumnMapping {
	out := make([]ColumnMapping, 0, len(meta.Columns))
	for _, c := range meta.Enabled() {
		out = append(out, ColumnMapping{Name: meta.PrefixedName(c), Original: c})
	}
	return out
}

// Table projects rows onto the enabled columns, keeping _id, and offers filter options.
func (s *Service) Table(ctx context.Context, code string) (Table, error) {
	ld, err := s.load(ctx, code, true)
	if err != nil {
		return Table{}, err
	}
	cols := enabledMappings(ld.meta)
	t := Table{Columns: cols, Data: make([]map[string]any, 0, len(ld.rows)), Filters: []Filter{}}
	for _, r := range ld.rows {
		row := make(map[string]any, len(cols)+1)
		for _, c := range cols {
			if v, ok := r[c.Original]; ok {
				row[c.Original] = v
			}
		}
		if id, ok := r[docstore.IDField]; ok {
			row[docstore.IDField] = id
		}
		t.Data = append(t.Data, row)
	}
	for _, name := range filterColumns(ld.meta, ld.rows) {
		label := ld.meta.PrefixedName(name)
		if label == "" {
			label = name
		}
		f := Filter{Label: label, Name: name}
		for _, v := range distinctStrings(ld.rows, name) {
			f.Options = append(f.Options, Option{ID: v, Label: v})
		}
		t.Filters = append(t.Filters, f)
	}
	return t, nil
}

// filterColumns lists enabled columns with a string value occurring at least filterThreshold times.
func filterColumns(meta model.ColumnMetadata, rows []docstore.Document) []string {
	var out []string
	for _, c := range meta.Enabled() {
		counts := map[string]int{}
		for _, r := range rows {
			if s, ok := r[c].(string); ok {
				counts[s]++
			}
		}
		for _, n := range counts {
			if n >= filterThreshold {
				out = append(out, c)
				break
			}
		}
	}
	return out
}

func distinctStrings(rows []docstore.Document, col string) []string {
	seen := map[string]struct{}{}
	for _, r := range rows {
		if s, ok := r[col].(string); ok {
			seen[s] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Row returns the row as a one-feature collection with enabled properties under their prefixed names.
func (s *Service) Row(ctx context.Context, code, rowID string) (*geojson.FeatureCollection, error) {
	ld, err := s.load(ctx, code, false)
	if err != nil {
		return nil, err
	}
	doc, err := s.docs.Row(ctx, collection(ld.layer), rowID)
	if err != nil {
		return nil, err
	}
	fc := geojson.NewFeatureCollection()
	f, err := toFeature(doc, ld.meta)
	if err != nil {
		return nil, err
	}
	if f != nil {
		fc.Append(f)
	}
	return fc, nil
}

// Filter returns matching rows as GeoJSON features.
func (s *Service) Filter(ctx context.Context, code string, req FilterRequest) (*geojson.FeatureCollection, error) {
	ld, err := s.load(ctx, code, true)
	if err != nil {
		return nil, err
	}

	terms := make(map[string]string, len(req.Values))
	for k, v := range req.Values {
		if strings.TrimSpace(v) == "" {
			continue
		}
		col := resolveColumn(ld.meta, k)
		if col == "" {
			return nil, apperr.New(apperr.KindInvalidRequest, "unknown column %q", k)
		}
		if !ld.meta.ColumnsStatus[col] {
			return nil, apperr.New(apperr.KindInvalidRequest, "column %q is disabled", k)
		}
		terms[col] = strings.ToLower(v)
	}

	var cells map[string]struct{}
	if req.BBox != nil && s.h3Res > 0 {
		cs, err := s.mapper.CellsForBBox(*req.BBox, s.h3Res)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindInvalidRequest, err, "bbox")
		}
		cells = make(map[string]struct{}, len(cs))
		for _, c := range cs {
			cells[c] = struct{}{}
		}
	}

	fc := geojson.NewFeatureCollection()
	for _, r := range ld.rows {
		if !matches(r, terms) {
			continue
		}
		if req.BBox != nil {
			if cell, ok := r[projector.CellField].(string); ok && cells != nil {
				if _, hit := cells[cell]; !hit {
					continue
				}
			}
		}
		f, err := toFeature(r, ld.meta)
		if err != nil {
			return nil, err
		}
		if f == nil {
			continue
		}
		if req.BBox != nil && !req.BBox.Bound().Contains(geo.RepresentativePoint(f.Geometry)) {
			continue
		}
		fc.Append(f)
	}
	return fc, nil
}

// resolveColumn maps a raw or prefixed name to its raw column whatever its enabled flag,
// so SetColumns can turn a disabled column back on.
func resolveColumn(meta model.ColumnMetadata, key string) string {
	for i, c := range meta.Columns {
		if c == key || (i < len(meta.ColumnsWithPrefix) && meta.ColumnsWithPrefix[i] == key) {
			return c
		}
	}
	return ""
}

func matches(r docstore.Document, terms map[string]string) bool {
	for col, term := range terms {
		s, ok := r[col].(string)
		if !ok || !strings.Contains(strings.ToLower(s), term) {
			return false
		}
	}
	return true
}

// toFeature returns nil for rows without a usable geometry.
func toFeature(doc docstore.Document, meta model.ColumnMetadata) (*geojson.Feature, error) {
	raw, ok := doc[model.GeometryColumn]
	if !ok || raw == nil {
		return nil, nil
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("encode geometry: %w", err)
	}
	g, err := geojson.UnmarshalGeometry(b)
	if err != nil || g.Geometry() == nil {
		return nil, nil
	}
	f := geojson.NewFeature(g.Geometry())
	if id, ok := doc[docstore.IDField]; ok {
		f.ID = id
	}
	for _, c := range meta.Enabled() {
		if v, ok := doc[c]; ok {
			f.Properties[meta.PrefixedName(c)] = v
		}
	}
	return f, nil
}

// Summary counts distinct trimmed values of every filterable enabled column.
func (s *Service) Summary(ctx context.Context, code string) ([]Summary, error) {
	ld, err := s.load(ctx, code, true)
	if err != nil {
		return nil, err
	}
	out := []Summary{}
	for _, col := range filterColumns(ld.meta, ld.rows) {
		name := ld.meta.PrefixedName(col)
		seen := map[string]struct{}{}
		for _, r := range ld.rows {
			v, ok := r[col]
			if !ok || v == nil {
				continue
			}
			if str, ok := v.(string); ok {
				v = strings.TrimSpace(str)
			}
			seen[fmt.Sprint(v)] = struct{}{}
		}
		out = append(out, Summary{
			Name:        name,
			Value:       len(seen),
			Description: fmt.Sprintf("Number of unique categories for %s: %d", name, len(seen)),
		})
	}
	return out, nil
}

func (s *Service) Columns(ctx context.Context, code string) (model.ColumnMetadata, error) {
	ld, err := s.load(ctx, code, false)
	if err != nil {
		return model.ColumnMetadata{}, err
	}
	return ld.meta, nil
}

// SetColumns updates the enabled flag of the named columns without touching any row.
func (s *Service) SetColumns(ctx context.Context, code string, status map[string]bool) (model.ColumnMetadata, error) {
	ld, err := s.load(ctx, code, false)
	if err != nil {
		return model.ColumnMetadata{}, err
	}
	meta := ld.meta
	if meta.ColumnsStatus == nil {
		meta.ColumnsStatus = map[string]bool{}
	}
	for k, enabled := range status {
		col := resolveColumn(meta, k)
		if col == "" {
			return model.ColumnMetadata{}, apperr.New(apperr.KindInvalidRequest, "unknown column %q", k)
		}
		meta.ColumnsStatus[col] = enabled
	}
	if err := s.docs.SaveColumns(ctx, meta); err != nil {
		return model.ColumnMetadata{}, apperr.StorageWrite(apperr.StageDocument, err, "save columns for %s", code)
	}
	return meta, nil
}
