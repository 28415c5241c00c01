// Package projector writes the document projection of a published layer.
package projector

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"time"

	"github.com/mohammed-shakir/geoportal/internal/core/apperr"
	"github.com/mohammed-shakir/geoportal/internal/core/model"
	"github.com/mohammed-shakir/geoportal/internal/docstore"
	"github.com/mohammed-shakir/geoportal/internal/geo"
	"github.com/mohammed-shakir/geoportal/internal/keys"
	"github.com/mohammed-shakir/geoportal/internal/mapper"
)

// CellField holds the H3 cell of a row's representative point when tagging is enabled.
const CellField = "_h3"

type Options struct {
	// H3Res tags rows with a cell at this resolution; 0 disables tagging.
	H3Res  int
	Mapper mapper.Interface
	Logger *slog.Logger
}

type Projector struct {
	store  docstore.Store
	opts   Options
	logger *slog.Logger
}

func New(store docstore.Store, opts Options) *Projector {
	l := opts.Logger
	if l == nil {
		l = slog.New(slog.DiscardHandler)
	}
	if opts.Mapper == nil {
		opts.H3Res = 0
	}
	return &Projector{store: store, opts: opts, logger: l}
}

// Result names what Project wrote.
type Result struct {
	Collection string
	Rows       int
	Columns    model.ColumnMetadata
}

// Project replaces the rows of geo_<code> with one document per feature and writes the
// layer's column metadata with every column enabled. aliases maps raw columns to their prefixed names;
// columns missing from it get the default prefix.
func (p *Projector) Project(ctx context.Context, code string, fc *model.FeatureCollection, aliases map[string]string) (Result, error) {
	res := Result{Collection: keys.Collection(code)}

	docs := make([]docstore.Document, 0, len(fc.Features))
	for i, f := range fc.Features {
		d, err := p.document(fc.Columns, f)
		if err != nil {
			return Result{}, apperr.StorageWrite(apperr.StageDocument, err, "feature %d", i)
		}
		docs = append(docs, d)
	}

	if err := p.store.ReplaceRows(ctx, res.Collection, docs); err != nil {
		return Result{}, apperr.StorageWrite(apperr.StageDocument, err, "write %s", res.Collection)
	}
	res.Rows = len(docs)

	meta := model.ColumnMetadata{
		Code:              code,
		Columns:           make([]string, 0, len(fc.Columns)),
		ColumnsWithPrefix: make([]string, 0, len(fc.Columns)),
		ColumnsStatus:     make(map[string]bool, len(fc.Columns)),
	}
	for _, c := range fc.Columns {
		alias := aliases[c.Name]
		if alias == "" {
			alias = keys.Prefixed(c.Name, 0)
		}
		meta.Columns = append(meta.Columns, c.Name)
		meta.ColumnsWithPrefix = append(meta.ColumnsWithPrefix, alias)
		meta.ColumnsStatus[c.Name] = true
	}
	if err := p.store.SaveColumns(ctx, meta); err != nil {
		return Result{}, apperr.StorageWrite(apperr.StageDocument, err, "save columns for %s", code)
	}
	res.Columns = meta

	p.logger.InfoContext(ctx, "document projection written",
		"backend", p.store.Backend(), "collection", res.Collection, "rows", res.Rows)
	return res, nil
}

func (p *Projector) document(cols []model.Column, f model.Feature) (docstore.Document, error) {
	d := make(docstore.Document, len(cols)+2)
	for _, c := range cols {
		d[c.Name] = Stringify(f.Properties[c.Name])
	}

	// round trip through JSON so every backend stores plain maps and slices
	raw, err := json.Marshal(geo.GeoJSON(f.Geometry))
	if err != nil {
		return nil, fmt.Errorf("encode geometry: %w", err)
	}
	var g map[string]any
	if err := json.Unmarshal(raw, &g); err != nil {
		return nil, fmt.Errorf("decode geometry: %w", err)
	}
	d[model.GeometryColumn] = g

	if p.opts.H3Res > 0 {
		cell, err := p.opts.Mapper.CellForPoint(geo.RepresentativePoint(f.Geometry), p.opts.H3Res)
		if err != nil {
			p.logger.Warn("h3 tagging skipped", "err", err)
		} else {
			d[CellField] = cell
		}
	}
	return d, nil
}

// Stringify renders an attribute value as stored text; missing and not-a-number values are nil.
func Stringify(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case string:
		switch x {
		case "nan", "NaT", "None":
			return nil
		}
		return x
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(x, 10)
	case int:
		return strconv.Itoa(x)
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		if x.IsZero() {
			return nil
		}
		if x.Hour() == 0 && x.Minute() == 0 && x.Second() == 0 && x.Nanosecond() == 0 {
			return x.Format("2006-01-02")
		}
		return x.Format("2006-01-02 15:04:05")
	default:
		return fmt.Sprint(x)
	}
}
