package wms

import (
	"bytes"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

type ValueType string

const (
	TypeLink   ValueType = "link"
	TypeNumber ValueType = "number"
	TypeImage  ValueType = "image"
	TypeString ValueType = "string"
)

type InfoRow struct {
	Key   string    `json:"key"`
	Value string    `json:"value"`
	Type  ValueType `json:"type"`
}

// FeatureInfo is the first record of one response table.
type FeatureInfo struct {
	Information []InfoRow `json:"information"`
}

// Source selects how response tables are shaped before decoding.
type Source int

const (
	Generic Source = iota
	GeoServer
)

func (s Source) String() string {
	if s == GeoServer {
		return "geoserver"
	}
	return "generic"
}

// SourceFor treats any service URL mentioning geoserver as a GeoServer endpoint.
func SourceFor(serviceURL string) Source {
	if strings.Contains(strings.ToLower(serviceURL), "geoserver") {
		return GeoServer
	}
	return Generic
}

// table is a parsed HTML table: header names and data rows padded to the same width.
type table struct {
	columns []string
	rows    [][]string
}

type shapeStrategy interface {
	reshape(t table) table
}

// GeoServer emits one header row and one row per feature.
type headerRows struct{}

func (headerRows) reshape(t table) table { return t }

// Generic servers often answer with key/value pairs, one per row.
type keyValueRows struct{}

func (keyValueRows) reshape(t table) table {
	if len(t.rows) <= 1 || len(t.columns) != 2 {
		return t
	}
	out := table{columns: make([]string, 0, len(t.rows)), rows: [][]string{make([]string, 0, len(t.rows))}}
	for _, r := range t.rows {
		out.columns = append(out.columns, r[0])
		out.rows[0] = append(out.rows[0], r[1])
	}
	return out
}

func strategyFor(s Source) shapeStrategy {
	if s == GeoServer {
		return headerRows{}
	}
	return keyValueRows{}
}

// bookkeeping columns never shown to users
var ignoredColumns = map[string]struct{}{
	"ID": {}, "FID": {}, "GUID": {}, "GID": {}, "OBJECTID": {}, "SHAPE": {},
	"SHAPE.AREA": {}, "SHAPE.STAREA": {}, "ST_AREASHAPE": {}, "SHAPE.STAREASHAPE": {},
	"SHAPE.LEN": {}, "SHAPE.STLENGTH": {}, "ST_LENGTHSHAPE": {}, "SHAPE.STLENGTHSHAPE": {},
}

var nullLike = map[string]struct{}{
	"": {}, "#N/A": {}, "#N/A N/A": {}, "#NA": {}, "-1.#IND": {}, "-1.#QNAN": {}, "-NaN": {}, "-nan": {},
	"1.#IND": {}, "1.#QNAN": {}, "<NA>": {}, "N/A": {}, "NA": {}, "NULL": {}, "NaN": {}, "None": {},
	"n/a": {}, "nan": {}, "null": {}, "Null": {},
}

// DecodeFeatureInfo turns an HTML feature info response into one record per table. A response
// without tables, or a table left empty once bookkeeping columns are dropped, yields no records.
func DecodeFeatureInfo(body []byte, src Source) ([]FeatureInfo, error) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse feature info html: %w", err)
	}
	strategy := strategyFor(src)
	results := []FeatureInfo{}
	for _, n := range findTables(doc) {
		t := strategy.reshape(parseTable(n))
		rec, ok := firstRecord(t)
		if !ok {
			return []FeatureInfo{}, nil
		}
		results = append(results, rec)
	}
	return results, nil
}

func firstRecord(t table) (FeatureInfo, bool) {
	if len(t.rows) == 0 {
		return FeatureInfo{}, false
	}
	var keys []string
	values := map[string]string{}
	for i, col := range t.columns {
		col = strings.ToUpper(col)
		if _, skip := ignoredColumns[col]; skip {
			continue
		}
		if _, seen := values[col]; !seen {
			keys = append(keys, col)
		}
		v := t.rows[0][i]
		if _, null := nullLike[v]; null {
			v = ""
		}
		values[col] = v
	}
	if len(keys) == 0 {
		return FeatureInfo{}, false
	}
	fi := FeatureInfo{Information: make([]InfoRow, 0, len(keys))}
	for _, k := range keys {
		v := values[k]
		fi.Information = append(fi.Information, InfoRow{Key: strings.ReplaceAll(k, "_", " "), Value: v, Type: TypeOf(v)})
	}
	return fi, true
}

// TypeOf classifies a cell value for display.
func TypeOf(v string) ValueType {
	switch {
	case strings.HasPrefix(v, "http"):
		return TypeLink
	case isNumeric(v):
		return TypeNumber
	case strings.HasSuffix(v, ".jpg") || strings.HasSuffix(v, ".png"):
		return TypeImage
	default:
		return TypeString
	}
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsNumber(r) {
			return false
		}
	}
	return true
}

func findTables(n *html.Node) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.Table {
			out = append(out, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return out
}

type htmlRow struct {
	cells  []string
	inHead bool
	allTH  bool
}

// parseTable reads the rows owned by t, skipping nested tables. Header rows come from thead,
// or else from the leading rows made only of th cells.
func parseTable(t *html.Node) table {
	var rows []htmlRow
	var walk func(n *html.Node, inHead bool)
	walk = func(n *html.Node, inHead bool) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != html.ElementNode {
				continue
			}
			switch c.DataAtom {
			case atom.Table:
				continue
			case atom.Thead:
				walk(c, true)
			case atom.Tr:
				rows = append(rows, readRow(c, inHead))
			default:
				walk(c, inHead)
			}
		}
	}
	walk(t, false)

	var header []string
	hasThead := false
	for _, r := range rows {
		if r.inHead {
			hasThead = true
			break
		}
	}
	body := rows[:0:0]
	leading := true
	for _, r := range rows {
		switch {
		case hasThead && r.inHead:
			header = r.cells
		case !hasThead && leading && r.allTH:
			header = r.cells
		default:
			leading = false
			body = append(body, r)
		}
	}

	width := len(header)
	for _, r := range body {
		width = max(width, len(r.cells))
	}
	out := table{columns: make([]string, width)}
	for i := range out.columns {
		if i < len(header) {
			out.columns[i] = header[i]
		} else {
			out.columns[i] = fmt.Sprint(i)
		}
	}
	for _, r := range body {
		cells := make([]string, width)
		copy(cells, r.cells)
		out.rows = append(out.rows, cells)
	}
	return out
}

func readRow(tr *html.Node, inHead bool) htmlRow {
	r := htmlRow{inHead: inHead, allTH: true}
	for c := tr.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode || (c.DataAtom != atom.Td && c.DataAtom != atom.Th) {
			continue
		}
		if c.DataAtom != atom.Th {
			r.allTH = false
		}
		r.cells = append(r.cells, cellText(c))
	}
	if len(r.cells) == 0 {
		r.allTH = false
	}
	return r
}

func cellText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(sb.String()), " ")
}
