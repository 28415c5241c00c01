package relational

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/mohammed-shakir/geoportal/internal/core/model"
)

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02",
	"2006/01/02 15:04:05",
	"02/01/2006",
	"02-01-2006",
	"02/01/2006 15:04:05",
}

// ParseDate accepts the calendar layouts field crews export from spreadsheets.
// Bare numbers are never dates.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if len(s) < 8 || !strings.ContainsAny(s, "-/") {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// CoerceColumns decides the stored type of each column. Text columns whose first non-null
// value parses as a date become temporal; every other text column stays text.
func CoerceColumns(fc *model.FeatureCollection) []model.Column {
	out := make([]model.Column, len(fc.Columns))
	copy(out, fc.Columns)
	for i, c := range out {
		if c.Type != model.ColumnText {
			continue
		}
		for _, f := range fc.Features {
			v := f.Properties[c.Name]
			if v == nil {
				continue
			}
			s, ok := v.(string)
			if !ok {
				break
			}
			if _, ok := ParseDate(s); ok {
				out[i].Type = model.ColumnTemporal
			}
			break
		}
	}
	return out
}

// CoerceValue converts v to the stored column type; unconvertible values become NULL.
func CoerceValue(t model.ColumnType, v any) any {
	if v == nil {
		return nil
	}
	switch t {
	case model.ColumnTemporal:
		switch x := v.(type) {
		case time.Time:
			return x
		case string:
			if d, ok := ParseDate(x); ok {
				return d
			}
		}
		return nil
	case model.ColumnReal:
		if f, ok := v.(float64); ok && (math.IsNaN(f) || math.IsInf(f, 0)) {
			return nil
		}
		return v
	case model.ColumnInteger, model.ColumnBoolean:
		return v
	default:
		if s, ok := v.(string); ok {
			return s
		}
		return fmt.Sprint(v)
	}
}
