package router

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/mohammed-shakir/geoportal/internal/core/apperr"
	"github.com/mohammed-shakir/geoportal/internal/core/model"
)

// parseBBOX reads x1,y1,x2,y2 with an optional trailing EPSG:4326.
func parseBBOX(bboxParam string) (model.BBox, error) {
	parts := strings.Split(bboxParam, ",")
	if len(parts) == 4 {
		parts = append(parts, "EPSG:4326")
	}
	if len(parts) != 5 {
		return model.BBox{}, errors.New("expected comma-separated values: x1,y1,x2,y2[,EPSG:4326]")
	}
	xMin, err := parseFloat(parts[0])
	if err != nil {
		return model.BBox{}, fmt.Errorf("x1: %w", err)
	}
	yMin, err := parseFloat(parts[1])
	if err != nil {
		return model.BBox{}, fmt.Errorf("y1: %w", err)
	}
	xMax, err := parseFloat(parts[2])
	if err != nil {
		return model.BBox{}, fmt.Errorf("x2: %w", err)
	}
	yMax, err := parseFloat(parts[3])
	if err != nil {
		return model.BBox{}, fmt.Errorf("y2: %w", err)
	}

	srid := strings.ToUpper(strings.TrimSpace(parts[4]))
	if srid != "EPSG:4326" {
		return model.BBox{}, fmt.Errorf("layers are stored in EPSG:4326 (got %q)", srid)
	}

	if !(xMin >= -180 && xMin <= 180 && xMax >= -180 && xMax <= 180) {
		return model.BBox{}, errors.New("longitude must be in [-180,180]")
	}
	if !(yMin >= -90 && yMin <= 90 && yMax >= -90 && yMax <= 90) {
		return model.BBox{}, errors.New("latitude must be in [-90,90]")
	}
	if xMax <= xMin || yMax <= yMin {
		return model.BBox{}, errors.New("coordinates must satisfy x2>x1 and y2>y1")
	}
	return model.BBox{X1: xMin, Y1: yMin, X2: xMax, Y2: yMax, SRID: srid}, nil
}

func parseFloat(v string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0, fmt.Errorf("parse float: %w", err)
	}
	return f, nil
}

// CQL filters are forwarded to remote servers; keep them to a plain expression alphabet.
// Letters and digits of any script are allowed so accented attribute values pass.
var safeCQLPattern = regexp.MustCompile(`^[\p{L}\p{N}_\s=<>!().,'"\-%:]+$`)

func isSafeCQL(s string) bool {
	if utf8.RuneCountInString(s) > 500 {
		return false
	}
	return safeCQLPattern.MatchString(s)
}

func invalid(format string, args ...any) error {
	return apperr.New(apperr.KindInvalidRequest, format, args...)
}

func intParam(raw, name string, def int) (int, error) {
	if strings.TrimSpace(raw) == "" {
		return def, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, invalid("%s must be an integer", name)
	}
	return n, nil
}

// listParam splits a comma-separated value, dropping blanks.
func listParam(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
