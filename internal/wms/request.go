package wms

import (
	"math"
	"net/url"
	"strconv"
	"strings"

	"github.com/mohammed-shakir/geoportal/internal/core/apperr"
	"github.com/mohammed-shakir/geoportal/internal/core/ogc"
)

const (
	DefaultSRS          = "EPSG:4326"
	DefaultInfoFormat   = "text/html"
	DefaultFeatureCount = 20
	defaultBGColor      = "#FFFFFF"
	// heightFallback applies when a bbox has zero width
	heightFallback = 600
)

// WorldBBox is used whenever a caller supplies no usable bounding box.
var WorldBBox = [4]float64{-180, -90, 180, 90}

type MapRequest struct {
	Layers []string
	// Styles is either empty or one entry per layer.
	Styles      []string
	SRS         string
	BBox        [4]float64
	Width       int
	Height      int
	Format      string
	Transparent bool
	// BGColor is a hex triplet, with or without a leading '#' or "0x".
	BGColor    string
	Exceptions string
	Time       string
	Extra      map[string]string
}

type FeatureInfoRequest struct {
	MapRequest
	// QueryLayers defaults to Layers.
	QueryLayers  []string
	X, Y         int
	InfoFormat   string
	FeatureCount int
	// CQLFilter is passed through verbatim.
	CQLFilter string
}

// BuildGetMap validates r and returns its GetMap query.
func BuildGetMap(r MapRequest) (url.Values, error) {
	if len(r.Layers) == 0 {
		return nil, apperr.New(apperr.KindInvalidRequest, "at least one layer is required")
	}
	if len(r.Styles) > 0 && len(r.Styles) != len(r.Layers) {
		return nil, apperr.New(apperr.KindInvalidRequest, "%d styles given for %d layers", len(r.Styles), len(r.Layers))
	}
	if r.Width <= 0 || r.Height <= 0 {
		return nil, apperr.New(apperr.KindInvalidRequest, "invalid size %dx%d", r.Width, r.Height)
	}
	bg, err := bgColor(r.BGColor)
	if err != nil {
		return nil, err
	}

	v := url.Values{}
	v.Set("service", "WMS")
	v.Set("version", Version)
	v.Set("request", "GetMap")
	v.Set("layers", strings.Join(r.Layers, ","))
	v.Set("styles", strings.Join(r.Styles, ","))
	v.Set("width", strconv.Itoa(r.Width))
	v.Set("height", strconv.Itoa(r.Height))
	v.Set("srs", orDefault(r.SRS, DefaultSRS))
	v.Set("bbox", FormatBBox(r.BBox))
	v.Set("format", r.Format)
	v.Set("transparent", strings.ToUpper(strconv.FormatBool(r.Transparent)))
	v.Set("bgcolor", bg)
	v.Set("exceptions", orDefault(r.Exceptions, ogc.ServiceExceptionMIME))
	if r.Time != "" {
		v.Set("time", r.Time)
	}
	for k, val := range r.Extra {
		v.Set(k, val)
	}
	return v, nil
}

// BuildGetFeatureInfo validates r and returns its GetFeatureInfo query.
func BuildGetFeatureInfo(r FeatureInfoRequest) (url.Values, error) {
	if r.Format == "" {
		r.Format = "image/png"
	}
	v, err := BuildGetMap(r.MapRequest)
	if err != nil {
		return nil, err
	}
	if r.X < 0 || r.Y < 0 || r.X >= r.Width || r.Y >= r.Height {
		return nil, apperr.New(apperr.KindInvalidRequest, "pixel %d,%d outside %dx%d", r.X, r.Y, r.Width, r.Height)
	}
	query := r.QueryLayers
	if len(query) == 0 {
		query = r.Layers
	}
	count := r.FeatureCount
	if count <= 0 {
		count = DefaultFeatureCount
	}
	v.Set("request", "GetFeatureInfo")
	v.Set("query_layers", strings.Join(query, ","))
	v.Set("x", strconv.Itoa(r.X))
	v.Set("y", strconv.Itoa(r.Y))
	v.Set("info_format", orDefault(r.InfoFormat, DefaultInfoFormat))
	v.Set("feature_count", strconv.Itoa(count))
	if r.CQLFilter != "" {
		v.Set("CQL_FILTER", r.CQLFilter)
	}
	return v, nil
}

// RequestURL binds a query to an endpoint that may already carry parameters.
func RequestURL(endpoint string, v url.Values) string {
	sep := "?"
	switch {
	case strings.HasSuffix(endpoint, "?") || strings.HasSuffix(endpoint, "&"):
		sep = ""
	case strings.Contains(endpoint, "?"):
		sep = "&"
	}
	return endpoint + sep + v.Encode()
}

// FormatBBox renders minX,minY,maxX,maxY.
func FormatBBox(b [4]float64) string {
	parts := make([]string, 4)
	for i, f := range b {
		parts[i] = strconv.FormatFloat(f, 'f', -1, 64)
	}
	return strings.Join(parts, ",")
}

// ParseBBox reads "minX,minY,maxX,maxY".
func ParseBBox(s string) ([4]float64, error) {
	var out [4]float64
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return out, apperr.New(apperr.KindInvalidRequest, "bbox %q needs four numbers", s)
	}
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return out, apperr.New(apperr.KindInvalidRequest, "bbox %q: bad number %q", s, p)
		}
		out[i] = f
	}
	return out, nil
}

// SizeFor keeps the bbox aspect ratio at the given width. Anything other than four
// numbers is replaced by WorldBBox; a zero-height box counts as square.
func SizeFor(bbox []float64, width int) (w, h int, box [4]float64) {
	box = WorldBBox
	if len(bbox) == 4 {
		copy(box[:], bbox)
	}
	aspect := 1.0
	if dy := box[3] - box[1]; dy != 0 {
		aspect = (box[2] - box[0]) / dy
	}
	if aspect == 0 {
		return width, heightFallback, box
	}
	return width, int(math.RoundToEven(float64(width) / aspect)), box
}

func bgColor(s string) (string, error) {
	s = strings.TrimSpace(orDefault(s, defaultBGColor))
	hex := strings.TrimPrefix(strings.TrimPrefix(strings.TrimPrefix(s, "#"), "0x"), "0X")
	if len(hex) != 6 {
		return "", apperr.New(apperr.KindInvalidRequest, "bgcolor %q is not a hex triplet", s)
	}
	if _, err := strconv.ParseUint(hex, 16, 32); err != nil {
		return "", apperr.New(apperr.KindInvalidRequest, "bgcolor %q is not a hex triplet", s)
	}
	return "0x" + strings.ToUpper(hex), nil
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
